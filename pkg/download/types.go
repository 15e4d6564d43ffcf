package download

import (
	"path/filepath"
)

type Task struct {
	Url           string
	OutputPath    string
	OverwriteFile bool
	SkipExisting  bool
	CustomMessage string
	Referer       string
}

func NewTask(outputPath, url string) *Task {
	return &Task{
		Url:        url,
		OutputPath: outputPath,
	}
}

func (t *Task) SetOverwriteFile(overwrite bool) *Task {
	t.OverwriteFile = overwrite
	return t
}

func (t *Task) SetSkipExisting(skip bool) *Task {
	t.SkipExisting = skip
	return t
}

func (t *Task) SetCustomMessage(message string) *Task {
	t.CustomMessage = message
	return t
}

func (t *Task) SetReferer(referer string) *Task {
	t.Referer = referer
	return t
}

func (t *Task) Filename() string {
	return filepath.Base(t.OutputPath)
}
