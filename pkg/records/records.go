// Package records keeps a local log of submitted reports.
package records

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const FileName = "reports.json"

// Report is one submitted report as written to the log.
type Report struct {
	BVID      string    `json:"bvid"`
	AID       int64     `json:"aid"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	PubDate   time.Time `json:"pubdate"`
	Reason    string    `json:"reason"`
	Desc      string    `json:"desc"`
	Attach    string    `json:"attach,omitempty"`
	IsImage   bool      `json:"is_image"`
	Submitted time.Time `json:"submitted"`
}

// Log is a JSON array of reports on disk.
type Log struct {
	Path string
}

func Open(dir string) *Log {
	return &Log{Path: filepath.Join(dir, FileName)}
}

func (l *Log) read() ([]byte, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) || len(data) == 0 {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return nil, fmt.Errorf("%s is not a json array", l.Path)
	}
	return data, nil
}

// Append adds r to the end of the log.
func (l *Log) Append(r Report) error {
	data, err := l.read()
	if err != nil {
		return err
	}
	data, err = sjson.SetBytes(data, "-1", r)
	if err != nil {
		return fmt.Errorf("failed to append report: %w", err)
	}

	tmp := l.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.Path)
}

// List returns every report, oldest first.
func (l *Log) List() ([]Report, error) {
	data, err := l.read()
	if err != nil {
		return nil, err
	}
	var out []Report
	gjson.ParseBytes(data).ForEach(func(_, v gjson.Result) bool {
		out = append(out, Report{
			BVID:      v.Get("bvid").String(),
			AID:       v.Get("aid").Int(),
			Title:     v.Get("title").String(),
			Author:    v.Get("author").String(),
			PubDate:   v.Get("pubdate").Time(),
			Reason:    v.Get("reason").String(),
			Desc:      v.Get("desc").String(),
			Attach:    v.Get("attach").String(),
			IsImage:   v.Get("is_image").Bool(),
			Submitted: v.Get("submitted").Time(),
		})
		return true
	})
	return out, nil
}

// Count returns the number of reports filed for bvid.
func (l *Log) Count(bvid string) (int, error) {
	data, err := l.read()
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(data, fmt.Sprintf(`#(bvid==%q)#|#`, bvid)).Int()), nil
}
