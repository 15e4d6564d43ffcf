// Package batch runs one action per BV id from a list, sequentially and
// with a fixed delay between calls.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const DefaultDelay = 2 * time.Second

// Action acts on one BV id.
type Action func(ctx context.Context, bvid string) error

type Options struct {
	Delay time.Duration
	// Limit caps how many ids are processed; 0 means all.
	Limit int
	Name  string
	// Output receives the progress bar; nil disables it.
	Output io.Writer
}

type Result struct {
	Done    []string
	Failed  string
	Err     error
	Skipped int
}

func (r Result) String() string {
	s := fmt.Sprintf("%d done", len(r.Done))
	if r.Failed != "" {
		s += fmt.Sprintf(", stopped at %s: %v", r.Failed, r.Err)
	}
	if r.Skipped > 0 {
		s += fmt.Sprintf(", %d not attempted", r.Skipped)
	}
	return s
}

// Run applies action to each id in order. The first failure stops the batch
// and is returned both in the Result and as the error.
func Run(ctx context.Context, ids []string, opts Options, action Action) (Result, error) {
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	todo := ids
	var res Result
	if opts.Limit > 0 && len(todo) > opts.Limit {
		res.Skipped = len(todo) - opts.Limit
		todo = todo[:opts.Limit]
	}

	var progress *mpb.Progress
	var bar *mpb.Bar
	if opts.Output != nil && len(todo) > 0 {
		name := opts.Name
		if name == "" {
			name = "batch"
		}
		progress = mpb.New(mpb.WithOutput(opts.Output))
		bar = progress.AddBar(int64(len(todo)),
			mpb.PrependDecorators(
				decor.Name(name+" ", decor.WC{W: len(name) + 1}),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
		)
	}
	finish := func() {
		if bar != nil {
			if !bar.Completed() {
				bar.Abort(false)
			}
			progress.Wait()
		}
	}

	for i, id := range todo {
		if i > 0 {
			if err := pause(ctx, delay); err != nil {
				res.Failed, res.Err = id, err
				res.Skipped += len(todo) - i
				finish()
				return res, err
			}
		}

		slog.Debug("Batch step", "name", opts.Name, "bvid", id, "n", i+1, "of", len(todo))
		if err := action(ctx, id); err != nil {
			res.Failed, res.Err = id, err
			res.Skipped += len(todo) - i - 1
			finish()
			return res, fmt.Errorf("%s: %w", id, err)
		}
		res.Done = append(res.Done, id)
		if bar != nil {
			bar.Increment()
		}
	}
	finish()
	return res, nil
}

// pause waits d counted from the end of the previous action, so a slow call
// never eats into the gap before the next one.
func pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
