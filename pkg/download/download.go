package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/time/rate"
)

const partSuffix = ".part"

type Options struct {
	UserAgent string
	// LimitRate caps throughput in bytes per second; 0 is unlimited.
	LimitRate float64
	Client    *http.Client
	// Output receives the progress bars; nil means stderr.
	Output io.Writer
}

type Downloader struct {
	client    *http.Client
	progress  *mpb.Progress
	limiter   *rate.Limiter
	userAgent string
}

func NewDownloader(opts Options) *Downloader {
	var rLimit *rate.Limiter
	if opts.LimitRate > 0 {
		burst := int(opts.LimitRate)
		if burst < 1 {
			burst = 1
		}
		rLimit = rate.NewLimiter(rate.Limit(opts.LimitRate), burst)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	var pOpts []mpb.ContainerOption
	if opts.Output != nil {
		pOpts = append(pOpts, mpb.WithOutput(opts.Output))
	}
	return &Downloader{
		client:    client,
		progress:  mpb.New(pOpts...),
		limiter:   rLimit,
		userAgent: opts.UserAgent,
	}
}

// Progress is the shared bar container, for callers that add their own bars.
func (d *Downloader) Progress() *mpb.Progress {
	return d.progress
}

// Fetch downloads url to path, replacing whatever is there.
func (d *Downloader) Fetch(ctx context.Context, url, path, message string) error {
	return d.DownloadToFile(ctx, NewTask(path, url).SetOverwriteFile(true).SetCustomMessage(message))
}

// DownloadToFile streams task.Url into task.OutputPath through a ".part" file,
// so an interrupted download never looks finished.
func (d *Downloader) DownloadToFile(ctx context.Context, task *Task) error {
	slog.Debug("Starting download to file", "url", task.Url, "path", task.OutputPath)
	if _, err := os.Stat(task.OutputPath); err == nil {
		if task.SkipExisting {
			slog.Info("Skipping download, file already exists", "file", task.Filename())
			return nil
		}
		if !task.OverwriteFile {
			return fmt.Errorf("%s already exists", task.Filename())
		}
	}

	resp, err := d.get(ctx, task.Url, task.Referer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	slog.Debug("Got response", "status", resp.Status, "content-type", resp.Header.Get("Content-Type"))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	message := task.CustomMessage
	if message == "" {
		message = task.Filename()
	}

	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0o755); err != nil {
		return err
	}
	partPath := task.OutputPath + partSuffix
	targetFile, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := d.copyWithBar(ctx, resp, targetFile, message); err != nil {
		targetFile.Close()
		os.Remove(partPath)
		return err
	}
	if err := targetFile.Close(); err != nil {
		return err
	}
	return os.Rename(partPath, task.OutputPath)
}

func (d *Downloader) get(ctx context.Context, url, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return d.client.Do(req)
}

func (d *Downloader) downloadInfo() mpb.BarOption {
	return mpb.AppendDecorators(
		decor.Percentage(decor.WCSyncSpace),
		decor.Name(" | "),
		decor.AverageSpeed(decor.SizeB1024(0), "% .2f"),
		decor.Name(" | "),
		decor.AverageETA(decor.ET_STYLE_GO),
	)
}

func (d *Downloader) copyWithBar(ctx context.Context, resp *http.Response, w io.Writer, message string) error {
	contentLength := resp.ContentLength
	if contentLength < 0 {
		contentLength = 0
	}
	bar := d.progress.AddBar(contentLength,
		mpb.PrependDecorators(
			decor.Name(message, decor.WC{W: len(message) + 1}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		d.downloadInfo(),
	)

	var reader io.Reader = resp.Body
	if d.limiter != nil {
		reader = &rateLimitedReader{
			r:       resp.Body,
			limiter: d.limiter,
			ctx:     ctx,
		}
	}

	proxyReader := bar.ProxyReader(reader)
	defer proxyReader.Close()

	n, err := io.Copy(w, proxyReader)
	if err != nil {
		bar.Abort(false)
		return err
	}
	// unknown lengths end here
	bar.SetTotal(n, true)
	return nil
}

func (d *Downloader) Wait() {
	d.progress.Wait()
}

type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	// WaitN fails for n above the burst
	if b := r.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if err := r.limiter.WaitN(r.ctx, n); err != nil {
			return n, err
		}
	}
	return n, err
}
