package ffmpeg

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	ffmpeg_go "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"
)

var ErrNotFound = errors.New("ffmpeg not found")

// Fetcher downloads url to path, showing message on the progress bar.
type Fetcher interface {
	Fetch(ctx context.Context, url, path, message string) error
}

type Ffmpeg struct {
	dataDir string
}

func New(dataDir string) *Ffmpeg {
	return &Ffmpeg{dataDir: dataDir}
}

func (f *Ffmpeg) AutoDownload(ctx context.Context, fetcher Fetcher) (string, error) {
	if path, err := f.Path(); err == nil {
		return path, nil
	}

	url, err := ffmpegDownloadUrl()
	if err != nil {
		return "", err
	}

	gzipPath := f.dataPath(true)
	if err := fetcher.Fetch(ctx, url, gzipPath, "Downloading FFmpeg"); err != nil {
		return "", fmt.Errorf("failed to download ffmpeg: %w", err)
	}
	defer os.Remove(gzipPath)

	ffmpegPath := f.dataPath(false)
	if err := decompressGzip(gzipPath, ffmpegPath); err != nil {
		return "", err
	}
	return ffmpegPath, nil
}

// Path finds ffmpeg on PATH or in the data directory.
func (f *Ffmpeg) Path() (string, error) {
	if path, err := exec.LookPath(executableName()); err == nil {
		return path, nil
	}
	if f.dataDir != "" {
		dataPath := f.dataPath(false)
		if _, err := os.Stat(dataPath); err == nil {
			return dataPath, nil
		}
	}
	return "", ErrNotFound
}

func (f *Ffmpeg) dataPath(gzip bool) string {
	name := executableName()
	if gzip {
		name = "ffmpeg.gz"
	}
	return filepath.Join(f.dataDir, name)
}

func decompressGzip(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open gzip file: %w", err)
	}
	defer srcFile.Close()

	gzReader, err := gzip.NewReader(srcFile)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, gzReader); err != nil {
		return fmt.Errorf("failed to decompress gzip content: %w", err)
	}
	return nil
}

func executableName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

func ffmpegDownloadUrl() (string, error) {
	var platform string
	switch runtime.GOOS {
	case "linux":
		platform = "linux"
	case "windows":
		platform = "win32"
	case "darwin":
		platform = "darwin"
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	var arch string
	switch runtime.GOARCH {
	case "amd64":
		arch = "x64"
	case "arm64":
		arch = "arm64"
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	if runtime.GOOS == "windows" && runtime.GOARCH == "arm64" {
		return "", fmt.Errorf("unsupported platform architecture combination: %s %s", runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("https://github.com/eugeneware/ffmpeg-static/releases/latest/download/ffmpeg-%s-%s.gz", platform, arch), nil
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// Duration probes the length of a media file with ffprobe, falling back to
// the banner ffmpeg prints for "-i file".
func (f *Ffmpeg) Duration(ctx context.Context, file string) (time.Duration, error) {
	out, err := ffmpeg_go.Probe(file)
	if err == nil {
		if secs := gjson.Get(out, "format.duration").Float(); secs > 0 {
			return time.Duration(secs * float64(time.Second)), nil
		}
	}
	slog.Debug("ffprobe unavailable, reading duration from ffmpeg", "error", err)

	path, err := f.Path()
	if err != nil {
		return 0, err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-hide_banner", "-i", file)
	cmd.Stderr = &stderr
	// exits non-zero without an output file
	_ = cmd.Run()
	if d, ok := parseDuration(stderr.String()); ok {
		return d, nil
	}
	return 0, fmt.Errorf("could not determine duration of %s", filepath.Base(file))
}

func parseDuration(s string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.ParseFloat(m[3], 64)
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec*float64(time.Second)), true
}

// parseOutTime reads an "out_time=00:01:02.500000" line of -progress output.
func parseOutTime(line string) (time.Duration, bool) {
	v, ok := strings.CutPrefix(strings.TrimSpace(line), "out_time=")
	if !ok || strings.HasPrefix(v, "-") {
		return 0, false
	}
	return parseDuration("Duration: " + v)
}

func mp3Args(in, out string, quality int) []string {
	return ffmpeg_go.Input(in).
		Output(out, ffmpeg_go.KwArgs{"acodec": "libmp3lame", "q:a": quality}).
		GlobalArgs("-progress", "pipe:1", "-nostats", "-hide_banner").
		OverWriteOutput().
		GetArgs()
}

func remuxArgs(in, out string) []string {
	return ffmpeg_go.Input(in).
		Output(out, ffmpeg_go.KwArgs{"c": "copy"}).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// ConvertMP3 encodes in to out with libmp3lame VBR quality (0 best, 9 worst).
// onProgress receives the encoded position as ffmpeg reports it.
func (f *Ffmpeg) ConvertMP3(ctx context.Context, in, out string, quality int, onProgress func(time.Duration)) error {
	if quality < 0 || quality > 9 {
		return fmt.Errorf("mp3 quality must be within 0..9, got %d", quality)
	}
	return f.run(ctx, mp3Args(in, out, quality), onProgress)
}

// Remux copies the streams of in into the container implied by out.
func (f *Ffmpeg) Remux(ctx context.Context, in, out string) error {
	return f.run(ctx, remuxArgs(in, out), nil)
}

func (f *Ffmpeg) run(ctx context.Context, args []string, onProgress func(time.Duration)) error {
	path, err := f.Path()
	if err != nil {
		return err
	}
	slog.Debug("Running ffmpeg", "args", args)

	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			if d, ok := parseOutTime(sc.Text()); ok && onProgress != nil {
				onProgress(d)
			}
		}
		return sc.Err()
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	pumpErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	return pumpErr
}
