package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

var ErrYtDlpMissing = errors.New("yt-dlp not found on PATH")

// DefaultAudioFormat prefers m4a and falls back to any best audio.
const DefaultAudioFormat = "ba[ext=m4a]/ba"

var (
	ytdlpDestination = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
	ytdlpExisting    = regexp.MustCompile(`^\[download\] (.+) has already been downloaded`)
	ytdlpProgress    = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%\s+of\s+~?\s*(\d+(?:\.\d+)?)([KMG]?)iB.*?ETA\s+([\d:]+)`)
)

type ytdlpEventKind int

const (
	ytdlpOther ytdlpEventKind = iota
	ytdlpDest
	ytdlpAlready
	ytdlpPercent
)

type ytdlpEvent struct {
	kind    ytdlpEventKind
	path    string
	percent float64
	size    int64
	eta     time.Duration
}

func parseYtDlpLine(line string) ytdlpEvent {
	line = strings.TrimSpace(line)
	if m := ytdlpDestination.FindStringSubmatch(line); m != nil {
		return ytdlpEvent{kind: ytdlpDest, path: m[1]}
	}
	if m := ytdlpExisting.FindStringSubmatch(line); m != nil {
		return ytdlpEvent{kind: ytdlpAlready, path: m[1]}
	}
	if m := ytdlpProgress.FindStringSubmatch(line); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		size, _ := strconv.ParseFloat(m[2], 64)
		switch m[3] {
		case "K":
			size *= 1 << 10
		case "M":
			size *= 1 << 20
		case "G":
			size *= 1 << 30
		}
		return ytdlpEvent{kind: ytdlpPercent, percent: pct, size: int64(size), eta: parseClock(m[4])}
	}
	return ytdlpEvent{}
}

// parseClock reads "ss", "mm:ss" or "hh:mm:ss".
func parseClock(s string) time.Duration {
	var d time.Duration
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		d = d*60 + time.Duration(n)
	}
	return d * time.Second
}

// YtDlp runs the external yt-dlp binary for audio downloads.
type YtDlp struct {
	Path      string
	Format    string
	UserAgent string
	Cookies   cookies.Set
	progress  *mpb.Progress
}

// FindYtDlp looks up yt-dlp on PATH.
func FindYtDlp() (string, error) {
	for _, name := range []string{"yt-dlp", "yt-dlp.exe"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrYtDlpMissing
}

func NewYtDlp(path string, auth cookies.Set, progress *mpb.Progress) *YtDlp {
	return &YtDlp{Path: path, Format: DefaultAudioFormat, Cookies: auth, progress: progress}
}

func (y *YtDlp) args(cookieFile, outputTemplate, url string) []string {
	format := y.Format
	if format == "" {
		format = DefaultAudioFormat
	}
	args := []string{
		"-f", format,
		"--no-playlist",
		"--newline",
		"--progress",
		"-o", outputTemplate,
	}
	if cookieFile != "" {
		args = append([]string{"--cookies", cookieFile}, args...)
	}
	if y.UserAgent != "" {
		args = append(args, "--user-agent", y.UserAgent)
	}
	return append(args, url)
}

// Download fetches the audio of url into dir as stem.<ext> and returns the
// file yt-dlp reported writing.
func (y *YtDlp) Download(ctx context.Context, url, dir, stem string) (string, error) {
	if y.Path == "" {
		return "", ErrYtDlpMissing
	}

	cookieFile := ""
	if len(y.Cookies) > 0 {
		f, err := os.CreateTemp("", "bilitool-cookies-*.txt")
		if err != nil {
			return "", err
		}
		cookieFile = f.Name()
		defer os.Remove(cookieFile)
		werr := y.Cookies.WriteNetscape(f, time.Now().AddDate(1, 0, 0))
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return "", fmt.Errorf("failed to write cookie file: %w", werr)
		}
	}

	template := filepath.Join(dir, stem+".%(ext)s")
	cmd := exec.CommandContext(ctx, y.Path, y.args(cookieFile, template, url)...)
	slog.Debug("Running yt-dlp", "args", cmd.Args)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var bar *mpb.Bar
	if y.progress != nil {
		bar = y.progress.AddBar(1000,
			mpb.PrependDecorators(decor.Name(stem+" ", decor.WC{W: len(stem) + 1})),
			mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
		)
	}

	var (
		mu       sync.Mutex
		dest     string
		lastErrs []string
	)
	var g errgroup.Group
	g.Go(func() error {
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			ev := parseYtDlpLine(sc.Text())
			switch ev.kind {
			case ytdlpDest, ytdlpAlready:
				mu.Lock()
				dest = ev.path
				mu.Unlock()
				if ev.kind == ytdlpAlready && bar != nil {
					bar.SetCurrent(1000)
				}
			case ytdlpPercent:
				if bar != nil {
					bar.SetCurrent(int64(ev.percent * 10))
				}
			default:
				slog.Debug("yt-dlp", "line", sc.Text())
			}
		}
		return sc.Err()
	})
	g.Go(func() error {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			line := sc.Text()
			slog.Debug("yt-dlp stderr", "line", line)
			if strings.HasPrefix(line, "ERROR:") {
				mu.Lock()
				lastErrs = append(lastErrs, strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")))
				mu.Unlock()
			}
		}
		return sc.Err()
	})
	pumpErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		if bar != nil {
			bar.Abort(false)
		}
		if len(lastErrs) > 0 {
			return "", fmt.Errorf("yt-dlp failed: %s", strings.Join(lastErrs, "; "))
		}
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}
	if bar != nil {
		bar.SetCurrent(1000)
	}
	if pumpErr != nil && !errors.Is(pumpErr, io.EOF) {
		return "", pumpErr
	}
	if dest == "" {
		return "", errors.New("yt-dlp did not report an output file")
	}
	return dest, nil
}
