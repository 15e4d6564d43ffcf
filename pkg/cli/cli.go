// Package cli builds the bilitool command tree.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bugmaschine/bilitool/internal/resolvers"
	"github.com/bugmaschine/bilitool/pkg/bili"
	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/bugmaschine/bilitool/pkg/dirs"
	"github.com/bugmaschine/bilitool/pkg/logger"
	"github.com/bugmaschine/bilitool/pkg/utils"
	"github.com/bugmaschine/bilitool/pkg/wbi"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type Args struct {
	Debug      bool
	LogFile    string
	CookieFile string
	DataDir    string
	UserAgent  string
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	warnMark = color.New(color.FgYellow).Sprint("!")
	bold     = color.New(color.Bold).SprintFunc()
)

var errNotInteractive = errors.New("not a terminal, pass --yes to confirm")

// app is the state shared by all commands of one invocation.
type app struct {
	args    *Args
	dataDir string

	auth       cookies.Set
	cookiePath string
	bili       *bili.Client
}

func (a *app) setup() error {
	logger.InitDefaultLogger(a.args.Debug, a.args.LogFile)

	dataDir, err := dirs.GetDataDir(a.args.DataDir)
	if err != nil {
		return err
	}
	a.dataDir = dataDir
	slog.Debug("Using data directory", "path", dataDir)
	return nil
}

func (a *app) cookieCandidates() []string {
	if a.args.CookieFile != "" {
		return []string{a.args.CookieFile}
	}
	paths := append([]string{}, cookies.DefaultFiles...)
	return append(paths, filepath.Join(a.dataDir, dirs.DefaultCookie))
}

// savePath is where freshly captured cookies go.
func (a *app) savePath() string {
	if a.args.CookieFile != "" {
		return a.args.CookieFile
	}
	return filepath.Join(a.dataDir, dirs.DefaultCookie)
}

// loadCookies finds the cookie jar. With needLogin the required session
// cookies must be present; otherwise a missing jar yields an anonymous set.
func (a *app) loadCookies(needLogin bool) (cookies.Set, error) {
	if a.auth != nil {
		if needLogin {
			return a.auth, a.auth.Validate()
		}
		return a.auth, nil
	}

	auth, path, err := cookies.LoadFirst(a.cookieCandidates()...)
	switch {
	case errors.Is(err, cookies.ErrNotFound) && !needLogin:
		slog.Debug("No cookie file, continuing anonymously")
		auth = cookies.Set{}
	case err != nil:
		return nil, fmt.Errorf("%w (looked for %s)", err, strings.Join(a.cookieCandidates(), ", "))
	}
	a.auth, a.cookiePath = auth, path

	if needLogin {
		if err := auth.Validate(); err != nil {
			return nil, err
		}
	}
	return auth, nil
}

func (a *app) client(needLogin bool) (*bili.Client, error) {
	auth, err := a.loadCookies(needLogin)
	if err != nil {
		return nil, err
	}
	if a.bili == nil {
		a.bili = bili.New(auth, bili.Options{
			UserAgent: a.args.UserAgent,
			WbiStore:  wbi.FileStore{Path: dirs.WbiCachePath(a.dataDir)},
		})
	}
	return a.bili, nil
}

// video resolves a BV id, an av number or a video URL to a BV id and part.
func (a *app) video(ctx context.Context, c *bili.Client, input string) (string, int, error) {
	t, err := resolvers.Resolve(ctx, input, a.args.UserAgent, nil)
	if err != nil {
		return "", 0, err
	}
	if t.Kind != resolvers.KindVideo {
		return "", 0, fmt.Errorf("%s is a %s link, not a video", input, t.Kind)
	}
	if t.BVID == "" {
		v, err := c.VideoByAID(ctx, t.AID)
		if err != nil {
			return "", 0, err
		}
		return v.BVID, t.Page, nil
	}
	return t.BVID, t.Page, nil
}

// videoList is the positional arguments, or the BV list file when there are none.
func (a *app) videoList(ctx context.Context, c *bili.Client, args []string, file string) ([]string, error) {
	if len(args) == 0 {
		ids, err := utils.ReadBVListFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no BV ids in %s", file)
		}
		return ids, nil
	}
	ids := make([]string, 0, len(args))
	for _, in := range args {
		bvid, _, err := a.video(ctx, c, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, bvid)
	}
	return ids, nil
}

// room resolves a room number or live URL.
func (a *app) room(ctx context.Context, input string) (int64, error) {
	if n, err := strconv.ParseInt(input, 10, 64); err == nil && n > 0 {
		return n, nil
	}
	t, err := resolvers.Resolve(ctx, input, a.args.UserAgent, nil)
	if err != nil {
		return 0, err
	}
	if t.Kind != resolvers.KindLive {
		return 0, fmt.Errorf("%s is not a live room", input)
	}
	return t.RoomID, nil
}

// mid resolves a user id or space URL.
func (a *app) mid(ctx context.Context, input string) (int64, error) {
	if n, err := strconv.ParseInt(input, 10, 64); err == nil && n > 0 {
		return n, nil
	}
	t, err := resolvers.Resolve(ctx, input, a.args.UserAgent, nil)
	if err != nil {
		return 0, err
	}
	if t.Kind != resolvers.KindSpace {
		return 0, fmt.Errorf("%s is not a user space", input)
	}
	return t.MID, nil
}

// confirm asks a yes/no question on the terminal.
func confirm(in *os.File, out io.Writer, prompt string) (bool, error) {
	if !term.IsTerminal(int(in.Fd())) {
		return false, errNotInteractive
	}
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func parseIDs(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, s := range args {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}

var rateLimitPattern = regexp.MustCompile(`^([\d.]+)\s*([a-zA-Z]*)$`)

// ParseRateLimit reads "inf", "500k", "2MiB" and the like into bytes per
// second. 0 means unlimited.
func ParseRateLimit(input string) (float64, error) {
	if strings.ToLower(input) == "inf" || input == "" {
		return 0, nil
	}

	matches := rateLimitPattern.FindStringSubmatch(input)
	if matches == nil {
		return 0, fmt.Errorf("invalid rate limit format: %s", input)
	}

	val, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	multiplier := 1.0
	switch strings.ToLower(matches[2]) {
	case "", "b":
	case "k", "kb":
		multiplier = 1000
	case "ki", "kib":
		multiplier = 1024
	case "m", "mb":
		multiplier = 1000 * 1000
	case "mi", "mib":
		multiplier = 1024 * 1024
	case "g", "gb":
		multiplier = 1000 * 1000 * 1000
	case "gi", "gib":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown rate unit %q", matches[2])
	}

	return val * multiplier, nil
}

func NewRootCommand(args *Args) *cobra.Command {
	a := &app{args: args}

	cmd := &cobra.Command{
		Use:           "bilitool",
		Short:         "Automate a bilibili account from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	f := cmd.PersistentFlags()
	f.BoolVarP(&args.Debug, "debug", "d", false, "Enable debug logging")
	f.StringVarP(&args.LogFile, "log", "l", "", "Path to log file. WARNING: This will append to the log file.")
	f.StringVarP(&args.CookieFile, "cookies", "c", "", "Cookie file (cookies.txt, browser JSON export or a raw cookie string)")
	f.StringVar(&args.DataDir, "data-dir", "", "Directory for the signing key cache and saved cookies")
	f.StringVar(&args.UserAgent, "user-agent", bili.DefaultUserAgent, "User agent sent with every request")

	cmd.AddCommand(
		newCookiesCommand(a),
		newUserCommand(a),
		newVideoCommand(a),
		newLikeCommand(a),
		newCoinCommand(a),
		newFollowCommand(a),
		newFanCommand(a),
		newDanmakuCommand(a),
		newSearchCommand(a),
		newReportCommand(a),
		newLiveCommand(a),
		newIPCommand(a),
		newAudioCommand(a),
		newWbiCommand(a),
	)
	return cmd
}
