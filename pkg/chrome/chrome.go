// Package chrome drives a local Chrome through chromedp to capture a
// logged-in bilibili session.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	LoginURL       = "https://passport.bilibili.com/login"
	DefaultTimeout = 5 * time.Minute
	pollInterval   = 2 * time.Second
)

var (
	ErrNoBrowser    = errors.New("no chrome or chromium executable found")
	ErrLoginTimeout = errors.New("timed out waiting for login")
)

// cookieURLs are the origins whose cookies make up a session.
var cookieURLs = []string{
	"https://www.bilibili.com",
	"https://passport.bilibili.com",
	"https://api.bilibili.com",
}

type Manager struct {
	execPath  string
	userAgent string
	debug     bool
}

// NewManager uses execPath when set and otherwise looks for an installed browser.
func NewManager(execPath, userAgent string, debug bool) (*Manager, error) {
	if execPath == "" {
		p, err := findBrowser()
		if err != nil {
			return nil, err
		}
		execPath = p
	}
	return &Manager{execPath: execPath, userAgent: userAgent, debug: debug}, nil
}

func findBrowser() (string, error) {
	for _, bin := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome", "msedge"} {
		if path, err := exec.LookPath(bin); err == nil {
			slog.Debug("Using system browser", "path", path)
			return path, nil
		}
	}
	return "", ErrNoBrowser
}

// Get starts a visible browser and returns its chromedp context.
func (m *Manager) Get(ctx context.Context) (context.Context, context.CancelFunc, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(m.execPath),
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("exclude-switches", "enable-automation,enable-logging"),
		chromedp.WindowSize(1280, 900),
	}
	if m.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	var contextOpts []chromedp.ContextOption
	if m.debug {
		contextOpts = append(contextOpts,
			chromedp.WithLogf(func(s string, i ...interface{}) { slog.Debug(fmt.Sprintf(s, i...)) }),
		)
	}
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, contextOpts...)
	cancel := func() {
		taskCancel()
		allocCancel()
	}

	// the login page refuses to render its QR code for navigator.webdriver
	err := chromedp.Run(taskCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			script := `Object.defineProperty(navigator, "webdriver", { get: () => false });`
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("browser failed to start: %w", err)
	}
	return taskCtx, cancel, nil
}

// Login opens the passport page and waits until the user has logged in,
// then returns the session cookies. timeout <= 0 means DefaultTimeout.
func (m *Manager) Login(ctx context.Context, timeout time.Duration) (cookies.Set, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	browserCtx, cancel, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(LoginURL)); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}
	if ua, err := GetUserAgent(browserCtx); err == nil && m.userAgent != "" && ua != m.userAgent {
		slog.Debug("Browser reports a different user agent", "browser", ua)
	}
	slog.Info("Log in in the browser window", "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrLoginTimeout
		case <-tick.C:
		}

		var got []*network.Cookie
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			got, err = network.GetCookies().WithURLs(cookieURLs).Do(ctx)
			return err
		}))
		if err != nil {
			// closing the window ends the session
			return nil, fmt.Errorf("failed to read cookies: %w", err)
		}

		set := sessionCookies(got)
		if set["SESSDATA"] == "" {
			slog.Debug("Not logged in yet", "cookies", len(got))
			continue
		}
		slog.Info("Login detected", "uid", set.UID())
		return set, nil
	}
}

// sessionCookies keeps the cookies set for bilibili domains.
func sessionCookies(cs []*network.Cookie) cookies.Set {
	set := make(cookies.Set)
	for _, c := range cs {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain != "bilibili.com" && !strings.HasSuffix(domain, ".bilibili.com") {
			continue
		}
		if c.Value == "" {
			continue
		}
		set[c.Name] = c.Value
	}
	return set
}

// GetUserAgent returns the user agent string of the current browser.
func GetUserAgent(ctx context.Context) (string, error) {
	var ua string
	err := chromedp.Run(ctx,
		chromedp.Evaluate("navigator.userAgent", &ua),
	)
	return ua, err
}
