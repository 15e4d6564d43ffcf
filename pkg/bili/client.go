// Package bili is a typed client for the bilibili web API.
package bili

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/bugmaschine/bilitool/pkg/logger"
	"github.com/bugmaschine/bilitool/pkg/wbi"
	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	APIBase     = "https://api.bilibili.com"
	LiveAPIBase = "https://api.live.bilibili.com"
	MemberBase  = "https://member.bilibili.com"

	refererMain   = "https://www.bilibili.com"
	refererSpace  = "https://space.bilibili.com"
	refererLive   = "https://live.bilibili.com"
	refererSearch = "https://search.bilibili.com"

	videoCacheTTL = 5 * time.Minute
)

// Options configure a Client. Zero values pick the production defaults.
type Options struct {
	HTTPClient  *http.Client
	UserAgent   string
	APIBase     string
	LiveAPIBase string
	MemberBase  string
	// WbiStore persists signing keys; nil keeps them in memory only.
	WbiStore wbi.Store
	Clock    wbi.Clock
}

// Client talks to the main, live and member API hosts on behalf of one account.
type Client struct {
	http      *http.Client
	auth      cookies.Set
	userAgent string
	apiBase   string
	liveBase  string
	member    string
	now       wbi.Clock

	signer *wbi.Signer
	videos *cache.Cache
}

func New(auth cookies.Set, opts Options) *Client {
	c := &Client{
		http:      opts.HTTPClient,
		auth:      auth,
		userAgent: opts.UserAgent,
		apiBase:   strings.TrimRight(opts.APIBase, "/"),
		liveBase:  strings.TrimRight(opts.LiveAPIBase, "/"),
		member:    strings.TrimRight(opts.MemberBase, "/"),
		now:       opts.Clock,
		videos:    cache.New(videoCacheTTL, 2*videoCacheTTL),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.apiBase == "" {
		c.apiBase = APIBase
	}
	if c.liveBase == "" {
		c.liveBase = LiveAPIBase
	}
	if c.member == "" {
		c.member = MemberBase
	}
	if c.now == nil {
		c.now = time.Now
	}

	fetcher := wbi.NavFetcher{Client: c.http, URL: c.apiBase + "/x/web-interface/nav", UserAgent: c.userAgent}
	keys := wbi.NewKeyCache(opts.WbiStore, fetcher).SetClock(c.now)
	c.signer = wbi.NewSigner(keys)
	return c
}

// Cookies returns the account cookies the client sends.
func (c *Client) Cookies() cookies.Set {
	return c.auth
}

// Signer exposes the WBI signer, e.g. for the debug command.
func (c *Client) Signer() *wbi.Signer {
	return c.signer
}

func (c *Client) csrf() (string, error) {
	return c.auth.CSRF()
}

type request struct {
	method   string
	url      string
	query    url.Values
	form     url.Values
	referer  string
	headers  map[string]string
	cookies  map[string]string
	errors   errorTable
	endpoint string
}

func (c *Client) api(path string) string  { return c.apiBase + path }
func (c *Client) live(path string) string { return c.liveBase + path }

// raw performs r and returns the decoded body of a 200 response.
func (c *Client) raw(ctx context.Context, r request) ([]byte, error) {
	target := r.url
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.form != nil {
		body = strings.NewReader(r.form.Encode())
	}
	method := r.method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Encoding", "gzip, br")
	referer := r.referer
	if referer == "" {
		referer = refererMain
	}
	req.Header.Set("Referer", referer)
	if r.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Origin", refererMain)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	jar := c.auth
	if len(r.cookies) > 0 {
		jar = make(cookies.Set, len(c.auth)+len(r.cookies))
		for k, v := range c.auth {
			jar[k] = v
		}
		for k, v := range r.cookies {
			jar[k] = v
		}
	}
	if len(jar) > 0 {
		req.Header.Set("Cookie", jar.Header())
	}

	slog.Debug("API request", "method", method, "url", r.url)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", r.endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected http status %d", r.endpoint, resp.StatusCode)
	}
	return data, nil
}

// call performs r and unwraps the {code, message, data} envelope.
func (c *Client) call(ctx context.Context, r request) (gjson.Result, error) {
	body, err := c.raw(ctx, r)
	if err != nil {
		return gjson.Result{}, err
	}
	slog.Log(ctx, logger.LevelTrace, "API response", "endpoint", r.endpoint, "body", string(body))

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: response is not json", r.endpoint)
	}
	res := gjson.ParseBytes(body)
	if code := res.Get("code").Int(); code != 0 {
		msg, ok := r.errors.lookup(code)
		if !ok {
			msg = res.Get("message").String()
			if msg == "" {
				msg = res.Get("msg").String()
			}
		}
		return gjson.Result{}, &APIError{Endpoint: r.endpoint, Code: code, Message: msg}
	}
	return res.Get("data"), nil
}
