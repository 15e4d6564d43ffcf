package wbi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/tidwall/gjson"
)

// KeyValidity is how long fetched keys are trusted before the nav endpoint is asked again.
const KeyValidity = 24 * time.Hour

// KeySet is the img/sub key pair handed out by the nav endpoint.
type KeySet struct {
	ImgKey    string
	SubKey    string
	FetchedAt time.Time
}

// Valid reports whether both keys are present and younger than KeyValidity.
func (k KeySet) Valid(now time.Time) bool {
	return k.ImgKey != "" && k.SubKey != "" && now.Sub(k.FetchedAt) < KeyValidity
}

// Clock returns the current time.
type Clock func() time.Time

// Store persists a KeySet between runs.
type Store interface {
	Load() (KeySet, error)
	Save(KeySet) error
}

// Fetcher retrieves fresh keys.
type Fetcher interface {
	FetchKeys(ctx context.Context, auth cookies.Set) (KeySet, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, auth cookies.Set) (KeySet, error)

func (f FetcherFunc) FetchKeys(ctx context.Context, auth cookies.Set) (KeySet, error) {
	return f(ctx, auth)
}

// FileStore keeps keys in a small JSON file.
type FileStore struct {
	Path string
}

type fileEntry struct {
	ImgKey    string  `json:"img_key"`
	SubKey    string  `json:"sub_key"`
	Timestamp float64 `json:"timestamp"`
}

func (s FileStore) Load() (KeySet, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return KeySet{}, err
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return KeySet{}, fmt.Errorf("corrupt wbi cache %s: %w", s.Path, err)
	}
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return KeySet{ImgKey: e.ImgKey, SubKey: e.SubKey, FetchedAt: time.Unix(sec, nsec)}, nil
}

// Save writes through a temp file and rename so a crash never leaves half a file.
func (s FileStore) Save(k KeySet) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(fileEntry{
		ImgKey:    k.ImgKey,
		SubKey:    k.SubKey,
		Timestamp: float64(k.FetchedAt.UnixNano()) / 1e9,
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".wbi-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// KeyCache hands out a valid KeySet, asking the Fetcher only when the
// in-memory and stored copies are missing or expired.
type KeyCache struct {
	store   Store
	fetcher Fetcher
	now     Clock

	mu   sync.Mutex
	keys KeySet
}

func NewKeyCache(store Store, fetcher Fetcher) *KeyCache {
	return &KeyCache{store: store, fetcher: fetcher, now: time.Now}
}

func (c *KeyCache) SetClock(now Clock) *KeyCache {
	c.now = now
	return c
}

// Now is the cache's notion of the current time.
func (c *KeyCache) Now() time.Time {
	return c.now()
}

// Get returns cached keys or fetches and persists new ones.
func (c *KeyCache) Get(ctx context.Context, auth cookies.Set) (KeySet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.keys.Valid(now) {
		return c.keys, nil
	}

	if c.store != nil {
		stored, err := c.store.Load()
		switch {
		case err != nil:
			slog.Debug("No usable wbi cache", "error", err)
		case stored.Valid(now):
			slog.Debug("Using cached wbi keys", "fetched_at", stored.FetchedAt)
			c.keys = stored
			return stored, nil
		default:
			slog.Debug("Cached wbi keys expired", "fetched_at", stored.FetchedAt)
		}
	}

	fresh, err := c.fetcher.FetchKeys(ctx, auth)
	if err != nil {
		return KeySet{}, err
	}
	if fresh.FetchedAt.IsZero() {
		fresh.FetchedAt = now
	}
	c.keys = fresh

	if c.store != nil {
		if err := c.store.Save(fresh); err != nil {
			slog.Warn("Failed to persist wbi keys", "error", err)
		}
	}
	return fresh, nil
}

// NavFetcher reads the keys from the nav endpoint's data.wbi_img urls.
type NavFetcher struct {
	Client    *http.Client
	URL       string
	UserAgent string
}

const NavURL = "https://api.bilibili.com/x/web-interface/nav"

func (f NavFetcher) FetchKeys(ctx context.Context, auth cookies.Set) (KeySet, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	u := f.URL
	if u == "" {
		u = NavURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return KeySet{}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Referer", "https://www.bilibili.com/")
	if len(auth) > 0 {
		req.Header.Set("Cookie", auth.Header())
	}

	resp, err := client.Do(req)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return KeySet{}, fmt.Errorf("%w: http status %d", ErrKeyFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	res := gjson.ParseBytes(body)
	if code := res.Get("code").Int(); code != 0 {
		return KeySet{}, fmt.Errorf("%w: code %d: %s", ErrKeyFetch, code, res.Get("message").String())
	}
	img := keyFromURL(res.Get("data.wbi_img.img_url").String())
	sub := keyFromURL(res.Get("data.wbi_img.sub_url").String())
	if img == "" || sub == "" {
		return KeySet{}, fmt.Errorf("%w: response has no wbi_img urls", ErrKeyFetch)
	}
	// FetchedAt is stamped by the KeyCache clock
	return KeySet{ImgKey: img, SubKey: sub}, nil
}

// keyFromURL takes the filename stem: .../7cd084941338484aae1ad9425b84077c.png -> 7cd0...
func keyFromURL(u string) string {
	base := path.Base(u)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
