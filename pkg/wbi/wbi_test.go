package wbi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bugmaschine/bilitool/pkg/cookies"
)

const (
	testImgKey = "7cd084941338484aae1ad9425b84077c"
	testSubKey = "4932caff0ff746eab6f01bf08b70ac45"
	testMixin  = "ea1db124af3c7062474693fa704f4ff8"
	testWts    = 1702204169
)

type memStore struct {
	keys  KeySet
	err   error
	saved int
}

func (m *memStore) Load() (KeySet, error) { return m.keys, m.err }
func (m *memStore) Save(k KeySet) error {
	m.keys = k
	m.err = nil
	m.saved++
	return nil
}

type countingFetcher struct {
	calls int
	keys  KeySet
	err   error
}

func (f *countingFetcher) FetchKeys(context.Context, cookies.Set) (KeySet, error) {
	f.calls++
	return f.keys, f.err
}

func fixedClock(sec int64) Clock {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestMixinKey(t *testing.T) {
	tests := []struct {
		name     string
		img, sub string
		want     string
	}{
		{"public reference keys", testImgKey, testSubKey, testMixin},
		{"short raw key skips out of range entries", "ab", "c", "cab"},
		{"uniform key", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MixinKey(tt.img, tt.sub)
			if got != tt.want {
				t.Errorf("MixinKey() = %q, want %q", got, tt.want)
			}
			if again := MixinKey(tt.img, tt.sub); again != got {
				t.Errorf("MixinKey not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]string
		wts       int64
		wantQuery string
		wantWRID  string
	}{
		{
			name:      "public reference vector",
			params:    map[string]string{"foo": "114", "bar": "514", "zab": "1919810"},
			wts:       testWts,
			wantQuery: "bar=514&foo=114&wts=1702204169&zab=1919810",
			wantWRID:  "8f6f2b5b3d485fe1886cec6a0be8c5d4",
		},
		{
			name:      "baz variant sorts before foo",
			params:    map[string]string{"foo": "114", "bar": "514", "baz": "1919810"},
			wts:       testWts,
			wantQuery: "bar=514&baz=1919810&foo=114&wts=1702204169",
			wantWRID:  "6149fdadf571698ca7e6a567265cd0ee",
		},
		{
			name:      "next second changes the digest",
			params:    map[string]string{"foo": "114", "bar": "514", "zab": "1919810"},
			wts:       testWts + 1,
			wantQuery: "bar=514&foo=114&wts=1702204170&zab=1919810",
			wantWRID:  "7f148e6b5a88895060db7693217c4774",
		},
		{
			name:      "reserved characters are escaped",
			params:    map[string]string{"keyword": "a,b/c:d", "page": "1"},
			wts:       testWts,
			wantQuery: "keyword=A%2CB%2FC%3AD&page=1&wts=1702204169",
			wantWRID:  "fa2787dd55d8a5f588e54ecdad974263",
		},
		{
			name:      "utf-8 and spaces",
			params:    map[string]string{"keyword": "hello world 测试", "order": "pubdate"},
			wts:       1700000000,
			wantQuery: "keyword=HELLO%20WORLD%20%E6%B5%8B%E8%AF%95&order=PUBDATE&wts=1700000000",
			wantWRID:  "9ad6d5a9ee3d9a62dd0be2f0bc6f5aab",
		},
		{
			name:      "lower case values are hashed upper case",
			params:    map[string]string{"keyword": "golang", "page": "1"},
			wts:       testWts,
			wantQuery: "keyword=GOLANG&page=1&wts=1702204169",
			wantWRID:  "a5cd168b32a6f5b940e44827ccf629ea",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, wRID := Encode(tt.params, testMixin, tt.wts)
			if query != tt.wantQuery {
				t.Errorf("query = %q, want %q", query, tt.wantQuery)
			}
			if wRID != tt.wantWRID {
				t.Errorf("w_rid = %q, want %q", wRID, tt.wantWRID)
			}
		})
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a,b", "a%2Cb"},
		{"a/b", "a%2Fb"},
		{"a:b", "a%3Ab"},
		{"hello world", "hello%20world"},
		{"测试", "%E6%B5%8B%E8%AF%95"},
		{"ok-_.~", "ok-_.~"},
		{"!'()*", "%21%27%28%29%2A"},
		{"a+b=c&d", "a%2Bb%3Dc%26d"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type level int

func (l level) String() string { return fmt.Sprintf("lv%d", int(l)) }

type (
	mid   int64
	order string
	flag  bool
)

func TestStringify(t *testing.T) {
	tests := []struct {
		in      any
		want    string
		wantErr bool
	}{
		{"x", "x", false},
		{114, "114", false},
		{int64(-3), "-3", false},
		{uint32(7), "7", false},
		{true, "true", false},
		{1.5, "1.5", false},
		{level(2), "lv2", false},
		{mid(42), "42", false},
		{order("pubdate"), "pubdate", false},
		{flag(true), "true", false},
		{[]int{1}, "", true},
		{nil, "", true},
		{struct{}{}, "", true},
	}
	for _, tt := range tests {
		got, err := Stringify("k", tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Stringify(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestSigner(now int64, fetcher Fetcher, store Store) *Signer {
	return NewSigner(NewKeyCache(store, fetcher).SetClock(fixedClock(now)))
}

func TestSignGoldenVector(t *testing.T) {
	store := &memStore{keys: KeySet{ImgKey: testImgKey, SubKey: testSubKey, FetchedAt: time.Unix(testWts-60, 0)}}
	fetcher := &countingFetcher{err: errors.New("must not be called")}
	signer := newTestSigner(testWts, fetcher, store)

	params := map[string]any{"foo": 114, "bar": 514, "zab": 1919810}
	signed, err := signer.Sign(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if signed["wts"] != "1702204169" {
		t.Errorf("wts = %v", signed["wts"])
	}
	if signed["w_rid"] != "8f6f2b5b3d485fe1886cec6a0be8c5d4" {
		t.Errorf("w_rid = %v", signed["w_rid"])
	}
	if signed["foo"] != 114 || len(signed) != 5 {
		t.Errorf("signed params = %v", signed)
	}
	if _, ok := params["wts"]; ok {
		t.Error("Sign modified the caller's map")
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times on a cache hit", fetcher.calls)
	}
}

func TestSignSameSecondIsDeterministic(t *testing.T) {
	store := &memStore{keys: KeySet{ImgKey: testImgKey, SubKey: testSubKey, FetchedAt: time.Unix(testWts, 0)}}
	now := int64(testWts)
	cache := NewKeyCache(store, &countingFetcher{}).SetClock(func() time.Time { return time.Unix(now, 0) })
	signer := NewSigner(cache)

	params := map[string]any{"keyword": "golang", "page": 1}
	a, err := signer.Sign(context.Background(), params, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := signer.Sign(context.Background(), params, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a["w_rid"] != b["w_rid"] {
		t.Errorf("same second gave different w_rid: %v vs %v", a["w_rid"], b["w_rid"])
	}

	now++
	c, err := signer.Sign(context.Background(), params, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c["w_rid"] == a["w_rid"] {
		t.Error("next second gave the same w_rid")
	}
	if c["wts"] == a["wts"] {
		t.Error("next second gave the same wts")
	}
}

func TestKeyCacheExpiry(t *testing.T) {
	now := time.Unix(testWts, 0)
	fresh := KeySet{ImgKey: "img", SubKey: "sub"}

	tests := []struct {
		name      string
		stored    KeySet
		storeErr  error
		wantCalls int
	}{
		{"fetched 25h ago refetches", KeySet{ImgKey: testImgKey, SubKey: testSubKey, FetchedAt: now.Add(-25 * time.Hour)}, nil, 1},
		{"fetched 23h ago is reused", KeySet{ImgKey: testImgKey, SubKey: testSubKey, FetchedAt: now.Add(-23 * time.Hour)}, nil, 0},
		{"empty keys refetch", KeySet{FetchedAt: now}, nil, 1},
		{"missing cache file fetches", KeySet{}, os.ErrNotExist, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{keys: tt.stored, err: tt.storeErr}
			fetcher := &countingFetcher{keys: fresh}
			cache := NewKeyCache(store, fetcher).SetClock(func() time.Time { return now })

			if _, err := cache.Get(context.Background(), nil); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if fetcher.calls != tt.wantCalls {
				t.Errorf("fetch calls = %d, want %d", fetcher.calls, tt.wantCalls)
			}
			if tt.wantCalls > 0 {
				if store.saved != 1 {
					t.Errorf("fresh keys saved %d times", store.saved)
				}
				if !store.keys.FetchedAt.Equal(now) {
					t.Errorf("FetchedAt = %v, want %v", store.keys.FetchedAt, now)
				}
			}

			// a second call within the same process never refetches
			if _, err := cache.Get(context.Background(), nil); err != nil {
				t.Fatal(err)
			}
			if fetcher.calls != tt.wantCalls {
				t.Errorf("second Get refetched: calls = %d", fetcher.calls)
			}
		})
	}
}

func TestSignFetchFailureFallsBackUnsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := FileStore{Path: filepath.Join(t.TempDir(), "wbi_cache.json")}
	signer := newTestSigner(testWts, NavFetcher{Client: srv.Client(), URL: srv.URL}, store)

	params := map[string]any{"keyword": "a,b"}
	got, err := signer.Sign(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("Sign returned error on fetch failure: %v", err)
	}
	if len(got) != 1 || got["keyword"] != "a,b" {
		t.Errorf("got %v, want the original mapping", got)
	}
	if _, ok := got["wts"]; ok {
		t.Error("unsigned fallback carries wts")
	}
	if _, ok := got["w_rid"]; ok {
		t.Error("unsigned fallback carries w_rid")
	}
	if _, err := os.Stat(store.Path); !os.IsNotExist(err) {
		t.Errorf("cache file written after a failed fetch: %v", err)
	}
}

func TestSignInvalidParameter(t *testing.T) {
	fetcher := &countingFetcher{keys: KeySet{ImgKey: testImgKey, SubKey: testSubKey}}
	signer := newTestSigner(testWts, fetcher, &memStore{err: os.ErrNotExist})

	params := map[string]any{"ok": "yes", "bad": map[string]int{"x": 1}}
	got, err := signer.Sign(context.Background(), params, nil)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	var ipe *InvalidParameterError
	if !errors.As(err, &ipe) || ipe.Key != "bad" {
		t.Errorf("expected InvalidParameterError for key bad, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil map, got %v", got)
	}
	if len(params) != 2 {
		t.Errorf("input map modified: %v", params)
	}
	if fetcher.calls != 0 {
		t.Error("keys fetched for an invalid request")
	}
}

func TestNavFetcher(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"code":0,"message":"0","data":{"isLogin":true,"wbi_img":{"img_url":"https://i0.hdslb.com/bfs/wbi/%s.png","sub_url":"https://i0.hdslb.com/bfs/wbi/%s.png"}}}`, testImgKey, testSubKey)
	}))
	defer srv.Close()

	keys, err := NavFetcher{Client: srv.Client(), URL: srv.URL}.FetchKeys(context.Background(), cookies.Set{"SESSDATA": "s"})
	if err != nil {
		t.Fatalf("FetchKeys: %v", err)
	}
	if keys.ImgKey != testImgKey || keys.SubKey != testSubKey {
		t.Errorf("keys = %+v", keys)
	}
	if gotCookie != "SESSDATA=s" {
		t.Errorf("cookie header = %q", gotCookie)
	}
}

func TestNavFetcherErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"api error", `{"code":-412,"message":"request was banned"}`},
		{"no wbi_img", `{"code":0,"data":{}}`},
		{"not json", `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NavFetcher{Client: srv.Client(), URL: srv.URL}.FetchKeys(context.Background(), nil)
			if !errors.Is(err, ErrKeyFetch) {
				t.Errorf("expected ErrKeyFetch, got %v", err)
			}
		})
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store := FileStore{Path: filepath.Join(dir, "sub", "wbi_cache.json")}

	if _, err := store.Load(); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	in := KeySet{ImgKey: testImgKey, SubKey: testSubKey, FetchedAt: time.Unix(testWts, 0)}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.ImgKey != in.ImgKey || out.SubKey != in.SubKey || out.FetchedAt.Unix() != testWts {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}

	entries, _ := os.ReadDir(filepath.Dir(store.Path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileStoreReadsFractionalTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wbi_cache.json")
	data := fmt.Sprintf(`{"img_key": %q, "sub_key": %q, "timestamp": 1702204169.5}`, testImgKey, testSubKey)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	k, err := FileStore{Path: path}.Load()
	if err != nil {
		t.Fatal(err)
	}
	if k.FetchedAt.Unix() != testWts || k.FetchedAt.Nanosecond() != 500_000_000 {
		t.Errorf("FetchedAt = %v", k.FetchedAt)
	}
}

func TestSignValues(t *testing.T) {
	store := &memStore{keys: KeySet{ImgKey: testImgKey, SubKey: testSubKey, FetchedAt: time.Unix(testWts, 0)}}
	signer := newTestSigner(testWts, &countingFetcher{}, store)

	got, ok := signer.SignValues(context.Background(), map[string]string{"foo": "114", "bar": "514", "baz": "1919810", "w_rid": "stale"}, nil)
	if !ok {
		t.Fatal("expected signed values")
	}
	if got["w_rid"] != "6149fdadf571698ca7e6a567265cd0ee" {
		t.Errorf("w_rid = %q", got["w_rid"])
	}
}
