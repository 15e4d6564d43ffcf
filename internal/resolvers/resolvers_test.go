package resolvers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Target
	}{
		{"bare bv", "BV1xx411c7mD", Target{Kind: KindVideo, BVID: "BV1xx411c7mD"}},
		{"bare av", "av170001", Target{Kind: KindVideo, AID: 170001}},
		{"video url", "https://www.bilibili.com/video/BV1xx411c7mD/?spm_id_from=333", Target{Kind: KindVideo, BVID: "BV1xx411c7mD"}},
		{"video page", "https://www.bilibili.com/video/BV1xx411c7mD?p=3", Target{Kind: KindVideo, BVID: "BV1xx411c7mD", Page: 3}},
		{"av url", "https://www.bilibili.com/video/av170001", Target{Kind: KindVideo, AID: 170001}},
		{"mobile", "m.bilibili.com/video/BV1xx411c7mD", Target{Kind: KindVideo, BVID: "BV1xx411c7mD"}},
		{"live", "https://live.bilibili.com/21452505?broadcast_type=0", Target{Kind: KindLive, RoomID: 21452505}},
		{"live h5", "https://live.bilibili.com/h5/8792912", Target{Kind: KindLive, RoomID: 8792912}},
		{"space", "https://space.bilibili.com/2/dynamic", Target{Kind: KindSpace, MID: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), tt.input, "", nil)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.input, err)
			}
			if got.Kind != tt.want.Kind || got.BVID != tt.want.BVID || got.AID != tt.want.AID ||
				got.RoomID != tt.want.RoomID || got.MID != tt.want.MID || got.Page != tt.want.Page {
				t.Errorf("Resolve(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.URL == "" {
				t.Error("URL not set")
			}
		})
	}
}

func TestResolveUnsupported(t *testing.T) {
	inputs := []string{
		"https://example.com/video/BV1xx411c7mD",
		"https://www.bilibili.com/",
		"https://space.bilibili.com/abc",
		"https://evilbilibili.com/video/BV1xx411c7mD",
	}
	for _, in := range inputs {
		if _, err := Resolve(context.Background(), in, "", nil); err == nil {
			t.Errorf("Resolve(%q) succeeded, want error", in)
		}
	}
	if _, err := Resolve(context.Background(), "https://example.com/x", "", nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestShortLink(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		resp := &http.Response{
			Header:  http.Header{},
			Body:    io.NopCloser(strings.NewReader("")),
			Request: r,
		}
		switch r.URL.Host {
		case "b23.tv":
			if r.Header.Get("User-Agent") != "ua" {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			resp.StatusCode = http.StatusFound
			resp.Header.Set("Location", "https://www.bilibili.com/video/BV1xx411c7mD?share_source=copy_web")
		default:
			resp.StatusCode = http.StatusOK
		}
		return resp, nil
	})}

	got, err := Resolve(context.Background(), "https://b23.tv/abcdEFG", "ua", client)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Kind != KindVideo || got.BVID != "BV1xx411c7mD" {
		t.Errorf("got %+v", got)
	}
}

func TestGetResolverByName(t *testing.T) {
	if GetResolverByName("b23") == nil {
		t.Error("b23 resolver not registered")
	}
	if GetResolverByName("nope") != nil {
		t.Error("unexpected resolver")
	}
}
