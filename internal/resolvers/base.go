package resolvers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bugmaschine/bilitool/pkg/utils"
)

var ErrUnsupported = errors.New("unsupported url")

type Kind int

const (
	KindVideo Kind = iota + 1
	KindLive
	KindSpace
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindLive:
		return "live"
	case KindSpace:
		return "space"
	default:
		return "unknown"
	}
}

// Target is what a URL points at. Only the fields of its Kind are set.
type Target struct {
	Kind   Kind
	BVID   string
	AID    int64
	Page   int
	RoomID int64
	MID    int64
	URL    string
}

type Resolver interface {
	Names() []string
	SupportsUrl(url string) bool
	Resolve(ctx context.Context, from ResolveFrom) (*Target, error)
}

type ResolveFrom struct {
	Url       string
	UserAgent string
	Client    *http.Client
}

var registry []Resolver

func Register(r Resolver) {
	registry = append(registry, r)
}

func GetResolvers() []Resolver {
	return registry
}

func GetResolverByName(name string) Resolver {
	for _, r := range registry {
		for _, n := range r.Names() {
			if strings.EqualFold(n, name) {
				return r
			}
		}
	}
	return nil
}

// Resolve maps a URL, a bare BV id or "av123" to a Target.
func Resolve(ctx context.Context, input, userAgent string, client *http.Client) (*Target, error) {
	input = strings.TrimSpace(input)
	if bvid := utils.ExtractBVID(input); bvid != "" && !strings.Contains(input, "/") {
		return &Target{Kind: KindVideo, BVID: bvid, URL: videoURL(bvid)}, nil
	}
	if aid, ok := parseAV(input); ok {
		return &Target{Kind: KindVideo, AID: aid, URL: fmt.Sprintf("https://www.bilibili.com/video/av%d", aid)}, nil
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	for _, r := range registry {
		if r.SupportsUrl(input) {
			return r.Resolve(ctx, ResolveFrom{Url: input, UserAgent: userAgent, Client: client})
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, input)
}

func IsUrlHostAndHasPath(rawUrl string, expectedHost string, mustHavePath bool) bool {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	expectedHost = strings.ToLower(expectedHost)
	if host != expectedHost && !strings.HasSuffix(host, "."+expectedHost) {
		return false
	}

	if mustHavePath && (u.Path == "" || u.Path == "/") {
		return false
	}

	return true
}

// firstSegment returns the first non-empty path segment of rawUrl.
func firstSegment(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			return s
		}
	}
	return ""
}

func videoURL(bvid string) string {
	return "https://www.bilibili.com/video/" + bvid
}
