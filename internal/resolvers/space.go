package resolvers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Space handles space.bilibili.com/MID.
type Space struct{}

func (s *Space) Names() []string {
	return []string{"Space"}
}

func (s *Space) SupportsUrl(url string) bool {
	return IsUrlHostAndHasPath(url, "space.bilibili.com", true)
}

func (s *Space) Resolve(ctx context.Context, from ResolveFrom) (*Target, error) {
	mid, err := strconv.ParseInt(firstSegment(from.Url), 10, 64)
	if err != nil || mid <= 0 {
		return nil, fmt.Errorf("Space: no user id in %s", from.Url)
	}
	return &Target{Kind: KindSpace, MID: mid, URL: fmt.Sprintf("https://space.bilibili.com/%d", mid)}, nil
}

func secondSegment(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) < 2 {
		return ""
	}
	return segs[1]
}

func init() {
	Register(&Space{})
}
