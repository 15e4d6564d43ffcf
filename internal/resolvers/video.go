package resolvers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bugmaschine/bilitool/pkg/utils"
)

var avRe = regexp.MustCompile(`(?i)^av(\d+)$`)

func parseAV(s string) (int64, bool) {
	m := avRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	return n, err == nil && n > 0
}

// Video handles www.bilibili.com/video/BV... and /video/av..., plus the mobile host.
type Video struct{}

func (v *Video) Names() []string {
	return []string{"Video"}
}

func (v *Video) SupportsUrl(rawUrl string) bool {
	if !IsUrlHostAndHasPath(rawUrl, "bilibili.com", true) {
		return false
	}
	return strings.EqualFold(firstSegment(rawUrl), "video")
}

func (v *Video) Resolve(ctx context.Context, from ResolveFrom) (*Target, error) {
	u, err := url.Parse(from.Url)
	if err != nil {
		return nil, err
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 {
		return nil, fmt.Errorf("Video: no id in %s", from.Url)
	}

	t := &Target{Kind: KindVideo}
	if p, err := strconv.Atoi(u.Query().Get("p")); err == nil && p > 0 {
		t.Page = p
	}
	if bvid := utils.ExtractBVID(segs[1]); bvid != "" {
		t.BVID = bvid
		t.URL = videoURL(bvid)
		return t, nil
	}
	if aid, ok := parseAV(segs[1]); ok {
		t.AID = aid
		t.URL = fmt.Sprintf("https://www.bilibili.com/video/av%d", aid)
		return t, nil
	}
	return nil, fmt.Errorf("Video: no id in %s", from.Url)
}

func init() {
	Register(&Video{})
}
