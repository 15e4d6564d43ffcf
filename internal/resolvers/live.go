package resolvers

import (
	"context"
	"fmt"
	"strconv"
)

// Live handles live.bilibili.com/ROOM. The id may be a short id.
type Live struct{}

func (l *Live) Names() []string {
	return []string{"Live"}
}

func (l *Live) SupportsUrl(url string) bool {
	return IsUrlHostAndHasPath(url, "live.bilibili.com", true)
}

func (l *Live) Resolve(ctx context.Context, from ResolveFrom) (*Target, error) {
	seg := firstSegment(from.Url)
	if seg == "h5" || seg == "blanc" {
		seg = secondSegment(from.Url)
	}
	room, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || room <= 0 {
		return nil, fmt.Errorf("Live: no room id in %s", from.Url)
	}
	return &Target{Kind: KindLive, RoomID: room, URL: fmt.Sprintf("https://live.bilibili.com/%d", room)}, nil
}

func init() {
	Register(&Live{})
}
