package bili

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
)

type Owner struct {
	MID  int64
	Name string
}

type Stat struct {
	View     int64
	Danmaku  int64
	Reply    int64
	Favorite int64
	Coin     int64
	Share    int64
	Like     int64
}

// Page is one part of a multi-part video.
type Page struct {
	CID      int64
	Page     int64
	Part     string
	Duration time.Duration
}

type VideoInfo struct {
	AID      int64
	BVID     string
	CID      int64
	Title    string
	Desc     string
	PubDate  time.Time
	Duration time.Duration
	Owner    Owner
	Stat     Stat
	Pages    []Page
}

// Video fetches video metadata. Results are memoized for a few minutes so
// batch runs that print info and then act don't hit the endpoint twice.
func (c *Client) Video(ctx context.Context, bvid string) (*VideoInfo, error) {
	if v, ok := c.videos.Get(bvid); ok {
		return v.(*VideoInfo), nil
	}

	d, err := c.call(ctx, request{
		url:      c.api("/x/web-interface/view"),
		query:    url.Values{"bvid": {bvid}},
		endpoint: "view",
	})
	if err != nil {
		return nil, err
	}

	v := parseVideo(d)
	c.videos.Set(bvid, v, cache.DefaultExpiration)
	return v, nil
}

func parseVideo(d gjson.Result) *VideoInfo {
	v := &VideoInfo{
		AID:      d.Get("aid").Int(),
		BVID:     d.Get("bvid").String(),
		CID:      d.Get("cid").Int(),
		Title:    d.Get("title").String(),
		Desc:     d.Get("desc").String(),
		PubDate:  timeOf(d.Get("pubdate")),
		Duration: time.Duration(d.Get("duration").Int()) * time.Second,
		Owner:    Owner{MID: d.Get("owner.mid").Int(), Name: d.Get("owner.name").String()},
		Stat: Stat{
			View:     d.Get("stat.view").Int(),
			Danmaku:  d.Get("stat.danmaku").Int(),
			Reply:    d.Get("stat.reply").Int(),
			Favorite: d.Get("stat.favorite").Int(),
			Coin:     d.Get("stat.coin").Int(),
			Share:    d.Get("stat.share").Int(),
			Like:     d.Get("stat.like").Int(),
		},
	}
	d.Get("pages").ForEach(func(_, p gjson.Result) bool {
		v.Pages = append(v.Pages, Page{
			CID:      p.Get("cid").Int(),
			Page:     p.Get("page").Int(),
			Part:     p.Get("part").String(),
			Duration: time.Duration(p.Get("duration").Int()) * time.Second,
		})
		return true
	})
	return v
}

// VideoByAID is Video for legacy av ids.
func (c *Client) VideoByAID(ctx context.Context, aid int64) (*VideoInfo, error) {
	d, err := c.call(ctx, request{
		url:      c.api("/x/web-interface/view"),
		query:    url.Values{"aid": {strconv.FormatInt(aid, 10)}},
		endpoint: "view",
	})
	if err != nil {
		return nil, err
	}
	v := parseVideo(d)
	c.videos.Set(v.BVID, v, cache.DefaultExpiration)
	return v, nil
}

// BVToAV resolves the numeric aid of a BV id.
func (c *Client) BVToAV(ctx context.Context, bvid string) (int64, error) {
	v, err := c.Video(ctx, bvid)
	if err != nil {
		return 0, err
	}
	return v.AID, nil
}

// CommentCount returns the number of comments under a video.
func (c *Client) CommentCount(ctx context.Context, aid int64) (int64, error) {
	d, err := c.call(ctx, request{
		url:      c.api("/x/v2/reply/count"),
		query:    url.Values{"type": {"1"}, "oid": {strconv.FormatInt(aid, 10)}},
		endpoint: "reply count",
	})
	if err != nil {
		return 0, err
	}
	return d.Get("count").Int(), nil
}

type Reply struct {
	RPID    int64
	MID     int64
	Uname   string
	Level   int64
	Message string
	Like    int64
	Replies int64
	CTime   time.Time
}

type HotReplies struct {
	Total   int64
	Replies []Reply
}

// HotReplies pages through the hot comments of a video.
func (c *Client) HotReplies(ctx context.Context, aid int64, ps, pn int) (*HotReplies, error) {
	d, err := c.call(ctx, request{
		url: c.api("/x/v2/reply/hot"),
		query: url.Values{
			"type": {"1"},
			"oid":  {strconv.FormatInt(aid, 10)},
			"ps":   {strconv.Itoa(ps)},
			"pn":   {strconv.Itoa(pn)},
		},
		endpoint: "hot replies",
	})
	if err != nil {
		return nil, err
	}

	out := &HotReplies{Total: d.Get("page.acount").Int()}
	d.Get("replies").ForEach(func(_, r gjson.Result) bool {
		out.Replies = append(out.Replies, Reply{
			RPID:    r.Get("rpid").Int(),
			MID:     r.Get("mid").Int(),
			Uname:   r.Get("member.uname").String(),
			Level:   r.Get("member.level_info.current_level").Int(),
			Message: r.Get("content.message").String(),
			Like:    r.Get("like").Int(),
			Replies: r.Get("rcount").Int(),
			CTime:   timeOf(r.Get("ctime")),
		})
		return true
	})
	return out, nil
}

// AudioStream is one DASH audio representation.
type AudioStream struct {
	ID        int64
	URL       string
	BackupURL []string
	Bandwidth int64
	MimeType  string
	Codecs    string
}

// AudioStreams lists the DASH audio tracks of a video part, best first.
// Hi-res (flac) and dolby tracks are included when the account may use them.
func (c *Client) AudioStreams(ctx context.Context, bvid string, cid int64) ([]AudioStream, error) {
	params, _ := c.signer.SignValues(ctx, map[string]string{
		"bvid":  bvid,
		"cid":   strconv.FormatInt(cid, 10),
		"fnval": "16",
		"fnver": "0",
		"fourk": "1",
	}, c.auth)

	d, err := c.call(ctx, request{
		url:      c.api("/x/player/wbi/playurl"),
		query:    toValues(params),
		referer:  refererMain + "/video/" + bvid,
		endpoint: "playurl",
	})
	if err != nil {
		return nil, err
	}

	var streams []AudioStream
	collect := func(_, a gjson.Result) bool {
		s := AudioStream{
			ID:        a.Get("id").Int(),
			URL:       a.Get("baseUrl").String(),
			Bandwidth: a.Get("bandwidth").Int(),
			MimeType:  a.Get("mimeType").String(),
			Codecs:    a.Get("codecs").String(),
		}
		if s.URL == "" {
			s.URL = a.Get("base_url").String()
		}
		a.Get("backupUrl").ForEach(func(_, u gjson.Result) bool {
			s.BackupURL = append(s.BackupURL, u.String())
			return true
		})
		if s.URL != "" {
			streams = append(streams, s)
		}
		return true
	}
	for _, path := range []string{"dash.audio", "dash.flac.audio", "dash.dolby.audio"} {
		r := d.Get(path)
		switch {
		case r.IsArray():
			r.ForEach(collect)
		case r.IsObject():
			// flac carries a single object
			collect(gjson.Result{}, r)
		}
	}

	if len(streams) == 0 {
		return nil, ErrNotFound
	}
	sort.SliceStable(streams, func(i, j int) bool {
		return streams[i].Bandwidth > streams[j].Bandwidth
	})
	return streams, nil
}
