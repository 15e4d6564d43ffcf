package bili

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// LiveStatusName labels a live_status value.
func LiveStatusName(status int64) string {
	switch status {
	case 0:
		return "offline"
	case 1:
		return "live"
	case 2:
		return "rotating"
	default:
		return "unknown"
	}
}

// Room is the union of the fields the room endpoints report. Each endpoint
// fills the subset it knows about.
type Room struct {
	RoomID         int64
	ShortID        int64
	UID            int64
	Uname          string
	Title          string
	LiveStatus     int64
	LiveTime       string
	Online         int64
	Attention      int64
	AreaName       string
	ParentAreaName string
	Description    string
	Tags           string
	Cover          string
	URL            string
	HotWords       []string
	// room_init only
	Hidden    bool
	Locked    bool
	Portrait  bool
	Encrypted bool
}

func (c *Client) liveCall(ctx context.Context, path, endpoint string, q url.Values) (gjson.Result, error) {
	return c.call(ctx, request{
		url:      c.live(path),
		query:    q,
		referer:  refererLive,
		endpoint: endpoint,
	})
}

func roomID(id int64) url.Values {
	return url.Values{"room_id": {strconv.FormatInt(id, 10)}}
}

// RoomInfo is room/v1/Room/get_info.
func (c *Client) RoomInfo(ctx context.Context, id int64) (*Room, error) {
	d, err := c.liveCall(ctx, "/room/v1/Room/get_info", "room info", roomID(id))
	if err != nil {
		return nil, err
	}
	r := parseRoom(d)
	d.Get("hot_words").ForEach(func(_, w gjson.Result) bool {
		r.HotWords = append(r.HotWords, w.String())
		return true
	})
	return r, nil
}

// RoomInit resolves short ids to the real room and reports its flags.
func (c *Client) RoomInit(ctx context.Context, id int64) (*Room, error) {
	d, err := c.liveCall(ctx, "/room/v1/Room/room_init", "room init", url.Values{"id": {strconv.FormatInt(id, 10)}})
	if err != nil {
		return nil, err
	}
	r := parseRoom(d)
	r.Hidden = d.Get("is_hidden").Bool()
	r.Locked = d.Get("is_locked").Bool()
	r.Portrait = d.Get("is_portrait").Bool()
	r.Encrypted = d.Get("encrypted").Bool()
	return r, nil
}

// RoomBaseInfo fetches several rooms at once, keyed by the requested id.
func (c *Client) RoomBaseInfo(ctx context.Context, ids ...int64) (map[int64]*Room, error) {
	q := url.Values{"req_biz": {"web_room_componet"}}
	for _, id := range ids {
		q.Add("room_ids", strconv.FormatInt(id, 10))
	}
	d, err := c.liveCall(ctx, "/xlive/web-room/v1/index/getRoomBaseInfo", "room base info", q)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*Room)
	d.Get("by_room_ids").ForEach(func(k, v gjson.Result) bool {
		r := parseRoom(v)
		r.URL = v.Get("live_url").String()
		out[k.Int()] = r
		return true
	})
	return out, nil
}

// StatusByUIDs looks up the live rooms of several uploaders.
func (c *Client) StatusByUIDs(ctx context.Context, uids ...int64) (map[int64]*Room, error) {
	q := url.Values{}
	for _, uid := range uids {
		q.Add("uids[]", strconv.FormatInt(uid, 10))
	}
	d, err := c.liveCall(ctx, "/room/v1/Room/get_status_info_by_uids", "status by uids", q)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*Room)
	d.ForEach(func(k, v gjson.Result) bool {
		r := parseRoom(v)
		r.UID = k.Int()
		r.Cover = v.Get("cover_from_user").String()
		r.AreaName = v.Get("area_v2_name").String()
		r.ParentAreaName = v.Get("area_v2_parent_name").String()
		out[r.UID] = r
		return true
	})
	return out, nil
}

// UserLiveStatus is the room of a single user, via getRoomInfoOld.
func (c *Client) UserLiveStatus(ctx context.Context, mid int64) (*Room, error) {
	d, err := c.liveCall(ctx, "/room/v1/Room/getRoomInfoOld", "room info old", url.Values{"mid": {strconv.FormatInt(mid, 10)}})
	if err != nil {
		return nil, err
	}
	if d.Get("roomStatus").Int() == 0 {
		return nil, ErrNotFound
	}
	r := &Room{
		RoomID:     d.Get("roomid").Int(),
		UID:        mid,
		Title:      d.Get("title").String(),
		LiveStatus: d.Get("live_status").Int(),
		Online:     d.Get("online").Int(),
		Cover:      d.Get("cover").String(),
		URL:        d.Get("url").String(),
	}
	if r.LiveStatus == 0 && d.Get("roundStatus").Int() == 1 {
		r.LiveStatus = 2
	}
	return r, nil
}

func parseRoom(d gjson.Result) *Room {
	r := &Room{
		RoomID:         d.Get("room_id").Int(),
		ShortID:        d.Get("short_id").Int(),
		UID:            d.Get("uid").Int(),
		Uname:          d.Get("uname").String(),
		Title:          d.Get("title").String(),
		LiveStatus:     d.Get("live_status").Int(),
		Online:         d.Get("online").Int(),
		Attention:      d.Get("attention").Int(),
		AreaName:       d.Get("area_name").String(),
		ParentAreaName: d.Get("parent_area_name").String(),
		Description:    d.Get("description").String(),
		Tags:           d.Get("tags").String(),
		Cover:          d.Get("cover").String(),
	}
	// live_time is a unix number on some endpoints and a datetime string on others.
	switch lt := d.Get("live_time"); lt.Type {
	case gjson.Number:
		if lt.Int() > 0 {
			r.LiveTime = time.Unix(lt.Int(), 0).Format(time.DateTime)
		}
	case gjson.String:
		if s := lt.String(); s != "0000-00-00 00:00:00" {
			r.LiveTime = s
		}
	}
	return r
}

type Anchor struct {
	UID         int64
	Uname       string
	Face        string
	Gender      int64
	Level       int64
	Followers   int64
	RoomID      int64
	MedalName   string
	GloryCount  int64
	RoomNews    string
	Official    string
	Platform    int64
	MobileBound bool
}

// AnchorInfo is live_user/v1/Master/info.
func (c *Client) AnchorInfo(ctx context.Context, uid int64) (*Anchor, error) {
	d, err := c.liveCall(ctx, "/live_user/v1/Master/info", "master info", url.Values{"uid": {strconv.FormatInt(uid, 10)}})
	if err != nil {
		return nil, err
	}
	return &Anchor{
		UID:        d.Get("info.uid").Int(),
		Uname:      d.Get("info.uname").String(),
		Face:       d.Get("info.face").String(),
		Gender:     d.Get("info.gender").Int(),
		Official:   d.Get("info.official_verify.desc").String(),
		Level:      d.Get("exp.master_level.level").Int(),
		Followers:  d.Get("follower_num").Int(),
		RoomID:     d.Get("room_id").Int(),
		MedalName:  d.Get("medal_name").String(),
		GloryCount: d.Get("glory_count").Int(),
		RoomNews:   d.Get("room_news.content").String(),
	}, nil
}

// AnchorInRoom reports the anchor of a room.
func (c *Client) AnchorInRoom(ctx context.Context, room int64) (*Anchor, error) {
	d, err := c.liveCall(ctx, "/live_user/v1/UserInfo/get_anchor_in_room", "anchor in room", url.Values{"roomid": {strconv.FormatInt(room, 10)}})
	if err != nil {
		return nil, err
	}
	return &Anchor{
		UID:         d.Get("info.uid").Int(),
		Uname:       d.Get("info.uname").String(),
		Face:        d.Get("info.face").String(),
		Platform:    d.Get("info.platform_user_level").Int(),
		MobileBound: d.Get("info.mobile_verify").Int() == 1,
		Level:       d.Get("level.master_level.level").Int(),
		RoomID:      room,
	}, nil
}

type LiveMessage struct {
	Time     string
	Nickname string
	UID      int64
	Medal    string
	Text     string
}

// LiveHistory returns the recent chat of a room: admin messages then viewers.
func (c *Client) LiveHistory(ctx context.Context, room int64) (admin, viewers []LiveMessage, err error) {
	d, err := c.liveCall(ctx, "/xlive/web-room/v1/dM/gethistory", "danmaku history", url.Values{"roomid": {strconv.FormatInt(room, 10)}})
	if err != nil {
		return nil, nil, err
	}
	collect := func(r gjson.Result) []LiveMessage {
		var out []LiveMessage
		r.ForEach(func(_, m gjson.Result) bool {
			msg := LiveMessage{
				Time:     m.Get("timeline").String(),
				Nickname: m.Get("nickname").String(),
				UID:      m.Get("uid").Int(),
				Text:     m.Get("text").String(),
			}
			// medal is [level, name, ...]
			if medal := m.Get("medal"); medal.IsArray() && len(medal.Array()) > 1 {
				msg.Medal = medal.Array()[1].String() + " " + medal.Array()[0].String()
			}
			out = append(out, msg)
			return true
		})
		return out
	}
	return collect(d.Get("admin")), collect(d.Get("room")), nil
}

// WatchLiveHistory polls the chat of a room every interval until ctx is done
// and calls emit once for each message it has not seen before. Messages are
// keyed on time, nickname and text. A failed poll is logged and retried on the
// next tick; an emit error ends the watch. The returned error is ctx.Err()
// unless emit failed.
func (c *Client) WatchLiveHistory(ctx context.Context, room int64, interval time.Duration, emit func(LiveMessage) error) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	seen := make(map[string]struct{})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		admin, viewers, err := c.LiveHistory(ctx, room)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Could not fetch live chat", "room", room, "error", err)
		}
		for _, m := range append(admin, viewers...) {
			key := m.Time + "_" + m.Nickname + "_" + m.Text
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if err := emit(m); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LiveStream is one playable variant of a live room.
type LiveStream struct {
	Protocol string // http_stream or http_hls
	Format   string // flv, ts, fmp4
	Codec    string // avc, hevc
	Qn       int64
	URLs     []string
}

type PlayInfo struct {
	RoomID     int64
	LiveStatus int64
	Qualities  map[int64]string
	Streams    []LiveStream
}

// RoomPlayInfo lists the stream URLs of a live room at the best quality.
func (c *Client) RoomPlayInfo(ctx context.Context, room int64) (*PlayInfo, error) {
	q := url.Values{
		"room_id":  {strconv.FormatInt(room, 10)},
		"protocol": {"0,1"},
		"format":   {"0,1,2"},
		"codec":    {"0,1"},
		"qn":       {"10000"},
		"platform": {"web"},
		"ptype":    {"8"},
		"dolby":    {"5"},
		"panorama": {"1"},
	}
	d, err := c.liveCall(ctx, "/xlive/web-room/v2/index/getRoomPlayInfo", "room play info", q)
	if err != nil {
		return nil, err
	}

	info := &PlayInfo{
		RoomID:     d.Get("room_id").Int(),
		LiveStatus: d.Get("live_status").Int(),
		Qualities:  make(map[int64]string),
	}
	pu := d.Get("playurl_info.playurl")
	pu.Get("g_qn_desc").ForEach(func(_, q gjson.Result) bool {
		info.Qualities[q.Get("qn").Int()] = q.Get("desc").String()
		return true
	})
	pu.Get("stream").ForEach(func(_, s gjson.Result) bool {
		proto := s.Get("protocol_name").String()
		s.Get("format").ForEach(func(_, f gjson.Result) bool {
			format := f.Get("format_name").String()
			f.Get("codec").ForEach(func(_, cd gjson.Result) bool {
				ls := LiveStream{
					Protocol: proto,
					Format:   format,
					Codec:    cd.Get("codec_name").String(),
					Qn:       cd.Get("current_qn").Int(),
				}
				base := cd.Get("base_url").String()
				cd.Get("url_info").ForEach(func(_, u gjson.Result) bool {
					ls.URLs = append(ls.URLs, u.Get("host").String()+base+u.Get("extra").String())
					return true
				})
				info.Streams = append(info.Streams, ls)
				return true
			})
			return true
		})
		return true
	})
	return info, nil
}

// HLS picks the best HLS variant, preferring ts over fmp4 and avc over hevc.
func (p *PlayInfo) HLS() (string, bool) {
	var cands []LiveStream
	for _, s := range p.Streams {
		if s.Protocol == "http_hls" && len(s.URLs) > 0 {
			cands = append(cands, s)
		}
	}
	if len(cands) == 0 {
		return "", false
	}
	rank := func(s LiveStream) int {
		n := 0
		if s.Format == "ts" {
			n += 2
		}
		if strings.EqualFold(s.Codec, "avc") {
			n++
		}
		return n
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Qn != cands[j].Qn {
			return cands[i].Qn > cands[j].Qn
		}
		return rank(cands[i]) > rank(cands[j])
	})
	return cands[0].URLs[0], true
}
