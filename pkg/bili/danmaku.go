package bili

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protowire"
)

// Danmaku is one DanmakuElem of a seg.so segment.
type Danmaku struct {
	ID       int64
	Progress time.Duration
	Mode     int32
	FontSize int32
	Color    uint32
	MidHash  string
	Content  string
	CTime    time.Time
	Weight   int32
	Action   string
	Pool     int32
	IDStr    string
	Attr     int32
}

// ModeName labels a danmaku mode.
func (d Danmaku) ModeName() string {
	switch d.Mode {
	case 1, 2, 3:
		return "scrolling"
	case 4:
		return "bottom"
	case 5:
		return "top"
	case 6:
		return "reverse"
	case 7:
		return "advanced"
	case 8:
		return "code"
	case 9:
		return "bas"
	default:
		return "unknown"
	}
}

// HexColor renders the color as #rrggbb.
func (d Danmaku) HexColor() string {
	return fmt.Sprintf("#%06x", d.Color)
}

// Danmakus fetches one six-minute segment (1-based) of a video part's danmaku.
func (c *Client) Danmakus(ctx context.Context, cid int64, segment int) ([]Danmaku, error) {
	if segment < 1 {
		segment = 1
	}
	body, err := c.raw(ctx, request{
		url: c.api("/x/v2/dm/web/seg.so"),
		query: url.Values{
			"type":          {"1"},
			"oid":           {strconv.FormatInt(cid, 10)},
			"segment_index": {strconv.Itoa(segment)},
		},
		endpoint: "danmaku segment",
	})
	if err != nil {
		return nil, err
	}
	// errors come back as a json envelope instead of protobuf
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		if code := res.Get("code").Int(); res.IsObject() && code != 0 {
			return nil, &APIError{Endpoint: "danmaku segment", Code: code, Message: res.Get("message").String()}
		}
	}
	return DecodeSegment(body)
}

var errMalformed = errors.New("malformed danmaku segment")

// DecodeSegment parses a DmSegMobileReply message.
func DecodeSegment(b []byte) ([]Danmaku, error) {
	var out []Danmaku
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			elem, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
			}
			d, err := decodeElem(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return out, nil
}

func decodeElem(b []byte) (Danmaku, error) {
	var d Danmaku
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case 1:
				d.ID = int64(v)
			case 2:
				d.Progress = time.Duration(int32(v)) * time.Millisecond
			case 3:
				d.Mode = int32(v)
			case 4:
				d.FontSize = int32(v)
			case 5:
				d.Color = uint32(v)
			case 8:
				d.CTime = time.Unix(int64(v), 0)
			case 9:
				d.Weight = int32(v)
			case 11:
				d.Pool = int32(v)
			case 13:
				d.Attr = int32(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case 6:
				d.MidHash = string(v)
			case 7:
				d.Content = string(v)
			case 10:
				d.Action = string(v)
			case 12:
				d.IDStr = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("%w: %v", errMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return d, nil
}

// DanmakuStyle are the optional knobs of PostDanmaku. Zero values pick white,
// size 25, scrolling.
type DanmakuStyle struct {
	Color    uint32
	FontSize int
	Mode     int
}

// PostDanmaku sends a danmaku at progress into a video part and returns its dmid.
func (c *Client) PostDanmaku(ctx context.Context, bvid string, cid int64, msg string, progress time.Duration, style DanmakuStyle) (int64, error) {
	csrf, err := c.csrf()
	if err != nil {
		return 0, err
	}
	if style.Color == 0 {
		style.Color = 0xffffff
	}
	if style.FontSize == 0 {
		style.FontSize = 25
	}
	if style.Mode == 0 {
		style.Mode = 1
	}

	d, err := c.call(ctx, request{
		method: "POST",
		url:    c.api("/x/v2/dm/post"),
		form: url.Values{
			"type":     {"1"},
			"oid":      {strconv.FormatInt(cid, 10)},
			"msg":      {msg},
			"bvid":     {bvid},
			"progress": {strconv.FormatInt(progress.Milliseconds(), 10)},
			"color":    {strconv.FormatUint(uint64(style.Color), 10)},
			"fontsize": {strconv.Itoa(style.FontSize)},
			"pool":     {"0"},
			"mode":     {strconv.Itoa(style.Mode)},
			"rnd":      {strconv.FormatInt(c.now().UnixMicro(), 10)},
			"csrf":     {csrf},
		},
		referer:  refererMain + "/video/" + bvid,
		errors:   danmakuPostErrors,
		endpoint: "danmaku post",
	})
	if err != nil {
		return 0, err
	}
	return d.Get("dmid").Int(), nil
}

// LikeDanmaku thumbs up a danmaku of video part cid.
func (c *Client) LikeDanmaku(ctx context.Context, dmid, cid int64) error {
	csrf, err := c.csrf()
	if err != nil {
		return err
	}
	_, err = c.call(ctx, request{
		method: "POST",
		url:    c.api("/x/v2/dm/thumbup/add"),
		form: url.Values{
			"dmid":     {strconv.FormatInt(dmid, 10)},
			"oid":      {strconv.FormatInt(cid, 10)},
			"op":       {"1"},
			"platform": {"web_player"},
			"csrf":     {csrf},
		},
		errors:   danmakuLikeErrors,
		endpoint: "danmaku like",
	})
	return err
}
