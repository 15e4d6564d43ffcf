package bili

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/utils"
	"github.com/tidwall/gjson"
)

// Search orders accepted by the video search endpoint.
var SearchOrders = []string{"totalrank", "click", "pubdate", "dm", "stow", "scores"}

type SearchResult struct {
	Title       string
	BVID        string
	AID         int64
	Author      string
	MID         int64
	Play        int64
	Favorites   int64
	Duration    string
	Description string
	PubDate     time.Time
	Tags        []string
}

type SearchPage struct {
	Page     int64
	NumPages int64
	Total    int64
	Results  []SearchResult
}

// SearchVideos runs a WBI-signed video search. A signing failure still sends
// the request unsigned and lets the server decide.
func (c *Client) SearchVideos(ctx context.Context, keyword, order string, page int) (*SearchPage, error) {
	if order == "" {
		order = "totalrank"
	}
	if !validOrder(order) {
		return nil, fmt.Errorf("unknown search order %q", order)
	}
	if page < 1 {
		page = 1
	}

	params, signed := c.signer.SignValues(ctx, map[string]string{
		"keyword":     keyword,
		"page":        strconv.Itoa(page),
		"order":       order,
		"search_type": "video",
		"tids":        "0",
		"duration":    "0",
	}, c.auth)
	if !signed {
		slog.Warn("Searching without a WBI signature")
	}

	d, err := c.call(ctx, request{
		url:      c.api("/x/web-interface/search/type"),
		query:    toValues(params),
		referer:  refererSearch,
		endpoint: "search",
	})
	if err != nil {
		return nil, err
	}

	out := &SearchPage{
		Page:     d.Get("page").Int(),
		NumPages: d.Get("numPages").Int(),
		Total:    d.Get("numResults").Int(),
	}
	d.Get("result").ForEach(func(_, r gjson.Result) bool {
		if t := r.Get("type").String(); t != "" && t != "video" {
			return true
		}
		res := SearchResult{
			Title:       utils.StripHTML(r.Get("title").String()),
			BVID:        r.Get("bvid").String(),
			AID:         r.Get("aid").Int(),
			Author:      r.Get("author").String(),
			MID:         r.Get("mid").Int(),
			Play:        r.Get("play").Int(),
			Favorites:   r.Get("favorites").Int(),
			Duration:    r.Get("duration").String(),
			Description: r.Get("description").String(),
			PubDate:     timeOf(r.Get("pubdate")),
		}
		for _, tag := range strings.Split(r.Get("tag").String(), ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				res.Tags = append(res.Tags, tag)
			}
		}
		out.Results = append(out.Results, res)
		return true
	})
	return out, nil
}

func validOrder(order string) bool {
	for _, o := range SearchOrders {
		if o == order {
			return true
		}
	}
	return false
}
