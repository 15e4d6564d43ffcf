package bili

import (
	"context"
	"net/url"
	"strconv"
)

// Like likes a video.
func (c *Client) Like(ctx context.Context, bvid string) error {
	csrf, err := c.csrf()
	if err != nil {
		return err
	}
	_, err = c.call(ctx, request{
		method:   "POST",
		url:      c.api("/x/web-interface/archive/like"),
		form:     url.Values{"bvid": {bvid}, "like": {"1"}, "csrf": {csrf}},
		referer:  refererMain + "/video/" + bvid,
		errors:   likeErrors,
		endpoint: "like",
	})
	return err
}

// Coin throws multiply (1 or 2) coins at a video, optionally liking it too.
// It reports whether the like went through.
func (c *Client) Coin(ctx context.Context, bvid string, multiply int, selectLike bool) (bool, error) {
	csrf, err := c.csrf()
	if err != nil {
		return false, err
	}
	like := "0"
	if selectLike {
		like = "1"
	}
	d, err := c.call(ctx, request{
		method: "POST",
		url:    c.api("/x/web-interface/coin/add"),
		form: url.Values{
			"bvid":        {bvid},
			"multiply":    {strconv.Itoa(multiply)},
			"select_like": {like},
			"csrf":        {csrf},
		},
		referer:  refererMain + "/video/" + bvid,
		errors:   coinErrors,
		endpoint: "coin",
	})
	if err != nil {
		return false, err
	}
	return d.Get("like").Bool(), nil
}

// Follow follows (act 1) a user.
func (c *Client) Follow(ctx context.Context, mid int64) error {
	return c.modifyRelation(ctx, mid, 1)
}

// Unfollow removes a follow (act 2).
func (c *Client) Unfollow(ctx context.Context, mid int64) error {
	return c.modifyRelation(ctx, mid, 2)
}

func (c *Client) modifyRelation(ctx context.Context, mid int64, act int) error {
	csrf, err := c.csrf()
	if err != nil {
		return err
	}
	_, err = c.call(ctx, request{
		method: "POST",
		url:    c.api("/x/relation/modify"),
		form: url.Values{
			"fid":    {strconv.FormatInt(mid, 10)},
			"act":    {strconv.Itoa(act)},
			"re_src": {"11"},
			"csrf":   {csrf},
		},
		referer:  refererSpace,
		endpoint: "relation modify",
	})
	return err
}

// Contract is the result of joining an uploader's old fan plan.
type Contract struct {
	AllowMessage bool
	InputTitle   string
	InputText    string
}

// JoinOldFan joins the "old fan" plan of an uploader. Following them first is required.
func (c *Client) JoinOldFan(ctx context.Context, mid int64) (*Contract, error) {
	csrf, err := c.csrf()
	if err != nil {
		return nil, err
	}
	d, err := c.call(ctx, request{
		method: "POST",
		url:    c.api("/x/v1/contract/add_contract"),
		form: url.Values{
			"aid":      {""},
			"up_mid":   {strconv.FormatInt(mid, 10)},
			"source":   {"4"},
			"scene":    {"105"},
			"platform": {"web"},
			"mobi_app": {"pc"},
			"csrf":     {csrf},
		},
		referer:  refererSpace,
		errors:   contractErrors,
		endpoint: "add contract",
	})
	if err != nil {
		return nil, err
	}
	return &Contract{
		AllowMessage: d.Get("allow_message").Bool(),
		InputTitle:   d.Get("input_title").String(),
		InputText:    d.Get("input_text").String(),
	}, nil
}

// SendOldFanMessage leaves a message for an uploader after joining their plan.
// It returns the toast the site shows on success.
func (c *Client) SendOldFanMessage(ctx context.Context, mid int64, content string) (string, error) {
	csrf, err := c.csrf()
	if err != nil {
		return "", err
	}
	d, err := c.call(ctx, request{
		method: "POST",
		url:    c.api("/x/v1/contract/add_message"),
		form: url.Values{
			"aid":     {""},
			"up_mid":  {strconv.FormatInt(mid, 10)},
			"source":  {"4"},
			"scene":   {"105"},
			"content": {content},
			"csrf":    {csrf},
		},
		referer:  refererSpace,
		errors:   contractErrors,
		endpoint: "add message",
	})
	if err != nil {
		return "", err
	}
	return d.Get("success_toast").String(), nil
}
