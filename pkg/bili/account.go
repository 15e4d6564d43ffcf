package bili

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// MaxDailyCoinExp is the experience cap for coining videos; each coin is worth 10.
const MaxDailyCoinExp = 50

// UserInfo is the logged-in account as reported by the nav endpoint.
type UserInfo struct {
	MID            int64
	Name           string
	EmailVerified  bool
	MobileVerified bool
	Coins          float64
	BCoinBalance   float64
	Moral          int64
	Level          int64
	CurrentExp     int64
	NextExp        string
	VIPType        int64
	VIPActive      bool
	VIPDue         time.Time
	OfficialType   int64
	OfficialTitle  string
}

// VIPName maps the vip type to a label.
func (u *UserInfo) VIPName() string {
	switch u.VIPType {
	case 1:
		return "monthly"
	case 2:
		return "annual"
	default:
		return "none"
	}
}

// Nav fetches the logged-in user. An anonymous session yields an APIError with CodeNotLoggedIn.
func (c *Client) Nav(ctx context.Context) (*UserInfo, error) {
	d, err := c.call(ctx, request{url: c.api("/x/web-interface/nav"), endpoint: "nav"})
	if err != nil {
		return nil, err
	}
	u := &UserInfo{
		MID:            d.Get("mid").Int(),
		Name:           d.Get("uname").String(),
		EmailVerified:  d.Get("email_verified").Int() == 1,
		MobileVerified: d.Get("mobile_verified").Int() == 1,
		Coins:          d.Get("money").Float(),
		BCoinBalance:   d.Get("wallet.bcoin_balance").Float(),
		Moral:          d.Get("moral").Int(),
		Level:          d.Get("level_info.current_level").Int(),
		CurrentExp:     d.Get("level_info.current_exp").Int(),
		// "--" at max level
		NextExp:       d.Get("level_info.next_exp").String(),
		VIPType:       d.Get("vip.type").Int(),
		VIPActive:     d.Get("vip.status").Int() == 1,
		OfficialType:  d.Get("official.type").Int(),
		OfficialTitle: d.Get("official.title").String(),
	}
	if due := d.Get("vip.due_date").Int(); due > 0 {
		u.VIPDue = time.UnixMilli(due)
	}
	return u, nil
}

type RelationStat struct {
	Following int64
	Follower  int64
}

func (c *Client) RelationStat(ctx context.Context, mid int64) (*RelationStat, error) {
	d, err := c.call(ctx, request{
		url:      c.api("/x/relation/stat"),
		query:    url.Values{"vmid": {strconv.FormatInt(mid, 10)}},
		endpoint: "relation stat",
	})
	if err != nil {
		return nil, err
	}
	return &RelationStat{Following: d.Get("following").Int(), Follower: d.Get("follower").Int()}, nil
}

// CoinTodayExp is the experience already earned from coins today (0..50).
func (c *Client) CoinTodayExp(ctx context.Context) (int64, error) {
	d, err := c.call(ctx, request{url: c.api("/x/web-interface/coin/today/exp"), endpoint: "coin today exp"})
	if err != nil {
		return 0, err
	}
	return d.Int(), nil
}

// RemainingCoins is how many coins can still earn experience today.
func RemainingCoins(todayExp int64) int {
	n := (MaxDailyCoinExp - todayExp) / 10
	if n < 0 {
		return 0
	}
	return int(n)
}

// UpInfo is the public profile of an uploader.
type UpInfo struct {
	MID           int64
	Name          string
	Level         int64
	Sign          string
	OfficialTitle string
	LiveRoomID    int64
}

// Space fetches a user's public profile. The endpoint is WBI-guarded.
func (c *Client) Space(ctx context.Context, mid int64) (*UpInfo, error) {
	params, _ := c.signer.SignValues(ctx, map[string]string{"mid": strconv.FormatInt(mid, 10)}, c.auth)
	d, err := c.call(ctx, request{
		url:      c.api("/x/space/wbi/acc/info"),
		query:    toValues(params),
		referer:  refererSpace,
		endpoint: "space info",
	})
	if err != nil {
		return nil, err
	}
	return &UpInfo{
		MID:           d.Get("mid").Int(),
		Name:          d.Get("name").String(),
		Level:         d.Get("level").Int(),
		Sign:          d.Get("sign").String(),
		OfficialTitle: d.Get("official.title").String(),
		LiveRoomID:    d.Get("live_room.roomid").Int(),
	}, nil
}

// Relation attributes: 0 none, 1 whisper follow, 2 following, 6 mutual, 128 blocked.
type Relation struct {
	Attribute int64
}

func (r Relation) Following() bool {
	return r.Attribute == 1 || r.Attribute == 2 || r.Attribute == 6
}

func (c *Client) Relation(ctx context.Context, mid int64) (Relation, error) {
	d, err := c.call(ctx, request{
		url:      c.api("/x/relation"),
		query:    url.Values{"fid": {strconv.FormatInt(mid, 10)}},
		referer:  refererSpace,
		endpoint: "relation",
	})
	if err != nil {
		return Relation{}, err
	}
	return Relation{Attribute: d.Get("attribute").Int()}, nil
}

func toValues(m map[string]string) url.Values {
	v := make(url.Values, len(m))
	for k, s := range m {
		v.Set(k, s)
	}
	return v
}

func timeOf(r gjson.Result) time.Time {
	if r.Int() <= 0 {
		return time.Time{}
	}
	return time.Unix(r.Int(), 0)
}
