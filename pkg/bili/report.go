package bili

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// MinReportDescLen is the shortest description the appeal form accepts, in characters.
const MinReportDescLen = 10

var ErrDescTooShort = fmt.Errorf("report description must be at least %d characters", MinReportDescLen)

// ReportControl is an extra form field some report reasons require,
// e.g. the original video for a re-upload report.
type ReportControl struct {
	Title       string
	Placeholder string
	Required    bool
}

type ReportType struct {
	TID      int64
	Name     string
	Remark   string
	Controls []ReportControl
}

// NeedsAttach reports whether the type has a required control whose value goes into attach.
func (t ReportType) NeedsAttach() bool {
	for _, c := range t.Controls {
		if c.Required {
			return true
		}
	}
	return false
}

const defaultRemark = "为帮助审核人员更快处理，补充违规内容出现位置"

// DefaultReportTypes is used when the tags endpoint is unavailable.
var DefaultReportTypes = []ReportType{
	{TID: 2, Name: "违法违禁", Remark: defaultRemark},
	{TID: 3, Name: "色情低俗", Remark: defaultRemark},
	{TID: 5, Name: "赌博诈骗", Remark: defaultRemark},
	{TID: 6, Name: "血腥暴力", Remark: defaultRemark},
	{TID: 7, Name: "人身攻击", Remark: defaultRemark},
}

// ReportTypes lists the appeal reasons, sorted by tid.
func (c *Client) ReportTypes(ctx context.Context) ([]ReportType, error) {
	d, err := c.call(ctx, request{
		url:      c.api("/x/web-interface/archive/appeal/tags"),
		endpoint: "appeal tags",
	})
	if err != nil {
		return nil, err
	}

	var types []ReportType
	d.ForEach(func(_, item gjson.Result) bool {
		t := ReportType{
			TID:    item.Get("tid").Int(),
			Name:   item.Get("name").String(),
			Remark: item.Get("remark").String(),
		}
		item.Get("controls").ForEach(func(_, ctl gjson.Result) bool {
			t.Controls = append(t.Controls, ReportControl{
				Title:       ctl.Get("title").String(),
				Placeholder: ctl.Get("placeholder").String(),
				Required:    ctl.Get("required").Bool(),
			})
			return true
		})
		types = append(types, t)
		return true
	})
	sort.Slice(types, func(i, j int) bool { return types[i].TID < types[j].TID })
	return types, nil
}

// ReportTypesOrDefault falls back to DefaultReportTypes on any failure.
func (c *Client) ReportTypesOrDefault(ctx context.Context) ([]ReportType, bool) {
	types, err := c.ReportTypes(ctx)
	if err != nil || len(types) == 0 {
		return DefaultReportTypes, false
	}
	return types, true
}

type Report struct {
	AID  int64
	TID  int64
	Desc string
	// Attach is a control value or an image URL.
	Attach string
}

func (r Report) validate() error {
	if r.AID <= 0 {
		return errors.New("report needs a video aid")
	}
	if r.TID <= 0 {
		return errors.New("report needs a reason tid")
	}
	if utf8.RuneCountInString(r.Desc) < MinReportDescLen {
		return ErrDescTooShort
	}
	return nil
}

// SubmitReport files an appeal against a video. Each submission carries a
// fresh random 6-digit buid, both as header and as cookie.
func (c *Client) SubmitReport(ctx context.Context, r Report) error {
	if err := r.validate(); err != nil {
		return err
	}
	csrf, err := c.csrf()
	if err != nil {
		return err
	}

	form := url.Values{
		"csrf": {csrf},
		"aid":  {strconv.FormatInt(r.AID, 10)},
		"tid":  {strconv.FormatInt(r.TID, 10)},
		"desc": {r.Desc},
	}
	if r.Attach != "" {
		form.Set("attach", r.Attach)
	}

	buid := strconv.Itoa(100000 + rand.IntN(900000))
	_, err = c.call(ctx, request{
		method:   "POST",
		url:      c.api("/x/web-interface/appeal/v2/submit"),
		form:     form,
		headers:  map[string]string{"buid": buid},
		cookies:  map[string]string{"Buid": buid},
		errors:   reportErrors,
		endpoint: "appeal submit",
	})
	return err
}

// UploadReportImage stores a screenshot on the member host and returns its
// URL, which can be used as a report's Attach. The image travels as a base64
// data URL in the cover field.
func (c *Client) UploadReportImage(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("report image is empty")
	}
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	csrf, err := c.csrf()
	if err != nil {
		return "", err
	}

	d, err := c.call(ctx, request{
		method: "POST",
		url:    c.member + "/x/vu/web/cover/up",
		query:  url.Values{"ts": {strconv.FormatInt(c.now().UnixMilli(), 10)}},
		form: url.Values{
			"csrf":  {csrf},
			"cover": {"data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)},
		},
		errors:   imageUploadErrors,
		endpoint: "report image upload",
	})
	if err != nil {
		return "", err
	}
	u := d.Get("url").String()
	if u == "" {
		return "", fmt.Errorf("report image upload: %w", ErrNotFound)
	}
	return u, nil
}
