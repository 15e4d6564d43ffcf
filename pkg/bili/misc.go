package bili

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"
)

type IPInfo struct {
	Addr      string
	Country   string
	Province  string
	City      string
	ISP       string
	Longitude float64
	Latitude  float64
}

// IPZone reports where bilibili thinks the caller is.
func (c *Client) IPZone(ctx context.Context) (*IPInfo, error) {
	d, err := c.call(ctx, request{url: c.api("/x/web-interface/zone"), endpoint: "zone"})
	if err != nil {
		return nil, err
	}
	return parseIP(d), nil
}

// IPLookup geolocates an arbitrary address through the live ip service.
func (c *Client) IPLookup(ctx context.Context, ip string) (*IPInfo, error) {
	d, err := c.call(ctx, request{
		url:      c.live("/ip_service/v1/ip_service/get_ip_addr"),
		query:    url.Values{"ip": {ip}},
		referer:  refererLive,
		endpoint: "ip lookup",
	})
	if err != nil {
		return nil, err
	}
	info := parseIP(d)
	if info.Addr == "" {
		info.Addr = ip
	}
	return info, nil
}

func parseIP(d gjson.Result) *IPInfo {
	return &IPInfo{
		Addr:      d.Get("addr").String(),
		Country:   d.Get("country").String(),
		Province:  d.Get("province").String(),
		City:      d.Get("city").String(),
		ISP:       d.Get("isp").String(),
		Longitude: d.Get("longitude").Float(),
		Latitude:  d.Get("latitude").Float(),
	}
}
