package chrome

import (
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestSessionCookies(t *testing.T) {
	in := []*network.Cookie{
		{Name: "SESSDATA", Value: "s", Domain: ".bilibili.com"},
		{Name: "bili_jct", Value: "j", Domain: ".bilibili.com"},
		{Name: "sid", Value: "x", Domain: "passport.bilibili.com"},
		{Name: "tracker", Value: "t", Domain: ".evilbilibili.com"},
		{Name: "empty", Value: "", Domain: ".bilibili.com"},
		{Name: "other", Value: "o", Domain: "example.com"},
	}
	got := sessionCookies(in)

	tests := []struct {
		name string
		want string
	}{
		{"SESSDATA", "s"},
		{"bili_jct", "j"},
		{"sid", "x"},
		{"tracker", ""},
		{"empty", ""},
		{"other", ""},
	}
	for _, tt := range tests {
		if got[tt.name] != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got[tt.name], tt.want)
		}
	}
	if len(got) != 3 {
		t.Errorf("got %d cookies, want 3: %v", len(got), got)
	}
}

func TestNewManagerExplicitPath(t *testing.T) {
	m, err := NewManager("/opt/chrome/chrome", "ua", false)
	if err != nil {
		t.Fatal(err)
	}
	if m.execPath != "/opt/chrome/chrome" || m.userAgent != "ua" {
		t.Errorf("manager = %+v", m)
	}
}
