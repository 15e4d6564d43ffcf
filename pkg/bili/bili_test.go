package bili

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/bugmaschine/bilitool/pkg/cookies"
	"github.com/bugmaschine/bilitool/pkg/wbi"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	testImgKey = "7cd084941338484aae1ad9425b84077c"
	testSubKey = "4932caff0ff746eab6f01bf08b70ac45"
	testWts    = 1702204169
)

var testAuth = cookies.Set{"SESSDATA": "sess", "bili_jct": "jct", "DedeUserID": "42"}

func navKeysHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, `{"code":0,"data":{"isLogin":true,"wbi_img":{"img_url":"https://i0.hdslb.com/bfs/wbi/%s.png","sub_url":"https://i0.hdslb.com/bfs/wbi/%s.png"}}}`, testImgKey, testSubKey)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(testAuth, Options{
		HTTPClient:  srv.Client(),
		APIBase:     srv.URL,
		LiveAPIBase: srv.URL,
		MemberBase:  srv.URL,
		Clock:       func() time.Time { return time.Unix(testWts, 0) },
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"known code", `{"code":-101,"message":"账号未登录","ttl":1}`, "account not logged in"},
		{"unknown code", `{"code":99,"message":"odd"}`, "odd"},
		{"msg field", `{"code":99,"msg":"房间不存在"}`, "房间不存在"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, mux)

			_, err := c.Nav(context.Background())
			if !errors.Is(err, ErrAPI) {
				t.Fatalf("expected ErrAPI, got %v", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestNotJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>blocked</html>")
	})
	c := newTestClient(t, mux)
	if _, err := c.Nav(context.Background()); err == nil || errors.Is(err, ErrAPI) {
		t.Fatalf("expected a non-API error, got %v", err)
	}
}

func TestContentEncoding(t *testing.T) {
	const body = `{"code":0,"data":{"mid":42,"uname":"tester","money":12.5,"vip":{"type":2,"status":1,"due_date":1700000000000}}}`

	tests := []struct {
		encoding string
		encode   func([]byte) []byte
	}{
		{"", func(b []byte) []byte { return b }},
		{"gzip", func(b []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			zw.Write(b)
			zw.Close()
			return buf.Bytes()
		}},
		{"br", func(b []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			bw.Write(b)
			bw.Close()
			return buf.Bytes()
		}},
	}
	for _, tt := range tests {
		t.Run("encoding="+tt.encoding, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.Write(tt.encode([]byte(body)))
			})
			c := newTestClient(t, mux)

			u, err := c.Nav(context.Background())
			if err != nil {
				t.Fatalf("Nav: %v", err)
			}
			if u.MID != 42 || u.Name != "tester" || u.Coins != 12.5 {
				t.Errorf("unexpected user %+v", u)
			}
			if u.VIPName() != "annual" || !u.VIPActive {
				t.Errorf("vip = %s active=%v", u.VIPName(), u.VIPActive)
			}
			if !u.VIPDue.Equal(time.UnixMilli(1700000000000)) {
				t.Errorf("VIPDue = %v", u.VIPDue)
			}
		})
	}
}

func TestVideoMemoized(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.URL.Query().Get("bvid"); got != "BV1xx411c7mD" {
			t.Errorf("bvid = %q", got)
		}
		io.WriteString(w, `{"code":0,"data":{"aid":170001,"bvid":"BV1xx411c7mD","cid":279786,"title":"t","duration":90,
			"owner":{"mid":7,"name":"up"},"stat":{"view":10,"like":3},
			"pages":[{"cid":279786,"page":1,"part":"p1","duration":90}]}}`)
	})
	c := newTestClient(t, mux)

	for range 3 {
		v, err := c.Video(context.Background(), "BV1xx411c7mD")
		if err != nil {
			t.Fatalf("Video: %v", err)
		}
		if v.AID != 170001 || v.Owner.MID != 7 || len(v.Pages) != 1 || v.Duration != 90*time.Second {
			t.Fatalf("unexpected video %+v", v)
		}
	}
	aid, err := c.BVToAV(context.Background(), "BV1xx411c7mD")
	if err != nil || aid != 170001 {
		t.Fatalf("BVToAV = %d, %v", aid, err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("view endpoint hit %d times, want 1", n)
	}
}

func TestCoinForm(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/coin/add", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		want := map[string]string{"bvid": "BV1xx411c7mD", "multiply": "1", "select_like": "1", "csrf": "jct"}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}
		if c, err := r.Cookie("SESSDATA"); err != nil || c.Value != "sess" {
			t.Errorf("SESSDATA cookie missing: %v", err)
		}
		if !strings.HasSuffix(r.Referer(), "/video/BV1xx411c7mD") {
			t.Errorf("referer = %q", r.Referer())
		}
		io.WriteString(w, `{"code":0,"data":{"like":true}}`)
	})
	c := newTestClient(t, mux)

	liked, err := c.Coin(context.Background(), "BV1xx411c7mD", 1, true)
	if err != nil {
		t.Fatalf("Coin: %v", err)
	}
	if !liked {
		t.Error("expected like to be reported")
	}
}

func TestCoinErrorTable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/coin/add", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":34005,"message":"超过投币上限啦~"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.Coin(context.Background(), "BV1xx411c7mD", 1, true)
	code, ok := Code(err)
	if !ok || code != 34005 {
		t.Fatalf("Code = %d, %v (err %v)", code, ok, err)
	}
	if !strings.Contains(err.Error(), "coin limit") {
		t.Errorf("error %q does not use the coin table", err)
	}
}

func TestInteractNeedsCSRF(t *testing.T) {
	c := New(cookies.Set{"SESSDATA": "sess"}, Options{APIBase: "http://127.0.0.1:0"})
	if err := c.Like(context.Background(), "BV1xx411c7mD"); !errors.Is(err, cookies.ErrNoCSRF) {
		t.Fatalf("expected ErrNoCSRF, got %v", err)
	}
}

func TestSearchSigned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", navKeysHandler)
	mux.HandleFunc("/x/web-interface/search/type", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("wts") != strconv.Itoa(testWts) {
			t.Errorf("wts = %q", q.Get("wts"))
		}
		params := map[string]string{}
		for k := range q {
			if k != "wts" && k != "w_rid" {
				params[k] = q.Get(k)
			}
		}
		_, want := wbi.Encode(params, wbi.MixinKey(testImgKey, testSubKey), testWts)
		if got := q.Get("w_rid"); got != want {
			t.Errorf("w_rid = %q, want %q", got, want)
		}
		if q.Get("keyword") != "a,b/c:d" || q.Get("search_type") != "video" {
			t.Errorf("unexpected query %v", q)
		}
		io.WriteString(w, `{"code":0,"data":{"page":1,"numPages":3,"numResults":60,"result":[
			{"type":"video","title":"<em class=\"keyword\">a</em> &amp; b","bvid":"BV1xx411c7mD","aid":1,"author":"up","mid":7,"play":100,"tag":"x, y,","pubdate":1700000000},
			{"type":"ketang","title":"course"}]}}`)
	})
	c := newTestClient(t, mux)

	page, err := c.SearchVideos(context.Background(), "a,b/c:d", "", 1)
	if err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}
	if len(page.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(page.Results))
	}
	res := page.Results[0]
	if res.Title != "a & b" {
		t.Errorf("Title = %q", res.Title)
	}
	if len(res.Tags) != 2 || res.Tags[1] != "y" {
		t.Errorf("Tags = %q", res.Tags)
	}
	if page.NumPages != 3 {
		t.Errorf("NumPages = %d", page.NumPages)
	}
}

func TestSearchUnsignedFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/x/web-interface/search/type", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("w_rid") {
			t.Error("request should be unsigned")
		}
		io.WriteString(w, `{"code":0,"data":{"result":[]}}`)
	})
	c := newTestClient(t, mux)

	if _, err := c.SearchVideos(context.Background(), "x", "click", 1); err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}
	if _, err := c.SearchVideos(context.Background(), "x", "random", 1); err == nil {
		t.Error("expected an error for an unknown order")
	}
}

func TestSubmitReport(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/appeal/v2/submit", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		buid := r.Header.Get("buid")
		if n, err := strconv.Atoi(buid); err != nil || n < 100000 || n > 999999 {
			t.Errorf("buid header = %q", buid)
		}
		if c, err := r.Cookie("Buid"); err != nil || c.Value != buid {
			t.Errorf("Buid cookie does not match header %q: %v", buid, err)
		}
		r.ParseForm()
		if r.PostForm.Get("tid") != "3" || r.PostForm.Get("aid") != "99" || r.PostForm.Get("attach") != "" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		io.WriteString(w, `{"code":0}`)
	})
	c := newTestClient(t, mux)

	err := c.SubmitReport(context.Background(), Report{AID: 99, TID: 3, Desc: "short"})
	if !errors.Is(err, ErrDescTooShort) {
		t.Fatalf("expected ErrDescTooShort, got %v", err)
	}
	// ten characters, not ten bytes
	if err := c.SubmitReport(context.Background(), Report{AID: 99, TID: 3, Desc: "一二三四五六七八九十"}); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("submit hit %d times, want 1", hits.Load())
	}
}

func TestUploadReportImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name    string
		body    string
		wantURL string
		wantErr string
	}{
		{"ok", `{"code":0,"data":{"url":"https://i0.hdslb.com/bfs/archive/shot.png"}}`, "https://i0.hdslb.com/bfs/archive/shot.png", ""},
		{"not logged in", `{"code":-101,"message":"账号未登录"}`, "", "account not logged in, cannot upload the image"},
		{"csrf", `{"code":-111,"message":"csrf 校验失败"}`, "", "csrf check failed, cannot upload the image"},
		{"no url", `{"code":0,"data":{}}`, "", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/x/vu/web/cover/up", func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				if ts := r.URL.Query().Get("ts"); ts != strconv.FormatInt(testWts*1000, 10) {
					t.Errorf("ts = %q", ts)
				}
				r.ParseForm()
				if r.PostForm.Get("csrf") != "jct" {
					t.Errorf("csrf = %q", r.PostForm.Get("csrf"))
				}
				if cover := r.PostForm.Get("cover"); !strings.HasPrefix(cover, "data:image/png;base64,") {
					t.Errorf("cover = %q", cover)
				}
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, mux)

			got, err := c.UploadReportImage(context.Background(), png)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.wantURL {
				t.Errorf("url = %q, want %q", got, tt.wantURL)
			}
		})
	}
}

func TestWatchLiveHistory(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/xlive/web-room/v1/dM/gethistory", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("roomid") != "100" {
			t.Errorf("roomid = %q", r.URL.Query().Get("roomid"))
		}
		switch polls.Add(1) {
		case 1:
			io.WriteString(w, `{"code":0,"data":{"admin":[{"timeline":"10:00:00","nickname":"mod","uid":1,"text":"welcome"}],
				"room":[{"timeline":"10:00:01","nickname":"a","uid":2,"text":"hi","medal":[3,"fan"]}]}}`)
		case 2:
			io.WriteString(w, `{"code":-400,"msg":"busy"}`)
		default:
			io.WriteString(w, `{"code":0,"data":{"admin":[],
				"room":[{"timeline":"10:00:01","nickname":"a","uid":2,"text":"hi","medal":[3,"fan"]},
				{"timeline":"10:00:05","nickname":"b","uid":3,"text":"hi"}]}}`)
		}
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	err := c.WatchLiveHistory(ctx, 100, 5*time.Millisecond, func(m LiveMessage) error {
		got = append(got, m.Nickname+":"+m.Text+":"+m.Medal)
		if len(got) == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	want := []string{"mod:welcome:", "a:hi:fan 3", "b:hi:"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", got, want)
	}
	if polls.Load() < 3 {
		t.Errorf("polled %d times, want at least 3", polls.Load())
	}
}

func TestWatchLiveHistoryEmitError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xlive/web-room/v1/dM/gethistory", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"room":[{"timeline":"10:00:01","nickname":"a","text":"hi"}]}}`)
	})
	c := newTestClient(t, mux)

	stop := errors.New("disk full")
	err := c.WatchLiveHistory(context.Background(), 100, time.Millisecond, func(LiveMessage) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected emit error, got %v", err)
	}
}

func TestReportTypesFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/archive/appeal/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	types, ok := c.ReportTypesOrDefault(context.Background())
	if ok || len(types) != 5 || types[0].TID != 2 {
		t.Fatalf("expected defaults, got %v %v", types, ok)
	}
}

func TestReportTypesControls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/archive/appeal/tags", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":[
			{"tid":52,"name":"转载/自制错误","remark":"r","controls":[{"title":"原视频","placeholder":"BV","required":true}]},
			{"tid":2,"name":"违法违禁","remark":"r","controls":null}]}`)
	})
	c := newTestClient(t, mux)

	types, err := c.ReportTypes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if types[0].TID != 2 || types[0].NeedsAttach() {
		t.Errorf("first type = %+v", types[0])
	}
	if !types[1].NeedsAttach() {
		t.Errorf("tid 52 should need attach")
	}
}

func appendElem(b []byte, id int64, progressMs int32, content string) []byte {
	var e []byte
	e = protowire.AppendTag(e, 1, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(id))
	e = protowire.AppendTag(e, 2, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(progressMs))
	e = protowire.AppendTag(e, 3, protowire.VarintType)
	e = protowire.AppendVarint(e, 5)
	e = protowire.AppendTag(e, 5, protowire.VarintType)
	e = protowire.AppendVarint(e, 0xff0000)
	e = protowire.AppendTag(e, 7, protowire.BytesType)
	e = protowire.AppendString(e, content)
	e = protowire.AppendTag(e, 8, protowire.VarintType)
	e = protowire.AppendVarint(e, 1700000000)
	// unknown field
	e = protowire.AppendTag(e, 99, protowire.Fixed32Type)
	e = protowire.AppendFixed32(e, 1)

	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, e)
}

func TestDecodeSegment(t *testing.T) {
	var seg []byte
	seg = appendElem(seg, 1001, 65000, "hello")
	seg = appendElem(seg, 1002, 0, "弹幕")
	// a state field after the elems
	seg = protowire.AppendTag(seg, 2, protowire.VarintType)
	seg = protowire.AppendVarint(seg, 1)

	got, err := DecodeSegment(seg)
	if err != nil {
		t.Fatalf("DecodeSegment: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d elems, want 2", len(got))
	}
	d := got[0]
	if d.ID != 1001 || d.Progress != 65*time.Second || d.Content != "hello" {
		t.Errorf("unexpected elem %+v", d)
	}
	if d.ModeName() != "top" || d.HexColor() != "#ff0000" {
		t.Errorf("mode %s color %s", d.ModeName(), d.HexColor())
	}
	if got[1].Content != "弹幕" {
		t.Errorf("second content = %q", got[1].Content)
	}

	if _, err := DecodeSegment(seg[:len(seg)-3]); err == nil {
		t.Error("expected an error for a truncated segment")
	}
}

func TestDanmakusJSONError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/dm/web/seg.so", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("segment_index") != "1" || r.URL.Query().Get("oid") != "279786" {
			t.Errorf("unexpected query %v", r.URL.Query())
		}
		io.WriteString(w, `{"code":-404,"message":"啥都木有"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.Danmakus(context.Background(), 279786, 0)
	if code, _ := Code(err); code != CodeNoSuchItem {
		t.Fatalf("expected -404, got %v", err)
	}
}

func TestPostDanmaku(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/dm/post", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f := r.PostForm
		if f.Get("oid") != "279786" || f.Get("progress") != "1500" || f.Get("color") != "16777215" || f.Get("fontsize") != "25" || f.Get("mode") != "1" {
			t.Errorf("unexpected form %v", f)
		}
		if f.Get("rnd") != strconv.FormatInt(time.Unix(testWts, 0).UnixMicro(), 10) {
			t.Errorf("rnd = %q", f.Get("rnd"))
		}
		io.WriteString(w, `{"code":0,"data":{"dmid":123456789,"dmid_str":"123456789"}}`)
	})
	c := newTestClient(t, mux)

	dmid, err := c.PostDanmaku(context.Background(), "BV1xx411c7mD", 279786, "hi", 1500*time.Millisecond, DanmakuStyle{})
	if err != nil {
		t.Fatalf("PostDanmaku: %v", err)
	}
	if dmid != 123456789 {
		t.Errorf("dmid = %d", dmid)
	}
}

func TestStatusByUIDsSendsAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/room/v1/Room/get_status_info_by_uids", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["uids[]"]; len(got) != 2 {
			t.Errorf("uids[] = %v", got)
		}
		io.WriteString(w, `{"code":0,"msg":"success","data":{
			"1":{"uname":"a","title":"t1","room_id":100,"live_status":1,"live_time":1700000000},
			"2":{"uname":"b","title":"t2","room_id":200,"live_status":0,"live_time":0}}}`)
	})
	c := newTestClient(t, mux)

	rooms, err := c.StatusByUIDs(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if rooms[1].RoomID != 100 || LiveStatusName(rooms[1].LiveStatus) != "live" || rooms[1].LiveTime == "" {
		t.Errorf("room 1 = %+v", rooms[1])
	}
	if rooms[2].LiveTime != "" {
		t.Errorf("offline room has live time %q", rooms[2].LiveTime)
	}
}

func TestRoomPlayInfoHLS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xlive/web-room/v2/index/getRoomPlayInfo", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"data":{"room_id":100,"live_status":1,"playurl_info":{"playurl":{
			"g_qn_desc":[{"qn":10000,"desc":"原画"}],
			"stream":[
				{"protocol_name":"http_stream","format":[{"format_name":"flv","codec":[{"codec_name":"avc","current_qn":10000,"base_url":"/live.flv","url_info":[{"host":"https://flv.example","extra":"?a=1"}]}]}]},
				{"protocol_name":"http_hls","format":[
					{"format_name":"fmp4","codec":[{"codec_name":"hevc","current_qn":10000,"base_url":"/h.m3u8","url_info":[{"host":"https://fmp4.example","extra":""}]}]},
					{"format_name":"ts","codec":[{"codec_name":"avc","current_qn":10000,"base_url":"/t.m3u8","url_info":[{"host":"https://ts.example","extra":"?b=2"}]}]}]}]}}}}`)
	})
	c := newTestClient(t, mux)

	info, err := c.RoomPlayInfo(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Streams) != 3 || info.Qualities[10000] != "原画" {
		t.Fatalf("unexpected play info %+v", info)
	}
	u, ok := info.HLS()
	if !ok || u != "https://ts.example/t.m3u8?b=2" {
		t.Errorf("HLS = %q, %v", u, ok)
	}
}

func TestRemainingCoins(t *testing.T) {
	tests := []struct {
		exp  int64
		want int
	}{
		{0, 5},
		{20, 3},
		{45, 0},
		{50, 0},
		{60, 0},
	}
	for _, tt := range tests {
		if got := RemainingCoins(tt.exp); got != tt.want {
			t.Errorf("RemainingCoins(%d) = %d, want %d", tt.exp, got, tt.want)
		}
	}
}
