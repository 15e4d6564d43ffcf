package cookies

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
)

const (
	Domain        = ".bilibili.com"
	netscapeMagic = "# Netscape HTTP Cookie File"
	httpOnlyMark  = "#HttpOnly_"
)

// DefaultFiles are looked up in order when no cookie file is given.
var DefaultFiles = []string{"cookies.txt", "bilibili_cookies.json"}

// Required are the cookies every authenticated call needs. bili_jct doubles as CSRF token.
var Required = []string{"SESSDATA", "bili_jct", "DedeUserID"}

var (
	ErrNotFound = errors.New("no cookie file found")
	ErrNoCSRF   = errors.New("bili_jct cookie missing, cannot build csrf token")
)

// MissingCookiesError lists required cookies absent from a Set.
type MissingCookiesError struct {
	Missing []string
}

func (e *MissingCookiesError) Error() string {
	return "missing required cookies: " + strings.Join(e.Missing, ", ")
}

// Format is the on-disk layout a cookie file was read from.
type Format int

const (
	FormatRaw Format = iota
	FormatJSONArray
	FormatJSONObject
	FormatNetscape
)

func (f Format) String() string {
	switch f {
	case FormatJSONArray:
		return "browser json"
	case FormatJSONObject:
		return "json"
	case FormatNetscape:
		return "netscape"
	default:
		return "cookie string"
	}
}

// Set maps cookie name to value.
type Set map[string]string

// Parse detects the format of data and reads the cookies in it.
func Parse(data []byte) (Set, Format) {
	raw := strings.TrimPrefix(string(data), "\ufeff")
	content := strings.TrimSpace(raw)

	if gjson.Valid(content) {
		parsed := gjson.Parse(content)
		switch {
		case parsed.IsArray():
			return parseBrowserExport(parsed), FormatJSONArray
		case parsed.IsObject():
			s := make(Set)
			parsed.ForEach(func(k, v gjson.Result) bool {
				s[k.String()] = v.String()
				return true
			})
			return s, FormatJSONObject
		}
	}

	if looksNetscape(content) {
		return parseNetscape(strings.NewReader(raw)), FormatNetscape
	}

	return ParseHeader(content), FormatRaw
}

func parseBrowserExport(arr gjson.Result) Set {
	s := make(Set)
	arr.ForEach(func(_, c gjson.Result) bool {
		name, value := c.Get("name"), c.Get("value")
		if name.Exists() && value.Exists() {
			s[name.String()] = value.String()
		}
		return true
	})
	return s
}

func looksNetscape(content string) bool {
	if strings.HasPrefix(content, netscapeMagic) || strings.HasPrefix(content, "# HTTP Cookie File") {
		return true
	}
	line, _, _ := strings.Cut(content, "\n")
	return len(strings.Split(strings.TrimPrefix(line, httpOnlyMark), "\t")) >= 7
}

func parseNetscape(r io.Reader) Set {
	s := make(Set)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// a cookie with an empty value ends in a tab that must survive
		line := strings.TrimRight(scanner.Text(), "\r\n")
		line = strings.TrimPrefix(line, httpOnlyMark)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			slog.Debug("Skipping malformed cookie line", "fields", len(fields))
			continue
		}
		s[fields[5]] = fields[6]
	}
	return s
}

var headerDecoder = strings.NewReplacer(
	"%2C", ",",
	"%2F", "/",
	"%3A", ":",
	"%2B", "+",
	"%3D", "=",
	"%3B", ";",
)

// ParseHeader reads a "a=b; c=d" string as copied from the browser's devtools.
func ParseHeader(raw string) Set {
	s := make(Set)
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s[name] = headerDecoder.Replace(strings.TrimSpace(value))
	}
	return s
}

// Load reads a cookie file in any supported format.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, format := Parse(data)
	if len(s) == 0 {
		return nil, fmt.Errorf("no cookies in %s", path)
	}
	slog.Debug("Loaded cookies", "file", path, "format", format, "count", len(s))
	return s, nil
}

// LoadFirst returns the cookies of the first readable, non-empty file and its path.
func LoadFirst(paths ...string) (Set, string, error) {
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Could not read cookie file", "file", p, "error", err)
			}
			continue
		}
		return s, p, nil
	}
	return nil, "", ErrNotFound
}

// Validate reports which of the Required cookies are missing.
func (s Set) Validate() error {
	var missing []string
	for _, name := range Required {
		if s[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingCookiesError{Missing: missing}
	}
	return nil
}

func (s Set) CSRF() (string, error) {
	if v := s["bili_jct"]; v != "" {
		return v, nil
	}
	return "", ErrNoCSRF
}

// UID is the logged-in user's mid, or "" if unknown.
func (s Set) UID() string {
	return s["DedeUserID"]
}

func (s Set) names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Header renders the cookies as a Cookie request header value.
func (s Set) Header() string {
	parts := make([]string, 0, len(s))
	for _, name := range s.names() {
		parts = append(parts, name+"="+valueEncoder.Replace(s[name]))
	}
	return strings.Join(parts, "; ")
}

// browsers keep SESSDATA percent-encoded; net/http would quote a raw comma
var valueEncoder = strings.NewReplacer(",", "%2C", ";", "%3B", " ", "%20", "\"", "%22")

// HTTPCookies converts the set to cookies scoped to Domain.
func (s Set) HTTPCookies(expires time.Time) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s))
	for _, name := range s.names() {
		out = append(out, &http.Cookie{
			Name:     name,
			Value:    valueEncoder.Replace(s[name]),
			Domain:   Domain,
			Path:     "/",
			Expires:  expires,
			HttpOnly: name == "SESSDATA",
			Secure:   name == "SESSDATA",
		})
	}
	return out
}

// FromHTTPCookies keeps the cookies that belong to bilibili.com.
func FromHTTPCookies(cs []*http.Cookie) Set {
	s := make(Set)
	for _, c := range cs {
		if c.Domain != "" && !strings.HasSuffix(strings.TrimPrefix(c.Domain, "."), "bilibili.com") {
			continue
		}
		s[c.Name] = c.Value
	}
	return s
}

// Jar returns a cookie jar seeded with the set for bilibili.com and its subdomains.
func (s Set) Jar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	u := &url.URL{Scheme: "https", Host: "www.bilibili.com", Path: "/"}
	jar.SetCookies(u, s.HTTPCookies(time.Now().AddDate(1, 0, 0)))
	return jar, nil
}

// WriteNetscape writes the set as a Netscape cookie file, as read by yt-dlp and curl.
func (s Set) WriteNetscape(w io.Writer, expires time.Time) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, netscapeMagic)
	fmt.Fprintln(bw, "# https://curl.haxx.se/rfc/cookie_spec.html")
	fmt.Fprintln(bw, "# This is a generated file!  Do not edit.")
	fmt.Fprintln(bw)

	exp := strconv.FormatInt(expires.Unix(), 10)
	for _, name := range s.names() {
		domain, secure := Domain, "FALSE"
		if name == "SESSDATA" {
			domain, secure = httpOnlyMark+Domain, "TRUE"
		}
		fmt.Fprintf(bw, "%s\tTRUE\t/\t%s\t%s\t%s\t%s\n", domain, secure, exp, name, s[name])
	}
	return bw.Flush()
}

// Save writes a Netscape cookie file through a temp file and rename.
func (s Set) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cookies-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := s.WriteNetscape(tmp, time.Now().AddDate(1, 0, 0)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
