// Package wbi signs query parameters for the endpoints guarded by the
// site's WBI scheme (search and a few others).
//
// Signing takes the img/sub key pair from the nav endpoint, permutes the
// concatenated keys through a fixed table into a 32 character mixin key,
// appends wts (unix seconds) to the parameters and computes
// w_rid = md5(canonical query + mixin key).
package wbi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bugmaschine/bilitool/pkg/cookies"
)

var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

const (
	ParamWts  = "wts"
	ParamWRID = "w_rid"
)

// MixinKey permutes imgKey+subKey through the fixed table and keeps 32 characters.
// Table entries beyond the raw key's length are skipped.
func MixinKey(imgKey, subKey string) string {
	raw := imgKey + subKey
	var b strings.Builder
	b.Grow(32)
	for _, i := range mixinKeyEncTab {
		if i < len(raw) {
			b.WriteByte(raw[i])
		}
		if b.Len() == 32 {
			break
		}
	}
	return b.String()
}

// Encode builds the canonical query of params plus wts and returns it with
// its digest. Escaped values are upper-cased as a whole, so the query is only
// fit for hashing, not for sending. params must not already contain wts or w_rid.
func Encode(params map[string]string, mixin string, wts int64) (query, wRID string) {
	all := make(map[string]string, len(params)+1)
	for k, v := range params {
		all[k] = v
	}
	all[ParamWts] = strconv.FormatInt(wts, 10)

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.ToUpper(Escape(all[k])))
	}
	query = strings.Join(parts, "&")

	sum := md5.Sum([]byte(query + mixin))
	return query, hex.EncodeToString(sum[:])
}

const upperHex = "0123456789ABCDEF"

// Escape percent-encodes every byte except A-Z a-z 0-9 - _ . ~ with upper case hex.
// Space becomes %20, never +.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// Stringify renders a parameter value the way it is sent on the wire.
func Stringify(key string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case fmt.Stringer:
		return x.String(), nil
	}

	// named types such as `type mid int64`
	if v != nil {
		switch rv := reflect.ValueOf(v); rv.Kind() {
		case reflect.String:
			return rv.String(), nil
		case reflect.Bool:
			return strconv.FormatBool(rv.Bool()), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(rv.Int(), 10), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(rv.Uint(), 10), nil
		case reflect.Float32:
			return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
		case reflect.Float64:
			return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
		}
	}
	return "", &InvalidParameterError{Key: key, Value: v}
}

// StringifyAll renders every value of params, failing on the first unsupported one.
func StringifyAll(params map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		s, err := Stringify(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

// Signer adds wts and w_rid to request parameters.
type Signer struct {
	keys *KeyCache
}

func NewSigner(keys *KeyCache) *Signer {
	return &Signer{keys: keys}
}

// Sign returns params with wts and w_rid added.
//
// If no keys can be obtained the request is sent unsigned: params is returned
// unchanged with a nil error and the failure is logged. A value that has no
// string form is always an error and leaves params untouched.
func (s *Signer) Sign(ctx context.Context, params map[string]any, auth cookies.Set) (map[string]any, error) {
	values, err := StringifyAll(params)
	if err != nil {
		return nil, err
	}
	delete(values, ParamWts)
	delete(values, ParamWRID)

	keys, err := s.keys.Get(ctx, auth)
	if err != nil {
		slog.Warn("Could not get wbi keys, sending request unsigned", "error", err)
		return params, nil
	}

	now := s.keys.Now()
	_, wRID := Encode(values, MixinKey(keys.ImgKey, keys.SubKey), now.Unix())

	signed := make(map[string]any, len(params)+2)
	for k, v := range params {
		signed[k] = v
	}
	signed[ParamWts] = strconv.FormatInt(now.Unix(), 10)
	signed[ParamWRID] = wRID
	return signed, nil
}

// SignValues is Sign for callers that already hold string values, returning
// the wire form ready for url.Values.
func (s *Signer) SignValues(ctx context.Context, params map[string]string, auth cookies.Set) (map[string]string, bool) {
	keys, err := s.keys.Get(ctx, auth)
	if err != nil {
		slog.Warn("Could not get wbi keys, sending request unsigned", "error", err)
		return params, false
	}

	values := make(map[string]string, len(params)+2)
	for k, v := range params {
		if k == ParamWts || k == ParamWRID {
			continue
		}
		values[k] = v
	}
	wts := s.keys.Now().Unix()
	_, wRID := Encode(values, MixinKey(keys.ImgKey, keys.SubKey), wts)
	values[ParamWts] = strconv.FormatInt(wts, 10)
	values[ParamWRID] = wRID
	return values, true
}

// Age reports how old the keys in a store are, for diagnostics.
func Age(store Store, now time.Time) (time.Duration, bool) {
	k, err := store.Load()
	if err != nil || k.ImgKey == "" {
		return 0, false
	}
	return now.Sub(k.FetchedAt), true
}
