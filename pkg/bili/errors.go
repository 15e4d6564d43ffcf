package bili

import (
	"errors"
	"fmt"
)

var (
	// ErrAPI matches every *APIError.
	ErrAPI = errors.New("bilibili api error")
	// ErrNotFound is returned when a lookup succeeds but yields nothing.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-zero code in the response envelope.
type APIError struct {
	Endpoint string
	Code     int64
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code %d: %s", e.Endpoint, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// Code extracts the API code from err, if it is an APIError.
func Code(err error) (int64, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return 0, false
}

// Common envelope codes.
const (
	CodeNotLoggedIn = -101
	CodeBanned      = -102
	CodeCSRFFailed  = -111
	CodeBadRequest  = -400
	CodeNoSuchItem  = -404
	CodeRiskControl = -412
)

type errorTable map[int64]string

var commonErrors = errorTable{
	CodeNotLoggedIn: "account not logged in",
	CodeBanned:      "account is banned",
	CodeCSRFFailed:  "csrf check failed",
	CodeBadRequest:  "bad request",
	CodeNoSuchItem:  "no such item",
	CodeRiskControl: "request blocked by risk control",
}

var likeErrors = errorTable{
	10003: "video does not exist",
	65004: "cannot cancel like, not liked yet",
	65006: "already liked",
}

var coinErrors = errorTable{
	34002: "cannot coin your own video",
	34003: "not enough coins",
	34004: "coin rate too fast",
	34005: "coin limit for this video reached",
	-104:  "not enough coins",
}

var reportErrors = errorTable{
	-404:  "video does not exist",
	78001: "invalid report reason",
	78002: "report description too short",
	78003: "report description too long",
	78004: "attachment format not supported",
	78005: "too many attachments",
}

var imageUploadErrors = errorTable{
	CodeNotLoggedIn: "account not logged in, cannot upload the image",
	CodeCSRFFailed:  "csrf check failed, cannot upload the image",
	CodeBadRequest:  "image upload request rejected",
}

var danmakuPostErrors = errorTable{
	36700: "system upgrading",
	36701: "danmaku contains forbidden content",
	36702: "danmaku longer than 100 characters",
	36703: "sending too fast",
	36704: "video not yet approved",
	36705: "level too low to send danmaku",
	36706: "level too low for top danmaku",
	36707: "level too low for bottom danmaku",
	36708: "level too low for colored danmaku",
	36709: "level too low for advanced danmaku",
	36710: "no permission for this danmaku style",
	36711: "danmaku disabled for this video",
	36712: "level 1 users are limited to 20 characters",
	36713: "video not paid for",
	36714: "invalid danmaku progress",
	36715: "daily operation limit exceeded",
	36718: "premium membership required",
}

var danmakuLikeErrors = errorTable{
	36106: "danmaku was deleted",
	36805: "danmaku likes disabled for this video",
	65004: "cannot cancel like, not liked yet",
	65006: "danmaku already liked",
}

var contractErrors = errorTable{
	158001: "requirements for the old fan plan not met",
	158002: "already an old fan",
	158003: "uploader has not enabled the old fan plan",
	158004: "uploader does not qualify for the old fan plan yet",
	158005: "not in a contract with this uploader, join the old fan plan first",
}

func (t errorTable) lookup(code int64) (string, bool) {
	if msg, ok := t[code]; ok {
		return msg, true
	}
	msg, ok := commonErrors[code]
	return msg, ok
}
