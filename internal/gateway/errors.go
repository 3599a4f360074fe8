package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/franz/prms-console/internal/util"
	"github.com/tidwall/gjson"
)

// statusError maps a non-2xx reply to a util.Error. 4xx become conflicts, the rest
// unavailable. The message is the server's detail when it sent one.
func statusError(status int, body []byte) *util.Error {
	kind := util.KindUnavailable
	if status >= 400 && status < 500 {
		kind = util.KindConflict
	}

	msg := Detail(body)
	if msg == "" {
		msg = genericMessage(status)
	}
	return &util.Error{Kind: kind, Message: msg, Status: status}
}

func genericMessage(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not found"
	case status >= 400 && status < 500:
		return fmt.Sprintf("request rejected (%d %s)", status, http.StatusText(status))
	default:
		return fmt.Sprintf("backend error (%d %s)", status, http.StatusText(status))
	}
}

// Detail extracts a human message from an error body. It understands a plain
// {"detail": "..."}, the validation form {"detail": [{"loc": [...], "msg": "..."}]},
// and the {"error": {"message": "..."}} envelope. It returns "" when none apply.
func Detail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		return strings.TrimSpace(detail.String())
	case detail.IsArray():
		var parts []string
		detail.ForEach(func(_, item gjson.Result) bool {
			msg := item.Get("msg").String()
			if msg == "" {
				msg = item.String()
			}
			loc := item.Get("loc")
			if loc.IsArray() {
				locs := loc.Array()
				if n := len(locs); n > 0 {
					msg = locs[n-1].String() + ": " + msg
				}
			}
			parts = append(parts, msg)
			return true
		})
		return strings.Join(parts, "; ")
	case detail.IsObject():
		if m := detail.Get("message").String(); m != "" {
			return m
		}
		return detail.Raw
	}

	if m := gjson.GetBytes(body, "error.message"); m.Exists() {
		return m.String()
	}
	if m := gjson.GetBytes(body, "message"); m.Type == gjson.String {
		return m.String()
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var e *util.Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
