// Package callbacks decodes telebot's "\f<unique>|<payload>" callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse returns the unique key and payload of cb. Callbacks already matched
// by telebot carry Unique; the generic OnCallback route still sees the raw data.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the unique key of the current callback.
func Key(c tele.Context) string {
	key, _ := Parse(c.Callback())
	return key
}

// Payload returns the payload of the current callback.
func Payload(c tele.Context) string {
	_, payload := Parse(c.Callback())
	return payload
}
