// Package chatid generates and validates conversation identifiers of the form
// chat_YYYYMMDDhhmmss (UTC seconds).
package chatid

import (
	"strings"
	"time"
)

const (
	prefix = "chat_"
	layout = "20060102150405"
)

// New returns the conversation ID for t.
func New(t time.Time) string {
	return prefix + t.UTC().Format(layout)
}

// NewUnique returns the ID for t, advancing by one second until taken reports false.
// taken may be nil.
func NewUnique(t time.Time, taken func(id string) bool) string {
	id := New(t)
	for taken != nil && taken(id) {
		t = t.Add(time.Second)
		id = New(t)
	}
	return id
}

// Valid reports whether id splits at its first underscore into a non-empty
// prefix and a suffix of exactly 14 ASCII digits. Anything else is a legacy id.
func Valid(id string) bool {
	head, stamp, ok := strings.Cut(id, "_")
	if !ok || head == "" || len(stamp) != len(layout) {
		return false
	}
	for i := 0; i < len(stamp); i++ {
		if stamp[i] < '0' || stamp[i] > '9' {
			return false
		}
	}
	return true
}
