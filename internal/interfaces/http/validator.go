package http

import (
	"regexp"
	"strconv"
	"strings"

	"leadbridge/internal/entities"
)

const MaxUserIDLength = 64

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_+-]+$`)

// ValidChannel maps a path segment to a known channel.
func ValidChannel(s string) (entities.Channel, bool) {
	switch ch := entities.Channel(strings.ToLower(s)); ch {
	case entities.ChannelWhatsApp, entities.ChannelTelegram:
		return ch, true
	default:
		return "", false
	}
}

// ValidUserID accepts phone numbers and numeric chat ids, plus the few
// separators some providers use. Control bytes and invalid UTF-8 are
// rejected rather than stripped.
func ValidUserID(s string) bool {
	if s == "" || len(s) > MaxUserIDLength {
		return false
	}
	return userIDPattern.MatchString(s)
}

// ParseLimit reads an optional positive integer, falling back to def when
// empty and clamping to ceiling.
func ParseLimit(s string, def, ceiling int) (int, bool) {
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > ceiling {
		n = ceiling
	}
	return n, true
}
