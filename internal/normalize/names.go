package normalize

import (
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`\s+`)

// PayerKey lowercases, collapses whitespace to underscores, and trims the
// input. It is the form payer names are stored and looked up in.
func PayerKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return multiSpace.ReplaceAllString(strings.ToLower(s), "_")
}

// CleanName collapses whitespace and trims a display name. Returns nil if the
// input is nil or the result is empty.
func CleanName(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	s = multiSpace.ReplaceAllString(s, " ")
	return &s
}
