package normalize

import (
	"slices"
	"strings"

	"github.com/gyeh/mrfscan/internal/model"
)

// CodeKey trims whitespace and uppercases. It is the form billing codes are
// compared and emitted in. Punctuation is significant: "J11.00" and "J1100"
// are different codes.
func CodeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// CodeType returns the canonical name of a billing code type. Unknown types
// are returned uppercased.
func CodeType(s string) string {
	if ct, ok := model.CodeTypeByName(s); ok {
		return ct.Name
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// CleanList trims entries, drops empty ones and removes duplicates.
func CleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
