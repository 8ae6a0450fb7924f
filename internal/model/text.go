package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NaturalKey folds s for case-insensitive natural-key matching: NFC
// normalization, Unicode case folding, trimmed and with inner whitespace
// collapsed to single spaces.
func NaturalKey(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return folder.String(s)
}

// SameKey reports whether a and b are equal natural keys.
func SameKey(a, b string) bool {
	return NaturalKey(a) == NaturalKey(b)
}

// Clean trims s and normalizes it to NFC.
func Clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
