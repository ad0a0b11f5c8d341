package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel normalizes a label name for comparison (lowercase, no diacritics,
// spaces for dashes and underscores, collapsed whitespace).
func NormalizeLabel(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// SameLabel reports whether two label names refer to the same identity
func SameLabel(a, b string) bool {
	return NormalizeLabel(a) == NormalizeLabel(b)
}

// FolderName turns a label into a safe single path element. The display name
// is kept as is; only separators and characters invalid on common filesystems are replaced.
func FolderName(label string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(label))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "_"
	}
	return name
}
