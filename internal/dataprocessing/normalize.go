package dataprocessing

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// knownSpellings maps cleaned, space-preserved subdivision names to their canonical key
var knownSpellings = map[string]string{
	"grogol petamburan": "grogolpetamburan",
	"grogolpetamburan":  "grogolpetamburan",
	"kebon jeruk":       "kebonjeruk",
	"kebonjeruk":        "kebonjeruk",
	"pal merah":         "palmerah",
	"palmerah":          "palmerah",
	"pasar rebo":        "pasarrebo",
	"pasarrebo":         "pasarrebo",
	"taman sari":        "tamansari",
	"tamansari":         "tamansari",
	"tanah abang":       "tanahabang",
	"tanahabang":        "tanahabang",
}

// NormalizeName canonicalizes a subdivision name. A nil name stays nil.
func NormalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	key := CanonicalName(*name)
	return &key
}

// CanonicalName lowercases s, keeps letters, digits and spaces, then maps it through the
// known spellings table or drops the spaces.
func CanonicalName(s string) string {
	lowered := cases.Lower(language.Und).String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	cleaned := strings.TrimSpace(b.String())

	if canonical, ok := knownSpellings[cleaned]; ok {
		return canonical
	}
	return strings.ReplaceAll(cleaned, " ", "")
}

// MatchKey reduces a name to lowercase ASCII letters and digits. Geographic reference
// names and subdivision names are joined on this key.
func MatchKey(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(lowered))
	for i := 0; i < len(lowered); i++ {
		c := lowered[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}
