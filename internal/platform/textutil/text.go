package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultLocale = "en"

// NormalizeLocale canonicalises a BCP 47 language tag, falling back to "en"
// when the input is empty or unparseable.
func NormalizeLocale(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return defaultLocale
	}
	parsed, err := language.Parse(trimmed)
	if err != nil {
		return defaultLocale
	}
	return parsed.String()
}

var asciiFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldFilename reduces a display name to a safe ASCII object-name fragment.
// Diacritics are stripped, remaining non-alphanumerics collapse to single
// hyphens.
func FoldFilename(name string) string {
	folded, _, err := transform.String(asciiFolder, strings.TrimSpace(name))
	if err != nil {
		folded = strings.TrimSpace(name)
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
