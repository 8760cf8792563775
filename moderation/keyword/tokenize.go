package keyword

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
	nonSlugChars  = regexp.MustCompile(`[^\pL\pN]+`)
)

// Splits free-form text (eg, a submission title or description) in to tokens: lower-cased, with punctuation dropped, unicode normalized, and accents folded.
func TokenizeText(text string) []string {
	// the transformer is stateful, so it can't be shared between goroutines
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = bare
	}
	return strings.Fields(folded)
}

// Takes an arbitrary string (eg, an image label like "gun in hand") and returns a version with all non-letter, non-digit characters removed, and all lower-case
func Slugify(orig string) string {
	return strings.ToLower(nonSlugChars.ReplaceAllString(orig, ""))
}

// Tokens from TokenizeText, plus slugs of each adjacent pair, so that multi-word phrases ("hate speech" -> "hatespeech") can be matched against a flat word list.
func TokenizeWithPairs(text string) []string {
	toks := TokenizeText(text)
	out := make([]string, 0, len(toks)*2)
	out = append(out, toks...)
	for i := 0; i+1 < len(toks); i++ {
		out = append(out, Slugify(toks[i]+toks[i+1]))
	}
	return out
}
