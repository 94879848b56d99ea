// Package transcript normalizes recognizer output before it is published.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Options controls normalization.
type Options struct {
	CapitalizeSentences bool
}

var (
	pronounIContraction = regexp.MustCompile(`\bi(['’](?:m|d|ll|ve|re|s))\b`)
	pronounIWord        = regexp.MustCompile(`(^|[^\p{L}.])i([^\p{L}.]|$)`)

	// Periods after these tokens do not end a sentence.
	nonTerminalAbbreviations = map[string]struct{}{
		"e.g": {}, "i.e": {}, "cf": {}, "vs": {}, "etc": {},
		"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {},
		"fig": {}, "ref": {}, "sec": {}, "approx": {},
		"min": {}, "mins": {}, "hr": {}, "hrs": {},
	}

	// These stay lowercase even at a sentence start.
	lowercaseAbbreviations = map[string]struct{}{
		"e.g": {}, "i.e": {}, "etc": {}, "vs": {},
	}
)

// Normalize collapses whitespace and optionally applies sentence case.
func Normalize(text string, opts Options) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || !opts.CapitalizeSentences {
		return text
	}

	text = capitalizeSentenceStarts(text)
	text = pronounIContraction.ReplaceAllString(text, "I$1")
	// Matches may share a separator, so apply until stable.
	for {
		next := pronounIWord.ReplaceAllString(text, "${1}I${2}")
		if next == text {
			return text
		}
		text = next
	}
}

func capitalizeSentenceStarts(text string) string {
	runes := []rune(text)
	atStart := true

	for i, r := range runes {
		switch {
		case atStart && unicode.IsLetter(r):
			if !isLowercaseAbbreviationAt(runes, i) {
				runes[i] = unicode.ToUpper(r)
			}
			atStart = false
		case atStart && unicode.IsDigit(r):
			atStart = false
		case r == '!' || r == '?':
			atStart = true
		case r == '.':
			atStart = isSentenceBoundary(runes, i)
		}
	}
	return string(runes)
}

func isSentenceBoundary(runes []rune, idx int) bool {
	if idx+1 < len(runes) {
		next := runes[idx+1]
		// Decimals, domains, dotted initialisms.
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '.' {
			return false
		}
	}
	_, abbreviation := nonTerminalAbbreviations[tokenBefore(runes, idx)]
	return !abbreviation
}

func tokenBefore(runes []rune, idx int) string {
	start := idx
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	return strings.ToLower(strings.Trim(string(runes[start:idx]), "."))
}

func isLowercaseAbbreviationAt(runes []rune, idx int) bool {
	end := idx
	for end < len(runes) && (unicode.IsLetter(runes[end]) || runes[end] == '.') {
		end++
	}
	token := strings.ToLower(strings.Trim(string(runes[idx:end]), "."))
	_, ok := lowercaseAbbreviations[token]
	return ok
}
