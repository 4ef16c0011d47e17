package citation

import (
	"regexp"
	"strings"
)

// Markers used to wrap highlighted query terms. Deliberately neutral: the
// frontend rewrites them into whatever markup it renders, and the characters
// cannot collide with the ASCII word boundaries the matcher relies on.
const (
	MarkStart = "‹mark›"
	MarkEnd   = "‹/mark›"
)

// defaultStopwords is the fixed set stripped from queries before term
// extraction. Callers may extend it via config but not shrink it.
var defaultStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "what": true, "where": true, "when": true,
	"which": true, "are": true, "is": true, "of": true, "to": true,
	"in": true, "on": true, "a": true,
}

// QueryTerms tokenizes a user query by whitespace, strips stopwords, and
// retains tokens with more than three alphanumeric characters. Returned terms
// are lowercased and deduplicated, preserving first-occurrence order.
func QueryTerms(query string, extraStopwords []string) []string {
	stop := defaultStopwords
	if len(extraStopwords) > 0 {
		stop = make(map[string]bool, len(defaultStopwords)+len(extraStopwords))
		for w := range defaultStopwords {
			stop[w] = true
		}
		for _, w := range extraStopwords {
			stop[strings.ToLower(w)] = true
		}
	}

	seen := make(map[string]bool)
	var terms []string
	for _, tok := range strings.Fields(query) {
		word := strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
			return !isAlnum(r)
		}))
		if word == "" || stop[word] {
			continue
		}
		if alnumLen(word) <= 3 {
			continue
		}
		if !seen[word] {
			seen[word] = true
			terms = append(terms, word)
		}
	}
	return terms
}

// Highlight wraps every case-insensitive whole-word occurrence of the query's
// terms in text with MarkStart/MarkEnd. Word boundaries prevent partial
// matches ("contract" never matches inside "contracted"). Already-marked
// spans are left untouched, so highlighting is idempotent.
func Highlight(text, query string, extraStopwords []string) string {
	if text == "" {
		return text
	}
	terms := QueryTerms(query, extraStopwords)
	for _, term := range terms {
		pat := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		text = markOutsideSpans(pat, text)
	}
	return text
}

// markOutsideSpans applies the pattern only to the segments of text that lie
// outside existing MarkStart..MarkEnd spans. This is what guards against
// nested markers, both across calls and across terms within one call.
func markOutsideSpans(pat *regexp.Regexp, text string) string {
	var b strings.Builder
	rest := text
	for {
		i := strings.Index(rest, MarkStart)
		if i < 0 {
			b.WriteString(wrapMatches(pat, rest))
			break
		}
		b.WriteString(wrapMatches(pat, rest[:i]))

		j := strings.Index(rest[i:], MarkEnd)
		if j < 0 {
			// Unterminated marker; leave the tail as-is.
			b.WriteString(rest[i:])
			break
		}
		end := i + j + len(MarkEnd)
		b.WriteString(rest[i:end])
		rest = rest[end:]
	}
	return b.String()
}

func wrapMatches(pat *regexp.Regexp, s string) string {
	if s == "" {
		return s
	}
	return pat.ReplaceAllString(s, MarkStart+"$0"+MarkEnd)
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func alnumLen(s string) int {
	n := 0
	for _, r := range s {
		if isAlnum(r) {
			n++
		}
	}
	return n
}
