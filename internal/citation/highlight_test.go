package citation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryTerms(t *testing.T) {
	terms := QueryTerms("What is the notice period for employment termination?", nil)
	assert.Equal(t, []string{"notice", "period", "employment", "termination"}, terms)
}

func TestQueryTermsShortAndStopwords(t *testing.T) {
	// "the", "for", "is" are stopwords; "law" has only three characters.
	terms := QueryTerms("what is the law for tax?", nil)
	assert.Empty(t, terms)
}

func TestQueryTermsDedupe(t *testing.T) {
	terms := QueryTerms("contract CONTRACT contract, breach", nil)
	assert.Equal(t, []string{"contract", "breach"}, terms)
}

func TestQueryTermsExtraStopwords(t *testing.T) {
	terms := QueryTerms("kenya employment notice", []string{"Kenya"})
	assert.Equal(t, []string{"employment", "notice"}, terms)
}

func TestHighlightWholeWordOnly(t *testing.T) {
	got := Highlight("The contract was contracted out.", "contract terms", nil)
	assert.Equal(t, "The ‹mark›contract‹/mark› was contracted out.", got)
}

func TestHighlightCaseInsensitive(t *testing.T) {
	got := Highlight("Termination and TERMINATION.", "termination", nil)
	assert.Equal(t, "‹mark›Termination‹/mark› and ‹mark›TERMINATION‹/mark›.", got)
}

func TestHighlightIdempotent(t *testing.T) {
	text := "Notice of termination must be in writing."
	once := Highlight(text, "notice termination", nil)
	twice := Highlight(once, "notice termination", nil)
	assert.Equal(t, once, twice)
	assert.Equal(t, 2, strings.Count(twice, MarkStart))
}

func TestHighlightNoNestingAcrossTerms(t *testing.T) {
	// The second term is the literal word "mark". Spans written by the first
	// term contain that word, so without the outside-span guard it would get
	// wrapped again inside the marker itself.
	got := Highlight("the mark stands", "stands mark", nil)
	assert.Equal(t, "the ‹mark›mark‹/mark› ‹mark›stands‹/mark›", got)
}

func TestHighlightEmptyInputs(t *testing.T) {
	assert.Equal(t, "", Highlight("", "anything", nil))
	assert.Equal(t, "no terms here", Highlight("no terms here", "a of the", nil))
}
