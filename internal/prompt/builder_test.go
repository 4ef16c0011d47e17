package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheria-ai/sheria/internal/model"
)

func doc(uuid, title, url, content string) model.Document {
	return model.Document{
		UUID:    uuid,
		Content: content,
		Metadata: model.DocumentMetadata{
			Title:        title,
			URL:          url,
			DocumentType: model.DocTypeLegislation,
		},
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestBuildContextBlockFormat(t *testing.T) {
	docs := []model.Document{
		doc("u1", "Employment Act 2007", "https://kenyalaw.org/ea", "Section 35 requires notice."),
		doc("u2", "Labour Relations Act", "https://kenyalaw.org/lra", "Unions may be registered."),
	}

	ctx := BuildContext(docs, 1000, true)

	require.Len(t, ctx.Docs, 2)
	assert.Contains(t, ctx.Text, "[SOURCE 1] Employment Act 2007\nURL: https://kenyalaw.org/ea\nSection 35 requires notice.\n---\n")
	assert.Contains(t, ctx.Text, "[SOURCE 2] Labour Relations Act\n")
	assert.Equal(t, model.CitationMap{1: "Employment Act 2007", 2: "Labour Relations Act"}, ctx.CitationMap)
	assert.Equal(t, EstimateTokens(ctx.Text), ctx.Tokens)
}

func TestBuildContextDedupesByUUID(t *testing.T) {
	docs := []model.Document{
		doc("u1", "Employment Act 2007", "", "notice"),
		doc("u1", "Employment Act 2007", "", "notice"),
		doc("u2", "Labour Relations Act", "", "unions"),
	}

	ctx := BuildContext(docs, 1000, true)

	require.Len(t, ctx.Docs, 2)
	assert.Equal(t, "u2", ctx.Docs[1].UUID)
	assert.Equal(t, 1, strings.Count(ctx.Text, "[SOURCE 1]"))
}

func TestBuildContextDropsLowestRankedOverBudget(t *testing.T) {
	long := strings.Repeat("All employees are entitled to notice. ", 40)
	docs := []model.Document{
		doc("u1", "Act One", "", long),
		doc("u2", "Act Two", "", long),
		doc("u3", "Act Three", "", long),
	}

	// Roughly one and a half blocks worth of budget.
	budget := EstimateTokens(long) + EstimateTokens(long)/2
	ctx := BuildContext(docs, budget, true)

	require.NotEmpty(t, ctx.Docs)
	assert.Less(t, len(ctx.Docs), 3)
	assert.LessOrEqual(t, ctx.Tokens, budget)
	// Retained ids stay dense from 1.
	for i := range ctx.Docs {
		assert.Contains(t, ctx.CitationMap, i+1)
	}
	assert.NotContains(t, ctx.Text, "[SOURCE 3]")
}

func TestBuildContextTruncatesAtSentenceBoundary(t *testing.T) {
	long := strings.Repeat("The first sentence stands here. ", 30)
	docs := []model.Document{doc("u1", "Act One", "", long)}

	ctx := BuildContext(docs, EstimateTokens(long)/2, true)

	require.Len(t, ctx.Docs, 1)
	body := strings.TrimSuffix(ctx.Text, "\n---\n")
	assert.True(t, strings.HasSuffix(body, "."), "truncated excerpt should end on a sentence: %q", body)
	assert.Less(t, ctx.Tokens, EstimateTokens(long))
}

func TestTruncateAtSentenceRuneBoundary(t *testing.T) {
	// Three-byte runes, no sentence terminators, no spaces; a byte cut at
	// 200 would land mid-rune.
	s := strings.Repeat("€", 100)

	got := truncateAtSentence(s, 200)

	assert.True(t, utf8.ValidString(got), "truncation must stay valid UTF-8")
	assert.Equal(t, strings.Repeat("€", 66), got)
}

func TestBuildContextNeverEmitsPartialBlock(t *testing.T) {
	long := strings.Repeat("words and more words here. ", 50)
	docs := []model.Document{
		doc("u1", "Act One", "", long),
		doc("u2", "Act Two", "", long),
	}

	// Budget fits the first block with almost nothing to spare.
	budget := EstimateTokens(long) + 12
	ctx := BuildContext(docs, budget, true)

	require.Len(t, ctx.Docs, 1)
	assert.NotContains(t, ctx.Text, "[SOURCE 2]")
	assert.Len(t, ctx.CitationMap, 1)
}

func TestBuildContextPlainHeadings(t *testing.T) {
	docs := []model.Document{doc("u1", "Employment Act 2007", "", "notice rules")}

	ctx := BuildContext(docs, 1000, false)

	assert.NotContains(t, ctx.Text, "[SOURCE")
	assert.Contains(t, ctx.Text, "Employment Act 2007\nnotice rules\n---\n")
	assert.Empty(t, ctx.CitationMap)
}

func TestBuildContextOmitsEmptyURL(t *testing.T) {
	ctx := BuildContext([]model.Document{doc("u1", "Act", "", "body")}, 1000, true)
	assert.NotContains(t, ctx.Text, "URL:")
}

func TestBuildPromptWithCitations(t *testing.T) {
	p := Build(Input{
		Question:     "What notice period applies?",
		Context:      "[SOURCE 1] Employment Act 2007\nbody\n---\n",
		UseCitations: true,
	})

	assert.Contains(t, p, "Citation rules:")
	assert.Contains(t, p, "SOURCES:\n[SOURCE 1]")
	assert.Contains(t, p, "QUESTION: What notice period applies?")
	assert.True(t, strings.HasSuffix(p, "ANSWER:"))
	assert.NotContains(t, p, "ADDITIONAL CONTEXT")
}

func TestBuildPromptPlain(t *testing.T) {
	p := Build(Input{Question: "q", Context: "ctx\n", UseCitations: false})
	assert.NotContains(t, p, "Citation rules:")
	assert.Contains(t, p, "insufficient")
}

func TestBuildPromptExtraContext(t *testing.T) {
	p := Build(Input{
		Question:     "q",
		ExtraContext: "The employee has worked 4 years.",
		Context:      "ctx\n",
		UseCitations: true,
	})
	assert.Contains(t, p, "ADDITIONAL CONTEXT (do not cite):\nThe employee has worked 4 years.")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\n\tb   c "))
	assert.Equal(t, Normalize("x  y"), Normalize("x y"))
}
