// Package prompt assembles the token-bounded numbered context block, the
// citation map, and the final prompt sent to the generation model.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sheria-ai/sheria/internal/citation"
	"github.com/sheria-ai/sheria/internal/model"
)

// maxExcerptChars caps the content excerpt of a single source before budget
// arithmetic runs. Keeps one huge statute from starving the other sources.
const maxExcerptChars = 2000

// minExcerptChars is the smallest excerpt worth emitting. When the remaining
// budget cannot fit a block header plus this much content, the source is
// dropped instead of emitting a partial block.
const minExcerptChars = 80

// EstimateTokens approximates the token count of a string as ceil(chars/4).
// Good enough for budget arithmetic across the model chain; a model-specific
// tokenizer can replace it if one ever ships.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Context is the assembled retrieval context for one query.
type Context struct {
	// Text is the concatenated source blocks fed to the model.
	Text string
	// CitationMap holds the canonical citation for each retained source,
	// keyed 1..len(Docs) with no gaps.
	CitationMap model.CitationMap
	// Docs are the retained documents in citation order. Doc i corresponds
	// to citation id i+1.
	Docs []model.Document
	// Tokens is the estimated token count of Text.
	Tokens int
}

// BuildContext formats the top-ranked documents into numbered source blocks
// under the given token budget. Documents are deduplicated by uuid first
// (defensive; the retriever is expected to do this already). When the budget
// would be exceeded, lowest-ranked sources are dropped first, then the last
// retained source is truncated at a sentence boundary. A partial source block
// is never emitted.
//
// With citations disabled, blocks carry plain title headings instead of
// [SOURCE n] markers and the citation map is empty.
func BuildContext(docs []model.Document, budgetTokens int, useCitations bool) Context {
	docs = dedupeByUUID(docs)

	out := Context{CitationMap: model.CitationMap{}}
	var b strings.Builder

	for _, doc := range docs {
		n := len(out.Docs) + 1
		cite := citation.Format(doc.Metadata, n)

		excerpt := doc.Content
		if len(excerpt) > maxExcerptChars {
			excerpt = truncateAtSentence(excerpt, maxExcerptChars)
		}

		block := formatBlock(n, cite, doc.Metadata.URL, excerpt, useCitations)
		if out.Tokens+EstimateTokens(block) > budgetTokens {
			// Shrink this source's excerpt to what is left of the budget.
			overhead := EstimateTokens(formatBlock(n, cite, doc.Metadata.URL, "", useCitations))
			remaining := (budgetTokens - out.Tokens - overhead) * 4
			if remaining < minExcerptChars {
				// Not enough room for a meaningful block; drop this source
				// and everything ranked below it.
				break
			}
			excerpt = truncateAtSentence(excerpt, remaining)
			block = formatBlock(n, cite, doc.Metadata.URL, excerpt, useCitations)
		}

		b.WriteString(block)
		out.Tokens += EstimateTokens(block)
		out.Docs = append(out.Docs, doc)
		if useCitations {
			out.CitationMap[n] = cite
		}
	}

	out.Text = b.String()
	return out
}

func formatBlock(n int, cite, url, excerpt string, useCitations bool) string {
	var b strings.Builder
	if useCitations {
		fmt.Fprintf(&b, "[SOURCE %d] %s\n", n, cite)
	} else {
		b.WriteString(cite + "\n")
	}
	if url != "" {
		b.WriteString("URL: " + url + "\n")
	}
	b.WriteString(excerpt)
	b.WriteString("\n---\n")
	return b.String()
}

// truncateAtSentence cuts s to at most limit bytes, preferring the last
// sentence terminator, then the last space, then a hard cut at a rune
// boundary.
func truncateAtSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]

	best := -1
	for _, term := range []string{". ", ".\n", "! ", "? ", ".\t"} {
		if i := strings.LastIndex(cut, term); i > best {
			best = i
		}
	}
	if best > 0 {
		return cut[:best+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return cut[:i]
	}
	return cut
}

func dedupeByUUID(docs []model.Document) []model.Document {
	seen := make(map[string]bool, len(docs))
	out := docs[:0:0]
	for _, d := range docs {
		if seen[d.UUID] {
			continue
		}
		seen[d.UUID] = true
		out = append(out, d)
	}
	return out
}

// citationDirective enumerates the citation rules the model must follow.
// Kept as a single const so tests can assert the prompt carries it verbatim.
const citationDirective = `You are a legal research assistant for Kenyan law. Answer the question using ONLY the numbered sources below.

Citation rules:
- Cite using bracketed integers that match the sources below, e.g. [1].
- Place each citation immediately after the statement it supports.
- When multiple sources support one claim, combine them like [1][2].
- Never assert a fact that cannot be derived from the sources.
- If the sources are insufficient to answer, say so explicitly.`

const plainDirective = `You are a legal research assistant for Kenyan law. Answer the question using ONLY the context below. If the context is insufficient to answer, say so explicitly.`

// Input carries everything needed to assemble the final prompt.
type Input struct {
	Question     string
	ExtraContext string // optional caller-supplied context, never cited
	Context      string // the numbered source blocks from BuildContext
	UseCitations bool
}

// Build assembles the three-section prompt: directive, context, question.
func Build(in Input) string {
	var b strings.Builder

	if in.UseCitations {
		b.WriteString(citationDirective)
	} else {
		b.WriteString(plainDirective)
	}
	b.WriteString("\n\nSOURCES:\n")
	b.WriteString(in.Context)

	b.WriteString("\nQUESTION: ")
	b.WriteString(in.Question)
	b.WriteString("\n")

	if in.ExtraContext != "" {
		b.WriteString("\nADDITIONAL CONTEXT (do not cite):\n")
		b.WriteString(in.ExtraContext)
		b.WriteString("\n")
	}

	b.WriteString("\nANSWER:")
	return b.String()
}

// Normalize canonicalizes a prompt for cache fingerprinting: whitespace runs
// collapse to single spaces so formatting-only differences share a cache key.
func Normalize(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}
