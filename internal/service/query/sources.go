package query

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sheria-ai/sheria/internal/citation"
	"github.com/sheria-ai/sheria/internal/model"
	"github.com/sheria-ai/sheria/internal/prompt"
)

// buildSources produces the structured source records in citation-map order.
// Every field is copied from retrieval; nothing in a source ever derives from
// the model's output.
func (s *Service) buildSources(question string, pctx prompt.Context, useCitations bool) []model.StructuredSource {
	sources := make([]model.StructuredSource, 0, len(pctx.Docs))

	for i, doc := range pctx.Docs {
		m := doc.Metadata
		snippet := makeSnippet(doc.Content, s.cfg.SnippetLength)

		src := model.StructuredSource{
			SourceID:           doc.UUID,
			Title:              m.Title,
			URL:                m.URL,
			Snippet:            snippet,
			DocumentType:       m.DocumentType,
			LegalArea:          m.LegalArea,
			RelevanceScore:     clamp01(doc.Similarity),
			HighlightedExcerpt: citation.Highlight(snippet, question, s.cfg.Stopwords),
			Metadata: model.SourceMetadata{
				FreshnessScore: citation.FreshnessScore(freshnessRef(m), s.now()),
				CrawlStatus:    m.CrawlStatus,
				CourtName:      m.CourtName,
				CaseNumber:     m.CaseNumber,
				ActChapter:     m.ActChapter,
				DocumentDate:   m.DocumentDate,
				LastVerifiedAt: m.LastVerifiedAt,
			},
		}
		if useCitations {
			src.CitationID = i + 1
			src.Metadata.CitationText = pctx.CitationMap[i+1]
		}
		sources = append(sources, src)
	}
	return sources
}

// freshnessRef picks the timestamp freshness is scored from: crawl time
// first, then the document's own date.
func freshnessRef(m model.DocumentMetadata) *time.Time {
	if m.CrawledAt != nil {
		return m.CrawledAt
	}
	return m.DocumentDate
}

// makeSnippet returns the first limit bytes of content, ellipsized when
// truncated. Cuts back to the previous space so a word is never split, and
// to a rune boundary so a multi-byte character is never split.
func makeSnippet(content string, limit int) string {
	content = strings.TrimSpace(content)
	if len(content) <= limit {
		return content
	}
	for limit > 0 && !utf8.RuneStart(content[limit]) {
		limit--
	}
	cut := content[:limit]
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
