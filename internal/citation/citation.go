// Package citation produces canonical citation strings, freshness scores,
// and query-term highlighting for retrieved legal documents.
package citation

import (
	"fmt"
	"strings"

	"github.com/sheria-ai/sheria/internal/model"
)

// Format builds the canonical citation string for a document's metadata.
// position is the document's 1-based slot in the result set, used only for
// the "Source {n}" fallback when no title is available.
//
// Formatting rules by document type:
//   - legislation: "{act_chapter} {title}, Section {section}" — the chapter
//     prefix and section suffix are each omitted when already present as a
//     substring of the title.
//   - judgment: "{parties} [{year}] {reporter}" when all three are known,
//     else the title.
//   - everything else: the title unchanged.
func Format(meta model.DocumentMetadata, position int) string {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		return fmt.Sprintf("Source %d", position)
	}

	switch meta.DocumentType {
	case model.DocTypeLegislation:
		return formatLegislation(title, meta)
	case model.DocTypeJudgment:
		return formatJudgment(title, meta)
	default:
		return title
	}
}

func formatLegislation(title string, meta model.DocumentMetadata) string {
	cite := title

	if chapter := strings.TrimSpace(meta.ActChapter); chapter != "" && !containsFold(title, chapter) {
		cite = chapter + " " + cite
	}

	if section := strings.TrimSpace(meta.Section); section != "" {
		suffix := "Section " + section
		// Duplicate-section guard: many crawled titles already carry the
		// section ("Employment Act 2007, Section 35").
		if !containsFold(title, suffix) {
			cite = cite + ", " + suffix
		}
	}

	return cite
}

func formatJudgment(title string, meta model.DocumentMetadata) string {
	parties := strings.TrimSpace(meta.Parties)
	year := strings.TrimSpace(meta.Year)
	reporter := strings.TrimSpace(meta.Reporter)

	if parties != "" && year != "" && reporter != "" {
		return fmt.Sprintf("%s [%s] %s", parties, year, reporter)
	}
	return title
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
