package citation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sheria-ai/sheria/internal/model"
)

func TestFormatLegislation(t *testing.T) {
	meta := model.DocumentMetadata{
		Title:        "Employment Act 2007",
		DocumentType: model.DocTypeLegislation,
		ActChapter:   "Cap. 226",
		Section:      "35",
	}
	assert.Equal(t, "Cap. 226 Employment Act 2007, Section 35", Format(meta, 1))
}

func TestFormatLegislationChapterAlreadyInTitle(t *testing.T) {
	meta := model.DocumentMetadata{
		Title:        "Employment Act (Cap. 226)",
		DocumentType: model.DocTypeLegislation,
		ActChapter:   "Cap. 226",
		Section:      "45",
	}
	assert.Equal(t, "Employment Act (Cap. 226), Section 45", Format(meta, 1))
}

func TestFormatLegislationSectionAlreadyInTitle(t *testing.T) {
	meta := model.DocumentMetadata{
		Title:        "Employment Act 2007, Section 35",
		DocumentType: model.DocTypeLegislation,
		Section:      "35",
	}
	assert.Equal(t, "Employment Act 2007, Section 35", Format(meta, 1))
}

func TestFormatLegislationYearDoesNotSuppressSection(t *testing.T) {
	// The bare section number appearing in the title (here as part of the
	// year) must not suppress the section suffix.
	meta := model.DocumentMetadata{
		Title:        "Finance Act 2007",
		DocumentType: model.DocTypeLegislation,
		Section:      "2007",
	}
	assert.Equal(t, "Finance Act 2007, Section 2007", Format(meta, 1))
}

func TestFormatJudgment(t *testing.T) {
	meta := model.DocumentMetadata{
		Title:        "some crawl title",
		DocumentType: model.DocTypeJudgment,
		Parties:      "Okiya Omtatah v Attorney General",
		Year:         "2021",
		Reporter:     "eKLR",
	}
	assert.Equal(t, "Okiya Omtatah v Attorney General [2021] eKLR", Format(meta, 1))
}

func TestFormatJudgmentMissingFieldsFallsBackToTitle(t *testing.T) {
	meta := model.DocumentMetadata{
		Title:        "Omtatah v AG (Petition 12 of 2021)",
		DocumentType: model.DocTypeJudgment,
		Parties:      "Omtatah v AG",
		Year:         "", // no year, cannot build the reported form
		Reporter:     "eKLR",
	}
	assert.Equal(t, "Omtatah v AG (Petition 12 of 2021)", Format(meta, 1))
}

func TestFormatEmptyTitleUsesPosition(t *testing.T) {
	assert.Equal(t, "Source 3", Format(model.DocumentMetadata{}, 3))
	assert.Equal(t, "Source 1", Format(model.DocumentMetadata{Title: "   "}, 1))
}

func TestFormatOtherTypesUseTitle(t *testing.T) {
	meta := model.DocumentMetadata{
		Title:        "Constitution of Kenya, 2010",
		DocumentType: model.DocTypeConstitution,
	}
	assert.Equal(t, "Constitution of Kenya, 2010", Format(meta, 1))
}

func TestFreshnessScoreSteps(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		days int
		want float64
	}{
		{0, 1.00},
		{1, 0.95},
		{30, 0.95},
		{31, 0.85},
		{90, 0.85},
		{91, 0.70},
		{365, 0.70},
		{366, 0.50},
		{1825, 0.50},
		{1826, 0.30},
		{4000, 0.30},
	}
	for _, tc := range cases {
		ref := now.AddDate(0, 0, -tc.days)
		assert.Equal(t, tc.want, FreshnessScore(&ref, now), "age %d days", tc.days)
	}
}

func TestFreshnessScoreNilAndFuture(t *testing.T) {
	now := time.Now()
	assert.Equal(t, NeutralFreshness, FreshnessScore(nil, now))

	future := now.Add(48 * time.Hour)
	assert.Equal(t, 1.00, FreshnessScore(&future, now))
}

func TestFreshnessScoreMonotone(t *testing.T) {
	now := time.Now()
	prev := 1.01
	for days := 0; days <= 2200; days += 7 {
		ref := now.AddDate(0, 0, -days)
		score := FreshnessScore(&ref, now)
		assert.LessOrEqual(t, score, prev, "score rose at %d days", days)
		prev = score
	}
}
