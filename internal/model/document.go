// Package model defines the domain types shared across the query pipeline:
// retrieved documents, structured sources, the response envelope, and the
// HTTP API envelopes.
package model

import "time"

// DocumentType classifies a legal document in the corpus.
type DocumentType string

const (
	DocTypeLegislation  DocumentType = "legislation"
	DocTypeJudgment     DocumentType = "judgment"
	DocTypeRegulation   DocumentType = "regulation"
	DocTypeConstitution DocumentType = "constitution"
	DocTypeUnknown      DocumentType = "unknown"
)

// CrawlStatus tracks whether the ingestion pipeline still considers a
// document's upstream source reachable. The core reads it, never writes it.
type CrawlStatus string

const (
	CrawlActive  CrawlStatus = "active"
	CrawlStale   CrawlStatus = "stale"
	CrawlBroken  CrawlStatus = "broken"
	CrawlPending CrawlStatus = "pending"
)

// DocumentMetadata is the closed set of metadata attributes the pipeline
// understands. Attributes the ingestion pipeline stores that the core does
// not pattern-match on are preserved in Extra and passed through untouched.
type DocumentMetadata struct {
	Title        string       `json:"title,omitempty"`
	URL          string       `json:"url,omitempty"`
	Source       string       `json:"source,omitempty"`
	DocumentType DocumentType `json:"document_type,omitempty"`
	LegalArea    string       `json:"legal_area,omitempty"`

	// Judgment attributes.
	CourtName  string `json:"court_name,omitempty"`
	CaseNumber string `json:"case_number,omitempty"`
	Parties    string `json:"parties,omitempty"`
	Year       string `json:"year,omitempty"`
	Reporter   string `json:"reporter,omitempty"`

	// Legislation attributes.
	ActChapter string `json:"act_chapter,omitempty"`
	Section    string `json:"section,omitempty"`

	DocumentDate   *time.Time  `json:"document_date,omitempty"`
	CrawledAt      *time.Time  `json:"crawled_at,omitempty"`
	LastVerifiedAt *time.Time  `json:"last_verified_at,omitempty"`
	CrawlStatus    CrawlStatus `json:"crawl_status,omitempty"`

	// Extra holds free-form legal metadata keys the core does not interpret.
	Extra map[string]any `json:"extra,omitempty"`
}

// Document is a single retrieval result. Documents are immutable once they
// leave the retriever; the source builder copies fields, never aliases them.
type Document struct {
	UUID       string           `json:"uuid"`
	Content    string           `json:"content"`
	Metadata   DocumentMetadata `json:"metadata"`
	Similarity float64          `json:"similarity"`
}
