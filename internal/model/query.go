package model

import "time"

// CitationMap maps 1-based citation ids to canonical citation strings.
// For any successful response with sources, keys are exactly 1..len(sources).
type CitationMap map[int]string

// SourceMetadata carries the freshness and provenance attributes of a
// structured source. All values derive from retrieval, never from generation.
type SourceMetadata struct {
	FreshnessScore float64     `json:"freshness_score"`
	CitationText   string      `json:"citation_text,omitempty"`
	CrawlStatus    CrawlStatus `json:"crawl_status,omitempty"`
	CourtName      string      `json:"court_name,omitempty"`
	CaseNumber     string      `json:"case_number,omitempty"`
	ActChapter     string      `json:"act_chapter,omitempty"`
	DocumentDate   *time.Time  `json:"document_date,omitempty"`
	LastVerifiedAt *time.Time  `json:"last_verified_at,omitempty"`
}

// StructuredSource is the response-side view of a retrieved document,
// addressable from the answer text via its citation id.
type StructuredSource struct {
	SourceID           string         `json:"source_id"`
	CitationID         int            `json:"citation_id,omitempty"`
	Title              string         `json:"title"`
	URL                string         `json:"url,omitempty"`
	Snippet            string         `json:"snippet"`
	DocumentType       DocumentType   `json:"document_type"`
	LegalArea          string         `json:"legal_area,omitempty"`
	RelevanceScore     float64        `json:"relevance_score"`
	HighlightedExcerpt string         `json:"highlighted_excerpt"`
	Metadata           SourceMetadata `json:"metadata"`
}

// QueryMetadata holds the aggregate scores for a query response.
type QueryMetadata struct {
	Confidence     float64 `json:"confidence"`
	FreshnessScore float64 `json:"freshness_score"`
	CitationCount  int     `json:"citation_count"`
	UseCitations   bool    `json:"use_citations"`
}

// QueryResult is the response envelope for a single query.
type QueryResult struct {
	Success            bool               `json:"success"`
	Answer             string             `json:"answer"`
	Sources            []StructuredSource `json:"sources"`
	CitationMap        CitationMap        `json:"citation_map"`
	ModelUsed          string             `json:"model_used"`
	RetrievedDocuments int                `json:"retrieved_documents"`
	ContextTokens      int                `json:"context_tokens"`
	TotalTokens        int                `json:"total_tokens"`
	LatencyMs          int64              `json:"latency_ms"`
	Metadata           QueryMetadata      `json:"metadata"`
}

// QueryRequest is the request body for POST /v1/query.
type QueryRequest struct {
	Question     string `json:"question"`
	ExtraContext string `json:"extra_context,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
	UseCitations *bool  `json:"use_citations,omitempty"`
}
