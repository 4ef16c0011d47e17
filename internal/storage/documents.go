package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/sheria-ai/sheria/internal/model"
)

const documentColumns = `uuid, content, title, url, source, document_type, legal_area,
	court_name, case_number, parties, year, reporter, act_chapter, section,
	document_date, crawled_at, last_verified_at, crawl_status, extra`

// DocumentsByUUIDs hydrates full documents for a set of vector-search hits.
// Results come back in the order of the input slice; uuids with no matching
// row are silently skipped, since the vector index can briefly lead the
// document table during ingestion.
func (db *DB) DocumentsByUUIDs(ctx context.Context, uuids []string) ([]model.Document, error) {
	if len(uuids) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE uuid = ANY($1)`, uuids)
	if err != nil {
		return nil, fmt.Errorf("storage: query documents by uuid: %w", err)
	}

	byID := make(map[string]model.Document, len(uuids))
	if err := scanDocuments(rows, func(d model.Document) {
		byID[d.UUID] = d
	}); err != nil {
		return nil, err
	}

	out := make([]model.Document, 0, len(uuids))
	for _, id := range uuids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// SimilaritySearch runs a cosine similarity query directly against the
// pgvector index. This is the retrieval path when Qdrant is not configured.
func (db *DB) SimilaritySearch(ctx context.Context, embedding pgvector.Vector, k int) ([]model.Document, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+documentColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("storage: similarity search: %w", err)
	}

	var out []model.Document
	if err := scanDocumentsWithSimilarity(rows, func(d model.Document) {
		out = append(out, d)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertDocument writes one document and its embedding. Used by the ingestion
// tooling and by tests; the query path never writes.
func (db *DB) UpsertDocument(ctx context.Context, doc model.Document, embedding pgvector.Vector) error {
	extra, err := json.Marshal(doc.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("storage: marshal document extra: %w", err)
	}

	m := doc.Metadata
	_, err = db.pool.Exec(ctx, `
		INSERT INTO documents (
			uuid, content, title, url, source, document_type, legal_area,
			court_name, case_number, parties, year, reporter, act_chapter, section,
			document_date, crawled_at, last_verified_at, crawl_status, extra, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (uuid) DO UPDATE SET
			content = EXCLUDED.content,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			source = EXCLUDED.source,
			document_type = EXCLUDED.document_type,
			legal_area = EXCLUDED.legal_area,
			court_name = EXCLUDED.court_name,
			case_number = EXCLUDED.case_number,
			parties = EXCLUDED.parties,
			year = EXCLUDED.year,
			reporter = EXCLUDED.reporter,
			act_chapter = EXCLUDED.act_chapter,
			section = EXCLUDED.section,
			document_date = EXCLUDED.document_date,
			crawled_at = EXCLUDED.crawled_at,
			last_verified_at = EXCLUDED.last_verified_at,
			crawl_status = EXCLUDED.crawl_status,
			extra = EXCLUDED.extra,
			embedding = EXCLUDED.embedding`,
		doc.UUID, doc.Content, m.Title, m.URL, m.Source, string(m.DocumentType), m.LegalArea,
		m.CourtName, m.CaseNumber, m.Parties, m.Year, m.Reporter, m.ActChapter, m.Section,
		m.DocumentDate, m.CrawledAt, m.LastVerifiedAt, string(m.CrawlStatus), extra, embedding)
	if err != nil {
		return fmt.Errorf("storage: upsert document %s: %w", doc.UUID, err)
	}
	return nil
}

// CountDocuments reports the corpus size. Exposed on the health endpoint.
func (db *DB) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count documents: %w", err)
	}
	return n, nil
}

func scanDocuments(rows pgx.Rows, emit func(model.Document)) error {
	defer rows.Close()
	for rows.Next() {
		d, err := scanDocumentRow(rows, false)
		if err != nil {
			return err
		}
		emit(d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: scan documents: %w", err)
	}
	return nil
}

func scanDocumentsWithSimilarity(rows pgx.Rows, emit func(model.Document)) error {
	defer rows.Close()
	for rows.Next() {
		d, err := scanDocumentRow(rows, true)
		if err != nil {
			return err
		}
		emit(d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: scan documents: %w", err)
	}
	return nil
}

func scanDocumentRow(rows pgx.Rows, withSimilarity bool) (model.Document, error) {
	var (
		d         model.Document
		docType   string
		status    string
		docDate   *time.Time
		crawledAt *time.Time
		verified  *time.Time
		extra     []byte
	)

	dest := []any{
		&d.UUID, &d.Content, &d.Metadata.Title, &d.Metadata.URL, &d.Metadata.Source,
		&docType, &d.Metadata.LegalArea,
		&d.Metadata.CourtName, &d.Metadata.CaseNumber, &d.Metadata.Parties,
		&d.Metadata.Year, &d.Metadata.Reporter, &d.Metadata.ActChapter, &d.Metadata.Section,
		&docDate, &crawledAt, &verified, &status, &extra,
	}
	if withSimilarity {
		dest = append(dest, &d.Similarity)
	}

	if err := rows.Scan(dest...); err != nil {
		return model.Document{}, fmt.Errorf("storage: scan document row: %w", err)
	}

	d.Metadata.DocumentType = model.DocumentType(docType)
	d.Metadata.CrawlStatus = model.CrawlStatus(status)
	d.Metadata.DocumentDate = docDate
	d.Metadata.CrawledAt = crawledAt
	d.Metadata.LastVerifiedAt = verified
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &d.Metadata.Extra); err != nil {
			// Extra is pass-through metadata; a bad blob should not sink
			// the whole result.
			d.Metadata.Extra = nil
		}
	}
	return d, nil
}
