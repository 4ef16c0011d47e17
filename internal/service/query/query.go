// Package query orchestrates the full answer pipeline: retrieval, context
// assembly, cache consultation, model dispatch, source building, and the
// aggregate scores on the response envelope.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sheria-ai/sheria/internal/cache"
	"github.com/sheria-ai/sheria/internal/llm"
	"github.com/sheria-ai/sheria/internal/model"
	"github.com/sheria-ai/sheria/internal/prompt"
	"github.com/sheria-ai/sheria/internal/retrieval"
)

// ErrEmptyQuestion rejects requests with a blank question.
var ErrEmptyQuestion = errors.New("query: question is required")

// noSourcesAnswer is returned when retrieval finds nothing. Kept as a
// successful envelope: an empty corpus match is an answer, not a failure.
const noSourcesAnswer = "information not available in the retrieved sources"

// cacheModelID is reported as model_used when the answer came from the cache.
const cacheModelID = "cache"

// Generator dispatches a prompt through the model chain. Implemented by
// llm.Dispatcher.
type Generator interface {
	Dispatch(ctx context.Context, prompt string, maxTokens int) (llm.Response, string, error)
}

// Config tunes the pipeline.
type Config struct {
	TopK             int
	MaxContextTokens int
	EnableCitations  bool
	SnippetLength    int
	Stopwords        []string
	RetrieverTimeout time.Duration
	QueryTimeout     time.Duration
	DefaultMaxTokens int
	CacheTTL         time.Duration
	ModelChain       []string // ids of the configured chain, for fingerprinting
}

// Service is the query orchestrator.
type Service struct {
	retriever retrieval.Retriever
	generator Generator
	cache     cache.Cache
	cfg       Config
	logger    *slog.Logger
	group     singleflight.Group
	now       func() time.Time
}

func New(retriever retrieval.Retriever, generator Generator, c cache.Cache, cfg Config, logger *slog.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = 200
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4000
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		cache:     c,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Answer runs one question through the pipeline and returns the response
// envelope. Terminal failures (retriever down, all models failed, timeout,
// cancellation) come back as errors for the transport layer to map; every
// other path returns a successful envelope.
func (s *Service) Answer(ctx context.Context, req model.QueryRequest) (model.QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return model.QueryResult{}, ErrEmptyQuestion
	}

	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	useCitations := s.cfg.EnableCitations
	if req.UseCitations != nil {
		useCitations = *req.UseCitations
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.DefaultMaxTokens
	}

	start := s.now()

	docs, err := s.retrieve(ctx, question)
	if err != nil {
		return model.QueryResult{}, err
	}
	if len(docs) == 0 {
		s.logger.Info("query found no sources", "question_len", len(question))
		return model.QueryResult{
			Success:     true,
			Answer:      noSourcesAnswer,
			Sources:     []model.StructuredSource{},
			CitationMap: model.CitationMap{},
			LatencyMs:   s.now().Sub(start).Milliseconds(),
			Metadata:    model.QueryMetadata{UseCitations: useCitations},
		}, nil
	}

	retrievedCount := len(docs)
	pctx := prompt.BuildContext(docs, s.cfg.MaxContextTokens, useCitations)
	fullPrompt := prompt.Build(prompt.Input{
		Question:     question,
		ExtraContext: req.ExtraContext,
		Context:      pctx.Text,
		UseCitations: useCitations,
	})

	fp := cache.Fingerprint(prompt.Normalize(fullPrompt), s.cfg.ModelChain)

	// Single-flight around lookup and generation: concurrent identical
	// queries share one model invocation.
	v, err, _ := s.group.Do(fp, func() (any, error) {
		return s.lookupOrGenerate(ctx, fp, fullPrompt, question, maxTokens, useCitations, retrievedCount, pctx)
	})
	if err != nil {
		return model.QueryResult{}, err
	}

	result := v.(model.QueryResult)
	// A cache hit already carries its lookup latency; everything else
	// reports the full pipeline time.
	if result.ModelUsed != cacheModelID {
		result.LatencyMs = s.now().Sub(start).Milliseconds()
	}
	return result, nil
}

func (s *Service) lookupOrGenerate(ctx context.Context, fp, fullPrompt, question string, maxTokens int, useCitations bool, retrievedCount int, pctx prompt.Context) (model.QueryResult, error) {
	lookupStart := s.now()
	if cached, ok, err := s.cache.Get(ctx, fp); err != nil {
		s.logger.Warn("cache lookup failed", "error", err)
	} else if ok {
		cached.ModelUsed = cacheModelID
		cached.LatencyMs = s.now().Sub(lookupStart).Milliseconds()
		return cached, nil
	}

	resp, modelID, err := s.generator.Dispatch(ctx, fullPrompt, maxTokens)
	if err != nil {
		return model.QueryResult{}, err
	}

	result := s.buildResult(question, resp, modelID, useCitations, retrievedCount, pctx)

	// Written after a fully successful pipeline only; cancellation and model
	// failure never leave a cache entry behind.
	if err := s.cache.Set(ctx, fp, result, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
	return result, nil
}

func (s *Service) buildResult(question string, resp llm.Response, modelID string, useCitations bool, retrievedCount int, pctx prompt.Context) model.QueryResult {
	sources := s.buildSources(question, pctx, useCitations)
	confidence, overallFreshness := aggregate(sources)

	citationMap := pctx.CitationMap
	if citationMap == nil {
		citationMap = model.CitationMap{}
	}

	answer := resp.Text
	if useCitations {
		answer = sanitizeMarkers(answer, citationMap)
	}

	return model.QueryResult{
		Success:            true,
		Answer:             answer,
		Sources:            sources,
		CitationMap:        citationMap,
		ModelUsed:          modelID,
		RetrievedDocuments: retrievedCount,
		ContextTokens:      pctx.Tokens,
		TotalTokens:        resp.TotalTokens,
		Metadata: model.QueryMetadata{
			Confidence:     confidence,
			FreshnessScore: overallFreshness,
			CitationCount:  len(citationMap),
			UseCitations:   useCitations,
		},
	}
}

// markerRe matches inline citation markers. Capped at three digits: law
// report citations put years in the same bracket syntax ("[2024] eKLR") and
// must pass through untouched.
var markerRe = regexp.MustCompile(`\[(\d{1,3})\]`)

// sanitizeMarkers removes citation markers that do not resolve to a source,
// so the answer never references a citation id outside the map.
func sanitizeMarkers(answer string, cm model.CitationMap) string {
	return markerRe.ReplaceAllStringFunc(answer, func(m string) string {
		k, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil {
			return m
		}
		if _, ok := cm[k]; ok {
			return m
		}
		return ""
	})
}

func (s *Service) retrieve(ctx context.Context, question string) ([]model.Document, error) {
	if s.cfg.RetrieverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RetrieverTimeout)
		defer cancel()
	}
	docs, err := s.retriever.Search(ctx, question, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("query: retrieve: %w", err)
	}
	return docs, nil
}

// aggregate computes the freshness-weighted confidence and the mean freshness
// over the structured sources.
func aggregate(sources []model.StructuredSource) (confidence, overallFreshness float64) {
	if len(sources) == 0 {
		return 0, 0
	}

	var weighted, freshSum float64
	for _, src := range sources {
		weighted += src.RelevanceScore * src.Metadata.FreshnessScore
		freshSum += src.Metadata.FreshnessScore
	}
	if freshSum == 0 {
		return 0, 0
	}
	return weighted / freshSum, freshSum / float64(len(sources))
}
