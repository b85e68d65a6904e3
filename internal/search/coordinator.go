// Package search answers queries against the in-memory indexes,
// enriching hits with metadata and snippets from the store.
package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/extract"
	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/store"
)

// Search modes.
const (
	ModeKeyword  = "keyword"
	ModeSemantic = "semantic"
)

// Snippet sizing, in runes.
const (
	// SnippetContext is how much text surrounds the first keyword
	// match on each side.
	SnippetContext = 80

	// SemanticExcerptLen is the length of the leading excerpt shown
	// for semantic hits, which have no single match position.
	SemanticExcerptLen = 200
)

// Defaults applied when the caller passes zero values.
const (
	DefaultMaxResults = 20
	DefaultMinScore   = 0.30
)

// Result is one search hit.
type Result struct {
	FileID     string         `json:"file_id"`
	Filename   string         `json:"filename"`
	Path       string         `json:"path"`
	FileType   store.FileType `json:"file_type"`
	Size       int64          `json:"size"`
	Score      float64        `json:"score"`
	Snippet    string         `json:"snippet,omitempty"`
	ModifiedAt time.Time      `json:"modified_at"`
}

// Coordinator routes a query to the right index and shapes the hits.
type Coordinator struct {
	st         *store.MetadataStore
	keyword    *index.KeywordIndex
	vector     *index.VectorIndex
	embedder   extract.Embedder
	maxResults int
	minScore   float64
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator. maxResults and minScore fall
// back to the defaults when zero.
func NewCoordinator(st *store.MetadataStore, keyword *index.KeywordIndex,
	vector *index.VectorIndex, embedder extract.Embedder,
	maxResults int, minScore float64, logger *slog.Logger) *Coordinator {

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		st:         st,
		keyword:    keyword,
		vector:     vector,
		embedder:   embedder,
		maxResults: maxResults,
		minScore:   minScore,
		logger:     logger,
	}
}

// Search runs one query. Keyword mode requires every query term to
// appear; semantic mode ranks by embedding similarity above the
// relevance floor.
func (c *Coordinator) Search(ctx context.Context, query, mode string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.QueryError("query must not be empty")
	}

	start := time.Now()
	var (
		results []Result
		err     error
	)
	switch mode {
	case ModeKeyword, "":
		results, err = c.searchKeyword(ctx, query)
	case ModeSemantic:
		results, err = c.searchSemantic(ctx, query)
	default:
		return nil, errors.New(errors.ErrCodeUnknownSearchMode,
			"unknown search mode", nil).WithDetail("mode", mode)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("search completed",
		"mode", mode, "query", query,
		"results", len(results), "duration", time.Since(start))
	return results, nil
}

func (c *Coordinator) searchKeyword(ctx context.Context, query string) ([]Result, error) {
	tokens := index.Tokenize(query)
	if len(tokens) == 0 {
		return nil, errors.QueryError("query has no searchable terms")
	}

	hits := c.keyword.Query(tokens, c.maxResults)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		rec, err := c.st.GetFile(ctx, hit.FileID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		results = append(results, Result{
			FileID:     rec.ID,
			Filename:   filepath.Base(rec.Path),
			Path:       rec.Path,
			FileType:   rec.FileType,
			Size:       rec.SizeBytes,
			Score:      float64(hit.Score),
			Snippet:    keywordSnippet(rec.Text, tokens),
			ModifiedAt: rec.ModifiedAt,
		})
	}
	return results, nil
}

func (c *Coordinator) searchSemantic(ctx context.Context, query string) ([]Result, error) {
	if c.embedder == nil {
		return nil, errors.EmbeddingError("no embedder configured", nil)
	}
	queryEmbedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(queryEmbedding) == 0 {
		return nil, errors.QueryError("query has no searchable terms")
	}

	hits := c.vector.Query(queryEmbedding, c.maxResults, c.minScore)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		rec, err := c.st.GetFile(ctx, hit.FileID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		results = append(results, Result{
			FileID:     rec.ID,
			Filename:   filepath.Base(rec.Path),
			Path:       rec.Path,
			FileType:   rec.FileType,
			Size:       rec.SizeBytes,
			Score:      hit.Score,
			Snippet:    excerpt(rec.Text, SemanticExcerptLen),
			ModifiedAt: rec.ModifiedAt,
		})
	}
	return results, nil
}

// keywordSnippet extracts a window of text around the first occurrence
// of any query token, with ellipses marking trimmed edges.
func keywordSnippet(text string, tokens []string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)

	pos := -1
	for _, token := range tokens {
		if p := strings.Index(lower, token); p >= 0 && (pos < 0 || p < pos) {
			pos = p
		}
	}
	if pos < 0 {
		// Matched via the filename; show the document head instead.
		return excerpt(text, SnippetContext*2)
	}

	runes := []rune(text)
	runePos := len([]rune(text[:pos]))

	start := runePos - SnippetContext
	if start < 0 {
		start = 0
	}
	end := runePos + SnippetContext
	if end > len(runes) {
		end = len(runes)
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet += "…"
	}
	return snippet
}

// excerpt returns the first n runes of text, with an ellipsis when
// trimmed.
func excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
