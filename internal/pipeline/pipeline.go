// Package pipeline turns one discovered file into indexed content. It
// routes the file to the right collaborators for its type, degrades
// gracefully when a collaborator is down, and caches results by content
// hash so identical bytes are never processed twice.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/extract"
	"github.com/smartfolder/smartfolder/internal/store"
)

// DefaultCacheSize is how many extraction results are kept, keyed by
// content hash. Duplicate photos and re-downloaded documents hit this.
const DefaultCacheSize = 4096

// Options configures a Pipeline. Nil collaborators disable their step.
type Options struct {
	Text     extract.TextExtractor // plain text and documents
	OCR      extract.TextExtractor // images
	Embedder extract.Embedder
	Faces    extract.FaceDetector

	// Limiter throttles collaborator calls. Nil means no limit.
	Limiter *rate.Limiter

	// CacheSize overrides DefaultCacheSize when positive.
	CacheSize int

	Logger *slog.Logger
}

// cachedResult is what the content cache stores. Detection IDs are
// minted per file, so faces are kept without them.
type cachedResult struct {
	text      string
	embedding []float32
	faces     []extract.Face
}

// Pipeline extracts content from files.
type Pipeline struct {
	text     extract.TextExtractor
	ocr      extract.TextExtractor
	embedder extract.Embedder
	faces    extract.FaceDetector
	limiter  *rate.Limiter
	cache    *lru.Cache[string, cachedResult]
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedResult](size)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		text:     opts.Text,
		ocr:      opts.OCR,
		embedder: opts.Embedder,
		faces:    opts.Faces,
		limiter:  opts.Limiter,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Process extracts content from the file described by rec. Collaborator
// failures degrade the result instead of failing it: a file whose
// embedding call failed still gets keyword-indexed, an image whose OCR
// failed still gets face detection. Every degradation comes back as a
// warning. The returned error is reserved for context cancellation.
func (p *Pipeline) Process(ctx context.Context, rec store.FileRecord) (store.ExtractedContent, []error, error) {
	content := store.ExtractedContent{FileID: rec.ID}

	if cached, ok := p.cache.Get(rec.ContentHash); ok {
		p.logger.Debug("content cache hit", "path", rec.Path, "hash", rec.ContentHash)
		return p.fromCache(rec, cached), nil, nil
	}

	var warnings []error

	text, werr := p.extractText(ctx, rec)
	if werr != nil {
		warnings = append(warnings, werr)
	}
	if err := ctx.Err(); err != nil {
		return content, warnings, err
	}
	content.Text = text
	content.HasText = text != ""

	if content.HasText && p.embedder != nil {
		emb, werr := p.embedText(ctx, rec, text)
		if werr != nil {
			warnings = append(warnings, werr)
		}
		content.Embedding = emb
	}
	if err := ctx.Err(); err != nil {
		return content, warnings, err
	}

	if rec.FileType == store.FileTypeImage && p.faces != nil {
		faces, werr := p.detectFaces(ctx, rec)
		if werr != nil {
			warnings = append(warnings, werr)
		}
		content.Faces = p.mintDetections(rec.ID, faces)

		if len(warnings) == 0 {
			p.cache.Add(rec.ContentHash, cachedResult{text: text, embedding: content.Embedding, faces: faces})
		}
	} else if len(warnings) == 0 {
		p.cache.Add(rec.ContentHash, cachedResult{text: text, embedding: content.Embedding})
	}

	return content, warnings, ctx.Err()
}

func (p *Pipeline) fromCache(rec store.FileRecord, cached cachedResult) store.ExtractedContent {
	return store.ExtractedContent{
		FileID:    rec.ID,
		Text:      cached.text,
		HasText:   cached.text != "",
		Embedding: cached.embedding,
		Faces:     p.mintDetections(rec.ID, cached.faces),
	}
}

// mintDetections assigns fresh detection ids. Two files with identical
// bytes still get distinct detections.
func (p *Pipeline) mintDetections(fileID string, faces []extract.Face) []store.FaceDetection {
	if len(faces) == 0 {
		return nil
	}
	detections := make([]store.FaceDetection, len(faces))
	for i, f := range faces {
		detections[i] = store.FaceDetection{
			ID:        uuid.NewString(),
			FileID:    fileID,
			Region:    f.Region,
			Embedding: f.Embedding,
		}
	}
	return detections
}

func (p *Pipeline) extractText(ctx context.Context, rec store.FileRecord) (string, error) {
	var extractor extract.TextExtractor
	remote := false
	switch rec.FileType {
	case store.FileTypeImage:
		extractor, remote = p.ocr, true
	case store.FileTypeDocument:
		// PDFs and office files are binary containers the local reader
		// cannot see into; they go through OCR when it is configured.
		if p.ocr != nil {
			extractor, remote = p.ocr, true
		} else {
			extractor = p.text
		}
	case store.FileTypeText:
		extractor = p.text
	}
	if extractor == nil {
		return "", nil
	}

	if err := p.wait(ctx, remote); err != nil {
		return "", err
	}

	text, err := extractor.ExtractText(ctx, rec.Path)
	if err != nil {
		p.logger.Warn("text extraction failed",
			"path", rec.Path,
			"code", errors.GetCode(err),
			"error", err)
		return "", err
	}
	return text, nil
}

func (p *Pipeline) embedText(ctx context.Context, rec store.FileRecord, text string) ([]float32, error) {
	if err := p.wait(ctx, true); err != nil {
		return nil, err
	}

	emb, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.logger.Warn("embedding failed",
			"path", rec.Path,
			"model", p.embedder.ModelName(),
			"error", err)
		return nil, err
	}
	return emb, nil
}

func (p *Pipeline) detectFaces(ctx context.Context, rec store.FileRecord) ([]extract.Face, error) {
	if err := p.wait(ctx, true); err != nil {
		return nil, err
	}

	faces, err := p.faces.DetectFaces(ctx, rec.Path)
	if err != nil {
		p.logger.Warn("face detection failed", "path", rec.Path, "error", err)
		return nil, err
	}
	return faces, nil
}

// wait blocks until the rate limiter admits one collaborator call.
// Local-only steps pass remote=false and skip the limiter.
func (p *Pipeline) wait(ctx context.Context, remote bool) error {
	if !remote || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
