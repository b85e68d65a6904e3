package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/extract"
	"github.com/smartfolder/smartfolder/internal/store"
)

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}
func (f *fakeEmbedder) Dimensions() int                    { return len(f.embedding) }
func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(_ context.Context) bool   { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

type fakeFaceDetector struct {
	faces []extract.Face
	err   error
	calls int
}

func (f *fakeFaceDetector) DetectFaces(_ context.Context, _ string) ([]extract.Face, error) {
	f.calls++
	return f.faces, f.err
}

func textRecord(id, hash string) store.FileRecord {
	return store.FileRecord{
		ID:          id,
		Path:        "/files/" + id + ".txt",
		ContentHash: hash,
		FileType:    store.FileTypeText,
		ModifiedAt:  time.Unix(1700000000, 0),
	}
}

func imageRecord(id, hash string) store.FileRecord {
	rec := textRecord(id, hash)
	rec.Path = "/files/" + id + ".jpg"
	rec.FileType = store.FileTypeImage
	return rec
}

func TestProcess_TextFile(t *testing.T) {
	text := &fakeExtractor{text: "quarterly budget numbers"}
	emb := &fakeEmbedder{embedding: []float32{0.1, 0.2}}
	p, err := New(Options{Text: text, Embedder: emb})
	require.NoError(t, err)

	content, warnings, err := p.Process(context.Background(), textRecord("f1", "h1"))

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, content.HasText)
	assert.Equal(t, "quarterly budget numbers", content.Text)
	assert.Equal(t, []float32{0.1, 0.2}, content.Embedding)
	assert.Empty(t, content.Faces)
}

func TestProcess_EmbeddingFailureDegrades(t *testing.T) {
	// Given: a working text extractor and a down embedding service
	text := &fakeExtractor{text: "still searchable by keyword"}
	emb := &fakeEmbedder{err: errors.EmbeddingError("service down", nil)}
	p, err := New(Options{Text: text, Embedder: emb})
	require.NoError(t, err)

	// When
	content, warnings, err := p.Process(context.Background(), textRecord("f1", "h1"))

	// Then: text survives, the embedding is absent, one warning
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.True(t, content.HasText)
	assert.Nil(t, content.Embedding)
}

func TestProcess_DocumentPrefersOCR(t *testing.T) {
	// PDFs are binary; the local reader cannot extract from them.
	text := &fakeExtractor{text: ""}
	ocr := &fakeExtractor{text: "lease agreement between the parties"}
	p, err := New(Options{Text: text, OCR: ocr})
	require.NoError(t, err)

	rec := textRecord("d1", "h1")
	rec.Path = "/files/d1.pdf"
	rec.FileType = store.FileTypeDocument

	content, warnings, err := p.Process(context.Background(), rec)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "lease agreement between the parties", content.Text)
	assert.Equal(t, 1, ocr.calls)
	assert.Zero(t, text.calls)
}

func TestProcess_DocumentFallsBackToLocalReader(t *testing.T) {
	text := &fakeExtractor{text: "readme style document"}
	p, err := New(Options{Text: text})
	require.NoError(t, err)

	rec := textRecord("d2", "h2")
	rec.FileType = store.FileTypeDocument

	content, warnings, err := p.Process(context.Background(), rec)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "readme style document", content.Text)
	assert.Equal(t, 1, text.calls)
}

func TestProcess_ImageGetsOCRAndFaces(t *testing.T) {
	ocr := &fakeExtractor{text: "Total: $21.96"}
	emb := &fakeEmbedder{embedding: []float32{1}}
	faces := &fakeFaceDetector{faces: []extract.Face{
		{Region: store.Region{X: 1, Y: 2, Width: 3, Height: 4}, Embedding: []float32{0.5}},
	}}
	p, err := New(Options{OCR: ocr, Embedder: emb, Faces: faces})
	require.NoError(t, err)

	content, warnings, err := p.Process(context.Background(), imageRecord("img1", "h1"))

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "Total: $21.96", content.Text)
	require.Len(t, content.Faces, 1)
	assert.NotEmpty(t, content.Faces[0].ID)
	assert.Equal(t, "img1", content.Faces[0].FileID)
	assert.Empty(t, content.Faces[0].ClusterID, "clustering happens later")
}

func TestProcess_OCRFailureStillDetectsFaces(t *testing.T) {
	ocr := &fakeExtractor{err: errors.ExtractionError("ocr down", nil)}
	faces := &fakeFaceDetector{faces: []extract.Face{{Embedding: []float32{0.5}}}}
	p, err := New(Options{OCR: ocr, Faces: faces})
	require.NoError(t, err)

	content, warnings, err := p.Process(context.Background(), imageRecord("img1", "h1"))

	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.False(t, content.HasText)
	assert.Len(t, content.Faces, 1)
}

func TestProcess_CacheHitSkipsCollaborators(t *testing.T) {
	// Given: two files with identical content hashes
	text := &fakeExtractor{text: "same bytes"}
	emb := &fakeEmbedder{embedding: []float32{1}}
	p, err := New(Options{Text: text, Embedder: emb})
	require.NoError(t, err)

	first, _, err := p.Process(context.Background(), textRecord("f1", "dup"))
	require.NoError(t, err)

	// When: the second file is processed
	second, _, err := p.Process(context.Background(), textRecord("f2", "dup"))

	// Then: no new collaborator calls, same content under the new id
	require.NoError(t, err)
	assert.Equal(t, 1, text.calls)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, "f2", second.FileID)
	assert.Equal(t, first.Text, second.Text)
}

func TestProcess_CacheHitMintsFreshDetectionIDs(t *testing.T) {
	ocr := &fakeExtractor{text: ""}
	faces := &fakeFaceDetector{faces: []extract.Face{{Embedding: []float32{0.5}}}}
	p, err := New(Options{OCR: ocr, Faces: faces})
	require.NoError(t, err)

	first, _, err := p.Process(context.Background(), imageRecord("a", "dup"))
	require.NoError(t, err)
	second, _, err := p.Process(context.Background(), imageRecord("b", "dup"))
	require.NoError(t, err)

	assert.Equal(t, 1, faces.calls)
	require.Len(t, second.Faces, 1)
	assert.NotEqual(t, first.Faces[0].ID, second.Faces[0].ID)
	assert.Equal(t, "b", second.Faces[0].FileID)
}

func TestProcess_DegradedResultIsNotCached(t *testing.T) {
	// Given: an embedder that fails once then recovers
	text := &fakeExtractor{text: "content"}
	emb := &fakeEmbedder{err: errors.EmbeddingError("down", nil)}
	p, err := New(Options{Text: text, Embedder: emb})
	require.NoError(t, err)

	_, warnings, err := p.Process(context.Background(), textRecord("f1", "h1"))
	require.NoError(t, err)
	require.NotEmpty(t, warnings)

	// When: the service recovers and the same content is seen again
	emb.err = nil
	emb.embedding = []float32{1}
	content, warnings, err := p.Process(context.Background(), textRecord("f1", "h1"))

	// Then: the pipeline retried instead of serving the degraded result
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []float32{1}, content.Embedding)
}

func TestProcess_VideoGetsNoCollaborators(t *testing.T) {
	text := &fakeExtractor{text: "nope"}
	emb := &fakeEmbedder{embedding: []float32{1}}
	p, err := New(Options{Text: text, OCR: text, Embedder: emb})
	require.NoError(t, err)

	rec := textRecord("v1", "h1")
	rec.FileType = store.FileTypeVideo

	content, warnings, err := p.Process(context.Background(), rec)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, content.HasText)
	assert.Zero(t, text.calls)
	assert.Zero(t, emb.calls)
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := &fakeExtractor{text: "content"}
	p, err := New(Options{Text: text})
	require.NoError(t, err)

	_, _, err = p.Process(ctx, textRecord("f1", "h1"))

	assert.ErrorIs(t, err, context.Canceled)
}
