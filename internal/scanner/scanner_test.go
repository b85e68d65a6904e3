package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/extract"
	"github.com/smartfolder/smartfolder/internal/faces"
	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/pipeline"
	"github.com/smartfolder/smartfolder/internal/store"
)

// countingTextReader reads real file content and counts invocations.
type countingTextReader struct {
	inner extract.TextExtractor
	calls atomic.Int32
}

func (c *countingTextReader) ExtractText(ctx context.Context, path string) (string, error) {
	c.calls.Add(1)
	return c.inner.ExtractText(ctx, path)
}

// fixedOCR returns canned text per filename.
type fixedOCR struct {
	text  map[string]string
	err   error
	calls atomic.Int32
}

func (o *fixedOCR) ExtractText(_ context.Context, path string) (string, error) {
	o.calls.Add(1)
	if o.err != nil {
		return "", o.err
	}
	return o.text[filepath.Base(path)], nil
}

// hashEmbedder is deterministic and counts invocations.
type hashEmbedder struct {
	inner extract.Embedder
	calls atomic.Int32
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.inner.Embed(ctx, text)
}
func (e *hashEmbedder) Dimensions() int                  { return e.inner.Dimensions() }
func (e *hashEmbedder) ModelName() string                { return e.inner.ModelName() }
func (e *hashEmbedder) Available(ctx context.Context) bool { return true }
func (e *hashEmbedder) Close() error                     { return nil }

// fixedFaces returns canned detections per filename.
type fixedFaces struct {
	faces map[string][]extract.Face
	calls atomic.Int32
}

func (f *fixedFaces) DetectFaces(_ context.Context, path string) ([]extract.Face, error) {
	f.calls.Add(1)
	return f.faces[filepath.Base(path)], nil
}

type harness struct {
	scanner  *Scanner
	st       *store.MetadataStore
	keyword  *index.KeywordIndex
	vector   *index.VectorIndex
	engine   *faces.Engine
	text     *countingTextReader
	ocr      *fixedOCR
	embedder *hashEmbedder
	detector *fixedFaces
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	st, err := store.NewMetadataStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		st:       st,
		keyword:  index.NewKeywordIndex(),
		vector:   index.NewVectorIndex(),
		engine:   faces.NewEngine(st, 0, 0, nil),
		text:     &countingTextReader{inner: extract.NewLocalTextReader(0)},
		ocr:      &fixedOCR{text: map[string]string{}},
		embedder: &hashEmbedder{inner: extract.NewStaticEmbedder()},
		detector: &fixedFaces{faces: map[string][]extract.Face{}},
		root:     root,
	}

	pipe, err := pipeline.New(pipeline.Options{
		Text:     h.text,
		OCR:      h.ocr,
		Embedder: h.embedder,
		Faces:    h.detector,
	})
	require.NoError(t, err)

	h.scanner = New(Config{
		Roots:    []string{root},
		Workers:  2,
		LockPath: filepath.Join(t.TempDir(), "scan.lock"),
	}, st, pipe, h.keyword, h.vector, h.engine, nil)
	return h
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScan_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.write(t, "doc1.txt", "meeting notes from tuesday")
	h.write(t, "doc2.txt", "grocery list: milk and eggs")
	photo := h.write(t, "photo.jpg", "jpeg-bytes")
	h.ocr.text["photo.jpg"] = "whiteboard with action items"
	h.detector.faces["photo.jpg"] = []extract.Face{
		{Region: store.Region{Width: 64, Height: 64}, Embedding: []float32{1, 0}},
	}

	report, err := h.scanner.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, store.ScanStatusCompleted, report.Status)
	assert.Equal(t, 3, report.TotalFiles)
	assert.Equal(t, 3, report.IndexedFiles)
	assert.Equal(t, 3, report.VectorIndexedFiles)
	assert.Equal(t, 1, report.FileTypeCounts[store.FileTypeImage])
	assert.Equal(t, 2, report.FileTypeCounts[store.FileTypeText])

	rec, err := h.st.GetFileByPath(context.Background(), photo)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.StatusIndexed, rec.Status)

	assert.Len(t, h.engine.Clusters(), 1)
}

func TestScan_SecondPassIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.write(t, "doc.txt", "quarterly budget review")

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	textCalls := h.text.calls.Load()
	embedCalls := h.embedder.calls.Load()

	report, err := h.scanner.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFiles)
	assert.Equal(t, 1, report.IndexedFiles)
	// Size and mtime match, so the file is never re-read.
	assert.Equal(t, textCalls, h.text.calls.Load())
	assert.Equal(t, embedCalls, h.embedder.calls.Load())
}

func TestScan_ChangedContentIsReprocessed(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "doc.txt", "draft one")

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("draft two, considerably longer"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = h.scanner.Scan(context.Background())
	require.NoError(t, err)

	rec, err := h.st.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, rec.Text, "draft two")
	results := h.keyword.Query([]string{"draft", "two"}, 10)
	require.Len(t, results, 1)
}

func TestScan_DeletionCascades(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "photo.jpg", "jpeg-bytes")
	h.ocr.text["photo.jpg"] = "receipt total"
	h.detector.faces["photo.jpg"] = []extract.Face{{Embedding: []float32{1, 0}}}

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, h.engine.Clusters(), 1)

	require.NoError(t, os.Remove(path))
	_, err = h.scanner.Scan(context.Background())
	require.NoError(t, err)

	rec, err := h.st.GetFileByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, h.keyword.FileCount())
	assert.Zero(t, h.vector.Count())
	assert.Empty(t, h.engine.Clusters())

	detections, err := h.st.ListDetections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestScan_MoveIsARenameNotAReprocess(t *testing.T) {
	h := newHarness(t)
	oldPath := h.write(t, "inbox/report.txt", "annual report contents")

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	textCalls := h.text.calls.Load()

	newPath := filepath.Join(h.root, "archive", "report.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(newPath), 0o755))
	require.NoError(t, os.Rename(oldPath, newPath))

	_, err = h.scanner.Scan(context.Background())
	require.NoError(t, err)

	// Same bytes at a new path: re-keyed, never re-extracted.
	assert.Equal(t, textCalls, h.text.calls.Load())

	oldRec, err := h.st.GetFileByPath(context.Background(), oldPath)
	require.NoError(t, err)
	assert.Nil(t, oldRec)

	newRec, err := h.st.GetFileByPath(context.Background(), newPath)
	require.NoError(t, err)
	require.NotNil(t, newRec)
	assert.Equal(t, store.FileID(newPath), newRec.ID)
	assert.Equal(t, "annual report contents", newRec.Text)

	assert.True(t, h.keyword.Contains(newRec.ID))
	assert.False(t, h.keyword.Contains(store.FileID(oldPath)))
}

func TestScan_ConcurrentScanRejected(t *testing.T) {
	h := newHarness(t)
	h.write(t, "doc.txt", "content")

	// Given: another process holds the scan lock
	other := flock.New(h.scanner.cfg.LockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	_, err = h.scanner.Scan(context.Background())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConcurrentScan, errors.GetCode(err))
}

func TestScan_SkipsHiddenAndJunk(t *testing.T) {
	h := newHarness(t)
	h.write(t, "visible.txt", "indexed content")
	h.write(t, ".hidden.txt", "secrets")
	h.write(t, ".git/config", "repo config")
	h.write(t, "Thumbs.db", "windows junk")

	report, err := h.scanner.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFiles)
}

func TestScan_OversizedFileIsReportedAndSkipped(t *testing.T) {
	h := newHarness(t)
	h.scanner.cfg.MaxFileSize = 8
	h.write(t, "huge.txt", "this file is larger than eight bytes")

	report, err := h.scanner.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, store.ScanStatusCompletedWithErrors, report.Status)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, filepath.Join(h.root, "huge.txt"), report.Errors[0].Path)
	assert.Zero(t, h.keyword.FileCount())
}

func TestScan_MissingRootIsReported(t *testing.T) {
	h := newHarness(t)
	h.scanner.cfg.Roots = append(h.scanner.cfg.Roots, filepath.Join(h.root, "no-such-dir"))
	h.write(t, "doc.txt", "content")

	report, err := h.scanner.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, store.ScanStatusCompletedWithErrors, report.Status)
	assert.Equal(t, 1, report.TotalFiles)
	require.NotEmpty(t, report.Errors)
}

func TestScan_PersistsReport(t *testing.T) {
	h := newHarness(t)
	h.write(t, "doc.txt", "content")

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)

	latest, err := h.st.LatestReport(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1, latest.TotalFiles)
	assert.Equal(t, store.ScanStatusCompleted, latest.Status)
}

func TestRebuildIndexes_RestoresSearchAfterRestart(t *testing.T) {
	h := newHarness(t)
	h.write(t, "doc.txt", "meeting notes")

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)

	// Simulate a restart: fresh in-memory indexes over the same store.
	keyword := index.NewKeywordIndex()
	vector := index.NewVectorIndex()
	require.NoError(t, RebuildIndexes(context.Background(), h.st, keyword, vector))

	assert.Equal(t, 1, keyword.FileCount())
	assert.Equal(t, 1, vector.Count())
	require.Len(t, keyword.Query([]string{"meeting"}, 10), 1)
}

func TestScan_StatusReflectsExtractionOutcome(t *testing.T) {
	h := newHarness(t)
	indexed := h.write(t, "note.txt", "project plan for september")
	empty := h.write(t, "clip.mp4", "binary-frames")

	_, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)

	rec, err := h.st.GetFileByPath(context.Background(), indexed)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.StatusIndexed, rec.Status)

	// Videos get no collaborators, so nothing was extracted.
	rec, err = h.st.GetFileByPath(context.Background(), empty)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.StatusDiscovered, rec.Status)
}

func TestScan_FailedExtractionMarksFileFailed(t *testing.T) {
	h := newHarness(t)
	photo := h.write(t, "photo.jpg", "jpeg-bytes")
	h.ocr.err = errors.ExtractionError("ocr service unreachable", nil)

	report, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ScanStatusCompletedWithErrors, report.Status)

	rec, err := h.st.GetFileByPath(context.Background(), photo)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.False(t, h.keyword.Contains(rec.ID))
}

func TestScanPaths_ReportCountsOnlyScannedRoots(t *testing.T) {
	h := newHarness(t)
	h.write(t, "letters/one.txt", "dear sir or madam")
	h.write(t, "recipes/two.txt", "two cups of flour")

	full, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, full.IndexedFiles)

	report, err := h.scanner.ScanPaths(context.Background(), []string{filepath.Join(h.root, "letters")})

	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFiles)
	assert.Equal(t, 1, report.IndexedFiles)
	assert.Equal(t, 1, report.VectorIndexedFiles)
	// The other root's records survive the partial pass untouched.
	rec, err := h.st.GetFileByPath(context.Background(), filepath.Join(h.root, "recipes", "two.txt"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, h.keyword.Contains(rec.ID))
}

func TestScan_OversizedReportTotalCount(t *testing.T) {
	// Oversized files are reported but stay out of the totals.
	h := newHarness(t)
	h.scanner.cfg.MaxFileSize = 8
	h.write(t, "small.txt", "tiny")
	h.write(t, "huge.txt", "this file is larger than eight bytes")

	report, err := h.scanner.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.IndexedFiles)
	assert.Equal(t, 1, report.TotalFiles)
}
