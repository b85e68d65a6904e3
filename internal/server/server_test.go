package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfolder/smartfolder/internal/extract"
	"github.com/smartfolder/smartfolder/internal/faces"
	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/pipeline"
	"github.com/smartfolder/smartfolder/internal/scanner"
	"github.com/smartfolder/smartfolder/internal/search"
	"github.com/smartfolder/smartfolder/internal/store"
)

type apiHarness struct {
	router   *gin.Engine
	st       *store.MetadataStore
	engine   *faces.Engine
	scanner  *scanner.Scanner
	lockPath string
	root     string
	detector *stubFaces
}

type stubOCR struct{ text string }

func (o *stubOCR) ExtractText(_ context.Context, _ string) (string, error) { return o.text, nil }

type stubFaces struct{ faces []extract.Face }

func (f *stubFaces) DetectFaces(_ context.Context, _ string) ([]extract.Face, error) {
	return f.faces, nil
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	root := t.TempDir()
	st, err := store.NewMetadataStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	keyword := index.NewKeywordIndex()
	vector := index.NewVectorIndex()
	engine := faces.NewEngine(st, 0, 0, nil)
	embedder := extract.NewStaticEmbedder()
	detector := &stubFaces{}

	pipe, err := pipeline.New(pipeline.Options{
		Text:     extract.NewLocalTextReader(0),
		OCR:      &stubOCR{text: "scanned receipt"},
		Embedder: embedder,
		Faces:    detector,
	})
	require.NoError(t, err)

	lockPath := filepath.Join(t.TempDir(), "scan.lock")
	sc := scanner.New(scanner.Config{
		Roots:    []string{root},
		Workers:  2,
		LockPath: lockPath,
	}, st, pipe, keyword, vector, engine, nil)

	coord := search.NewCoordinator(st, keyword, vector, embedder, 0, 0.01, nil)
	srv := New(st, sc, coord, engine, []string{root}, nil)

	return &apiHarness{
		router:   srv.Router(),
		st:       st,
		engine:   engine,
		scanner:  sc,
		lockPath: lockPath,
		root:     root,
		detector: detector,
	}
}

func (h *apiHarness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAPI_ScanThenSearch(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "notes.txt", "meeting notes from tuesday")

	w := h.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	assert.Equal(t, float64(1), report["total_files"])
	assert.Equal(t, "completed", report["status"])

	w = h.do(t, http.MethodPost, "/api/search", gin.H{"query": "meeting notes", "search_type": "keyword"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	result := body["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "notes.txt", result["filename"])
	assert.Equal(t, float64(len("meeting notes from tuesday")), result["size"])
}

func TestAPI_ScanAcceptsExplicitPaths(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "keep/letter.txt", "letter about the lease")
	h.write(t, "skip/other.txt", "unrelated")

	w := h.do(t, http.MethodPost, "/api/scan", gin.H{"paths": []string{filepath.Join(h.root, "keep")}})

	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	assert.Equal(t, float64(1), report["total_files"], "only the requested path is scanned")
}

func TestAPI_ScanRejectsUnreadablePaths(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/api/scan", gin.H{"paths": []string{filepath.Join(h.root, "no-such-dir")}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_201")
}

func TestAPI_PartialScanKeepsOtherRecords(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "a/one.txt", "first file")
	h.write(t, "b/two.txt", "second file")

	w := h.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Rescanning only a/ must not treat b/'s file as vanished.
	w = h.do(t, http.MethodPost, "/api/scan", gin.H{"paths": []string{filepath.Join(h.root, "a")}})
	require.Equal(t, http.StatusOK, w.Code)

	files, err := h.st.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestAPI_SearchValidation(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/api/search", gin.H{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The request field is search_type; an unknown value must be
	// rejected, not silently treated as keyword search.
	w = h.do(t, http.MethodPost, "/api/search", gin.H{"query": "x", "search_type": "fuzzy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_402")
}

func TestAPI_ConcurrentScanConflicts(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "doc.txt", "content")

	other := flock.New(h.lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	w := h.do(t, http.MethodPost, "/api/scan", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_404_CONCURRENT_SCAN")
}

func TestAPI_FaceClusters(t *testing.T) {
	h := newAPIHarness(t)
	h.detector.faces = []extract.Face{{Region: store.Region{Width: 10, Height: 10}, Embedding: []float32{1, 0}}}
	h.write(t, "photo.jpg", "jpeg-bytes")

	w := h.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/faces", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	clusters := body["clusters"].([]any)
	require.Len(t, clusters, 1)
	summary := clusters[0].(map[string]any)
	clusterID := summary["cluster_id"].(string)
	assert.Equal(t, clusterID, summary["name"], "unnamed clusters default to their id")
	assert.Equal(t, float64(1), summary["count"])

	w = h.do(t, http.MethodPost, "/api/faces/"+clusterID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	images := decode(t, w)["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, filepath.Join(h.root, "photo.jpg"), images[0])
}

func TestAPI_UnknownClusterIs404(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/api/faces/no-such-cluster", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_403")
}

func TestAPI_Status(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "doc.txt", "content here")

	w := h.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, float64(1), body["total_files"])
	assert.NotNil(t, body["last_scan"])
}

func TestAPI_Stats(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "a.txt", "first document")
	h.write(t, "b.txt", "second document")

	w := h.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total_files"])
	assert.Equal(t, float64(2), body["files_with_text"])
	assert.Positive(t, body["total_size"])
}

func TestAPI_OrganizeFlagsDuplicates(t *testing.T) {
	h := newAPIHarness(t)
	h.write(t, "report.txt", "identical bytes")
	h.write(t, "backup/report-copy.txt", "identical bytes")

	w := h.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/organize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	suggestions := decode(t, w)["suggestions"].([]any)
	require.NotEmpty(t, suggestions)

	first := suggestions[0].(map[string]any)
	assert.Equal(t, "duplicate", first["type"])
	assert.Equal(t, filepath.Join(h.root, "report.txt"), first["original_path"])
	assert.Equal(t, filepath.Join(h.root, "backup", "report-copy.txt"), first["duplicate_path"])
}
