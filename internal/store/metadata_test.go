package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MetadataStore {
	t.Helper()
	s, err := NewMetadataStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(path string) *FileRecord {
	return &FileRecord{
		ID:            FileID(path),
		Path:          path,
		ContentHash:   "abc123",
		SizeBytes:     42,
		ModifiedAt:    time.Unix(1700000000, 0),
		FileType:      FileTypeText,
		Status:        StatusIndexed,
		LastScannedAt: time.Unix(1700000100, 0),
		Text:          "meeting notes today",
	}
}

func TestSaveFile_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/data/doc.txt")
	require.NoError(t, s.SaveFile(ctx, rec))

	got, err := s.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.True(t, rec.ModifiedAt.Equal(got.ModifiedAt))
	assert.Equal(t, FileTypeText, got.FileType)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.Equal(t, "meeting notes today", got.Text)
}

func TestGetFile_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetFile(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveFile_UpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/data/doc.txt")
	require.NoError(t, s.SaveFile(ctx, rec))

	rec.ContentHash = "def456"
	rec.Status = StatusFailed
	require.NoError(t, s.SaveFile(ctx, rec))

	got, err := s.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "def456", got.ContentHash)
	assert.Equal(t, StatusFailed, got.Status)

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDeleteFile_CascadesToEmbeddingsAndDetections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/data/photo.jpg")
	require.NoError(t, s.SaveFile(ctx, rec))
	require.NoError(t, s.SaveEmbedding(ctx, rec.ID, []float32{0.1, 0.2}))
	require.NoError(t, s.SaveDetection(ctx, &FaceDetection{
		ID:        "det-1",
		FileID:    rec.ID,
		Embedding: []float32{0.5, 0.5},
	}))

	require.NoError(t, s.DeleteFile(ctx, rec.ID))

	embeddings, err := s.AllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	detections, err := s.ListDetections(ctx)
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestRenameFile_ReKeysChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/data/old.jpg")
	require.NoError(t, s.SaveFile(ctx, rec))
	require.NoError(t, s.SaveEmbedding(ctx, rec.ID, []float32{0.3, 0.4}))
	require.NoError(t, s.SaveDetection(ctx, &FaceDetection{
		ID: "det-1", FileID: rec.ID, Embedding: []float32{1, 0},
	}))

	newPath := "/data/new.jpg"
	newID := FileID(newPath)
	require.NoError(t, s.RenameFile(ctx, rec.ID, newID, newPath))

	got, err := s.GetFile(ctx, newID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newPath, got.Path)
	assert.Equal(t, "meeting notes today", got.Text, "extracted content survives rename")

	old, err := s.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, old)

	embeddings, err := s.AllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Contains(t, embeddings, newID)

	detections, err := s.DetectionsByFile(ctx, newID)
	require.NoError(t, err)
	assert.Len(t, detections, 1)
}

func TestEmbedding_RoundTripPreservesValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/data/doc.txt")
	require.NoError(t, s.SaveFile(ctx, rec))

	vec := []float32{0.25, -1.5, 3.125}
	require.NoError(t, s.SaveEmbedding(ctx, rec.ID, vec))

	all, err := s.AllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, vec, all[rec.ID])
}

func TestClusters_RoundTripWithMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("/data/photo.jpg")
	require.NoError(t, s.SaveFile(ctx, rec))

	require.NoError(t, s.SaveDetection(ctx, &FaceDetection{
		ID: "det-a", FileID: rec.ID, Embedding: []float32{1, 0}, ClusterID: "cluster-1",
	}))
	require.NoError(t, s.SaveDetection(ctx, &FaceDetection{
		ID: "det-b", FileID: rec.ID, Embedding: []float32{0.9, 0.1}, ClusterID: "cluster-1",
	}))

	require.NoError(t, s.SaveCluster(ctx, &FaceCluster{
		ID:                        "cluster-1",
		Centroid:                  []float32{0.95, 0.05},
		MemberCount:               2,
		RepresentativeDetectionID: "det-a",
	}))

	clusters, err := s.ListClusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, 2, c.MemberCount)
	assert.ElementsMatch(t, []string{"det-a", "det-b"}, c.DetectionIDs)
	assert.Equal(t, "det-a", c.RepresentativeDetectionID)
	assert.InDelta(t, 0.95, c.Centroid[0], 1e-6)
}

func TestGetStats_CountsByTypeAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testRecord("/data/a.txt")
	b := testRecord("/data/b.jpg")
	b.FileType = FileTypeImage
	c := testRecord("/data/c.txt")
	c.Status = StatusFailed
	for _, rec := range []*FileRecord{a, b, c} {
		require.NoError(t, s.SaveFile(ctx, rec))
	}

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.IndexedFiles)
	assert.Equal(t, 2, stats.FileTypeCounts[FileTypeText])
	assert.Equal(t, 1, stats.FileTypeCounts[FileTypeImage])
}

func TestScanReports_LatestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &ScanReport{
		ScanPaths:  []string{"/data"},
		TotalFiles: 1,
		Status:     ScanStatusCompleted,
		StartedAt:  time.Unix(1700000000, 0),
		FinishedAt: time.Unix(1700000010, 0),
	}
	second := &ScanReport{
		ScanPaths:  []string{"/data"},
		TotalFiles: 5,
		Status:     ScanStatusCompletedWithErrors,
		Errors:     []ScanError{{Path: "/data/bad.pdf", Reason: "extraction failed"}},
		StartedAt:  time.Unix(1700001000, 0),
		FinishedAt: time.Unix(1700001010, 0),
	}
	require.NoError(t, s.SaveReport(ctx, first))
	require.NoError(t, s.SaveReport(ctx, second))

	latest, err := s.LatestReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 5, latest.TotalFiles)
	assert.Equal(t, ScanStatusCompletedWithErrors, latest.Status)
	require.Len(t, latest.Errors, 1)
	assert.Equal(t, "/data/bad.pdf", latest.Errors[0].Path)
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		path string
		want FileType
	}{
		{"photo.JPG", FileTypeImage},
		{"notes.txt", FileTypeText},
		{"report.pdf", FileTypeDocument},
		{"clip.mp4", FileTypeVideo},
		{"song.mp3", FileTypeAudio},
		{"archive.tar.gz", FileTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFileType(tt.path))
		})
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 1e-7}
	assert.Equal(t, vec, DecodeVector(EncodeVector(vec)))
	assert.Nil(t, DecodeVector(nil))
}
