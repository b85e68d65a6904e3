// Package store provides the metadata persistence layer (SQLite) and the
// domain types shared across the scanner, indexes, and clustering engine.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FileType classifies a file by its extension.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
	FileTypeText     FileType = "text"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeUnknown  FileType = "unknown"
)

// FileStatus tracks a file's progress through the indexing pipeline.
type FileStatus string

const (
	// StatusDiscovered means the file was seen but not yet processed.
	StatusDiscovered FileStatus = "discovered"
	// StatusExtracted means content extraction ran (possibly degraded).
	StatusExtracted FileStatus = "extracted"
	// StatusIndexed means the file is in at least the keyword index.
	StatusIndexed FileStatus = "indexed"
	// StatusFailed means even metadata capture failed; retried next scan.
	StatusFailed FileStatus = "failed"
)

// FileRecord is the durable record of a known file.
// Owned exclusively by the metadata store.
type FileRecord struct {
	ID            string     // hex SHA-256 of the absolute path
	Path          string     // absolute path
	ContentHash   string     // hex SHA-256 of the file bytes
	SizeBytes     int64
	ModifiedAt    time.Time
	FileType      FileType
	Status        FileStatus
	LastScannedAt time.Time

	// Text is the extracted text, persisted so the keyword index can be
	// rebuilt on startup and snippets served without re-extraction.
	Text string
}

// FileID derives the stable file id from an absolute path.
func FileID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// ExtractedContent is the normalized output of the content pipeline for
// one file. Absent fields mean the corresponding collaborator produced
// nothing (unextractable content or a recorded failure); downstream
// indexing must handle every combination.
type ExtractedContent struct {
	FileID    string
	Text      string
	HasText   bool
	Embedding []float32 // nil when the embedding service failed or there was no text
	Faces     []FaceDetection
}

// Region is a face bounding box within an image.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FaceDetection is one detected face in an image file.
type FaceDetection struct {
	ID        string
	FileID    string
	Region    Region
	Embedding []float32
	ClusterID string // empty until assigned
}

// FaceCluster groups detections believed to be the same person.
type FaceCluster struct {
	ID                        string
	Centroid                  []float32 // running mean of member embeddings
	MemberCount               int
	DetectionIDs              []string // insertion order
	RepresentativeDetectionID string
}

// ScanStatus is the lifecycle state of a scan run.
type ScanStatus string

const (
	ScanStatusRunning             ScanStatus = "running"
	ScanStatusCompleted           ScanStatus = "completed"
	ScanStatusCompletedWithErrors ScanStatus = "completed_with_errors"
	ScanStatusFailed              ScanStatus = "failed"
)

// ScanError records a single per-file failure inside a scan.
type ScanError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanReport summarizes one scan run.
type ScanReport struct {
	ScanPaths          []string         `json:"scan_paths"`
	TotalFiles         int              `json:"total_files"`
	IndexedFiles       int              `json:"indexed_files"`
	VectorIndexedFiles int              `json:"vector_indexed_files"`
	FileTypeCounts     map[FileType]int `json:"file_type_counts"`
	Status             ScanStatus       `json:"status"`
	Errors             []ScanError      `json:"errors,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         time.Time        `json:"finished_at,omitempty"`
}

// Stats is a point-in-time summary of the metadata store for the status
// endpoint.
type Stats struct {
	TotalFiles     int
	IndexedFiles   int
	FileTypeCounts map[FileType]int
}
