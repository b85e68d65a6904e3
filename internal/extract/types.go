// Package extract talks to the content collaborators: text extraction
// (local reads and OCR), embedding generation, and face detection. All
// collaborators are interfaces so the pipeline and tests can swap in
// fakes.
package extract

import (
	"context"

	"github.com/smartfolder/smartfolder/internal/store"
)

// Embedding dimensions per collaborator.
const (
	// StaticDimensions is the dimension of the hash-based fallback embedder.
	StaticDimensions = 256

	// FaceEmbeddingDimensions is the dimension of face encodings
	// returned by the face service.
	FaceEmbeddingDimensions = 128
)

// TextExtractor pulls free text out of one file.
type TextExtractor interface {
	// ExtractText returns the text content of the file at path. An
	// empty string with a nil error means the file holds no text.
	ExtractText(ctx context.Context, path string) (string, error)
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Face is one detected face before persistence: a bounding box plus
// the face encoding. Identity assignment happens later, in clustering.
type Face struct {
	Region    store.Region
	Embedding []float32
}

// FaceDetector finds faces in an image file.
type FaceDetector interface {
	// DetectFaces returns every face found in the image at path.
	// A nil slice with a nil error means no faces.
	DetectFaces(ctx context.Context, path string) ([]Face, error)
}
