package extract

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/smartfolder/smartfolder/internal/errors"
)

// DefaultTextReadLimit caps how much of a text file is read for
// indexing. Plenty for search; keeps giant logs from bloating the index.
const DefaultTextReadLimit = 64 * 1024

// LocalTextReader extracts text from plain-text files by reading them
// directly, no collaborator involved.
type LocalTextReader struct {
	limit int64
}

var _ TextExtractor = (*LocalTextReader)(nil)

// NewLocalTextReader creates a reader that takes at most limit bytes
// per file. A non-positive limit uses DefaultTextReadLimit.
func NewLocalTextReader(limit int64) *LocalTextReader {
	if limit <= 0 {
		limit = DefaultTextReadLimit
	}
	return &LocalTextReader{limit: limit}
}

// ExtractText reads up to the configured limit from the file at path.
// Binary content (NUL bytes in the sample) yields an empty string.
func (r *LocalTextReader) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.ExtractionError("failed to open file", err).WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, r.limit))
	if err != nil {
		return "", errors.ExtractionError("failed to read file", err).WithDetail("path", path)
	}

	if bytes.IndexByte(data, 0) >= 0 {
		return "", nil
	}

	text := strings.ToValidUTF8(string(data), "")
	return strings.TrimSpace(text), nil
}
