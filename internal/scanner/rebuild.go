package scanner

import (
	"context"
	"path/filepath"

	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/store"
)

// RebuildIndexes repopulates the in-memory indexes from the store.
// Called once at startup; after it, search works without a scan.
func RebuildIndexes(ctx context.Context, st *store.MetadataStore,
	keyword *index.KeywordIndex, vector *index.VectorIndex) error {

	files, err := st.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, rec := range files {
		if rec.Text != "" {
			keyword.Upsert(rec.ID, filepath.Base(rec.Path), rec.Text, rec.ModifiedAt)
		}
	}

	embeddings, err := st.AllEmbeddings(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]*store.FileRecord, len(files))
	for _, rec := range files {
		byID[rec.ID] = rec
	}
	for fileID, vec := range embeddings {
		rec, ok := byID[fileID]
		if !ok {
			continue
		}
		vector.Upsert(fileID, vec, rec.ModifiedAt)
	}
	return nil
}
