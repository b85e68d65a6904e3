package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// MetadataStore is the durable record of files, embeddings, face
// detections and clusters, backed by SQLite in WAL mode.
type MetadataStore struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
    id              TEXT PRIMARY KEY,
    path            TEXT NOT NULL UNIQUE,
    content_hash    TEXT NOT NULL DEFAULT '',
    size_bytes      INTEGER NOT NULL DEFAULT 0,
    modified_at     INTEGER NOT NULL DEFAULT 0,
    file_type       TEXT NOT NULL DEFAULT 'unknown',
    status          TEXT NOT NULL DEFAULT 'discovered',
    last_scanned_at INTEGER NOT NULL DEFAULT 0,
    text_content    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(content_hash);

CREATE TABLE IF NOT EXISTS embeddings (
    file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE ON UPDATE CASCADE,
    vector  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS face_detections (
    id         TEXT PRIMARY KEY,
    file_id    TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE ON UPDATE CASCADE,
    region_x   INTEGER NOT NULL DEFAULT 0,
    region_y   INTEGER NOT NULL DEFAULT 0,
    region_w   INTEGER NOT NULL DEFAULT 0,
    region_h   INTEGER NOT NULL DEFAULT 0,
    embedding  BLOB NOT NULL,
    cluster_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_detections_file ON face_detections(file_id);
CREATE INDEX IF NOT EXISTS idx_detections_cluster ON face_detections(cluster_id);

CREATE TABLE IF NOT EXISTS face_clusters (
    id                TEXT PRIMARY KEY,
    centroid          BLOB NOT NULL,
    member_count      INTEGER NOT NULL DEFAULT 0,
    representative_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scan_reports (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    report      TEXT NOT NULL
);
`

// NewMetadataStore opens (or creates) the metadata database under dataDir.
func NewMetadataStore(dataDir string) (*MetadataStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "smartfolder.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &MetadataStore{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *MetadataStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *MetadataStore) Path() string {
	return s.path
}

// SaveFile inserts or replaces a file record.
func (s *MetadataStore) SaveFile(ctx context.Context, rec *FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO files (id, path, content_hash, size_bytes, modified_at, file_type, status, last_scanned_at, text_content)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            path = excluded.path,
            content_hash = excluded.content_hash,
            size_bytes = excluded.size_bytes,
            modified_at = excluded.modified_at,
            file_type = excluded.file_type,
            status = excluded.status,
            last_scanned_at = excluded.last_scanned_at,
            text_content = excluded.text_content`,
		rec.ID, rec.Path, rec.ContentHash, rec.SizeBytes, rec.ModifiedAt.UnixNano(),
		string(rec.FileType), string(rec.Status), rec.LastScannedAt.UnixNano(), rec.Text)
	if err != nil {
		return fmt.Errorf("saving file %s: %w", rec.Path, err)
	}
	return nil
}

// GetFile returns a file record by id, or nil if absent.
func (s *MetadataStore) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, path, content_hash, size_bytes, modified_at, file_type, status, last_scanned_at, text_content
        FROM files WHERE id = ?`, id)
	return scanFileRow(row)
}

// GetFileByPath returns a file record by path, or nil if absent.
func (s *MetadataStore) GetFileByPath(ctx context.Context, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, path, content_hash, size_bytes, modified_at, file_type, status, last_scanned_at, text_content
        FROM files WHERE path = ?`, path)
	return scanFileRow(row)
}

// ListFiles returns every file record, ordered by path for determinism.
func (s *MetadataStore) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, path, content_hash, size_bytes, modified_at, file_type, status, last_scanned_at, text_content
        FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*FileRecord
	for rows.Next() {
		rec, err := scanFileRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RenameFile re-keys a record to its new path-derived id, without
// touching extracted content. Embeddings and detections follow via
// ON UPDATE CASCADE. Used when a scan detects a move (same content
// hash, old path gone).
func (s *MetadataStore) RenameFile(ctx context.Context, oldID, newID, newPath string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE files SET id = ?, path = ? WHERE id = ?`, newID, newPath, oldID); err != nil {
		return fmt.Errorf("renaming file row: %w", err)
	}
	return nil
}

// DeleteFile removes a record; embeddings and detections cascade.
func (s *MetadataStore) DeleteFile(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting file %s: %w", id, err)
	}
	return nil
}

// SetFileStatus updates just the status of a record.
func (s *MetadataStore) SetFileStatus(ctx context.Context, id string, status FileStatus) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE files SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return fmt.Errorf("updating status for %s: %w", id, err)
	}
	return nil
}

// GetStats summarizes the store for the status endpoint.
func (s *MetadataStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{FileTypeCounts: make(map[FileType]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT file_type, status, COUNT(*) FROM files GROUP BY file_type, status`)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ft, status string
		var count int
		if err := rows.Scan(&ft, &status, &count); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		stats.TotalFiles += count
		stats.FileTypeCounts[FileType(ft)] += count
		if FileStatus(status) == StatusIndexed {
			stats.IndexedFiles += count
		}
	}
	return stats, rows.Err()
}

// SaveEmbedding stores (or replaces) the whole-file embedding.
func (s *MetadataStore) SaveEmbedding(ctx context.Context, fileID string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO embeddings (file_id, vector) VALUES (?, ?)
        ON CONFLICT(file_id) DO UPDATE SET vector = excluded.vector`,
		fileID, EncodeVector(vector))
	if err != nil {
		return fmt.Errorf("saving embedding for %s: %w", fileID, err)
	}
	return nil
}

// DeleteEmbedding removes a file's embedding if present.
func (s *MetadataStore) DeleteEmbedding(ctx context.Context, fileID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("deleting embedding for %s: %w", fileID, err)
	}
	return nil
}

// AllEmbeddings returns every stored embedding, keyed by file id.
// Used to rebuild the in-memory vector index on startup.
func (s *MetadataStore) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_id, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		out[id] = DecodeVector(blob)
	}
	return out, rows.Err()
}

// SaveDetection inserts or replaces a face detection.
func (s *MetadataStore) SaveDetection(ctx context.Context, d *FaceDetection) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO face_detections (id, file_id, region_x, region_y, region_w, region_h, embedding, cluster_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            file_id = excluded.file_id,
            region_x = excluded.region_x, region_y = excluded.region_y,
            region_w = excluded.region_w, region_h = excluded.region_h,
            embedding = excluded.embedding,
            cluster_id = excluded.cluster_id`,
		d.ID, d.FileID, d.Region.X, d.Region.Y, d.Region.Width, d.Region.Height,
		EncodeVector(d.Embedding), d.ClusterID)
	if err != nil {
		return fmt.Errorf("saving detection %s: %w", d.ID, err)
	}
	return nil
}

// DetectionsByFile returns all detections for one file.
func (s *MetadataStore) DetectionsByFile(ctx context.Context, fileID string) ([]*FaceDetection, error) {
	return s.queryDetections(ctx, `WHERE file_id = ?`, fileID)
}

// ListDetections returns every detection, ordered by id for determinism.
func (s *MetadataStore) ListDetections(ctx context.Context) ([]*FaceDetection, error) {
	return s.queryDetections(ctx, ``)
}

// DeleteDetection removes one detection.
func (s *MetadataStore) DeleteDetection(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM face_detections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting detection %s: %w", id, err)
	}
	return nil
}

// SaveCluster inserts or replaces a face cluster.
func (s *MetadataStore) SaveCluster(ctx context.Context, c *FaceCluster) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO face_clusters (id, centroid, member_count, representative_id)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            centroid = excluded.centroid,
            member_count = excluded.member_count,
            representative_id = excluded.representative_id`,
		c.ID, EncodeVector(c.Centroid), c.MemberCount, c.RepresentativeDetectionID)
	if err != nil {
		return fmt.Errorf("saving cluster %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCluster removes a dissolved cluster.
func (s *MetadataStore) DeleteCluster(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM face_clusters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting cluster %s: %w", id, err)
	}
	return nil
}

// ListClusters returns every cluster with member detection ids attached,
// ordered by id for determinism.
func (s *MetadataStore) ListClusters(ctx context.Context) ([]*FaceCluster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, centroid, member_count, representative_id FROM face_clusters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clusters []*FaceCluster
	byID := make(map[string]*FaceCluster)
	for rows.Next() {
		c := &FaceCluster{}
		var blob []byte
		if err := rows.Scan(&c.ID, &blob, &c.MemberCount, &c.RepresentativeDetectionID); err != nil {
			return nil, fmt.Errorf("scanning cluster row: %w", err)
		}
		c.Centroid = DecodeVector(blob)
		clusters = append(clusters, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	detections, err := s.queryDetections(ctx, `WHERE cluster_id != ''`)
	if err != nil {
		return nil, err
	}
	for _, d := range detections {
		if c, ok := byID[d.ClusterID]; ok {
			c.DetectionIDs = append(c.DetectionIDs, d.ID)
		}
	}
	return clusters, nil
}

// SaveReport persists a finalized scan report as a new row; each scan
// run produces exactly one.
func (s *MetadataStore) SaveReport(ctx context.Context, report *ScanReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO scan_reports (started_at, finished_at, status, report) VALUES (?, ?, ?, ?)`,
		report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(), string(report.Status), string(payload))
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent scan report, or nil if none exists.
func (s *MetadataStore) LatestReport(ctx context.Context) (*ScanReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM scan_reports ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest report: %w", err)
	}

	var report ScanReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &report, nil
}

func (s *MetadataStore) queryDetections(ctx context.Context, where string, args ...any) ([]*FaceDetection, error) {
	q := `SELECT id, file_id, region_x, region_y, region_w, region_h, embedding, cluster_id FROM face_detections ` + where + ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying detections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var detections []*FaceDetection
	for rows.Next() {
		d := &FaceDetection{}
		var blob []byte
		if err := rows.Scan(&d.ID, &d.FileID, &d.Region.X, &d.Region.Y, &d.Region.Width, &d.Region.Height, &blob, &d.ClusterID); err != nil {
			return nil, fmt.Errorf("scanning detection row: %w", err)
		}
		d.Embedding = DecodeVector(blob)
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRow(row *sql.Row) (*FileRecord, error) {
	rec, err := scanFileRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func scanFileRows(row rowScanner) (*FileRecord, error) {
	rec := &FileRecord{}
	var ft, status string
	var modified, scanned int64
	if err := row.Scan(&rec.ID, &rec.Path, &rec.ContentHash, &rec.SizeBytes, &modified, &ft, &status, &scanned, &rec.Text); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning file row: %w", err)
	}
	rec.ModifiedAt = time.Unix(0, modified)
	rec.LastScannedAt = time.Unix(0, scanned)
	rec.FileType = FileType(ft)
	rec.Status = FileStatus(status)
	return rec, nil
}
