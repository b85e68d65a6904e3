// Package scanner walks the configured roots and reconciles what it
// finds against the metadata store: new files are processed, changed
// files reprocessed, moved files re-keyed without touching any
// collaborator, and vanished files removed everywhere.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/faces"
	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/pipeline"
	"github.com/smartfolder/smartfolder/internal/store"
)

// DefaultMaxFileSize caps how large a file the scanner will hash and
// process.
const DefaultMaxFileSize = 50 * 1024 * 1024

// junkFiles are never indexed regardless of extension.
var junkFiles = map[string]bool{
	"Thumbs.db":   true,
	"desktop.ini": true,
	".DS_Store":   true,
}

// Config controls one scanner instance.
type Config struct {
	// Roots are the directories to scan.
	Roots []string

	// ExcludePaths are absolute path prefixes to skip, e.g. the data
	// directory when it lives under a scan root.
	ExcludePaths []string

	// Workers bounds concurrent file processing. Defaults to NumCPU.
	Workers int

	// MaxFileSize in bytes. Defaults to DefaultMaxFileSize.
	MaxFileSize int64

	// FollowSymlinks walks through symlinks, deduplicating targets by
	// canonical path so a link cycle cannot loop the scan.
	FollowSymlinks bool

	// LockPath is the cross-process scan lock file. Defaults to a
	// lock file in the temp directory.
	LockPath string
}

// Scanner reconciles the filesystem with the store and the in-memory
// indexes.
type Scanner struct {
	cfg     Config
	st      *store.MetadataStore
	pipe    *pipeline.Pipeline
	keyword *index.KeywordIndex
	vector  *index.VectorIndex
	faces   *faces.Engine
	logger  *slog.Logger

	running atomic.Bool
}

// candidate is one file found during the walk.
type candidate struct {
	path string
	info fs.FileInfo
}

// New creates a Scanner.
func New(cfg Config, st *store.MetadataStore, pipe *pipeline.Pipeline,
	keyword *index.KeywordIndex, vector *index.VectorIndex,
	faceEngine *faces.Engine, logger *slog.Logger) *Scanner {

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.LockPath == "" && len(cfg.Roots) > 0 {
		cfg.LockPath = filepath.Join(os.TempDir(), "smartfolder.scan.lock")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		cfg:     cfg,
		st:      st,
		pipe:    pipe,
		keyword: keyword,
		vector:  vector,
		faces:   faceEngine,
		logger:  logger,
	}
}

// Scan runs one full reconciliation pass. At most one scan runs at a
// time, across goroutines and across processes; a second caller gets a
// concurrent-scan error immediately instead of queueing.
func (s *Scanner) Scan(ctx context.Context) (*store.ScanReport, error) {
	return s.ScanPaths(ctx, nil)
}

// ScanPaths scans the given roots instead of the configured ones.
// Removal of vanished records is scoped to the scanned roots, so a
// partial scan never deletes files it did not look at. Empty roots
// fall back to the configuration.
func (s *Scanner) ScanPaths(ctx context.Context, roots []string) (*store.ScanReport, error) {
	if len(roots) == 0 {
		roots = s.cfg.Roots
	}

	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.ConcurrentScanError()
	}
	defer s.running.Store(false)

	fileLock := flock.New(s.cfg.LockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "failed to acquire scan lock", err)
	}
	if !locked {
		return nil, errors.ConcurrentScanError()
	}
	defer func() { _ = fileLock.Unlock() }()

	report := &store.ScanReport{
		ScanPaths:      append([]string(nil), roots...),
		FileTypeCounts: make(map[store.FileType]int),
		Status:         store.ScanStatusRunning,
		StartedAt:      time.Now(),
	}
	s.logger.Info("scan started", "roots", roots, "workers", s.cfg.Workers)

	run := &scanRun{scanner: s, roots: roots, report: report, seen: make(map[string]bool)}
	err = run.execute(ctx)

	report.FinishedAt = time.Now()
	switch {
	case err != nil:
		report.Status = store.ScanStatusFailed
	case len(report.Errors) > 0:
		report.Status = store.ScanStatusCompletedWithErrors
	default:
		report.Status = store.ScanStatusCompleted
	}

	if saveErr := s.st.SaveReport(context.WithoutCancel(ctx), report); saveErr != nil {
		s.logger.Error("failed to persist scan report", "error", saveErr)
	}

	s.logger.Info("scan finished",
		"status", report.Status,
		"total", report.TotalFiles,
		"indexed", report.IndexedFiles,
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt))

	if err != nil {
		return report, err
	}
	return report, nil
}

// scanRun holds the mutable state of one pass.
type scanRun struct {
	scanner *Scanner
	roots   []string
	report  *store.ScanReport

	mu   sync.Mutex
	seen map[string]bool // paths found on disk this pass
}

func (r *scanRun) execute(ctx context.Context) error {
	s := r.scanner

	existing, err := s.st.ListFiles(ctx)
	if err != nil {
		return err
	}
	existing = underRoots(existing, r.roots)
	byPath := make(map[string]*store.FileRecord, len(existing))
	for _, rec := range existing {
		byPath[rec.Path] = rec
	}

	candidates := r.discover(ctx)

	// Partition: unchanged short-circuits on (size, mtime) without
	// reading a byte; everything else needs a content hash.
	var toHash []candidate
	for _, c := range candidates {
		r.seen[c.path] = true
		r.report.TotalFiles++
		r.report.FileTypeCounts[store.DetectFileType(c.path)]++

		prior := byPath[c.path]
		if prior != nil && prior.SizeBytes == c.info.Size() && prior.ModifiedAt.Equal(c.info.ModTime()) {
			continue
		}
		toHash = append(toHash, c)
	}

	hashes, err := r.hashAll(ctx, toHash)
	if err != nil {
		return err
	}

	// Vanished records matched by content hash against a new path are
	// renames: re-key them everywhere, never re-extract.
	vanishedByHash := make(map[string]*store.FileRecord)
	for _, rec := range existing {
		if !r.seen[rec.Path] && rec.ContentHash != "" {
			vanishedByHash[rec.ContentHash] = rec
		}
	}

	var toProcess []candidate
	renamed := make(map[string]bool) // old paths consumed by a rename
	for _, c := range toHash {
		hash, ok := hashes[c.path]
		if !ok {
			continue // hashing failed, already reported
		}
		prior := byPath[c.path]
		if prior == nil {
			if old, isRename := vanishedByHash[hash]; isRename && !renamed[old.Path] {
				if err := r.rename(ctx, old, c); err != nil {
					return err
				}
				renamed[old.Path] = true
				continue
			}
			toProcess = append(toProcess, c)
			continue
		}
		if prior.ContentHash == hash {
			// Touched but not modified; refresh the metadata only.
			prior.SizeBytes = c.info.Size()
			prior.ModifiedAt = c.info.ModTime()
			prior.LastScannedAt = time.Now()
			if err := s.st.SaveFile(ctx, prior); err != nil {
				return err
			}
			continue
		}
		toProcess = append(toProcess, c)
	}

	if err := r.processAll(ctx, toProcess, hashes); err != nil {
		return err
	}

	// Whatever is still unaccounted for is gone from disk.
	for _, rec := range existing {
		if r.seen[rec.Path] || renamed[rec.Path] {
			continue
		}
		if err := r.remove(ctx, rec); err != nil {
			return err
		}
	}

	// Clusters drift as faces accumulate; merge the ones that have
	// converged on the same person.
	if err := s.faces.Consolidate(ctx); err != nil {
		return err
	}

	// Report index membership for the scanned roots only; a partial
	// scan must not take credit for files it never visited.
	final, err := s.st.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, rec := range underRoots(final, r.roots) {
		if s.keyword.Contains(rec.ID) {
			r.report.IndexedFiles++
		}
		if s.vector.Contains(rec.ID) {
			r.report.VectorIndexedFiles++
		}
	}
	return ctx.Err()
}

// discover walks every root and returns the files to consider.
func (r *scanRun) discover(ctx context.Context) []candidate {
	var out []candidate
	visited := make(map[string]bool)

	for _, root := range r.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			r.addError(root, "invalid scan root: "+err.Error())
			continue
		}
		if _, err := os.Stat(absRoot); err != nil {
			r.addError(root, errors.PathError("scan root not found", err).Error())
			continue
		}
		r.walk(ctx, absRoot, visited, &out)
	}
	return out
}

func (r *scanRun) walk(ctx context.Context, root string, visited map[string]bool, out *[]candidate) {
	s := r.scanner

	if canonical, err := filepath.EvalSymlinks(root); err == nil {
		if visited[canonical] {
			return
		}
		visited[canonical] = true
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			r.addError(path, "unreadable: "+err.Error())
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if r.excluded(path) {
				return filepath.SkipDir
			}
			if canonical, evalErr := filepath.EvalSymlinks(path); evalErr == nil {
				if path != root && visited[canonical] {
					return filepath.SkipDir
				}
				visited[canonical] = true
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || junkFiles[name] || r.excluded(path) {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !s.cfg.FollowSymlinks {
				return nil
			}
			r.followLink(ctx, path, visited, out)
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			r.addError(path, "unreadable: "+infoErr.Error())
			return nil
		}
		r.consider(path, info, visited, out)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		r.addError(root, err.Error())
	}
}

// followLink resolves a symlink and either records the target file or
// walks the target directory. The visited set keeps cycles finite.
func (r *scanRun) followLink(ctx context.Context, path string, visited map[string]bool, out *[]candidate) {
	info, err := os.Stat(path)
	if err != nil {
		r.addError(path, "dangling symlink: "+err.Error())
		return
	}
	if info.IsDir() {
		r.walk(ctx, path, visited, out)
		return
	}
	r.consider(path, info, visited, out)
}

// consider adds a regular file to the candidate list, deduplicating by
// canonical path and enforcing the size cap.
func (r *scanRun) consider(path string, info fs.FileInfo, visited map[string]bool, out *[]candidate) {
	if canonical, err := filepath.EvalSymlinks(path); err == nil {
		if visited[canonical] {
			return
		}
		visited[canonical] = true
	}

	if info.Size() > r.scanner.cfg.MaxFileSize {
		r.addError(path, errors.New(errors.ErrCodeFileTooLarge, "file exceeds size limit", nil).Error())
		return
	}
	*out = append(*out, candidate{path: path, info: info})
}

// hashAll computes content hashes for the given candidates in the
// worker pool.
func (r *scanRun) hashAll(ctx context.Context, candidates []candidate) (map[string]string, error) {
	hashes := make(map[string]string, len(candidates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.scanner.cfg.Workers)
	for _, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hash, err := hashFile(c.path)
			if err != nil {
				r.addError(c.path, "unreadable: "+err.Error())
				return nil
			}
			mu.Lock()
			hashes[c.path] = hash
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// rename re-keys a moved file in the store and both indexes. The
// content is untouched, so no collaborator is invoked.
func (r *scanRun) rename(ctx context.Context, old *store.FileRecord, c candidate) error {
	s := r.scanner
	newID := store.FileID(c.path)

	s.logger.Info("file moved", "from", old.Path, "to", c.path)

	if err := s.st.RenameFile(ctx, old.ID, newID, c.path); err != nil {
		return err
	}

	rec, err := s.st.GetFile(ctx, newID)
	if err != nil {
		return err
	}
	rec.SizeBytes = c.info.Size()
	rec.ModifiedAt = c.info.ModTime()
	rec.LastScannedAt = time.Now()
	if err := s.st.SaveFile(ctx, rec); err != nil {
		return err
	}

	s.keyword.Rename(old.ID, newID, c.info.ModTime())
	s.vector.Rename(old.ID, newID, c.info.ModTime())
	s.faces.RenameFile(old.ID, newID)
	return nil
}

// processAll runs new and changed files through the extraction
// pipeline, bounded by the worker pool.
func (r *scanRun) processAll(ctx context.Context, candidates []candidate, hashes map[string]string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.scanner.cfg.Workers)
	for _, c := range candidates {
		g.Go(func() error {
			return r.processOne(gctx, c, hashes[c.path])
		})
	}
	return g.Wait()
}

func (r *scanRun) processOne(ctx context.Context, c candidate, hash string) error {
	s := r.scanner

	rec := &store.FileRecord{
		ID:            store.FileID(c.path),
		Path:          c.path,
		ContentHash:   hash,
		SizeBytes:     c.info.Size(),
		ModifiedAt:    c.info.ModTime(),
		FileType:      store.DetectFileType(c.path),
		Status:        store.StatusDiscovered,
		LastScannedAt: time.Now(),
	}

	// A changed file may hold stale detections from its previous
	// content; clear them before the pipeline adds new ones.
	if err := r.clearDetections(ctx, rec.ID); err != nil {
		return err
	}

	content, warnings, err := s.pipe.Process(ctx, *rec)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		r.addError(c.path, w.Error())
	}

	rec.Text = content.Text
	rec.Status = fileStatus(content, warnings)
	indexable := rec.Status == store.StatusIndexed
	if indexable {
		// The record claims indexed only after both indexes and the
		// cluster engine have accepted the content.
		rec.Status = store.StatusExtracted
	}
	if err := s.st.SaveFile(ctx, rec); err != nil {
		return err
	}

	if content.HasText {
		s.keyword.Upsert(rec.ID, filepath.Base(c.path), content.Text, rec.ModifiedAt)
	} else {
		s.keyword.Remove(rec.ID)
	}

	if len(content.Embedding) > 0 {
		if err := s.st.SaveEmbedding(ctx, rec.ID, content.Embedding); err != nil {
			return err
		}
		s.vector.Upsert(rec.ID, content.Embedding, rec.ModifiedAt)
	} else {
		if err := s.st.DeleteEmbedding(ctx, rec.ID); err != nil {
			return err
		}
		s.vector.Remove(rec.ID)
	}

	for i := range content.Faces {
		if _, err := s.faces.Assign(ctx, &content.Faces[i]); err != nil {
			return err
		}
	}

	if indexable {
		rec.Status = store.StatusIndexed
		if err := s.st.SaveFile(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// clearDetections removes stored and clustered detections for a file
// that is about to be reprocessed.
func (r *scanRun) clearDetections(ctx context.Context, fileID string) error {
	s := r.scanner
	detections, err := s.st.DetectionsByFile(ctx, fileID)
	if err != nil {
		return err
	}
	if len(detections) == 0 {
		return nil
	}
	for _, det := range detections {
		if err := s.st.DeleteDetection(ctx, det.ID); err != nil {
			return err
		}
	}
	return s.faces.RemoveFile(ctx, fileID)
}

// remove erases a vanished file everywhere: the store row (children
// cascade), both indexes, and the face clusters.
func (r *scanRun) remove(ctx context.Context, rec *store.FileRecord) error {
	s := r.scanner
	s.logger.Info("file removed", "path", rec.Path)

	if err := s.faces.RemoveFile(ctx, rec.ID); err != nil {
		return err
	}
	if err := s.st.DeleteFile(ctx, rec.ID); err != nil {
		return err
	}
	s.keyword.Remove(rec.ID)
	s.vector.Remove(rec.ID)
	return nil
}

func (r *scanRun) addError(path, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Errors = append(r.report.Errors, store.ScanError{Path: path, Reason: reason})
}

func (r *scanRun) excluded(path string) bool {
	for _, prefix := range r.scanner.cfg.ExcludePaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// underRoots keeps the records living under one of the scanned roots.
// Records outside them belong to other roots and are not this pass's
// business.
func underRoots(recs []*store.FileRecord, roots []string) []*store.FileRecord {
	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		if a, err := filepath.Abs(root); err == nil {
			abs = append(abs, a)
		}
	}

	out := make([]*store.FileRecord, 0, len(recs))
	for _, rec := range recs {
		for _, root := range abs {
			if rec.Path == root || strings.HasPrefix(rec.Path, root+string(filepath.Separator)) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// fileStatus derives the record status from what extraction produced.
func fileStatus(content store.ExtractedContent, warnings []error) store.FileStatus {
	produced := content.HasText || len(content.Embedding) > 0 || len(content.Faces) > 0
	switch {
	case produced:
		return store.StatusIndexed
	case len(warnings) > 0:
		return store.StatusFailed
	default:
		return store.StatusDiscovered
	}
}

// hashFile streams a file through SHA-256.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
