// Package faces groups face detections into person clusters. The
// clustering is incremental: each new detection is assigned online to
// the nearest cluster or opens a new one, and a consolidation pass
// after each scan merges clusters that drifted together.
package faces

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/store"
)

// Default distance thresholds. Distance is 1 - cosine similarity, so
// 0 is identical and 2 is opposite.
const (
	// DefaultAssignmentThreshold is the maximum centroid distance at
	// which a new detection joins an existing cluster.
	DefaultAssignmentThreshold = 0.30

	// DefaultMergeThreshold is the maximum distance between two
	// centroids at which consolidation merges their clusters. Tighter
	// than assignment: merging is harder to undo than assigning.
	DefaultMergeThreshold = 0.20
)

// Engine maintains face clusters in memory and mirrors every change to
// the metadata store. Safe for concurrent use.
type Engine struct {
	assignmentThreshold float64
	mergeThreshold      float64
	st                  *store.MetadataStore
	logger              *slog.Logger

	mu         sync.Mutex
	clusters   map[string]*store.FaceCluster
	detections map[string]*store.FaceDetection
}

// NewEngine creates an engine backed by st. Non-positive thresholds
// fall back to the defaults.
func NewEngine(st *store.MetadataStore, assignmentThreshold, mergeThreshold float64, logger *slog.Logger) *Engine {
	if assignmentThreshold <= 0 {
		assignmentThreshold = DefaultAssignmentThreshold
	}
	if mergeThreshold <= 0 {
		mergeThreshold = DefaultMergeThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		assignmentThreshold: assignmentThreshold,
		mergeThreshold:      mergeThreshold,
		st:                  st,
		logger:              logger,
		clusters:            make(map[string]*store.FaceCluster),
		detections:          make(map[string]*store.FaceDetection),
	}
}

// Distance converts cosine similarity into a distance in [0, 2].
func Distance(a, b []float32) float64 {
	return 1 - index.CosineSimilarity(a, b)
}

// Load rebuilds the in-memory state from the store. Called once at
// startup, before any Assign.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	clusters, err := e.st.ListClusters(ctx)
	if err != nil {
		return err
	}
	detections, err := e.st.ListDetections(ctx)
	if err != nil {
		return err
	}

	e.clusters = make(map[string]*store.FaceCluster, len(clusters))
	for _, c := range clusters {
		e.clusters[c.ID] = c
	}
	e.detections = make(map[string]*store.FaceDetection, len(detections))
	for _, d := range detections {
		e.detections[d.ID] = d
	}
	return nil
}

// Assign places one detection into a cluster: the nearest centroid
// within the assignment threshold, or a fresh singleton cluster. The
// detection and the touched cluster are persisted before returning.
func (e *Engine) Assign(ctx context.Context, det *store.FaceDetection) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	best, bestDist := e.nearestCluster(det.Embedding)
	if best != nil && bestDist <= e.assignmentThreshold {
		det.ClusterID = best.ID
		e.addToCluster(best, det)
		e.logger.Debug("face assigned to cluster",
			"detection", det.ID, "cluster", best.ID, "distance", bestDist)
	} else {
		c := &store.FaceCluster{
			ID:                        uuid.NewString(),
			Centroid:                  append([]float32(nil), det.Embedding...),
			MemberCount:               1,
			DetectionIDs:              []string{det.ID},
			RepresentativeDetectionID: det.ID,
		}
		det.ClusterID = c.ID
		e.clusters[c.ID] = c
		e.logger.Debug("face opened new cluster", "detection", det.ID, "cluster", c.ID)
	}
	e.detections[det.ID] = det

	if err := e.st.SaveDetection(ctx, det); err != nil {
		return "", err
	}
	if err := e.st.SaveCluster(ctx, e.clusters[det.ClusterID]); err != nil {
		return "", err
	}
	return det.ClusterID, nil
}

// nearestCluster returns the cluster with the closest centroid.
// Ties break on cluster id so assignment is deterministic.
func (e *Engine) nearestCluster(embedding []float32) (*store.FaceCluster, float64) {
	var best *store.FaceCluster
	bestDist := 0.0
	for _, c := range e.sortedClusters() {
		d := Distance(embedding, c.Centroid)
		if best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// addToCluster appends det and folds its embedding into the running
// mean centroid.
func (e *Engine) addToCluster(c *store.FaceCluster, det *store.FaceDetection) {
	c.MemberCount++
	c.DetectionIDs = append(c.DetectionIDs, det.ID)
	n := float32(c.MemberCount)
	for i := range c.Centroid {
		if i < len(det.Embedding) {
			c.Centroid[i] += (det.Embedding[i] - c.Centroid[i]) / n
		}
	}
}

// Consolidate merges clusters whose centroids sit within the merge
// threshold. Pairs are processed in ascending distance order and the
// smaller cluster folds into the larger, so a merge never moves an
// established identity toward a fringe one.
func (e *Engine) Consolidate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		a, b, dist := e.closestPair()
		if a == nil || dist > e.mergeThreshold {
			return nil
		}

		// Smaller into larger; equal sizes keep the lexically first id.
		target, source := a, b
		if source.MemberCount > target.MemberCount {
			target, source = source, target
		}

		e.logger.Info("merging face clusters",
			"into", target.ID, "from", source.ID, "distance", dist)

		for _, detID := range source.DetectionIDs {
			det := e.detections[detID]
			det.ClusterID = target.ID
			if err := e.st.SaveDetection(ctx, det); err != nil {
				return err
			}
		}
		target.DetectionIDs = append(target.DetectionIDs, source.DetectionIDs...)
		target.Centroid = e.meanEmbedding(target.DetectionIDs)
		target.MemberCount = len(target.DetectionIDs)
		e.electRepresentative(target)

		delete(e.clusters, source.ID)
		if err := e.st.DeleteCluster(ctx, source.ID); err != nil {
			return err
		}
		if err := e.st.SaveCluster(ctx, target); err != nil {
			return err
		}
	}
}

// closestPair finds the two clusters with minimum centroid distance.
func (e *Engine) closestPair() (*store.FaceCluster, *store.FaceCluster, float64) {
	clusters := e.sortedClusters()
	var a, b *store.FaceCluster
	bestDist := 0.0
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			d := Distance(clusters[i].Centroid, clusters[j].Centroid)
			if a == nil || d < bestDist {
				a, b, bestDist = clusters[i], clusters[j], d
			}
		}
	}
	return a, b, bestDist
}

// RemoveFile drops every detection belonging to fileID, recomputing or
// dissolving the clusters they were in. Store-side detection rows are
// assumed already gone (file deletion cascades); only clusters are
// written back.
func (e *Engine) RemoveFile(ctx context.Context, fileID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	touched := make(map[string]bool)
	for id, det := range e.detections {
		if det.FileID != fileID {
			continue
		}
		if det.ClusterID != "" {
			touched[det.ClusterID] = true
		}
		delete(e.detections, id)
	}

	for clusterID := range touched {
		c := e.clusters[clusterID]
		if c == nil {
			continue
		}
		remaining := c.DetectionIDs[:0]
		for _, detID := range c.DetectionIDs {
			if _, ok := e.detections[detID]; ok {
				remaining = append(remaining, detID)
			}
		}
		c.DetectionIDs = remaining
		c.MemberCount = len(remaining)

		if c.MemberCount == 0 {
			delete(e.clusters, clusterID)
			if err := e.st.DeleteCluster(ctx, clusterID); err != nil {
				return err
			}
			e.logger.Info("face cluster dissolved", "cluster", clusterID)
			continue
		}

		c.Centroid = e.meanEmbedding(c.DetectionIDs)
		e.electRepresentative(c)
		if err := e.st.SaveCluster(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// RenameFile re-points in-memory detections at a renamed file. The
// store side cascades on its own, so nothing is written back.
func (e *Engine) RenameFile(oldFileID, newFileID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, det := range e.detections {
		if det.FileID == oldFileID {
			det.FileID = newFileID
		}
	}
}

// Clusters returns a snapshot of all clusters, sorted by descending
// member count, ties on id.
func (e *Engine) Clusters() []*store.FaceCluster {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*store.FaceCluster, 0, len(e.clusters))
	for _, c := range e.clusters {
		copied := *c
		copied.Centroid = append([]float32(nil), c.Centroid...)
		copied.DetectionIDs = append([]string(nil), c.DetectionIDs...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberCount != out[j].MemberCount {
			return out[i].MemberCount > out[j].MemberCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cluster returns one cluster by id, or nil if unknown.
func (e *Engine) Cluster(id string) *store.FaceCluster {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clusters[id]
	if !ok {
		return nil
	}
	copied := *c
	copied.Centroid = append([]float32(nil), c.Centroid...)
	copied.DetectionIDs = append([]string(nil), c.DetectionIDs...)
	return &copied
}

// Detections returns the detections in a cluster, in insertion order.
func (e *Engine) Detections(clusterID string) []*store.FaceDetection {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clusters[clusterID]
	if !ok {
		return nil
	}
	out := make([]*store.FaceDetection, 0, len(c.DetectionIDs))
	for _, detID := range c.DetectionIDs {
		if det, ok := e.detections[detID]; ok {
			copied := *det
			out = append(out, &copied)
		}
	}
	return out
}

// meanEmbedding recomputes an exact centroid from member embeddings.
func (e *Engine) meanEmbedding(detectionIDs []string) []float32 {
	var mean []float32
	count := 0
	for _, detID := range detectionIDs {
		det, ok := e.detections[detID]
		if !ok {
			continue
		}
		if mean == nil {
			mean = make([]float32, len(det.Embedding))
		}
		for i, v := range det.Embedding {
			if i < len(mean) {
				mean[i] += v
			}
		}
		count++
	}
	if count == 0 {
		return mean
	}
	for i := range mean {
		mean[i] /= float32(count)
	}
	return mean
}

// electRepresentative picks the member closest to the centroid.
func (e *Engine) electRepresentative(c *store.FaceCluster) {
	bestDist := 0.0
	c.RepresentativeDetectionID = ""
	for _, detID := range c.DetectionIDs {
		det, ok := e.detections[detID]
		if !ok {
			continue
		}
		d := Distance(det.Embedding, c.Centroid)
		if c.RepresentativeDetectionID == "" || d < bestDist {
			c.RepresentativeDetectionID = det.ID
			bestDist = d
		}
	}
}

// sortedClusters returns clusters ordered by id for deterministic
// iteration.
func (e *Engine) sortedClusters() []*store.FaceCluster {
	out := make([]*store.FaceCluster, 0, len(e.clusters))
	for _, c := range e.clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
