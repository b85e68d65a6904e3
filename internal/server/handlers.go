package server

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/smartfolder/smartfolder/internal/errors"
	"github.com/smartfolder/smartfolder/internal/store"
)

type scanRequest struct {
	Paths []string `json:"paths"`
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"search_type"`
}

type clusterSummary struct {
	ClusterID               string `json:"cluster_id"`
	Name                    string `json:"name"`
	Count                   int    `json:"count"`
	RepresentativeDetection string `json:"representative_detection_id"`
}

// handleScan runs a scan and returns its report. Request paths, when
// given, override the configured roots; only readable directories
// count. A scan already in flight answers 409 instead of queueing.
func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	roots := req.Paths
	if len(roots) == 0 {
		roots = s.scanPaths
	}
	valid := make([]string, 0, len(roots))
	for _, root := range roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			valid = append(valid, root)
		}
	}
	if len(valid) == 0 {
		s.fail(c, errors.PathError("no readable scan path", nil).
			WithDetail("paths", fmt.Sprintf("%v", roots)))
		return
	}

	report, err := s.scanner.ScanPaths(c.Request.Context(), valid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := s.search.Search(c.Request.Context(), req.Query, req.Mode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) handleFaceClusters(c *gin.Context) {
	clusters := s.faces.Clusters()
	out := make([]clusterSummary, 0, len(clusters))
	for _, cl := range clusters {
		out = append(out, clusterSummary{
			ClusterID:               cl.ID,
			Name:                    cl.ID, // clusters are unnamed until a UI labels them
			Count:                   cl.MemberCount,
			RepresentativeDetection: cl.RepresentativeDetectionID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"clusters": out})
}

// handleFaceClusterImages resolves a cluster to the image files its
// detections came from.
func (s *Server) handleFaceClusterImages(c *gin.Context) {
	clusterID := c.Param("cluster_id")
	cluster := s.faces.Cluster(clusterID)
	if cluster == nil {
		s.fail(c, errors.New(errors.ErrCodeUnknownCluster, "unknown face cluster", nil).
			WithDetail("cluster_id", clusterID))
		return
	}

	seen := make(map[string]bool)
	images := make([]string, 0)
	for _, det := range s.faces.Detections(clusterID) {
		rec, err := s.st.GetFile(c.Request.Context(), det.FileID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if rec == nil || seen[rec.Path] {
			continue
		}
		seen[rec.Path] = true
		images = append(images, rec.Path)
	}

	c.JSON(http.StatusOK, gin.H{
		"cluster_id":   clusterID,
		"member_count": cluster.MemberCount,
		"images":       images,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	stats, err := s.st.GetStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	status := gin.H{
		"status":        "online",
		"scan_paths":    s.scanPaths,
		"total_files":   stats.TotalFiles,
		"indexed_files": stats.IndexedFiles,
		"file_types":    stats.FileTypeCounts,
		"face_clusters": len(s.faces.Clusters()),
	}

	if report, err := s.st.LatestReport(c.Request.Context()); err == nil && report != nil {
		status["last_scan"] = report
	}
	c.JSON(http.StatusOK, status)
}

// handleStats walks the full file listing for a deeper breakdown than
// the status endpoint offers.
func (s *Server) handleStats(c *gin.Context) {
	files, err := s.st.ListFiles(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	var totalSize int64
	indexed, withText := 0, 0
	fileTypes := make(map[store.FileType]int)
	for _, rec := range files {
		totalSize += rec.SizeBytes
		fileTypes[rec.FileType]++
		if rec.Status == store.StatusIndexed {
			indexed++
		}
		if rec.Text != "" {
			withText++
		}
	}

	withFaces := make(map[string]bool)
	detections, err := s.st.ListDetections(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	for _, det := range detections {
		withFaces[det.FileID] = true
	}

	c.JSON(http.StatusOK, gin.H{
		"total_files":      len(files),
		"total_size":       totalSize,
		"file_types":       fileTypes,
		"indexed_files":    indexed,
		"files_with_text":  withText,
		"files_with_faces": len(withFaces),
	})
}
