package server

import (
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smartfolder/smartfolder/internal/store"
)

// maxSuggestions caps the organize response.
const maxSuggestions = 20

// camera-style or placeholder names worth renaming.
var renameworthyPatterns = []string{"copy", "untitled", "img_", "dsc_"}

// suggestion is one organize recommendation.
type suggestion struct {
	Type          string `json:"type"`
	File          string `json:"file"`
	Suggestion    string `json:"suggestion"`
	OriginalPath  string `json:"original_path,omitempty"`
	DuplicatePath string `json:"duplicate_path,omitempty"`
	CurrentPath   string `json:"current_path,omitempty"`
	SuggestedName string `json:"suggested_name,omitempty"`
}

// handleOrganize proposes cleanups: duplicate files found by content
// hash, and content-derived names for camera-style filenames.
func (s *Server) handleOrganize(c *gin.Context) {
	files, err := s.st.ListFiles(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	suggestions := duplicateSuggestions(files)
	suggestions = append(suggestions, renameSuggestions(files)...)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// duplicateSuggestions groups files by content hash and marks all but
// the shortest path in each group as removable.
func duplicateSuggestions(files []*store.FileRecord) []suggestion {
	byHash := make(map[string][]*store.FileRecord)
	for _, rec := range files {
		if rec.ContentHash != "" {
			byHash[rec.ContentHash] = append(byHash[rec.ContentHash], rec)
		}
	}

	hashes := make([]string, 0, len(byHash))
	for hash, group := range byHash {
		if len(group) > 1 {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)

	var out []suggestion
	for _, hash := range hashes {
		group := byHash[hash]
		sort.Slice(group, func(i, j int) bool {
			if len(group[i].Path) != len(group[j].Path) {
				return len(group[i].Path) < len(group[j].Path)
			}
			return group[i].Path < group[j].Path
		})
		original := group[0]
		for _, dup := range group[1:] {
			out = append(out, suggestion{
				Type:          "duplicate",
				File:          filepath.Base(dup.Path),
				Suggestion:    "Duplicate of '" + filepath.Base(original.Path) + "'. Consider removing.",
				OriginalPath:  original.Path,
				DuplicatePath: dup.Path,
			})
		}
	}
	return out
}

// renameSuggestions proposes content-derived names for files with
// meaningless camera or placeholder names.
func renameSuggestions(files []*store.FileRecord) []suggestion {
	var out []suggestion
	for _, rec := range files {
		name := filepath.Base(rec.Path)
		if !renameworthy(name) || rec.Text == "" {
			continue
		}

		firstLine := strings.TrimSpace(strings.SplitN(rec.Text, "\n", 2)[0])
		if firstLine == "" || len(firstLine) >= 50 {
			continue
		}

		suggested := strings.ReplaceAll(firstLine, " ", "_")
		if len(suggested) > 30 {
			suggested = suggested[:30]
		}
		suggested += filepath.Ext(name)

		out = append(out, suggestion{
			Type:          "rename",
			File:          name,
			Suggestion:    "Rename to '" + suggested + "' based on content",
			CurrentPath:   rec.Path,
			SuggestedName: suggested,
		})
	}
	return out
}

func renameworthy(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range renameworthyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
