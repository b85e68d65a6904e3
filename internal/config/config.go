// Package config loads and validates smartfolder configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// environment variables (SMARTFOLDER_*). A .env file in the working
// directory is loaded into the environment first, matching how the
// service is deployed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file looked up in the data directory.
const DefaultConfigName = "config.yaml"

// Config is the complete smartfolder configuration.
type Config struct {
	// Paths configures which directories are scanned.
	Paths PathsConfig `yaml:"paths"`

	// Scan configures the incremental scanner.
	Scan ScanConfig `yaml:"scan"`

	// Search configures search behavior.
	Search SearchConfig `yaml:"search"`

	// Faces configures the face clustering engine.
	Faces FacesConfig `yaml:"faces"`

	// Collaborators configures the external services.
	Collaborators CollaboratorsConfig `yaml:"collaborators"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig configures scan roots and the data directory.
type PathsConfig struct {
	// ScanRoots are the default directories to scan.
	ScanRoots []string `yaml:"scan_roots"`

	// DataDir holds the metadata database, lock file and logs.
	// Defaults to ~/.smartfolder.
	DataDir string `yaml:"data_dir"`
}

// ScanConfig configures the scanner.
type ScanConfig struct {
	// Workers bounds the concurrent file-processing pool.
	// Defaults to the CPU count.
	Workers int `yaml:"workers"`

	// MaxFileSizeBytes skips files larger than this (default 50MB).
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// FollowSymlinks enables walking through symlinked directories.
	// Visited directories are tracked by canonical path either way.
	FollowSymlinks bool `yaml:"follow_symlinks"`
}

// SearchConfig configures the search coordinator and vector index.
type SearchConfig struct {
	// MaxResults caps the number of results returned (default 20).
	MaxResults int `yaml:"max_results"`

	// MinScore is the relevance floor for semantic results (default 0.30).
	// Matches scoring below it are discarded as noise.
	MinScore float64 `yaml:"min_score"`
}

// FacesConfig configures face clustering thresholds.
type FacesConfig struct {
	// AssignmentThreshold is the maximum centroid distance for joining
	// an existing cluster (default 0.30).
	AssignmentThreshold float64 `yaml:"assignment_threshold"`

	// MergeThreshold is the maximum centroid distance for merging two
	// clusters during consolidation. Must be below AssignmentThreshold
	// (default 0.20).
	MergeThreshold float64 `yaml:"merge_threshold"`
}

// CollaboratorsConfig configures the external extraction services.
type CollaboratorsConfig struct {
	// OCREndpoint is the text-extraction service for images and PDFs.
	// Empty disables OCR; such files are indexed by metadata only.
	OCREndpoint string `yaml:"ocr_endpoint"`

	// EmbeddingHost is an Ollama-compatible embeddings API.
	// Empty falls back to the deterministic static embedder.
	EmbeddingHost string `yaml:"embedding_host"`

	// EmbeddingModel is the embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`

	// FaceEndpoint is the face-detection service. Empty disables
	// face clustering.
	FaceEndpoint string `yaml:"face_endpoint"`

	// RequestsPerSecond bounds the collaborator call rate (default 20).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address (default ":8099").
	Addr string `yaml:"addr"`

	// Watch enables the filesystem watcher that triggers rescans.
	Watch bool `yaml:"watch"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Scan: ScanConfig{
			Workers:          runtime.NumCPU(),
			MaxFileSizeBytes: 50 * 1024 * 1024,
		},
		Search: SearchConfig{
			MaxResults: 20,
			MinScore:   0.30,
		},
		Faces: FacesConfig{
			AssignmentThreshold: 0.30,
			MergeThreshold:      0.20,
		},
		Collaborators: CollaboratorsConfig{
			EmbeddingModel:    "embeddinggemma",
			RequestsPerSecond: 20,
		},
		Server: ServerConfig{
			Addr: ":8099",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (empty uses DataDir/config.yaml),
// then applies environment overrides and validates the result.
// A missing config file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	// .env is optional, same as the deployment convention.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.Paths.DataDir, DefaultConfigName)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks invariants that would otherwise surface as subtle bugs.
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be >= 1, got %d", c.Scan.Workers)
	}
	if c.Scan.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("scan.max_file_size_bytes must be positive, got %d", c.Scan.MaxFileSizeBytes)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in [0,1], got %g", c.Search.MinScore)
	}
	if c.Faces.AssignmentThreshold <= 0 {
		return fmt.Errorf("faces.assignment_threshold must be positive, got %g", c.Faces.AssignmentThreshold)
	}
	if c.Faces.MergeThreshold >= c.Faces.AssignmentThreshold {
		return fmt.Errorf("faces.merge_threshold (%g) must be below faces.assignment_threshold (%g)",
			c.Faces.MergeThreshold, c.Faces.AssignmentThreshold)
	}
	return nil
}

// applyEnv overlays SMARTFOLDER_* environment variables.
func applyEnv(c *Config) {
	if v := os.Getenv("SMARTFOLDER_SCAN_PATHS"); v != "" {
		c.Paths.ScanRoots = splitList(v)
	}
	if v := os.Getenv("SMARTFOLDER_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("SMARTFOLDER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.Workers = n
		}
	}
	if v := os.Getenv("SMARTFOLDER_OCR_ENDPOINT"); v != "" {
		c.Collaborators.OCREndpoint = v
	}
	if v := os.Getenv("SMARTFOLDER_EMBEDDING_HOST"); v != "" {
		c.Collaborators.EmbeddingHost = v
	}
	if v := os.Getenv("SMARTFOLDER_FACE_ENDPOINT"); v != "" {
		c.Collaborators.FaceEndpoint = v
	}
	if v := os.Getenv("SMARTFOLDER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SMARTFOLDER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// splitList splits a path list on ':' or ',', dropping empties.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ':' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".smartfolder")
	}
	return filepath.Join(home, ".smartfolder")
}
