package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/smartfolder/smartfolder/internal/config"
	"github.com/smartfolder/smartfolder/internal/extract"
	"github.com/smartfolder/smartfolder/internal/faces"
	"github.com/smartfolder/smartfolder/internal/index"
	"github.com/smartfolder/smartfolder/internal/pipeline"
	"github.com/smartfolder/smartfolder/internal/scanner"
	"github.com/smartfolder/smartfolder/internal/search"
	"github.com/smartfolder/smartfolder/internal/store"
)

// app is the assembled service stack shared by the serve, scan,
// search and status commands.
type app struct {
	cfg      *config.Config
	store    *store.MetadataStore
	keyword  *index.KeywordIndex
	vector   *index.VectorIndex
	faces    *faces.Engine
	embedder extract.Embedder
	scanner  *scanner.Scanner
	search   *search.Coordinator
}

// buildApp loads configuration, opens the metadata store and rebuilds
// the in-memory indexes from it. overrideRoots, when non-empty,
// replaces the configured scan roots.
func buildApp(ctx context.Context, overrideRoots []string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(overrideRoots) > 0 {
		cfg.Paths.ScanRoots = overrideRoots
	}

	st, err := store.NewMetadataStore(cfg.Paths.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	keyword := index.NewKeywordIndex()
	vector := index.NewVectorIndex()
	if err := scanner.RebuildIndexes(ctx, st, keyword, vector); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("rebuilding search indexes: %w", err)
	}

	engine := faces.NewEngine(st, cfg.Faces.AssignmentThreshold, cfg.Faces.MergeThreshold, slog.Default())
	if err := engine.Load(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("loading face clusters: %w", err)
	}

	embedder := chooseEmbedder(ctx, cfg)

	pipe, err := pipeline.New(pipeline.Options{
		Text:     extract.NewLocalTextReader(0),
		OCR:      ocrClient(cfg),
		Embedder: embedder,
		Faces:    faceClient(cfg),
		Limiter:  collaboratorLimiter(cfg),
		Logger:   slog.Default(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sc := scanner.New(scanner.Config{
		Roots: cfg.Paths.ScanRoots,
		// The data directory may live under a scan root; never index
		// our own database and logs.
		ExcludePaths:   []string{cfg.Paths.DataDir},
		Workers:        cfg.Scan.Workers,
		MaxFileSize:    cfg.Scan.MaxFileSizeBytes,
		FollowSymlinks: cfg.Scan.FollowSymlinks,
		LockPath:       filepath.Join(cfg.Paths.DataDir, "scan.lock"),
	}, st, pipe, keyword, vector, engine, slog.Default())

	coord := search.NewCoordinator(st, keyword, vector, embedder,
		cfg.Search.MaxResults, cfg.Search.MinScore, slog.Default())

	return &app{
		cfg:      cfg,
		store:    st,
		keyword:  keyword,
		vector:   vector,
		faces:    engine,
		embedder: embedder,
		scanner:  sc,
		search:   coord,
	}, nil
}

// Close releases the store and the embedder.
func (a *app) Close() {
	_ = a.embedder.Close()
	_ = a.store.Close()
}

// chooseEmbedder returns the Ollama embedder when a host is configured
// and answering, otherwise the deterministic static embedder. Search
// and scan must embed with the same model, so the choice is made once
// per process.
func chooseEmbedder(ctx context.Context, cfg *config.Config) extract.Embedder {
	if cfg.Collaborators.EmbeddingHost == "" {
		return extract.NewStaticEmbedder()
	}

	ollama := extract.NewOllamaEmbedder(extract.OllamaConfig{
		Host:  cfg.Collaborators.EmbeddingHost,
		Model: cfg.Collaborators.EmbeddingModel,
	})
	if !ollama.Available(ctx) {
		slog.Warn("embedding host unavailable, falling back to static embeddings",
			slog.String("host", cfg.Collaborators.EmbeddingHost))
		_ = ollama.Close()
		return extract.NewStaticEmbedder()
	}

	slog.Info("using ollama embeddings",
		slog.String("host", cfg.Collaborators.EmbeddingHost),
		slog.String("model", cfg.Collaborators.EmbeddingModel))
	return ollama
}

func ocrClient(cfg *config.Config) extract.TextExtractor {
	if cfg.Collaborators.OCREndpoint == "" {
		return nil
	}
	return extract.NewOCRClient(cfg.Collaborators.OCREndpoint)
}

func faceClient(cfg *config.Config) extract.FaceDetector {
	if cfg.Collaborators.FaceEndpoint == "" {
		return nil
	}
	return extract.NewFaceClient(cfg.Collaborators.FaceEndpoint)
}

func collaboratorLimiter(cfg *config.Config) *rate.Limiter {
	rps := cfg.Collaborators.RequestsPerSecond
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
