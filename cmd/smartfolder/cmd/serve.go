package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/internal/server"
	"github.com/smartfolder/smartfolder/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var addr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Endpoints include /api/scan, /api/search, /api/faces, /api/status,
/api/stats and /api/organize. With --watch, the configured scan roots
are watched and a rescan is triggered when files change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr, watch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Watch scan roots and rescan on changes")

	return cmd
}

func runServe(ctx context.Context, addr string, watch bool) error {
	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	if watch || a.cfg.Server.Watch {
		w := watcher.New(a.cfg.Paths.ScanRoots, watcher.DefaultDebounce, func(ctx context.Context) {
			if _, err := a.scanner.Scan(ctx); err != nil {
				slog.Warn("watch-triggered scan failed", slog.String("error", err.Error()))
			}
		}, slog.Default())

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := w.Run(watchCtx); err != nil && watchCtx.Err() == nil {
				slog.Error("watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	srv := server.New(a.store, a.scanner, a.search, a.faces, a.cfg.Paths.ScanRoots, slog.Default())

	slog.Info("starting http server",
		slog.String("addr", addr),
		slog.Any("scan_roots", a.cfg.Paths.ScanRoots))
	return srv.Run(addr)
}
