// CLAUDE:SUMMARY Entry point for the admin web app: YAML config, history DB, chi router, graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/ppadmin/admin"
	"github.com/hazyhaar/ppadmin/store"
)

func main() {
	path := "ppadmin.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := admin.LoadConfig(path)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("history db", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	app, err := admin.NewServer(cfg, st, admin.WithLogger(logger))
	if err != nil {
		slog.Error("admin server", "error", err)
		os.Exit(1)
	}

	// Uploads are scanned and posted inside the request, so the write
	// timeout covers the scan timeout.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.Upload.ScanTimeout + 60*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}
