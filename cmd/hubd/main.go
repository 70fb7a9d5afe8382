// Command hubd runs the collabfs coordinator hub: it accepts WebSocket
// connections, relays CRDT updates between session peers, and persists
// snapshots to disk.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theonlypal/collabfs/internal/hub"
	"github.com/theonlypal/collabfs/internal/snapshotstore"
	"github.com/theonlypal/collabfs/internal/transport"
)

func main() {
	addr := ":8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	snapshotDir := os.Getenv("COLLABFS_SNAPSHOT_DIR")
	if snapshotDir == "" {
		snapshotDir = "./data/snapshots"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	store, err := snapshotstore.OpenFileStore(snapshotDir)
	if err != nil {
		logger.Error("open snapshot store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	h := hub.New(hub.DefaultConfig(), store, logger)
	srv := transport.NewServer(h, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv.Handler())
	mux.Handle("/health", transport.HealthHandler())

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("collabfs hub listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Warn("hub shutdown", "err", err)
	}
	fmt.Println("collabfs hub stopped")
}
