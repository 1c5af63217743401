package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragtools/kb/internal/config"
	"github.com/ragtools/kb/internal/embeddings"
	"github.com/ragtools/kb/internal/fetch"
	"github.com/ragtools/kb/internal/kb"
	"github.com/ragtools/kb/internal/store"
)

// openManager wires up a knowledge base manager from the loaded
// configuration. The embedder loads lazily, so commands that never
// embed (sources, stats) pay nothing for it.
func openManager() (*kb.Manager, func(), error) {
	cfg := config.Get()

	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder := embeddings.NewLazy(func() (embeddings.Service, error) {
		return embeddings.NewService(cfg)
	})

	manager := kb.New(cfg, st, embedder, fetch.NewHTTPFetcher())

	return manager, func() { _ = manager.Close() }, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	return ctx, cancel
}
