// Command server runs the HTTP API with the background barcode worker
// in-process. The worker starts draining immediately and can be paused
// and resumed over the API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranraju/barcodescout/internal/api"
	"github.com/kiranraju/barcodescout/internal/config"
	"github.com/kiranraju/barcodescout/internal/docstore"
	"github.com/kiranraju/barcodescout/internal/logging"
	"github.com/kiranraju/barcodescout/internal/repository"
	"github.com/kiranraju/barcodescout/internal/scraper"
	"github.com/kiranraju/barcodescout/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "barcodescout: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log)

	store, err := docstore.Open(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	unfound := repository.NewUnfoundRepository(store)
	catalog := repository.NewCatalogRepository(store)
	staging := repository.NewStagingRepository(store)

	scr := scraper.New(cfg.Scraper, log)
	defer scr.Close()

	tracker := worker.NewStatusTracker()
	reconciler := worker.NewReconciler(unfound, catalog, log)
	proc := worker.NewProcessor(cfg.Worker, scr, reconciler, unfound, tracker, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc.Start()
	defer proc.Stop()

	srv := api.New(cfg.Server, unfound, catalog, staging, proc, tracker, log)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
