package main

import (
	"context"
	"fmt"
	"log/slog"

	"reelsmith/internal/admission"
	"reelsmith/internal/assembly"
	"reelsmith/internal/catalog"
	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/events"
	"reelsmith/internal/lifecycle"
	"reelsmith/internal/notifications"
	"reelsmith/internal/records"
	"reelsmith/internal/services/composition"
	"reelsmith/internal/services/generation"
	"reelsmith/internal/storage"
	"reelsmith/internal/tasks"
	"reelsmith/internal/variants"
	"reelsmith/internal/webhook"
)

// eventBufferSize bounds the websocket replay window.
const eventBufferSize = 1024

// buildComponents wires the full pipeline. Construction order matters only
// for the two post-construction hooks: the variant engine advances the
// lifecycle after auto-selections, and the lifecycle sweeps the admission
// queue as scenes become renderable.
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (daemon.Components, error) {
	store, err := records.Open(cfg)
	if err != nil {
		return daemon.Components{}, fmt.Errorf("open record store: %w", err)
	}

	blobs, err := storage.New(cfg)
	if err != nil {
		return daemon.Components{}, fmt.Errorf("init blob store: %w", err)
	}

	models, err := catalog.Load(cfg.Generation.CatalogPath)
	if err != nil {
		return daemon.Components{}, fmt.Errorf("load model catalog: %w", err)
	}

	hub := events.NewHub(eventBufferSize)
	runner := tasks.NewRunner(ctx, hub, logger)
	notifier := notifications.NewService(cfg)
	genGateway := generation.NewClient(cfg)
	compGateway := composition.NewClient(cfg)

	engine := variants.NewEngine(cfg, store, blobs, genGateway, models, hub, logger)
	manager := lifecycle.NewManager(cfg, store, genGateway, engine, runner, models, hub, notifier, logger)
	engine.SetAdvancer(manager)

	queue := admission.NewQueue(cfg, store, blobs, genGateway, hub, notifier, logger)
	manager.SetSweeper(queue)

	orderer := assembly.NewOrderer(cfg, store, compGateway, blobs, hub, notifier, logger)
	dispatcher := webhook.NewDispatcher(store, engine, queue, manager, logger)

	return daemon.Components{
		Store:      store,
		Hub:        hub,
		Runner:     runner,
		Catalog:    models,
		Variants:   engine,
		Lifecycle:  manager,
		Admission:  queue,
		Assembly:   orderer,
		Dispatcher: dispatcher,
		Notifier:   notifier,
	}, nil
}
