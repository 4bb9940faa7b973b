// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, persistence, blob storage, events,
// metrics, and the retrieval index) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kavlartius217/meditrust/internal/config"
	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/internal/metrics"
	"github.com/kavlartius217/meditrust/pkg/database"
	"github.com/kavlartius217/meditrust/pkg/events"
	"github.com/kavlartius217/meditrust/pkg/lifecycle"
	"github.com/kavlartius217/meditrust/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Database is nil when the service runs with in-memory persistence.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Events    events.System
	Metrics   *metrics.Metrics
	Index     index.Index

	backend index.Index
}

type starter interface {
	Start(lc *lifecycle.Coordinator) error
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Events:    events.New(&cfg.Events, logger),
		Metrics:   metrics.New(),
	}

	if cfg.InMemory() {
		infra.Storage = storage.NewMemory()
		logger.Warn("running with in-memory persistence; state is lost on restart")
	} else {
		db, err := database.New(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Database = db
		infra.Storage = store
	}

	idx, err := newIndex(&cfg.Index, logger)
	if err != nil {
		return nil, fmt.Errorf("index init failed: %w", err)
	}
	infra.backend = idx
	infra.Index = index.Instrument(idx, infra.Metrics)

	return infra, nil
}

func newIndex(cfg *index.Config, logger *slog.Logger) (index.Index, error) {
	chunker, err := cfg.Chunker()
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case index.BackendNeo4j:
		embedder, err := index.NewOpenAIEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		return index.NewNeo4j(cfg.Neo4j, chunker, embedder, logger)
	default:
		return index.NewMemory(chunker), nil
	}
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Events.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("events start failed: %w", err)
	}
	if s, ok := i.backend.(starter); ok {
		if err := s.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("index start failed: %w", err)
		}
	}
	return nil
}
