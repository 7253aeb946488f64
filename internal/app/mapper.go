package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/robfig/cron/v3"

	"github.com/samvad-hq/samvad-news-mapper/internal/config"
	"github.com/samvad-hq/samvad-news-mapper/internal/dedupe"
	"github.com/samvad-hq/samvad-news-mapper/internal/fanout"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
	"github.com/samvad-hq/samvad-news-mapper/internal/pipeline"
	"github.com/samvad-hq/samvad-news-mapper/internal/rotation"
	"github.com/samvad-hq/samvad-news-mapper/internal/server"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
	"github.com/samvad-hq/samvad-news-mapper/pkg/delivery"
)

// Mapper is the news mapper runtime. It owns the document store, the
// subscriber registry, the rotation and ingestion services, the HTTP API, and
// the scheduled dedupe maintenance run.
type Mapper struct {
	cfg       *config.Config
	store     *storage.Store
	server    *server.Server
	scheduler *cron.Cron
	log       logger.Logger
}

// NewMapper builds the mapper runtime from config.
func NewMapper(ctx context.Context, cfg *config.Config, log logger.Logger) (*Mapper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := storage.Open(cfg.BBoltPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"path":        cfg.BBoltPath,
		"collections": storage.Collections(),
	})

	subs, err := storage.LoadSubscribersFile(cfg.SubscribersFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			store.Close()
			return nil, fmt.Errorf("load subscribers file: %w", err)
		}
		log.WarnObj("no subscribers file; fan-out will reach nobody", "subscribers_file", cfg.SubscribersFile)
	}
	if err := store.SeedSubscribers(subs); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed subscribers: %w", err)
	}
	subSummaries := make([]map[string]any, 0, len(subs))
	for _, sub := range subs {
		subSummaries = append(subSummaries, map[string]any{
			"name":      sub.Name,
			"transport": sub.Transport,
			"active":    sub.Active,
			"type":      sub.Type,
		})
	}
	log.InfoObj("subscriber registry seeded", "subscribers_meta", map[string]any{
		"count":       len(subSummaries),
		"subscribers": subSummaries,
	})

	senders, err := delivery.DefaultRegistry(ctx, delivery.Options{
		HTTPTimeout:  cfg.DeliveryTimeout,
		AWSRegion:    cfg.AWSRegion,
		GCPProjectID: cfg.GCPProjectID,
		Log:          log,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build delivery senders: %w", err)
	}

	dispatcher := fanout.NewDispatcher(store, senders, log, cfg.DeliveryParallelism)
	rot := rotation.NewManager(store, log)
	cleaner := dedupe.NewCleaner(store, log)
	pipe := pipeline.NewService(store, rot, dispatcher, log)

	srv := server.New(cfg.HTTPAddr, cleaner, rot, pipe, log, cfg.ShutdownTimeout)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.DedupeSchedule, func() {
		if _, err := cleaner.CleanDuplicates(); err != nil {
			log.ErrorObj("scheduled dedupe failed", "dedupe_error", err.Error())
		}
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("schedule dedupe (%q): %w", cfg.DedupeSchedule, err)
	}

	return &Mapper{
		cfg:       cfg,
		store:     store,
		server:    srv,
		scheduler: scheduler,
		log:       log,
	}, nil
}

// Run serves the API and the maintenance schedule until the context is
// cancelled.
func (m *Mapper) Run(ctx context.Context) error {
	if m == nil || m.server == nil {
		return fmt.Errorf("mapper is not initialized")
	}
	defer m.closeStore()

	m.scheduler.Start()
	defer m.scheduler.Stop()

	m.log.InfoObj("mapper starting", "mapper_state", map[string]any{
		"http_addr":       m.cfg.HTTPAddr,
		"dedupe_schedule": m.cfg.DedupeSchedule,
	})
	return m.server.Run(ctx)
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (m *Mapper) closeStore() {
	if m == nil || m.store == nil {
		return
	}
	if err := m.store.Close(); err != nil {
		m.log.ErrorObj("storage close failed", "error", err)
	}
}
