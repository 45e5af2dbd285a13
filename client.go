package listingsync

import (
	"fmt"
	"log/slog"
	"time"

	lserrors "github.com/feedops/listingsync/errors"
	"github.com/feedops/listingsync/internal/metrics"
	"github.com/feedops/listingsync/internal/reconcile/driver"
	"github.com/feedops/listingsync/internal/reconcile/executor"
	"github.com/feedops/listingsync/internal/reconcile/reader"
	"github.com/feedops/listingsync/treeapi"
	"github.com/feedops/listingsync/treetypes"
)

// Client reconciles listing trees through a remote TreeService. It is safe
// for concurrent use; each reconciliation carries its own planning state.
type Client struct {
	api    treeapi.TreeService
	cfg    treetypes.ClientConfig
	reader *reader.Reader
	driver *driver.Driver
}

// New creates a client over the remote service with the provided options.
//
// Example:
//
//	client, err := listingsync.New(svc,
//	    listingsync.WithMaxAttempts(5),
//	    listingsync.WithRequestDelay(time.Second),
//	)
func New(api treeapi.TreeService, opts ...treetypes.Option) (*Client, error) {
	if api == nil {
		return nil, lserrors.New("client", lserrors.CodeInvalid,
			fmt.Errorf("tree service is required"))
	}

	cfg := treetypes.ClientConfig{
		MaxAttempts:        executor.DefaultMaxAttempts,
		InitialBackoff:     executor.DefaultInitialBackoff,
		MaxBackoff:         executor.DefaultMaxBackoff,
		RequestDelay:       executor.DefaultRequestDelay,
		CheckpointInterval: driver.DefaultCheckpointInterval,
		CallTimeout:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	met := metrics.New(cfg.Registerer)
	rd := reader.New(api, cfg.CallTimeout, cfg.Logger)
	exec := executor.New(api, executor.Config{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		CallTimeout:    cfg.CallTimeout,
		RequestDelay:   cfg.RequestDelay,
		Logger:         cfg.Logger,
		Metrics:        met,
	})
	drv := driver.New(rd, exec, driver.Config{
		Logger:             cfg.Logger,
		Metrics:            met,
		Store:              cfg.CheckpointStore,
		CheckpointInterval: cfg.CheckpointInterval,
		UnitDelay:          cfg.UnitDelay,
	})

	return &Client{
		api:    api,
		cfg:    cfg,
		reader: rd,
		driver: drv,
	}, nil
}
