package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/procurement/internal/jobs"
	"github.com/odyssey-erp/procurement/internal/procurement"
)

const (
	// TaskExposureRefresh recomputes supplier exposure snapshots.
	TaskExposureRefresh = "procurement:exposure-refresh"
	// ExposureRefreshCron runs the refresh at the top of every hour.
	ExposureRefreshCron = "0 * * * *"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ExposureRefreshPayload scopes a refresh. Empty Suppliers means every active supplier.
type ExposureRefreshPayload struct {
	Suppliers []string `json:"suppliers,omitempty"`
	AsOf      string   `json:"as_of,omitempty"`
}

// NewExposureRefreshTask constructs an Asynq task for the refresh.
func NewExposureRefreshTask(payload ExposureRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExposureRefresh, data), nil
}

// ExposureSource computes exposure from source rows.
type ExposureSource interface {
	ActiveSuppliers(ctx context.Context, asOf time.Time) ([]string, error)
	ComputeSupplierExposure(ctx context.Context, supplier string, asOf time.Time) (procurement.Exposure, error)
}

// SnapshotStore persists exposure snapshots under versioned keys.
type SnapshotStore interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	Store(ctx context.Context, key string, value interface{}) error
}

// ExposureRefreshJob rewrites the exposure snapshot of every active supplier.
type ExposureRefreshJob struct {
	Service     ExposureSource
	Store       SnapshotStore
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	clock       func() time.Time
}

// NewExposureRefreshJob wires dependencies for the refresh handler.
func NewExposureRefreshJob(service ExposureSource, store SnapshotStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExposureRefreshJob {
	return &ExposureRefreshJob{
		Service:     service,
		Store:       store,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: 4,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes exposure refresh tasks.
func (j *ExposureRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil || j.Store == nil {
		return errors.New("exposure refresh: handler not configured")
	}
	var payload ExposureRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return fmt.Errorf("exposure refresh: as_of %q: %v: %w", payload.AsOf, err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskExposureRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", asOf.Format("2006-01-02")))
	started := time.Now()

	suppliers := payload.Suppliers
	if len(suppliers) == 0 {
		active, err := j.Service.ActiveSuppliers(ctx, asOf)
		if err != nil {
			resultErr = err
			logger.Error("load active suppliers", slog.Any("error", err))
			return resultErr
		}
		suppliers = active
	}
	if len(suppliers) == 0 {
		logger.Info("no active suppliers to refresh")
		return resultErr
	}

	stored, err := j.refresh(ctx, suppliers, asOf)
	j.metrics().AddSnapshots(TaskExposureRefresh, "stored", stored)
	if err != nil {
		j.metrics().AddSnapshots(TaskExposureRefresh, "failed", len(suppliers)-stored)
		resultErr = err
		logger.Error("refresh exposure snapshots", slog.Int("stored", stored), slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed exposure refresh", slog.Int("suppliers", stored), slog.Duration("duration", time.Since(started)))
	return resultErr
}

func (j *ExposureRefreshJob) refresh(ctx context.Context, suppliers []string, asOf time.Time) (int, error) {
	results := make([]bool, len(suppliers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for i, supplier := range suppliers {
		g.Go(func() error {
			exposure, err := j.Service.ComputeSupplierExposure(gctx, supplier, asOf)
			if err != nil {
				return fmt.Errorf("supplier %s: %w", supplier, err)
			}
			key, err := j.Store.BuildKey(gctx, procurement.ExposureKeyParts(supplier, asOf)...)
			if err != nil {
				return err
			}
			if err := j.Store.Store(gctx, key, exposure); err != nil {
				return fmt.Errorf("supplier %s: %w", supplier, err)
			}
			results[i] = true
			return nil
		})
	}
	err := g.Wait()
	stored := 0
	for _, ok := range results {
		if ok {
			stored++
		}
	}
	return stored, err
}

func (j *ExposureRefreshJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return 1
}

func (j *ExposureRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskExposureRefresh))
	}
	return slog.Default().With(slog.String("job", TaskExposureRefresh))
}

func (j *ExposureRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExposureRefreshJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
