package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/procurement/internal/jobs"
	"github.com/odyssey-erp/procurement/internal/procurement"
)

type fakeExposureSource struct {
	suppliers []string
	fail      map[string]bool
	mu        sync.Mutex
	asOf      []time.Time
}

func (f *fakeExposureSource) ActiveSuppliers(_ context.Context, asOf time.Time) ([]string, error) {
	f.mu.Lock()
	f.asOf = append(f.asOf, asOf)
	f.mu.Unlock()
	return f.suppliers, nil
}

func (f *fakeExposureSource) ComputeSupplierExposure(_ context.Context, supplier string, asOf time.Time) (procurement.Exposure, error) {
	if f.fail[supplier] {
		return procurement.Exposure{}, errors.New("source unavailable")
	}
	return procurement.Exposure{Supplier: supplier, Outstanding: decimal.NewFromInt(10), ComputedAt: asOf}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]procurement.Exposure
}

func (m *memoryStore) BuildKey(_ context.Context, parts ...string) (string, error) {
	return strings.Join(parts, ":") + ":v1", nil
}

func (m *memoryStore) Store(_ context.Context, key string, value interface{}) error {
	exposure, ok := value.(procurement.Exposure)
	if !ok {
		return fmt.Errorf("unexpected snapshot %T", value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]procurement.Exposure)
	}
	m.entries[key] = exposure
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func newRefreshJob(source ExposureSource, store SnapshotStore) *ExposureRefreshJob {
	job := NewExposureRefreshJob(source, store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }
	return job
}

func TestExposureRefreshStoresEverySupplier(t *testing.T) {
	source := &fakeExposureSource{suppliers: []string{"V100", "V200", "V300"}}
	store := &memoryStore{}
	task, err := NewExposureRefreshTask(ExposureRefreshPayload{})
	require.NoError(t, err)

	require.NoError(t, newRefreshJob(source, store).Handle(context.Background(), task))
	require.Equal(t, []string{
		"procurement:exposure:V100:2026-03:v1",
		"procurement:exposure:V200:2026-03:v1",
		"procurement:exposure:V300:2026-03:v1",
	}, store.keys())
	require.Len(t, source.asOf, 1)
}

func TestExposureRefreshExplicitScope(t *testing.T) {
	source := &fakeExposureSource{suppliers: []string{"V100", "V200"}}
	store := &memoryStore{}
	task, err := NewExposureRefreshTask(ExposureRefreshPayload{Suppliers: []string{"V200"}, AsOf: "2026-01-31"})
	require.NoError(t, err)

	require.NoError(t, newRefreshJob(source, store).Handle(context.Background(), task))
	require.Equal(t, []string{"procurement:exposure:V200:2026-01:v1"}, store.keys())
	require.Empty(t, source.asOf)
}

func TestExposureRefreshFailures(t *testing.T) {
	source := &fakeExposureSource{suppliers: []string{"V100", "V200"}, fail: map[string]bool{"V200": true}}
	task, err := NewExposureRefreshTask(ExposureRefreshPayload{})
	require.NoError(t, err)
	err = newRefreshJob(source, &memoryStore{}).Handle(context.Background(), task)
	require.ErrorContains(t, err, "supplier V200")

	job := newRefreshJob(source, &memoryStore{})
	err = job.Handle(context.Background(), asynq.NewTask(TaskExposureRefresh, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	bad, err := NewExposureRefreshTask(ExposureRefreshPayload{AsOf: "31/01/2026"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	var unset *ExposureRefreshJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestStatusNotifierDecodesTask(t *testing.T) {
	evt := procurement.RequisitionStatusChanged{
		PurchaseRequisition: "PR-1",
		PurchaseReqnItem:    "10",
		From:                procurement.ReleaseStatusNotReleased,
		To:                  procurement.ReleaseStatusReleased,
		Source:              procurement.SourceDirect,
		Actor:               "buyer-7",
	}
	task, err := NewRequisitionStatusChangedTask(evt)
	require.NoError(t, err)
	require.Equal(t, TaskRequisitionStatusChanged, task.Type())

	var got procurement.RequisitionStatusChanged
	notifier := NewStatusNotifier(nil, func(_ context.Context, e procurement.RequisitionStatusChanged) error {
		got = e
		return nil
	})
	require.NoError(t, notifier.Handle(context.Background(), task))
	require.Equal(t, evt, got)

	require.ErrorIs(t, notifier.Handle(context.Background(), asynq.NewTask(TaskRequisitionStatusChanged, []byte("nope"))), asynq.SkipRetry)
	empty, err := json.Marshal(procurement.RequisitionStatusChanged{})
	require.NoError(t, err)
	require.ErrorIs(t, notifier.Handle(context.Background(), asynq.NewTask(TaskRequisitionStatusChanged, empty)), asynq.SkipRetry)
}

func TestWorkerRegistersHandlers(t *testing.T) {
	refresh, err := NewExposureRefreshTask(ExposureRefreshPayload{})
	require.NoError(t, err)
	called := false
	worker, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers: []TaskHandler{
			{Type: TaskExposureRefresh, Handler: func(context.Context, *asynq.Task) error {
				called = true
				return nil
			}},
			{Type: "", Handler: nil},
		},
		Cron: []CronRegistration{{Spec: ExposureRefreshCron, Task: refresh}},
	})
	require.NoError(t, err)
	require.NoError(t, worker.Mux().ProcessTask(context.Background(), refresh))
	require.True(t, called)
	require.Error(t, worker.Mux().ProcessTask(context.Background(), asynq.NewTask("unknown", nil)))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}
