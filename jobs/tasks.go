package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procurement/internal/procurement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRequisitionStatusChanged carries a committed PR release-status change.
	TaskRequisitionStatusChanged = "procurement:pr-status-changed"
)

// NewRequisitionStatusChangedTask constructs an Asynq task for evt.
func NewRequisitionStatusChangedTask(evt procurement.RequisitionStatusChanged) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRequisitionStatusChanged, data), nil
}

// StatusNotifier consumes requisition status-change tasks.
type StatusNotifier struct {
	Logger *slog.Logger
	Notify func(ctx context.Context, evt procurement.RequisitionStatusChanged) error
}

// NewStatusNotifier builds a notifier that logs each change. notify may be nil.
func NewStatusNotifier(logger *slog.Logger, notify func(context.Context, procurement.RequisitionStatusChanged) error) *StatusNotifier {
	return &StatusNotifier{Logger: logger, Notify: notify}
}

// Handle processes TaskRequisitionStatusChanged tasks.
func (n *StatusNotifier) Handle(ctx context.Context, t *asynq.Task) error {
	if n == nil {
		return errors.New("status notifier: handler not configured")
	}
	var evt procurement.RequisitionStatusChanged
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.PurchaseRequisition == "" {
		return asynq.SkipRetry
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("requisition status changed",
		slog.String("job", TaskRequisitionStatusChanged),
		slog.String("requisition", evt.PurchaseRequisition),
		slog.String("item", evt.PurchaseReqnItem),
		slog.String("from", string(evt.From)),
		slog.String("to", string(evt.To)),
		slog.String("source", evt.Source),
		slog.String("actor", evt.Actor))
	if n.Notify == nil {
		return nil
	}
	return n.Notify(ctx, evt)
}
