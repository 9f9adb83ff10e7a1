package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/procurement/internal/masterdata"
	"github.com/odyssey-erp/procurement/internal/shared"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort stores approval history for PR transitions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// EventPublisher hands committed status changes to the job queue.
type EventPublisher interface {
	PublishRequisitionStatusChanged(ctx context.Context, evt RequisitionStatusChanged) error
}

// SnapshotCache serves precomputed supplier exposure snapshots.
type SnapshotCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error
	Bump(ctx context.Context) error
}

// MetricsPort receives business counters.
type MetricsPort interface {
	ValidationRejected(document string)
	Transition(entity, action, outcome string)
}

// Service orchestrates procurement flows.
type Service struct {
	repo      RepositoryPort
	validator *Validator
	approvals ApprovalPort
	audit     AuditPort
	events    EventPublisher
	snapshots SnapshotCache
	metrics   MetricsPort
	logger    *slog.Logger
	flights   singleflight.Group
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Approvals ApprovalPort
	Audit     AuditPort
	Events    EventPublisher
	Snapshots SnapshotCache
	Metrics   MetricsPort
	Logger    *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, validator *Validator, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = NewValidator(DefaultLimits(), logger)
	}
	return &Service{
		repo:      repo,
		validator: validator,
		approvals: cfg.Approvals,
		audit:     cfg.Audit,
		events:    cfg.Events,
		snapshots: cfg.Snapshots,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Validator exposes the rule engine used by the service.
func (s *Service) Validator() *Validator {
	return s.validator
}

// within runs fn in a unit of work and reports validation rejections.
func (s *Service) within(ctx context.Context, document string, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, fn)
	var verr *ValidationError
	if errors.As(err, &verr) {
		if verr.Document != "" {
			document = verr.Document
		}
		s.logger.Info("request rejected",
			slog.String("document", document),
			slog.String("actor", shared.ActorFromContext(ctx)),
			slog.Int("violations", len(verr.Errors)))
		if s.metrics != nil {
			s.metrics.ValidationRejected(document)
		}
	}
	return err
}

func (s *Service) countTransition(entity, action string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidState):
		outcome = "invalid_state"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	case errors.Is(err, ErrValidation):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.Transition(entity, action, outcome)
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Error("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, pr PurchaseRequisition, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	ref := pr.PurchaseRequisition + "/" + pr.PurchaseReqnItem
	if err := s.approvals.Record(ctx, shared.ApprovalLog{Module: "PR", Ref: ref, Action: action, Note: note}); err != nil {
		s.logger.Error("record approval", slog.String("ref", ref), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, changes []RequisitionStatusChanged) {
	if s.events == nil {
		return
	}
	for _, evt := range changes {
		if err := s.events.PublishRequisitionStatusChanged(ctx, evt); err != nil {
			s.logger.Error("publish requisition status change",
				slog.String("requisition", evt.PurchaseRequisition),
				slog.Any("error", err))
		}
	}
}

func (s *Service) invalidateSnapshots(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Bump(ctx); err != nil {
		s.logger.Warn("bump exposure snapshots", slog.Any("error", err))
	}
}

// SupplierExposure returns the supplier's exposure, served from the
// snapshot cache when one is configured.
func (s *Service) SupplierExposure(ctx context.Context, supplier string, asOf time.Time) (Exposure, error) {
	if supplier == "" {
		return Exposure{}, rejected("Supplier must be provided.")
	}
	if asOf.IsZero() {
		asOf = s.validator.now()
	}
	load := func(ctx context.Context) (interface{}, error) {
		return s.computeExposure(ctx, supplier, asOf)
	}
	if s.snapshots == nil {
		return s.computeExposure(ctx, supplier, asOf)
	}
	key, err := s.snapshots.BuildKey(ctx, ExposureKeyParts(supplier, asOf)...)
	if err != nil {
		return Exposure{}, err
	}
	var out Exposure
	if err := s.snapshots.FetchJSON(ctx, key, &out, load); err != nil {
		return Exposure{}, err
	}
	return out, nil
}

func (s *Service) computeExposure(ctx context.Context, supplier string, asOf time.Time) (Exposure, error) {
	var out Exposure
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.Exists(ctx, masterdata.KindVendor, supplier)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("Supplier '%s' does not exist in Vendor Master", supplier)
		}
		out, err = ComputeExposure(ctx, tx, s.validator.limits, supplier, asOf)
		return err
	})
	return out, err
}

// ActiveSuppliers lists suppliers with standard purchase orders dated in the month of asOf.
func (s *Service) ActiveSuppliers(ctx context.Context, asOf time.Time) ([]string, error) {
	window := MonthOf(asOf)
	var suppliers []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		suppliers, err = tx.ActiveSuppliers(ctx, window.From, window.To)
		return err
	})
	return suppliers, err
}

// ComputeSupplierExposure recomputes exposure from source rows, bypassing the snapshot cache.
func (s *Service) ComputeSupplierExposure(ctx context.Context, supplier string, asOf time.Time) (Exposure, error) {
	return s.computeExposure(ctx, supplier, asOf)
}

// ExposureKeyParts names a supplier's exposure snapshot for one month.
func ExposureKeyParts(supplier string, asOf time.Time) []string {
	return []string{"procurement", "exposure", supplier, asOf.Format("2006-01")}
}
