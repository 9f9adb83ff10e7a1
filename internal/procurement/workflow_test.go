package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurement/internal/shared"
)

// staleRepo loses every guarded write, as if another request got there first.
type staleRepo struct {
	*memoryProcRepo
}

func (r staleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r staleRepo) SetReleaseStatus(ctx context.Context, id uuid.UUID, from, to ReleaseStatus) (int64, error) {
	return 0, nil
}

func (r staleRepo) TransitionRequisitions(ctx context.Context, numbers []string, from, to ReleaseStatus) ([]string, error) {
	return nil, nil
}

func TestApproveRequisition(t *testing.T) {
	h := newHarness()
	pr := h.repo.addRequisition("PR-1", "10", ReleaseStatusNotReleased, "100")
	ctx := shared.ContextWithActor(context.Background(), "buyer-7")

	res, err := h.service.ApproveRequisition(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, "Purchase Requisition PR-1 approved successfully", res.Message)
	require.Equal(t, ReleaseStatusReleased, res.Requisition.ReleaseStatus)
	require.Equal(t, ReleaseStatusReleased, h.repo.prs[pr.ID].ReleaseStatus)

	require.Len(t, h.events.events, 1)
	evt := h.events.events[0]
	require.Equal(t, SourceDirect, evt.Source)
	require.Equal(t, ReleaseStatusNotReleased, evt.From)
	require.Equal(t, ReleaseStatusReleased, evt.To)
	require.Equal(t, "buyer-7", evt.Actor)

	require.Len(t, h.approvals.logs, 1)
	require.Equal(t, "PR-1/10", h.approvals.logs[0].Ref)
	require.Equal(t, shared.ApprovalApprove, h.approvals.logs[0].Action)
	require.Contains(t, h.audit.actions, "PR_"+string(shared.ApprovalApprove))
	require.Equal(t, 1, h.metrics.transitions["requisition/approve/ok"])

	_, err = h.service.ApproveRequisition(ctx, pr.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.EqualError(t, err, "Purchase Requisition PR-1 is already approved.")
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, "REL", terr.From)
	require.Equal(t, 1, h.metrics.transitions["requisition/approve/invalid_state"])
	require.Len(t, h.events.events, 1)
}

func TestRejectRequisition(t *testing.T) {
	h := newHarness()
	released := h.repo.addRequisition("PR-1", "10", ReleaseStatusReleased, "100")
	open := h.repo.addRequisition("PR-2", "10", ReleaseStatusNotReleased, "100")
	odd := h.repo.addRequisition("PR-3", "10", ReleaseStatus("BLOCKED"), "100")
	ctx := context.Background()

	res, err := h.service.RejectRequisition(ctx, released.ID)
	require.NoError(t, err)
	require.Equal(t, "Purchase Requisition PR-1 rejected successfully", res.Message)
	require.Equal(t, ReleaseStatusNotReleased, h.repo.prs[released.ID].ReleaseStatus)

	_, err = h.service.RejectRequisition(ctx, open.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.EqualError(t, err, "Purchase Requisition PR-2 is already in NOT_REL status.")

	_, err = h.service.RejectRequisition(ctx, odd.ID)
	require.NoError(t, err)

	_, err = h.service.ApproveRequisition(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApproveRequisitionUnknownStatus(t *testing.T) {
	h := newHarness()
	pr := h.repo.addRequisition("PR-1", "10", ReleaseStatus("BLOCKED"), "100")
	_, err := h.service.ApproveRequisition(context.Background(), pr.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.EqualError(t, err, "Purchase Requisition PR-1 cannot be approved. Current status: BLOCKED")
}

func TestApproveRequisitionConflict(t *testing.T) {
	h := newHarness()
	pr := h.repo.addRequisition("PR-1", "10", ReleaseStatusNotReleased, "100")
	svc := NewService(staleRepo{h.repo}, newTestValidator(), ServiceConfig{Events: h.events})

	_, err := svc.ApproveRequisition(context.Background(), pr.ID)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, h.events.events)
}

func cascadeHarness() (*testHarness, PurchaseOrderHeader) {
	h := newHarness()
	h.repo.addRequisition("PR-1", "10", ReleaseStatusNotReleased, "100")
	h.repo.addRequisition("PR-1", "20", ReleaseStatusNotReleased, "100")
	h.repo.addRequisition("PR-2", "10", ReleaseStatusReleased, "100")
	po := h.repo.addOrder("4500", "V100", testNow, DocumentCategoryOrder,
		PurchaseOrderItem{Material: "MAT-1", PurchaseRequisition: "PR-1", Quantity: dec("1"), NetPrice: dec("1")},
		PurchaseOrderItem{Material: "MAT-1", PurchaseRequisition: "PR-2", Quantity: dec("1"), NetPrice: dec("1")},
		PurchaseOrderItem{Material: "MAT-1", Quantity: dec("1"), NetPrice: dec("1")},
	)
	return h, po
}

func TestCascadeByPurchaseOrder(t *testing.T) {
	h, _ := cascadeHarness()
	ctx := context.Background()

	res, err := h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Affected)
	require.Equal(t, []string{"PR-1"}, res.Requisitions)
	require.Equal(t, "Approved 1 PR(s): PR-1", res.Message)
	require.Len(t, h.events.events, 2)
	for _, evt := range h.events.events {
		require.Equal(t, SourceCascade, evt.Source)
		require.Equal(t, "PR-1", evt.PurchaseRequisition)
	}
	require.Len(t, h.approvals.logs, 2)

	_, err = h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500"})
	require.ErrorIs(t, err, ErrInvalidState)
	require.EqualError(t, err, "No PRs eligible for approval (already approved or invalid state).")

	res, err = h.service.RejectPurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Affected)
	require.Equal(t, "Rejected 2 PR(s): PR-1, PR-2", res.Message)
	for _, pr := range h.repo.prs {
		require.Equal(t, ReleaseStatusNotReleased, pr.ReleaseStatus)
	}

	_, err = h.service.RejectPurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500"})
	require.ErrorIs(t, err, ErrInvalidState)
	require.EqualError(t, err, "All linked PRs are already in NOT_REL.")
}

func TestCascadeSelectors(t *testing.T) {
	ctx := context.Background()

	t.Run("by item id", func(t *testing.T) {
		h, po := cascadeHarness()
		id := po.Items[1].ID
		res, err := h.service.RejectPurchaseOrderItems(ctx, CascadeSelector{ItemID: &id, PurchaseOrder: "ignored"})
		require.NoError(t, err)
		require.Equal(t, []string{"PR-2"}, res.Requisitions)
	})

	t.Run("by order and item", func(t *testing.T) {
		h, _ := cascadeHarness()
		res, err := h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500", PurchaseOrderItem: "10"})
		require.NoError(t, err)
		require.Equal(t, []string{"PR-1"}, res.Requisitions)
	})

	t.Run("item without requisition", func(t *testing.T) {
		h, _ := cascadeHarness()
		_, err := h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500", PurchaseOrderItem: "30"})
		require.ErrorIs(t, err, ErrNotFound)
		require.EqualError(t, err, "No linked Purchase Requisitions found.")
	})

	t.Run("unknown item", func(t *testing.T) {
		h, _ := cascadeHarness()
		id := uuid.New()
		_, err := h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{ItemID: &id})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rfq lines are not standard order items", func(t *testing.T) {
		h, _ := cascadeHarness()
		h.repo.addOrder("RFQ-1", "", testNow, DocumentCategoryRFQ, PurchaseOrderItem{Material: "MAT-1", PurchaseRequisition: "PR-1"})
		_, err := h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "RFQ-1"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing keys", func(t *testing.T) {
		h, _ := cascadeHarness()
		_, err := h.service.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrderItem: "10"})
		require.ErrorIs(t, err, ErrValidation)
		require.Equal(t, 1, h.metrics.transitions["requisition/cascade_approve/rejected"])
	})

	t.Run("lost race", func(t *testing.T) {
		h, _ := cascadeHarness()
		svc := NewService(staleRepo{h.repo}, newTestValidator(), ServiceConfig{})
		_, err := svc.ApprovePurchaseOrderItems(ctx, CascadeSelector{PurchaseOrder: "4500"})
		require.ErrorIs(t, err, ErrConflict)
	})
}
