package procurement

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/procurement/internal/shared"
)

// ActionResult is the outcome of a direct PR transition.
type ActionResult struct {
	Message     string              `json:"message"`
	Requisition PurchaseRequisition `json:"requisition"`
}

// CascadeSelector addresses PO items whose linked PRs are transitioned.
// ItemID wins over (PurchaseOrder, PurchaseOrderItem), which wins over
// PurchaseOrder alone.
type CascadeSelector struct {
	ItemID            *uuid.UUID
	PurchaseOrder     string
	PurchaseOrderItem string
}

// CascadeResult reports the PRs a cascaded transition changed.
type CascadeResult struct {
	Action       string   `json:"action"`
	Affected     int      `json:"affected"`
	Requisitions []string `json:"requisitions"`
	Message      string   `json:"message"`
}

// ApproveRequisition releases a PR line currently in NOT_REL.
func (s *Service) ApproveRequisition(ctx context.Context, id uuid.UUID) (ActionResult, error) {
	res, err := s.transitionRequisition(ctx, id, shared.ApprovalApprove)
	s.countTransition("requisition", "approve", err)
	return res, err
}

// RejectRequisition reverts a PR line to NOT_REL from any other status.
func (s *Service) RejectRequisition(ctx context.Context, id uuid.UUID) (ActionResult, error) {
	res, err := s.transitionRequisition(ctx, id, shared.ApprovalReject)
	s.countTransition("requisition", "reject", err)
	return res, err
}

func (s *Service) transitionRequisition(ctx context.Context, id uuid.UUID, action shared.ApprovalAction) (ActionResult, error) {
	var (
		res  ActionResult
		from ReleaseStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, found, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return notFound("Purchase Requisition with ID '%s' not found.", id)
		}
		from = pr.ReleaseStatus

		to := ReleaseStatusReleased
		if action == shared.ApprovalApprove {
			switch pr.ReleaseStatus {
			case ReleaseStatusNotReleased:
			case ReleaseStatusReleased:
				return invalidTransition(string(from), "approve", "Purchase Requisition %s is already approved.", pr.PurchaseRequisition)
			default:
				return invalidTransition(string(from), "approve", "Purchase Requisition %s cannot be approved. Current status: %s", pr.PurchaseRequisition, pr.ReleaseStatus)
			}
		} else {
			if pr.ReleaseStatus == ReleaseStatusNotReleased {
				return invalidTransition(string(from), "reject", "Purchase Requisition %s is already in NOT_REL status.", pr.PurchaseRequisition)
			}
			to = ReleaseStatusNotReleased
		}

		n, err := tx.SetReleaseStatus(ctx, id, from, to)
		if err != nil {
			return err
		}
		if n == 0 {
			return conflict("Purchase Requisition %s was changed by another request.", pr.PurchaseRequisition)
		}
		pr.ReleaseStatus = to
		verb := "approved"
		if to == ReleaseStatusNotReleased {
			verb = "rejected"
		}
		res = ActionResult{
			Message:     fmt.Sprintf("Purchase Requisition %s %s successfully", pr.PurchaseRequisition, verb),
			Requisition: pr,
		}
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}

	pr := res.Requisition
	s.recordApproval(ctx, pr, action, res.Message)
	s.recordAudit(ctx, "PR_"+string(action), "purchase_requisition", pr.ID.String(), map[string]any{
		"number": pr.PurchaseRequisition,
		"item":   pr.PurchaseReqnItem,
		"from":   from,
		"to":     pr.ReleaseStatus,
	})
	s.publish(ctx, []RequisitionStatusChanged{statusChanged(ctx, pr, from, SourceDirect)})
	return res, nil
}

// ApprovePurchaseOrderItems releases every NOT_REL PR linked to the selected PO items.
func (s *Service) ApprovePurchaseOrderItems(ctx context.Context, sel CascadeSelector) (CascadeResult, error) {
	res, err := s.cascade(ctx, sel, shared.ApprovalApprove)
	s.countTransition("requisition", "cascade_approve", err)
	return res, err
}

// RejectPurchaseOrderItems reverts every linked PR not already in NOT_REL.
func (s *Service) RejectPurchaseOrderItems(ctx context.Context, sel CascadeSelector) (CascadeResult, error) {
	res, err := s.cascade(ctx, sel, shared.ApprovalReject)
	s.countTransition("requisition", "cascade_reject", err)
	return res, err
}

func (s *Service) cascade(ctx context.Context, sel CascadeSelector, action shared.ApprovalAction) (CascadeResult, error) {
	var (
		res     CascadeResult
		changed []PurchaseRequisition
		froms   []ReleaseStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		numbers, err := linkedNumbers(ctx, tx, sel)
		if err != nil {
			return err
		}
		if len(numbers) == 0 {
			return notFound("No linked Purchase Requisitions found.")
		}
		rows, err := tx.ListRequisitionsByNumber(ctx, numbers)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return notFound("Linked Purchase Requisitions not found.")
		}

		// Rows to move, grouped by the status each was observed in.
		groups := map[ReleaseStatus][]PurchaseRequisition{}
		to := ReleaseStatusReleased
		if action == shared.ApprovalApprove {
			for _, pr := range rows {
				if pr.ReleaseStatus == ReleaseStatusNotReleased {
					groups[pr.ReleaseStatus] = append(groups[pr.ReleaseStatus], pr)
				}
			}
			if len(groups) == 0 {
				return invalidTransition(string(ReleaseStatusReleased), "approve", "No PRs eligible for approval (already approved or invalid state).")
			}
		} else {
			to = ReleaseStatusNotReleased
			for _, pr := range rows {
				if pr.ReleaseStatus != ReleaseStatusNotReleased {
					groups[pr.ReleaseStatus] = append(groups[pr.ReleaseStatus], pr)
				}
			}
			if len(groups) == 0 {
				return invalidTransition(string(ReleaseStatusNotReleased), "reject", "All linked PRs are already in NOT_REL.")
			}
		}

		var affected []string
		for from, group := range groups {
			moved, err := tx.TransitionRequisitions(ctx, requisitionNumbers(group), from, to)
			if err != nil {
				return err
			}
			affected = append(affected, moved...)
			for _, pr := range group {
				if slices.Contains(moved, pr.PurchaseRequisition) {
					pr.ReleaseStatus = to
					changed = append(changed, pr)
					froms = append(froms, from)
				}
			}
		}
		affected = distinct(affected)
		if len(affected) == 0 {
			return conflict("Linked Purchase Requisitions were changed by another request.")
		}

		verb := "Approved"
		if action == shared.ApprovalReject {
			verb = "Rejected"
		}
		res = CascadeResult{
			Action:       strings.ToLower(string(action)),
			Affected:     len(affected),
			Requisitions: affected,
			Message:      fmt.Sprintf("%s %d PR(s): %s", verb, len(affected), strings.Join(affected, ", ")),
		}
		return nil
	})
	if err != nil {
		return CascadeResult{}, err
	}

	events := make([]RequisitionStatusChanged, 0, len(changed))
	for i, pr := range changed {
		s.recordApproval(ctx, pr, action, res.Message)
		events = append(events, statusChanged(ctx, pr, froms[i], SourceCascade))
	}
	s.recordAudit(ctx, "PR_CASCADE_"+string(action), "purchase_order", cascadeRef(sel), map[string]any{
		"requisitions": res.Requisitions,
	})
	s.publish(ctx, events)
	return res, nil
}

func linkedNumbers(ctx context.Context, tx TxRepository, sel CascadeSelector) ([]string, error) {
	switch {
	case sel.ItemID != nil:
		it, found, err := tx.FindPurchaseOrderItemByID(ctx, *sel.ItemID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, notFound("Purchase Order item not found.")
		}
		return nonEmpty(it.PurchaseRequisition), nil
	case sel.PurchaseOrder != "" && sel.PurchaseOrderItem != "":
		it, found, err := tx.FindPurchaseOrderItem(ctx, sel.PurchaseOrder, sel.PurchaseOrderItem)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, notFound("Purchase Order item not found.")
		}
		return nonEmpty(it.PurchaseRequisition), nil
	case sel.PurchaseOrder != "":
		numbers, err := tx.LinkedRequisitions(ctx, sel.PurchaseOrder)
		if err != nil {
			return nil, err
		}
		return distinct(numbers), nil
	default:
		return nil, rejected("Missing keys. Provide ID, (PurchaseOrder, PurchaseOrderItem) or (PurchaseOrder).")
	}
}

func cascadeRef(sel CascadeSelector) string {
	switch {
	case sel.ItemID != nil:
		return sel.ItemID.String()
	case sel.PurchaseOrderItem != "":
		return sel.PurchaseOrder + "/" + sel.PurchaseOrderItem
	default:
		return sel.PurchaseOrder
	}
}

func statusChanged(ctx context.Context, pr PurchaseRequisition, from ReleaseStatus, source string) RequisitionStatusChanged {
	return RequisitionStatusChanged{
		ID:                  pr.ID,
		PurchaseRequisition: pr.PurchaseRequisition,
		PurchaseReqnItem:    pr.PurchaseReqnItem,
		From:                from,
		To:                  pr.ReleaseStatus,
		Source:              source,
		Actor:               shared.ActorFromContext(ctx),
		At:                  time.Now().UTC(),
	}
}

func requisitionNumbers(rows []PurchaseRequisition) []string {
	out := make([]string, 0, len(rows))
	for _, pr := range rows {
		out = append(out, pr.PurchaseRequisition)
	}
	return distinct(out)
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func distinct(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
