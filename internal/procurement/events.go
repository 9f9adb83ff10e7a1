package procurement

import (
	"time"

	"github.com/google/uuid"
)

// RequisitionStatusChanged is published after a committed PR release-status change.
type RequisitionStatusChanged struct {
	ID                  uuid.UUID     `json:"id"`
	PurchaseRequisition string        `json:"purchase_requisition"`
	PurchaseReqnItem    string        `json:"purchase_reqn_item,omitempty"`
	From                ReleaseStatus `json:"from"`
	To                  ReleaseStatus `json:"to"`
	Source              string        `json:"source"`
	Actor               string        `json:"actor"`
	At                  time.Time     `json:"at"`
}

// Sources of a release-status change.
const (
	SourceDirect  = "direct"
	SourceCascade = "po_item"
	SourceRFQ     = "rfq"
)
