package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReleaseStatus is the PR approval flag.
type ReleaseStatus string

const (
	ReleaseStatusNotReleased ReleaseStatus = "NOT_REL"
	ReleaseStatusReleased    ReleaseStatus = "REL"
)

// DocumentCategory separates standard purchase orders from RFQs.
type DocumentCategory string

const (
	DocumentCategoryOrder DocumentCategory = "F"
	DocumentCategoryRFQ   DocumentCategory = "Q"
)

// QuoteStatus is the state of a supplier quote on an RFQ.
type QuoteStatus string

const (
	QuoteStatusOffered  QuoteStatus = "OFFERED"
	QuoteStatusSelected QuoteStatus = "SELECTED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
)

// RFQStatus is the lifecycle state of an RFQ.
type RFQStatus string

const (
	RFQStatusDraft     RFQStatus = "DRAFT"
	RFQStatusSent      RFQStatus = "SENT"
	RFQStatusEvaluated RFQStatus = "EVALUATED"
	RFQStatusClosed    RFQStatus = "CLOSED"
)

// AccountAssignment carries the cost center whose value doubles as the PR approval limit.
type AccountAssignment struct {
	CostCenter string `json:"cost_center"`
}

// PurchaseRequisition is one PR line.
type PurchaseRequisition struct {
	ID                      uuid.UUID           `json:"id"`
	PurchaseRequisition     string              `json:"purchase_requisition"`
	PurchaseReqnItem        string              `json:"purchase_reqn_item"`
	Material                string              `json:"material"`
	Plant                   string              `json:"plant"`
	StorageLocation         string              `json:"storage_location"`
	PurchasingGroup         string              `json:"purchasing_group"`
	PurchaseRequisitionType string              `json:"purchase_requisition_type"`
	Quantity                decimal.Decimal     `json:"quantity"`
	DeliveryDate            time.Time           `json:"delivery_date"`
	ReleaseStatus           ReleaseStatus       `json:"release_status"`
	AccountAssignments      []AccountAssignment `json:"account_assignments"`
	CreatedAt               time.Time           `json:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at"`
}

// PurchaseOrderHeader is a PO or RFQ header.
type PurchaseOrderHeader struct {
	PurchaseOrder     string              `json:"purchase_order"`
	Supplier          string              `json:"supplier"`
	PurchaseOrderType string              `json:"purchase_order_type"`
	DocumentDate      time.Time           `json:"document_date"`
	DocumentCategory  DocumentCategory    `json:"document_category"`
	Items             []PurchaseOrderItem `json:"items,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// PurchaseOrderItem is a PO or RFQ line.
type PurchaseOrderItem struct {
	ID                  uuid.UUID       `json:"id"`
	PurchaseOrder       string          `json:"purchase_order"`
	PurchaseOrderItem   string          `json:"purchase_order_item"`
	Material            string          `json:"material"`
	PurchaseRequisition string          `json:"purchase_requisition,omitempty"`
	Plant               string          `json:"plant"`
	StorageLocation     string          `json:"storage_location"`
	Quantity            decimal.Decimal `json:"quantity"`
	NetPrice            decimal.Decimal `json:"net_price"`
}

// Total returns Quantity x NetPrice.
func (i PurchaseOrderItem) Total() decimal.Decimal {
	return i.Quantity.Mul(i.NetPrice)
}

// MaterialDocument is a goods movement against a PO item.
type MaterialDocument struct {
	MaterialDocument  string          `json:"material_document"`
	Material          string          `json:"material"`
	Plant             string          `json:"plant"`
	StorageLocation   string          `json:"storage_location"`
	PurchaseOrder     string          `json:"purchase_order"`
	PurchaseOrderItem string          `json:"purchase_order_item"`
	Quantity          decimal.Decimal `json:"quantity"`
	PostingDate       time.Time       `json:"posting_date"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SupplierInvoiceHeader is an incoming supplier invoice.
type SupplierInvoiceHeader struct {
	SupplierInvoice string                `json:"supplier_invoice"`
	Supplier        string                `json:"supplier"`
	DocumentDate    time.Time             `json:"document_date"`
	GrossAmount     decimal.Decimal       `json:"gross_amount"`
	Items           []SupplierInvoiceItem `json:"items,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// SupplierInvoiceItem is one invoiced PO line.
type SupplierInvoiceItem struct {
	SupplierInvoice     string           `json:"supplier_invoice"`
	SupplierInvoiceItem string           `json:"supplier_invoice_item"`
	PurchaseOrder       string           `json:"purchase_order"`
	PurchaseOrderItem   string           `json:"purchase_order_item"`
	Material            string           `json:"material"`
	Quantity            *decimal.Decimal `json:"quantity,omitempty"`
	Amount              *decimal.Decimal `json:"amount,omitempty"`
}

// PurchasingInfoRecord links a material to a supplier.
type PurchasingInfoRecord struct {
	PurchasingInfoRecord string                    `json:"purchasing_info_record"`
	Material             string                    `json:"material"`
	Supplier             string                    `json:"supplier"`
	OrgRecords           []PurchasingOrgInfoRecord `json:"org_records,omitempty"`
	Conditions           []PurchasingCondition     `json:"conditions,omitempty"`
	CreatedAt            time.Time                 `json:"created_at"`
}

// PurchasingOrgInfoRecord carries org-level pricing for an info record.
type PurchasingOrgInfoRecord struct {
	PurchasingInfoRecord   string           `json:"purchasing_info_record"`
	PurchasingOrganization string           `json:"purchasing_organization"`
	NetPrice               *decimal.Decimal `json:"net_price,omitempty"`
	PriceUnit              *decimal.Decimal `json:"price_unit,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
}

// PurchasingCondition is a plant-scoped condition of an info record.
type PurchasingCondition struct {
	PurchasingInfoRecord string          `json:"purchasing_info_record"`
	ConditionType        string          `json:"condition_type"`
	Plant                string          `json:"plant"`
	Amount               decimal.Decimal `json:"amount"`
}

// RFQ is the status row that tracks an RFQ header through its lifecycle.
type RFQ struct {
	PurchaseOrder string    `json:"purchase_order"`
	Status        RFQStatus `json:"status"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RFQQuote is a supplier's offer for one RFQ item.
type RFQQuote struct {
	ID                uuid.UUID       `json:"id"`
	PurchaseOrder     string          `json:"purchase_order"`
	PurchaseOrderItem string          `json:"purchase_order_item"`
	Supplier          string          `json:"supplier"`
	Material          string          `json:"material"`
	Quantity          decimal.Decimal `json:"quantity"`
	NetPrice          decimal.Decimal `json:"net_price"`
	Status            QuoteStatus     `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Total returns Quantity x NetPrice.
func (q RFQQuote) Total() decimal.Decimal {
	return q.Quantity.Mul(q.NetPrice)
}

// UnitPrice is the effective price per base unit resolved from an info record.
type UnitPrice struct {
	InfoRecord string          `json:"info_record"`
	NetPrice   decimal.Decimal `json:"net_price"`
	PriceUnit  decimal.Decimal `json:"price_unit"`
}

// Effective returns NetPrice / PriceUnit.
func (p UnitPrice) Effective() decimal.Decimal {
	if p.PriceUnit.IsZero() {
		return p.NetPrice
	}
	return p.NetPrice.Div(p.PriceUnit)
}

// ListFilters narrows list queries.
type ListFilters struct {
	Page     int
	PerPage  int
	Supplier string
	Status   string
}

func (f ListFilters) limitOffset() (int, int) {
	perPage := f.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
