package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type accountAssignmentRequest struct {
	CostCenter string `json:"cost_center"`
}

type requisitionRequest struct {
	PurchaseRequisition     string                     `json:"purchase_requisition" validate:"omitempty,max=20"`
	PurchaseReqnItem        string                     `json:"purchase_reqn_item" validate:"omitempty,max=10"`
	Material                string                     `json:"material" validate:"required,max=40"`
	Plant                   string                     `json:"plant" validate:"required,max=10"`
	StorageLocation         string                     `json:"storage_location" validate:"required,max=10"`
	PurchasingGroup         string                     `json:"purchasing_group" validate:"required,max=10"`
	PurchaseRequisitionType string                     `json:"purchase_requisition_type" validate:"required,max=10"`
	Quantity                decimal.Decimal            `json:"quantity"`
	DeliveryDate            string                     `json:"delivery_date" validate:"required"`
	AccountAssignments      []accountAssignmentRequest `json:"account_assignments" validate:"dive"`
}

func (r requisitionRequest) toDomain(d *dates) PurchaseRequisition {
	pr := PurchaseRequisition{
		PurchaseRequisition:     r.PurchaseRequisition,
		PurchaseReqnItem:        r.PurchaseReqnItem,
		Material:                r.Material,
		Plant:                   r.Plant,
		StorageLocation:         r.StorageLocation,
		PurchasingGroup:         r.PurchasingGroup,
		PurchaseRequisitionType: r.PurchaseRequisitionType,
		Quantity:                r.Quantity,
		DeliveryDate:            d.parse("delivery_date", r.DeliveryDate),
	}
	for _, a := range r.AccountAssignments {
		pr.AccountAssignments = append(pr.AccountAssignments, AccountAssignment(a))
	}
	return pr
}

type orderItemRequest struct {
	PurchaseOrderItem   string          `json:"purchase_order_item" validate:"omitempty,max=10"`
	Material            string          `json:"material" validate:"required,max=40"`
	PurchaseRequisition string          `json:"purchase_requisition" validate:"omitempty,max=20"`
	Plant               string          `json:"plant" validate:"required,max=10"`
	StorageLocation     string          `json:"storage_location" validate:"required,max=10"`
	Quantity            decimal.Decimal `json:"quantity"`
	NetPrice            decimal.Decimal `json:"net_price"`
}

type purchaseOrderRequest struct {
	PurchaseOrder     string             `json:"purchase_order" validate:"omitempty,max=20"`
	Supplier          string             `json:"supplier" validate:"required,max=20"`
	PurchaseOrderType string             `json:"purchase_order_type" validate:"required,max=10"`
	DocumentDate      string             `json:"document_date" validate:"required"`
	Items             []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (r purchaseOrderRequest) toDomain(d *dates) PurchaseOrderHeader {
	po := PurchaseOrderHeader{
		PurchaseOrder:     r.PurchaseOrder,
		Supplier:          r.Supplier,
		PurchaseOrderType: r.PurchaseOrderType,
		DocumentDate:      d.parse("document_date", r.DocumentDate),
	}
	for _, it := range r.Items {
		po.Items = append(po.Items, PurchaseOrderItem{
			PurchaseOrderItem:   it.PurchaseOrderItem,
			Material:            it.Material,
			PurchaseRequisition: it.PurchaseRequisition,
			Plant:               it.Plant,
			StorageLocation:     it.StorageLocation,
			Quantity:            it.Quantity,
			NetPrice:            it.NetPrice,
		})
	}
	return po
}

type rfqRequest struct {
	PurchaseOrder     string             `json:"purchase_order" validate:"omitempty,max=20"`
	Supplier          string             `json:"supplier" validate:"omitempty,max=20"`
	PurchaseOrderType string             `json:"purchase_order_type" validate:"required,max=10"`
	DocumentDate      string             `json:"document_date"`
	Items             []orderItemRequest `json:"items" validate:"dive"`
}

func (r rfqRequest) toDomain(d *dates) PurchaseOrderHeader {
	po := purchaseOrderRequest{
		PurchaseOrder:     r.PurchaseOrder,
		Supplier:          r.Supplier,
		PurchaseOrderType: r.PurchaseOrderType,
		Items:             r.Items,
	}.toDomain(d)
	po.DocumentDate = d.parse("document_date", r.DocumentDate)
	return po
}

type materialDocumentRequest struct {
	MaterialDocument  string          `json:"material_document" validate:"omitempty,max=20"`
	Material          string          `json:"material" validate:"omitempty,max=40"`
	Plant             string          `json:"plant" validate:"omitempty,max=10"`
	StorageLocation   string          `json:"storage_location" validate:"omitempty,max=10"`
	PurchaseOrder     string          `json:"purchase_order" validate:"omitempty,max=20"`
	PurchaseOrderItem string          `json:"purchase_order_item" validate:"omitempty,max=10"`
	Quantity          decimal.Decimal `json:"quantity"`
	PostingDate       string          `json:"posting_date"`
}

func (r materialDocumentRequest) toDomain(d *dates) MaterialDocument {
	return MaterialDocument{
		MaterialDocument:  r.MaterialDocument,
		Material:          r.Material,
		Plant:             r.Plant,
		StorageLocation:   r.StorageLocation,
		PurchaseOrder:     r.PurchaseOrder,
		PurchaseOrderItem: r.PurchaseOrderItem,
		Quantity:          r.Quantity,
		PostingDate:       d.parse("posting_date", r.PostingDate),
	}
}

type invoiceItemRequest struct {
	SupplierInvoiceItem string           `json:"supplier_invoice_item" validate:"omitempty,max=10"`
	PurchaseOrder       string           `json:"purchase_order" validate:"omitempty,max=20"`
	PurchaseOrderItem   string           `json:"purchase_order_item" validate:"omitempty,max=10"`
	Material            string           `json:"material" validate:"omitempty,max=40"`
	Quantity            *decimal.Decimal `json:"quantity,omitempty"`
	Amount              *decimal.Decimal `json:"amount,omitempty"`
}

type supplierInvoiceRequest struct {
	SupplierInvoice string               `json:"supplier_invoice" validate:"omitempty,max=20"`
	Supplier        string               `json:"supplier" validate:"required,max=20"`
	DocumentDate    string               `json:"document_date" validate:"required"`
	GrossAmount     decimal.Decimal      `json:"gross_amount"`
	Items           []invoiceItemRequest `json:"items" validate:"dive"`
}

func (r supplierInvoiceRequest) toDomain(d *dates) SupplierInvoiceHeader {
	inv := SupplierInvoiceHeader{
		SupplierInvoice: r.SupplierInvoice,
		Supplier:        r.Supplier,
		DocumentDate:    d.parse("document_date", r.DocumentDate),
		GrossAmount:     r.GrossAmount,
	}
	for _, it := range r.Items {
		inv.Items = append(inv.Items, SupplierInvoiceItem{
			SupplierInvoiceItem: it.SupplierInvoiceItem,
			PurchaseOrder:       it.PurchaseOrder,
			PurchaseOrderItem:   it.PurchaseOrderItem,
			Material:            it.Material,
			Quantity:            it.Quantity,
			Amount:              it.Amount,
		})
	}
	return inv
}

type orgRecordRequest struct {
	PurchasingOrganization string           `json:"purchasing_organization" validate:"required"`
	NetPrice               *decimal.Decimal `json:"net_price,omitempty"`
	PriceUnit              *decimal.Decimal `json:"price_unit,omitempty"`
}

type conditionRequest struct {
	ConditionType string          `json:"condition_type" validate:"required,max=4"`
	Plant         string          `json:"plant" validate:"omitempty,max=10"`
	Amount        decimal.Decimal `json:"amount"`
}

type infoRecordRequest struct {
	PurchasingInfoRecord string             `json:"purchasing_info_record" validate:"omitempty,max=20"`
	Material             string             `json:"material" validate:"required,max=40"`
	Supplier             string             `json:"supplier" validate:"required,max=20"`
	OrgRecords           []orgRecordRequest `json:"org_records" validate:"dive"`
	Conditions           []conditionRequest `json:"conditions" validate:"dive"`
}

func (r infoRecordRequest) toDomain() PurchasingInfoRecord {
	rec := PurchasingInfoRecord{
		PurchasingInfoRecord: r.PurchasingInfoRecord,
		Material:             r.Material,
		Supplier:             r.Supplier,
	}
	for _, o := range r.OrgRecords {
		rec.OrgRecords = append(rec.OrgRecords, PurchasingOrgInfoRecord{
			PurchasingOrganization: o.PurchasingOrganization,
			NetPrice:               o.NetPrice,
			PriceUnit:              o.PriceUnit,
		})
	}
	for _, c := range r.Conditions {
		rec.Conditions = append(rec.Conditions, PurchasingCondition{ConditionType: c.ConditionType, Plant: c.Plant, Amount: c.Amount})
	}
	return rec
}

type quoteRequest struct {
	PurchaseOrderItem string          `json:"purchase_order_item" validate:"required,max=10"`
	Supplier          string          `json:"supplier" validate:"required,max=20"`
	Quantity          decimal.Decimal `json:"quantity"`
	NetPrice          decimal.Decimal `json:"net_price"`
}

type cascadeRequest struct {
	ID                *uuid.UUID `json:"id,omitempty"`
	PurchaseOrder     string     `json:"purchase_order"`
	PurchaseOrderItem string     `json:"purchase_order_item"`
}

type convertToPRRequest struct {
	PurchasingGroup         string `json:"purchasing_group" validate:"required,max=10"`
	PurchaseRequisitionType string `json:"purchase_requisition_type" validate:"required,max=10"`
	DeliveryDate            string `json:"delivery_date" validate:"required"`
	CostCenter              string `json:"cost_center" validate:"required"`
}

type convertToPORequest struct {
	PurchaseOrder     string `json:"purchase_order" validate:"omitempty,max=20"`
	PurchaseOrderType string `json:"purchase_order_type" validate:"omitempty,max=10"`
	DocumentDate      string `json:"document_date"`
}

type budgetRequest struct {
	Budget *decimal.Decimal `json:"budget,omitempty"`
}

// dates parses request dates and collects the fields that failed.
type dates struct {
	loc    *time.Location
	errors []FieldError
}

func (d *dates) parse(field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, d.loc); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(d.loc)
	}
	d.errors = append(d.errors, FieldError{Field: field, Message: "Invalid date '" + raw + "'. Use YYYY-MM-DD."})
	return time.Time{}
}
