package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// PriceReader is the read side of the pricing resolver.
type PriceReader interface {
	FindInfoRecordForMaterial(ctx context.Context, material string) (PurchasingInfoRecord, bool, error)
	FindOrgRecord(ctx context.Context, infoRecord string) (PurchasingOrgInfoRecord, bool, error)
}

// Reader is everything the validators and aggregators read inside a unit of work.
type Reader interface {
	masterdata.Checker
	PriceReader
	RecentNetPrices(ctx context.Context, material, supplier, excludeInfoRecord string, limit int) ([]decimal.Decimal, error)
	ReleasedRequisitionExists(ctx context.Context, number string) (bool, error)
	PurchaseOrderExists(ctx context.Context, purchaseOrder string) (bool, error)
	FindPurchaseOrderItem(ctx context.Context, purchaseOrder, item string) (PurchaseOrderItem, bool, error)
	SupplierOrderItems(ctx context.Context, supplier string, from, to time.Time, excludePO string) ([]PurchaseOrderItem, error)
	ReceivedQuantity(ctx context.Context, purchaseOrder, item, excludeDocument string) (decimal.Decimal, error)
	SupplierInvoiceAmounts(ctx context.Context, supplier, excludeInvoice string) ([]decimal.Decimal, error)
	ActiveSuppliers(ctx context.Context, from, to time.Time) ([]string, error)
}

// Queries are document reads available outside and inside a transaction.
type Queries interface {
	GetRequisition(ctx context.Context, id uuid.UUID) (PurchaseRequisition, bool, error)
	ListRequisitions(ctx context.Context, filters ListFilters) ([]PurchaseRequisition, int, error)
	GetPurchaseOrder(ctx context.Context, purchaseOrder string) (PurchaseOrderHeader, bool, error)
	ListPurchaseOrders(ctx context.Context, category DocumentCategory, filters ListFilters) ([]PurchaseOrderHeader, int, error)
	GetMaterialDocument(ctx context.Context, document string) (MaterialDocument, bool, error)
	ListMaterialDocuments(ctx context.Context, filters ListFilters) ([]MaterialDocument, int, error)
	GetSupplierInvoice(ctx context.Context, invoice string) (SupplierInvoiceHeader, bool, error)
	ListSupplierInvoices(ctx context.Context, filters ListFilters) ([]SupplierInvoiceHeader, int, error)
	GetInfoRecord(ctx context.Context, record string) (PurchasingInfoRecord, bool, error)
	ListInfoRecords(ctx context.Context, filters ListFilters) ([]PurchasingInfoRecord, int, error)
	GetRFQ(ctx context.Context, purchaseOrder string) (RFQ, bool, error)
	GetQuote(ctx context.Context, id uuid.UUID) (RFQQuote, bool, error)
	ListQuotes(ctx context.Context, purchaseOrder string) ([]RFQQuote, error)
}

// TxRepository is the unit of work handed to validators and workflow steps.
type TxRepository interface {
	Reader
	Queries

	InsertRequisition(ctx context.Context, pr PurchaseRequisition) error
	UpdateRequisition(ctx context.Context, pr PurchaseRequisition) (bool, error)
	UpsertRequisition(ctx context.Context, pr PurchaseRequisition) error
	DeleteRequisition(ctx context.Context, id uuid.UUID) (bool, error)
	ListRequisitionsByNumber(ctx context.Context, numbers []string) ([]PurchaseRequisition, error)
	SetReleaseStatus(ctx context.Context, id uuid.UUID, from, to ReleaseStatus) (int64, error)
	TransitionRequisitions(ctx context.Context, numbers []string, from, to ReleaseStatus) ([]string, error)

	SavePurchaseOrder(ctx context.Context, header PurchaseOrderHeader) error
	FindPurchaseOrderItemByID(ctx context.Context, id uuid.UUID) (PurchaseOrderItem, bool, error)
	LinkedRequisitions(ctx context.Context, purchaseOrder string) ([]string, error)

	SaveMaterialDocument(ctx context.Context, doc MaterialDocument) error
	SaveSupplierInvoice(ctx context.Context, inv SupplierInvoiceHeader) error
	SaveInfoRecord(ctx context.Context, rec PurchasingInfoRecord) error

	InsertRFQ(ctx context.Context, rfq RFQ) error
	AdvanceRFQ(ctx context.Context, purchaseOrder string, version int64, to RFQStatus) (int64, error)
	InsertQuote(ctx context.Context, quote RFQQuote) error
	RejectQuotes(ctx context.Context, purchaseOrder string) (int64, error)
	SetQuoteStatus(ctx context.Context, id uuid.UUID, status QuoteStatus) (int64, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Queries
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
