package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
	"github.com/odyssey-erp/procurement/internal/platform/db"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	store
	pool  *pgxpool.Pool
	cache *masterdata.Cache
}

// NewRepository constructs a repository. A nil cache disables master-data caching.
func NewRepository(pool *pgxpool.Pool, cache *masterdata.Cache) *Repository {
	return &Repository{
		store: store{db: pool, checker: cache.Wrap(masterdata.NewGateway(pool))},
		pool:  pool,
		cache: cache,
	}
}

// store implements every query against one DBTX.
type store struct {
	db      DBTX
	checker masterdata.Checker
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &store{db: tx, checker: r.cache.Wrap(masterdata.NewGateway(tx))})
	})
}

// Exists delegates to the master-data gateway bound to this connection.
func (s *store) Exists(ctx context.Context, kind masterdata.Kind, key ...string) (bool, error) {
	return s.checker.Exists(ctx, kind, key...)
}

func (s *store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := s.db.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

// Pricing and aggregate reads

func (s *store) FindInfoRecordForMaterial(ctx context.Context, material string) (PurchasingInfoRecord, bool, error) {
	var rec PurchasingInfoRecord
	err := s.db.QueryRow(ctx, `SELECT purchasing_info_record, material, supplier, created_at
FROM purchasing_info_records WHERE material = $1 ORDER BY created_at DESC LIMIT 1`, material).
		Scan(&rec.PurchasingInfoRecord, &rec.Material, &rec.Supplier, &rec.CreatedAt)
	return rec, found(err), ignoreNoRows(err)
}

func (s *store) FindOrgRecord(ctx context.Context, infoRecord string) (PurchasingOrgInfoRecord, bool, error) {
	var (
		org         PurchasingOrgInfoRecord
		price, unit decimal.NullDecimal
	)
	err := s.db.QueryRow(ctx, `SELECT purchasing_info_record, purchasing_organization, net_price, price_unit, created_at
FROM purchasing_org_info_records WHERE purchasing_info_record = $1 ORDER BY created_at DESC LIMIT 1`, infoRecord).
		Scan(&org.PurchasingInfoRecord, &org.PurchasingOrganization, &price, &unit, &org.CreatedAt)
	org.NetPrice, org.PriceUnit = nullable(price), nullable(unit)
	return org, found(err), ignoreNoRows(err)
}

func (s *store) RecentNetPrices(ctx context.Context, material, supplier, excludeInfoRecord string, limit int) ([]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, `SELECT o.net_price
FROM purchasing_org_info_records o
JOIN purchasing_info_records r ON r.purchasing_info_record = o.purchasing_info_record
WHERE r.material = $1 AND r.supplier = $2 AND r.purchasing_info_record <> $3 AND o.net_price IS NOT NULL
ORDER BY o.created_at DESC LIMIT $4`, material, supplier, excludeInfoRecord, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[decimal.Decimal])
}

// Savepoint runs fn under a nested transaction when the store is bound to
// one. Outside a transaction fn runs directly.
func (s *store) Savepoint(ctx context.Context, fn func(Reader) error) error {
	tx, ok := s.db.(pgx.Tx)
	if !ok {
		return fn(s)
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(&store{db: sp, checker: s.checker}); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (s *store) ReleasedRequisitionExists(ctx context.Context, number string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_requisitions WHERE purchase_requisition = $1 AND release_status = $2)`,
		number, string(ReleaseStatusReleased))
}

func (s *store) PurchaseOrderExists(ctx context.Context, purchaseOrder string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE purchase_order = $1 AND document_category = 'F')`, purchaseOrder)
}

const itemColumns = `i.id, i.purchase_order, i.purchase_order_item, i.material, i.purchase_requisition, i.plant, i.storage_location, i.quantity, i.net_price`

func scanItem(row pgx.Row) (PurchaseOrderItem, error) {
	var it PurchaseOrderItem
	err := row.Scan(&it.ID, &it.PurchaseOrder, &it.PurchaseOrderItem, &it.Material, &it.PurchaseRequisition,
		&it.Plant, &it.StorageLocation, &it.Quantity, &it.NetPrice)
	return it, err
}

func (s *store) FindPurchaseOrderItem(ctx context.Context, purchaseOrder, item string) (PurchaseOrderItem, bool, error) {
	it, err := scanItem(s.db.QueryRow(ctx, `SELECT `+itemColumns+`
FROM purchase_order_items i JOIN purchase_orders p ON p.purchase_order = i.purchase_order
WHERE i.purchase_order = $1 AND i.purchase_order_item = $2 AND p.document_category = 'F'`, purchaseOrder, item))
	return it, found(err), ignoreNoRows(err)
}

func (s *store) FindPurchaseOrderItemByID(ctx context.Context, id uuid.UUID) (PurchaseOrderItem, bool, error) {
	it, err := scanItem(s.db.QueryRow(ctx, `SELECT `+itemColumns+`
FROM purchase_order_items i JOIN purchase_orders p ON p.purchase_order = i.purchase_order
WHERE i.id = $1 AND p.document_category = 'F'`, id))
	return it, found(err), ignoreNoRows(err)
}

func (s *store) SupplierOrderItems(ctx context.Context, supplier string, from, to time.Time, excludePO string) ([]PurchaseOrderItem, error) {
	rows, err := s.db.Query(ctx, `SELECT `+itemColumns+`
FROM purchase_order_items i JOIN purchase_orders p ON p.purchase_order = i.purchase_order
WHERE p.supplier = $1 AND p.document_category = 'F' AND p.document_date BETWEEN $2 AND $3 AND p.purchase_order <> $4`,
		supplier, from, to, excludePO)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseOrderItem, error) { return scanItem(row) })
}

func (s *store) ReceivedQuantity(ctx context.Context, purchaseOrder, item, excludeDocument string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM material_documents
WHERE purchase_order = $1 AND purchase_order_item = $2 AND material_document <> $3`, purchaseOrder, item, excludeDocument).Scan(&total)
	return total, err
}

func (s *store) SupplierInvoiceAmounts(ctx context.Context, supplier, excludeInvoice string) ([]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, `SELECT gross_amount FROM supplier_invoices WHERE supplier = $1 AND supplier_invoice <> $2`, supplier, excludeInvoice)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[decimal.Decimal])
}

func (s *store) ActiveSuppliers(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT supplier FROM purchase_orders
WHERE document_category = 'F' AND supplier <> '' AND document_date BETWEEN $1 AND $2
UNION
SELECT supplier FROM supplier_invoices
ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Requisitions

const requisitionColumns = `id, purchase_requisition, purchase_reqn_item, material, plant, storage_location, purchasing_group,
purchase_requisition_type, quantity, delivery_date, release_status, account_assignments, created_at, updated_at`

func scanRequisition(row pgx.Row) (PurchaseRequisition, error) {
	var (
		pr     PurchaseRequisition
		status string
	)
	err := row.Scan(&pr.ID, &pr.PurchaseRequisition, &pr.PurchaseReqnItem, &pr.Material, &pr.Plant, &pr.StorageLocation,
		&pr.PurchasingGroup, &pr.PurchaseRequisitionType, &pr.Quantity, &pr.DeliveryDate, &status,
		&pr.AccountAssignments, &pr.CreatedAt, &pr.UpdatedAt)
	pr.ReleaseStatus = ReleaseStatus(status)
	return pr, err
}

func (s *store) GetRequisition(ctx context.Context, id uuid.UUID) (PurchaseRequisition, bool, error) {
	pr, err := scanRequisition(s.db.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM purchase_requisitions WHERE id = $1`, id))
	return pr, found(err), ignoreNoRows(err)
}

func (s *store) ListRequisitions(ctx context.Context, filters ListFilters) ([]PurchaseRequisition, int, error) {
	w := newFilter()
	w.eq("release_status", filters.Status)
	return listRows(ctx, s.db, "purchase_requisitions", requisitionColumns, w, "purchase_requisition, purchase_reqn_item", filters,
		func(row pgx.CollectableRow) (PurchaseRequisition, error) { return scanRequisition(row) })
}

func (s *store) ListRequisitionsByNumber(ctx context.Context, numbers []string) ([]PurchaseRequisition, error) {
	rows, err := s.db.Query(ctx, `SELECT `+requisitionColumns+` FROM purchase_requisitions
WHERE purchase_requisition = ANY($1) ORDER BY purchase_requisition, purchase_reqn_item`, numbers)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseRequisition, error) { return scanRequisition(row) })
}

// Purchase orders and RFQs

const headerColumns = `purchase_order, supplier, purchase_order_type, document_date, document_category, created_at`

func scanHeader(row pgx.Row) (PurchaseOrderHeader, error) {
	var (
		po       PurchaseOrderHeader
		category string
	)
	err := row.Scan(&po.PurchaseOrder, &po.Supplier, &po.PurchaseOrderType, &po.DocumentDate, &category, &po.CreatedAt)
	po.DocumentCategory = DocumentCategory(category)
	return po, err
}

func (s *store) GetPurchaseOrder(ctx context.Context, purchaseOrder string) (PurchaseOrderHeader, bool, error) {
	po, err := scanHeader(s.db.QueryRow(ctx, `SELECT `+headerColumns+` FROM purchase_orders WHERE purchase_order = $1`, purchaseOrder))
	if err != nil {
		return PurchaseOrderHeader{}, found(err), ignoreNoRows(err)
	}
	rows, err := s.db.Query(ctx, `SELECT `+itemColumns+` FROM purchase_order_items i
WHERE i.purchase_order = $1 ORDER BY i.purchase_order_item`, purchaseOrder)
	if err != nil {
		return PurchaseOrderHeader{}, false, err
	}
	po.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseOrderItem, error) { return scanItem(row) })
	if err != nil {
		return PurchaseOrderHeader{}, false, err
	}
	return po, true, nil
}

func (s *store) ListPurchaseOrders(ctx context.Context, category DocumentCategory, filters ListFilters) ([]PurchaseOrderHeader, int, error) {
	w := newFilter()
	w.eq("document_category", string(category))
	w.eq("supplier", filters.Supplier)
	return listRows(ctx, s.db, "purchase_orders", headerColumns, w, "document_date DESC, purchase_order", filters,
		func(row pgx.CollectableRow) (PurchaseOrderHeader, error) { return scanHeader(row) })
}

func (s *store) LinkedRequisitions(ctx context.Context, purchaseOrder string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT i.purchase_requisition
FROM purchase_order_items i JOIN purchase_orders p ON p.purchase_order = i.purchase_order
WHERE i.purchase_order = $1 AND p.document_category = 'F' AND i.purchase_requisition <> ''
ORDER BY 1`, purchaseOrder)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *store) GetRFQ(ctx context.Context, purchaseOrder string) (RFQ, bool, error) {
	var (
		rfq    RFQ
		status string
	)
	err := s.db.QueryRow(ctx, `SELECT purchase_order, status, version, updated_at FROM rfq_status WHERE purchase_order = $1`, purchaseOrder).
		Scan(&rfq.PurchaseOrder, &status, &rfq.Version, &rfq.UpdatedAt)
	rfq.Status = RFQStatus(status)
	return rfq, found(err), ignoreNoRows(err)
}

const quoteColumns = `id, purchase_order, purchase_order_item, supplier, material, quantity, net_price, status, created_at`

func scanQuote(row pgx.Row) (RFQQuote, error) {
	var (
		q      RFQQuote
		status string
	)
	err := row.Scan(&q.ID, &q.PurchaseOrder, &q.PurchaseOrderItem, &q.Supplier, &q.Material, &q.Quantity, &q.NetPrice, &status, &q.CreatedAt)
	q.Status = QuoteStatus(status)
	return q, err
}

func (s *store) GetQuote(ctx context.Context, id uuid.UUID) (RFQQuote, bool, error) {
	q, err := scanQuote(s.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM rfq_quotes WHERE id = $1`, id))
	return q, found(err), ignoreNoRows(err)
}

func (s *store) ListQuotes(ctx context.Context, purchaseOrder string) ([]RFQQuote, error) {
	rows, err := s.db.Query(ctx, `SELECT `+quoteColumns+` FROM rfq_quotes WHERE purchase_order = $1
ORDER BY purchase_order_item, created_at`, purchaseOrder)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RFQQuote, error) { return scanQuote(row) })
}

// Goods movements, invoices and info records

const materialDocumentColumns = `material_document, material, plant, storage_location, purchase_order, purchase_order_item, quantity, posting_date, created_at`

func scanMaterialDocument(row pgx.Row) (MaterialDocument, error) {
	var d MaterialDocument
	err := row.Scan(&d.MaterialDocument, &d.Material, &d.Plant, &d.StorageLocation, &d.PurchaseOrder, &d.PurchaseOrderItem,
		&d.Quantity, &d.PostingDate, &d.CreatedAt)
	return d, err
}

func (s *store) GetMaterialDocument(ctx context.Context, document string) (MaterialDocument, bool, error) {
	d, err := scanMaterialDocument(s.db.QueryRow(ctx, `SELECT `+materialDocumentColumns+` FROM material_documents WHERE material_document = $1`, document))
	return d, found(err), ignoreNoRows(err)
}

func (s *store) ListMaterialDocuments(ctx context.Context, filters ListFilters) ([]MaterialDocument, int, error) {
	return listRows(ctx, s.db, "material_documents", materialDocumentColumns, newFilter(), "posting_date DESC, material_document", filters,
		func(row pgx.CollectableRow) (MaterialDocument, error) { return scanMaterialDocument(row) })
}

const invoiceColumns = `supplier_invoice, supplier, document_date, gross_amount, created_at`

func scanInvoice(row pgx.Row) (SupplierInvoiceHeader, error) {
	var inv SupplierInvoiceHeader
	err := row.Scan(&inv.SupplierInvoice, &inv.Supplier, &inv.DocumentDate, &inv.GrossAmount, &inv.CreatedAt)
	return inv, err
}

func (s *store) GetSupplierInvoice(ctx context.Context, invoice string) (SupplierInvoiceHeader, bool, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM supplier_invoices WHERE supplier_invoice = $1`, invoice))
	if err != nil {
		return SupplierInvoiceHeader{}, found(err), ignoreNoRows(err)
	}
	rows, err := s.db.Query(ctx, `SELECT supplier_invoice, supplier_invoice_item, purchase_order, purchase_order_item, material, quantity, amount
FROM supplier_invoice_items WHERE supplier_invoice = $1 ORDER BY supplier_invoice_item`, invoice)
	if err != nil {
		return SupplierInvoiceHeader{}, false, err
	}
	inv.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (SupplierInvoiceItem, error) {
		var (
			it          SupplierInvoiceItem
			qty, amount decimal.NullDecimal
		)
		err := row.Scan(&it.SupplierInvoice, &it.SupplierInvoiceItem, &it.PurchaseOrder, &it.PurchaseOrderItem, &it.Material, &qty, &amount)
		it.Quantity, it.Amount = nullable(qty), nullable(amount)
		return it, err
	})
	if err != nil {
		return SupplierInvoiceHeader{}, false, err
	}
	return inv, true, nil
}

func (s *store) ListSupplierInvoices(ctx context.Context, filters ListFilters) ([]SupplierInvoiceHeader, int, error) {
	w := newFilter()
	w.eq("supplier", filters.Supplier)
	return listRows(ctx, s.db, "supplier_invoices", invoiceColumns, w, "document_date DESC, supplier_invoice", filters,
		func(row pgx.CollectableRow) (SupplierInvoiceHeader, error) { return scanInvoice(row) })
}

const infoRecordColumns = `purchasing_info_record, material, supplier, created_at`

func scanInfoRecord(row pgx.Row) (PurchasingInfoRecord, error) {
	var rec PurchasingInfoRecord
	err := row.Scan(&rec.PurchasingInfoRecord, &rec.Material, &rec.Supplier, &rec.CreatedAt)
	return rec, err
}

func (s *store) GetInfoRecord(ctx context.Context, record string) (PurchasingInfoRecord, bool, error) {
	rec, err := scanInfoRecord(s.db.QueryRow(ctx, `SELECT `+infoRecordColumns+` FROM purchasing_info_records WHERE purchasing_info_record = $1`, record))
	if err != nil {
		return PurchasingInfoRecord{}, found(err), ignoreNoRows(err)
	}
	rows, err := s.db.Query(ctx, `SELECT purchasing_info_record, purchasing_organization, net_price, price_unit, created_at
FROM purchasing_org_info_records WHERE purchasing_info_record = $1 ORDER BY purchasing_organization`, record)
	if err != nil {
		return PurchasingInfoRecord{}, false, err
	}
	rec.OrgRecords, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchasingOrgInfoRecord, error) {
		var (
			org         PurchasingOrgInfoRecord
			price, unit decimal.NullDecimal
		)
		err := row.Scan(&org.PurchasingInfoRecord, &org.PurchasingOrganization, &price, &unit, &org.CreatedAt)
		org.NetPrice, org.PriceUnit = nullable(price), nullable(unit)
		return org, err
	})
	if err != nil {
		return PurchasingInfoRecord{}, false, err
	}
	rows, err = s.db.Query(ctx, `SELECT purchasing_info_record, condition_type, plant, amount
FROM purchasing_conditions WHERE purchasing_info_record = $1 ORDER BY condition_type, plant`, record)
	if err != nil {
		return PurchasingInfoRecord{}, false, err
	}
	rec.Conditions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchasingCondition, error) {
		var c PurchasingCondition
		err := row.Scan(&c.PurchasingInfoRecord, &c.ConditionType, &c.Plant, &c.Amount)
		return c, err
	})
	if err != nil {
		return PurchasingInfoRecord{}, false, err
	}
	return rec, true, nil
}

func (s *store) ListInfoRecords(ctx context.Context, filters ListFilters) ([]PurchasingInfoRecord, int, error) {
	w := newFilter()
	w.eq("supplier", filters.Supplier)
	return listRows(ctx, s.db, "purchasing_info_records", infoRecordColumns, w, "created_at DESC, purchasing_info_record", filters,
		func(row pgx.CollectableRow) (PurchasingInfoRecord, error) { return scanInfoRecord(row) })
}

// filter builds a WHERE clause from optional equality conditions.
type filter struct {
	conds []string
	args  []any
}

func newFilter() *filter {
	return &filter{conds: []string{"1=1"}}
}

func (f *filter) eq(column, value string) {
	if value == "" {
		return
	}
	f.args = append(f.args, value)
	f.conds = append(f.conds, column+" = $"+strconv.Itoa(len(f.args)))
}

func (f *filter) where() string {
	return strings.Join(f.conds, " AND ")
}

func listRows[T any](ctx context.Context, db DBTX, table, columns string, w *filter, order string, filters ListFilters, scan pgx.RowToFunc[T]) ([]T, int, error) {
	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := filters.limitOffset()
	n := len(w.args)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`, columns, table, w.where(), order, n+1, n+2)
	rows, err := db.Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func found(err error) bool {
	return err == nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
