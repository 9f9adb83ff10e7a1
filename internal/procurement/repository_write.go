package procurement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// mapWriteError turns unique violations into ConflictError.
func mapWriteError(err error, format string, args ...any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return conflict(format, args...)
	}
	return err
}

func (s *store) InsertRequisition(ctx context.Context, pr PurchaseRequisition) error {
	_, err := s.db.Exec(ctx, `INSERT INTO purchase_requisitions (`+requisitionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`,
		pr.ID, pr.PurchaseRequisition, pr.PurchaseReqnItem, pr.Material, pr.Plant, pr.StorageLocation, pr.PurchasingGroup,
		pr.PurchaseRequisitionType, pr.Quantity, pr.DeliveryDate, string(pr.ReleaseStatus), assignments(pr))
	return mapWriteError(err, "Purchase Requisition %s item %s already exists.", pr.PurchaseRequisition, pr.PurchaseReqnItem)
}

func (s *store) UpdateRequisition(ctx context.Context, pr PurchaseRequisition) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE purchase_requisitions SET material = $2, plant = $3, storage_location = $4,
purchasing_group = $5, purchase_requisition_type = $6, quantity = $7, delivery_date = $8, account_assignments = $9, updated_at = NOW()
WHERE id = $1 AND release_status = $10`,
		pr.ID, pr.Material, pr.Plant, pr.StorageLocation, pr.PurchasingGroup, pr.PurchaseRequisitionType,
		pr.Quantity, pr.DeliveryDate, assignments(pr), string(pr.ReleaseStatus))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *store) UpsertRequisition(ctx context.Context, pr PurchaseRequisition) error {
	_, err := s.db.Exec(ctx, `INSERT INTO purchase_requisitions (`+requisitionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
ON CONFLICT (purchase_requisition, purchase_reqn_item) DO UPDATE SET
    material = EXCLUDED.material, plant = EXCLUDED.plant, storage_location = EXCLUDED.storage_location,
    purchasing_group = EXCLUDED.purchasing_group, purchase_requisition_type = EXCLUDED.purchase_requisition_type,
    quantity = EXCLUDED.quantity, delivery_date = EXCLUDED.delivery_date,
    account_assignments = EXCLUDED.account_assignments, updated_at = NOW()`,
		pr.ID, pr.PurchaseRequisition, pr.PurchaseReqnItem, pr.Material, pr.Plant, pr.StorageLocation, pr.PurchasingGroup,
		pr.PurchaseRequisitionType, pr.Quantity, pr.DeliveryDate, string(pr.ReleaseStatus), assignments(pr))
	return err
}

func (s *store) DeleteRequisition(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM purchase_requisitions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *store) SetReleaseStatus(ctx context.Context, id uuid.UUID, from, to ReleaseStatus) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE purchase_requisitions SET release_status = $3, updated_at = NOW()
WHERE id = $1 AND release_status = $2`, id, string(from), string(to))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *store) TransitionRequisitions(ctx context.Context, numbers []string, from, to ReleaseStatus) ([]string, error) {
	rows, err := s.db.Query(ctx, `WITH moved AS (
    UPDATE purchase_requisitions SET release_status = $3, updated_at = NOW()
    WHERE purchase_requisition = ANY($1) AND release_status = $2
    RETURNING purchase_requisition
)
SELECT DISTINCT purchase_requisition FROM moved ORDER BY 1`, numbers, string(from), string(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SavePurchaseOrder upserts the header and its items. Items missing from
// header.Items are removed; surviving items keep their IDs.
func (s *store) SavePurchaseOrder(ctx context.Context, header PurchaseOrderHeader) error {
	_, err := s.db.Exec(ctx, `INSERT INTO purchase_orders (purchase_order, supplier, purchase_order_type, document_date, document_category)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (purchase_order) DO UPDATE SET supplier = EXCLUDED.supplier,
    purchase_order_type = EXCLUDED.purchase_order_type, document_date = EXCLUDED.document_date`,
		header.PurchaseOrder, header.Supplier, header.PurchaseOrderType, header.DocumentDate, string(header.DocumentCategory))
	if err != nil {
		return err
	}
	keep := make([]string, 0, len(header.Items))
	for _, it := range header.Items {
		keep = append(keep, it.PurchaseOrderItem)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order = $1 AND NOT (purchase_order_item = ANY($2))`,
		header.PurchaseOrder, keep); err != nil {
		return err
	}
	for _, it := range header.Items {
		_, err := s.db.Exec(ctx, `INSERT INTO purchase_order_items (id, purchase_order, purchase_order_item, material,
    purchase_requisition, plant, storage_location, quantity, net_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (purchase_order, purchase_order_item) DO UPDATE SET material = EXCLUDED.material,
    purchase_requisition = EXCLUDED.purchase_requisition, plant = EXCLUDED.plant,
    storage_location = EXCLUDED.storage_location, quantity = EXCLUDED.quantity, net_price = EXCLUDED.net_price`,
			it.ID, header.PurchaseOrder, it.PurchaseOrderItem, it.Material, it.PurchaseRequisition, it.Plant,
			it.StorageLocation, it.Quantity, it.NetPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *store) SaveMaterialDocument(ctx context.Context, doc MaterialDocument) error {
	_, err := s.db.Exec(ctx, `INSERT INTO material_documents (material_document, material, plant, storage_location,
    purchase_order, purchase_order_item, quantity, posting_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (material_document) DO UPDATE SET material = EXCLUDED.material, plant = EXCLUDED.plant,
    storage_location = EXCLUDED.storage_location, purchase_order = EXCLUDED.purchase_order,
    purchase_order_item = EXCLUDED.purchase_order_item, quantity = EXCLUDED.quantity, posting_date = EXCLUDED.posting_date`,
		doc.MaterialDocument, doc.Material, doc.Plant, doc.StorageLocation, doc.PurchaseOrder, doc.PurchaseOrderItem,
		doc.Quantity, doc.PostingDate)
	return err
}

func (s *store) SaveSupplierInvoice(ctx context.Context, inv SupplierInvoiceHeader) error {
	_, err := s.db.Exec(ctx, `INSERT INTO supplier_invoices (supplier_invoice, supplier, document_date, gross_amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (supplier_invoice) DO UPDATE SET supplier = EXCLUDED.supplier,
    document_date = EXCLUDED.document_date, gross_amount = EXCLUDED.gross_amount`,
		inv.SupplierInvoice, inv.Supplier, inv.DocumentDate, inv.GrossAmount)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM supplier_invoice_items WHERE supplier_invoice = $1`, inv.SupplierInvoice); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, it := range inv.Items {
		batch.Queue(`INSERT INTO supplier_invoice_items (supplier_invoice, supplier_invoice_item, purchase_order,
    purchase_order_item, material, quantity, amount) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inv.SupplierInvoice, it.SupplierInvoiceItem, it.PurchaseOrder, it.PurchaseOrderItem, it.Material,
			nullDecimal(it.Quantity), nullDecimal(it.Amount))
	}
	return s.sendBatch(ctx, batch)
}

func (s *store) SaveInfoRecord(ctx context.Context, rec PurchasingInfoRecord) error {
	_, err := s.db.Exec(ctx, `INSERT INTO purchasing_info_records (purchasing_info_record, material, supplier)
VALUES ($1, $2, $3)
ON CONFLICT (purchasing_info_record) DO UPDATE SET material = EXCLUDED.material, supplier = EXCLUDED.supplier`,
		rec.PurchasingInfoRecord, rec.Material, rec.Supplier)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, org := range rec.OrgRecords {
		batch.Queue(`INSERT INTO purchasing_org_info_records (purchasing_info_record, purchasing_organization, net_price, price_unit)
VALUES ($1, $2, $3, $4)
ON CONFLICT (purchasing_info_record, purchasing_organization) DO UPDATE SET
    net_price = EXCLUDED.net_price, price_unit = EXCLUDED.price_unit`,
			rec.PurchasingInfoRecord, org.PurchasingOrganization, nullDecimal(org.NetPrice), nullDecimal(org.PriceUnit))
	}
	batch.Queue(`DELETE FROM purchasing_conditions WHERE purchasing_info_record = $1`, rec.PurchasingInfoRecord)
	for _, c := range rec.Conditions {
		batch.Queue(`INSERT INTO purchasing_conditions (purchasing_info_record, condition_type, plant, amount)
VALUES ($1, $2, $3, $4)`, rec.PurchasingInfoRecord, c.ConditionType, c.Plant, c.Amount)
	}
	return s.sendBatch(ctx, batch)
}

func (s *store) InsertRFQ(ctx context.Context, rfq RFQ) error {
	_, err := s.db.Exec(ctx, `INSERT INTO rfq_status (purchase_order, status, version, updated_at) VALUES ($1, $2, $3, NOW())`,
		rfq.PurchaseOrder, string(rfq.Status), rfq.Version)
	return mapWriteError(err, "RFQ '%s' already exists.", rfq.PurchaseOrder)
}

func (s *store) AdvanceRFQ(ctx context.Context, purchaseOrder string, version int64, to RFQStatus) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE rfq_status SET status = $3, version = version + 1, updated_at = NOW()
WHERE purchase_order = $1 AND version = $2`, purchaseOrder, version, string(to))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *store) InsertQuote(ctx context.Context, q RFQQuote) error {
	_, err := s.db.Exec(ctx, `INSERT INTO rfq_quotes (`+quoteColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		q.ID, q.PurchaseOrder, q.PurchaseOrderItem, q.Supplier, q.Material, q.Quantity, q.NetPrice, string(q.Status))
	return err
}

func (s *store) RejectQuotes(ctx context.Context, purchaseOrder string) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE rfq_quotes SET status = $2 WHERE purchase_order = $1`, purchaseOrder, string(QuoteStatusRejected))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *store) SetQuoteStatus(ctx context.Context, id uuid.UUID, status QuoteStatus) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE rfq_quotes SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return 0, mapWriteError(err, "Another quote is already selected for this RFQ.")
	}
	return tag.RowsAffected(), nil
}

// sendBatch pipelines batch when the connection supports it, query by query otherwise.
func (s *store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	sender, ok := s.db.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		for _, q := range batch.QueuedQueries {
			if _, err := s.db.Exec(ctx, q.SQL, q.Arguments...); err != nil {
				return err
			}
		}
		return nil
	}
	return sender.SendBatch(ctx, batch).Close()
}

func assignments(pr PurchaseRequisition) []AccountAssignment {
	if pr.AccountAssignments == nil {
		return []AccountAssignment{}
	}
	return pr.AccountAssignments
}
