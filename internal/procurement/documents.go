package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/procurement/internal/shared"
)

// saveMode selects create or update semantics for document writes.
type saveMode int

const (
	modeCreate saveMode = iota
	modeUpdate
)

// CreateRequisition validates and persists a new PR line in NOT_REL.
func (s *Service) CreateRequisition(ctx context.Context, pr PurchaseRequisition) (PurchaseRequisition, error) {
	if pr.ID == uuid.Nil {
		pr.ID = uuid.New()
	}
	if pr.PurchaseRequisition == "" {
		pr.PurchaseRequisition = generateNumber("PR")
	}
	if pr.PurchaseReqnItem == "" {
		pr.PurchaseReqnItem = "10"
	}
	pr.ReleaseStatus = ReleaseStatusNotReleased
	err := s.within(ctx, "purchase_requisition", func(ctx context.Context, tx TxRepository) error {
		if err := s.validator.ValidateRequisition(ctx, tx, pr); err != nil {
			return err
		}
		return tx.InsertRequisition(ctx, pr)
	})
	if err != nil {
		return PurchaseRequisition{}, err
	}
	s.recordAudit(ctx, "PR_CREATE", "purchase_requisition", pr.ID.String(), map[string]any{"number": pr.PurchaseRequisition, "item": pr.PurchaseReqnItem})
	return pr, nil
}

// UpdateRequisition revalidates and replaces a PR line. Release status is
// owned by the workflow and is never changed here.
func (s *Service) UpdateRequisition(ctx context.Context, id uuid.UUID, pr PurchaseRequisition) (PurchaseRequisition, error) {
	err := s.within(ctx, "purchase_requisition", func(ctx context.Context, tx TxRepository) error {
		current, found, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return notFound("Purchase Requisition with ID '%s' not found.", id)
		}
		pr.ID = id
		pr.PurchaseRequisition = current.PurchaseRequisition
		pr.PurchaseReqnItem = current.PurchaseReqnItem
		pr.ReleaseStatus = current.ReleaseStatus
		pr.CreatedAt = current.CreatedAt
		if err := s.validator.ValidateRequisition(ctx, tx, pr); err != nil {
			return err
		}
		ok, err := tx.UpdateRequisition(ctx, pr)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("Purchase Requisition %s was changed by another request.", pr.PurchaseRequisition)
		}
		return nil
	})
	if err != nil {
		return PurchaseRequisition{}, err
	}
	s.recordAudit(ctx, "PR_UPDATE", "purchase_requisition", id.String(), nil)
	return pr, nil
}

// DeleteRequisition removes a PR line.
func (s *Service) DeleteRequisition(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.DeleteRequisition(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("Purchase Requisition with ID '%s' not found.", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PR_DELETE", "purchase_requisition", id.String(), nil)
	return nil
}

// GetRequisition loads one PR line.
func (s *Service) GetRequisition(ctx context.Context, id uuid.UUID) (PurchaseRequisition, error) {
	pr, found, err := s.repo.GetRequisition(ctx, id)
	if err != nil {
		return PurchaseRequisition{}, err
	}
	if !found {
		return PurchaseRequisition{}, notFound("Purchase Requisition with ID '%s' not found.", id)
	}
	return pr, nil
}

// ListRequisitions pages PR lines.
func (s *Service) ListRequisitions(ctx context.Context, filters ListFilters) (shared.Page[PurchaseRequisition], error) {
	items, total, err := s.repo.ListRequisitions(ctx, filters)
	if err != nil {
		return shared.Page[PurchaseRequisition]{}, err
	}
	return page(items, filters, total), nil
}

// CreatePurchaseOrder validates and persists a standard PO.
func (s *Service) CreatePurchaseOrder(ctx context.Context, po PurchaseOrderHeader) (PurchaseOrderHeader, error) {
	return s.savePurchaseOrder(ctx, po, modeCreate)
}

// UpdatePurchaseOrder revalidates and replaces a standard PO with its items.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrderHeader) (PurchaseOrderHeader, error) {
	return s.savePurchaseOrder(ctx, po, modeUpdate)
}

func (s *Service) savePurchaseOrder(ctx context.Context, po PurchaseOrderHeader, mode saveMode) (PurchaseOrderHeader, error) {
	if po.PurchaseOrder == "" && mode == modeCreate {
		po.PurchaseOrder = generateNumber("PO")
	}
	po.DocumentCategory = DocumentCategoryOrder
	prepareItems(&po)
	err := s.within(ctx, "purchase_order", func(ctx context.Context, tx TxRepository) error {
		current, found, err := tx.GetPurchaseOrder(ctx, po.PurchaseOrder)
		if err != nil {
			return err
		}
		if err := checkMode(mode, found, "Purchase Order", po.PurchaseOrder); err != nil {
			return err
		}
		if found && current.DocumentCategory != DocumentCategoryOrder {
			return conflict("Document '%s' is an RFQ, not a Purchase Order.", po.PurchaseOrder)
		}
		if err := s.validator.ValidatePurchaseOrder(ctx, tx, po); err != nil {
			return err
		}
		return tx.SavePurchaseOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrderHeader{}, err
	}
	s.invalidateSnapshots(ctx)
	s.recordAudit(ctx, "PO_SAVE", "purchase_order", po.PurchaseOrder, map[string]any{"supplier": po.Supplier, "items": len(po.Items)})
	return po, nil
}

// GetPurchaseOrder loads a standard PO with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, number string) (PurchaseOrderHeader, error) {
	po, found, err := s.repo.GetPurchaseOrder(ctx, number)
	if err != nil {
		return PurchaseOrderHeader{}, err
	}
	if !found || po.DocumentCategory != DocumentCategoryOrder {
		return PurchaseOrderHeader{}, notFound("Purchase Order '%s' does not exist", number)
	}
	return po, nil
}

// ListPurchaseOrders pages standard PO headers.
func (s *Service) ListPurchaseOrders(ctx context.Context, filters ListFilters) (shared.Page[PurchaseOrderHeader], error) {
	items, total, err := s.repo.ListPurchaseOrders(ctx, DocumentCategoryOrder, filters)
	if err != nil {
		return shared.Page[PurchaseOrderHeader]{}, err
	}
	return page(items, filters, total), nil
}

// SaveMaterialDocument validates and persists a goods movement.
func (s *Service) SaveMaterialDocument(ctx context.Context, doc MaterialDocument, create bool) (MaterialDocument, error) {
	mode := modeUpdate
	if create {
		mode = modeCreate
		if doc.MaterialDocument == "" {
			doc.MaterialDocument = generateNumber("MD")
		}
	}
	if doc.PostingDate.IsZero() {
		doc.PostingDate = startOfDay(s.validator.now())
	}
	err := s.within(ctx, "material_document", func(ctx context.Context, tx TxRepository) error {
		_, found, err := tx.GetMaterialDocument(ctx, doc.MaterialDocument)
		if err != nil {
			return err
		}
		if err := checkMode(mode, found, "Material Document", doc.MaterialDocument); err != nil {
			return err
		}
		if err := s.validator.ValidateMaterialDocument(ctx, tx, doc); err != nil {
			return err
		}
		return tx.SaveMaterialDocument(ctx, doc)
	})
	if err != nil {
		return MaterialDocument{}, err
	}
	s.recordAudit(ctx, "GR_SAVE", "material_document", doc.MaterialDocument, map[string]any{"purchase_order": doc.PurchaseOrder, "quantity": doc.Quantity.String()})
	return doc, nil
}

// GetMaterialDocument loads a goods movement.
func (s *Service) GetMaterialDocument(ctx context.Context, number string) (MaterialDocument, error) {
	doc, found, err := s.repo.GetMaterialDocument(ctx, number)
	if err != nil {
		return MaterialDocument{}, err
	}
	if !found {
		return MaterialDocument{}, notFound("Material Document '%s' does not exist", number)
	}
	return doc, nil
}

// ListMaterialDocuments pages goods movements.
func (s *Service) ListMaterialDocuments(ctx context.Context, filters ListFilters) (shared.Page[MaterialDocument], error) {
	items, total, err := s.repo.ListMaterialDocuments(ctx, filters)
	if err != nil {
		return shared.Page[MaterialDocument]{}, err
	}
	return page(items, filters, total), nil
}

// SaveSupplierInvoice validates and persists a supplier invoice.
func (s *Service) SaveSupplierInvoice(ctx context.Context, inv SupplierInvoiceHeader, create bool) (SupplierInvoiceHeader, error) {
	mode := modeUpdate
	if create {
		mode = modeCreate
		if inv.SupplierInvoice == "" {
			inv.SupplierInvoice = generateNumber("INV")
		}
	}
	for i := range inv.Items {
		inv.Items[i].SupplierInvoice = inv.SupplierInvoice
		if inv.Items[i].SupplierInvoiceItem == "" {
			inv.Items[i].SupplierInvoiceItem = itemNumber(i)
		}
	}
	err := s.within(ctx, "supplier_invoice", func(ctx context.Context, tx TxRepository) error {
		_, found, err := tx.GetSupplierInvoice(ctx, inv.SupplierInvoice)
		if err != nil {
			return err
		}
		if err := checkMode(mode, found, "Supplier Invoice", inv.SupplierInvoice); err != nil {
			return err
		}
		if err := s.validator.ValidateSupplierInvoice(ctx, tx, inv); err != nil {
			return err
		}
		return tx.SaveSupplierInvoice(ctx, inv)
	})
	if err != nil {
		return SupplierInvoiceHeader{}, err
	}
	s.invalidateSnapshots(ctx)
	s.recordAudit(ctx, "INVOICE_SAVE", "supplier_invoice", inv.SupplierInvoice, map[string]any{"supplier": inv.Supplier, "gross_amount": inv.GrossAmount.String()})
	return inv, nil
}

// GetSupplierInvoice loads an invoice with its items.
func (s *Service) GetSupplierInvoice(ctx context.Context, number string) (SupplierInvoiceHeader, error) {
	inv, found, err := s.repo.GetSupplierInvoice(ctx, number)
	if err != nil {
		return SupplierInvoiceHeader{}, err
	}
	if !found {
		return SupplierInvoiceHeader{}, notFound("Supplier Invoice '%s' does not exist", number)
	}
	return inv, nil
}

// ListSupplierInvoices pages invoice headers.
func (s *Service) ListSupplierInvoices(ctx context.Context, filters ListFilters) (shared.Page[SupplierInvoiceHeader], error) {
	items, total, err := s.repo.ListSupplierInvoices(ctx, filters)
	if err != nil {
		return shared.Page[SupplierInvoiceHeader]{}, err
	}
	return page(items, filters, total), nil
}

// InfoRecordResult pairs a saved info record with its price history checks.
type InfoRecordResult struct {
	Record  PurchasingInfoRecord `json:"record"`
	History []HistoryCheck       `json:"history"`
}

// SaveInfoRecord validates and persists an info record with its org records and conditions.
func (s *Service) SaveInfoRecord(ctx context.Context, rec PurchasingInfoRecord, create bool) (InfoRecordResult, error) {
	mode := modeUpdate
	if create {
		mode = modeCreate
		if rec.PurchasingInfoRecord == "" {
			rec.PurchasingInfoRecord = generateNumber("IR")
		}
	}
	for i := range rec.OrgRecords {
		rec.OrgRecords[i].PurchasingInfoRecord = rec.PurchasingInfoRecord
	}
	for i := range rec.Conditions {
		rec.Conditions[i].PurchasingInfoRecord = rec.PurchasingInfoRecord
	}
	var history []HistoryCheck
	err := s.within(ctx, "info_record", func(ctx context.Context, tx TxRepository) error {
		_, found, err := tx.GetInfoRecord(ctx, rec.PurchasingInfoRecord)
		if err != nil {
			return err
		}
		if err := checkMode(mode, found, "Purchasing Info Record", rec.PurchasingInfoRecord); err != nil {
			return err
		}
		history, err = s.validator.ValidateInfoRecord(ctx, tx, rec)
		if err != nil {
			return err
		}
		return tx.SaveInfoRecord(ctx, rec)
	})
	if err != nil {
		return InfoRecordResult{}, err
	}
	s.recordAudit(ctx, "INFORECORD_SAVE", "info_record", rec.PurchasingInfoRecord, map[string]any{"material": rec.Material, "supplier": rec.Supplier})
	return InfoRecordResult{Record: rec, History: history}, nil
}

// GetInfoRecord loads an info record with org records and conditions.
func (s *Service) GetInfoRecord(ctx context.Context, number string) (PurchasingInfoRecord, error) {
	rec, found, err := s.repo.GetInfoRecord(ctx, number)
	if err != nil {
		return PurchasingInfoRecord{}, err
	}
	if !found {
		return PurchasingInfoRecord{}, notFound("Purchasing Info Record '%s' does not exist", number)
	}
	return rec, nil
}

// ListInfoRecords pages info records.
func (s *Service) ListInfoRecords(ctx context.Context, filters ListFilters) (shared.Page[PurchasingInfoRecord], error) {
	items, total, err := s.repo.ListInfoRecords(ctx, filters)
	if err != nil {
		return shared.Page[PurchasingInfoRecord]{}, err
	}
	return page(items, filters, total), nil
}

func checkMode(mode saveMode, found bool, label, key string) error {
	switch {
	case mode == modeCreate && found:
		return conflict("%s '%s' already exists.", label, key)
	case mode == modeUpdate && !found:
		return notFound("%s '%s' does not exist", label, key)
	}
	return nil
}

func prepareItems(po *PurchaseOrderHeader) {
	for i := range po.Items {
		it := &po.Items[i]
		it.PurchaseOrder = po.PurchaseOrder
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.PurchaseOrderItem == "" {
			it.PurchaseOrderItem = itemNumber(i)
		}
	}
}

func page[T any](items []T, filters ListFilters, total int) shared.Page[T] {
	perPage, _ := filters.limitOffset()
	return shared.Page[T]{Items: items, Pagination: shared.NewPagination(filters.Page, perPage, total)}
}

func itemNumber(idx int) string {
	return fmt.Sprintf("%d", (idx+1)*10)
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
