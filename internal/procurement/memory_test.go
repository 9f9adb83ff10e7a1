package procurement

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
	"github.com/odyssey-erp/procurement/internal/shared"
)

var testNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type memoryProcRepo struct {
	mu          sync.Mutex
	master      map[masterdata.Kind]map[string]bool
	prs         map[uuid.UUID]PurchaseRequisition
	pos         map[string]PurchaseOrderHeader
	docs        map[string]MaterialDocument
	invoices    map[string]SupplierInvoiceHeader
	infoRecords map[string]PurchasingInfoRecord
	rfqs        map[string]RFQ
	quotes      map[uuid.UUID]RFQQuote
	clock       time.Time
	existsErr   error
	historyErr  error
	lookups     int
	savepoints  int
	depth       int
	aborted     bool
}

// errTxAborted mimics Postgres refusing statements after a failed one.
var errTxAborted = errors.New("current transaction is aborted, commands ignored until end of transaction block")

func newMemoryProcRepo() *memoryProcRepo {
	r := &memoryProcRepo{
		master:      make(map[masterdata.Kind]map[string]bool),
		prs:         make(map[uuid.UUID]PurchaseRequisition),
		pos:         make(map[string]PurchaseOrderHeader),
		docs:        make(map[string]MaterialDocument),
		invoices:    make(map[string]SupplierInvoiceHeader),
		infoRecords: make(map[string]PurchasingInfoRecord),
		rfqs:        make(map[string]RFQ),
		quotes:      make(map[uuid.UUID]RFQQuote),
		clock:       testNow.Add(-24 * time.Hour),
	}
	r.seed(masterdata.KindMaterial, "MAT-1")
	r.seed(masterdata.KindMaterial, "MAT-2")
	r.seed(masterdata.KindPlant, "1000")
	r.seed(masterdata.KindStorageLocation, "1000", "0001")
	r.seed(masterdata.KindPurchasingGroup, "P01")
	r.seed(masterdata.KindDocumentType, "NB")
	r.seed(masterdata.KindDocumentType, "NBPR")
	r.seed(masterdata.KindVendor, "V100")
	r.seed(masterdata.KindVendor, "V200")
	return r
}

func (r *memoryProcRepo) seed(kind masterdata.Kind, key ...string) {
	if r.master[kind] == nil {
		r.master[kind] = make(map[string]bool)
	}
	r.master[kind][strings.Join(key, "/")] = true
}

func (r *memoryProcRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Minute)
	return r.clock
}

// addInfoRecord stores a priced info record for material and returns its number.
func (r *memoryProcRepo) addInfoRecord(number, material, supplier string, netPrice, priceUnit string) string {
	rec := PurchasingInfoRecord{PurchasingInfoRecord: number, Material: material, Supplier: supplier, CreatedAt: r.tick()}
	org := PurchasingOrgInfoRecord{PurchasingInfoRecord: number, PurchasingOrganization: "1000", CreatedAt: r.tick()}
	if netPrice != "" {
		p := decimal.RequireFromString(netPrice)
		org.NetPrice = &p
	}
	if priceUnit != "" {
		u := decimal.RequireFromString(priceUnit)
		org.PriceUnit = &u
	}
	rec.OrgRecords = []PurchasingOrgInfoRecord{org}
	r.infoRecords[number] = rec
	return number
}

func (r *memoryProcRepo) addRequisition(number, item string, status ReleaseStatus, costCenter string) PurchaseRequisition {
	pr := PurchaseRequisition{
		ID:                      uuid.New(),
		PurchaseRequisition:     number,
		PurchaseReqnItem:        item,
		Material:                "MAT-1",
		Plant:                   "1000",
		StorageLocation:         "0001",
		PurchasingGroup:         "P01",
		PurchaseRequisitionType: "NBPR",
		Quantity:                decimal.NewFromInt(1),
		DeliveryDate:            testNow,
		ReleaseStatus:           status,
		AccountAssignments:      []AccountAssignment{{CostCenter: costCenter}},
		CreatedAt:               r.tick(),
	}
	r.prs[pr.ID] = pr
	return pr
}

func (r *memoryProcRepo) addOrder(number, supplier string, date time.Time, category DocumentCategory, items ...PurchaseOrderItem) PurchaseOrderHeader {
	po := PurchaseOrderHeader{
		PurchaseOrder:     number,
		Supplier:          supplier,
		PurchaseOrderType: "NB",
		DocumentDate:      date,
		DocumentCategory:  category,
		Items:             items,
		CreatedAt:         r.tick(),
	}
	prepareItems(&po)
	r.pos[number] = po
	return po
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.aborted = false
	return fn(ctx, r)
}

func (r *memoryProcRepo) Savepoint(ctx context.Context, fn func(Reader) error) error {
	r.savepoints++
	r.depth++
	defer func() { r.depth-- }()
	return fn(r)
}

func (r *memoryProcRepo) Exists(ctx context.Context, kind masterdata.Kind, key ...string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.aborted {
		return false, errTxAborted
	}
	if r.existsErr != nil {
		return false, r.existsErr
	}
	return r.master[kind][strings.Join(key, "/")], nil
}

func (r *memoryProcRepo) FindInfoRecordForMaterial(ctx context.Context, material string) (PurchasingInfoRecord, bool, error) {
	var (
		best  PurchasingInfoRecord
		found bool
	)
	for _, rec := range r.infoRecords {
		if rec.Material == material && (!found || rec.CreatedAt.After(best.CreatedAt)) {
			best, found = rec, true
		}
	}
	return best, found, nil
}

func (r *memoryProcRepo) FindOrgRecord(ctx context.Context, infoRecord string) (PurchasingOrgInfoRecord, bool, error) {
	rec, ok := r.infoRecords[infoRecord]
	if !ok || len(rec.OrgRecords) == 0 {
		return PurchasingOrgInfoRecord{}, false, nil
	}
	best := rec.OrgRecords[0]
	for _, org := range rec.OrgRecords[1:] {
		if org.CreatedAt.After(best.CreatedAt) {
			best = org
		}
	}
	return best, true, nil
}

func (r *memoryProcRepo) RecentNetPrices(ctx context.Context, material, supplier, excludeInfoRecord string, limit int) ([]decimal.Decimal, error) {
	if r.historyErr != nil {
		if r.depth == 0 {
			r.aborted = true
		}
		return nil, r.historyErr
	}
	var orgs []PurchasingOrgInfoRecord
	for _, rec := range r.infoRecords {
		if rec.Material != material || rec.Supplier != supplier || rec.PurchasingInfoRecord == excludeInfoRecord {
			continue
		}
		for _, org := range rec.OrgRecords {
			if org.NetPrice != nil {
				orgs = append(orgs, org)
			}
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].CreatedAt.After(orgs[j].CreatedAt) })
	var out []decimal.Decimal
	for i, org := range orgs {
		if i == limit {
			break
		}
		out = append(out, *org.NetPrice)
	}
	return out, nil
}

func (r *memoryProcRepo) ReleasedRequisitionExists(ctx context.Context, number string) (bool, error) {
	for _, pr := range r.prs {
		if pr.PurchaseRequisition == number && pr.ReleaseStatus == ReleaseStatusReleased {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryProcRepo) PurchaseOrderExists(ctx context.Context, purchaseOrder string) (bool, error) {
	po, ok := r.pos[purchaseOrder]
	return ok && po.DocumentCategory == DocumentCategoryOrder, nil
}

func (r *memoryProcRepo) FindPurchaseOrderItem(ctx context.Context, purchaseOrder, item string) (PurchaseOrderItem, bool, error) {
	po, ok := r.pos[purchaseOrder]
	if !ok || po.DocumentCategory != DocumentCategoryOrder {
		return PurchaseOrderItem{}, false, nil
	}
	it, found := findItem(po.Items, item)
	return it, found, nil
}

func (r *memoryProcRepo) FindPurchaseOrderItemByID(ctx context.Context, id uuid.UUID) (PurchaseOrderItem, bool, error) {
	for _, po := range r.pos {
		if po.DocumentCategory != DocumentCategoryOrder {
			continue
		}
		for _, it := range po.Items {
			if it.ID == id {
				return it, true, nil
			}
		}
	}
	return PurchaseOrderItem{}, false, nil
}

func (r *memoryProcRepo) SupplierOrderItems(ctx context.Context, supplier string, from, to time.Time, excludePO string) ([]PurchaseOrderItem, error) {
	var out []PurchaseOrderItem
	for _, po := range r.pos {
		if po.Supplier != supplier || po.DocumentCategory != DocumentCategoryOrder || po.PurchaseOrder == excludePO {
			continue
		}
		if po.DocumentDate.Before(from) || po.DocumentDate.After(to) {
			continue
		}
		out = append(out, po.Items...)
	}
	return out, nil
}

func (r *memoryProcRepo) ReceivedQuantity(ctx context.Context, purchaseOrder, item, excludeDocument string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, doc := range r.docs {
		if doc.PurchaseOrder == purchaseOrder && doc.PurchaseOrderItem == item && doc.MaterialDocument != excludeDocument {
			total = total.Add(doc.Quantity)
		}
	}
	return total, nil
}

func (r *memoryProcRepo) SupplierInvoiceAmounts(ctx context.Context, supplier, excludeInvoice string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, inv := range r.invoices {
		if inv.Supplier == supplier && inv.SupplierInvoice != excludeInvoice {
			out = append(out, inv.GrossAmount)
		}
	}
	return out, nil
}

func (r *memoryProcRepo) ActiveSuppliers(ctx context.Context, from, to time.Time) ([]string, error) {
	var out []string
	for _, po := range r.pos {
		if po.DocumentCategory == DocumentCategoryOrder && po.Supplier != "" && !po.DocumentDate.Before(from) && !po.DocumentDate.After(to) {
			out = append(out, po.Supplier)
		}
	}
	for _, inv := range r.invoices {
		out = append(out, inv.Supplier)
	}
	return distinct(out), nil
}

func (r *memoryProcRepo) GetRequisition(ctx context.Context, id uuid.UUID) (PurchaseRequisition, bool, error) {
	pr, ok := r.prs[id]
	return pr, ok, nil
}

func (r *memoryProcRepo) ListRequisitions(ctx context.Context, filters ListFilters) ([]PurchaseRequisition, int, error) {
	var out []PurchaseRequisition
	for _, pr := range r.prs {
		if filters.Status == "" || string(pr.ReleaseStatus) == filters.Status {
			out = append(out, pr)
		}
	}
	sortRequisitions(out)
	return window(out, filters), len(out), nil
}

func (r *memoryProcRepo) ListRequisitionsByNumber(ctx context.Context, numbers []string) ([]PurchaseRequisition, error) {
	var out []PurchaseRequisition
	for _, pr := range r.prs {
		if slices.Contains(numbers, pr.PurchaseRequisition) {
			out = append(out, pr)
		}
	}
	sortRequisitions(out)
	return out, nil
}

func (r *memoryProcRepo) InsertRequisition(ctx context.Context, pr PurchaseRequisition) error {
	for _, cur := range r.prs {
		if cur.PurchaseRequisition == pr.PurchaseRequisition && cur.PurchaseReqnItem == pr.PurchaseReqnItem {
			return conflict("Purchase Requisition %s item %s already exists.", pr.PurchaseRequisition, pr.PurchaseReqnItem)
		}
	}
	pr.CreatedAt = r.tick()
	r.prs[pr.ID] = pr
	return nil
}

func (r *memoryProcRepo) UpdateRequisition(ctx context.Context, pr PurchaseRequisition) (bool, error) {
	cur, ok := r.prs[pr.ID]
	if !ok || cur.ReleaseStatus != pr.ReleaseStatus {
		return false, nil
	}
	r.prs[pr.ID] = pr
	return true, nil
}

func (r *memoryProcRepo) UpsertRequisition(ctx context.Context, pr PurchaseRequisition) error {
	for id, cur := range r.prs {
		if cur.PurchaseRequisition == pr.PurchaseRequisition && cur.PurchaseReqnItem == pr.PurchaseReqnItem {
			pr.ID, pr.ReleaseStatus, pr.CreatedAt = cur.ID, cur.ReleaseStatus, cur.CreatedAt
			r.prs[id] = pr
			return nil
		}
	}
	pr.CreatedAt = r.tick()
	r.prs[pr.ID] = pr
	return nil
}

func (r *memoryProcRepo) DeleteRequisition(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := r.prs[id]; !ok {
		return false, nil
	}
	delete(r.prs, id)
	return true, nil
}

func (r *memoryProcRepo) SetReleaseStatus(ctx context.Context, id uuid.UUID, from, to ReleaseStatus) (int64, error) {
	pr, ok := r.prs[id]
	if !ok || pr.ReleaseStatus != from {
		return 0, nil
	}
	pr.ReleaseStatus = to
	r.prs[id] = pr
	return 1, nil
}

func (r *memoryProcRepo) TransitionRequisitions(ctx context.Context, numbers []string, from, to ReleaseStatus) ([]string, error) {
	var moved []string
	for id, pr := range r.prs {
		if slices.Contains(numbers, pr.PurchaseRequisition) && pr.ReleaseStatus == from {
			pr.ReleaseStatus = to
			r.prs[id] = pr
			moved = append(moved, pr.PurchaseRequisition)
		}
	}
	return distinct(moved), nil
}

func (r *memoryProcRepo) GetPurchaseOrder(ctx context.Context, purchaseOrder string) (PurchaseOrderHeader, bool, error) {
	po, ok := r.pos[purchaseOrder]
	po.Items = slices.Clone(po.Items)
	return po, ok, nil
}

func (r *memoryProcRepo) ListPurchaseOrders(ctx context.Context, category DocumentCategory, filters ListFilters) ([]PurchaseOrderHeader, int, error) {
	var out []PurchaseOrderHeader
	for _, po := range r.pos {
		if po.DocumentCategory == category && (filters.Supplier == "" || po.Supplier == filters.Supplier) {
			po.Items = nil
			out = append(out, po)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseOrder < out[j].PurchaseOrder })
	return window(out, filters), len(out), nil
}

func (r *memoryProcRepo) SavePurchaseOrder(ctx context.Context, header PurchaseOrderHeader) error {
	if cur, ok := r.pos[header.PurchaseOrder]; ok {
		header.CreatedAt = cur.CreatedAt
		for i, it := range header.Items {
			if prev, found := findItem(cur.Items, it.PurchaseOrderItem); found {
				header.Items[i].ID = prev.ID
			}
		}
	} else {
		header.CreatedAt = r.tick()
	}
	header.Items = slices.Clone(header.Items)
	r.pos[header.PurchaseOrder] = header
	return nil
}

func (r *memoryProcRepo) LinkedRequisitions(ctx context.Context, purchaseOrder string) ([]string, error) {
	po, ok := r.pos[purchaseOrder]
	if !ok || po.DocumentCategory != DocumentCategoryOrder {
		return nil, nil
	}
	var out []string
	for _, it := range po.Items {
		out = append(out, nonEmpty(it.PurchaseRequisition)...)
	}
	return distinct(out), nil
}

func (r *memoryProcRepo) GetMaterialDocument(ctx context.Context, document string) (MaterialDocument, bool, error) {
	doc, ok := r.docs[document]
	return doc, ok, nil
}

func (r *memoryProcRepo) ListMaterialDocuments(ctx context.Context, filters ListFilters) ([]MaterialDocument, int, error) {
	var out []MaterialDocument
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialDocument < out[j].MaterialDocument })
	return window(out, filters), len(out), nil
}

func (r *memoryProcRepo) SaveMaterialDocument(ctx context.Context, doc MaterialDocument) error {
	r.docs[doc.MaterialDocument] = doc
	return nil
}

func (r *memoryProcRepo) GetSupplierInvoice(ctx context.Context, invoice string) (SupplierInvoiceHeader, bool, error) {
	inv, ok := r.invoices[invoice]
	return inv, ok, nil
}

func (r *memoryProcRepo) ListSupplierInvoices(ctx context.Context, filters ListFilters) ([]SupplierInvoiceHeader, int, error) {
	var out []SupplierInvoiceHeader
	for _, inv := range r.invoices {
		if filters.Supplier == "" || inv.Supplier == filters.Supplier {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierInvoice < out[j].SupplierInvoice })
	return window(out, filters), len(out), nil
}

func (r *memoryProcRepo) SaveSupplierInvoice(ctx context.Context, inv SupplierInvoiceHeader) error {
	r.invoices[inv.SupplierInvoice] = inv
	return nil
}

func (r *memoryProcRepo) GetInfoRecord(ctx context.Context, record string) (PurchasingInfoRecord, bool, error) {
	rec, ok := r.infoRecords[record]
	return rec, ok, nil
}

func (r *memoryProcRepo) ListInfoRecords(ctx context.Context, filters ListFilters) ([]PurchasingInfoRecord, int, error) {
	var out []PurchasingInfoRecord
	for _, rec := range r.infoRecords {
		if filters.Supplier == "" || rec.Supplier == filters.Supplier {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasingInfoRecord < out[j].PurchasingInfoRecord })
	return window(out, filters), len(out), nil
}

func (r *memoryProcRepo) SaveInfoRecord(ctx context.Context, rec PurchasingInfoRecord) error {
	if r.aborted {
		return errTxAborted
	}
	rec.CreatedAt = r.tick()
	for i := range rec.OrgRecords {
		rec.OrgRecords[i].CreatedAt = r.tick()
	}
	r.infoRecords[rec.PurchasingInfoRecord] = rec
	return nil
}

func (r *memoryProcRepo) GetRFQ(ctx context.Context, purchaseOrder string) (RFQ, bool, error) {
	rfq, ok := r.rfqs[purchaseOrder]
	return rfq, ok, nil
}

func (r *memoryProcRepo) InsertRFQ(ctx context.Context, rfq RFQ) error {
	if _, ok := r.rfqs[rfq.PurchaseOrder]; ok {
		return conflict("RFQ '%s' already exists.", rfq.PurchaseOrder)
	}
	rfq.UpdatedAt = r.tick()
	r.rfqs[rfq.PurchaseOrder] = rfq
	return nil
}

func (r *memoryProcRepo) AdvanceRFQ(ctx context.Context, purchaseOrder string, version int64, to RFQStatus) (int64, error) {
	rfq, ok := r.rfqs[purchaseOrder]
	if !ok || rfq.Version != version {
		return 0, nil
	}
	rfq.Status, rfq.Version, rfq.UpdatedAt = to, rfq.Version+1, r.tick()
	r.rfqs[purchaseOrder] = rfq
	return 1, nil
}

func (r *memoryProcRepo) GetQuote(ctx context.Context, id uuid.UUID) (RFQQuote, bool, error) {
	q, ok := r.quotes[id]
	return q, ok, nil
}

func (r *memoryProcRepo) ListQuotes(ctx context.Context, purchaseOrder string) ([]RFQQuote, error) {
	var out []RFQQuote
	for _, q := range r.quotes {
		if q.PurchaseOrder == purchaseOrder {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchaseOrderItem != out[j].PurchaseOrderItem {
			return out[i].PurchaseOrderItem < out[j].PurchaseOrderItem
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryProcRepo) InsertQuote(ctx context.Context, q RFQQuote) error {
	q.CreatedAt = r.tick()
	r.quotes[q.ID] = q
	return nil
}

func (r *memoryProcRepo) RejectQuotes(ctx context.Context, purchaseOrder string) (int64, error) {
	var n int64
	for id, q := range r.quotes {
		if q.PurchaseOrder == purchaseOrder {
			q.Status = QuoteStatusRejected
			r.quotes[id] = q
			n++
		}
	}
	return n, nil
}

func (r *memoryProcRepo) SetQuoteStatus(ctx context.Context, id uuid.UUID, status QuoteStatus) (int64, error) {
	q, ok := r.quotes[id]
	if !ok {
		return 0, nil
	}
	if status == QuoteStatusSelected {
		for _, other := range r.quotes {
			if other.ID != id && other.PurchaseOrder == q.PurchaseOrder && other.Status == QuoteStatusSelected {
				return 0, conflict("Another quote is already selected for this RFQ.")
			}
		}
	}
	q.Status = status
	r.quotes[id] = q
	return 1, nil
}

func sortRequisitions(prs []PurchaseRequisition) {
	sort.Slice(prs, func(i, j int) bool {
		if prs[i].PurchaseRequisition != prs[j].PurchaseRequisition {
			return prs[i].PurchaseRequisition < prs[j].PurchaseRequisition
		}
		return prs[i].PurchaseReqnItem < prs[j].PurchaseReqnItem
	})
}

func window[T any](items []T, filters ListFilters) []T {
	limit, offset := filters.limitOffset()
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

var errStoreDown = errors.New("store unavailable")

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type recordingApprovals struct {
	logs []shared.ApprovalLog
}

func (a *recordingApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingEvents struct {
	events []RequisitionStatusChanged
}

func (e *recordingEvents) PublishRequisitionStatusChanged(ctx context.Context, evt RequisitionStatusChanged) error {
	e.events = append(e.events, evt)
	return nil
}

type recordingMetrics struct {
	rejections  map[string]int
	transitions map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{rejections: map[string]int{}, transitions: map[string]int{}}
}

func (m *recordingMetrics) ValidationRejected(document string) { m.rejections[document]++ }

func (m *recordingMetrics) Transition(entity, action, outcome string) {
	m.transitions[entity+"/"+action+"/"+outcome]++
}

type testHarness struct {
	repo      *memoryProcRepo
	service   *Service
	audit     *recordingAudit
	approvals *recordingApprovals
	events    *recordingEvents
	metrics   *recordingMetrics
}

func newTestValidator() *Validator {
	v := NewValidator(DefaultLimits(), nil)
	v.now = func() time.Time { return testNow }
	return v
}

func newHarness() *testHarness {
	h := &testHarness{
		repo:      newMemoryProcRepo(),
		audit:     &recordingAudit{},
		approvals: &recordingApprovals{},
		events:    &recordingEvents{},
		metrics:   newRecordingMetrics(),
	}
	h.service = NewService(h.repo, newTestValidator(), ServiceConfig{
		Approvals: h.approvals,
		Audit:     h.audit,
		Events:    h.events,
		Metrics:   h.metrics,
	})
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
