package procurement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// RFQDocument is an RFQ header with its lifecycle row and quotes.
type RFQDocument struct {
	Header PurchaseOrderHeader `json:"header"`
	Status RFQ                 `json:"status"`
	Quotes []RFQQuote          `json:"quotes"`
}

// ConvertToPRInput carries the PR fields an RFQ does not know.
type ConvertToPRInput struct {
	PurchasingGroup         string
	PurchaseRequisitionType string
	DeliveryDate            time.Time
	CostCenter              string
}

// ConvertToPOInput overrides the derived PO header.
type ConvertToPOInput struct {
	PurchaseOrder     string
	PurchaseOrderType string
	DocumentDate      time.Time
}

// ConversionResult reports what an RFQ conversion produced.
type ConversionResult struct {
	RFQ           RFQ                   `json:"rfq"`
	Requisitions  []PurchaseRequisition `json:"requisitions,omitempty"`
	PurchaseOrder *PurchaseOrderHeader  `json:"purchase_order,omitempty"`
	Message       string                `json:"message"`
}

// QuoteLine is one quote in a comparison.
type QuoteLine struct {
	Quote       RFQQuote         `json:"quote"`
	Total       decimal.Decimal  `json:"total"`
	Rank        int              `json:"rank"`
	Lowest      bool             `json:"lowest"`
	InfoPrice   *decimal.Decimal `json:"info_price,omitempty"`
	Variance    *decimal.Decimal `json:"variance,omitempty"`
	VariancePct *decimal.Decimal `json:"variance_pct,omitempty"`
}

// QuoteComparison ranks the quotes of an RFQ per item by line total.
type QuoteComparison struct {
	RFQ    string      `json:"rfq"`
	Status RFQStatus   `json:"status"`
	Lines  []QuoteLine `json:"lines"`
}

// BudgetCheck compares the quoted total of an RFQ with a budget.
type BudgetCheck struct {
	RFQ      string          `json:"rfq"`
	Basis    string          `json:"basis"`
	Quoted   decimal.Decimal `json:"quoted"`
	Budget   decimal.Decimal `json:"budget"`
	Within   bool            `json:"within"`
	Currency string          `json:"currency"`
	Message  string          `json:"message"`
}

// CreateRFQ validates and stores an RFQ header in DRAFT.
func (s *Service) CreateRFQ(ctx context.Context, rfq PurchaseOrderHeader) (RFQDocument, error) {
	if rfq.PurchaseOrder == "" {
		rfq.PurchaseOrder = generateNumber("RFQ")
	}
	if rfq.DocumentDate.IsZero() {
		rfq.DocumentDate = startOfDay(s.validator.now())
	}
	rfq.DocumentCategory = DocumentCategoryRFQ
	prepareItems(&rfq)
	doc := RFQDocument{Header: rfq}
	err := s.within(ctx, "rfq", func(ctx context.Context, tx TxRepository) error {
		_, found, err := tx.GetPurchaseOrder(ctx, rfq.PurchaseOrder)
		if err != nil {
			return err
		}
		if found {
			return conflict("RFQ '%s' already exists.", rfq.PurchaseOrder)
		}
		if err := s.validator.ValidateRFQ(ctx, tx, rfq); err != nil {
			return err
		}
		if err := tx.SavePurchaseOrder(ctx, rfq); err != nil {
			return err
		}
		doc.Status = RFQ{PurchaseOrder: rfq.PurchaseOrder, Status: RFQStatusDraft, Version: 1}
		return tx.InsertRFQ(ctx, doc.Status)
	})
	if err != nil {
		return RFQDocument{}, err
	}
	s.recordAudit(ctx, "RFQ_CREATE", "rfq", rfq.PurchaseOrder, map[string]any{"items": len(rfq.Items)})
	return doc, nil
}

// GetRFQ loads an RFQ with its status row and quotes.
func (s *Service) GetRFQ(ctx context.Context, number string) (RFQDocument, error) {
	var doc RFQDocument
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = loadRFQ(ctx, tx, number)
		return err
	})
	return doc, err
}

// SubmitQuote records a supplier's offer for one RFQ item.
func (s *Service) SubmitQuote(ctx context.Context, number string, quote RFQQuote) (RFQQuote, error) {
	err := s.within(ctx, "rfq_quote", func(ctx context.Context, tx TxRepository) error {
		doc, err := loadRFQ(ctx, tx, number)
		if err != nil {
			return err
		}
		if !slices.Contains([]RFQStatus{RFQStatusSent, RFQStatusEvaluated}, doc.Status.Status) {
			return invalidTransition(string(doc.Status.Status), "quote", "RFQ %s does not accept quotes. Current status: %s", number, doc.Status.Status)
		}
		errs := &violations{document: "rfq_quote"}
		rfqItem, found := findItem(doc.Header.Items, quote.PurchaseOrderItem)
		if !found {
			errs.add("purchase_order_item", "RFQ Item '%s' does not exist for RFQ '%s'", quote.PurchaseOrderItem, number)
		}
		if quote.Supplier == "" {
			errs.add("supplier", "Supplier must be provided.")
		} else if ok, err := tx.Exists(ctx, masterdata.KindVendor, quote.Supplier); err != nil {
			return err
		} else if !ok {
			errs.add("supplier", "Supplier '%s' does not exist.", quote.Supplier)
		}
		if quote.Quantity.IsZero() && found {
			quote.Quantity = rfqItem.Quantity
		}
		if !quote.Quantity.IsPositive() {
			errs.add("quantity", "Quantity must be a positive number.")
		}
		if !quote.NetPrice.IsPositive() {
			errs.add("net_price", "NetPrice must be a positive number.")
		}
		if err := s.validator.finish(errs, number); err != nil {
			return err
		}
		quote.ID = uuid.New()
		quote.PurchaseOrder = number
		quote.Material = rfqItem.Material
		quote.Status = QuoteStatusOffered
		return tx.InsertQuote(ctx, quote)
	})
	if err != nil {
		return RFQQuote{}, err
	}
	return quote, nil
}

// SendRFQ moves a DRAFT RFQ with at least one item to SENT.
func (s *Service) SendRFQ(ctx context.Context, number string) (RFQ, error) {
	out, err := s.advanceRFQ(ctx, number, "sent", []RFQStatus{RFQStatusDraft}, RFQStatusSent, func(doc RFQDocument) error {
		if len(doc.Header.Items) == 0 {
			return rejected("RFQ %s has no items to send.", number)
		}
		return nil
	})
	s.countTransition("rfq", "send", err)
	return out, err
}

// CloseRFQ moves a SENT or EVALUATED RFQ to CLOSED.
func (s *Service) CloseRFQ(ctx context.Context, number string) (RFQ, error) {
	out, err := s.advanceRFQ(ctx, number, "closed", []RFQStatus{RFQStatusSent, RFQStatusEvaluated}, RFQStatusClosed, nil)
	s.countTransition("rfq", "close", err)
	return out, err
}

func (s *Service) advanceRFQ(ctx context.Context, number, verb string, allowed []RFQStatus, to RFQStatus, check func(RFQDocument) error) (RFQ, error) {
	var out RFQ
	err := s.within(ctx, "rfq", func(ctx context.Context, tx TxRepository) error {
		doc, err := loadRFQ(ctx, tx, number)
		if err != nil {
			return err
		}
		if !slices.Contains(allowed, doc.Status.Status) {
			return invalidTransition(string(doc.Status.Status), verb, "RFQ %s cannot be %s. Current status: %s", number, verb, doc.Status.Status)
		}
		if check != nil {
			if err := check(doc); err != nil {
				return err
			}
		}
		out, err = moveRFQ(ctx, tx, doc.Status, to)
		return err
	})
	if err != nil {
		return RFQ{}, err
	}
	s.recordAudit(ctx, "RFQ_"+string(to), "rfq", number, nil)
	return out, nil
}

// SelectQuote makes quoteID the single SELECTED quote of its RFQ and moves
// the RFQ to EVALUATED. The write is guarded by the RFQ version; a
// concurrent selection fails with ErrConflict.
func (s *Service) SelectQuote(ctx context.Context, quoteID uuid.UUID) (RFQQuote, error) {
	var selected RFQQuote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, found, err := tx.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if !found {
			return notFound("Quote '%s' not found.", quoteID)
		}
		rfq, found, err := tx.GetRFQ(ctx, quote.PurchaseOrder)
		if err != nil {
			return err
		}
		if !found {
			return notFound("RFQ '%s' not found.", quote.PurchaseOrder)
		}
		if !slices.Contains([]RFQStatus{RFQStatusSent, RFQStatusEvaluated}, rfq.Status) {
			return invalidTransition(string(rfq.Status), "select", "Quotes of RFQ %s cannot be selected. Current status: %s", rfq.PurchaseOrder, rfq.Status)
		}
		if _, err := moveRFQ(ctx, tx, rfq, RFQStatusEvaluated); err != nil {
			return err
		}
		if _, err := tx.RejectQuotes(ctx, quote.PurchaseOrder); err != nil {
			return err
		}
		n, err := tx.SetQuoteStatus(ctx, quote.ID, QuoteStatusSelected)
		if err != nil {
			return err
		}
		if n == 0 {
			return conflict("Quote '%s' was changed by another request.", quoteID)
		}
		quote.Status = QuoteStatusSelected
		selected = quote
		return nil
	})
	s.countTransition("rfq", "select", err)
	if err != nil {
		return RFQQuote{}, err
	}
	s.recordAudit(ctx, "RFQ_SELECT_QUOTE", "rfq", selected.PurchaseOrder, map[string]any{"quote": selected.ID.String(), "supplier": selected.Supplier})
	return selected, nil
}

// ConvertToPR materializes one PR line per selected quote, keyed by
// (RFQ number, RFQ item), then closes the RFQ.
func (s *Service) ConvertToPR(ctx context.Context, number string, in ConvertToPRInput) (ConversionResult, error) {
	var res ConversionResult
	err := s.within(ctx, "purchase_requisition", func(ctx context.Context, tx TxRepository) error {
		doc, err := s.evaluatedRFQ(ctx, tx, number, "converted")
		if err != nil {
			return err
		}
		chosen := selectedQuotes(doc.Quotes)
		if len(chosen) == 0 {
			return invalidTransition(string(doc.Status.Status), "convert", "RFQ %s has no selected quote to convert.", number)
		}
		existing, err := tx.ListRequisitionsByNumber(ctx, []string{number})
		if err != nil {
			return err
		}

		errs := &violations{document: "purchase_requisition"}
		prs := make([]PurchaseRequisition, 0, len(chosen))
		for i, q := range chosen {
			rfqItem, _ := findItem(doc.Header.Items, q.PurchaseOrderItem)
			pr := PurchaseRequisition{
				ID:                      uuid.New(),
				PurchaseRequisition:     number,
				PurchaseReqnItem:        q.PurchaseOrderItem,
				Material:                q.Material,
				Plant:                   rfqItem.Plant,
				StorageLocation:         rfqItem.StorageLocation,
				PurchasingGroup:         in.PurchasingGroup,
				PurchaseRequisitionType: in.PurchaseRequisitionType,
				Quantity:                q.Quantity,
				DeliveryDate:            in.DeliveryDate,
				ReleaseStatus:           ReleaseStatusNotReleased,
				AccountAssignments:      []AccountAssignment{{CostCenter: in.CostCenter}},
			}
			for _, cur := range existing {
				if cur.PurchaseReqnItem == pr.PurchaseReqnItem {
					pr.ID, pr.ReleaseStatus, pr.CreatedAt = cur.ID, cur.ReleaseStatus, cur.CreatedAt
				}
			}
			if err := s.validator.ValidateRequisition(ctx, tx, pr); err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					return err
				}
				for _, fe := range verr.Errors {
					errs.add(item("requisitions", i, fe.Field), "%s", fe.Message)
				}
			}
			prs = append(prs, pr)
		}
		if err := errs.err(); err != nil {
			return err
		}
		for _, pr := range prs {
			if err := tx.UpsertRequisition(ctx, pr); err != nil {
				return err
			}
		}
		closed, err := moveRFQ(ctx, tx, doc.Status, RFQStatusClosed)
		if err != nil {
			return err
		}
		res = ConversionResult{
			RFQ:          closed,
			Requisitions: prs,
			Message:      fmt.Sprintf("RFQ %s converted to %d PR line(s).", number, len(prs)),
		}
		return nil
	})
	s.countTransition("rfq", "convert_to_pr", err)
	if err != nil {
		return ConversionResult{}, err
	}
	s.recordAudit(ctx, "RFQ_CONVERT_PR", "rfq", number, map[string]any{"lines": len(res.Requisitions)})
	return res, nil
}

// ConvertToPO builds a standard PO for the selected supplier from the
// selected quotes, validates it like any PO then closes the RFQ.
func (s *Service) ConvertToPO(ctx context.Context, number string, in ConvertToPOInput) (ConversionResult, error) {
	var res ConversionResult
	err := s.within(ctx, "purchase_order", func(ctx context.Context, tx TxRepository) error {
		doc, err := s.evaluatedRFQ(ctx, tx, number, "converted")
		if err != nil {
			return err
		}
		chosen := selectedQuotes(doc.Quotes)
		if len(chosen) == 0 {
			return invalidTransition(string(doc.Status.Status), "convert", "RFQ %s has no selected quote to convert.", number)
		}

		po := PurchaseOrderHeader{
			PurchaseOrder:     in.PurchaseOrder,
			Supplier:          chosen[0].Supplier,
			PurchaseOrderType: in.PurchaseOrderType,
			DocumentDate:      in.DocumentDate,
			DocumentCategory:  DocumentCategoryOrder,
		}
		if po.PurchaseOrder == "" {
			po.PurchaseOrder = "PO-" + number
		}
		if po.PurchaseOrderType == "" {
			po.PurchaseOrderType = "NB"
		}
		if po.DocumentDate.IsZero() {
			po.DocumentDate = startOfDay(s.validator.now())
		}
		for _, q := range chosen {
			rfqItem, _ := findItem(doc.Header.Items, q.PurchaseOrderItem)
			po.Items = append(po.Items, PurchaseOrderItem{
				PurchaseOrderItem:   q.PurchaseOrderItem,
				Material:            q.Material,
				PurchaseRequisition: rfqItem.PurchaseRequisition,
				Plant:               rfqItem.Plant,
				StorageLocation:     rfqItem.StorageLocation,
				Quantity:            q.Quantity,
				NetPrice:            q.NetPrice,
			})
		}
		prepareItems(&po)

		current, found, err := tx.GetPurchaseOrder(ctx, po.PurchaseOrder)
		if err != nil {
			return err
		}
		if found && current.DocumentCategory != DocumentCategoryOrder {
			return conflict("Purchase Order '%s' already exists as an RFQ.", po.PurchaseOrder)
		}
		if err := s.validator.validateOrder(ctx, tx, po, lineRules{requirePrice: true}); err != nil {
			return err
		}
		if err := tx.SavePurchaseOrder(ctx, po); err != nil {
			return err
		}
		closed, err := moveRFQ(ctx, tx, doc.Status, RFQStatusClosed)
		if err != nil {
			return err
		}
		res = ConversionResult{
			RFQ:           closed,
			PurchaseOrder: &po,
			Message:       fmt.Sprintf("RFQ %s converted to Purchase Order %s.", number, po.PurchaseOrder),
		}
		return nil
	})
	s.countTransition("rfq", "convert_to_po", err)
	if err != nil {
		return ConversionResult{}, err
	}
	s.invalidateSnapshots(ctx)
	s.recordAudit(ctx, "RFQ_CONVERT_PO", "rfq", number, map[string]any{"purchase_order": res.PurchaseOrder.PurchaseOrder})
	return res, nil
}

// CompareQuotes ranks quotes per RFQ item and prices them against the info
// record. Concurrent calls for the same RFQ share one computation, which
// keeps running when the caller that started it gives up.
func (s *Service) CompareQuotes(ctx context.Context, number string) (QuoteComparison, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan("compare:"+number, func() (interface{}, error) {
		return s.compareQuotes(flightCtx, number)
	})
	select {
	case <-ctx.Done():
		return QuoteComparison{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return QuoteComparison{}, res.Err
		}
		return res.Val.(QuoteComparison), nil
	}
}

func (s *Service) compareQuotes(ctx context.Context, number string) (QuoteComparison, error) {
	var out QuoteComparison
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := loadRFQ(ctx, tx, number)
		if err != nil {
			return err
		}
		out = QuoteComparison{RFQ: number, Status: doc.Status.Status, Lines: make([]QuoteLine, 0, len(doc.Quotes))}

		prices := map[string]*decimal.Decimal{}
		for _, q := range doc.Quotes {
			if _, seen := prices[q.Material]; seen {
				continue
			}
			price, err := ResolveUnitPrice(ctx, tx, q.Material)
			switch {
			case err == nil:
				eff := price.Effective()
				prices[q.Material] = &eff
			case errors.As(err, new(*PricingError)):
				prices[q.Material] = nil
			default:
				return err
			}
		}

		for _, q := range doc.Quotes {
			line := QuoteLine{Quote: q, Total: q.Total()}
			if ref := prices[q.Material]; ref != nil {
				variance := q.NetPrice.Sub(*ref)
				line.InfoPrice, line.Variance = ref, &variance
				if ref.IsPositive() {
					pct := variance.Div(*ref).Mul(decimal.NewFromInt(100)).Round(2)
					line.VariancePct = &pct
				}
			}
			out.Lines = append(out.Lines, line)
		}
		rankLines(out.Lines)
		return nil
	})
	return out, err
}

// rankLines orders lines by item then total and ranks them within each item.
func rankLines(lines []QuoteLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Quote.PurchaseOrderItem != lines[j].Quote.PurchaseOrderItem {
			return lines[i].Quote.PurchaseOrderItem < lines[j].Quote.PurchaseOrderItem
		}
		return lines[i].Total.LessThan(lines[j].Total)
	})
	rank := 0
	for i := range lines {
		if i == 0 || lines[i].Quote.PurchaseOrderItem != lines[i-1].Quote.PurchaseOrderItem {
			rank = 0
		}
		rank++
		lines[i].Rank = rank
	}
	for i := range lines {
		lowest := lines[i].Rank == 1
		for j := i - 1; j >= 0 && lines[j].Quote.PurchaseOrderItem == lines[i].Quote.PurchaseOrderItem; j-- {
			if lines[j].Rank == 1 && lines[j].Total.Equal(lines[i].Total) {
				lowest = true
			}
		}
		lines[i].Lowest = lowest
	}
}

// ValidateRFQBudget compares the quoted total against budget. Without a
// budget the CostCenter limits of the PRs referenced by RFQ items are used.
func (s *Service) ValidateRFQBudget(ctx context.Context, number string, budget *decimal.Decimal) (BudgetCheck, error) {
	var out BudgetCheck
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := loadRFQ(ctx, tx, number)
		if err != nil {
			return err
		}
		out = BudgetCheck{RFQ: number, Currency: s.validator.limits.Currency}

		chosen := selectedQuotes(doc.Quotes)
		out.Basis = "selected"
		if len(chosen) == 0 {
			chosen = cheapestPerItem(doc.Quotes)
			out.Basis = "lowest"
		}
		if len(chosen) == 0 {
			return rejected("RFQ %s has no quotes to check against a budget.", number)
		}
		for _, q := range chosen {
			out.Quoted = out.Quoted.Add(q.Total())
		}

		if budget != nil {
			out.Budget = *budget
		} else {
			derived, ok, err := requisitionBudget(ctx, tx, doc.Header.Items)
			if err != nil {
				return err
			}
			if !ok {
				return rejected("Budget must be provided when no RFQ item references a Purchase Requisition with a CostCenter limit.")
			}
			out.Budget = derived
		}
		if !out.Budget.IsPositive() {
			return rejected("Budget must be a positive number. Provided: %s", out.Budget.String())
		}

		out.Within = !out.Quoted.GreaterThan(out.Budget)
		cur := out.Currency
		if out.Within {
			out.Message = fmt.Sprintf("Quoted total %s %s is within budget %s %s.", out.Quoted.StringFixed(2), cur, out.Budget.StringFixed(2), cur)
		} else {
			out.Message = fmt.Sprintf("Quoted total %s %s exceeds budget %s %s by %s %s.",
				out.Quoted.StringFixed(2), cur, out.Budget.StringFixed(2), cur, out.Quoted.Sub(out.Budget).StringFixed(2), cur)
		}
		return nil
	})
	return out, err
}

func requisitionBudget(ctx context.Context, tx TxRepository, items []PurchaseOrderItem) (decimal.Decimal, bool, error) {
	var numbers []string
	for _, it := range items {
		numbers = append(numbers, nonEmpty(it.PurchaseRequisition)...)
	}
	if len(numbers) == 0 {
		return decimal.Zero, false, nil
	}
	rows, err := tx.ListRequisitionsByNumber(ctx, distinct(numbers))
	if err != nil {
		return decimal.Zero, false, err
	}
	total, ok := decimal.Zero, false
	for _, pr := range rows {
		if len(pr.AccountAssignments) == 0 {
			continue
		}
		limit, err := decimal.NewFromString(pr.AccountAssignments[0].CostCenter)
		if err != nil || !limit.IsPositive() {
			continue
		}
		total, ok = total.Add(limit), true
	}
	return total, ok, nil
}

func (s *Service) evaluatedRFQ(ctx context.Context, tx TxRepository, number, verb string) (RFQDocument, error) {
	doc, err := loadRFQ(ctx, tx, number)
	if err != nil {
		return RFQDocument{}, err
	}
	if doc.Status.Status != RFQStatusEvaluated {
		return RFQDocument{}, invalidTransition(string(doc.Status.Status), "convert", "RFQ %s cannot be %s. Current status: %s", number, verb, doc.Status.Status)
	}
	return doc, nil
}

func loadRFQ(ctx context.Context, tx TxRepository, number string) (RFQDocument, error) {
	header, found, err := tx.GetPurchaseOrder(ctx, number)
	if err != nil {
		return RFQDocument{}, err
	}
	if !found || header.DocumentCategory != DocumentCategoryRFQ {
		return RFQDocument{}, notFound("RFQ '%s' not found.", number)
	}
	status, found, err := tx.GetRFQ(ctx, number)
	if err != nil {
		return RFQDocument{}, err
	}
	if !found {
		return RFQDocument{}, notFound("RFQ '%s' not found.", number)
	}
	quotes, err := tx.ListQuotes(ctx, number)
	if err != nil {
		return RFQDocument{}, err
	}
	return RFQDocument{Header: header, Status: status, Quotes: quotes}, nil
}

func moveRFQ(ctx context.Context, tx TxRepository, rfq RFQ, to RFQStatus) (RFQ, error) {
	n, err := tx.AdvanceRFQ(ctx, rfq.PurchaseOrder, rfq.Version, to)
	if err != nil {
		return RFQ{}, err
	}
	if n == 0 {
		return RFQ{}, conflict("RFQ %s was changed by another request.", rfq.PurchaseOrder)
	}
	rfq.Status = to
	rfq.Version++
	return rfq, nil
}

func findItem(items []PurchaseOrderItem, number string) (PurchaseOrderItem, bool) {
	for _, it := range items {
		if it.PurchaseOrderItem == number {
			return it, true
		}
	}
	return PurchaseOrderItem{}, false
}

func selectedQuotes(quotes []RFQQuote) []RFQQuote {
	var out []RFQQuote
	for _, q := range quotes {
		if q.Status == QuoteStatusSelected {
			out = append(out, q)
		}
	}
	return out
}

func cheapestPerItem(quotes []RFQQuote) []RFQQuote {
	best := map[string]RFQQuote{}
	var order []string
	for _, q := range quotes {
		cur, seen := best[q.PurchaseOrderItem]
		if !seen {
			order = append(order, q.PurchaseOrderItem)
		}
		if !seen || q.Total().LessThan(cur.Total()) {
			best[q.PurchaseOrderItem] = q
		}
	}
	out := make([]RFQQuote, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
