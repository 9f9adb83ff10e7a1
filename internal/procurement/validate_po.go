package procurement

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// ValidatePurchaseOrder checks a standard PO header, its items and the
// supplier's monthly commitment ceiling.
func (v *Validator) ValidatePurchaseOrder(ctx context.Context, r Reader, po PurchaseOrderHeader) error {
	return v.validateOrder(ctx, r, po, lineRules{requireRequisition: true, requirePrice: true})
}

type lineRules struct {
	requireRequisition bool
	requirePrice       bool
}

// validateOrder is shared with RFQ conversion, where a line may carry no
// requisition because the selected quote stands in for it.
func (v *Validator) validateOrder(ctx context.Context, r Reader, po PurchaseOrderHeader, rules lineRules) error {
	errs := &violations{document: "purchase_order"}

	if po.Supplier == "" {
		errs.add("supplier", "Supplier must be provided.")
	} else if ok, err := r.Exists(ctx, masterdata.KindVendor, po.Supplier); err != nil {
		return err
	} else if !ok {
		errs.add("supplier", "Supplier '%s' does not exist.", po.Supplier)
	}

	if po.PurchaseOrderType == "" {
		errs.add("purchase_order_type", "PurchaseOrderType must be provided.")
	} else if ok, err := r.Exists(ctx, masterdata.KindDocumentType, po.PurchaseOrderType); err != nil {
		return err
	} else if !ok {
		errs.add("purchase_order_type", "Purchase Order Type '%s' does not exist.", po.PurchaseOrderType)
	}

	dateOK := false
	switch {
	case po.DocumentDate.IsZero():
		errs.add("document_date", "DocumentDate must be provided.")
	case startOfDay(po.DocumentDate).After(v.today()):
		errs.add("document_date", "DocumentDate must be today or in the past.")
	default:
		dateOK = true
	}

	if len(po.Items) == 0 {
		return v.finish(errs, po.PurchaseOrder)
	}

	current := decimal.Zero
	for i, it := range po.Items {
		if err := v.validateOrderItem(ctx, r, errs, i, it, rules); err != nil {
			return err
		}
		if it.Quantity.IsPositive() && it.NetPrice.IsPositive() {
			current = current.Add(it.Total())
		}
	}

	if po.Supplier != "" && dateOK {
		existing, err := SupplierMonthCommitment(ctx, r, po.Supplier, po.DocumentDate, po.PurchaseOrder)
		if err != nil {
			return err
		}
		if existing.Add(current).GreaterThan(v.limits.SupplierMonthlyCeiling) {
			errs.add("items", "Supplier '%s' has committed %s %s so far this month; adding this PO (%s %s) exceeds the %s %s limit.",
				po.Supplier, existing.StringFixed(2), v.limits.Currency,
				current.StringFixed(2), v.limits.Currency,
				grouped(v.limits.SupplierMonthlyCeiling), v.limits.Currency)
		}
	}

	return v.finish(errs, po.PurchaseOrder)
}

func (v *Validator) validateOrderItem(ctx context.Context, r Reader, errs *violations, i int, it PurchaseOrderItem, rules lineRules) error {
	if it.Material == "" {
		errs.add(item("items", i, "material"), "Each line must include a Material.")
	} else if ok, err := r.Exists(ctx, masterdata.KindMaterial, it.Material); err != nil {
		return err
	} else if !ok {
		errs.add(item("items", i, "material"), "Material '%s' does not exist.", it.Material)
	}

	switch {
	case it.PurchaseRequisition == "" && rules.requireRequisition:
		errs.add(item("items", i, "purchase_requisition"), "Each line must include a PurchaseRequisition.")
	case it.PurchaseRequisition != "":
		ok, err := r.ReleasedRequisitionExists(ctx, it.PurchaseRequisition)
		if err != nil {
			return err
		}
		if !ok {
			errs.add(item("items", i, "purchase_requisition"), "PurchaseRequisition '%s' not found or not released.", it.PurchaseRequisition)
		}
	}

	if it.Plant == "" {
		errs.add(item("items", i, "plant"), "Each line must include a Plant.")
	} else if ok, err := r.Exists(ctx, masterdata.KindPlant, it.Plant); err != nil {
		return err
	} else if !ok {
		errs.add(item("items", i, "plant"), "Plant '%s' does not exist.", it.Plant)
	}

	if it.StorageLocation == "" {
		errs.add(item("items", i, "storage_location"), "Each line must include a StorageLocation.")
	} else if ok, err := r.Exists(ctx, masterdata.KindStorageLocation, it.Plant, it.StorageLocation); err != nil {
		return err
	} else if !ok {
		errs.add(item("items", i, "storage_location"), "StorageLocation '%s' does not exist for Plant '%s'.", it.StorageLocation, it.Plant)
	}

	if !it.Quantity.IsPositive() {
		errs.add(item("items", i, "quantity"), "Quantity must be a positive number.")
	}
	if rules.requirePrice && !it.NetPrice.IsPositive() {
		errs.add(item("items", i, "net_price"), "NetPrice must be a positive number.")
	}
	return nil
}

// ValidateRFQ checks an RFQ header and its requested lines. Prices are not
// known until quotes arrive, so only master data and quantities are checked.
func (v *Validator) ValidateRFQ(ctx context.Context, r Reader, rfq PurchaseOrderHeader) error {
	errs := &violations{document: "rfq"}

	if rfq.PurchaseOrderType == "" {
		errs.add("purchase_order_type", "PurchaseOrderType must be provided.")
	} else if ok, err := r.Exists(ctx, masterdata.KindDocumentType, rfq.PurchaseOrderType); err != nil {
		return err
	} else if !ok {
		errs.add("purchase_order_type", "Purchase Order Type '%s' does not exist.", rfq.PurchaseOrderType)
	}
	if rfq.Supplier != "" {
		ok, err := r.Exists(ctx, masterdata.KindVendor, rfq.Supplier)
		if err != nil {
			return err
		}
		if !ok {
			errs.add("supplier", "Supplier '%s' does not exist.", rfq.Supplier)
		}
	}
	if !rfq.DocumentDate.IsZero() && startOfDay(rfq.DocumentDate).After(v.today()) {
		errs.add("document_date", "DocumentDate must be today or in the past.")
	}

	for i, it := range rfq.Items {
		if err := v.validateOrderItem(ctx, r, errs, i, it, lineRules{}); err != nil {
			return err
		}
	}
	return v.finish(errs, rfq.PurchaseOrder)
}
