package procurement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// ValidateRequisition checks a PR line against master data, dates and its
// cost-center approval limit.
func (v *Validator) ValidateRequisition(ctx context.Context, r Reader, pr PurchaseRequisition) error {
	errs := &violations{document: "purchase_requisition"}

	checks := []struct {
		field string
		kind  masterdata.Kind
		key   []string
		msg   string
		args  []any
	}{
		{"material", masterdata.KindMaterial, []string{pr.Material}, "Material '%s' does not exist.", []any{pr.Material}},
		{"plant", masterdata.KindPlant, []string{pr.Plant}, "Plant '%s' does not exist.", []any{pr.Plant}},
		{"storage_location", masterdata.KindStorageLocation, []string{pr.Plant, pr.StorageLocation}, "Storage Location '%s' does not exist for Plant '%s'.", []any{pr.StorageLocation, pr.Plant}},
		{"purchasing_group", masterdata.KindPurchasingGroup, []string{pr.PurchasingGroup}, "Purchasing Group '%s' does not exist.", []any{pr.PurchasingGroup}},
		{"purchase_requisition_type", masterdata.KindDocumentType, []string{pr.PurchaseRequisitionType}, "Purchase Requisition Type '%s' does not exist.", []any{pr.PurchaseRequisitionType}},
	}
	for _, c := range checks {
		ok, err := r.Exists(ctx, c.kind, c.key...)
		if err != nil {
			return err
		}
		if !ok {
			errs.add(c.field, c.msg, c.args...)
		}
	}

	quantityOK := pr.Quantity.IsPositive()
	if !quantityOK {
		errs.add("quantity", "Quantity must be a positive number.")
	}
	if pr.DeliveryDate.IsZero() || pr.DeliveryDate.Before(v.today()) {
		errs.add("delivery_date", "Delivery Date must be today or a future date.")
	}

	limit, limitOK := decimal.Zero, false
	if len(pr.AccountAssignments) == 0 || pr.AccountAssignments[0].CostCenter == "" {
		errs.add("account_assignments", "Missing AccountAssignments or CostCenter determine LIMIT.")
	} else if parsed, err := decimal.NewFromString(pr.AccountAssignments[0].CostCenter); err != nil || !parsed.IsPositive() {
		errs.add("account_assignments[0].cost_center", "CostCenter (LIMIT) must be a positive number.")
	} else {
		limit, limitOK = parsed, true
	}

	price, err := ResolveUnitPrice(ctx, r, pr.Material)
	var pricingErr *PricingError
	switch {
	case errors.As(err, &pricingErr):
		errs.add("material", "%s", pricingErr.Error())
	case err != nil:
		return err
	case quantityOK && limitOK:
		total := price.Effective().Mul(pr.Quantity)
		if total.GreaterThan(limit) {
			errs.add("quantity", "Total PR value (%s %s) exceeds purchasing limit of %s %s.",
				total.StringFixed(2), v.limits.Currency, limit.String(), v.limits.Currency)
		}
	}

	return v.finish(errs, pr.PurchaseRequisition+"/"+pr.PurchaseReqnItem)
}
