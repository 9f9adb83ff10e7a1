package procurement

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// ValidateSupplierInvoice checks an invoice header, reconciles its items
// against PO prices and enforces the supplier credit ceiling.
func (v *Validator) ValidateSupplierInvoice(ctx context.Context, r Reader, inv SupplierInvoiceHeader) error {
	errs := &violations{document: "supplier_invoice"}
	tolerance := v.limits.AmountTolerance

	if inv.Supplier == "" {
		errs.add("supplier", "Supplier must be provided.")
	} else if ok, err := r.Exists(ctx, masterdata.KindVendor, inv.Supplier); err != nil {
		return err
	} else if !ok {
		errs.add("supplier", "Supplier '%s' does not exist in Vendor Master", inv.Supplier)
	}

	grossOK := inv.GrossAmount.IsPositive()
	if !grossOK {
		errs.add("gross_amount", "Gross Amount must be a positive decimal. Provided: %s", inv.GrossAmount.String())
	}

	if inv.DocumentDate.IsZero() {
		errs.add("document_date", "Document Date must be provided.")
	} else if inv.DocumentDate.After(endOfDay(v.now())) {
		errs.add("document_date", "Document Date must be current or past date. Provided: %s", inv.DocumentDate.Format("2006-01-02"))
	}

	itemsTotal := decimal.Zero
	for i, it := range inv.Items {
		if it.PurchaseOrder != "" {
			ok, err := r.PurchaseOrderExists(ctx, it.PurchaseOrder)
			if err != nil {
				return err
			}
			if !ok {
				errs.add(item("items", i, "purchase_order"), "Purchase Order '%s' does not exist", it.PurchaseOrder)
			}
		}

		var poItem PurchaseOrderItem
		haveItem := false
		if it.PurchaseOrder != "" && it.PurchaseOrderItem != "" {
			found, ok, err := r.FindPurchaseOrderItem(ctx, it.PurchaseOrder, it.PurchaseOrderItem)
			if err != nil {
				return err
			}
			if !ok {
				errs.add(item("items", i, "purchase_order_item"), "Purchase Order Item '%s' does not exist for Purchase Order '%s'", it.PurchaseOrderItem, it.PurchaseOrder)
			}
			poItem, haveItem = found, ok
		}

		if it.Material != "" {
			ok, err := r.Exists(ctx, masterdata.KindMaterial, it.Material)
			if err != nil {
				return err
			}
			if !ok {
				errs.add(item("items", i, "material"), "Material '%s' does not exist in Material Master", it.Material)
			}
		}

		if it.Amount != nil {
			amount := *it.Amount
			if !amount.IsPositive() {
				errs.add(item("items", i, "amount"), "Item Amount must be a positive decimal. Provided: %s", amount.String())
			} else {
				itemsTotal = itemsTotal.Add(amount)
				if haveItem && it.Quantity != nil && it.Quantity.IsPositive() {
					expected := poItem.NetPrice.Mul(*it.Quantity)
					if amount.Sub(expected).Abs().GreaterThan(tolerance) {
						errs.add(item("items", i, "amount"), "Invoice item amount %s does not match expected amount %s (NetPrice %s × Quantity %s)",
							amount.String(), expected.StringFixed(2), poItem.NetPrice.String(), it.Quantity.String())
					}
				}
			}
		}

		if it.Quantity != nil && !it.Quantity.IsPositive() {
			errs.add(item("items", i, "quantity"), "Quantity must be a positive decimal. Provided: %s", it.Quantity.String())
		}
	}

	if grossOK && itemsTotal.IsPositive() && inv.GrossAmount.Sub(itemsTotal).Abs().GreaterThan(tolerance) {
		errs.add("gross_amount", "Gross Amount %s does not match sum of item amounts %s", inv.GrossAmount.String(), itemsTotal.StringFixed(2))
	}

	if inv.Supplier != "" && grossOK {
		outstanding, err := SupplierOutstanding(ctx, r, inv.Supplier, inv.SupplierInvoice)
		if err != nil {
			return err
		}
		if outstanding.Add(inv.GrossAmount).GreaterThan(v.limits.SupplierCreditCeiling) {
			errs.add("gross_amount", "Supplier '%s' has outstanding invoices of %s. Adding this invoice (%s) would exceed credit limit of %s",
				inv.Supplier, outstanding.StringFixed(2), inv.GrossAmount.StringFixed(2), grouped(v.limits.SupplierCreditCeiling))
		}
	}

	return v.finish(errs, inv.SupplierInvoice)
}
