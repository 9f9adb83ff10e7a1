package procurement

import (
	"context"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

// ValidateMaterialDocument checks a goods movement against master data and
// the referenced PO item. Optional references are only checked when given.
func (v *Validator) ValidateMaterialDocument(ctx context.Context, r Reader, doc MaterialDocument) error {
	errs := &violations{document: "material_document"}

	if doc.Material != "" {
		ok, err := r.Exists(ctx, masterdata.KindMaterial, doc.Material)
		if err != nil {
			return err
		}
		if !ok {
			errs.add("material", "Material '%s' does not exist in Material Master", doc.Material)
		}
	}
	if doc.Plant != "" {
		ok, err := r.Exists(ctx, masterdata.KindPlant, doc.Plant)
		if err != nil {
			return err
		}
		if !ok {
			errs.add("plant", "Plant '%s' does not exist in Plant Master", doc.Plant)
		}
	}
	if doc.Plant != "" && doc.StorageLocation != "" {
		ok, err := r.Exists(ctx, masterdata.KindStorageLocation, doc.Plant, doc.StorageLocation)
		if err != nil {
			return err
		}
		if !ok {
			errs.add("storage_location", "Storage Location '%s' does not exist for Plant '%s'", doc.StorageLocation, doc.Plant)
		}
	}
	if doc.PurchaseOrder != "" {
		ok, err := r.PurchaseOrderExists(ctx, doc.PurchaseOrder)
		if err != nil {
			return err
		}
		if !ok {
			errs.add("purchase_order", "Purchase Order '%s' does not exist", doc.PurchaseOrder)
		}
	}

	var poItem PurchaseOrderItem
	haveItem := false
	if doc.PurchaseOrder != "" && doc.PurchaseOrderItem != "" {
		found, ok, err := r.FindPurchaseOrderItem(ctx, doc.PurchaseOrder, doc.PurchaseOrderItem)
		if err != nil {
			return err
		}
		if !ok {
			errs.add("purchase_order_item", "Purchase Order Item '%s' does not exist for Purchase Order '%s'", doc.PurchaseOrderItem, doc.PurchaseOrder)
		}
		poItem, haveItem = found, ok
	}

	if haveItem {
		if doc.Material != "" && poItem.Material != doc.Material {
			errs.add("material", "Material '%s' does not match the material '%s' in Purchase Order Item", doc.Material, poItem.Material)
		}
		if doc.Plant != "" && poItem.Plant != doc.Plant {
			errs.add("plant", "Plant '%s' does not match the plant '%s' in Purchase Order Item", doc.Plant, poItem.Plant)
		}
		if doc.StorageLocation != "" && poItem.StorageLocation != doc.StorageLocation {
			errs.add("storage_location", "Storage Location '%s' does not match the storage location '%s' in Purchase Order Item", doc.StorageLocation, poItem.StorageLocation)
		}
	}

	if !doc.Quantity.IsPositive() {
		errs.add("quantity", "Quantity must be a positive value. Provided: %s", doc.Quantity.String())
	} else if haveItem {
		received, err := r.ReceivedQuantity(ctx, doc.PurchaseOrder, doc.PurchaseOrderItem, doc.MaterialDocument)
		if err != nil {
			return err
		}
		remaining := poItem.Quantity.Sub(received)
		if doc.Quantity.GreaterThan(remaining) {
			errs.add("quantity", "Quantity %s exceeds the available quantity %s in Purchase Order Item '%s'",
				doc.Quantity.String(), remaining.String(), doc.PurchaseOrderItem)
		}
	}

	return v.finish(errs, doc.MaterialDocument)
}
