package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func violationMessages(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	require.ErrorIs(t, err, ErrValidation)
	out := make(map[string]string, len(verr.Errors))
	for _, fe := range verr.Errors {
		if prev, ok := out[fe.Field]; ok {
			out[fe.Field] = prev + " | " + fe.Message
			continue
		}
		out[fe.Field] = fe.Message
	}
	return out
}

func validRequisition() PurchaseRequisition {
	return PurchaseRequisition{
		PurchaseRequisition:     "PR-1",
		PurchaseReqnItem:        "10",
		Material:                "MAT-1",
		Plant:                   "1000",
		StorageLocation:         "0001",
		PurchasingGroup:         "P01",
		PurchaseRequisitionType: "NBPR",
		Quantity:                dec("5"),
		DeliveryDate:            testNow,
		AccountAssignments:      []AccountAssignment{{CostCenter: "100"}},
	}
}

func TestValidateRequisition(t *testing.T) {
	ctx := context.Background()
	v := newTestValidator()

	t.Run("valid", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "10", "1")
		require.NoError(t, v.ValidateRequisition(ctx, repo, validRequisition()))
	})

	t.Run("over cost center limit", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "10", "1")
		pr := validRequisition()
		pr.Quantity = dec("20")
		msgs := violationMessages(t, v.ValidateRequisition(ctx, repo, pr))
		require.Equal(t, "Total PR value (200.00 AUD) exceeds purchasing limit of 100 AUD.", msgs["quantity"])
	})

	t.Run("total equal to limit passes", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "10", "1")
		pr := validRequisition()
		pr.Quantity = dec("10")
		require.NoError(t, v.ValidateRequisition(ctx, repo, pr))
	})

	t.Run("total above a larger limit", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "100", "1")
		pr := validRequisition()
		pr.Quantity = dec("10")
		pr.AccountAssignments = []AccountAssignment{{CostCenter: "900"}}
		msgs := violationMessages(t, v.ValidateRequisition(ctx, repo, pr))
		require.Equal(t, "Total PR value (1000.00 AUD) exceeds purchasing limit of 900 AUD.", msgs["quantity"])
	})

	t.Run("missing info record", func(t *testing.T) {
		msgs := violationMessages(t, v.ValidateRequisition(ctx, newMemoryProcRepo(), validRequisition()))
		require.Equal(t, "Missing purchasingInfoRecord to determine NetPrice.", msgs["material"])
	})

	t.Run("collects every violation", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "10", "1")
		pr := validRequisition()
		pr.Plant = "9999"
		pr.PurchasingGroup = "PX"
		pr.Quantity = dec("0")
		pr.DeliveryDate = testNow.AddDate(0, 0, -1)
		pr.AccountAssignments = nil
		msgs := violationMessages(t, v.ValidateRequisition(ctx, repo, pr))
		require.Equal(t, "Plant '9999' does not exist.", msgs["plant"])
		require.Equal(t, "Storage Location '0001' does not exist for Plant '9999'.", msgs["storage_location"])
		require.Equal(t, "Purchasing Group 'PX' does not exist.", msgs["purchasing_group"])
		require.Equal(t, "Quantity must be a positive number.", msgs["quantity"])
		require.Equal(t, "Delivery Date must be today or a future date.", msgs["delivery_date"])
		require.Equal(t, "Missing AccountAssignments or CostCenter determine LIMIT.", msgs["account_assignments"])
	})

	t.Run("non numeric cost center", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "10", "1")
		pr := validRequisition()
		pr.AccountAssignments = []AccountAssignment{{CostCenter: "CC-100"}}
		msgs := violationMessages(t, v.ValidateRequisition(ctx, repo, pr))
		require.Equal(t, "CostCenter (LIMIT) must be a positive number.", msgs["account_assignments[0].cost_center"])
	})

	t.Run("store failure aborts", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.existsErr = errStoreDown
		err := v.ValidateRequisition(ctx, repo, validRequisition())
		require.ErrorIs(t, err, errStoreDown)
		require.NotErrorIs(t, err, ErrValidation)
	})
}

func validOrder() PurchaseOrderHeader {
	return PurchaseOrderHeader{
		PurchaseOrder:     "4500",
		Supplier:          "V100",
		PurchaseOrderType: "NB",
		DocumentDate:      testNow,
		Items: []PurchaseOrderItem{{
			PurchaseOrderItem:   "10",
			Material:            "MAT-1",
			PurchaseRequisition: "PR-1",
			Plant:               "1000",
			StorageLocation:     "0001",
			Quantity:            dec("10"),
			NetPrice:            dec("5"),
		}},
	}
}

func TestValidatePurchaseOrder(t *testing.T) {
	ctx := context.Background()
	v := newTestValidator()
	monthStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	newRepo := func() *memoryProcRepo {
		repo := newMemoryProcRepo()
		repo.addRequisition("PR-1", "10", ReleaseStatusReleased, "1000")
		return repo
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, v.ValidatePurchaseOrder(ctx, newRepo(), validOrder()))
	})

	t.Run("requisition must be released", func(t *testing.T) {
		repo := newMemoryProcRepo()
		repo.addRequisition("PR-1", "10", ReleaseStatusNotReleased, "1000")
		msgs := violationMessages(t, v.ValidatePurchaseOrder(ctx, repo, validOrder()))
		require.Equal(t, "PurchaseRequisition 'PR-1' not found or not released.", msgs["items[0].purchase_requisition"])
	})

	t.Run("line fields", func(t *testing.T) {
		po := validOrder()
		po.Items[0] = PurchaseOrderItem{Quantity: dec("0"), NetPrice: dec("-1")}
		msgs := violationMessages(t, v.ValidatePurchaseOrder(ctx, newRepo(), po))
		require.Equal(t, "Each line must include a Material.", msgs["items[0].material"])
		require.Equal(t, "Each line must include a PurchaseRequisition.", msgs["items[0].purchase_requisition"])
		require.Equal(t, "Each line must include a Plant.", msgs["items[0].plant"])
		require.Equal(t, "Each line must include a StorageLocation.", msgs["items[0].storage_location"])
		require.Equal(t, "Quantity must be a positive number.", msgs["items[0].quantity"])
		require.Equal(t, "NetPrice must be a positive number.", msgs["items[0].net_price"])
	})

	t.Run("header fields", func(t *testing.T) {
		po := validOrder()
		po.Supplier = "V999"
		po.PurchaseOrderType = ""
		po.DocumentDate = testNow.AddDate(0, 0, 1)
		msgs := violationMessages(t, v.ValidatePurchaseOrder(ctx, newRepo(), po))
		require.Equal(t, "Supplier 'V999' does not exist.", msgs["supplier"])
		require.Equal(t, "PurchaseOrderType must be provided.", msgs["purchase_order_type"])
		require.Equal(t, "DocumentDate must be today or in the past.", msgs["document_date"])
	})

	t.Run("monthly ceiling", func(t *testing.T) {
		repo := newRepo()
		repo.addOrder("4400", "V100", monthStart, DocumentCategoryOrder, PurchaseOrderItem{Material: "MAT-1", Quantity: dec("1000"), NetPrice: dec("1000")})
		msgs := violationMessages(t, v.ValidatePurchaseOrder(ctx, repo, validOrder()))
		require.Equal(t, "Supplier 'V100' has committed 1000000.00 AUD so far this month; adding this PO (50.00 AUD) exceeds the 1,000,000 AUD limit.", msgs["items"])
	})

	t.Run("reaching the ceiling exactly passes", func(t *testing.T) {
		repo := newRepo()
		repo.addOrder("4400", "V100", monthStart, DocumentCategoryOrder, PurchaseOrderItem{Material: "MAT-1", Quantity: dec("999950"), NetPrice: dec("1")})
		require.NoError(t, v.ValidatePurchaseOrder(ctx, repo, validOrder()))
	})

	t.Run("large order over the remaining headroom", func(t *testing.T) {
		repo := newRepo()
		repo.addOrder("4400", "V100", monthStart, DocumentCategoryOrder, PurchaseOrderItem{Material: "MAT-1", Quantity: dec("900"), NetPrice: dec("1000")})
		po := validOrder()
		po.Items[0].Quantity = dec("5")
		po.Items[0].NetPrice = dec("200000")
		msgs := violationMessages(t, v.ValidatePurchaseOrder(ctx, repo, po))
		require.Equal(t, "Supplier 'V100' has committed 900000.00 AUD so far this month; adding this PO (1000000.00 AUD) exceeds the 1,000,000 AUD limit.", msgs["items"])
	})

	t.Run("ceiling ignores the order itself, RFQs and other months", func(t *testing.T) {
		repo := newRepo()
		big := PurchaseOrderItem{Material: "MAT-1", Quantity: dec("1000"), NetPrice: dec("1000")}
		repo.addOrder("4500", "V100", monthStart, DocumentCategoryOrder, big)
		repo.addOrder("RFQ-1", "V100", monthStart, DocumentCategoryRFQ, big)
		repo.addOrder("4300", "V100", monthStart.AddDate(0, -1, 0), DocumentCategoryOrder, big)
		require.NoError(t, v.ValidatePurchaseOrder(ctx, repo, validOrder()))
	})
}

func TestValidateRFQ(t *testing.T) {
	ctx := context.Background()
	v := newTestValidator()
	rfq := validOrder()
	rfq.Supplier = ""
	rfq.Items[0].PurchaseRequisition = ""
	rfq.Items[0].NetPrice = dec("0")
	require.NoError(t, v.ValidateRFQ(ctx, newMemoryProcRepo(), rfq))

	rfq.Items[0].Quantity = dec("0")
	rfq.Supplier = "V999"
	msgs := violationMessages(t, v.ValidateRFQ(ctx, newMemoryProcRepo(), rfq))
	require.Equal(t, "Supplier 'V999' does not exist.", msgs["supplier"])
	require.Equal(t, "Quantity must be a positive number.", msgs["items[0].quantity"])
	require.NotContains(t, msgs, "items[0].net_price")
}

func receiptRepo() *memoryProcRepo {
	repo := newMemoryProcRepo()
	repo.addOrder("4500", "V100", testNow, DocumentCategoryOrder, PurchaseOrderItem{
		PurchaseOrderItem: "10",
		Material:          "MAT-1",
		Plant:             "1000",
		StorageLocation:   "0001",
		Quantity:          dec("10"),
		NetPrice:          dec("5"),
	})
	repo.docs["MD-1"] = MaterialDocument{MaterialDocument: "MD-1", PurchaseOrder: "4500", PurchaseOrderItem: "10", Quantity: dec("6")}
	return repo
}

func TestValidateMaterialDocument(t *testing.T) {
	ctx := context.Background()
	v := newTestValidator()
	doc := MaterialDocument{
		MaterialDocument:  "MD-2",
		Material:          "MAT-1",
		Plant:             "1000",
		StorageLocation:   "0001",
		PurchaseOrder:     "4500",
		PurchaseOrderItem: "10",
		Quantity:          dec("4"),
	}

	t.Run("within remaining quantity", func(t *testing.T) {
		require.NoError(t, v.ValidateMaterialDocument(ctx, receiptRepo(), doc))
	})

	t.Run("exceeds remaining quantity", func(t *testing.T) {
		over := doc
		over.Quantity = dec("5")
		msgs := violationMessages(t, v.ValidateMaterialDocument(ctx, receiptRepo(), over))
		require.Equal(t, "Quantity 5 exceeds the available quantity 4 in Purchase Order Item '10'", msgs["quantity"])
	})

	t.Run("update excludes its own quantity", func(t *testing.T) {
		update := doc
		update.MaterialDocument = "MD-1"
		update.Quantity = dec("10")
		require.NoError(t, v.ValidateMaterialDocument(ctx, receiptRepo(), update))
	})

	t.Run("mismatch with order item", func(t *testing.T) {
		repo := receiptRepo()
		repo.seed("plant", "2000")
		bad := doc
		bad.Material = "MAT-2"
		bad.Plant = "2000"
		bad.StorageLocation = ""
		msgs := violationMessages(t, v.ValidateMaterialDocument(ctx, repo, bad))
		require.Equal(t, "Material 'MAT-2' does not match the material 'MAT-1' in Purchase Order Item", msgs["material"])
		require.Equal(t, "Plant '2000' does not match the plant '1000' in Purchase Order Item", msgs["plant"])
		require.NotContains(t, msgs, "storage_location")
	})

	t.Run("unknown order", func(t *testing.T) {
		bad := doc
		bad.PurchaseOrder = "9999"
		bad.Quantity = dec("0")
		msgs := violationMessages(t, v.ValidateMaterialDocument(ctx, receiptRepo(), bad))
		require.Equal(t, "Purchase Order '9999' does not exist", msgs["purchase_order"])
		require.Equal(t, "Purchase Order Item '10' does not exist for Purchase Order '9999'", msgs["purchase_order_item"])
		require.Equal(t, "Quantity must be a positive value. Provided: 0", msgs["quantity"])
	})

	t.Run("only quantity is mandatory", func(t *testing.T) {
		require.NoError(t, v.ValidateMaterialDocument(ctx, receiptRepo(), MaterialDocument{Quantity: dec("1")}))
	})
}

func TestValidateSupplierInvoice(t *testing.T) {
	ctx := context.Background()
	v := newTestValidator()
	invoice := func() SupplierInvoiceHeader {
		return SupplierInvoiceHeader{
			SupplierInvoice: "INV-1",
			Supplier:        "V100",
			DocumentDate:    testNow,
			GrossAmount:     dec("10"),
			Items: []SupplierInvoiceItem{{
				PurchaseOrder:     "4500",
				PurchaseOrderItem: "10",
				Material:          "MAT-1",
				Quantity:          decPtr("2"),
				Amount:            decPtr("10"),
			}},
		}
	}

	t.Run("reconciles", func(t *testing.T) {
		require.NoError(t, v.ValidateSupplierInvoice(ctx, receiptRepo(), invoice()))
	})

	t.Run("within tolerance", func(t *testing.T) {
		inv := invoice()
		inv.Items[0].Amount = decPtr("10.01")
		inv.GrossAmount = dec("10.01")
		require.NoError(t, v.ValidateSupplierInvoice(ctx, receiptRepo(), inv))
	})

	t.Run("gross one cent off the items passes", func(t *testing.T) {
		inv := invoice()
		inv.GrossAmount = dec("10.01")
		require.NoError(t, v.ValidateSupplierInvoice(ctx, receiptRepo(), inv))

		inv.GrossAmount = dec("9.99")
		require.NoError(t, v.ValidateSupplierInvoice(ctx, receiptRepo(), inv))
	})

	t.Run("amount mismatch", func(t *testing.T) {
		inv := invoice()
		inv.Items[0].Amount = decPtr("10.02")
		msgs := violationMessages(t, v.ValidateSupplierInvoice(ctx, receiptRepo(), inv))
		require.Equal(t, "Invoice item amount 10.02 does not match expected amount 10.00 (NetPrice 5 × Quantity 2)", msgs["items[0].amount"])
		require.Equal(t, "Gross Amount 10 does not match sum of item amounts 10.02", msgs["gross_amount"])
	})

	t.Run("header fields", func(t *testing.T) {
		inv := SupplierInvoiceHeader{Supplier: "V999", GrossAmount: dec("0"), DocumentDate: testNow.Add(48 * time.Hour)}
		msgs := violationMessages(t, v.ValidateSupplierInvoice(ctx, receiptRepo(), inv))
		require.Equal(t, "Supplier 'V999' does not exist in Vendor Master", msgs["supplier"])
		require.Equal(t, "Gross Amount must be a positive decimal. Provided: 0", msgs["gross_amount"])
		require.Equal(t, "Document Date must be current or past date. Provided: 2026-03-17", msgs["document_date"])
	})

	t.Run("credit ceiling", func(t *testing.T) {
		repo := receiptRepo()
		repo.invoices["INV-0"] = SupplierInvoiceHeader{SupplierInvoice: "INV-0", Supplier: "V100", GrossAmount: dec("1999995")}
		msgs := violationMessages(t, v.ValidateSupplierInvoice(ctx, repo, invoice()))
		require.Equal(t, "Supplier 'V100' has outstanding invoices of 1999995.00. Adding this invoice (10.00) would exceed credit limit of 2,000,000", msgs["gross_amount"])
	})

	t.Run("credit ceiling excludes the invoice itself", func(t *testing.T) {
		repo := receiptRepo()
		repo.invoices["INV-1"] = SupplierInvoiceHeader{SupplierInvoice: "INV-1", Supplier: "V100", GrossAmount: dec("1999995")}
		require.NoError(t, v.ValidateSupplierInvoice(ctx, repo, invoice()))
	})
}

func TestValidateInfoRecord(t *testing.T) {
	ctx := context.Background()
	v := newTestValidator()
	record := func(price string) PurchasingInfoRecord {
		return PurchasingInfoRecord{
			PurchasingInfoRecord: "IR-9",
			Material:             "MAT-1",
			Supplier:             "V100",
			OrgRecords:           []PurchasingOrgInfoRecord{{PurchasingOrganization: "1000", NetPrice: decPtr(price), PriceUnit: decPtr("1")}},
			Conditions:           []PurchasingCondition{{ConditionType: "PB00", Plant: "1000", Amount: dec(price)}},
		}
	}
	historyRepo := func() *memoryProcRepo {
		repo := newMemoryProcRepo()
		repo.addInfoRecord("IR-1", "MAT-1", "V100", "10", "1")
		repo.addInfoRecord("IR-2", "MAT-1", "V100", "12", "1")
		return repo
	}

	t.Run("within history", func(t *testing.T) {
		checks, err := v.ValidateInfoRecord(ctx, historyRepo(), record("15"))
		require.NoError(t, err)
		require.Len(t, checks, 1)
		require.Equal(t, HistoryPassed, checks[0].Outcome)
		require.True(t, checks[0].Average.Equal(dec("11")))
		require.Equal(t, 2, checks[0].Samples)
	})

	t.Run("exceeds history", func(t *testing.T) {
		_, err := v.ValidateInfoRecord(ctx, historyRepo(), record("20"))
		msgs := violationMessages(t, err)
		require.Equal(t, "NetPrice 20 significantly exceeds historical average of AUD 11.00. Please review pricing.", msgs["org_records[0].net_price"])
	})

	t.Run("history excludes the record itself", func(t *testing.T) {
		repo := historyRepo()
		repo.addInfoRecord("IR-9", "MAT-1", "V100", "1", "1")
		checks, err := v.ValidateInfoRecord(ctx, repo, record("15"))
		require.NoError(t, err)
		require.Equal(t, 2, checks[0].Samples)
	})

	t.Run("no history", func(t *testing.T) {
		checks, err := v.ValidateInfoRecord(ctx, newMemoryProcRepo(), record("15"))
		require.NoError(t, err)
		require.Equal(t, HistoryNoHistory, checks[0].Outcome)
	})

	t.Run("history failure is skipped", func(t *testing.T) {
		repo := historyRepo()
		repo.historyErr = errStoreDown
		checks, err := v.ValidateInfoRecord(ctx, repo, record("500"))
		require.NoError(t, err)
		require.Equal(t, HistorySkipped, checks[0].Outcome)
		require.ErrorIs(t, checks[0].Err, errStoreDown)
	})

	t.Run("purchasing organization is optional", func(t *testing.T) {
		rec := record("15")
		rec.OrgRecords[0].PurchasingOrganization = ""
		checks, err := v.ValidateInfoRecord(ctx, historyRepo(), rec)
		require.NoError(t, err)
		require.Equal(t, HistoryPassed, checks[0].Outcome)
	})

	t.Run("field rules", func(t *testing.T) {
		rec := record("150000")
		rec.Supplier = "V999"
		rec.OrgRecords = append(rec.OrgRecords, PurchasingOrgInfoRecord{PurchasingOrganization: "10", PriceUnit: decPtr("1.5")})
		rec.Conditions[0].Plant = "9999"
		_, err := v.ValidateInfoRecord(ctx, newMemoryProcRepo(), rec)
		msgs := violationMessages(t, err)
		require.Equal(t, "Supplier V999 does not exist in VendorMaster (LFA1)", msgs["supplier"])
		require.Equal(t, "NetPrice 150000 exceeds maximum allowed threshold of AUD 100,000", msgs["org_records[0].net_price"])
		require.Equal(t, "Invalid Purchasing Organization format: 10. Must be 4 alphanumeric characters.", msgs["org_records[1].purchasing_organization"])
		require.Equal(t, "PriceUnit must be a positive integer value. Received: 1.5", msgs["org_records[1].price_unit"])
		require.Equal(t, "Plant 9999 does not exist in Plant (T001W) for purchasing conditions", msgs["conditions[0].plant"])
	})

	t.Run("zero price", func(t *testing.T) {
		_, err := v.ValidateInfoRecord(ctx, newMemoryProcRepo(), record("0"))
		msgs := violationMessages(t, err)
		require.Equal(t, "NetPrice must be a positive decimal value. Received: 0", msgs["org_records[0].net_price"])
	})
}
