package procurement

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement/internal/masterdata"
)

var purchasingOrgPattern = regexp.MustCompile(`^[A-Z0-9]{4}$`)

// savepointer is implemented by transaction-bound readers. A failing fn
// rolls back to the savepoint and leaves the unit of work usable.
type savepointer interface {
	Savepoint(ctx context.Context, fn func(Reader) error) error
}

// HistoryOutcome is the result of the historical price comparison.
type HistoryOutcome string

const (
	HistoryPassed    HistoryOutcome = "PASSED"
	HistoryExceeded  HistoryOutcome = "EXCEEDED"
	HistoryNoHistory HistoryOutcome = "NO_HISTORY"
	HistorySkipped   HistoryOutcome = "SKIPPED"
)

// HistoryCheck reports the best-effort comparison of one org record's
// NetPrice against the trailing average. Skipped checks carry the cause.
type HistoryCheck struct {
	PurchasingOrganization string          `json:"purchasing_organization"`
	Outcome                HistoryOutcome  `json:"outcome"`
	Average                decimal.Decimal `json:"average"`
	Samples                int             `json:"samples"`
	Err                    error           `json:"-"`
}

// ValidateInfoRecord checks an info record with its org records and
// conditions. The historical comparison never fails the request on a
// store error; such checks come back as HistorySkipped.
func (v *Validator) ValidateInfoRecord(ctx context.Context, r Reader, rec PurchasingInfoRecord) ([]HistoryCheck, error) {
	errs := &violations{document: "info_record"}

	if rec.Material == "" {
		errs.add("material", "Material must be provided.")
	} else if ok, err := r.Exists(ctx, masterdata.KindMaterial, rec.Material); err != nil {
		return nil, err
	} else if !ok {
		errs.add("material", "Material %s does not exist in MaterialMaster (MARA)", rec.Material)
	}

	if rec.Supplier == "" {
		errs.add("supplier", "Supplier must be provided.")
	} else if ok, err := r.Exists(ctx, masterdata.KindVendor, rec.Supplier); err != nil {
		return nil, err
	} else if !ok {
		errs.add("supplier", "Supplier %s does not exist in VendorMaster (LFA1)", rec.Supplier)
	}

	var checks []HistoryCheck
	for i, org := range rec.OrgRecords {
		if org.PurchasingOrganization != "" && !purchasingOrgPattern.MatchString(org.PurchasingOrganization) {
			errs.add(item("org_records", i, "purchasing_organization"),
				"Invalid Purchasing Organization format: %s. Must be 4 alphanumeric characters.", org.PurchasingOrganization)
		}

		if org.NetPrice != nil {
			price := *org.NetPrice
			if !price.IsPositive() {
				errs.add(item("org_records", i, "net_price"), "NetPrice must be a positive decimal value. Received: %s", price.String())
			} else {
				if price.GreaterThan(v.limits.InfoRecordPriceThreshold) {
					errs.add(item("org_records", i, "net_price"), "NetPrice %s exceeds maximum allowed threshold of %s %s",
						price.String(), v.limits.Currency, grouped(v.limits.InfoRecordPriceThreshold))
				}
				if rec.Material != "" && rec.Supplier != "" {
					check := v.compareHistory(ctx, r, rec, org.PurchasingOrganization, price)
					if check.Outcome == HistoryExceeded {
						errs.add(item("org_records", i, "net_price"), "NetPrice %s significantly exceeds historical average of %s %s. Please review pricing.",
							price.String(), v.limits.Currency, check.Average.StringFixed(2))
					}
					checks = append(checks, check)
				}
			}
		}

		if org.PriceUnit != nil {
			unit := *org.PriceUnit
			if !unit.IsPositive() || !unit.IsInteger() {
				errs.add(item("org_records", i, "price_unit"), "PriceUnit must be a positive integer value. Received: %s", unit.String())
			}
		}
	}

	for i, cond := range rec.Conditions {
		if cond.Plant == "" {
			continue
		}
		ok, err := r.Exists(ctx, masterdata.KindPlant, cond.Plant)
		if err != nil {
			return nil, err
		}
		if !ok {
			errs.add(item("conditions", i, "plant"), "Plant %s does not exist in Plant (T001W) for purchasing conditions", cond.Plant)
		}
	}

	return checks, v.finish(errs, rec.PurchasingInfoRecord)
}

func (v *Validator) compareHistory(ctx context.Context, r Reader, rec PurchasingInfoRecord, org string, price decimal.Decimal) HistoryCheck {
	check := HistoryCheck{PurchasingOrganization: org}
	var history []decimal.Decimal
	load := func(r Reader) (err error) {
		history, err = r.RecentNetPrices(ctx, rec.Material, rec.Supplier, rec.PurchasingInfoRecord, v.limits.HistoryWindow)
		return err
	}
	var err error
	if sp, ok := r.(savepointer); ok {
		err = sp.Savepoint(ctx, load)
	} else {
		err = load(r)
	}
	if err != nil {
		check.Outcome, check.Err = HistorySkipped, err
		v.logger.Warn("historical price check skipped",
			slog.String("info_record", rec.PurchasingInfoRecord),
			slog.String("material", rec.Material),
			slog.String("supplier", rec.Supplier),
			slog.Any("error", err))
		return check
	}
	if len(history) == 0 {
		check.Outcome = HistoryNoHistory
		return check
	}
	check.Average = decimal.Avg(history[0], history[1:]...)
	check.Samples = len(history)
	if price.GreaterThan(check.Average.Mul(v.limits.HistoryFactor)) {
		check.Outcome = HistoryExceeded
	} else {
		check.Outcome = HistoryPassed
	}
	return check
}
