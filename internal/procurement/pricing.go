package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingFailure classifies why no unit price could be resolved.
type PricingFailure string

const (
	MissingInfoRecord PricingFailure = "MISSING_INFO_RECORD"
	MissingOrgPricing PricingFailure = "MISSING_ORG_PRICING"
	InvalidPriceData  PricingFailure = "INVALID_PRICE_DATA"
)

// PricingError is a business failure of the pricing resolver.
type PricingError struct {
	Reason     PricingFailure
	Material   string
	InfoRecord string
}

func (e *PricingError) Error() string {
	switch e.Reason {
	case MissingInfoRecord:
		return "Missing purchasingInfoRecord to determine NetPrice."
	case MissingOrgPricing:
		return fmt.Sprintf("No org-level pricing found for InfoRecord '%s'.", e.InfoRecord)
	default:
		return fmt.Sprintf("Invalid NetPrice/PriceUnit on InfoRecord '%s'.", e.InfoRecord)
	}
}

// IsPricingFailure reports whether err is a pricing business failure with the given reason.
func IsPricingFailure(err error, reason PricingFailure) bool {
	var pe *PricingError
	return errors.As(err, &pe) && pe.Reason == reason
}

// ResolveUnitPrice finds the material's info record and its org-level price.
// Store failures are returned as-is; business failures are *PricingError.
func ResolveUnitPrice(ctx context.Context, r PriceReader, material string) (UnitPrice, error) {
	rec, found, err := r.FindInfoRecordForMaterial(ctx, material)
	if err != nil {
		return UnitPrice{}, err
	}
	if !found || rec.PurchasingInfoRecord == "" {
		return UnitPrice{}, &PricingError{Reason: MissingInfoRecord, Material: material}
	}
	org, found, err := r.FindOrgRecord(ctx, rec.PurchasingInfoRecord)
	if err != nil {
		return UnitPrice{}, err
	}
	if !found || org.NetPrice == nil {
		return UnitPrice{}, &PricingError{Reason: MissingOrgPricing, Material: material, InfoRecord: rec.PurchasingInfoRecord}
	}
	unit := decimal.NewFromInt(1)
	if org.PriceUnit != nil {
		unit = *org.PriceUnit
	}
	if !org.NetPrice.IsPositive() || !unit.IsPositive() {
		return UnitPrice{}, &PricingError{Reason: InvalidPriceData, Material: material, InfoRecord: rec.PurchasingInfoRecord}
	}
	return UnitPrice{InfoRecord: rec.PurchasingInfoRecord, NetPrice: *org.NetPrice, PriceUnit: unit}, nil
}
