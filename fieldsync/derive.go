package fieldsync

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hearthside/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

// Derived fields are recomputed from upstream data on every sync, never
// edited by hand.

func agingBucketFor(invoiceDate *time.Time, now time.Time) models.AgingBucket {
	if invoiceDate == nil {
		return models.AgingBucketCurrent
	}
	days := int(now.Sub(*invoiceDate).Hours() / 24)
	switch {
	case days < 30:
		return models.AgingBucketCurrent
	case days < 60:
		return models.AgingBucketThirty
	case days < 90:
		return models.AgingBucketSixty
	default:
		return models.AgingBucketNinetyPlus
	}
}

// tradeTypeFor keys off business unit naming conventions. Units are named
// like "Residential Plumbing Service" or "HVAC Install - Commercial".
func tradeTypeFor(businessUnitName string) string {
	name := strings.ToUpper(businessUnitName)
	switch {
	case strings.Contains(name, "PLUMB"):
		return "plumbing"
	case strings.Contains(name, "HVAC"), strings.Contains(name, "HEAT"), strings.Contains(name, "COOL"), strings.Contains(name, "AIR"):
		return "hvac"
	case strings.Contains(name, "ELECTRIC"):
		return "electrical"
	default:
		return "general"
	}
}

func customerSegmentFor(businessUnitName string) string {
	name := strings.ToUpper(businessUnitName)
	if strings.Contains(name, "COMM") {
		return "commercial"
	}
	return "residential"
}

// jobCategoryFor matches on job type name prefixes, with a legacy table for
// type names that predate the naming convention.
var legacyJobCategories = map[string]string{
	"DEMAND CALL":      "service",
	"MAINTENANCE":      "service",
	"TUNE-UP":          "service",
	"CHANGEOUT":        "install",
	"NEW CONSTRUCTION": "install",
	"ESTIMATE":         "sales",
	"FREE ESTIMATE":    "sales",
}

func jobCategoryFor(jobTypeName string) string {
	name := strings.ToUpper(strings.TrimSpace(jobTypeName))
	switch {
	case strings.HasPrefix(name, "SERVICE"):
		return "service"
	case strings.HasPrefix(name, "INSTALL"):
		return "install"
	case strings.HasPrefix(name, "SALES"):
		return "sales"
	case strings.HasPrefix(name, "PLUMBING"):
		return "plumbing"
	}
	if category, ok := legacyJobCategories[name]; ok {
		return category
	}
	return "other"
}

func statusFor(balance decimal.Decimal) models.InvoiceStatus {
	if balance.LessThanOrEqual(decimal.Zero) {
		return models.InvoiceStatusPaid
	}
	return models.InvoiceStatusOpen
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func parseTimeOrNil(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return &t
	}
	return nil
}
