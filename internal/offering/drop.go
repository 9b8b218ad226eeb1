package offering

import (
	"time"

	"github.com/shopspring/decimal"
)

// SailDateLayout is the human format used for sail dates in drop events.
const SailDateLayout = "02 Jan 2006"

var hundred = decimal.NewFromInt(100)

// PriceDropEvent records a price decrease for one identity key between two snapshots.
type PriceDropEvent struct {
	Key        string          `json:"key"`
	ShipName   string          `json:"ship_name"`
	SailDate   string          `json:"sail_date"`
	VendorID   string          `json:"vendor_id"`
	DealCode   string          `json:"deal_code"`
	DealName   string          `json:"deal_name"`
	GradeCode  string          `json:"grade_code"`
	GradeName  string          `json:"grade_name"`
	PriceFrom  decimal.Decimal `json:"price_from"`
	PriceTo    decimal.Decimal `json:"price_to"`
	DetectedAt time.Time       `json:"detected_at"`
}

// NewPriceDropEvent builds an event from the previous and current versions of an offering.
func NewPriceDropEvent(prev, cur Offering, detectedAt time.Time) PriceDropEvent {
	return PriceDropEvent{
		Key:        cur.Key,
		ShipName:   cur.ShipName,
		SailDate:   FormatSailDate(cur.SailDate),
		VendorID:   cur.VendorID,
		DealCode:   cur.DealCode,
		DealName:   cur.DealName,
		GradeCode:  cur.GradeCode,
		GradeName:  cur.GradeName,
		PriceFrom:  prev.Price,
		PriceTo:    cur.Price,
		DetectedAt: detectedAt.UTC(),
	}
}

// Amount returns how much the price went down.
func (e PriceDropEvent) Amount() decimal.Decimal {
	return e.PriceFrom.Sub(e.PriceTo)
}

// Percent returns the drop relative to the previous price, in percent.
func (e PriceDropEvent) Percent() decimal.Decimal {
	if !e.PriceFrom.IsPositive() {
		return decimal.Zero
	}
	return e.Amount().Div(e.PriceFrom).Mul(hundred)
}

// Deal returns the deal name, falling back to the deal code.
func (e PriceDropEvent) Deal() string {
	if e.DealName != "" {
		return e.DealName
	}
	return e.DealCode
}

// Grade returns the grade name, falling back to the grade code.
func (e PriceDropEvent) Grade() string {
	if e.GradeName != "" {
		return e.GradeName
	}
	return e.GradeCode
}

// FormatSailDate renders an ISO date (or timestamp) as SailDateLayout.
// Unparseable input is returned unchanged.
func FormatSailDate(raw string) string {
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(SailDateLayout)
		}
	}
	return raw
}
