package offering

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// KeySeparator joins identity key components.
const KeySeparator = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, KeySeparator, `\`+KeySeparator)

// Offering is one sellable vendor/sail date/cabin grade/deal combination with a price.
type Offering struct {
	Key       string          `json:"key"`
	VendorID  string          `json:"vendor_id"`
	ShipName  string          `json:"ship_name"`
	SailDate  string          `json:"sail_date"`
	GradeCode string          `json:"grade_code"`
	GradeName string          `json:"grade_name"`
	DealCode  string          `json:"deal_code"`
	DealName  string          `json:"deal_name"`
	Price     decimal.Decimal `json:"price"`
}

// Key derives the identity key for a (vendor, deal, grade) triple.
// Separators and escape characters inside a component are escaped, so
// distinct triples never produce the same key.
func Key(vendorID, deal, gradeCode string) string {
	return keyEscaper.Replace(vendorID) + KeySeparator +
		keyEscaper.Replace(deal) + KeySeparator +
		keyEscaper.Replace(gradeCode)
}

// Validate reports whether the offering can take part in a comparison.
func (o Offering) Validate() error {
	if o.Key == "" {
		return errors.New("offering key is empty")
	}
	if strings.TrimSpace(o.VendorID) == "" {
		return errors.New("offering vendor id is empty")
	}
	if strings.TrimSpace(o.GradeCode) == "" {
		return errors.New("offering grade code is empty")
	}
	if !o.Price.IsPositive() {
		return errors.New("offering price must be positive")
	}
	return nil
}
