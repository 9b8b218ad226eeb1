package fetcher

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"cruise-drop-alerts/internal/offering"
)

// ErrMalformedPage is returned when a page is not valid JSON or has the wrong shape.
var ErrMalformedPage = errors.New("malformed feed page")

// Flattener turns one feed page into validated offerings.
type Flattener struct {
	schema Schema
	logger zerolog.Logger
}

// NewFlattener builds a flattener for the given schema.
func NewFlattener(schema Schema, logger zerolog.Logger) *Flattener {
	return &Flattener{
		schema: schema,
		logger: logger.With().Str("component", "flattener").Str("schema", schema.Name).Logger(),
	}
}

// Flatten parses a raw page. Entries without a vendor, grade or positive price
// are skipped; only an unparseable page is an error.
func (f *Flattener) Flatten(page []byte) ([]offering.Offering, error) {
	root, err := f.parse(page)
	if err != nil {
		return nil, err
	}

	cruises := root.Get(f.schema.Paths.Cruises)
	if !cruises.Exists() || cruises.Type == gjson.Null {
		return nil, nil
	}
	if !cruises.IsArray() {
		return nil, fmt.Errorf("%w: %q is not an array", ErrMalformedPage, f.schema.Paths.Cruises)
	}

	var (
		out     []offering.Offering
		skipped int
	)
	for _, cruise := range cruises.Array() {
		for _, c := range f.schema.Candidates(cruise) {
			o, ok := f.build(c)
			if !ok {
				skipped++
				continue
			}
			out = append(out, o)
		}
	}

	if skipped > 0 {
		f.logger.Debug().Int("skipped", skipped).Int("kept", len(out)).Msg("dropped malformed fares")
	}
	return out, nil
}

// NextLink returns the pagination pointer of a page, or "" when absent.
func (f *Flattener) NextLink(page []byte) string {
	if f.schema.Paths.Next == "" {
		return ""
	}
	return text(gjson.ParseBytes(page), f.schema.Paths.Next)
}

func (f *Flattener) parse(page []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(page) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json", ErrMalformedPage)
	}
	root := gjson.ParseBytes(page)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: top level is not an object", ErrMalformedPage)
	}
	return root, nil
}

func (f *Flattener) build(c Candidate) (offering.Offering, bool) {
	if c.VendorID == "" || c.GradeCode == "" || c.Price == "" {
		return offering.Offering{}, false
	}
	price, err := decimal.NewFromString(c.Price)
	if err != nil || !price.IsPositive() {
		return offering.Offering{}, false
	}

	o := offering.Offering{
		Key:       offering.Key(c.VendorID, f.schema.DealIdentifier(c), c.GradeCode),
		VendorID:  c.VendorID,
		ShipName:  c.ShipName,
		SailDate:  c.SailDate,
		GradeCode: c.GradeCode,
		GradeName: c.GradeName,
		DealCode:  c.DealCode,
		DealName:  c.DealName,
		Price:     price,
	}
	return o, o.Validate() == nil
}
