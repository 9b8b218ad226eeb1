package fetcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// DealIdentity selects which deal field takes part in the identity key.
type DealIdentity string

const (
	DealIdentityNone DealIdentity = "none"
	DealIdentityCode DealIdentity = "code"
	DealIdentityName DealIdentity = "name"
)

// Paths holds gjson paths into a feed page. Cruise-level paths are relative to
// a cruise, fare-set paths to a fare set and fare paths to a single fare.
// An empty FareSets path treats the cruise itself as the only fare set.
type Paths struct {
	Cruises   string
	Next      string
	VendorID  string
	ShipName  string
	SailDate  string
	FareSets  string
	DealCode  string
	DealName  string
	Fares     string
	GradeCode string
	GradeName string
	Price     string
}

// Schema is a versioned mapping from a raw cruise to offering candidates.
type Schema struct {
	Name         string
	IdentityDeal DealIdentity
	Paths        Paths
}

// Candidate is one raw grade/fare combination before validation.
type Candidate struct {
	VendorID  string
	ShipName  string
	SailDate  string
	DealCode  string
	DealName  string
	GradeCode string
	GradeName string
	Price     string
}

// DealIdentifier returns the deal component of the identity key.
func (s Schema) DealIdentifier(c Candidate) string {
	switch s.IdentityDeal {
	case DealIdentityCode:
		return c.DealCode
	case DealIdentityName:
		return c.DealName
	default:
		return ""
	}
}

var v2Paths = Paths{
	Cruises:   "cruises",
	Next:      "_links.next.href",
	VendorID:  "vendor_id",
	ShipName:  "ship.title",
	SailDate:  "date_from",
	FareSets:  "fare_sets",
	DealCode:  "deal_code",
	DealName:  "deal_name",
	Fares:     "fares",
	GradeCode: "cabin_grade.code",
	GradeName: "cabin_grade.name",
	Price:     "price",
}

var schemas = map[string]Schema{
	"v1-grade": {
		Name:         "v1-grade",
		IdentityDeal: DealIdentityNone,
		Paths: Paths{
			Cruises:   "cruises",
			Next:      "_links.next.href",
			VendorID:  "vendor_id",
			ShipName:  "ship.title",
			SailDate:  "date_from",
			Fares:     "grades",
			GradeCode: "code",
			GradeName: "name",
			Price:     "price",
		},
	},
	"v2-deal-code": {Name: "v2-deal-code", IdentityDeal: DealIdentityCode, Paths: v2Paths},
	"v2-deal-name": {Name: "v2-deal-name", IdentityDeal: DealIdentityName, Paths: v2Paths},
}

// SchemaNames lists the built-in schema versions.
func SchemaNames() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupSchema returns a built-in schema with optional per-field path overrides.
// Override keys are snake_case field names such as "grade_code".
func LookupSchema(name string, overrides map[string]string) (Schema, error) {
	schema, ok := schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("unknown feed schema %q (known: %s)", name, strings.Join(SchemaNames(), ", "))
	}

	for field, path := range overrides {
		target, err := schema.Paths.field(field)
		if err != nil {
			return Schema{}, err
		}
		*target = path
	}
	if schema.Paths.GradeCode == "" || schema.Paths.Price == "" || schema.Paths.Fares == "" {
		return Schema{}, fmt.Errorf("feed schema %q needs fares, grade_code and price paths", name)
	}
	return schema, nil
}

func (p *Paths) field(name string) (*string, error) {
	switch strings.ToLower(name) {
	case "cruises":
		return &p.Cruises, nil
	case "next":
		return &p.Next, nil
	case "vendor_id":
		return &p.VendorID, nil
	case "ship_name":
		return &p.ShipName, nil
	case "sail_date":
		return &p.SailDate, nil
	case "fare_sets":
		return &p.FareSets, nil
	case "deal_code":
		return &p.DealCode, nil
	case "deal_name":
		return &p.DealName, nil
	case "fares":
		return &p.Fares, nil
	case "grade_code":
		return &p.GradeCode, nil
	case "grade_name":
		return &p.GradeName, nil
	case "price":
		return &p.Price, nil
	default:
		return nil, fmt.Errorf("unknown feed path %q", name)
	}
}

// Candidates expands one raw cruise into its grade/fare combinations.
func (s Schema) Candidates(cruise gjson.Result) []Candidate {
	base := Candidate{
		VendorID: text(cruise, s.Paths.VendorID),
		ShipName: text(cruise, s.Paths.ShipName),
		SailDate: text(cruise, s.Paths.SailDate),
	}

	fareSets := []gjson.Result{cruise}
	if s.Paths.FareSets != "" {
		fareSets = cruise.Get(s.Paths.FareSets).Array()
	}

	var out []Candidate
	for _, set := range fareSets {
		withDeal := base
		withDeal.DealCode = text(set, s.Paths.DealCode)
		withDeal.DealName = text(set, s.Paths.DealName)

		for _, fare := range set.Get(s.Paths.Fares).Array() {
			c := withDeal
			c.GradeCode = text(fare, s.Paths.GradeCode)
			c.GradeName = text(fare, s.Paths.GradeName)
			c.Price = priceText(fare.Get(s.Paths.Price))
			out = append(out, c)
		}
	}
	return out
}

func text(r gjson.Result, path string) string {
	if path == "" {
		return ""
	}
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// priceText keeps the literal digits of numeric prices so decimals are not
// routed through float64.
func priceText(v gjson.Result) string {
	switch v.Type {
	case gjson.Number:
		return strings.TrimSpace(v.Raw)
	case gjson.String:
		return strings.TrimSpace(v.Str)
	default:
		return ""
	}
}
