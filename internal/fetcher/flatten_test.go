package fetcher

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/offering"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func mustSchema(t *testing.T, name string) Schema {
	t.Helper()
	schema, err := LookupSchema(name, nil)
	if err != nil {
		t.Fatalf("lookup schema %s: %v", name, err)
	}
	return schema
}

const v2Page = `{
  "cruises": [
    {
      "vendor_id": "MSC-1",
      "ship": {"title": "MSC Bellissima"},
      "date_from": "2026-12-01",
      "fare_sets": [
        {
          "deal_code": "BELLA",
          "deal_name": "Bella Experience",
          "fares": [
            {"cabin_grade": {"code": "BAL", "name": "Balcony"}, "price": "1200.00"},
            {"cabin_grade": {"code": "IN", "name": "Inside"}, "price": 799.5},
            {"cabin_grade": {"code": "", "name": "Mystery"}, "price": "10.00"},
            {"cabin_grade": {"code": "SU", "name": "Suite"}, "price": "0"},
            {"cabin_grade": {"code": "OV", "name": "Ocean View"}, "price": "call us"},
            {"cabin_grade": {"code": "YC"}}
          ]
        },
        {
          "deal_code": "FANT",
          "fares": [
            {"cabin_grade": {"code": "BAL", "name": "Balcony"}, "price": "1350.00"}
          ]
        }
      ]
    },
    {"ship": {"title": "No vendor"}, "fare_sets": [{"fares": [{"cabin_grade": {"code": "BAL"}, "price": "1.00"}]}]}
  ],
  "_links": {"next": {"href": "/cruises?page=2"}}
}`

func TestFlattenV2DealCode(t *testing.T) {
	f := NewFlattener(mustSchema(t, "v2-deal-code"), noopLogger())
	got, err := f.Flatten([]byte(v2Page))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 valid offerings, got %d: %+v", len(got), got)
	}

	byKey := offering.IndexByKey(got)
	bal, ok := byKey[offering.Key("MSC-1", "BELLA", "BAL")]
	if !ok {
		t.Fatalf("missing MSC-1|BELLA|BAL in %v", byKey)
	}
	if bal.ShipName != "MSC Bellissima" || bal.SailDate != "2026-12-01" || bal.GradeName != "Balcony" || bal.DealName != "Bella Experience" {
		t.Fatalf("fields not mapped: %+v", bal)
	}
	if !bal.Price.Equal(decimal.RequireFromString("1200")) {
		t.Fatalf("unexpected price %s", bal.Price)
	}

	inside := byKey[offering.Key("MSC-1", "BELLA", "IN")]
	if inside.Price.String() != "799.5" {
		t.Fatalf("numeric price should keep its literal value, got %s", inside.Price)
	}

	fant := byKey[offering.Key("MSC-1", "FANT", "BAL")]
	if fant.DealName != "" {
		t.Fatalf("missing deal name should stay empty, got %q", fant.DealName)
	}
}

func TestFlattenIdentityBySchema(t *testing.T) {
	byName := NewFlattener(mustSchema(t, "v2-deal-name"), noopLogger())
	got, err := byName.Flatten([]byte(v2Page))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	keys := offering.IndexByKey(got)
	if _, ok := keys[offering.Key("MSC-1", "Bella Experience", "BAL")]; !ok {
		t.Fatalf("deal-name schema should key on deal name: %v", keys)
	}
	if _, ok := keys[offering.Key("MSC-1", "", "BAL")]; !ok {
		t.Fatalf("fare set without a deal name keys with empty deal: %v", keys)
	}
}

func TestFlattenV1Grades(t *testing.T) {
	page := `{"cruises":[{"vendor_id":"RC-9","ship":{"title":"Wonder"},"date_from":"2027-01-05",
	  "grades":[{"code":"BAL","name":"Balcony","price":"999.99"},{"code":"IN","price":"-1"}]}]}`

	f := NewFlattener(mustSchema(t, "v1-grade"), noopLogger())
	got, err := f.Flatten([]byte(page))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(got) != 1 || got[0].Key != offering.Key("RC-9", "", "BAL") {
		t.Fatalf("unexpected offerings: %+v", got)
	}
}

func TestFlattenMalformed(t *testing.T) {
	f := NewFlattener(mustSchema(t, "v2-deal-code"), noopLogger())

	if _, err := f.Flatten([]byte(`{"cruises": [`)); !errors.Is(err, ErrMalformedPage) {
		t.Fatalf("invalid json should be ErrMalformedPage, got %v", err)
	}
	if _, err := f.Flatten([]byte(`{"cruises": {"a": 1}}`)); !errors.Is(err, ErrMalformedPage) {
		t.Fatalf("non-array cruises should be ErrMalformedPage, got %v", err)
	}
	got, err := f.Flatten([]byte(`{"_links": {}}`))
	if err != nil || len(got) != 0 {
		t.Fatalf("page without cruises should be empty, got %v %v", got, err)
	}
}

func TestLookupSchemaOverrides(t *testing.T) {
	schema, err := LookupSchema("v2-deal-code", map[string]string{"price": "pricing.total", "ship_name": "ship_name"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if schema.Paths.Price != "pricing.total" || schema.Paths.ShipName != "ship_name" {
		t.Fatalf("overrides not applied: %+v", schema.Paths)
	}

	if _, err := LookupSchema("v9", nil); err == nil {
		t.Fatal("unknown schema should fail")
	}
	if _, err := LookupSchema("v2-deal-code", map[string]string{"colour": "x"}); err == nil {
		t.Fatal("unknown path override should fail")
	}
	if _, err := LookupSchema("v2-deal-code", map[string]string{"grade_code": ""}); err == nil {
		t.Fatal("clearing a required path should fail")
	}
}
