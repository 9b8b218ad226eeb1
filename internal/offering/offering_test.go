package offering

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestKeyStableAcrossPages(t *testing.T) {
	first := Key("MSC-1", "BELLA", "BAL")
	second := Key("MSC-1", "BELLA", "BAL")
	if first != second {
		t.Fatalf("same triple should derive the same key: %q vs %q", first, second)
	}
	if first != "MSC-1|BELLA|BAL" {
		t.Fatalf("unexpected key layout: %q", first)
	}
}

func TestKeyDistinctTriples(t *testing.T) {
	keys := map[string]string{
		"vendor": Key("MSC-2", "BELLA", "BAL"),
		"deal":   Key("MSC-1", "FANTASTICA", "BAL"),
		"grade":  Key("MSC-1", "BELLA", "IN"),
		"base":   Key("MSC-1", "BELLA", "BAL"),
		"nodeal": Key("MSC-1", "", "BAL"),
	}
	seen := make(map[string]string)
	for name, key := range keys {
		if other, ok := seen[key]; ok {
			t.Fatalf("%s and %s collide on %q", name, other, key)
		}
		seen[key] = name
	}
}

func TestKeyEscapesSeparator(t *testing.T) {
	a := Key("A|B", "C", "D")
	b := Key("A", "B|C", "D")
	if a == b {
		t.Fatalf("separator inside a component must not collide: %q", a)
	}
	c := Key(`A\`, "B", "C")
	d := Key("A", `\B`, "C")
	if c == d {
		t.Fatalf("escape character inside a component must not collide: %q", c)
	}
}

func TestValidate(t *testing.T) {
	valid := Offering{Key: Key("V", "D", "G"), VendorID: "V", GradeCode: "G", Price: decimal.RequireFromString("10.00")}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid offering rejected: %v", err)
	}

	cases := map[string]Offering{
		"no key":     {VendorID: "V", GradeCode: "G", Price: decimal.NewFromInt(1)},
		"no vendor":  {Key: "k", GradeCode: "G", Price: decimal.NewFromInt(1)},
		"no grade":   {Key: "k", VendorID: "V", Price: decimal.NewFromInt(1)},
		"zero price": {Key: "k", VendorID: "V", GradeCode: "G"},
		"negative":   {Key: "k", VendorID: "V", GradeCode: "G", Price: decimal.NewFromInt(-3)},
	}
	for name, o := range cases {
		if err := o.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSnapshotIndexLastWins(t *testing.T) {
	snap := NewSnapshot([]Offering{
		{Key: "a", Price: decimal.NewFromInt(1)},
		{Key: "a", Price: decimal.NewFromInt(2)},
		{Key: "b", Price: decimal.NewFromInt(3)},
	}, time.Now())

	index := snap.Index()
	if len(index) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(index))
	}
	if !index["a"].Price.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("later duplicate should win, got %s", index["a"].Price)
	}
}

func TestPriceDropEventDerived(t *testing.T) {
	prev := Offering{Key: "k", SailDate: "2026-03-14", Price: decimal.RequireFromString("1200.00")}
	cur := Offering{Key: "k", SailDate: "2026-03-14", GradeCode: "BAL", DealCode: "BELLA", Price: decimal.RequireFromString("950.00")}

	ev := NewPriceDropEvent(prev, cur, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if ev.SailDate != "14 Mar 2026" {
		t.Fatalf("sail date not formatted: %q", ev.SailDate)
	}
	if !ev.Amount().Equal(decimal.RequireFromString("250")) {
		t.Fatalf("unexpected amount %s", ev.Amount())
	}
	if ev.Percent().StringFixed(2) != "20.83" {
		t.Fatalf("unexpected percent %s", ev.Percent().StringFixed(2))
	}
	if ev.Deal() != "BELLA" || ev.Grade() != "BAL" {
		t.Fatalf("fallback names wrong: %q %q", ev.Deal(), ev.Grade())
	}
}

func TestFormatSailDateFallback(t *testing.T) {
	if got := FormatSailDate("soon"); got != "soon" {
		t.Fatalf("unparseable date should pass through, got %q", got)
	}
	if got := FormatSailDate("2026-07-01T00:00:00Z"); got != "01 Jul 2026" {
		t.Fatalf("timestamp not formatted: %q", got)
	}
}
