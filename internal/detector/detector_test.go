package detector

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/offering"
)

var detectedAt = time.Date(2026, 10, 18, 9, 15, 0, 0, time.UTC)

func offer(vendor, deal, grade, price string) offering.Offering {
	return offering.Offering{
		Key:       offering.Key(vendor, deal, grade),
		VendorID:  vendor,
		ShipName:  "MSC Bellissima",
		SailDate:  "2026-12-01",
		GradeCode: grade,
		DealCode:  deal,
		Price:     decimal.RequireFromString(price),
	}
}

func TestDetectDropsSingleDrop(t *testing.T) {
	prev := []offering.Offering{offer("MSC-1", "BELLA", "BAL", "1200.00")}
	cur := []offering.Offering{offer("MSC-1", "BELLA", "BAL", "950.00")}

	events := DetectDrops(cur, prev, detectedAt)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.PriceFrom.Equal(decimal.RequireFromString("1200.00")) || !ev.PriceTo.Equal(decimal.RequireFromString("950.00")) {
		t.Fatalf("unexpected prices %s -> %s", ev.PriceFrom, ev.PriceTo)
	}
	if !ev.DetectedAt.Equal(detectedAt) {
		t.Fatalf("detectedAt not propagated: %s", ev.DetectedAt)
	}
	if ev.VendorID != "MSC-1" || ev.DealCode != "BELLA" || ev.GradeCode != "BAL" {
		t.Fatalf("identity fields lost: %+v", ev)
	}
}

func TestDetectDropsUnchangedAndNew(t *testing.T) {
	prev := []offering.Offering{offer("A", "D", "G", "500.00")}
	cur := []offering.Offering{
		offer("A", "D", "G", "500.00"),
		offer("B", "D", "G", "100.00"),
	}
	if events := DetectDrops(cur, prev, detectedAt); len(events) != 0 {
		t.Fatalf("unchanged and new offerings must not emit events: %+v", events)
	}
}

func TestDetectDropsNoBaseline(t *testing.T) {
	cur := []offering.Offering{offer("A", "D", "G", "1.00"), offer("B", "D", "G", "2.00")}
	if events := DetectDrops(cur, nil, detectedAt); len(events) != 0 {
		t.Fatalf("no baseline must yield no events, got %d", len(events))
	}
	if events := DetectDrops(cur, []offering.Offering{}, detectedAt); len(events) != 0 {
		t.Fatalf("empty baseline must yield no events, got %d", len(events))
	}
}

func TestDetectDropsMinimumDelta(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want int
	}{
		{"half cent", "100.005", "100.000", 0},
		{"sub cent", "100.009", "100.000", 0},
		{"one cent", "100.01", "100.00", 1},
		{"increase", "100.00", "120.00", 0},
		{"equal", "100.00", "100.00", 0},
	}
	for _, tc := range cases {
		prev := []offering.Offering{offer("A", "D", "G", tc.from)}
		cur := []offering.Offering{offer("A", "D", "G", tc.to)}
		if got := len(DetectDrops(cur, prev, detectedAt)); got != tc.want {
			t.Fatalf("%s: expected %d events, got %d", tc.name, tc.want, got)
		}
	}
}

func TestDetectDropsMonotonic(t *testing.T) {
	prev := []offering.Offering{
		offer("A", "D", "G1", "300"),
		offer("A", "D", "G2", "300"),
		offer("A", "D", "G3", "300"),
		offer("A", "D", "G4", "300"),
	}
	cur := []offering.Offering{
		offer("A", "D", "G1", "299.99"),
		offer("A", "D", "G2", "301"),
		offer("A", "D", "G3", "300"),
		offer("A", "D", "G4", "10"),
	}
	events := DetectDrops(cur, prev, detectedAt)
	if len(events) != 2 {
		t.Fatalf("expected 2 drops, got %d", len(events))
	}
	for _, ev := range events {
		if ev.PriceTo.GreaterThanOrEqual(ev.PriceFrom) {
			t.Fatalf("event without a decrease: %s -> %s", ev.PriceFrom, ev.PriceTo)
		}
	}
	if events[0].GradeCode != "G1" || events[1].GradeCode != "G4" {
		t.Fatalf("events should follow current order: %s, %s", events[0].GradeCode, events[1].GradeCode)
	}
}

func TestDetectDropsDelistedIgnored(t *testing.T) {
	prev := []offering.Offering{offer("A", "D", "G", "300"), offer("GONE", "D", "G", "300")}
	cur := []offering.Offering{offer("A", "D", "G", "300")}
	if events := DetectDrops(cur, prev, detectedAt); len(events) != 0 {
		t.Fatalf("delisted offerings must be ignored: %+v", events)
	}
}

func TestDetectDropsIdempotent(t *testing.T) {
	prev := []offering.Offering{offer("A", "D", "G", "300"), offer("B", "D", "G", "80")}
	cur := []offering.Offering{offer("A", "D", "G", "250"), offer("B", "D", "G", "60")}

	first := DetectDrops(cur, prev, detectedAt)
	second := DetectDrops(cur, prev, detectedAt)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated detection differs:\n%+v\n%+v", first, second)
	}
	if !prev[0].Price.Equal(decimal.NewFromInt(300)) || !cur[0].Price.Equal(decimal.NewFromInt(250)) {
		t.Fatal("inputs must not be mutated")
	}
}
