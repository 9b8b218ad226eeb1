// Package detector compares two offering snapshots and reports price drops.
package detector

import (
	"time"

	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/offering"
)

// MinimumDrop is the smallest decrease reported as a drop.
var MinimumDrop = decimal.New(1, -2)

// DetectDrops returns one event per current offering whose price fell by at
// least MinimumDrop against the previous offering with the same key.
// New and delisted offerings are ignored; an empty previous set yields nothing.
func DetectDrops(current, previous []offering.Offering, detectedAt time.Time) []offering.PriceDropEvent {
	if len(previous) == 0 || len(current) == 0 {
		return nil
	}

	prevIndex := offering.IndexByKey(previous)

	var events []offering.PriceDropEvent
	for _, cur := range current {
		prev, ok := prevIndex[cur.Key]
		if !ok {
			continue
		}
		if !prev.Price.IsPositive() || !cur.Price.IsPositive() {
			continue
		}
		if prev.Price.Sub(cur.Price).LessThan(MinimumDrop) {
			continue
		}
		events = append(events, offering.NewPriceDropEvent(prev, cur, detectedAt))
	}
	return events
}
