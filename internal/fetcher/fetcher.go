package fetcher

import (
	"context"

	"cruise-drop-alerts/internal/offering"
)

// FetchReport summarises one walk over the paginated feed.
type FetchReport struct {
	Offerings []offering.Offering
	Pages     int
	Truncated bool
	// LastError is the page error that ended pagination early, if any.
	LastError error
}

// OfferingSource retrieves the current set of offerings.
type OfferingSource interface {
	FetchOfferings(ctx context.Context) (FetchReport, error)
}
