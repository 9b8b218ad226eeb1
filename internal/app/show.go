package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cruise-drop-alerts/internal/offering"
)

// Show prints the most recent price drops.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("snapshot store not configured; cannot show drops")
	}
	defer closeStore()

	events, err := store.ListRecentDrops(ctx, a.Config.ResolveShowLimit(opts.Limit))
	if err != nil {
		return err
	}
	return writeDropsTable(os.Stdout, events)
}

func writeDropsTable(out io.Writer, events []offering.PriceDropEvent) error {
	if len(events) == 0 {
		fmt.Fprintln(out, "no price drops found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Detected (UTC)\tShip\tSail date\tGrade\tDeal\tFrom\tTo\tDrop%")

	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.DetectedAt.UTC().Format(time.RFC3339),
			sanitizeInline(ev.ShipName),
			ev.SailDate,
			sanitizeInline(ev.Grade()),
			sanitizeInline(ev.Deal()),
			ev.PriceFrom.StringFixed(2),
			ev.PriceTo.StringFixed(2),
			ev.Percent().StringFixed(2),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
