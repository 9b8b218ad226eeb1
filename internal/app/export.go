package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"cruise-drop-alerts/internal/offering"
)

const defaultExportWindow = 30 * 24 * time.Hour

// Export renders the drop history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("snapshot store not configured; cannot export")
	}
	defer closeStore()

	from, to, err := exportWindow(opts, time.Now().UTC())
	if err != nil {
		return err
	}

	events, err := store.ListDropsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no drops found for export window")
		return nil
	}

	downsampled := downsampleDrops(events, opts.MaxPoints)
	a.Logger.Info().Int("total", len(events)).Int("exported", len(downsampled)).Msg("exporting drops")

	if opts.CSVPath != "" {
		if err := writeDropsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDropsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func exportWindow(opts ExportOptions, now time.Time) (time.Time, time.Time, error) {
	to := now
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func downsampleDrops(events []offering.PriceDropEvent, max int) []offering.PriceDropEvent {
	if max <= 0 || len(events) <= max {
		return events
	}
	if max == 1 {
		return events[len(events)-1:]
	}

	result := make([]offering.PriceDropEvent, 0, max)
	step := float64(len(events)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(events) {
			idx = len(events) - 1
		}
		result = append(result, events[idx])
	}
	return result
}

func writeDropsCSV(path string, events []offering.PriceDropEvent) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"detected_at", "identity_key", "vendor_id", "ship_name", "sail_date", "deal_code", "deal_name", "grade_code", "grade_name", "price_from", "price_to", "amount", "percent"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, ev := range events {
		record := []string{
			ev.DetectedAt.UTC().Format(time.RFC3339),
			ev.Key,
			ev.VendorID,
			ev.ShipName,
			ev.SailDate,
			ev.DealCode,
			ev.DealName,
			ev.GradeCode,
			ev.GradeName,
			ev.PriceFrom.String(),
			ev.PriceTo.String(),
			ev.Amount().StringFixed(2),
			ev.Percent().StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeDropsPNG(path string, events []offering.PriceDropEvent) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(events))
	amount := make([]float64, len(events))
	percent := make([]float64, len(events))

	for i, ev := range events {
		x[i] = ev.DetectedAt
		amount[i] = ev.Amount().InexactFloat64()
		percent[i] = ev.Percent().InexactFloat64()
	}

	// a single point gives go-chart a zero-width range
	if len(events) == 1 {
		x = append(x, x[0].Add(time.Minute))
		amount = append(amount, amount[0])
		percent = append(percent, percent[0])
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Drop amount",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Drop (%)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Amount",
				XValues: x,
				YValues: amount,
			},
			chart.TimeSeries{
				Name:    "Drop %",
				XValues: x,
				YValues: percent,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
