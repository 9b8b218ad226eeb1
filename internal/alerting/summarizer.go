package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cruise-drop-alerts/internal/offering"
)

// Summarizer turns a digest into a human message.
type Summarizer interface {
	Summarize(ctx context.Context, digest Digest) (Message, error)
}

// TemplateSummarizer renders digests with a fixed plain-text template.
type TemplateSummarizer struct{}

// Summarize never fails.
func (TemplateSummarizer) Summarize(_ context.Context, digest Digest) (Message, error) {
	return renderDigest(digest), nil
}

func renderDigest(digest Digest) Message {
	count := len(digest.Events)
	subject := fmt.Sprintf("Cruise price drops: %d offerings cheaper", count)
	if count == 1 {
		ev := digest.Events[0]
		subject = fmt.Sprintf("Cruise price drop: %s %s now %s", ev.ShipName, ev.SailDate, ev.PriceTo.StringFixed(2))
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%d cruise offering(s) dropped in price", count))
	if !digest.DetectedAt.IsZero() {
		builder.WriteString(fmt.Sprintf(" (detected %s UTC)", digest.DetectedAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(".\n\n")
	for _, ev := range digest.Events {
		builder.WriteString(renderEvent(ev))
		builder.WriteString("\n")
	}
	if digest.RunID != "" {
		builder.WriteString(fmt.Sprintf("\nRun: %s\n", digest.RunID))
	}
	return Message{Subject: subject, Body: builder.String()}
}

func renderEvent(ev offering.PriceDropEvent) string {
	line := fmt.Sprintf("- %s, %s, %s", ev.ShipName, ev.SailDate, ev.Grade())
	if deal := ev.Deal(); deal != "" {
		line += fmt.Sprintf(" (%s)", deal)
	}
	return line + fmt.Sprintf(": %s -> %s (down %s, %s%%)",
		ev.PriceFrom.StringFixed(2),
		ev.PriceTo.StringFixed(2),
		ev.Amount().StringFixed(2),
		ev.Percent().StringFixed(2),
	)
}

var _ Summarizer = TemplateSummarizer{}
