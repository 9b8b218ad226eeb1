package alerting

import (
	"context"
	"errors"
	"time"

	"cruise-drop-alerts/internal/offering"
)

// ErrNoRecipient indicates a digest was addressed to nobody.
var ErrNoRecipient = errors.New("alerting: recipient not configured")

// Digest 封装一次运行检测到的全部降价事件。
type Digest struct {
	RunID      string
	Recipient  string
	Events     []offering.PriceDropEvent
	DetectedAt time.Time
}

// Message is the rendered subject/body pair of a digest.
type Message struct {
	Subject string
	Body    string
}

// Notifier 定义告警输送接口，摘要交付后 Notify 返回 nil。
type Notifier interface {
	Notify(ctx context.Context, digest Digest) error
}

// Multi delivers a digest through every route and joins their errors.
type Multi []Notifier

// Notify calls each route even when an earlier one failed.
func (m Multi) Notify(ctx context.Context, digest Digest) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, digest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = Multi(nil)
