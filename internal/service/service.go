package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/alerting"
	"cruise-drop-alerts/internal/detector"
	"cruise-drop-alerts/internal/fetcher"
	"cruise-drop-alerts/internal/offering"
	"cruise-drop-alerts/internal/scheduler"
	"cruise-drop-alerts/internal/storage"
)

var (
	// ErrRunInProgress indicates another run holds the in-process or advisory lock.
	ErrRunInProgress = errors.New("service: run already in progress")
	// ErrNoSnapshotStore indicates no snapshot store was wired.
	ErrNoSnapshotStore = errors.New("service: snapshot store not configured")
	// ErrNoNotifier indicates alerting is enabled without any route.
	ErrNoNotifier = errors.New("service: no notification route configured")
	// ErrNoRecipient indicates the email route has no recipient.
	ErrNoRecipient = errors.New("service: notification recipient not configured")
)

// Options carries the settings a run reads.
type Options struct {
	AlertsEnabled bool
	// Recipient is the digest address. Required when RequireRecipient is set.
	Recipient        string
	RequireRecipient bool
	AdvisoryLockKey  int64
}

// Service orchestrates fetching, comparison, persistence, and alerting.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	source    fetcher.OfferingSource
	snapshots storage.SnapshotStore
	drops     storage.DropLog
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger

	now   func() time.Time
	newID func() string
	runMu sync.Mutex
}

// New constructs the monitoring service.
func New(opts Options, sched *scheduler.Scheduler, source fetcher.OfferingSource, snapshots storage.SnapshotStore, drops storage.DropLog, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := snapshots.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		opts:      opts,
		scheduler: sched,
		source:    source,
		snapshots: snapshots,
		drops:     drops,
		notifier:  notifier,
		locker:    locker,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Run begins the scheduled polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs one scheduler tick. Skipped runs are not errors.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	outcome := s.RunOnce(ctx)
	if outcome.Status == StatusFailed {
		return fmt.Errorf("run %s for bucket %s: %w", outcome.RunID, bucket.Format(time.RFC3339), outcome.Err)
	}
	return nil
}

// RunOnce executes FETCH, COMPARE, PERSIST and NOTIFY in order. A stage
// failure stops later stages; side effects of earlier stages remain.
func (s *Service) RunOnce(ctx context.Context) Outcome {
	outcome := Outcome{RunID: s.newID(), StartedAt: s.now()}
	log := s.logger.With().Str("run_id", outcome.RunID).Logger()

	finish := func(status Status, err error, format string, args ...any) Outcome {
		outcome.Status = status
		outcome.Err = err
		outcome.Message = fmt.Sprintf(format, args...)
		outcome.FinishedAt = s.now()

		event := log.Info()
		switch status {
		case StatusFailed:
			event = log.Error().Err(err)
		case StatusSkipped:
			event = log.Warn().AnErr("reason", err)
		}
		event.Str("status", string(status)).
			Int("offerings", outcome.Offerings).
			Int("drops", outcome.Drops).
			Int("pages", outcome.Pages).
			Bool("truncated", outcome.Truncated).
			Dur("elapsed", outcome.FinishedAt.Sub(outcome.StartedAt)).
			Msg(outcome.Message)
		return outcome
	}

	if !s.runMu.TryLock() {
		return finish(StatusSkipped, ErrRunInProgress, "another run is in progress")
	}
	defer s.runMu.Unlock()

	if err := s.checkConfig(); err != nil {
		return finish(StatusSkipped, err, "run skipped: %v", err)
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return finish(StatusFailed, err, "advisory lock failed")
	}
	if !proceed {
		return finish(StatusSkipped, ErrRunInProgress, "advisory lock held elsewhere")
	}
	if unlock != nil {
		defer unlock()
	}

	// FETCH
	report, err := s.source.FetchOfferings(ctx)
	if err != nil {
		if errors.Is(err, fetcher.ErrNoBaseURL) {
			return finish(StatusSkipped, err, "run skipped: %v", err)
		}
		return finish(StatusFailed, err, "fetch failed")
	}
	outcome.Pages = report.Pages
	outcome.Truncated = report.Truncated
	for _, o := range report.Offerings {
		if err := o.Validate(); err != nil {
			return finish(StatusFailed, fmt.Errorf("offering %q: %w", o.Key, err), "fetch returned a malformed offering")
		}
	}
	current := offering.NewSnapshot(report.Offerings, s.now())
	outcome.Offerings = current.Len()

	// COMPARE
	var baseline []offering.Offering
	latest, found, err := s.snapshots.ReadSlot(ctx, storage.SlotLatest)
	if err != nil {
		return finish(StatusFailed, err, "read latest snapshot failed")
	}
	if found {
		if err := s.snapshots.WriteSlot(ctx, storage.SlotPrevious, latest); err != nil {
			return finish(StatusFailed, err, "archive previous snapshot failed")
		}
		baseline = latest.Offerings
	}
	events := detector.DetectDrops(current.Offerings, baseline, current.UpdatedAt)
	outcome.Drops = len(events)

	// PERSIST
	if current.IsEmpty() {
		log.Warn().Msg("fetch returned no offerings; latest snapshot left unchanged")
	} else if err := s.snapshots.WriteSlot(ctx, storage.SlotLatest, current); err != nil {
		return finish(StatusFailed, err, "write latest snapshot failed")
	}

	// NOTIFY
	if len(events) == 0 {
		return finish(StatusCompleted, nil, "no price drops")
	}
	if s.drops != nil {
		if err := s.drops.InsertDrops(ctx, events); err != nil {
			return finish(StatusFailed, err, "record price drops failed")
		}
	}
	if !s.opts.AlertsEnabled {
		return finish(StatusCompleted, nil, "%d price drops recorded; alerting disabled", len(events))
	}

	digest := alerting.Digest{
		RunID:      outcome.RunID,
		Recipient:  s.opts.Recipient,
		Events:     events,
		DetectedAt: current.UpdatedAt,
	}
	if err := s.notifier.Notify(ctx, digest); err != nil {
		return finish(StatusFailed, err, "notify failed")
	}
	return finish(StatusCompleted, nil, "%d price drops notified", len(events))
}

// SendTestNotification delivers a digest of the given events, or of a
// synthetic sample when events is empty. Snapshots and the drop log are not touched.
func (s *Service) SendTestNotification(ctx context.Context, events []offering.PriceDropEvent) Outcome {
	outcome := Outcome{RunID: s.newID(), StartedAt: s.now()}
	log := s.logger.With().Str("run_id", outcome.RunID).Str("mode", "test").Logger()

	if s.notifier == nil {
		outcome.Status, outcome.Err, outcome.Message = StatusSkipped, ErrNoNotifier, "test notification skipped: no notification route"
	} else if s.opts.RequireRecipient && strings.TrimSpace(s.opts.Recipient) == "" {
		outcome.Status, outcome.Err, outcome.Message = StatusSkipped, ErrNoRecipient, "test notification skipped: no recipient"
	}
	if outcome.Status == StatusSkipped {
		outcome.FinishedAt = s.now()
		log.Warn().Msg(outcome.Message)
		return outcome
	}

	if len(events) == 0 {
		events = SampleEvents(outcome.StartedAt)
	}
	outcome.Drops = len(events)

	digest := alerting.Digest{
		RunID:      outcome.RunID,
		Recipient:  s.opts.Recipient,
		Events:     events,
		DetectedAt: outcome.StartedAt,
	}
	if err := s.notifier.Notify(ctx, digest); err != nil {
		outcome.Status, outcome.Err, outcome.Message = StatusFailed, err, "test notification failed"
		log.Error().Err(err).Msg(outcome.Message)
	} else {
		outcome.Status, outcome.Message = StatusCompleted, fmt.Sprintf("test notification with %d events sent", len(events))
		log.Info().Int("events", len(events)).Msg(outcome.Message)
	}
	outcome.FinishedAt = s.now()
	return outcome
}

// SampleEvents returns a fixed pair of synthetic drops used for test notifications.
func SampleEvents(at time.Time) []offering.PriceDropEvent {
	sample := []struct {
		prev, cur offering.Offering
	}{
		{
			prev: offering.Offering{VendorID: "MSC-1", ShipName: "MSC Bellissima", SailDate: "2025-06-01", DealCode: "BELLA", DealName: "Bella Fare", GradeCode: "BAL", GradeName: "Balcony", Price: decimal.RequireFromString("1200.00")},
			cur:  offering.Offering{VendorID: "MSC-1", ShipName: "MSC Bellissima", SailDate: "2025-06-01", DealCode: "BELLA", DealName: "Bella Fare", GradeCode: "BAL", GradeName: "Balcony", Price: decimal.RequireFromString("950.00")},
		},
		{
			prev: offering.Offering{VendorID: "RCL-7", ShipName: "Wonder of the Seas", SailDate: "2025-09-14", DealCode: "SAVE", GradeCode: "IN", GradeName: "Interior", Price: decimal.RequireFromString("799.99")},
			cur:  offering.Offering{VendorID: "RCL-7", ShipName: "Wonder of the Seas", SailDate: "2025-09-14", DealCode: "SAVE", GradeCode: "IN", GradeName: "Interior", Price: decimal.RequireFromString("749.99")},
		},
	}

	events := make([]offering.PriceDropEvent, 0, len(sample))
	for _, pair := range sample {
		pair.cur.Key = offering.Key(pair.cur.VendorID, pair.cur.DealCode, pair.cur.GradeCode)
		events = append(events, offering.NewPriceDropEvent(pair.prev, pair.cur, at))
	}
	return events
}

func (s *Service) checkConfig() error {
	if s.snapshots == nil {
		return ErrNoSnapshotStore
	}
	if s.source == nil {
		return fetcher.ErrNoBaseURL
	}
	if !s.opts.AlertsEnabled {
		return nil
	}
	if s.notifier == nil {
		return ErrNoNotifier
	}
	if s.opts.RequireRecipient && strings.TrimSpace(s.opts.Recipient) == "" {
		return ErrNoRecipient
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
