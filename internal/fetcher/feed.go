package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cruise-drop-alerts/internal/offering"
)

const (
	defaultAccept    = "application/json;api_version=2"
	defaultUserAgent = "cruisewatch/1.0"
	maxPageBytes     = 32 << 20
)

// ErrNoBaseURL indicates the feed URL was not configured.
var ErrNoBaseURL = errors.New("feed base url not configured")

// FeedOptions parameterise the paginated feed client.
type FeedOptions struct {
	BaseURL      string
	Accept       string
	UserAgent    string
	Timeout      time.Duration
	PageInterval time.Duration
	MaxPages     int
	Schema       Schema
}

// Feed walks the paginated pricing feed and flattens every page.
type Feed struct {
	opts      FeedOptions
	client    *http.Client
	flattener *Flattener
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewFeed constructs a feed client.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if strings.TrimSpace(opts.Accept) == "" {
		opts.Accept = defaultAccept
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	limit := rate.Inf
	if opts.PageInterval > 0 {
		limit = rate.Every(opts.PageInterval)
	}

	return &Feed{
		opts:      opts,
		client:    &http.Client{Timeout: timeout},
		flattener: NewFlattener(opts.Schema, logger),
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.With().Str("component", "feed_fetcher").Logger(),
	}
}

// FetchOfferings follows the feed's next links until they run out, loop back,
// or a page fails. Offerings gathered before a failing page are kept; later
// pages overwrite earlier offerings with the same key.
func (f *Feed) FetchOfferings(ctx context.Context) (FetchReport, error) {
	start := strings.TrimSpace(f.opts.BaseURL)
	if start == "" {
		return FetchReport{}, ErrNoBaseURL
	}

	byKey := make(map[string]offering.Offering)
	visited := make(map[string]struct{})
	report := FetchReport{}

	current := start
	for current != "" {
		if f.opts.MaxPages > 0 && report.Pages >= f.opts.MaxPages {
			f.logger.Warn().Int("max_pages", f.opts.MaxPages).Msg("page cap reached; stopping pagination")
			report.Truncated = true
			break
		}
		visited[current] = struct{}{}

		if err := f.limiter.Wait(ctx); err != nil {
			report.Truncated = true
			report.LastError = err
			break
		}

		body, err := f.fetchPage(ctx, current)
		if err != nil {
			f.logger.Warn().Err(err).Str("url", current).Int("pages", report.Pages).Msg("page fetch failed; keeping accumulated offerings")
			report.Truncated = true
			report.LastError = err
			break
		}

		offerings, err := f.flattener.Flatten(body)
		if err != nil {
			f.logger.Warn().Err(err).Str("url", current).Int("pages", report.Pages).Msg("page parse failed; keeping accumulated offerings")
			report.Truncated = true
			report.LastError = err
			break
		}
		report.Pages++
		for _, o := range offerings {
			byKey[o.Key] = o
		}

		f.logger.Debug().Str("url", current).Int("offerings", len(offerings)).Msg("page flattened")

		next, err := resolveNext(current, f.flattener.NextLink(body))
		if err != nil {
			f.logger.Warn().Err(err).Str("url", current).Msg("unusable next link; stopping pagination")
			break
		}
		if _, seen := visited[next]; seen {
			f.logger.Debug().Str("next", next).Msg("next link loops back; stopping pagination")
			break
		}
		current = next
	}

	report.Offerings = make([]offering.Offering, 0, len(byKey))
	for _, o := range byKey {
		report.Offerings = append(report.Offerings, o)
	}
	offering.SortByKey(report.Offerings)

	f.logger.Info().
		Int("pages", report.Pages).
		Int("offerings", len(report.Offerings)).
		Bool("truncated", report.Truncated).
		Msg("feed fetched")
	return report, nil
}

func (f *Feed) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", f.opts.Accept)
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send feed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

// resolveNext turns a possibly relative next link into an absolute URL.
func resolveNext(current, next string) (string, error) {
	if next == "" {
		return "", nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse current url: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func parseHTTPError(status int, payload []byte) error {
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg != "" {
		return fmt.Errorf("feed api error (%d): %s", status, msg)
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ OfferingSource = (*Feed)(nil)
