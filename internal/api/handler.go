package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"cruise-drop-alerts/internal/offering"
	"cruise-drop-alerts/internal/service"
	"cruise-drop-alerts/internal/version"
)

const maxListLimit = 500

// Runner is the slice of the service the admin surface drives.
type Runner interface {
	RunOnce(ctx context.Context) service.Outcome
	SendTestNotification(ctx context.Context, events []offering.PriceDropEvent) service.Outcome
}

// DropLister reads the drop log.
type DropLister interface {
	ListRecentDrops(ctx context.Context, limit int) ([]offering.PriceDropEvent, error)
}

// Handler implements the admin endpoints.
type Handler struct {
	runner       Runner
	drops        DropLister
	defaultLimit int
	logger       zerolog.Logger
}

// OutcomeResponse is the JSON body returned for runs and test notifications.
type OutcomeResponse struct {
	service.Outcome
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DropResponse is one row of GET /api/v1/drops.
type DropResponse struct {
	offering.PriceDropEvent
	Amount  string `json:"amount"`
	Percent string `json:"percent"`
}

// ErrorResponse is returned with 4xx/5xx statuses.
type ErrorResponse struct {
	Message string `json:"message"`
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// TriggerRun executes one run synchronously.
func (h *Handler) TriggerRun(c echo.Context) error {
	outcome := h.runner.RunOnce(c.Request().Context())
	return c.JSON(outcomeStatus(outcome), newOutcomeResponse(outcome))
}

// SendTestNotification sends synthetic events, or built-in samples when the body is empty.
func (h *Handler) SendTestNotification(c echo.Context) error {
	var req TestNotificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: FormatValidationError(err)})
	}

	outcome := h.runner.SendTestNotification(c.Request().Context(), req.ToEvents(time.Now().UTC()))
	return c.JSON(outcomeStatus(outcome), newOutcomeResponse(outcome))
}

// ListDrops returns the most recent drops, newest first.
func (h *Handler) ListDrops(c echo.Context) error {
	if h.drops == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: "drop log not configured"})
	}

	limit := h.defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "limit must be between 1 and 500"})
		}
		limit = parsed
	}

	events, err := h.drops.ListRecentDrops(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list drops failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "list drops failed"})
	}

	out := make([]DropResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, DropResponse{
			PriceDropEvent: ev,
			Amount:         ev.Amount().StringFixed(2),
			Percent:        ev.Percent().StringFixed(2),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func newOutcomeResponse(o service.Outcome) OutcomeResponse {
	return OutcomeResponse{Outcome: o, OK: o.OK(), Error: o.ErrorText()}
}

func outcomeStatus(o service.Outcome) int {
	switch o.Status {
	case service.StatusFailed:
		return http.StatusInternalServerError
	case service.StatusSkipped:
		if errors.Is(o.Err, service.ErrRunInProgress) {
			return http.StatusConflict
		}
		return http.StatusOK
	default:
		return http.StatusOK
	}
}
