package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cruise-drop-alerts/internal/offering"
	"cruise-drop-alerts/internal/service"
)

type mockRunner struct {
	outcome    service.Outcome
	runCalls   int
	testEvents []offering.PriceDropEvent
	testCalls  int
}

func (m *mockRunner) RunOnce(context.Context) service.Outcome {
	m.runCalls++
	return m.outcome
}

func (m *mockRunner) SendTestNotification(_ context.Context, events []offering.PriceDropEvent) service.Outcome {
	m.testCalls++
	m.testEvents = events
	return m.outcome
}

type mockDrops struct {
	events    []offering.PriceDropEvent
	err       error
	lastLimit int
}

func (m *mockDrops) ListRecentDrops(_ context.Context, limit int) ([]offering.PriceDropEvent, error) {
	m.lastLimit = limit
	return m.events, m.err
}

func newTestServer(r Runner, d DropLister) *Server {
	return NewServer(Options{Listen: "127.0.0.1:0", RequestTimeout: time.Second, DefaultLimit: 10}, r, d, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&mockRunner{}, &mockDrops{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestTriggerRun(t *testing.T) {
	tests := []struct {
		name       string
		outcome    service.Outcome
		wantStatus int
		wantOK     bool
	}{
		{"completed", service.Outcome{RunID: "r1", Status: service.StatusCompleted, Message: "no price drops"}, http.StatusOK, true},
		{"skipped config", service.Outcome{Status: service.StatusSkipped, Err: service.ErrNoRecipient}, http.StatusOK, true},
		{"skipped overlap", service.Outcome{Status: service.StatusSkipped, Err: service.ErrRunInProgress}, http.StatusConflict, true},
		{"failed", service.Outcome{Status: service.StatusFailed, Err: errors.New("db down")}, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{outcome: tt.outcome}
			rec := do(t, newTestServer(runner, &mockDrops{}), http.MethodPost, "/api/v1/runs", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, 1, runner.runCalls)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantOK, resp["ok"])
			assert.Equal(t, string(tt.outcome.Status), resp["status"])
			if tt.outcome.Err != nil {
				assert.Equal(t, tt.outcome.Err.Error(), resp["error"])
			}
		})
	}
}

func TestSendTestNotification(t *testing.T) {
	t.Run("empty body uses samples", func(t *testing.T) {
		runner := &mockRunner{outcome: service.Outcome{Status: service.StatusCompleted}}
		rec := do(t, newTestServer(runner, &mockDrops{}), http.MethodPost, "/api/v1/notifications/test", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, runner.testCalls)
		assert.Empty(t, runner.testEvents)
	})

	t.Run("custom events", func(t *testing.T) {
		runner := &mockRunner{outcome: service.Outcome{Status: service.StatusCompleted}}
		body := `{"events":[{"vendor_id":"MSC-1","ship_name":"MSC Bellissima","sail_date":"2025-06-01","deal_code":"BELLA","grade_code":"BAL","price_from":"1200.00","price_to":"950.00"}]}`
		rec := do(t, newTestServer(runner, &mockDrops{}), http.MethodPost, "/api/v1/notifications/test", body)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, runner.testEvents, 1)
		ev := runner.testEvents[0]
		assert.Equal(t, "MSC-1|BELLA|BAL", ev.Key)
		assert.Equal(t, "01 Jun 2025", ev.SailDate)
		assert.True(t, ev.PriceFrom.Equal(decimal.RequireFromString("1200")))
	})

	invalid := []struct {
		name string
		body string
		msg  string
	}{
		{"missing grade", `{"events":[{"vendor_id":"v","ship_name":"s","price_from":"2","price_to":"1"}]}`, "GradeCode is required"},
		{"non numeric", `{"events":[{"vendor_id":"v","ship_name":"s","grade_code":"g","price_from":"abc","price_to":"1"}]}`, "must be a decimal number"},
		{"not a drop", `{"events":[{"vendor_id":"v","ship_name":"s","grade_code":"g","price_from":"1","price_to":"2"}]}`, "price_to must be positive"},
		{"bad json", `{"events":`, "invalid request body"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			rec := do(t, newTestServer(runner, &mockDrops{}), http.MethodPost, "/api/v1/notifications/test", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.msg)
			assert.Zero(t, runner.testCalls)
		})
	}
}

func TestListDrops(t *testing.T) {
	drops := &mockDrops{events: []offering.PriceDropEvent{{
		Key:       "MSC-1|BELLA|BAL",
		PriceFrom: decimal.RequireFromString("1200"),
		PriceTo:   decimal.RequireFromString("950"),
	}}}
	s := newTestServer(&mockRunner{}, drops)

	rec := do(t, s, http.MethodGet, "/api/v1/drops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, drops.lastLimit)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "MSC-1|BELLA|BAL", resp[0]["key"])
	assert.Equal(t, "250.00", resp[0]["amount"])
	assert.Equal(t, "20.83", resp[0]["percent"])

	rec = do(t, s, http.MethodGet, "/api/v1/drops?limit=3", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, drops.lastLimit)

	rec = do(t, s, http.MethodGet, "/api/v1/drops?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	drops.err = errors.New("boom")
	rec = do(t, s, http.MethodGet, "/api/v1/drops", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
