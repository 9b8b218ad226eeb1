package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"cruise-drop-alerts/internal/offering"
)

func largeDigest(n int) Digest {
	d := testDigest()
	d.Events = make([]offering.PriceDropEvent, 0, n)
	for i := 0; i < n; i++ {
		d.Events = append(d.Events, offering.PriceDropEvent{
			Key:        fmt.Sprintf("v%d|EARLY|BAL", i),
			ShipName:   fmt.Sprintf("Aurora %03d", i),
			SailDate:   "01 Jun 2025",
			VendorID:   fmt.Sprintf("v%d", i),
			DealCode:   "EARLY",
			GradeCode:  "BAL",
			GradeName:  "Balcony",
			PriceFrom:  decimal.NewFromInt(1200),
			PriceTo:    decimal.NewFromInt(950),
			DetectedAt: d.DetectedAt,
		})
	}
	return d
}

func TestTelegramNotifierSplitsLargeDigest(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		text := payload["text"]
		mu.Lock()
		texts = append(texts, text)
		mu.Unlock()
		if utf8.RuneCountInString(text) > telegramMaxChars {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "message is too long"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	digest := largeDigest(200)
	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, nil, testLogger())
	if err := notifier.Notify(context.Background(), digest); err != nil {
		t.Fatalf("large digest should be delivered in parts: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) < 2 {
		t.Fatalf("expected several messages, got %d", len(texts))
	}
	joined := strings.Join(texts, "\n")
	for _, ev := range digest.Events {
		if strings.Count(joined, ev.ShipName+",") != 1 {
			t.Fatalf("%s should appear exactly once across parts", ev.ShipName)
		}
	}
	if !strings.HasPrefix(texts[0], "Cruise price drops: 200") {
		t.Fatalf("first part should carry the subject: %q", texts[0][:40])
	}
}

func TestSplitMessage(t *testing.T) {
	if parts := splitMessage("short\nmessage", 20); len(parts) != 1 || parts[0] != "short\nmessage" {
		t.Fatalf("short text should stay whole: %q", parts)
	}

	parts := splitMessage("aaaa\nbbbb\ncccc", 10)
	if len(parts) != 2 || parts[0] != "aaaa\nbbbb" || parts[1] != "cccc" {
		t.Fatalf("unexpected line split: %q", parts)
	}

	parts = splitMessage(strings.Repeat("é", 25)+"\nend", 10)
	for _, p := range parts {
		if utf8.RuneCountInString(p) > 10 {
			t.Fatalf("part exceeds limit: %q", p)
		}
	}
	if strings.Join(parts, "") != strings.Repeat("é", 25)+"\nend" {
		t.Fatalf("long line lost content: %q", parts)
	}
}
