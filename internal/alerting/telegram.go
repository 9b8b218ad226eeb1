package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken   string
	chatID     string
	baseURL    string
	client     *http.Client
	summarizer Summarizer
	logger     zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, summarizer Summarizer, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if summarizer == nil {
		summarizer = TemplateSummarizer{}
	}

	return &TelegramNotifier{
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		summarizer: summarizer,
		logger:     logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// telegramMaxChars is the sendMessage text limit.
const telegramMaxChars = 4096

// Notify 调用 sendMessage API 推送文本，超长摘要按行拆分为多条消息。
func (n *TelegramNotifier) Notify(ctx context.Context, digest Digest) error {
	msg, err := n.summarizer.Summarize(ctx, digest)
	if err != nil {
		return fmt.Errorf("summarize digest: %w", err)
	}

	chunks := splitMessage(msg.Subject+"\n\n"+msg.Body, telegramMaxChars)
	for i, chunk := range chunks {
		if err := n.sendMessage(ctx, chunk); err != nil {
			return fmt.Errorf("telegram part %d/%d: %w", i+1, len(chunks), err)
		}
	}

	n.logger.Info().
		Str("run_id", digest.RunID).
		Int("events", len(digest.Events)).
		Int("parts", len(chunks)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most limit runes, breaking on line
// boundaries. A single line longer than limit is cut mid-line.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if part := strings.TrimRight(current.String(), "\n"); part != "" {
			parts = append(parts, part)
		}
		current.Reset()
		size = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		if size+len(runes) > limit {
			flush()
		}
		current.WriteString(string(runes))
		size += len(runes)
	}
	flush()
	return parts
}

var _ Notifier = (*TelegramNotifier)(nil)
