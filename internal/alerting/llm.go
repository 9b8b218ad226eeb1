package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultLLMTimeout = 30 * time.Second
	subjectPrefix     = "subject:"

	summarySystemPrompt = `You write short plain-text emails announcing cruise price drops.
Reply with a first line "Subject: <subject>", then a blank line, then the body.
Mention every offering exactly once with its old and new price. No markdown, no HTML.`
)

// LLMOptions configure the OpenAI-compatible summarizer.
type LLMOptions struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LLMSummarizer asks a chat-completions API for the digest text and falls
// back to another Summarizer when the call fails.
type LLMSummarizer struct {
	opts       LLMOptions
	httpClient *http.Client
	fallback   Summarizer
	logger     zerolog.Logger
}

// NewLLMSummarizer creates a summarizer for OpenAI-compatible APIs.
func NewLLMSummarizer(opts LLMOptions, fallback Summarizer, logger zerolog.Logger) *LLMSummarizer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultLLMTimeout
	}
	if fallback == nil {
		fallback = TemplateSummarizer{}
	}
	return &LLMSummarizer{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		fallback:   fallback,
		logger:     logger.With().Str("component", "llm_summarizer").Logger(),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Summarize returns the generated message, or the fallback rendering on any failure.
func (s *LLMSummarizer) Summarize(ctx context.Context, digest Digest) (Message, error) {
	msg, err := s.generate(ctx, digest)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", digest.RunID).Msg("summary generation failed; using template")
		return s.fallback.Summarize(ctx, digest)
	}
	return msg, nil
}

func (s *LLMSummarizer) generate(ctx context.Context, digest Digest) (Message, error) {
	if s.opts.APIKey == "" {
		return Message{}, errors.New("LLM API key is empty")
	}

	// the template body doubles as the factual prompt
	facts := renderDigest(digest)
	reqBody := chatRequest{
		Model: s.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: facts.Body},
		},
		Temperature: 0.2,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.APIURL, bytes.NewReader(payload))
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.opts.APIKey))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Message{}, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return Message{}, errors.Errorf("LLM API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return Message{}, errors.Wrap(err, "failed to unmarshal response")
	}
	if chatResp.Error != nil {
		return Message{}, errors.Errorf("LLM API error: %s (type: %s)", chatResp.Error.Message, chatResp.Error.Type)
	}
	if len(chatResp.Choices) == 0 {
		return Message{}, errors.New("LLM API returned no choices")
	}

	return parseGenerated(chatResp.Choices[0].Message.Content, facts.Subject)
}

// parseGenerated splits "Subject: ..." from the body. Without a subject line
// the whole text is the body and defaultSubject is used.
func parseGenerated(text, defaultSubject string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, errors.New("LLM API returned empty content")
	}

	first, rest, _ := strings.Cut(text, "\n")
	if strings.HasPrefix(strings.ToLower(first), subjectPrefix) {
		subject := strings.TrimSpace(first[len(subjectPrefix):])
		body := strings.TrimSpace(rest)
		if subject == "" {
			subject = defaultSubject
		}
		if body == "" {
			return Message{}, errors.New("LLM API returned a subject without body")
		}
		return Message{Subject: subject, Body: body + "\n"}, nil
	}
	return Message{Subject: defaultSubject, Body: text + "\n"}, nil
}

var _ Summarizer = (*LLMSummarizer)(nil)
