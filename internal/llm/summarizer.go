package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/metrics"
)

const (
	defaultMaxTokens  = 1024
	summaryMaxTokens  = 256
	summaryTimeout    = 30 * time.Second
	maxTranscriptRune = 24000
)

const summaryPrompt = `Summarize this customer support conversation in one short paragraph for the support team.
State what the customer needed and whether staff resolved it. Reply with the summary only.

`

// ErrEmptySummary is returned when the provider answers with no text.
var ErrEmptySummary = errors.New("llm returned an empty summary")

// TranscriptSummarizer condenses ticket transcripts with an LLM client.
type TranscriptSummarizer struct {
	client Client
	model  string
	logger *logger.Logger
}

// NewTranscriptSummarizer creates a summarizer. An empty model selects the
// provider default.
func NewTranscriptSummarizer(client Client, model string, log *logger.Logger) *TranscriptSummarizer {
	return &TranscriptSummarizer{
		client: client,
		model:  model,
		logger: log,
	}
}

// Summarize returns a one paragraph summary of transcript.
func (s *TranscriptSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	if r := []rune(transcript); len(r) > maxTranscriptRune {
		// keep the most recent part of long conversations
		transcript = string(r[len(r)-maxTranscriptRune:])
	}

	start := time.Now()
	resp, err := s.client.Complete(ctx, &CompletionRequest{
		Model: s.model,
		Messages: []ChatMessage{
			{Role: "user", Content: summaryPrompt + transcript},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: 0.2,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLM(s.client.Name(), status, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	s.logger.Debug("transcript summarized",
		zap.String("provider", s.client.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return summary, nil
}
