// Package extract sends review samples to an LLM provider and turns the
// response into structured findings.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/pkg/models"
)

const (
	// minSampleLen drops samples too short to carry signal.
	minSampleLen = 10
	// maxSampleLen bounds each sample's contribution to the payload.
	maxSampleLen = 500

	maxResponseTokens = 4096
)

// Extractor is the pipeline-facing interface.
type Extractor interface {
	Extract(ctx context.Context, appID string, samples []models.Review) ([]*models.Finding, error)
}

// Service owns preprocessing, the retry budget, and response parsing.
// Enum validation of individual findings is the orchestrator's concern.
type Service struct {
	provider    Provider
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewService creates an extraction service. maxAttempts counts the first
// try; baseBackoff doubles after each retry (5s → 10s → 20s by default),
// keeping total wait inside the pipeline's timeout budget.
func NewService(provider Provider, maxAttempts int, baseBackoff time.Duration) *Service {
	return &Service{
		provider:    provider,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		sleep:       sleepCtx,
	}
}

// Extract preprocesses samples, calls the provider with retries, and
// returns parsed findings with quotes capped at two per finding.
func (s *Service) Extract(ctx context.Context, appID string, samples []models.Review) ([]*models.Finding, error) {
	prepared := preprocess(samples)
	if len(prepared) == 0 {
		return nil, ErrNoValidInput
	}

	pb := PromptBuilder{}
	req := CompletionRequest{
		System:      pb.BuildSystem(),
		Prompt:      pb.BuildUser(appID, prepared),
		MaxTokens:   maxResponseTokens,
		Temperature: 0, // deterministic mode for reproducibility
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.provider.Complete(ctx, req)
		if err == nil {
			findings, perr := parseFindings(raw)
			if perr == nil {
				return findings, nil
			}
			err = perr
		}
		lastErr = err

		if !Retryable(err) {
			return nil, err
		}
		if attempt == s.maxAttempts {
			break
		}

		delay := s.baseBackoff << (attempt - 1)
		slog.Warn("extraction attempt failed, retrying",
			"provider", s.provider.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if serr := s.sleep(ctx, delay); serr != nil {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("extraction failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// preprocess drops samples shorter than minSampleLen and truncates the
// rest to maxSampleLen before the payload is built.
func preprocess(samples []models.Review) []models.Review {
	out := make([]models.Review, 0, len(samples))
	for _, sample := range samples {
		if utf8.RuneCountInString(sample.Text) < minSampleLen {
			continue
		}
		sample.Text = truncateString(sample.Text, maxSampleLen)
		out = append(out, sample)
	}
	return out
}

// parseFindings strips optional code-fence wrapping and decodes the
// findings collection. Any shape mismatch is an ErrParse.
func parseFindings(raw string) ([]*models.Finding, error) {
	cleaned := stripCodeFence(raw)

	var envelope struct {
		Findings json.RawMessage `json:"findings"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(envelope.Findings) == 0 {
		return nil, fmt.Errorf("%w: missing findings collection", ErrParse)
	}

	var decoded []struct {
		Category    string             `json:"category"`
		Severity    string             `json:"severity"`
		Frequency   int                `json:"frequency"`
		Description string             `json:"description"`
		Quotes      []string           `json:"quotes"`
		Improvement models.Improvement `json:"improvement"`
	}
	if err := json.Unmarshal(envelope.Findings, &decoded); err != nil {
		return nil, fmt.Errorf("%w: findings is not a list: %v", ErrParse, err)
	}

	now := time.Now().UTC()
	findings := make([]*models.Finding, 0, len(decoded))
	for _, d := range decoded {
		quotes := d.Quotes
		if len(quotes) > models.MaxQuotesPerFinding {
			quotes = quotes[:models.MaxQuotesPerFinding]
		}
		findings = append(findings, &models.Finding{
			ID:          uuid.New(),
			Category:    d.Category,
			Severity:    d.Severity,
			Frequency:   d.Frequency,
			Description: d.Description,
			Quotes:      quotes,
			Improvement: d.Improvement,
			CreatedAt:   now,
		})
	}
	return findings, nil
}

// stripCodeFence removes a surrounding markdown fence like ```json ... ```.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithSleep overrides the backoff sleeper. Tests use this to observe
// delays without waiting.
func (s *Service) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Service {
	s.sleep = fn
	return s
}

var _ Extractor = (*Service)(nil)
