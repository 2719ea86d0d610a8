package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/ziadkadry99/hygaudit/internal/llm"
)

// LLMOptions tunes LLMService.
type LLMOptions struct {
	Model       string
	MaxTokens   int
	Concurrency int // parallel provider calls; below 1 means 1
}

// LLMService asks a model for the report summary and composes the rest of
// the artifact from the snapshot.
type LLMService struct {
	provider llm.Provider
	opts     LLMOptions
	sem      chan struct{}
	logger   zerolog.Logger
}

// NewLLMService creates a service backed by provider.
func NewLLMService(provider llm.Provider, opts LLMOptions, logger zerolog.Logger) *LLMService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &LLMService{
		provider: provider,
		opts:     opts,
		sem:      make(chan struct{}, opts.Concurrency),
		logger:   logger.With().Str("component", "llm-service").Str("provider", provider.Name()).Logger(),
	}
}

// Submit queues req behind the concurrency limit and returns immediately.
func (s *LLMService) Submit(ctx context.Context, req Request) (Handle, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return nil, err
	}

	return startAsync(ctx, req.ReportID, func(ctx context.Context) (string, error) {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		defer func() { <-s.sem }()

		resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
			Model:       s.opts.Model,
			Messages:    messages,
			MaxTokens:   s.opts.MaxTokens,
			Temperature: 0.2,
		})
		if err != nil {
			return "", err
		}

		summary := strings.TrimSpace(resp.Content)
		if summary == "" {
			return "", fmt.Errorf("%s returned an empty summary", s.provider.Name())
		}
		s.logger.Debug().
			Str("report_id", req.ReportID).
			Int("input_tokens", resp.InputTokens).
			Int("output_tokens", resp.OutputTokens).
			Msg("summary generated")
		return Compose(req, summary), nil
	}), nil
}

// Cancel aborts the provider call behind h.
func (s *LLMService) Cancel(ctx context.Context, h Handle) error {
	return cancelAsync(h)
}
