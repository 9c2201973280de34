package model

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// AdaptiveRateLimiter applies an AIMD-style token bucket on top of a
// Client. It estimates the token cost of each request, blocks callers
// until capacity is available, and adjusts its effective tokens-per-
// minute budget in response to rate-limit signals from the provider.
//
// The limiter is process-local: it sits at the provider client boundary
// within this one runtime, matching spec.md §1's single-process scope
// (no cross-process coordination is attempted here).
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial and
// maximum tokens-per-minute budget, clamping maxTPM to initialTPM when
// it would otherwise be lower.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware wraps next with the limiter's Complete/Stream gating.
func (l *AdaptiveRateLimiter) Middleware(next Client) Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    Client
	limiter *AdaptiveRateLimiter
}

func (c *limitedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.limiter.observe(err)
	return stream, err
}

func (c *limitedClient) ContextWindow(modelID string) int { return c.next.ContextWindow(modelID) }

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req *Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

// observe adjusts the budget after a completion: back off on a
// rate-limited response, otherwise probe back toward maxTPM.
func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if pe, ok := AsProviderError(err); ok && pe.Kind == ErrKindRateLimited {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setTPMLocked(newTPM)
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setTPMLocked(newTPM)
}

func (l *AdaptiveRateLimiter) setTPMLocked(newTPM float64) {
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens computes a cheap heuristic for the token cost of a
// request's transcript: characters in text and string tool results,
// converted at a fixed ratio, plus a buffer for system/provider
// framing.
func estimateTokens(req *Request) int {
	chars := 0
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			switch v := p.(type) {
			case TextPart:
				chars += len(v.Text)
			case ToolResultPart:
				chars += len(v.Content)
			}
		}
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
