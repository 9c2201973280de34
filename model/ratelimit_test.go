package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRatelimitClient struct {
	calls int
	err   error
}

func (f *fakeRatelimitClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Message: Message{Role: RoleAssistant}}, nil
}
func (f *fakeRatelimitClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	return nil, &ErrStreamingUnsupported{}
}
func (f *fakeRatelimitClient) ContextWindow(modelID string) int { return 123 }

func TestAdaptiveRateLimiterDelegatesAndReportsContextWindow(t *testing.T) {
	fake := &fakeRatelimitClient{}
	limiter := NewAdaptiveRateLimiter(600000, 600000) // generous budget, should not block
	wrapped := limiter.Middleware(fake)

	resp, err := wrapped.Complete(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 123, wrapped.ContextWindow("m"))
}

func TestAdaptiveRateLimiterBacksOffOnRateLimitedError(t *testing.T) {
	rateLimited := NewProviderError("fake", "complete", ErrKindRateLimited, 429, "slow down", nil)
	fake := &fakeRatelimitClient{err: rateLimited}
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	wrapped := limiter.Middleware(fake)

	before := limiter.currentTPM
	_, err := wrapped.Complete(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	assert.Less(t, limiter.currentTPM, before)
}

func TestAdaptiveRateLimiterProbesBackUpAfterSuccess(t *testing.T) {
	fake := &fakeRatelimitClient{}
	limiter := NewAdaptiveRateLimiter(1000, 2000)
	limiter.currentTPM = 1000
	wrapped := limiter.Middleware(fake)

	_, err := wrapped.Complete(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	assert.Greater(t, limiter.currentTPM, 1000.0)
	assert.LessOrEqual(t, limiter.currentTPM, 2000.0)
}

func TestAdaptiveRateLimiterMiddlewareNilClient(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	assert.Nil(t, limiter.Middleware(nil))
}

func TestEstimateTokensNonZeroFloor(t *testing.T) {
	assert.Equal(t, 500, estimateTokens(&Request{}))
	req := &Request{Messages: []Message{{Parts: []Part{TextPart{Text: "abc"}}}}}
	assert.Equal(t, 501, estimateTokens(req))
}

func TestAdaptiveRateLimiterWaitRejectsRequestOverBurst(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60, 60) // 1 token/sec, tiny burst
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// A request whose estimated cost exceeds the 60-token burst is
	// rejected with an error at once rather than waiting on ctx.
	err := limiter.wait(ctx, &Request{Messages: []Message{{Parts: []Part{TextPart{Text: string(make([]byte, 100000))}}}}})
	assert.Error(t, err)
}
