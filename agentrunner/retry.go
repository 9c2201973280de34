// Package agentrunner is the Agent Runner: turning a dsl.AgentDef plus a
// prompt into a running model.Client conversation, with retry, schema
// validation, and escalation detection.
package agentrunner

import "time"

// Retry policy constants: incrementing (not exponential) backoff.
const (
	retryStart = 30 * time.Second
	retryStep  = 30 * time.Second
	retryCap   = 10 * time.Minute
	maxAttempt = 7
)

// Decision is the pure output of the retry state machine: given an
// attempt number and the error that just occurred, should the caller
// retry, and after how long, or has retry been exhausted.
type Decision struct {
	Retry     bool
	After     time.Duration
	Exhausted bool
}

// NextDelay returns the incrementing backoff for the attempt that is
// about to be made (1-based): 30s, 60s, 90s, ... capped at 10m.
func NextDelay(attempt int) time.Duration {
	d := retryStart + time.Duration(attempt-1)*retryStep
	if d > retryCap {
		d = retryCap
	}
	return d
}

// Decide applies the policy: retryable errors get a backoff decision up
// to maxAttempt tries; non-retryable errors or attempts beyond the cap
// are reported as exhausted so the caller can surface the failure.
func Decide(attempt int, retryable bool) Decision {
	if !retryable {
		return Decision{Exhausted: true}
	}
	if attempt >= maxAttempt {
		return Decision{Exhausted: true}
	}
	return Decision{Retry: true, After: NextDelay(attempt)}
}
