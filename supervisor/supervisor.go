// Package supervisor drives one user-input -> events -> final-response
// turn: resolving or creating a session, constructing a workload for
// the configured name, dispatching every event onto an
// eventstream.Sink, and capturing the turn's final response. Each turn
// mints a fresh run.Record (running, then completed/failed) when a
// run.Store is configured.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streetrace-ai/streetrace/agentrunner"
	"github.com/streetrace-ai/streetrace/eventstream"
	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/run"
	"github.com/streetrace-ai/streetrace/session"
	"github.com/streetrace-ai/streetrace/telemetry"
	"github.com/streetrace-ai/streetrace/tool"
	"github.com/streetrace-ai/streetrace/workflow"
	"github.com/streetrace-ai/streetrace/workload"
)

// InputContext is the single user turn's input and, once Handle
// completes, its captured output.
type InputContext struct {
	App       string
	User      string
	SessionID string
	Text      string

	// FinalResponse is set by Handle once the turn completes, following
	// three capture rules: final event text, escalation placeholder, or
	// the "did not produce" fallback.
	FinalResponse string
}

// WorkloadFactory is the narrow slice of *workload.Manager the
// supervisor needs; it is an interface (rather than a concrete
// *workload.Manager field) so tests can substitute a fake without
// discovering real `.sr`/`.yaml` definitions from disk.
type WorkloadFactory interface {
	CreateWorkload(models agentrunner.ModelResolver, tools *tool.Registry, ident string) (workload.Workload, error)
}

// Supervisor drives turns for one configured workload name against a
// session store and event sink.
type Supervisor struct {
	Workloads WorkloadFactory
	Models    agentrunner.ModelResolver
	Tools     *tool.Registry
	Sessions  session.Store
	Sink      eventstream.Sink
	Log       telemetry.Logger

	// Runs records per-turn run metadata (started/completed/failed) for
	// observability, keyed by a freshly minted run ID. Nil disables run
	// tracking entirely; it is not required for correct turn handling.
	Runs run.Store

	// PostProcess runs exactly once per turn that produced a final
	// event. May be nil.
	PostProcess session.PostProcessHook
}

// Handle resolves or creates a session, creates a workload for
// workloadName, runs it to completion, dispatches every event to Sink,
// captures the final response into ic, validates/persists the
// resulting session, and — exactly once, only when a final event was
// observed — calls PostProcess.
//
// Workload/session/workflow creation errors are not swallowed: they
// fail fast and are returned directly. A PostProcess failure, by
// contrast, is reported as a UI error event but its underlying error is
// still propagated from Handle: the UI-error behavior is preserved but
// the exception is never masked from the caller.
func (s *Supervisor) Handle(ctx context.Context, workloadName string, ic *InputContext) error {
	now := time.Now().UTC()
	sess, err := session.GetOrCreate(ctx, s.Sessions, ic.App, ic.User, ic.SessionID, now)
	if err != nil {
		return fmt.Errorf("supervisor: resolve session: %w", err)
	}
	// PostProcess receives the session as loaded, before this turn's
	// events are appended below.
	snapshot := *sess
	original := &snapshot

	wl, err := s.Workloads.CreateWorkload(s.Models, s.Tools, workloadName)
	if err != nil {
		return fmt.Errorf("supervisor: create workload %q: %w", workloadName, err)
	}
	defer func() {
		if cerr := wl.Close(ctx); cerr != nil && s.Log != nil {
			s.Log.Warn(ctx, "supervisor: workload close failed", "workload", workloadName, "error", cerr)
		}
	}()

	runID := uuid.NewString()
	s.upsertRun(ctx, run.Record{RunID: runID, SessionID: sess.ID, Status: run.StatusRunning, StartedAt: now})

	wctx := workflow.NewContext(ic.Text)
	wctx.RunID = runID
	events, _, runErr := wl.Run(ctx, wctx)
	// Even on a failing run, dispatch whatever events were produced
	// before the failure so observers see a partial trace.
	sawFinal := s.dispatchAndCapture(ctx, ic, events)

	finalStatus := run.StatusCompleted
	if runErr != nil {
		finalStatus = run.StatusFailed
	}
	s.upsertRun(ctx, run.Record{RunID: runID, SessionID: sess.ID, Status: finalStatus, StartedAt: now})

	sess.Events = append(sess.Events, events...)
	validated, verr := session.Validate(ctx, s.Sessions, sess)
	if verr == nil && validated == sess {
		// Validate writes only when it repairs; persist the turn's log here.
		validated, verr = s.Sessions.ReplaceEvents(ctx, sess, sess.Events)
	}
	if verr == nil {
		sess = validated
	} else if s.Log != nil {
		s.Log.Warn(ctx, "supervisor: session validate failed", "session", sess.ID, "error", verr)
	}

	if runErr != nil {
		return fmt.Errorf("supervisor: run workload %q: %w", workloadName, runErr)
	}

	if !sawFinal {
		ic.FinalResponse = "Agent did not produce a final response."
	}

	if sawFinal && s.PostProcess != nil {
		if ppErr := s.PostProcess(ctx, ic.Text, original); ppErr != nil {
			s.dispatch(ctx, ic, flowevent.NewTextEvent(workloadName, ppErr.Error(), true))
			if s.Log != nil {
				s.Log.Error(ctx, "supervisor: post_process failed", "workload", workloadName, "error", ppErr)
			}
			return fmt.Errorf("supervisor: post_process: %w", ppErr)
		}
	}

	return nil
}

// upsertRun records a run status transition when a run.Store is
// configured; failures are logged, never propagated, since run tracking
// is observability, not turn correctness.
func (s *Supervisor) upsertRun(ctx context.Context, rec run.Record) {
	if s.Runs == nil {
		return
	}
	if err := s.Runs.Upsert(ctx, rec); err != nil && s.Log != nil {
		s.Log.Warn(ctx, "supervisor: run upsert failed", "run", rec.RunID, "error", err)
	}
}

// dispatchAndCapture sends every event to Sink and applies the
// final-response capture rules as it goes; it reports whether a final
// event was observed at all.
func (s *Supervisor) dispatchAndCapture(ctx context.Context, ic *InputContext, events []flowevent.Event) bool {
	sawFinal := false
	for _, ev := range events {
		s.dispatch(ctx, ic, ev)

		ce, ok := ev.(*flowevent.ContentEvent)
		if !ok || !ce.IsFinal {
			continue
		}
		sawFinal = true
		switch {
		case ce.Actions.Escalate && ce.FirstText() == "":
			msg := ce.ErrorMessage
			if msg == "" {
				msg = "No specific message."
			}
			ic.FinalResponse = "Agent escalated: " + msg
		case !ce.Actions.Escalate:
			ic.FinalResponse = ce.FirstText()
		}
	}
	return sawFinal
}

// dispatch publishes one event to Sink, logging (not failing the turn
// on) a transport error.
func (s *Supervisor) dispatch(ctx context.Context, ic *InputContext, ev flowevent.Event) {
	if s.Sink == nil {
		return
	}
	wireEv := eventstream.FromFlowEvent(ic.SessionID, ic.SessionID, ev)
	if err := s.Sink.Send(ctx, wireEv); err != nil && s.Log != nil {
		s.Log.Warn(ctx, "supervisor: dispatch event failed", "session", ic.SessionID, "error", err)
	}
}
