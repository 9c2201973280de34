// Package parallelexec is the parallel executor for `parallel do`
// blocks: a fail-fast fan-out/join over goroutines, using a
// futures-over-goroutines shape for branch results and a fan-out bus
// for event relaying.
//
// Each branch writes its result into the shared Context through
// Context.SetDisjoint: branches only ever write disjoint targets, so no
// lock discipline beyond what Context already provides is required for
// the writes themselves. Events are relayed to a single buffered
// channel and drained by one goroutine so each branch's own events stay
// in order while interleaving across branches is left nondeterministic,
// matching a real goroutine scheduler.
package parallelexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/workflow"
)

// Executor implements workflow.ParallelExecutor.
type Executor struct {
	Agents workflow.AgentRunner
	Flows  workflow.FlowRunner
}

// New builds an Executor.
func New(agents workflow.AgentRunner, flows workflow.FlowRunner) *Executor {
	return &Executor{Agents: agents, Flows: flows}
}

// RunParallel fans out one goroutine per spec, writes each branch's
// result to its disjoint target, and joins. The first branch error
// cancels the rest and is returned; already-emitted events up to that
// point are still returned alongside it so the caller can surface a
// partial trace.
func (x *Executor) RunParallel(ctx context.Context, wctx *workflow.Context, specs []workflow.RunSpec) ([]flowevent.Event, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventsCh := make(chan flowevent.Event, len(specs)*8)
	errCh := make(chan error, len(specs))

	var wg sync.WaitGroup
	wg.Add(len(specs))
	for _, spec := range specs {
		spec := spec
		go func() {
			defer wg.Done()
			err := x.runBranch(branchCtx, wctx, spec, eventsCh)
			if err != nil {
				errCh <- fmt.Errorf("parallelexec: branch %q: %w", spec.Target, err)
				cancel()
			}
		}()
	}

	relayDone := make(chan struct{})
	var events []flowevent.Event
	go func() {
		defer close(relayDone)
		for ev := range eventsCh {
			events = append(events, ev)
		}
	}()

	wg.Wait()
	close(eventsCh)
	<-relayDone

	select {
	case err := <-errCh:
		return events, err
	default:
		return events, nil
	}
}

// runBranch executes one spec (agent or sub-flow) and writes its result
// disjointly into wctx under spec.Target.
func (x *Executor) runBranch(ctx context.Context, wctx *workflow.Context, spec workflow.RunSpec, eventsCh chan<- flowevent.Event) error {
	var (
		evs    []flowevent.Event
		result any
	)

	if spec.IsFlow {
		if x.Flows == nil {
			return fmt.Errorf("no flow runner configured")
		}
		fevs, ret, err := x.Flows.RunFlow(ctx, wctx, spec.Agent)
		if err != nil {
			return err
		}
		evs, result = fevs, ret
	} else {
		if x.Agents == nil {
			return fmt.Errorf("no agent runner configured")
		}
		outcome, err := x.Agents.RunAgent(ctx, wctx, spec.Agent, spec.Input)
		if err != nil {
			return err
		}
		evs, result = outcome.Events, outcome.FinalText
		if outcome.Escalated {
			wctx.MarkEscalated()
		}
	}

	for _, ev := range evs {
		select {
		case eventsCh <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if spec.Target != "" {
		wctx.SetDisjoint(spec.Target, result)
	}
	return nil
}
