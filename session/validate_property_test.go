package session

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/session/inmem"
)

// genEventScript generates a random sequence of event "shapes" — text,
// a function call with an id, or a function response against an id drawn
// from a small pool — so both matched and orphaned pairs occur.
func genEventScript() gopter.Gen {
	return gen.SliceOfN(12, gen.IntRange(0, 2)).FlatMap(func(kinds any) gopter.Gen {
		ks := kinds.([]int)
		return gen.SliceOfN(len(ks), gen.IntRange(0, 3)).Map(func(ids []int) []flowevent.Event {
			events := make([]flowevent.Event, len(ks))
			for i, k := range ks {
				id := fmt.Sprintf("id-%d", ids[i])
				switch k {
				case 0:
					events[i] = textEvent("text")
				case 1:
					events[i] = callEvent(id)
				default:
					events[i] = responseEvent(id)
				}
			}
			return events
		})
	}, reflect.TypeOf([]flowevent.Event{}))
}

// TestValidateIsIdempotentProperty verifies a universal invariant: for
// every session S, validate(validate(S)) == validate(S).
func TestValidateIsIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("validating a validated session changes nothing", prop.ForAll(
		func(events []flowevent.Event) bool {
			ctx := context.Background()
			store := inmem.New()
			s, err := store.CreateSession(ctx, "app", "user", "s", fixedTime())
			if err != nil {
				return false
			}
			s.Events = events

			once, err := Validate(ctx, store, s)
			if err != nil {
				return false
			}
			twice, err := Validate(ctx, store, once)
			if err != nil {
				return false
			}
			return twice == once && len(twice.Events) == len(once.Events)
		},
		genEventScript(),
	))

	properties.TestingRun(t)
}

// TestValidateLeavesNoOrphanCallsProperty verifies a universal
// invariant: every function_call id in validate(S).events has a
// matching function_response in the next adjacent event.
func TestValidateLeavesNoOrphanCallsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("no function_call in a validated session is left unanswered", prop.ForAll(
		func(events []flowevent.Event) bool {
			ctx := context.Background()
			store := inmem.New()
			s, err := store.CreateSession(ctx, "app", "user", "s", fixedTime())
			if err != nil {
				return false
			}
			s.Events = events

			out, err := Validate(ctx, store, s)
			if err != nil {
				return false
			}
			for i, ev := range out.Events {
				ce, ok := ev.(*flowevent.ContentEvent)
				if !ok {
					continue
				}
				for _, p := range ce.Parts {
					call, ok := p.(flowevent.FunctionCallPart)
					if !ok {
						continue
					}
					if !answeredBy(out.Events, i, call.ID) {
						return false
					}
				}
			}
			return true
		},
		genEventScript(),
	))

	properties.TestingRun(t)
}

func answeredBy(events []flowevent.Event, callIdx int, id string) bool {
	for _, idx := range []int{callIdx, callIdx + 1} {
		if idx < 0 || idx >= len(events) {
			continue
		}
		ce, ok := events[idx].(*flowevent.ContentEvent)
		if !ok {
			continue
		}
		for _, p := range ce.Parts {
			if resp, ok := p.(flowevent.FunctionResponsePart); ok && resp.ID == id {
				return true
			}
		}
	}
	return false
}

func fixedTime() (t time.Time) {
	t, _ = time.Parse(time.RFC3339, "2026-01-01T00:00:00Z")
	return t
}
