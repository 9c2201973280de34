package session

import (
	"context"

	"github.com/streetrace-ai/streetrace/flowevent"
)

// Validate scans s.Events for orphaned function_call/function_response
// pairs and, if any mutation is needed, persists a repaired event list
// via store.ReplaceEvents. If no mutation is needed, it returns the same
// *Session instance unchanged (identity, not content equality — callers
// may rely on pointer identity to skip a write).
//
// Algorithm: walk events in order, tracking the set of
// pending function_call ids opened by the current event. Upon the next
// event, remove ids whose function_responses appear in it. Any id still
// pending when the call's own event is finalized (i.e. never answered by
// the next adjacent event) is orphaned, and the whole event containing
// that call is dropped. Any function_response whose id has no matching
// prior call is likewise orphaned and its event dropped. Events with no
// content parts (including non-content events such as escalations) are
// kept as they are and skipped for pairing: they neither answer nor
// expire a pending call.
func Validate(ctx context.Context, store Store, s *Session) (*Session, error) {
	kept, mutated := validateEvents(s.Events)
	if !mutated {
		return s, nil
	}
	return store.ReplaceEvents(ctx, s, kept)
}

func validateEvents(events []flowevent.Event) ([]flowevent.Event, bool) {
	dropped := make(map[int]bool)
	// pending tracks function_call ids opened by the immediately
	// preceding event that were not already answered within that same
	// event; each entry expires after the very next event is checked.
	pending := map[string]int{} // id -> origin event index

	for i, ev := range events {
		ce, isContent := ev.(*flowevent.ContentEvent)
		if !isContent || len(ce.Parts) == 0 {
			// Empty-content events take no part in pairing.
			continue
		}
		var calls, responses map[string]bool
		if isContent {
			calls, responses = map[string]bool{}, map[string]bool{}
			for _, p := range ce.Parts {
				switch part := p.(type) {
				case flowevent.FunctionCallPart:
					calls[part.ID] = true
				case flowevent.FunctionResponsePart:
					responses[part.ID] = true
				}
			}
		}

		// Resolve pending calls from the prior event against this
		// event's responses.
		for id := range responses {
			if origin, ok := pending[id]; ok {
				delete(pending, id)
				_ = origin
			} else if !calls[id] {
				// Orphan response with no matching call anywhere adjacent.
				dropped[i] = true
			}
		}

		// Any pending call that this event didn't answer is orphaned.
		for id, origin := range pending {
			dropped[origin] = true
			delete(pending, id)
		}

		// Calls opened in this event and not answered within the same
		// event become pending against the next event.
		for id := range calls {
			if !responses[id] {
				pending[id] = i
			}
		}
	}
	for _, origin := range pending {
		dropped[origin] = true
	}

	if len(dropped) == 0 {
		return events, false
	}

	kept := make([]flowevent.Event, 0, len(events)-len(dropped))
	for i, ev := range events {
		if !dropped[i] {
			kept = append(kept, ev)
		}
	}
	return kept, true
}
