package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streetrace-ai/streetrace/flowevent"
)

// wirePart/wireEvent give flowevent.Event's closed interface hierarchy a
// JSON envelope for Redis stream storage; flowevent itself stays free
// of any (de)serialization concern, keeping event types separate from
// their stream transport codec.
type wirePart struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitempty"`
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Response any            `json:"response,omitempty"`
}

type wireEvent struct {
	Kind         string         `json:"kind"`
	At           time.Time      `json:"at"`
	Author       string         `json:"author,omitempty"`
	Parts        []wirePart     `json:"parts,omitempty"`
	IsFinal      bool           `json:"is_final,omitempty"`
	Partial      bool           `json:"partial,omitempty"`
	Escalate     bool           `json:"escalate,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Agent        string         `json:"agent,omitempty"`
	Result       string         `json:"result,omitempty"`
	ConditionOp  string         `json:"condition_op,omitempty"`
	ConditionVal string         `json:"condition_val,omitempty"`
}

func marshalEvent(ev flowevent.Event) (string, error) {
	var w wireEvent
	switch e := ev.(type) {
	case *flowevent.ContentEvent:
		w = wireEvent{
			Kind: "content", At: e.At, Author: e.Author, IsFinal: e.IsFinal,
			Partial: e.Partial, Escalate: e.Actions.Escalate, ErrorMessage: e.ErrorMessage,
			Parts: make([]wirePart, 0, len(e.Parts)),
		}
		for _, p := range e.Parts {
			wp, err := marshalPart(p)
			if err != nil {
				return "", err
			}
			w.Parts = append(w.Parts, wp)
		}
	case *flowevent.EscalationEvent:
		w = wireEvent{
			Kind: "escalation", At: e.At, Agent: e.Agent, Result: e.Result,
			ConditionOp: e.ConditionOp, ConditionVal: e.ConditionVal,
		}
	default:
		return "", fmt.Errorf("session/redis: unknown event type %T", ev)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("session/redis: encode event: %w", err)
	}
	return string(raw), nil
}

func marshalPart(p flowevent.Part) (wirePart, error) {
	switch part := p.(type) {
	case flowevent.TextPart:
		return wirePart{Kind: "text", Text: part.Text}, nil
	case flowevent.FunctionCallPart:
		return wirePart{Kind: "function_call", ID: part.ID, Name: part.Name, Args: part.Args}, nil
	case flowevent.FunctionResponsePart:
		return wirePart{Kind: "function_response", ID: part.ID, Name: part.Name, Response: part.Response}, nil
	default:
		return wirePart{}, fmt.Errorf("session/redis: unknown part type %T", p)
	}
}

func unmarshalEvent(raw []byte) (flowevent.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("session/redis: decode event: %w", err)
	}
	switch w.Kind {
	case "content":
		parts := make([]flowevent.Part, 0, len(w.Parts))
		for _, wp := range w.Parts {
			switch wp.Kind {
			case "text":
				parts = append(parts, flowevent.TextPart{Text: wp.Text})
			case "function_call":
				parts = append(parts, flowevent.FunctionCallPart{ID: wp.ID, Name: wp.Name, Args: wp.Args})
			case "function_response":
				parts = append(parts, flowevent.FunctionResponsePart{ID: wp.ID, Name: wp.Name, Response: wp.Response})
			default:
				return nil, fmt.Errorf("session/redis: unknown wire part kind %q", wp.Kind)
			}
		}
		return &flowevent.ContentEvent{
			Base: flowevent.Base{At: w.At}, Author: w.Author, Parts: parts, IsFinal: w.IsFinal,
			Partial: w.Partial, Actions: flowevent.Actions{Escalate: w.Escalate}, ErrorMessage: w.ErrorMessage,
		}, nil
	case "escalation":
		return &flowevent.EscalationEvent{
			Base: flowevent.Base{At: w.At}, Agent: w.Agent, Result: w.Result,
			ConditionOp: w.ConditionOp, ConditionVal: w.ConditionVal,
		}, nil
	default:
		return nil, fmt.Errorf("session/redis: unknown wire event kind %q", w.Kind)
	}
}
