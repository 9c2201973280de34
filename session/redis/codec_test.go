package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/flowevent"
)

func TestMarshalUnmarshalContentEventRoundTrips(t *testing.T) {
	ev := &flowevent.ContentEvent{
		Base:    flowevent.Base{At: time.Now().UTC().Truncate(time.Millisecond)},
		Author:  "agent",
		IsFinal: true,
		Parts: []flowevent.Part{
			flowevent.TextPart{Text: "hello"},
			flowevent.FunctionCallPart{ID: "c1", Name: "search", Args: map[string]any{"q": "go"}},
			flowevent.FunctionResponsePart{ID: "c1", Name: "search", Response: map[string]any{"ok": true}},
		},
	}

	raw, err := marshalEvent(ev)
	require.NoError(t, err)

	decoded, err := unmarshalEvent([]byte(raw))
	require.NoError(t, err)

	ce, ok := decoded.(*flowevent.ContentEvent)
	require.True(t, ok)
	assert.Equal(t, ev.Author, ce.Author)
	assert.True(t, ce.IsFinal)
	require.Len(t, ce.Parts, 3)
	assert.Equal(t, "hello", ce.Parts[0].(flowevent.TextPart).Text)
	call := ce.Parts[1].(flowevent.FunctionCallPart)
	assert.Equal(t, "search", call.Name)
	assert.Equal(t, "go", call.Args["q"])
}

func TestMarshalUnmarshalEscalationEventRoundTrips(t *testing.T) {
	ev := &flowevent.EscalationEvent{
		Base: flowevent.Base{At: time.Now().UTC().Truncate(time.Millisecond)},
		Agent: "reviewer", Result: "needs human review",
		ConditionOp: "contains", ConditionVal: "escalate",
	}

	raw, err := marshalEvent(ev)
	require.NoError(t, err)

	decoded, err := unmarshalEvent([]byte(raw))
	require.NoError(t, err)

	de, ok := decoded.(*flowevent.EscalationEvent)
	require.True(t, ok)
	assert.Equal(t, "reviewer", de.Agent)
	assert.Equal(t, "needs human review", de.Result)
}

func TestUnmarshalUnknownKindErrors(t *testing.T) {
	_, err := unmarshalEvent([]byte(`{"kind":"mystery"}`))
	assert.Error(t, err)
}
