package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/model"
)

func userMsg(text string) model.Message {
	return model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}}
}

func assistantMsg(text string) model.Message {
	return model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}
}

// TestTruncateKeepsFirstAndLastN covers spec.md §8 scenario 4: 10 flat
// messages, keepN=4, expect [messages[0]] + messages[-4:].
func TestTruncateKeepsFirstAndLastN(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "sys"}}},
		userMsg("q1"), assistantMsg("a1"),
		userMsg("q2"), assistantMsg("a2"),
		userMsg("q3"), assistantMsg("a3"),
		userMsg("q4"), assistantMsg("a4"),
		userMsg("q5"),
	}
	require.Len(t, msgs, 10)

	out, err := Truncate(context.Background(), msgs, 4)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, msgs[0], out[0])
	assert.Equal(t, msgs[6:], out[1:])
}

func TestTruncateNoOpAtOrUnderBoundary(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "sys"}}},
		userMsg("q1"), assistantMsg("a1"),
		userMsg("q2"), assistantMsg("a2"),
	}
	require.Len(t, msgs, 5)

	out, err := Truncate(context.Background(), msgs, 4)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}

func TestTruncateNoOpWhenUnderLimit(t *testing.T) {
	msgs := []model.Message{userMsg("only")}
	out, err := Truncate(context.Background(), msgs, 5)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}

type fakeSummaryClient struct{}

func (fakeSummaryClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return &model.Response{Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "summary"}}}}, nil
}
func (fakeSummaryClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, &model.ErrStreamingUnsupported{}
}
func (fakeSummaryClient) ContextWindow(modelID string) int { return 1000 }

func TestSummarizeCollapsesMiddleIntoOneAssistantMessage(t *testing.T) {
	var msgs []model.Message
	msgs = append(msgs, model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "sys"}}})
	for i := 0; i < 10; i++ {
		msgs = append(msgs, userMsg("q"), assistantMsg("a"))
	}

	out, err := Summarize(context.Background(), fakeSummaryClient{}, "m", msgs, 4)
	require.NoError(t, err)
	// first message + 1 summary message + last 4 messages.
	require.Len(t, out, 6)
	assert.Equal(t, msgs[0], out[0])
	assert.Equal(t, model.RoleAssistant, out[1].Role)
	assert.Equal(t, "summary", out[1].Parts[0].(model.TextPart).Text)
	assert.Equal(t, msgs[len(msgs)-4:], out[2:])
}

func TestSummarizeFallsBackToTruncateWithoutClient(t *testing.T) {
	var msgs []model.Message
	msgs = append(msgs, model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "sys"}}})
	for i := 0; i < 10; i++ {
		msgs = append(msgs, userMsg("q"), assistantMsg("a"))
	}

	out, err := Summarize(context.Background(), nil, "m", msgs, 4)
	require.NoError(t, err)
	want, _ := Truncate(context.Background(), msgs, 4)
	assert.Equal(t, want, out)
}

func TestShouldCompactUsesThreshold(t *testing.T) {
	big := make([]model.Message, 0)
	for i := 0; i < 50; i++ {
		big = append(big, userMsg(string(make([]byte, 2000))))
	}
	assert.True(t, ShouldCompact(fakeSummaryClient{}, "m", big))
	assert.False(t, ShouldCompact(fakeSummaryClient{}, "m", []model.Message{userMsg("hi")}))
}
