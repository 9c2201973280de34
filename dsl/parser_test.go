package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/diag"
)

const sampleSource = `streetrace v1

model main = anthropic/claude-sonnet-4-5

prompt pi_enhancer using model "main":
  """
  Enhance the prompt.
  """
  escalate if ~ "DRIFTING"

tool search = builtin web_search

agent reviewer:
  tools search
  instruction pi_enhancer

flow main:
  current = "start"
  result = run agent reviewer with current on escalate return current
  return result
`

func TestParseValidProgram(t *testing.T) {
	prog, diags := Parse("sample.sr", sampleSource)
	require.Empty(t, onlyErrors(diags))
	require.NotNil(t, prog.Version)
	assert.Equal(t, "v1", prog.Version.Version)
	require.Len(t, prog.Models, 1)
	assert.Equal(t, "anthropic", prog.Models[0].Provider)
	assert.Equal(t, "claude-sonnet-4-5", prog.Models[0].ModelID)
	require.Len(t, prog.Prompts, 1)
	require.NotNil(t, prog.Prompts[0].Escalation)
	assert.Equal(t, EscNormalize, prog.Prompts[0].Escalation.Op)
	require.Len(t, prog.Flows, 1)
	assert.Len(t, prog.Flows[0].Body, 3)
}

func TestAnalyzeValidProgram(t *testing.T) {
	prog, pdiags := Parse("sample.sr", sampleSource)
	res := Analyze(prog, pdiags)
	assert.Empty(t, res.Errors)
	assert.True(t, res.IsValid)
}

func TestAnalyzeUndefinedAgentReference(t *testing.T) {
	src := `streetrace v1

flow main:
  run agent ghost
`
	prog, pdiags := Parse("bad.sr", src)
	res := Analyze(prog, pdiags)
	require.False(t, res.IsValid)
	require.NotEmpty(t, res.Errors)
}

func TestMissingVersionHeaderDiagnostic(t *testing.T) {
	_, diags := Parse("noversion.sr", "flow main:\n  return 1\n")
	found := false
	for _, d := range diags {
		if d.Code == "E_NO_VERSION" {
			found = true
		}
	}
	assert.True(t, found)
}

func onlyErrors(diags []diag.Diagnostic) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range diags {
		if d.IsError() {
			out = append(out, d)
		}
	}
	return out
}
