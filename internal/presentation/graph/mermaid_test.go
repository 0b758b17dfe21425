package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/tendril/internal/presentation/graph"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func session() domain.Session {
	toolUse := `{"toolUse":{"toolUseId":"t-1","name":"weather","input":{"city":"Lisbon"}}}`
	return domain.Session{}.
		Append(domain.NewStep(domain.StateStart, `Weather in "Lisbon"?`, domain.EventInvokeModel, "{}"), true).
		Append(domain.NewStep(domain.StateModelInvoked, "{}", domain.EventInvokeTool, toolUse), false).
		Append(domain.NewStep(domain.StateToolInvoked, "{}", domain.EventInvokeModel, "{}"), false).
		Append(domain.NewStep(domain.StateModelInvoked, "{}", domain.EventFinish, "Sunny."), false).
		Append(domain.NewStep(domain.StateStart, "secret stuff", domain.EventApplyGuardrails, "{}"), true)
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(session(), nil)

	for _, want := range []string{
		"graph TD\n",
		`subgraph turn1["Turn 1"]`,
		`t1s1[/"START → INVOKE_MODEL <br/> Weather in 'Lisbon'?"/]`,
		`t1s2[["MODEL_INVOKED → INVOKE_TOOL <br/> tool weather"]]`,
		`t1s3["TOOL_INVOKED → INVOKE_MODEL"]`,
		`t1s4(("MODEL_INVOKED → FINISH <br/> Sunny."))`,
		`t2s1{{"START → APPLY_GUARDRAILS <br/> secret stuff"}}`,
		"t1s1 --> t1s2",
		"t1s4 --> t2s1",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(session(), &graph.GraphOverlay{Current: true})
	assert.Contains(t, out, "class t2s1 current;")
}

func TestGenerateMermaid_LongLabels(t *testing.T) {
	s := domain.Session{}.Append(domain.NewStep(domain.StateStart, strings.Repeat("word ", 30), domain.EventInvokeModel, "{}"), true)
	out := graph.GenerateMermaid(s, nil)
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, strings.Repeat("word ", 10))
}

func TestGenerateMermaid_Empty(t *testing.T) {
	assert.Equal(t, "graph TD\n", graph.GenerateMermaid(nil, &graph.GraphOverlay{Current: true}))
}
