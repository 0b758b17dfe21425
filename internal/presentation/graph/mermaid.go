// Package graph renders recorded sessions as Mermaid flowcharts.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/tendril/pkg/domain"
)

// maxLabel bounds the text excerpt shown inside a node.
const maxLabel = 40

// GraphOverlay highlights the step the session will resume from.
type GraphOverlay struct {
	// Current marks the last recorded step.
	Current bool
}

// GenerateMermaid produces a Mermaid flowchart of a session, one subgraph per
// turn and one node per recorded step. Shapes follow the emitted event:
// - FINISH: ((Circle))
// - INVOKE_TOOL: [[Subroutine]]
// - APPLY_GUARDRAILS: {{Hexagon}}
// - START input: [/Parallelogram/]
// - Default: [Rectangle]
func GenerateMermaid(session domain.Session, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	prev, last := "", ""
	for ti, turn := range session {
		sb.WriteString(fmt.Sprintf("    subgraph turn%d[\"Turn %d\"]\n", ti+1, ti+1))
		for si, step := range turn.IntermediarySteps {
			id := fmt.Sprintf("t%ds%d", ti+1, si+1)
			opener, closer := shape(step)
			sb.WriteString(fmt.Sprintf("        %s%s\"%s\"%s\n", id, opener, label(step), closer))
			if prev != "" {
				sb.WriteString(fmt.Sprintf("        %s --> %s\n", prev, id))
			}
			prev, last = id, id
		}
		sb.WriteString("    end\n")
	}

	if overlay != nil && overlay.Current && last != "" {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString(fmt.Sprintf("    class %s current;\n", last))
	}
	return sb.String()
}

func shape(step domain.IntermediaryStep) (string, string) {
	if out := step.OrchestrationOutput; out != nil {
		switch out.Event {
		case domain.EventFinish:
			return "((", "))"
		case domain.EventInvokeTool:
			return "[[", "]]"
		case domain.EventApplyGuardrails:
			return "{{", "}}"
		}
	}
	if in := step.OrchestrationInput; in != nil && in.State == domain.StateStart {
		return "[/", "/]"
	}
	return "[", "]"
}

func label(step domain.IntermediaryStep) string {
	var state domain.OrchestrationState
	var event domain.ActionEvent
	detail := ""
	if in := step.OrchestrationInput; in != nil {
		state = in.State
		if in.State == domain.StateStart {
			detail = in.Text
		}
	}
	if out := step.OrchestrationOutput; out != nil {
		event = out.Event
		switch out.Event {
		case domain.EventFinish:
			detail = out.Text
		case domain.EventInvokeTool:
			var block domain.ContentBlock
			if err := json.Unmarshal([]byte(out.Text), &block); err == nil && block.ToolUse != nil {
				detail = "tool " + block.ToolUse.Name
			}
		}
	}

	l := fmt.Sprintf("%s → %s", state, event)
	if event == "" {
		l = string(state)
	}
	if detail = excerpt(detail); detail != "" {
		l += " <br/> " + detail
	}
	return l
}

// excerpt shortens text and makes it safe inside a quoted Mermaid label.
func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxLabel {
		text = string(r[:maxLabel-1]) + "…"
	}
	return strings.ReplaceAll(text, "\"", "'")
}
