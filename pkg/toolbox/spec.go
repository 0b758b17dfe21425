package toolbox

import (
	"encoding/json"
	"fmt"
)

// Spec is a tool specification in the shape the model invocation API accepts:
// {"toolSpec": {"name", "description", "inputSchema": {"json": <JSON schema>}}}.
type Spec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"-"`
}

type wireSpec struct {
	ToolSpec struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		InputSchema struct {
			JSON json.RawMessage `json:"json"`
		} `json:"inputSchema"`
	} `json:"toolSpec"`
}

// MarshalJSON writes the toolSpec wrapper.
func (s Spec) MarshalJSON() ([]byte, error) {
	var w wireSpec
	w.ToolSpec.Name = s.Name
	w.ToolSpec.Description = s.Description
	w.ToolSpec.InputSchema.JSON = s.InputSchema
	if len(w.ToolSpec.InputSchema.JSON) == 0 {
		w.ToolSpec.InputSchema.JSON = json.RawMessage(`{"type":"object"}`)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the toolSpec wrapper.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var w wireSpec
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ToolSpec.Name == "" {
		return fmt.Errorf("tool spec has no name")
	}
	*s = Spec{
		Name:        w.ToolSpec.Name,
		Description: w.ToolSpec.Description,
		InputSchema: w.ToolSpec.InputSchema.JSON,
	}
	return nil
}

// ParseSpecs decodes the tool list of a model request.
func ParseSpecs(raw []json.RawMessage) ([]Spec, error) {
	specs := make([]Spec, 0, len(raw))
	for i, r := range raw {
		var s Spec
		if err := json.Unmarshal(r, &s); err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// AnswerSpec returns the specification of the terminal tool the model calls with its final answer.
func AnswerSpec(name string) Spec {
	return Spec{
		Name:        name,
		Description: "Give the final answer to the user. Call this once you have everything you need.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"The answer shown to the user."}},"required":["text"]}`),
	}
}
