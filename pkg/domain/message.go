package domain

import "encoding/json"

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a role-tagged list of content blocks, as accepted by the model invocation API.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewTextMessage creates a single-block text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock(text)}}
}

// ContentBlock is one element of a message's content.
//
// Blocks decoded from JSON remember their original encoding and marshal back
// to it, so blocks this package does not model (reasoning, images, citations)
// survive a round-trip through the router unchanged.
type ContentBlock struct {
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"toolUse,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty"`

	raw json.RawMessage
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// ToolUse is a model's structured request to invoke a tool.
type ToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a tool execution fed back to the model.
type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status,omitempty"`
}

// ToolResultContent is one item of a tool result.
type ToolResultContent struct {
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// Tool result status values.
const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// MarshalJSON emits the original encoding when the block was decoded from JSON.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}
	type plain ContentBlock
	return json.Marshal(plain(b))
}

// UnmarshalJSON decodes the known fields and keeps the raw encoding.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type plain ContentBlock
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = ContentBlock(p)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Raw returns the encoding the block was decoded from, or nil for constructed blocks.
func (b ContentBlock) Raw() json.RawMessage {
	return b.raw
}

// ModelOutput is the structured model response a runtime passes back on MODEL_INVOKED.
type ModelOutput struct {
	StopReason StopReason `json:"stopReason"`
	Output     Message    `json:"output"`
}

// FirstToolUse returns the first content block carrying a tool use.
func (o ModelOutput) FirstToolUse() (ContentBlock, bool) {
	for _, block := range o.Output.Content {
		if block.ToolUse != nil {
			return block, true
		}
	}
	return ContentBlock{}, false
}

// FirstText returns the text of the first content block carrying text.
func (o ModelOutput) FirstText() (string, bool) {
	for _, block := range o.Output.Content {
		if block.Text != "" {
			return block.Text, true
		}
	}
	return "", false
}
