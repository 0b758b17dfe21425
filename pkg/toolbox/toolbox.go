// Package toolbox registers Go functions as tools: it publishes their
// specifications to the model and executes the calls the model makes,
// validating every input against the tool's JSON schema first.
package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownTool is returned when a tool name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Handler runs a tool. The input has already passed schema validation.
// A string result becomes a text block; anything else is sent as JSON.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Tool is a registered function.
type Tool struct {
	Spec
	Handler Handler
}

// Toolbox implements ports.ToolExecutor over registered tools.
// Safe for concurrent use.
type Toolbox struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
	logger  *slog.Logger
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithLogger sets the logger used for tool executions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Toolbox) {
		b.logger = logger
	}
}

// New creates an empty toolbox.
func New(opts ...Option) *Toolbox {
	b := &Toolbox{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a tool, compiling its input schema.
func (b *Toolbox) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}

	var schema *gojsonschema.Schema
	if len(t.InputSchema) > 0 {
		var err error
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.InputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for tool %s: %w", t.Name, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tools[t.Name]; exists {
		return fmt.Errorf("tool %s is already registered", t.Name)
	}
	b.tools[t.Name] = t
	b.schemas[t.Name] = schema
	return nil
}

// MustRegister is Register that panics on error, for static setups.
func (b *Toolbox) MustRegister(t Tool) {
	if err := b.Register(t); err != nil {
		panic(err)
	}
}

// Specs returns the serialized specifications of all tools sorted by name,
// followed by extra specs (typically the terminal answer tool).
func (b *Toolbox) Specs(extra ...Spec) ([]json.RawMessage, error) {
	b.mu.RLock()
	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]Spec, 0, len(names)+len(extra))
	for _, name := range names {
		specs = append(specs, b.tools[name].Spec)
	}
	b.mu.RUnlock()

	specs = append(specs, extra...)
	out := make([]json.RawMessage, 0, len(specs))
	for _, s := range specs {
		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal spec %s: %w", s.Name, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Validate checks input against the tool's schema.
func (b *Toolbox) Validate(name string, input json.RawMessage) error {
	b.mu.RLock()
	_, ok := b.tools[name]
	schema := b.schemas[name]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if schema == nil {
		return nil
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(input))
	if err != nil {
		return fmt.Errorf("failed to validate input of %s: %w", name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid input for %s: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}

// ExecuteTool runs the requested tool. Tool failures (unknown tool, invalid
// input, handler error) are reported to the model as an error result, not as
// a Go error, so the model can recover.
func (b *Toolbox) ExecuteTool(ctx context.Context, use domain.ToolUse) (domain.ToolResult, error) {
	if err := b.Validate(use.Name, use.Input); err != nil {
		b.logger.Warn("Tool call rejected", "tool", use.Name, "error", err)
		return errorResult(use.ToolUseID, err), nil
	}

	b.mu.RLock()
	tool := b.tools[use.Name]
	b.mu.RUnlock()

	out, err := tool.Handler(ctx, use.Input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ToolResult{}, fmt.Errorf("tool %s: %w", use.Name, ctxErr)
		}
		b.logger.Warn("Tool failed", "tool", use.Name, "error", err)
		return errorResult(use.ToolUseID, err), nil
	}

	content, err := resultContent(out)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("tool %s returned an unserializable result: %w", use.Name, err)
	}
	b.logger.Debug("Tool executed", "tool", use.Name, "tool_use_id", use.ToolUseID)
	return domain.ToolResult{
		ToolUseID: use.ToolUseID,
		Content:   []domain.ToolResultContent{content},
		Status:    domain.ToolStatusSuccess,
	}, nil
}

func resultContent(out any) (domain.ToolResultContent, error) {
	switch v := out.(type) {
	case string:
		return domain.ToolResultContent{Text: v}, nil
	case json.RawMessage:
		return domain.ToolResultContent{JSON: v}, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return domain.ToolResultContent{}, err
	}
	return domain.ToolResultContent{JSON: data}, nil
}

func errorResult(id string, err error) domain.ToolResult {
	return domain.ToolResult{
		ToolUseID: id,
		Content:   []domain.ToolResultContent{{Text: err.Error()}},
		Status:    domain.ToolStatusError,
	}
}
