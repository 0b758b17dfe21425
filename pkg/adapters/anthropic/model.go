// Package anthropic implements ports.ModelInvoker on top of the Anthropic
// Messages API. Requests built by the core are translated into Messages API
// parameters and the response is mapped back into a domain.ModelOutput.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/toolbox"
)

// DefaultModel is used when neither the request nor the invoker names a model.
const DefaultModel = "claude-sonnet-4-20250514"

// Invoker calls the Messages API.
type Invoker struct {
	client       anthropic.Client
	defaultModel anthropic.Model
	logger       *slog.Logger
}

// Option configures an Invoker.
type Option func(*settings)

type settings struct {
	apiKey  string
	baseURL string
	model   anthropic.Model
	logger  *slog.Logger
	extra   []option.RequestOption
}

// WithAPIKey sets the API key. Without it the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

// WithBaseURL points the client at another endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithDefaultModel sets the model used when the request carries no model ID.
func WithDefaultModel(model string) Option {
	return func(s *settings) { s.model = anthropic.Model(model) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(s *settings) { s.extra = append(s.extra, opts...) }
}

// New creates an Invoker.
func New(opts ...Option) *Invoker {
	s := settings{model: anthropic.Model(DefaultModel), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}

	var clientOpts []option.RequestOption
	if s.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(s.apiKey))
	}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}
	clientOpts = append(clientOpts, s.extra...)

	return &Invoker{
		client:       anthropic.NewClient(clientOpts...),
		defaultModel: s.model,
		logger:       s.logger,
	}
}

// InvokeModel sends the request and returns the model output.
func (i *Invoker) InvokeModel(ctx context.Context, req domain.ModelRequest) (domain.ModelOutput, error) {
	params, err := i.buildParams(req)
	if err != nil {
		return domain.ModelOutput{}, err
	}

	resp, err := i.client.Messages.New(ctx, params)
	if err != nil {
		return domain.ModelOutput{}, fmt.Errorf("anthropic api error: %w", err)
	}
	i.logger.Debug("Model invoked",
		"model", params.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return convertResponse(resp)
}

func (i *Invoker) buildParams(req domain.ModelRequest) (anthropic.MessageNewParams, error) {
	model := i.defaultModel
	if req.ModelID != "" {
		model = anthropic.Model(req.ModelID)
	}
	maxTokens := req.InferenceConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	// Recent models reject temperature and top_p together; temperature wins.
	if inf := req.InferenceConfig; inf.Temperature > 0 || inf.TopP == 0 {
		params.Temperature = anthropic.Float(inf.Temperature)
	} else {
		params.TopP = anthropic.Float(inf.TopP)
	}

	for _, block := range req.System {
		if block.Text != "" {
			params.System = append(params.System, anthropic.TextBlockParam{Text: block.Text})
		}
	}

	tools, err := convertTools(req.ToolConfig.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params.Tools = tools
	return params, nil
}

func convertMessages(msgs []domain.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch {
			case block.ToolUse != nil:
				input := block.ToolUse.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ToolUse.ToolUseID, input, block.ToolUse.Name))
			case block.ToolResult != nil:
				res := block.ToolResult
				blocks = append(blocks, anthropic.NewToolResultBlock(res.ToolUseID, toolResultText(res), res.Status == domain.ToolStatusError))
			case block.Text != "":
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := anthropic.MessageParamRoleUser
		if msg.Role == domain.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func toolResultText(res *domain.ToolResult) string {
	var text string
	for _, c := range res.Content {
		if c.Text != "" {
			text += c.Text
			continue
		}
		if len(c.JSON) > 0 {
			text += string(c.JSON)
		}
	}
	return text
}

type inputSchema struct {
	Properties any      `json:"properties"`
	Required   []string `json:"required"`
}

func convertTools(raw []json.RawMessage) ([]anthropic.ToolUnionParam, error) {
	specs, err := toolbox.ParseSpecs(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid tool config: %w", err)
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema inputSchema
		if len(spec.InputSchema) > 0 {
			if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid input schema for tool %s: %w", spec.Name, err)
			}
		}
		param := anthropic.ToolParam{
			Name: spec.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if spec.Description != "" {
			param.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &param})
	}
	return tools, nil
}

func convertResponse(resp *anthropic.Message) (domain.ModelOutput, error) {
	out := domain.ModelOutput{
		StopReason: stopReason(resp.StopReason),
		Output:     domain.Message{Role: domain.RoleAssistant},
	}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Output.Content = append(out.Output.Content, domain.TextBlock(b.Text))
		case anthropic.ToolUseBlock:
			input := json.RawMessage(b.JSON.Input.Raw())
			if !json.Valid(input) {
				return domain.ModelOutput{}, fmt.Errorf("tool %s: invalid input from model", b.Name)
			}
			out.Output.Content = append(out.Output.Content, domain.ContentBlock{
				ToolUse: &domain.ToolUse{ToolUseID: b.ID, Name: b.Name, Input: input},
			})
		}
	}
	return out, nil
}

// stopReason maps API stop reasons onto the ones the router understands.
// Anything else passes through and is rejected by the router.
func stopReason(r anthropic.StopReason) domain.StopReason {
	switch r {
	case anthropic.StopReasonToolUse:
		return domain.StopReasonToolUse
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return domain.StopReasonEndTurn
	}
	return domain.StopReason(r)
}
