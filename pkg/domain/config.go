package domain

// Inference defaults applied when neither the engine nor the context overrides them.
const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
)

// ModelConfig holds the inference and guardrail settings of a model invocation.
// Zero values mean "not set" so configs can be layered with Merge.
type ModelConfig struct {
	ModelID          string   `json:"modelId,omitempty" yaml:"modelId" mapstructure:"modelId"`
	MaxTokens        int      `json:"maxTokens,omitempty" yaml:"maxTokens" mapstructure:"maxTokens"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature" mapstructure:"temperature"`
	TopP             *float64 `json:"topP,omitempty" yaml:"topP" mapstructure:"topP"`
	GuardrailID      string   `json:"guardrailId,omitempty" yaml:"guardrailId" mapstructure:"guardrailId"`
	GuardrailVersion string   `json:"guardrailVersion,omitempty" yaml:"guardrailVersion" mapstructure:"guardrailVersion"`
}

// DefaultModelConfig returns the built-in inference settings.
func DefaultModelConfig() ModelConfig {
	temperature, topP := DefaultTemperature, DefaultTopP
	return ModelConfig{
		MaxTokens:   DefaultMaxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	}
}

// Merge returns c with every field set in o taking precedence.
func (c ModelConfig) Merge(o ModelConfig) ModelConfig {
	if o.ModelID != "" {
		c.ModelID = o.ModelID
	}
	if o.MaxTokens > 0 {
		c.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		v := *o.Temperature
		c.Temperature = &v
	}
	if o.TopP != nil {
		v := *o.TopP
		c.TopP = &v
	}
	if o.GuardrailID != "" {
		c.GuardrailID = o.GuardrailID
	}
	if o.GuardrailVersion != "" {
		c.GuardrailVersion = o.GuardrailVersion
	}
	return c
}

// Resolve layers the context's agent configuration and explicit override on top of c.
func (c ModelConfig) Resolve(ctx Context) ModelConfig {
	agent := ModelConfig{ModelID: ctx.AgentConfiguration.DefaultModelID}
	if g := ctx.AgentConfiguration.Guardrails; g != nil {
		agent.GuardrailID = g.GuardrailIdentifier
		agent.GuardrailVersion = g.GuardrailVersion
	}
	resolved := c.Merge(agent)
	if ctx.Configuration != nil {
		resolved = resolved.Merge(*ctx.Configuration)
	}
	return resolved
}

// Inference returns the inference section of a model request.
func (c ModelConfig) Inference() InferenceConfig {
	cfg := InferenceConfig{
		MaxTokens:   c.MaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature != nil {
		cfg.Temperature = *c.Temperature
	}
	if c.TopP != nil {
		cfg.TopP = *c.TopP
	}
	return cfg
}

// HasGuardrail reports whether a guardrail identifier is configured.
func (c ModelConfig) HasGuardrail() bool {
	return c.GuardrailID != ""
}
