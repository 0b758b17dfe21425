package domain

// ProtocolEnvelope is the unit of output written back to the runtime.
type ProtocolEnvelope struct {
	Version     string          `json:"version"`
	ActionEvent ActionEvent     `json:"actionEvent"`
	Output      EnvelopeOutput  `json:"output"`
	Context     EnvelopeContext `json:"context"`
}

// EnvelopeOutput carries the serialized payload and a trace line.
type EnvelopeOutput struct {
	Text  string `json:"text"`
	Trace Trace  `json:"trace"`
}

// Trace is the debug trace attached to an envelope.
type Trace struct {
	Event TraceEvent `json:"event"`
}

// TraceEvent holds the trace text.
type TraceEvent struct {
	Text string `json:"text"`
}

// EnvelopeContext is the context handed back to the runtime.
type EnvelopeContext struct {
	SessionAttributes       map[string]string `json:"sessionAttributes"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes"`
}

// NewEnvelope builds an envelope carrying the attributes of ctx.
// Nil attribute maps are written as empty objects.
func NewEnvelope(event ActionEvent, text, trace string, ctx Context) ProtocolEnvelope {
	return ProtocolEnvelope{
		Version:     ProtocolVersion,
		ActionEvent: event,
		Output: EnvelopeOutput{
			Text:  text,
			Trace: Trace{Event: TraceEvent{Text: trace}},
		},
		Context: EnvelopeContext{
			SessionAttributes:       attributes(ctx.SessionAttributes),
			PromptSessionAttributes: attributes(ctx.PromptSessionAttributes),
		},
	}
}

// Terminal reports whether this envelope ends the invocation's turn.
func (e ProtocolEnvelope) Terminal() bool {
	return e.ActionEvent.Terminal()
}

func attributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}
