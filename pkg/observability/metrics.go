package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tendril"

// Metrics holds the collectors fed by the hooks and instrumented collaborators.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	Chunks        prometheus.Counter
	Messages      prometheus.Histogram
	ToolDuration  *prometheus.HistogramVec
	ModelDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Orchestration decisions by input state and emitted event.",
		}, []string{"state", "event"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed invocations by input state and error kind.",
		}, []string{"state", "kind"}),
		Chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Envelopes emitted for chunked answers.",
		}),
		Messages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconstructed_messages",
			Help:      "Size of the conversation handed to the model.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions.",
		}, []string{"tool", "status"}),
		ModelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_duration_seconds",
			Help:      "Duration of model invocations.",
		}, []string{"model", "outcome"}),
	}
	reg.MustRegister(m.Decisions, m.Errors, m.Chunks, m.Messages, m.ToolDuration, m.ModelDuration)
	return m
}

// Hooks returns lifecycle hooks that record decisions and errors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			m.Decisions.WithLabelValues(string(e.State), string(e.Event)).Inc()
			if e.Chunks > 1 {
				m.Chunks.Add(float64(e.Chunks))
			}
			if e.Event == domain.EventInvokeModel {
				m.Messages.Observe(float64(e.Messages))
			}
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			m.Errors.WithLabelValues(string(e.State), e.Kind).Inc()
		},
	}
}

// LoggingHooks logs every decision at info and every error at error level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.Info("decision", "state", e.State, "event", e.Event, "messages", e.Messages, "chunks", e.Chunks)
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.Error("invocation_failed", "state", e.State, "kind", e.Kind, "error", e.Err)
		},
	}
}

// ChainHooks fans every event out to all hooks, in order.
func ChainHooks(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			for _, h := range hooks {
				if h.OnDecision != nil {
					h.OnDecision(ctx, e)
				}
			}
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			for _, h := range hooks {
				if h.OnError != nil {
					h.OnError(ctx, e)
				}
			}
		},
	}
}

type instrumentedTools struct {
	next    ports.ToolExecutor
	metrics *Metrics
}

// InstrumentTools wraps a tool executor with a duration histogram.
func (m *Metrics) InstrumentTools(next ports.ToolExecutor) ports.ToolExecutor {
	return &instrumentedTools{next: next, metrics: m}
}

func (t *instrumentedTools) ExecuteTool(ctx context.Context, use domain.ToolUse) (domain.ToolResult, error) {
	start := time.Now()
	res, err := t.next.ExecuteTool(ctx, use)
	status := res.Status
	if err != nil {
		status = "failed"
	} else if status == "" {
		status = domain.ToolStatusSuccess
	}
	t.metrics.ToolDuration.WithLabelValues(use.Name, status).Observe(time.Since(start).Seconds())
	return res, err
}

type instrumentedModel struct {
	next    ports.ModelInvoker
	metrics *Metrics
}

// InstrumentModel wraps a model invoker with a duration histogram.
func (m *Metrics) InstrumentModel(next ports.ModelInvoker) ports.ModelInvoker {
	return &instrumentedModel{next: next, metrics: m}
}

func (i *instrumentedModel) InvokeModel(ctx context.Context, req domain.ModelRequest) (domain.ModelOutput, error) {
	start := time.Now()
	out, err := i.next.InvokeModel(ctx, req)
	outcome := string(out.StopReason)
	if err != nil {
		outcome = "error"
	}
	i.metrics.ModelDuration.WithLabelValues(req.ModelID, outcome).Observe(time.Since(start).Seconds())
	return out, err
}
