// Package cli wires configuration into the engine, the session store and the
// runner shared by the tendril commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/pkg/adapters/anthropic"
	"github.com/aretw0/tendril/pkg/adapters/process"
	"github.com/aretw0/tendril/pkg/config"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/guardrail"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/runner"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/aretw0/tendril/pkg/toolbox"
	"github.com/prometheus/client_golang/prometheus"
)

// App holds the components built from one configuration.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Engine   *tendril.Engine
	Sessions *session.Manager
	Tools    *toolbox.Toolbox
	Agent    domain.AgentConfiguration
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	guardrails *guardrail.Evaluator
	closers    []func() error
}

// NewApp builds the engine, store and toolbox for cfg.
func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	app.Metrics = observability.NewMetrics(app.Registry)
	app.Engine = createEngine(cfg, logger, app.Metrics)

	store, closer, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.Sessions = session.NewManager(store.store, append(store.opts, session.WithLogger(logger))...)

	if app.Tools, err = loadTools(cfg, logger); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Orchestrator.Guardrails {
		if app.guardrails, err = guardrail.New(cfg.Guardrails...); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Agent = cfg.AgentConfiguration()
	specs, err := app.Tools.Specs(toolbox.AnswerSpec(cfg.Orchestrator.TerminalTool))
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Agent.Tools = specs
	return app, nil
}

// createEngine configures the core from the orchestrator and model sections.
func createEngine(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) *tendril.Engine {
	hooks := metrics.Hooks()
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		hooks = observability.ChainHooks(hooks, observability.LoggingHooks(logger))
	}
	return tendril.New(
		tendril.WithLogger(logger),
		tendril.WithLifecycleHooks(hooks),
		tendril.WithModelConfig(cfg.Model),
		tendril.WithTerminalTool(cfg.Orchestrator.TerminalTool),
		tendril.WithGuardrails(cfg.Orchestrator.Guardrails),
		tendril.WithChunkedAnswers(cfg.Orchestrator.ChunkedAnswers),
	)
}

// loadTools registers the process tools of agent.toolsFile. Commands run from
// the directory holding the file.
func loadTools(cfg config.Config, logger *slog.Logger) (*toolbox.Toolbox, error) {
	box := toolbox.New(toolbox.WithLogger(logger))
	if cfg.Agent.ToolsFile == "" {
		return box, nil
	}
	cfgs, err := process.LoadTools(cfg.Agent.ToolsFile)
	if err != nil {
		return nil, err
	}
	pr := process.NewRunner(process.WithBaseDir(filepath.Dir(cfg.Agent.ToolsFile)))
	if err := pr.RegisterAll(box, cfgs); err != nil {
		return nil, fmt.Errorf("failed to register tools from %s: %w", cfg.Agent.ToolsFile, err)
	}
	logger.Debug("Tools loaded", "file", cfg.Agent.ToolsFile, "count", len(cfgs))
	return box, nil
}

// NewModel returns the instrumented Anthropic invoker.
func (a *App) NewModel() ports.ModelInvoker {
	opts := []anthropic.Option{
		anthropic.WithLogger(a.Logger),
		anthropic.WithDefaultModel(a.Config.Model.ModelID),
	}
	if a.Config.Anthropic.APIKey != "" {
		opts = append(opts, anthropic.WithAPIKey(a.Config.Anthropic.APIKey))
	}
	if a.Config.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(a.Config.Anthropic.BaseURL))
	}
	return a.Metrics.InstrumentModel(anthropic.New(opts...))
}

// NewRunner returns a runner driving model through the app's engine, tools and guardrails.
func (a *App) NewRunner(model ports.ModelInvoker, opts ...runner.Option) *runner.Runner {
	base := []runner.Option{
		runner.WithAgent(a.Agent),
		runner.WithTools(a.Metrics.InstrumentTools(a.Tools)),
		runner.WithMaxSteps(a.Config.Orchestrator.MaxSteps),
		runner.WithLogger(a.Logger),
	}
	if a.guardrails != nil {
		base = append(base, runner.WithGuardrails(a.guardrails))
	}
	return runner.New(a.Engine, a.Sessions, model, append(base, opts...)...)
}

// Close releases store connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
