// Package mcp exposes the orchestration core as Model Context Protocol tools,
// so an MCP client can drive the reasoning loop step by step.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InfoURI is the resource describing the server and protocol.
const InfoURI = "tendril://info"

// DecideResponse is the structured result of the orchestrate tool.
type DecideResponse struct {
	Envelopes []domain.ProtocolEnvelope `json:"envelopes" jsonschema_description:"Envelopes in emission order; the last one is terminal for chunked answers"`
	Event     domain.ActionEvent        `json:"event" jsonschema_description:"Action event of the last envelope"`
	Terminal  bool                      `json:"terminal" jsonschema_description:"Indicates if the turn is finished"`
}

// HistoryResponse is the structured result of the reconstruct_history tool.
type HistoryResponse struct {
	Messages []domain.Message `json:"messages" jsonschema_description:"Conversation as the model would see it"`
}

// TurnResponse is the structured result of the run_turn tool.
type TurnResponse struct {
	SessionID string `json:"sessionId"`
	Answer    string `json:"answer"`
	Steps     int    `json:"steps"`
	Blocked   bool   `json:"blocked"`
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    ports.Orchestrator
	runner    *runner.Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithRunner registers the run_turn tool, which drives a full turn with side effects.
func WithRunner(r *runner.Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Orchestrator, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("tendril-mcp", strings.TrimSpace(tendril.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	orchestrate := mcp.NewTool("orchestrate",
		mcp.WithDescription("Decide the next action for one orchestration step. The invocation carries the state, the current input and the full session."),
		mcp.WithString("invocation", mcp.Required(), mcp.Description("JSON object with state, input and context")),
		mcp.WithOutputSchema[DecideResponse](),
	)
	s.mcpServer.AddTool(orchestrate, mcp.NewStructuredToolHandler(s.handleOrchestrate))

	reconstruct := mcp.NewTool("reconstruct_history",
		mcp.WithDescription("Rebuild the conversation the model would be shown for an invocation."),
		mcp.WithString("invocation", mcp.Required(), mcp.Description("JSON object with state, input and context")),
		mcp.WithOutputSchema[HistoryResponse](),
	)
	s.mcpServer.AddTool(reconstruct, mcp.NewStructuredToolHandler(s.handleReconstruct))

	if s.runner != nil {
		turn := mcp.NewTool("run_turn",
			mcp.WithDescription("Run one user turn to completion: model calls, tools and guardrails included."),
			mcp.WithString("text", mcp.Required(), mcp.Description("User utterance")),
			mcp.WithString("session_id", mcp.Description("Conversation to continue (optional, a new one is started when omitted)")),
			mcp.WithOutputSchema[TurnResponse](),
		)
		s.mcpServer.AddTool(turn, mcp.NewStructuredToolHandler(s.handleTurn))
	}
}

func decodeInvocation(args map[string]interface{}) (domain.Invocation, error) {
	var inv domain.Invocation
	raw, _ := args["invocation"].(string)
	if strings.TrimSpace(raw) == "" {
		return inv, fmt.Errorf("%w: invocation is required", domain.ErrMalformedInput)
	}
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		return inv, fmt.Errorf("%w: invocation: %v", domain.ErrMalformedInput, err)
	}
	return inv, nil
}

func (s *Server) handleOrchestrate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DecideResponse, error) {
	inv, err := decodeInvocation(args)
	if err != nil {
		return DecideResponse{}, err
	}
	envs, err := s.engine.Decide(ctx, inv)
	if err != nil {
		s.logger.Warn("MCP orchestrate failed", "state", inv.State, "kind", domain.ErrorKind(err))
		return DecideResponse{}, fmt.Errorf("orchestrate failed: %w", err)
	}
	last := envs[len(envs)-1]
	return DecideResponse{
		Envelopes: envs,
		Event:     last.ActionEvent,
		Terminal:  last.Terminal(),
	}, nil
}

func (s *Server) handleReconstruct(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (HistoryResponse, error) {
	inv, err := decodeInvocation(args)
	if err != nil {
		return HistoryResponse{}, err
	}
	msgs, err := s.engine.Reconstruct(inv)
	if err != nil {
		return HistoryResponse{}, fmt.Errorf("reconstruct failed: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return HistoryResponse{Messages: msgs}, nil
}

func (s *Server) handleTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	text, _ := args["text"].(string)
	sessionID, _ := args["session_id"].(string)

	res, err := s.runner.Turn(ctx, runner.TurnRequest{SessionID: sessionID, Text: text})
	if err != nil {
		s.logger.Error("MCP turn failed", "session_id", sessionID, "error", err)
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}
	return TurnResponse{
		SessionID: res.SessionID,
		Answer:    res.Answer,
		Steps:     res.Steps,
		Blocked:   res.Blocked,
	}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(InfoURI, "Server Information",
		mcp.WithMIMEType("application/json"),
	), s.handleInfo)
}

func (s *Server) handleInfo(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(map[string]string{
		"app":              "tendril-mcp",
		"version":          strings.TrimSpace(tendril.Version),
		"protocol_version": domain.ProtocolVersion,
		"terminal_tool":    s.engine.TerminalTool(),
	})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      InfoURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
