// Package mcp provides an MCP (Model Context Protocol) server exposing
// story review to assistants.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dfbr/choose-your-own-adventure-world/internal/logging"
	"github.com/dfbr/choose-your-own-adventure-world/internal/ratelimit"
	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
)

// Server wraps the MCP SDK server around a review engine.
type Server struct {
	server       *sdk.Server
	engine       *review.Engine
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "proofread")
	Version string // Server version

	Engine *review.Engine

	// AuditDir receives audit.jsonl. Empty disables the audit log.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the review tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("mcp server needs a review engine")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "mcp")

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		engine:       cfg.Engine,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}

	if cfg.AuditDir != "" {
		audit, err := NewAuditLogger(cfg.AuditDir)
		if err != nil {
			logger.Warn("audit log disabled", "error", err)
		}
		s.auditLogger = audit
	}

	s.registerTools()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving over stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close releases the audit log. It is safe to call more than once.
func (s *Server) Close() error {
	err := s.auditLogger.Close()
	s.auditLogger = nil
	return err
}
