// Package server exposes the dispatch engine over MCP. It owns the
// transport (stdio or SSE), keeps the advertised capabilities in sync with
// the registry, and maps the reserved `_persona` and `_format` arguments
// onto the engine's context before a call reaches a tool.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"chimera/internal/config"
	"chimera/internal/dispatch"
	"chimera/pkg/logging"
)

const subsystem = "Server"

// Version is the advertised MCP server version, set by the build.
var Version = "dev"

// Server is the MCP face of the engine.
type Server struct {
	cfg    config.Config
	engine *dispatch.Dispatcher

	server      *server.MCPServer
	sseServer   *server.SSEServer
	stdioServer *server.StdioServer

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex

	activeTools     map[string]bool
	activePrompts   map[string]bool
	activeResources map[string]bool
}

// New builds an MCP server over a wired dispatcher.
func New(cfg config.Config, engine *dispatch.Dispatcher) *Server {
	return &Server{
		cfg:             cfg,
		engine:          engine,
		activeTools:     map[string]bool{},
		activePrompts:   map[string]bool{},
		activeResources: map[string]bool{},
	}
}

// Start registers the current capabilities and serves the configured
// transport. It returns immediately; the transport runs in background
// goroutines until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.ctx, s.cancelFunc = context.WithCancel(ctx)

	s.server = server.NewMCPServer(
		"chimera-engine",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
	)
	s.mu.Unlock()

	if err := s.syncCapabilities(s.ctx); err != nil {
		return fmt.Errorf("registering initial capabilities: %w", err)
	}

	s.wg.Add(1)
	go s.monitorUpdates()

	if path, ok := s.registryFilePath(); ok {
		s.startRegistryWatch(path)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	switch s.cfg.Transport {
	case config.TransportSSE:
		logging.Info(subsystem, "Starting MCP server with SSE transport on %s", addr)
		s.sseServer = server.NewSSEServer(
			s.server,
			server.WithBaseURL(fmt.Sprintf("http://%s", addr)),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := s.sseServer
		go func() {
			if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error(subsystem, err, "SSE server error")
			}
		}()
	default:
		logging.Info(subsystem, "Starting MCP server with stdio transport")
		s.stdioServer = server.NewStdioServer(s.server)
		stdioServer := s.stdioServer
		go func() {
			if err := stdioServer.Listen(s.ctx, os.Stdin, os.Stdout); err != nil && s.ctx.Err() == nil {
				logging.Error(subsystem, err, "Stdio server error")
			}
		}()
	}
	return nil
}

// Stop shuts the transport down and waits for background routines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.server == nil {
		s.mu.Unlock()
		return fmt.Errorf("server not started")
	}
	cancelFunc := s.cancelFunc
	sseServer := s.sseServer
	s.mu.Unlock()

	logging.Info(subsystem, "Stopping MCP server")
	if cancelFunc != nil {
		cancelFunc()
	}

	if sseServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logging.Error(subsystem, err, "Error shutting down SSE server")
		}
	}
	// The stdio server stops on context cancellation.

	s.wg.Wait()

	s.mu.Lock()
	s.server = nil
	s.sseServer = nil
	s.stdioServer = nil
	s.mu.Unlock()
	return nil
}

// Endpoint reports where a client should connect.
func (s *Server) Endpoint() string {
	if s.cfg.Transport == config.TransportSSE {
		return fmt.Sprintf("http://%s:%d/sse", s.cfg.Host, s.cfg.Port)
	}
	return "stdio"
}

// monitorUpdates re-syncs capabilities whenever the engine reports a
// surface change (tool created, macro registered, spec loaded).
func (s *Server) monitorUpdates() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.engine.Updates():
			if err := s.syncCapabilities(s.ctx); err != nil {
				logging.Error(subsystem, err, "Capability re-sync failed")
			}
		}
	}
}
