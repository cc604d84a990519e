// Package mcp provides an MCP (Model Context Protocol) server for testrun.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/juanibiapina/testrun/internal/service"
)

// maxLogLines is the largest log tail returned to a client
const maxLogLines = service.MaxLogLines

// awaitPoll is how often run_await checks the run status
var awaitPoll = time.Second

// Server wraps the MCP server with testrun-specific functionality.
type Server struct {
	mcpServer *server.MCPServer
	svc       *service.Service
	tools     []string
}

// NewServer creates a new MCP server backed by svc.
func NewServer(version string, svc *service.Service) *Server {
	s := &Server{svc: svc}

	s.mcpServer = server.NewMCPServer(
		"testrun",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()

	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// ListToolNames returns the names of all registered tools.
func (s *Server) ListToolNames() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) registerTools() {
	s.addTool(mcp.NewTool("run_start",
		mcp.WithDescription("Start a test run for a suite. Fails if another run is queued or running."),
		mcp.WithString("suite",
			mcp.Required(),
			mcp.Description("Test suite name (e.g. \"smoke\")"),
		),
		mcp.WithString("base_url",
			mcp.Description("Base URL of the environment under test (default: configured dashboard URL)"),
		),
	), s.handleRunStart)

	s.addTool(mcp.NewTool("run_list",
		mcp.WithDescription("List recent test runs, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs (1-100, default: 10)"),
		),
	), s.handleRunList)

	s.addTool(mcp.NewTool("run_show",
		mcp.WithDescription("Show a test run with its summary and artifacts"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID"),
		),
	), s.handleRunShow)

	s.addTool(mcp.NewTool("run_logs",
		mcp.WithDescription("Read the last lines of a test run's log"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID"),
		),
		mcp.WithNumber("lines",
			mcp.Description("Number of trailing lines (1-2000, default: configured tail length)"),
		),
	), s.handleRunLogs)

	s.addTool(mcp.NewTool("run_await",
		mcp.WithDescription("Wait for a test run to finish and return its record"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Timeout in seconds (0 = 1 hour, default: 300)"),
		),
	), s.handleRunAwait)
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.mcpServer.AddTool(tool, handler)
}

// jsonResult marshals a result to JSON and returns a tool result.
func jsonResult(result any) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultJSON)), nil
}

// errorResult reports a service error with its kind
func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", service.KindOf(err), err)), nil
}

func (s *Server) handleRunStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	suite, err := request.RequireString("suite")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	baseURL := request.GetString("base_url", "")

	result, err := s.svc.Start(ctx, suite, baseURL)
	if err != nil {
		var serr *service.Error
		if errors.As(err, &serr) && serr.Kind == service.KindConflict {
			return mcp.NewToolResultError(fmt.Sprintf("%s: run %s is currently %s",
				serr.Message, serr.ActiveRunID, serr.ActiveStatus)), nil
		}
		return errorResult(err)
	}

	return jsonResult(result)
}

func (s *Server) handleRunList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", service.DefaultListLimit)
	return jsonResult(map[string]any{"runs": s.svc.List(max(1, limit))})
}

func (s *Server) handleRunShow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	record, err := s.svc.Get(runID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(record)
}

func (s *Server) handleRunLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lines := request.GetInt("lines", 0)
	if lines > maxLogLines {
		lines = maxLogLines
	}

	logs, err := s.svc.Logs(runID, lines)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(logs)
}

func (s *Server) handleRunAwait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeout := request.GetInt("timeout", 300)
	if timeout <= 0 {
		timeout = 3600 // Max 1 hour
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	record, err := s.svc.Await(ctx, runID, awaitPoll)
	if err != nil {
		if ctx.Err() != nil && record != nil {
			return mcp.NewToolResultError(fmt.Sprintf("timeout waiting for run %s (currently %s)", runID, record.Status)), nil
		}
		return errorResult(err)
	}
	return jsonResult(record)
}
