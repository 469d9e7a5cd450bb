// Package mcp implements a Model Context Protocol server over stdio.
// It speaks JSON-RPC 2.0, one message per line, and exposes read-only
// tools for inspecting plans and tasks. Implementer sessions connect it
// as a local MCP server to discover what they should be working on.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

const protocolVersion = "2024-11-05"

// Server is a stdio MCP server.
type Server struct {
	registry *Registry
	info     ServerInfo
	log      *slog.Logger
}

// NewServer creates a server with the given registry and identity.
func NewServer(registry *Registry, info ServerInfo, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{registry: registry, info: info, log: log}
}

// Run reads JSON-RPC requests from in line by line and writes responses
// to out until in is exhausted or ctx is canceled. Notifications (no id)
// produce no response.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleMessage(ctx, line)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}

// handleMessage parses and dispatches one message. A nil return means no
// response should be written.
func (s *Server) handleMessage(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ErrCodeParse, Message: "parse error: " + err.Error()},
		}
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	resp := s.dispatch(ctx, &req)
	if isNotification {
		if resp != nil && resp.Error != nil {
			s.log.Warn("notification failed", "method", req.Method, "error", resp.Error.Message)
		}
		return nil
	}
	resp.ID = req.ID
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	s.log.Debug("handling request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return &Response{JSONRPC: "2.0"}
	case "tools/list":
		return &Response{JSONRPC: "2.0", Result: ToolsListResult{Tools: s.registry.List()}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &Response{JSONRPC: "2.0", Result: struct{}{}}
	default:
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ErrCodeMethodNotFound, Message: "method not found: " + req.Method},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: ErrCodeInvalidParams, Message: "invalid initialize params: " + err.Error()},
			}
		}
	}
	s.log.Info("client connected", "client", params.ClientInfo.Name, "version", params.ClientInfo.Version)

	return &Response{
		JSONRPC: "2.0",
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    ServerCapability{Tools: &ToolsCapability{}},
			ServerInfo:      s.info,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ErrCodeInvalidParams, Message: "invalid tools/call params: " + err.Error()},
		}
	}

	tool, ok := s.registry.Get(params.Name)
	if !ok {
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ErrCodeInvalidParams, Message: "unknown tool: " + params.Name},
		}
	}

	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		// Execution failures surface as tool results, not protocol errors,
		// so the client can show them to the model.
		s.log.Warn("tool failed", "tool", params.Name, "error", err)
		return &Response{JSONRPC: "2.0", Result: ErrorResult(err.Error())}
	}
	return &Response{JSONRPC: "2.0", Result: result}
}
