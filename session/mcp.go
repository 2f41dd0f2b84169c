package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/clipmark/kit"
)

// RegisterMCP registers the highlight tools on an MCP server.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	s.registerListTool(srv)
	s.registerAddTool(srv)
	s.registerNoteTool(srv)
	s.registerRemoveTool(srv)
	s.registerUndoTool(srv)
	s.registerRedoTool(srv)
	s.registerExportTool(srv)
}

// wrapTool applies the shared endpoint middleware: invocation logging
// with transport attribution, then tool-name error prefixing.
func (s *Session) wrapTool(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(s.instrument(name), toolErrors(name))(e)
}

// instrument logs every invocation outcome with the transport and
// request ID tagged into the context by the serving layer.
func (s *Session) instrument(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			resp, err := next(ctx, req)
			if err != nil {
				s.logger.Warn("session: tool failed", "tool", name,
					"transport", kit.GetTransport(ctx),
					"request_id", kit.GetRequestID(ctx), "error", err)
				return nil, err
			}
			s.logger.Debug("session: tool ok", "tool", name,
				"transport", kit.GetTransport(ctx))
			return resp, nil
		}
	}
}

// toolErrors prefixes endpoint errors with the tool name so clients see
// which operation failed.
func toolErrors(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return resp, nil
		}
	}
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- list ---

func (s *Session) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_highlights",
		Description: "List the current page's highlights in reading order, with notes.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return map[string]any{
			"url":        s.PageURL(),
			"highlights": s.Highlights(),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}

// --- add ---

type addRequest struct {
	Text  string `json:"text,omitempty"`
	XPath string `json:"xpath,omitempty"`
}

func (s *Session) registerAddTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_add",
		Description: "Highlight selected text (pass text) or a whole element (pass xpath). Overlapping highlights merge automatically.",
		InputSchema: inputSchema(map[string]any{
			"text":  map[string]any{"type": "string", "description": "Verbatim page text to highlight"},
			"xpath": map[string]any{"type": "string", "description": "XPath of an element to highlight instead of text"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*addRequest)
		if r.XPath != "" {
			return s.AddElement(ctx, r.XPath)
		}
		return s.AddSelection(ctx, r.Text)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r addRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}

// --- note ---

type noteRequest struct {
	ID   string `json:"id"`
	Note string `json:"note"`
}

func (s *Session) registerNoteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_note",
		Description: "Attach a note to an existing highlight.",
		InputSchema: inputSchema(map[string]any{
			"id":   map[string]any{"type": "string", "description": "Highlight ID"},
			"note": map[string]any{"type": "string", "description": "Note text"},
		}, []string{"id", "note"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*noteRequest)
		if err := s.AddNote(ctx, r.ID, r.Note); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r noteRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}

// --- remove ---

type removeRequest struct {
	ID string `json:"id"`
}

func (s *Session) registerRemoveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_remove",
		Description: "Remove a highlight by ID.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Highlight ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*removeRequest)
		if err := s.RemoveByID(ctx, r.ID); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r removeRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}

// --- undo / redo ---

func (s *Session) registerUndoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_undo",
		Description: "Undo the latest highlight action on the current page.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return map[string]any{"undone": s.Undo(ctx)}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}

// --- export ---

func (s *Session) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_export",
		Description: "Write the current page's highlights and notes to a markdown note file.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		path, err := s.ExportNote()
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": path}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}

func (s *Session) registerRedoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clipmark_redo",
		Description: "Redo the latest undone highlight action.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return map[string]any{"redone": s.Redo(ctx)}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}
	kit.RegisterMCPTool(srv, tool, s.wrapTool(tool.Name, endpoint), decode)
}
