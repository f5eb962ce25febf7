package spreadsheet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ppadmin/kit"
)

// RegisterMCP registers spreadsheet tools on an MCP server.
func (p *Parser) RegisterMCP(srv *mcp.Server) {
	p.registerParseTool(srv)
	p.registerDetectTool(srv)
	p.registerFormatsTool(srv)
}

// logged records each tool call with its duration and outcome.
func (p *Parser) logged(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			p.logger.Debug("spreadsheet: mcp call", "tool", name,
				"duration_ms", time.Since(start).Milliseconds(), "error", err)
			return resp, err
		}
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- parse ---

type parseReq struct {
	Path string `json:"path"`
	TSV  bool   `json:"tsv,omitempty"`
}

func (p *Parser) registerParseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "spreadsheet_parse",
		Description: "Parse a spreadsheet file (xls, xlsx, ods, csv, tsv) into header-keyed records.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to parse"},
			"tsv":  map[string]any{"type": "boolean", "description": "Treat delimited text as tab-separated"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*parseReq)
		var opts Options
		if r.TSV {
			opts.Comma = '\t'
		}
		return p.ParseFile(ctx, r.Path, opts)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r parseReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decode)
}

// --- detect ---

type detectReq struct {
	Path string `json:"path"`
}

func (p *Parser) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "spreadsheet_detect",
		Description: "Detect the container format of a spreadsheet file from its content.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to detect"},
		}, []string{"path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		format, err := p.DetectFile(r.Path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decode)
}

// --- formats ---

func (p *Parser) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "spreadsheet_formats",
		Description: "List the supported spreadsheet formats.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decode)
}
