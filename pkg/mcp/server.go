// Package mcp exposes the fact-checking pipeline as MCP tools over a stdio
// transport so agent hosts can drive analyses directly.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
)

type analyzeTextParams struct {
	Text string `json:"text" jsonschema:"The text to fact-check"`
}

type listRecordsParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of records to return (default 10, max 50)"`
}

type explainRecordParams struct {
	RecordID string `json:"record_id" jsonschema:"The ID of a saved analysis record"`
}

// Server adapts the chat service to MCP tool calls.
type Server struct {
	chat *chat.Service
}

func New(chatSvc *chat.Service) *Server {
	return &Server{chat: chatSvc}
}

// Run serves MCP over stdio until the context ends or the host closes the
// transport.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "truthcast",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_text",
		Description: "Run the full fact-checking pipeline on a text and return the verdict summary",
	}, s.analyzeText)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_records",
		Description: "List the most recent fact-check records, newest first",
	}, s.listRecords)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "explain_record",
		Description: "Explain how a saved fact-check record reached its verdict",
	}, s.explainRecord)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server terminated")
	}
	return nil
}

func (s *Server) analyzeText(ctx context.Context, req *mcp.CallToolRequest, params *analyzeTextParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, nil, fmt.Errorf("text is required")
	}

	msg, err := s.chat.RunText(ctx, "analyze "+params.Text, "")
	if err != nil {
		return nil, nil, err
	}
	return textResult(msg), nil, nil
}

func (s *Server) listRecords(ctx context.Context, req *mcp.CallToolRequest, params *listRecordsParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit == 0 {
		limit = chat.DefaultListLimit
	}

	msg, err := s.chat.Respond(ctx, model.ToolInvocation{
		Name:  model.ToolList,
		Limit: limit,
	}, "")
	if err != nil {
		return nil, nil, err
	}
	return textResult(msg), nil, nil
}

func (s *Server) explainRecord(ctx context.Context, req *mcp.CallToolRequest, params *explainRecordParams) (*mcp.CallToolResult, any, error) {
	if params.RecordID == "" {
		return nil, nil, fmt.Errorf("record_id is required")
	}

	msg, err := s.chat.Respond(ctx, model.ToolInvocation{
		Name:     model.ToolWhy,
		RecordID: params.RecordID,
	}, "")
	if err != nil {
		return nil, nil, err
	}
	return textResult(msg), nil, nil
}

// textResult flattens a chat message into MCP text content, appending the
// reference URLs so the host sees the evidence links.
func textResult(msg *model.ChatMessage) *mcp.CallToolResult {
	var b strings.Builder
	b.WriteString(msg.Content)
	if len(msg.References) > 0 {
		b.WriteString("\n\nReferences:\n")
		for _, ref := range msg.References {
			fmt.Fprintf(&b, "- %s: %s\n", ref.Title, ref.Href)
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
	}
}
