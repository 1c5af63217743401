package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ragtools/kb/internal/kb"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "kb"

	// ServerVersion is the version of this server.
	ServerVersion = "1.0.0"
)

// Server exposes the knowledge base over MCP stdio.
type Server struct {
	manager *kb.Manager

	// Stdin/stdout for communication
	reader *bufio.Reader
	writer io.Writer

	// State
	initialized bool
}

// NewServer creates a new MCP server.
func NewServer(manager *kb.Manager) *Server {
	return &Server{
		manager: manager,
		reader:  bufio.NewReader(os.Stdin),
		writer:  os.Stdout,
	}
}

// Run starts the MCP server and processes requests until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			log.Error("Failed to read from stdin", "error", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}

		s.handleRequest(ctx, req)
	}
}

// handleRequest processes a single MCP request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized":
		// Notification, no response needed
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result, err = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
		return
	}

	s.sendResult(req.ID, result)
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

// handleListTools returns the list of available tools.
func (s *Server) handleListTools() (*ListToolsResult, error) {
	collectionProp := Property{
		Type:        "string",
		Description: "Knowledge base collection to use (default: the configured default collection)",
	}

	tools := []Tool{
		{
			Name:        "kb_add_text",
			Description: "Add text to the knowledge base. The text is chunked, embedded, and stored for later semantic search.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"text": {
						Type:        "string",
						Description: "The text content to index",
					},
					"source": {
						Type:        "string",
						Description: "A name identifying where the text came from",
					},
					"collection": collectionProp,
				},
				Required: []string{"text", "source"},
			},
		},
		{
			Name:        "kb_add_url",
			Description: "Fetch a web page and add its text content to the knowledge base.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"url": {
						Type:        "string",
						Description: "The URL to fetch and index",
					},
					"collection": collectionProp,
				},
				Required: []string{"url"},
			},
		},
		{
			Name:        "kb_search",
			Description: "Search the knowledge base with a natural language query and get ranked text snippets.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "The search query in natural language",
					},
					"collection": collectionProp,
					"limit": {
						Type:        "number",
						Description: "Maximum number of results to return",
						Default:     5,
					},
					"min_score": {
						Type:        "number",
						Description: "Minimum similarity score in [0, 1]; 0 means unfiltered",
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "kb_sources",
			Description: "List the sources ingested into a collection with their chunk counts.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"collection": collectionProp,
				},
			},
		},
		{
			Name:        "kb_stats",
			Description: "Report per-collection and overall knowledge base statistics.",
			InputSchema: JSONSchema{
				Type: "object",
			},
		},
		{
			Name:        "kb_health",
			Description: "Check whether the embedding backend and the vector store are working.",
			InputSchema: JSONSchema{
				Type: "object",
			},
		},
	}

	return &ListToolsResult{Tools: tools}, nil
}

// handleCallTool executes a tool and returns the result.
func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Debug("Calling tool", "name", p.Name)

	var resultText string
	var isError bool

	switch p.Name {
	case "kb_add_text":
		resultText, isError = s.toolAddText(ctx, p.Arguments)
	case "kb_add_url":
		resultText, isError = s.toolAddURL(ctx, p.Arguments)
	case "kb_search":
		resultText, isError = s.toolSearch(ctx, p.Arguments)
	case "kb_sources":
		resultText, isError = s.toolSources(p.Arguments)
	case "kb_stats":
		resultText, isError = s.toolStats()
	case "kb_health":
		resultText, isError = s.toolHealth(ctx)
	default:
		return &CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	return &CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: resultText}},
		IsError: isError,
	}, nil
}

// toolAddText indexes raw text.
func (s *Server) toolAddText(ctx context.Context, args map[string]any) (string, bool) {
	text, _ := args["text"].(string)
	source, _ := args["source"].(string)
	collection, _ := args["collection"].(string)

	result, err := s.manager.AddText(ctx, text, source, collection, nil)
	if err != nil {
		return formatError(err), true
	}

	return fmt.Sprintf("Added %d chunks from %q to collection %q.",
		result.ChunksAdded, result.Source, result.Collection), false
}

// toolAddURL fetches and indexes a web page.
func (s *Server) toolAddURL(ctx context.Context, args map[string]any) (string, bool) {
	url, _ := args["url"].(string)
	collection, _ := args["collection"].(string)

	result, err := s.manager.AddURL(ctx, url, collection, nil)
	if err != nil {
		return formatError(err), true
	}

	return fmt.Sprintf("Added %d chunks from %s to collection %q.",
		result.ChunksAdded, result.Source, result.Collection), false
}

// toolSearch performs a semantic search.
func (s *Server) toolSearch(ctx context.Context, args map[string]any) (string, bool) {
	query, _ := args["query"].(string)
	collection, _ := args["collection"].(string)

	opts := kb.SearchOptions{}
	if l, ok := args["limit"].(float64); ok {
		limit := int(l)
		opts.Limit = &limit
	} else if l, ok := args["limit"].(string); ok {
		if parsed, err := strconv.Atoi(l); err == nil {
			opts.Limit = &parsed
		}
	}
	if m, ok := args["min_score"].(float64); ok {
		opts.MinScore = &m
	}

	results, err := s.manager.Search(ctx, query, collection, opts)
	if err != nil {
		return formatError(err), true
	}

	if len(results) == 0 {
		return "No results found.", false
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results:\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("[%d] %s (chunk %d) - %.1f%% match\n",
			i+1, r.Source, r.Seq, r.Score*100))
		sb.WriteString(truncateContent(r.Text, 500))
		sb.WriteString("\n\n")
	}

	return sb.String(), false
}

// toolSources lists the sources in a collection.
func (s *Server) toolSources(args map[string]any) (string, bool) {
	collection, _ := args["collection"].(string)

	sources, err := s.manager.ListSources(collection)
	if err != nil {
		return formatError(err), true
	}

	if len(sources) == 0 {
		return "No sources ingested.", false
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d sources:\n", len(sources)))
	for _, src := range sources {
		sb.WriteString(fmt.Sprintf("- %s: %d chunks (last added %s)\n",
			src.Source, src.ChunkCount, src.LastAdded.Format("2006-01-02 15:04")))
	}

	return sb.String(), false
}

// toolStats reports knowledge base statistics.
func (s *Server) toolStats() (string, bool) {
	stats, err := s.manager.Stats()
	if err != nil {
		return formatError(err), true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d collections, %d sources, %d chunks total.\n",
		len(stats.Collections), stats.TotalSources, stats.TotalChunks))
	for _, cs := range stats.Collections {
		sb.WriteString(fmt.Sprintf("- %s: %d sources, %d chunks\n", cs.Name, cs.SourceCount, cs.ChunkCount))
	}

	return sb.String(), false
}

// toolHealth checks the embedder and store.
func (s *Server) toolHealth(ctx context.Context) (string, bool) {
	report := s.manager.HealthCheck(ctx)

	var sb strings.Builder
	if report.Healthy {
		sb.WriteString("Healthy.\n")
	} else {
		sb.WriteString("Unhealthy.\n")
	}
	sb.WriteString(fmt.Sprintf("embedder: %v\nstore: %v\n", report.Components.Embedder, report.Components.Store))
	for _, problem := range report.Problems {
		sb.WriteString("- " + problem + "\n")
	}

	// A degraded system is reported as content, not as a protocol error
	return sb.String(), false
}

// sendResult sends a successful response.
func (s *Server) sendResult(id any, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.send(resp)
}

// sendError sends an error response.
func (s *Server) sendError(id any, code int, message, data string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	s.send(resp)
}

// send writes a response to stdout.
func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}

// truncateContent caps chunk text at max runes so a cut never splits a
// multi-byte character.
func truncateContent(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// formatError renders a structured error for the MCP client.
func formatError(err error) string {
	var kbErr *kb.Error
	if errors.As(err, &kbErr) {
		return fmt.Sprintf("Error (%s): %v", kbErr.Kind, err)
	}
	return fmt.Sprintf("Error: %v", err)
}
