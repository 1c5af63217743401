package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/mcp"
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server on stdin/stdout.

The server speaks JSON-RPC 2.0 and exposes the knowledge base as tools:
  - kb_add_text: Add text to the knowledge base
  - kb_add_url:  Fetch and index a web page
  - kb_search:   Semantic search
  - kb_sources:  List ingested sources
  - kb_stats:    Knowledge base statistics
  - kb_health:   Component health check

This command is typically invoked by AI agents and not run directly.`,
	RunE: runMcp,
}

func runMcp(cmd *cobra.Command, args []string) error {
	// Stdout belongs to the protocol, so logs must go to stderr
	log.SetOutput(os.Stderr)

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	// Quiet shutdown; stdout stays clean for the client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	server := mcp.NewServer(manager)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
