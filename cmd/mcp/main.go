// Probe MCP server.
// Exposes read-only probe tools over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/txprobe/internal/mcp"
)

func main() {
	probeURL := os.Getenv("TXPROBE_URL")
	if probeURL == "" {
		probeURL = "http://localhost:3001"
	}

	s := server.NewMCPServer(
		"txprobe",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	client := mcptools.NewClient(probeURL)
	mcptools.RegisterTools(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
