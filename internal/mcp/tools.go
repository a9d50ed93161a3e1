package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/txprobe/pkg/types"
)

// RegisterTools registers the probe's tools on the MCP server. All tools are
// read-only: the probe's load profile is fixed at startup and cannot be
// changed over the API.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerLatency(s, client)
	registerWindows(s, client)
	registerBlocks(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txprobe_status",
		gomcp.WithDescription("Get current probe status: run id, lifetime transaction and RPC counters, current TPS/RPS/MGas rates, failure rate, latest block."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get("/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("probe unreachable: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txprobe_health",
		gomcp.WithDescription("Quick readiness check for the probe."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if _, err := client.Get("/ready"); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("probe not ready: %v", err)), nil
		}
		return gomcp.NewToolResultText("Probe is ready and submitting."), nil
	})
}

func registerLatency(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txprobe_latency",
		gomcp.WithDescription("Get the lifetime submission latency distribution: min/max/avg and p50-p99 percentiles in milliseconds."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get("/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("probe unreachable: %v", err)), nil
		}
		var status types.Status
		if err := json.Unmarshal(raw, &status); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("unexpected status payload: %v", err)), nil
		}
		if status.Latency == nil {
			return gomcp.NewToolResultText("No latency samples yet."), nil
		}
		return gomcp.NewToolResultText(formatLatency(status.Latency)), nil
	})
}

func registerWindows(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txprobe_windows",
		gomcp.WithDescription("Get recent per-second metric windows (TPS, RPS, MGas/s, failure rate), newest first, each labeled with the block number current when it closed."),
		gomcp.WithNumber("limit",
			gomcp.Description("Number of windows to return (default 20, max 1000)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		raw, err := client.Get(fmt.Sprintf("/v1/windows?limit=%d", limit))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("probe unreachable: %v", err)), nil
		}
		var windows []types.WindowSample
		if err := json.Unmarshal(raw, &windows); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("unexpected windows payload: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatWindows(windows)), nil
	})
}

func registerBlocks(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("txprobe_blocks",
		gomcp.WithDescription("Get recently observed blocks: number, transaction count, gas used, and wall time between head advances."),
		gomcp.WithNumber("limit",
			gomcp.Description("Number of blocks to return (default 20, max 1000)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		raw, err := client.Get(fmt.Sprintf("/v1/blocks?limit=%d", limit))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("probe unreachable: %v", err)), nil
		}
		var blocks []types.BlockObservation
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("unexpected blocks payload: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatBlocks(blocks)), nil
	})
}
