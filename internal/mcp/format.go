package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gateway-fm/txprobe/pkg/types"
)

// kv formats a key-value pair with aligned values.
func kv(key string, value any) string {
	return fmt.Sprintf("%-16s %v", key+":", value)
}

func section(title string) string {
	return "## " + title
}

func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

func formatStatus(raw json.RawMessage) string {
	var st types.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		// Fall back to the raw payload rather than hiding data.
		return string(raw)
	}

	blockLine := fmt.Sprintf("%d (%d txs, %d gas)", st.Block.Number, st.Block.TxCount, st.Block.GasUsed)
	if st.Block.Stale {
		blockLine += " [STALE]"
	}

	return joinLines(
		section("Probe Status"),
		kv("Run", st.RunID),
		kv("Sender", st.Address),
		kv("Uptime", (time.Duration(st.UptimeSec*float64(time.Second))).Round(time.Second).String()),
		kv("Target TPS", fmt.Sprintf("%.1f", st.TargetTPS)),
		kv("Workers", st.Concurrency),
		"",
		section("Lifetime"),
		kv("Submitted", st.Submitted),
		kv("Succeeded", st.Succeeded),
		kv("Failed", st.Failed),
		kv("RPC calls", st.RPCCalls),
		kv("Gas used", st.GasUsed),
		"",
		section("Current Window"),
		kv("TPS", fmt.Sprintf("%.1f", st.Rates.TPS)),
		kv("RPS", fmt.Sprintf("%.1f", st.Rates.RPS)),
		kv("MGas/s", fmt.Sprintf("%.3f", st.Rates.MGasPerSec)),
		kv("Failure rate", formatPct(st.Rates.FailureRate)),
		"",
		section("Chain Head"),
		kv("Block", blockLine),
		kv("Block time", fmt.Sprintf("%.2fs", st.Block.BlockTimeSec)),
	)
}

func formatLatency(stats *types.LatencyStats) string {
	return joinLines(
		section("Submission Latency"),
		kv("Samples", stats.Count),
		kv("Min", formatMs(stats.Min)),
		kv("Avg", formatMs(stats.Avg)),
		kv("P50", formatMs(stats.P50)),
		kv("P75", formatMs(stats.P75)),
		kv("P90", formatMs(stats.P90)),
		kv("P95", formatMs(stats.P95)),
		kv("P99", formatMs(stats.P99)),
		kv("Max", formatMs(stats.Max)),
	)
}

func formatWindows(windows []types.WindowSample) string {
	if len(windows) == 0 {
		return "No windows recorded yet."
	}

	var b strings.Builder
	b.WriteString(section("Recent Windows") + "\n")
	b.WriteString(fmt.Sprintf("%-22s %8s %8s %8s %9s %8s\n", "time", "block", "tps", "rps", "mgas/s", "fail%"))
	for _, w := range windows {
		ts := time.UnixMilli(w.TimestampMS).UTC().Format("2006-01-02 15:04:05")
		b.WriteString(fmt.Sprintf("%-22s %8d %8.1f %8.1f %9.3f %8s\n",
			ts, w.BlockNumber, w.TPS, w.RPS, w.MGasPerSec, formatPct(w.FailureRate)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBlocks(blocks []types.BlockObservation) string {
	if len(blocks) == 0 {
		return "No blocks observed yet."
	}

	var b strings.Builder
	b.WriteString(section("Recent Blocks") + "\n")
	b.WriteString(fmt.Sprintf("%10s %6s %12s %10s\n", "block", "txs", "gas", "interval"))
	for _, obs := range blocks {
		b.WriteString(fmt.Sprintf("%10d %6d %12d %10s\n",
			obs.Number, obs.TxCount, obs.GasUsed, obs.SinceLast.Round(10*time.Millisecond)))
	}
	return strings.TrimRight(b.String(), "\n")
}
