// Package types contains shared types for the probe API surface.
package types

import "time"

// FailureKind classifies why a submission or RPC call failed.
type FailureKind string

const (
	// FailureNone marks a successful outcome.
	FailureNone FailureKind = ""
	// FailureTimeout means the call exceeded the configured RPC timeout.
	FailureTimeout FailureKind = "timeout"
	// FailureConnectionRefused means the node could not be reached.
	FailureConnectionRefused FailureKind = "connection-refused"
	// FailureNodeError means the node returned a JSON-RPC error payload.
	FailureNodeError FailureKind = "node-error"
	// FailureMalformed means the response could not be parsed.
	FailureMalformed FailureKind = "malformed"
)

// TransactionOutcome is the result of a single submission attempt.
// Produced exactly once per transaction; never retried or amended.
type TransactionOutcome struct {
	Success bool
	Latency time.Duration
	GasUsed uint64 // gas credited on successful submission (gas limit; receipts are not awaited)
	Kind    FailureKind
	Nonce   uint64
}

// BlockObservation captures a single advance of the chain head.
type BlockObservation struct {
	Number    uint64
	Timestamp time.Time // block timestamp as reported by the node
	TxCount   int
	GasUsed   uint64
	SinceLast time.Duration // wall time since the previously observed head (0 for the first)
}

// DerivedRates are per-window gauges recomputed each metrics tick.
type DerivedRates struct {
	TPS         float64 `json:"tps"`
	RPS         float64 `json:"rps"`
	MGasPerSec  float64 `json:"mgasPerSec"`
	FailureRate float64 `json:"failureRate"`
}

// LatencyStats summarizes the submission latency distribution in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// BlockInfo is the monitor's view of the chain head for the status API.
type BlockInfo struct {
	Number       uint64  `json:"number"`
	BlockTimeSec float64 `json:"blockTimeSec"`
	TxCount      int     `json:"txCount"`
	GasUsed      uint64  `json:"gasUsed"`
	Stale        bool    `json:"stale"`
}

// Status is the full probe snapshot served by /v1/status and streamed over WebSocket.
type Status struct {
	RunID       string        `json:"runId"`
	Address     string        `json:"address"`
	TargetTPS   float64       `json:"targetTps"`
	Concurrency int           `json:"concurrency"`
	UptimeSec   float64       `json:"uptimeSec"`
	Submitted   uint64        `json:"submitted"`
	Succeeded   uint64        `json:"succeeded"`
	Failed      uint64        `json:"failed"`
	RPCCalls    uint64        `json:"rpcCalls"`
	GasUsed     uint64        `json:"gasUsed"`
	Rates       DerivedRates  `json:"rates"`
	Latency     *LatencyStats `json:"latency,omitempty"`
	Block       BlockInfo     `json:"block"`
}

// WindowSample is one persisted metrics window, labeled with the block number
// that was current when the window closed.
type WindowSample struct {
	TimestampMS int64   `json:"timestampMs"`
	BlockNumber uint64  `json:"blockNumber"`
	Submitted   uint64  `json:"submitted"`
	Failed      uint64  `json:"failed"`
	RPCCalls    uint64  `json:"rpcCalls"`
	GasUsed     uint64  `json:"gasUsed"`
	TPS         float64 `json:"tps"`
	RPS         float64 `json:"rps"`
	MGasPerSec  float64 `json:"mgasPerSec"`
	FailureRate float64 `json:"failureRate"`
}
