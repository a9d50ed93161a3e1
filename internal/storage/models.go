package storage

import "time"

// RunTotals are the lifetime counters written when a run completes.
type RunTotals struct {
	Submitted uint64
	Succeeded uint64
	Failed    uint64
	RPCCalls  uint64
	GasUsed   uint64
}

// Run is one probe invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Address     string
	TargetTPS   float64
	Concurrency int
	Totals      RunTotals
	Status      string // running, completed, aborted
}
