// Package worker drives transaction submission at a fixed target rate.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gateway-fm/txprobe/internal/account"
	"github.com/gateway-fm/txprobe/internal/rpc"
	"github.com/gateway-fm/txprobe/internal/txbuilder"
	"github.com/gateway-fm/txprobe/pkg/types"
)

// Client is the submission surface the pool needs.
type Client interface {
	SendRawTransaction(ctx context.Context, txRLP []byte) (string, error)
	Timeout() time.Duration
}

// Sink receives one outcome per submission attempt.
type Sink interface {
	RecordOutcome(types.TransactionOutcome)
}

// Config for a Pool.
type Config struct {
	TargetTPS   float64
	Concurrency int
}

// Pool fans submission out over Concurrency workers. Each worker owns every
// Concurrency-th slot of the aggregate schedule, so per-worker spacing is
// Concurrency/TargetTPS and the pool as a whole submits at TargetTPS.
//
// Slots are computed from a fixed origin, never from "now plus interval":
// a slow submission delays its own worker's next send but does not shift the
// schedule, so the long-run rate holds. Failed submissions are terminal data
// points; nothing is resubmitted and the consumed nonce stays consumed.
type Pool struct {
	cfg     Config
	acc     *account.Account
	builder *txbuilder.TransferBuilder
	client  Client
	sink    Sink
	logger  *slog.Logger
}

// New creates a Pool.
func New(cfg Config, acc *account.Account, builder *txbuilder.TransferBuilder, client Client, sink Sink, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:     cfg,
		acc:     acc,
		builder: builder,
		client:  client,
		sink:    sink,
		logger:  logger,
	}
}

// Run blocks until the context is cancelled and all workers have drained.
// Workers stop within one slot interval of cancellation; an in-flight
// submission is allowed to finish, and its outcome is recorded unless the
// cancellation itself cut the call short.
func (p *Pool) Run(ctx context.Context) {
	origin := time.Now()
	interval := time.Duration(float64(p.cfg.Concurrency) / p.cfg.TargetTPS * float64(time.Second))
	slotGap := time.Duration(1 / p.cfg.TargetTPS * float64(time.Second))

	p.logger.Info("starting workers",
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Float64("target_tps", p.cfg.TargetTPS),
		slog.Duration("worker_interval", interval))

	var wg sync.WaitGroup
	for i := range p.cfg.Concurrency {
		wg.Add(1)
		go func(workerIdx int) {
			defer wg.Done()
			p.runWorker(ctx, origin.Add(time.Duration(workerIdx)*slotGap), interval)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, firstSlot time.Time, interval time.Duration) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for n := 0; ; n++ {
		slot := firstSlot.Add(time.Duration(n) * interval)
		wait := time.Until(slot)
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}

		p.submitOne(ctx)
	}
}

// submitOne allocates a nonce, builds, signs, and submits one transfer, then
// records the outcome. Exactly one outcome is produced per call.
func (p *Pool) submitOne(ctx context.Context) {
	nonce := p.acc.Next()

	raw, err := p.builder.BuildSigned(p.acc, nonce)
	if err != nil {
		// Signing should never fail with a valid key; surface it loudly but
		// keep the nonce consumed like any other failure.
		p.logger.Error("build transaction", slog.Uint64("nonce", nonce), slog.String("error", err.Error()))
		p.sink.RecordOutcome(types.TransactionOutcome{
			Kind:  types.FailureMalformed,
			Nonce: nonce,
		})
		return
	}

	start := time.Now()
	_, err = p.client.SendRawTransaction(ctx, raw)
	latency := time.Since(start)

	if err == nil {
		p.sink.RecordOutcome(types.TransactionOutcome{
			Success: true,
			Latency: latency,
			GasUsed: p.builder.GasLimit(),
			Nonce:   nonce,
		})
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutdown interrupted the call; this says nothing about the node.
		return
	}

	kind := failureKind(err)
	if kind == types.FailureTimeout {
		// The measured duration includes scheduling noise; the configured
		// bound is the latency the run actually paid.
		latency = p.client.Timeout()
	}
	p.logger.Debug("submission failed",
		slog.Uint64("nonce", nonce),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))
	p.sink.RecordOutcome(types.TransactionOutcome{
		Latency: latency,
		Kind:    kind,
		Nonce:   nonce,
	})
}

// failureKind maps client errors onto the outcome taxonomy.
func failureKind(err error) types.FailureKind {
	switch rpc.KindOf(err) {
	case rpc.KindTimeout:
		return types.FailureTimeout
	case rpc.KindNodeError:
		return types.FailureNodeError
	case rpc.KindMalformed:
		return types.FailureMalformed
	default:
		return types.FailureConnectionRefused
	}
}
