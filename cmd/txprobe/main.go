package main

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gateway-fm/txprobe/internal/account"
	"github.com/gateway-fm/txprobe/internal/config"
	"github.com/gateway-fm/txprobe/internal/metrics"
	"github.com/gateway-fm/txprobe/internal/monitor"
	"github.com/gateway-fm/txprobe/internal/probe"
	"github.com/gateway-fm/txprobe/internal/rpc"
	"github.com/gateway-fm/txprobe/internal/storage"
	"github.com/gateway-fm/txprobe/internal/transport"
	"github.com/gateway-fm/txprobe/internal/txbuilder"
	"github.com/gateway-fm/txprobe/internal/worker"
)

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		logger.Error("initialize storage", "error", err, "path", cfg.DatabasePath)
		os.Exit(1)
	}
	defer store.Close()

	promMetrics := metrics.NewPrometheusMetrics(nil)
	promMetrics.TargetTPS.Set(cfg.TargetTPS)
	collector := metrics.NewCollector(promMetrics)

	client := rpc.NewHTTPClient(rpc.Config{
		URL:      cfg.NodeRPCURL,
		Timeout:  cfg.RPCTimeout,
		Observer: collector,
	})

	acc, err := account.NewFromHex(cfg.PrivateKey)
	if err != nil {
		logger.Error("load sender account", "error", err)
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	chainID, err := runStartupChecks(startupCtx, logger, cfg, client, acc)
	cancelStartup()
	if err != nil {
		logger.Error("startup checks failed", "error", err)
		os.Exit(1)
	}

	builder, err := txbuilder.New(txbuilder.Config{
		ChainID:   big.NewInt(chainID),
		Value:     big.NewInt(cfg.TxValueWei),
		GasLimit:  cfg.GasLimit,
		GasTipCap: big.NewInt(cfg.GasTipCap),
		GasFeeCap: big.NewInt(cfg.GasFeeCap),
		UseLegacy: cfg.UseLegacy,
	})
	if err != nil {
		logger.Error("configure transaction builder", "error", err)
		os.Exit(1)
	}

	runID := "run-" + time.Now().UTC().Format("20060102-150405")
	if err := store.CreateRun(context.Background(), &storage.Run{
		ID:          runID,
		StartedAt:   time.Now(),
		Address:     acc.Address.Hex(),
		TargetTPS:   cfg.TargetTPS,
		Concurrency: cfg.Concurrency,
	}); err != nil {
		logger.Error("create run", "error", err)
		os.Exit(1)
	}

	prb := probe.New(cfg, runID, acc, collector, store, logger)
	mon := monitor.New(client, prb, logger, monitor.Config{PollInterval: cfg.BlockPoll})
	prb.SetMonitor(mon)

	pool := worker.New(worker.Config{
		TargetTPS:   cfg.TargetTPS,
		Concurrency: cfg.Concurrency,
	}, acc, builder, client, collector, logger)

	apiServer := transport.NewServer(prb, nil, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http api listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.TestDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, cfg.TestDuration)
		defer cancel()
	}

	// The tick loop and monitor outlive worker shutdown slightly so the last
	// outcomes still land in a persisted window.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		mon.Run(bgCtx)
	}()
	go func() {
		defer bg.Done()
		prb.RunTickLoop(bgCtx)
	}()

	prb.SetReady(true)
	logger.Info("probe running",
		"run_id", runID,
		"target_tps", cfg.TargetTPS,
		"concurrency", cfg.Concurrency,
		"sender", acc.Address.Hex())

	pool.Run(runCtx)
	logger.Info("workers drained, shutting down")
	prb.SetReady(false)

	cancelBg()
	bg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	apiServer.Stop()

	if err := store.CompleteRun(context.Background(), runID, prb.Totals(), "completed"); err != nil {
		logger.Error("finalize run", "error", err)
	}

	totals := prb.Totals()
	logger.Info("run complete",
		"run_id", runID,
		"submitted", totals.Submitted,
		"succeeded", totals.Succeeded,
		"failed", totals.Failed,
		"rpc_calls", totals.RPCCalls,
		"gas_used", totals.GasUsed)
}

// runStartupChecks verifies the node is reachable and the account is usable.
// Any failure here is fatal: a probe that cannot submit has nothing to measure.
func runStartupChecks(ctx context.Context, logger *slog.Logger, cfg *config.Config, client rpc.Client, acc *account.Account) (int64, error) {
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("node reachable", "head", head)

	chainID := cfg.ChainID
	if chainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return 0, err
		}
		chainID = int64(id)
	}
	logger.Info("chain id resolved", "chain_id", chainID)

	balance, err := acc.Balance(ctx, client)
	if err != nil {
		return 0, err
	}
	// Rough floor: a thousand transfers' worth of value plus max gas.
	perTx := new(big.Int).Add(
		big.NewInt(cfg.TxValueWei),
		new(big.Int).Mul(big.NewInt(int64(cfg.GasLimit)), big.NewInt(cfg.GasFeeCap)),
	)
	floor := new(big.Int).Mul(perTx, big.NewInt(1000))
	if balance.Cmp(floor) < 0 {
		logger.Warn("sender balance is low, the run may start failing with insufficient funds",
			"address", acc.Address.Hex(),
			"balance_wei", balance.String())
	} else {
		logger.Info("sender funded", "address", acc.Address.Hex(), "balance_wei", balance.String())
	}

	if err := acc.SyncNonce(ctx, client); err != nil {
		return 0, err
	}
	logger.Info("nonce seeded", "next_nonce", acc.Peek())

	return chainID, nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
