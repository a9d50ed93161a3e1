// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the probe configuration.
type Config struct {
	NodeRPCURL   string
	PrivateKey   string // hex-encoded sender key, never logged
	TargetTPS    float64
	Concurrency  int
	ChainID      int64 // 0 = query eth_chainId at startup
	GasLimit     uint64
	GasTipCap    int64
	GasFeeCap    int64
	UseLegacy    bool  // legacy gas-price transactions instead of EIP-1559
	TxValueWei   int64 // value carried by each transfer
	ListenAddr   string
	DatabasePath string
	RPCTimeout   time.Duration
	MetricsTick  time.Duration
	BlockPoll    time.Duration
	TestDuration time.Duration // 0 = run until interrupted
}

// Defaults
const (
	DefaultNodeRPCURL   = "http://localhost:8545"
	DefaultTargetTPS    = 10.0
	DefaultConcurrency  = 10
	DefaultGasLimit     = 21000
	DefaultGasTipCap    = 1000000000  // 1 Gwei
	DefaultGasFeeCap    = 20000000000 // 20 Gwei
	DefaultTxValueWei   = 1000000000000000 // 0.001 ETH
	DefaultListenAddr   = ":3001"
	DefaultDatabasePath = "./data/txprobe.db"
	DefaultRPCTimeout   = 2 * time.Second
	DefaultMetricsTick  = time.Second
	DefaultBlockPoll    = time.Second
)

// Load reads configuration from environment variables and command-line
// flags. Flags take precedence over the environment.
func Load() (*Config, error) {
	cfg := &Config{
		NodeRPCURL:   DefaultNodeRPCURL,
		TargetTPS:    DefaultTargetTPS,
		Concurrency:  DefaultConcurrency,
		GasLimit:     DefaultGasLimit,
		GasTipCap:    DefaultGasTipCap,
		GasFeeCap:    DefaultGasFeeCap,
		TxValueWei:   DefaultTxValueWei,
		ListenAddr:   DefaultListenAddr,
		DatabasePath: DefaultDatabasePath,
		RPCTimeout:   DefaultRPCTimeout,
		MetricsTick:  DefaultMetricsTick,
		BlockPoll:    DefaultBlockPoll,
	}
	cfg.applyEnv()

	var (
		rpcURL      = flag.String("rpc", cfg.NodeRPCURL, "Node JSON-RPC URL")
		tps         = flag.Float64("tps", cfg.TargetTPS, "Target transactions per second")
		concurrency = flag.Int("concurrency", cfg.Concurrency, "Number of submission workers")
		chainID     = flag.Int64("chainid", cfg.ChainID, "Chain ID (0 = query the node)")
		gasLimit    = flag.Uint64("gaslimit", cfg.GasLimit, "Gas limit per transfer")
		gasTipCap   = flag.Int64("gastipcap", cfg.GasTipCap, "EIP-1559 priority fee in wei")
		gasFeeCap   = flag.Int64("gasfeecap", cfg.GasFeeCap, "EIP-1559 max fee per gas in wei")
		useLegacy   = flag.Bool("legacy", cfg.UseLegacy, "Send legacy gas-price transactions")
		listenAddr  = flag.String("listen", cfg.ListenAddr, "HTTP listen address")
		dbPath      = flag.String("db", cfg.DatabasePath, "SQLite database path")
		duration    = flag.Duration("duration", cfg.TestDuration, "Run duration (0 = until interrupted)")
	)
	flag.Parse()

	cfg.NodeRPCURL = *rpcURL
	cfg.TargetTPS = *tps
	cfg.Concurrency = *concurrency
	cfg.ChainID = *chainID
	cfg.GasLimit = *gasLimit
	cfg.GasTipCap = *gasTipCap
	cfg.GasFeeCap = *gasFeeCap
	cfg.UseLegacy = *useLegacy
	cfg.ListenAddr = *listenAddr
	cfg.DatabasePath = *dbPath
	cfg.TestDuration = *duration

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NODE_RPC_URL"); v != "" {
		c.NodeRPCURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("TARGET_TPS"); v != "" {
		if tps, err := strconv.ParseFloat(v, 64); err == nil {
			c.TargetTPS = tps
		}
	}
	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChainID = id
		}
	}
	if v := os.Getenv("GAS_LIMIT"); v != "" {
		if g, err := strconv.ParseUint(v, 10, 64); err == nil && g > 0 {
			c.GasLimit = g
		}
	}
	if v := os.Getenv("GAS_TIP_CAP"); v != "" {
		if tip, err := strconv.ParseInt(v, 10, 64); err == nil && tip >= 0 {
			c.GasTipCap = tip
		}
	}
	if v := os.Getenv("GAS_PRICE"); v != "" {
		// Legacy alias kept for older deployment manifests.
		if fee, err := strconv.ParseInt(v, 10, 64); err == nil && fee > 0 {
			c.GasFeeCap = fee
		}
	}
	if v := os.Getenv("GAS_FEE_CAP"); v != "" {
		if fee, err := strconv.ParseInt(v, 10, 64); err == nil && fee > 0 {
			c.GasFeeCap = fee
		}
	}
	if v := os.Getenv("USE_LEGACY"); v != "" {
		c.UseLegacy = v == "1" || v == "true"
	}
	if v := os.Getenv("TX_VALUE_WEI"); v != "" {
		if val, err := strconv.ParseInt(v, 10, 64); err == nil && val >= 0 {
			c.TxValueWei = val
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("RPC_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.RPCTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("METRICS_TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.MetricsTick = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("BLOCK_POLL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.BlockPoll = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TEST_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.TestDuration = d
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.NodeRPCURL == "" {
		return fmt.Errorf("node RPC URL is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if c.TargetTPS <= 0 {
		return fmt.Errorf("target TPS must be positive, got %v", c.TargetTPS)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.GasLimit < 21000 {
		return fmt.Errorf("gas limit must be at least 21000, got %d", c.GasLimit)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain id must not be negative, got %d", c.ChainID)
	}
	return nil
}
