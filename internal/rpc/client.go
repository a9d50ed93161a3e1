// Package rpc provides a JSON-RPC client for the node under test.
//
// The client deliberately does not retry: the block monitor wants to retry on
// its next poll tick while the workers must count every failure as a data
// point, so retry policy belongs to the caller.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrorKind classifies an RPC failure.
type ErrorKind string

const (
	// KindTimeout: the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindConnectionRefused: the node could not be reached at all.
	KindConnectionRefused ErrorKind = "connection-refused"
	// KindNodeError: the node answered with a JSON-RPC error payload.
	KindNodeError ErrorKind = "node-error"
	// KindMalformed: the response body could not be parsed.
	KindMalformed ErrorKind = "malformed"
)

// Error is the failure type returned by every client method.
type Error struct {
	Kind    ErrorKind
	Code    int // JSON-RPC error code, set for KindNodeError only
	Message string

	cause error // underlying transport error, nil for protocol-level failures
}

func (e *Error) Error() string {
	if e.Kind == KindNodeError {
		return fmt.Sprintf("rpc %s %d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("rpc %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the transport cause so callers can tell a cancelled call
// apart from a node failure with errors.Is.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the error kind, defaulting to KindConnectionRefused for
// transport-level errors that were not produced by this package.
func KindOf(err error) ErrorKind {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return KindConnectionRefused
}

// Observer receives one event per RPC call, successful or not, so the
// aggregator's RPS gauge reflects actual network traffic.
type Observer interface {
	ObserveRPCCall(method string, ok bool, latency time.Duration)
}

// Client is the interface consumed by the workers and the block monitor.
type Client interface {
	// Call makes a raw JSON-RPC call and returns the result member.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// SendRawTransaction submits a signed, RLP-encoded transaction.
	SendRawTransaction(ctx context.Context, txRLP []byte) (string, error)

	// NonceAt fetches the confirmed nonce for an address ("latest").
	NonceAt(ctx context.Context, address string) (uint64, error)

	// BalanceAt fetches the balance for an address ("latest").
	BalanceAt(ctx context.Context, address string) (*big.Int, error)

	// ChainID fetches the chain id.
	ChainID(ctx context.Context) (uint64, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// LatestBlock fetches the latest block header with its transaction count.
	LatestBlock(ctx context.Context) (*Block, error)
}

// Block is the subset of a block the monitor cares about.
type Block struct {
	Number    uint64
	Timestamp time.Time
	TxCount   int
	GasUsed   uint64
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *payloadError   `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type payloadError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Config holds client settings.
type Config struct {
	URL      string
	Timeout  time.Duration // per-call bound; failures past it are KindTimeout
	Observer Observer      // optional
}

// DefaultTimeout bounds a single call when none is configured.
const DefaultTimeout = 2 * time.Second

// HTTPClient implements Client over HTTP POST.
type HTTPClient struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	observer   Observer
}

// NewHTTPClient creates a client for a single node endpoint.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: 256,
		MaxConnsPerHost:     256,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPClient{
		url:     cfg.URL,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		observer: cfg.Observer,
	}
}

// Timeout returns the per-call bound. Workers record this as the latency of a
// timed-out submission.
func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

// Call makes a single JSON-RPC call. Exactly one Observer event is emitted per
// invocation regardless of outcome.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.do(ctx, method, params)
	if c.observer != nil {
		c.observer.ObserveRPCCall(method, err == nil, time.Since(start))
	}
	return result, err
}

func (c *HTTPClient) do(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindConnectionRefused, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var rpcResp response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("unmarshal response: %v", err)}
	}

	if rpcResp.Error != nil {
		return nil, &Error{Kind: KindNodeError, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if rpcResp.Result == nil {
		return nil, &Error{Kind: KindMalformed, Message: "response has neither result nor error"}
	}

	return rpcResp.Result, nil
}

// classifyTransportError maps net/http failures onto the error taxonomy,
// keeping the cause so errors.Is still sees context cancellation.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: err.Error(), cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: err.Error(), cause: err}
	}
	return &Error{Kind: KindConnectionRefused, Message: err.Error(), cause: err}
}

// SendRawTransaction submits a signed transaction and returns its hash.
func (c *HTTPClient) SendRawTransaction(ctx context.Context, txRLP []byte) (string, error) {
	result, err := c.Call(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(txRLP)})
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", &Error{Kind: KindMalformed, Message: fmt.Sprintf("unmarshal tx hash: %v", err)}
	}
	return hash, nil
}

// NonceAt fetches the confirmed nonce for an address.
func (c *HTTPClient) NonceAt(ctx context.Context, address string) (uint64, error) {
	return c.callUint64(ctx, "eth_getTransactionCount", []any{address, "latest"})
}

// BalanceAt fetches the balance for an address at the latest block.
func (c *HTTPClient) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_getBalance", []any{address, "latest"})
	if err != nil {
		return nil, err
	}
	var balanceHex string
	if err := json.Unmarshal(result, &balanceHex); err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("unmarshal balance: %v", err)}
	}
	balance, err := hexutil.DecodeBig(balanceHex)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("decode balance: %v", err)}
	}
	return balance, nil
}

// ChainID fetches the chain id.
func (c *HTTPClient) ChainID(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "eth_chainId", nil)
}

// BlockNumber returns the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, "eth_blockNumber", nil)
}

// LatestBlock fetches the latest block with transaction hashes only.
func (c *HTTPClient) LatestBlock(ctx context.Context) (*Block, error) {
	result, err := c.Call(ctx, "eth_getBlockByNumber", []any{"latest", false})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, &Error{Kind: KindMalformed, Message: "node returned null latest block"}
	}

	var rawBlock struct {
		Number       string   `json:"number"`
		Timestamp    string   `json:"timestamp"`
		GasUsed      string   `json:"gasUsed"`
		Transactions []string `json:"transactions"`
	}
	if err := json.Unmarshal(result, &rawBlock); err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("unmarshal block: %v", err)}
	}

	num, err := hexutil.DecodeUint64(rawBlock.Number)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("decode block number: %v", err)}
	}
	timestampUnix, err := hexutil.DecodeUint64(rawBlock.Timestamp)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: fmt.Sprintf("decode block timestamp: %v", err)}
	}
	gasUsed, _ := hexutil.DecodeUint64(rawBlock.GasUsed)

	return &Block{
		Number:    num,
		Timestamp: time.Unix(int64(timestampUnix), 0),
		TxCount:   len(rawBlock.Transactions),
		GasUsed:   gasUsed,
	}, nil
}

func (c *HTTPClient) callUint64(ctx context.Context, method string, params []any) (uint64, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return 0, err
	}
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return 0, &Error{Kind: KindMalformed, Message: fmt.Sprintf("unmarshal %s: %v", method, err)}
	}
	v, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, &Error{Kind: KindMalformed, Message: fmt.Sprintf("decode %s: %v", method, err)}
	}
	return v, nil
}
