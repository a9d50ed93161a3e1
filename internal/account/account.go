// Package account holds the single sending account and its nonce allocator.
package account

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/txprobe/internal/rpc"
)

// Account is the probe's one funded sender, shared by every worker.
//
// The nonce counter is the only state workers contend on. Next holds the lock
// for a single increment and nothing else; signing and submission happen
// outside the critical section. There is no rollback: a failed submission is a
// permanent data point and its nonce stays consumed.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address

	mu   sync.Mutex
	next uint64
}

// NewFromHex creates an account from a hex private key, with or without the
// 0x prefix.
func NewFromHex(hexKey string) (*Account, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Account{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Next allocates the next sequence number. Safe for concurrent use; no two
// callers ever observe the same value.
func (a *Account) Next() uint64 {
	a.mu.Lock()
	nonce := a.next
	a.next++
	a.mu.Unlock()
	return nonce
}

// Peek returns the next value without allocating it.
func (a *Account) Peek() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// SetNonce overwrites the counter. Intended for tests and startup seeding.
func (a *Account) SetNonce(nonce uint64) {
	a.mu.Lock()
	a.next = nonce
	a.mu.Unlock()
}

// SyncNonce seeds the allocator from the confirmed on-chain nonce. Called once
// at startup, before any worker runs; an error here is fatal for the process.
func (a *Account) SyncNonce(ctx context.Context, client rpc.Client) error {
	nonce, err := client.NonceAt(ctx, a.Address.Hex())
	if err != nil {
		return fmt.Errorf("query account nonce: %w", err)
	}
	a.SetNonce(nonce)
	return nil
}

// Balance fetches the current on-chain balance.
func (a *Account) Balance(ctx context.Context, client rpc.Client) (*big.Int, error) {
	return client.BalanceAt(ctx, a.Address.Hex())
}
