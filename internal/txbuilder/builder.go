// Package txbuilder constructs and signs the probe's transfer transactions.
package txbuilder

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txprobe/internal/account"
)

// TransferBuilder builds value transfers to pseudo-random recipients.
// Safe for concurrent use: math/rand/v2 top-level functions are
// goroutine-safe and the rest of the state is immutable after construction.
type TransferBuilder struct {
	chainID   *big.Int
	signer    types.Signer
	value     *big.Int
	gasLimit  uint64
	gasTipCap *big.Int
	gasFeeCap *big.Int
	useLegacy bool
}

// Config for a TransferBuilder.
type Config struct {
	ChainID   *big.Int
	Value     *big.Int // transfer amount in wei
	GasLimit  uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int // used as the gas price for legacy transactions
	UseLegacy bool
}

// New creates a TransferBuilder.
func New(cfg Config) (*TransferBuilder, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() == 0 {
		return nil, fmt.Errorf("chain id must be non-zero")
	}
	if cfg.GasLimit == 0 {
		return nil, fmt.Errorf("gas limit must be positive")
	}
	value := cfg.Value
	if value == nil {
		value = big.NewInt(1)
	}
	return &TransferBuilder{
		chainID:   cfg.ChainID,
		signer:    types.LatestSignerForChainID(cfg.ChainID),
		value:     value,
		gasLimit:  cfg.GasLimit,
		gasTipCap: cfg.GasTipCap,
		gasFeeCap: cfg.GasFeeCap,
		useLegacy: cfg.UseLegacy,
	}, nil
}

// GasLimit returns the fixed gas limit applied to every transfer.
func (b *TransferBuilder) GasLimit() uint64 {
	return b.gasLimit
}

// RandomRecipient generates a pseudo-random 20-byte address.
// Not derived from any key; the funds sent there are burned.
func RandomRecipient() common.Address {
	var addr common.Address
	binary.LittleEndian.PutUint64(addr[0:8], rand.Uint64())
	binary.LittleEndian.PutUint64(addr[8:16], rand.Uint64())
	binary.LittleEndian.PutUint32(addr[16:20], rand.Uint32())
	return addr
}

// Build creates an unsigned transfer carrying the given nonce.
func (b *TransferBuilder) Build(nonce uint64, to common.Address) *types.Transaction {
	if b.useLegacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: b.gasFeeCap,
			Gas:      b.gasLimit,
			To:       &to,
			Value:    b.value,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: b.gasTipCap,
		GasFeeCap: b.gasFeeCap,
		Gas:       b.gasLimit,
		To:        &to,
		Value:     b.value,
	})
}

// BuildSigned builds, signs, and RLP-encodes a transfer to a random recipient.
func (b *TransferBuilder) BuildSigned(acc *account.Account, nonce uint64) ([]byte, error) {
	tx := b.Build(nonce, RandomRecipient())

	signed, err := types.SignTx(tx, b.signer, acc.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	data, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}
