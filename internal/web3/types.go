package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// Backend is the chain access needed by the bulletin bindings: contract
// calls, transaction submission and log filtering, plus the chain id used for
// signing.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Network summarises a dialled chain for status reporting.
type Network struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}
