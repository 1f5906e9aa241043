package bulletin

import (
	"fmt"
	"time"

	"UB-Client/internal/observability/metrics"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// contract is a bound contract that records call metrics and wraps failures
// with the contract and method name.
type contract struct {
	name    string
	address common.Address
	bound   *bind.BoundContract
}

func newContract(name string, address common.Address, parsed abi.ABI, backend bind.ContractBackend) *contract {
	return &contract{
		name:    name,
		address: address,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}
}

// rawCall returns the backend error untouched so callers can inspect reverts.
func (c *contract) rawCall(opts *bind.CallOpts, method string, params ...any) ([]any, error) {
	start := time.Now()
	var out []any
	err := c.bound.Call(opts, &out, method, params...)
	metrics.ObserveContractCall(c.name, method, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s: empty result", c.name, method)
	}
	return out, nil
}

func (c *contract) call(opts *bind.CallOpts, method string, params ...any) ([]any, error) {
	out, err := c.rawCall(opts, method, params...)
	if err != nil {
		return nil, wrapCallError(c.name, method, err)
	}
	return out, nil
}

func (c *contract) transact(opts *bind.TransactOpts, method string, params ...any) (*types.Transaction, error) {
	start := time.Now()
	tx, err := c.bound.Transact(opts, method, params...)
	metrics.ObserveContractCall(c.name, method, err, time.Since(start))
	if err != nil {
		return nil, wrapCallError(c.name, method, err)
	}
	return tx, nil
}

func first[T any](contractName, method string, out []any) (T, error) {
	var zero T
	value, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("%s.%s: unexpected result type %T", contractName, method, out[0])
	}
	return value, nil
}
