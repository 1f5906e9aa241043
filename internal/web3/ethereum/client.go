package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"UB-Client/internal/web3"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to reach an EVM compatible chain.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
	Notes   string
}

// Client is a dialled JSON-RPC connection satisfying web3.Backend.
type Client struct {
	*ethclient.Client

	name  string
	notes string

	mu      sync.Mutex
	chainID *big.Int
	closed  bool
}

// Dial connects to the configured RPC endpoint. When cfg.ChainID is set it is
// trusted and eth_chainId is never queried.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("ethereum: rpc url is not configured")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	c := &Client{
		Client: ethclient.NewClient(rpcClient),
		name:   cfg.Name,
		notes:  cfg.Notes,
	}
	if cfg.ChainID > 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	}
	return c, nil
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	return c.name
}

// ChainID returns the chain id, querying the node once and caching it.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.Client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// Snapshot gathers lightweight metadata from the chain.
func (c *Client) Snapshot(ctx context.Context) (web3.Network, error) {
	id, err := c.ChainID(ctx)
	if err != nil {
		return web3.Network{}, err
	}
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return web3.Network{}, fmt.Errorf("query block number: %w", err)
	}
	return web3.Network{
		Name:        c.name,
		ChainID:     id.String(),
		BlockNumber: head,
		Notes:       c.notes,
	}, nil
}

// Close releases the RPC connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.Client.Close()
}

var _ web3.Backend = (*Client)(nil)
