// Package bulletintest provides an in-memory chain that answers the UB and
// ETC contract ABIs, for tests of code built on bulletin.Reader.
package bulletintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"UB-Client/internal/bulletin"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// DefaultETCAddress is the ETC address a new Chain reports from getETC.
	DefaultETCAddress = common.HexToAddress("0x00000000000000000000000000000000000e7c01")

	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	stringArgs     = abi.Arguments{{Type: mustType("string")}}
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// RevertError mimics the JSON-RPC error a node returns for a reverted call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

// ErrorCode matches the code geth uses for reverts.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData returns the ABI encoded Error(string) payload.
func (e *RevertError) ErrorData() interface{} {
	packed, err := stringArgs.Pack(e.Reason)
	if err != nil {
		panic(err)
	}
	return hexutil.Encode(append(append([]byte{}, revertSelector...), packed...))
}

// Revert builds a revert error carrying reason.
func Revert(reason string) error {
	return &RevertError{Reason: reason}
}

// Post is a post as stored by the fake UB contract.
type Post struct {
	Type      bulletin.PostType
	Title     string
	Summary   string
	Content   string
	Author    common.Address
	Timestamp int64
}

// postTuple matches the postAt output components by name.
type postTuple struct {
	PostType  *big.Int
	Title     string
	Summary   string
	Content   string
	Author    common.Address
	Timestamp *big.Int
	Extra     string
}

// Chain is a fake web3.Backend hosting one UB and one ETC contract.
type Chain struct {
	mu sync.Mutex

	chainID      *big.Int
	ub           common.Address
	etc          common.Address
	hideETC      bool
	docURL       string
	uiURL        string
	managerAlias string
	price        *big.Int
	posts        []Post
	aliases      map[common.Address]string
	statuses     map[common.Address]string
	subscribers  map[common.Address]bool
	feedback     []string
	failures     map[string]error
	calls        map[string]int
	sent         []*types.Transaction
	closed       bool
}

// New returns a chain with chain id 137, the default UB address and no posts.
func New() *Chain {
	return &Chain{
		chainID:      big.NewInt(bulletin.DefaultChainID),
		ub:           bulletin.DefaultBulletinAddress,
		etc:          DefaultETCAddress,
		docURL:       "https://docs.example.org/ub",
		uiURL:        "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		managerAlias: "manager",
		price:        big.NewInt(1_000_000_000_000_000),
		aliases:      make(map[common.Address]string),
		statuses:     make(map[common.Address]string),
		subscribers:  make(map[common.Address]bool),
		failures:     make(map[string]error),
		calls:        make(map[string]int),
	}
}

// UBAddress returns the UB contract address.
func (c *Chain) UBAddress() common.Address { return c.ub }

// ETCAddress returns the ETC contract address.
func (c *Chain) ETCAddress() common.Address { return c.etc }

// HideETC makes getETC return the zero address.
func (c *Chain) HideETC() {
	c.mu.Lock()
	c.hideETC = true
	c.mu.Unlock()
}

// AddPost appends a post and returns its index.
func (c *Chain) AddPost(p Post) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, p)
	return uint64(len(c.posts) - 1)
}

// SetAlias sets the ETC alias of author.
func (c *Chain) SetAlias(author common.Address, alias string) {
	c.mu.Lock()
	c.aliases[author] = alias
	c.mu.Unlock()
}

// SetStatus sets what getUserStatus answers for addr.
func (c *Chain) SetStatus(addr common.Address, status string) {
	c.mu.Lock()
	c.statuses[addr] = status
	c.mu.Unlock()
}

// SetSubscribed grants or revokes a subscription.
func (c *Chain) SetSubscribed(addr common.Address, ok bool) {
	c.mu.Lock()
	c.subscribers[addr] = ok
	c.mu.Unlock()
}

// SetPrice sets the price of one subscription period.
func (c *Chain) SetPrice(wei *big.Int) {
	c.mu.Lock()
	c.price = new(big.Int).Set(wei)
	c.mu.Unlock()
}

// Fail makes every call to method return err. A nil err clears it.
func (c *Chain) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, method)
		return
	}
	c.failures[method] = err
}

// Calls returns how many times method was called or sent.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TotalCalls returns the number of contract calls and transactions seen.
func (c *Chain) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

// Sent returns the transactions accepted by SendTransaction.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

// Feedback returns the feedback messages stored so far.
func (c *Chain) Feedback() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.feedback...)
}

// Closed reports whether Close was called.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Chain) abiFor(to *common.Address) (abi.ABI, string, error) {
	if to == nil {
		return abi.ABI{}, "", errors.New("contract creation is not supported")
	}
	switch *to {
	case c.ub:
		return bulletin.BulletinABI, "ub", nil
	case c.etc:
		return bulletin.ETCABI, "etc", nil
	}
	return abi.ABI{}, "", fmt.Errorf("no contract at %s", to.Hex())
}

func (c *Chain) decode(to *common.Address, data []byte) (*abi.Method, []any, error) {
	parsed, _, err := c.abiFor(to)
	if err != nil {
		return nil, nil, err
	}
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

// CallContract executes a view method of UB or ETC.
func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, args, err := c.decode(msg.To, msg.Data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method.Name]++
	if failure := c.failures[method.Name]; failure != nil {
		return nil, failure
	}

	var out []any
	switch method.Name {
	case "getDocumentationURL":
		out = []any{c.docURL}
	case "getCreatorUIPackageURL":
		out = []any{c.uiURL}
	case "getETC":
		etc := c.etc
		if c.hideETC {
			etc = common.Address{}
		}
		out = []any{etc}
	case "totalPosts":
		out = []any{big.NewInt(int64(len(c.posts)))}
	case "getUserStatus":
		status, ok := c.statuses[msg.From]
		if !ok {
			status = "viewer"
		}
		out = []any{status}
	case "postAt":
		idx := args[0].(*big.Int)
		if !idx.IsUint64() || idx.Uint64() >= uint64(len(c.posts)) {
			return nil, Revert("Index out of range")
		}
		p := c.posts[idx.Uint64()]
		if p.Type.Has(bulletin.PostSubscriptionOnly) && !c.subscribers[msg.From] && msg.From != p.Author {
			return nil, Revert(bulletin.SubscriptionRequiredReason)
		}
		out = []any{postTuple{
			PostType:  new(big.Int).SetUint64(uint64(p.Type)),
			Title:     p.Title,
			Summary:   p.Summary,
			Content:   p.Content,
			Author:    p.Author,
			Timestamp: big.NewInt(p.Timestamp),
		}}
	case "getManagerAlias":
		out = []any{c.managerAlias}
	case "getAuthorAlias":
		out = []any{c.aliases[args[0].(common.Address)]}
	case "subscriptionPrice":
		out = []any{new(big.Int).Set(c.price)}
	case "verifySubscription":
		status := big.NewInt(0)
		if c.subscribers[args[0].(common.Address)] {
			status = big.NewInt(1)
		}
		out = []any{status}
	default:
		return nil, fmt.Errorf("%s is not a view method", method.Name)
	}
	return method.Outputs.Pack(out...)
}

// CodeAt reports code at every address.
func (c *Chain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

// PendingCodeAt reports code at every address.
func (c *Chain) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x1}, nil
}

// HeaderByNumber returns a pre-London header so transactions use legacy pricing.
func (c *Chain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (c *Chain) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}

func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

// SendTransaction applies submitFeedback and subscribe.
func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	method, args, err := c.decode(tx.To(), tx.Data())
	if err != nil {
		return err
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("recover sender: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method.Name]++
	if failure := c.failures[method.Name]; failure != nil {
		return failure
	}
	switch method.Name {
	case "submitFeedback":
		c.feedback = append(c.feedback, args[0].(string))
	case "subscribe":
		periods := args[0].(*big.Int)
		want := new(big.Int).Mul(c.price, periods)
		if tx.Value().Cmp(want) != 0 {
			return Revert("Wrong subscription value")
		}
		c.subscribers[from] = true
	default:
		return fmt.Errorf("%s is not a transaction method", method.Name)
	}
	c.sent = append(c.sent, tx)
	return nil
}

// TransactionReceipt reports every sent transaction as mined in block 2.
func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.sent {
		if tx.Hash() == hash {
			return &types.Receipt{
				Status:      types.ReceiptStatusSuccessful,
				TxHash:      hash,
				BlockNumber: big.NewInt(2),
				GasUsed:     21_000,
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (c *Chain) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (c *Chain) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("log subscriptions are not supported")
}

// ChainID returns 137.
func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
