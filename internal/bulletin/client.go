package bulletin

import (
	"context"
	"log/slog"
	"sync"

	"UB-Client/internal/wallet"
	"UB-Client/pkg/logger"

	"github.com/ethereum/go-ethereum/core/types"
)

// Client is a Reader plus an optional account that can be created, imported,
// loaded or replaced at any time. Calls needing an account fail with
// ErrAccountRequired before touching the chain.
type Client struct {
	*Reader

	mu      sync.RWMutex
	account *wallet.Account
	scrypt  wallet.ScryptParams
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithScrypt selects the keystore cost used by SaveAccount.
func WithScrypt(params wallet.ScryptParams) ClientOption {
	return func(c *Client) {
		c.scrypt = params
	}
}

// WithAccount starts the client with an account already set.
func WithAccount(account *wallet.Account) ClientOption {
	return func(c *Client) {
		c.account = account
	}
}

// NewClient wraps reader.
func NewClient(reader *Reader, opts ...ClientOption) *Client {
	c := &Client{Reader: reader, scrypt: wallet.StandardScrypt}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Account returns the current account, nil when none is set.
func (c *Client) Account() *wallet.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// SetAccount replaces the current account. A nil account clears it.
func (c *Client) SetAccount(account *wallet.Account) {
	c.mu.Lock()
	c.account = account
	c.mu.Unlock()
}

// CreateAccount generates a random account and makes it current.
func (c *Client) CreateAccount() (*wallet.Account, error) {
	account, err := wallet.New()
	if err != nil {
		return nil, err
	}
	c.SetAccount(account)
	logger.Audit().Info("account created", slog.String("address", account.Address().Hex()))
	return account, nil
}

// SaveAccount returns the current account as encrypted keystore JSON.
func (c *Client) SaveAccount(password string) ([]byte, error) {
	account := c.Account()
	if account == nil {
		return nil, ErrAccountRequired
	}
	return account.Encrypt(password, c.scrypt)
}

// LoadAccount decrypts keystore JSON and makes it current.
func (c *Client) LoadAccount(encryptedJSON []byte, password string) error {
	account, err := wallet.Decrypt(encryptedJSON, password)
	if err != nil {
		return err
	}
	c.SetAccount(account)
	logger.Audit().Info("account loaded", slog.String("address", account.Address().Hex()))
	return nil
}

// ImportAccount makes the account behind a hex private key current.
func (c *Client) ImportAccount(privateKeyHex string) error {
	account, err := wallet.Import(privateKeyHex)
	if err != nil {
		return err
	}
	c.SetAccount(account)
	logger.Audit().Info("account imported", slog.String("address", account.Address().Hex()))
	return nil
}

// Session returns the authenticated view for the current account.
func (c *Client) Session() (*Session, error) {
	return NewSession(c.Reader, c.Account())
}

// UserStatus answers as the current account when one is set.
func (c *Client) UserStatus(ctx context.Context) (string, error) {
	if s, err := c.Session(); err == nil {
		return s.UserStatus(ctx)
	}
	return c.Reader.UserStatus(ctx)
}

// PostAtIndex reads as the current account when one is set.
func (c *Client) PostAtIndex(ctx context.Context, idx uint64) (*Post, error) {
	if s, err := c.Session(); err == nil {
		return s.PostAtIndex(ctx, idx)
	}
	return c.Reader.PostAtIndex(ctx, idx)
}

// SubmitFeedback requires an account.
func (c *Client) SubmitFeedback(ctx context.Context, message string) (*types.Transaction, error) {
	s, err := c.Session()
	if err != nil {
		return nil, err
	}
	return s.SubmitFeedback(ctx, message)
}

// Subscribe requires an account.
func (c *Client) Subscribe(ctx context.Context, periods uint64) (*types.Transaction, error) {
	s, err := c.Session()
	if err != nil {
		return nil, err
	}
	return s.Subscribe(ctx, periods)
}
