// Package wallet manages the local signing account used for state-changing
// bulletin calls. Key generation, keystore encryption and transaction
// signing are delegated to go-ethereum.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ScryptParams selects the key-derivation cost used when encrypting.
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt matches the go-ethereum keystore defaults.
	StandardScrypt = ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	// LightScrypt trades security for speed; meant for tests and devnets.
	LightScrypt = ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

// Account is a secp256k1 key pair able to sign transactions.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// New generates a random account.
func New() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return FromECDSA(key), nil
}

// FromECDSA wraps an existing private key.
func FromECDSA(key *ecdsa.PrivateKey) *Account {
	return &Account{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Import parses a hex encoded private key, with or without the 0x prefix.
func Import(privateKeyHex string) (*Account, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"), "0X")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return FromECDSA(key), nil
}

// Decrypt opens a keystore v3 JSON document.
func Decrypt(encryptedJSON []byte, password string) (*Account, error) {
	key, err := keystore.DecryptKey(encryptedJSON, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return FromECDSA(key.PrivateKey), nil
}

// LoadFile reads and decrypts a keystore file.
func LoadFile(path, password string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	return Decrypt(data, password)
}

// Address returns the account address.
func (a *Account) Address() common.Address {
	if a == nil {
		return common.Address{}
	}
	return a.address
}

// PrivateKeyHex exports the raw key, 0x prefixed.
func (a *Account) PrivateKeyHex() string {
	if a == nil || a.key == nil {
		return ""
	}
	return "0x" + common.Bytes2Hex(crypto.FromECDSA(a.key))
}

// Encrypt serialises the account as keystore v3 JSON.
func (a *Account) Encrypt(password string, params ScryptParams) ([]byte, error) {
	if a == nil || a.key == nil {
		return nil, errors.New("wallet: empty account")
	}
	if params.N <= 0 || params.P <= 0 {
		params = StandardScrypt
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    a.address,
		PrivateKey: a.key,
	}
	data, err := keystore.EncryptKey(key, password, params.N, params.P)
	if err != nil {
		return nil, fmt.Errorf("encrypt keystore: %w", err)
	}
	return data, nil
}

// SaveFile encrypts the account and writes it with owner-only permissions.
func (a *Account) SaveFile(path, password string, params ScryptParams) error {
	data, err := a.Encrypt(password, params)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keystore directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keystore %s: %w", path, err)
	}
	return nil
}

// TransactOpts builds signing options for the given chain.
func (a *Account) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	if a == nil || a.key == nil {
		return nil, errors.New("wallet: empty account")
	}
	if chainID == nil {
		return nil, errors.New("wallet: chain id is required")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(a.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// CallOpts builds read options that identify the caller as this account.
func (a *Account) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, From: a.Address()}
}

// Source locates the account a process should sign with. A private key wins
// over a keystore file.
type Source struct {
	KeystorePath string
	Password     string
	PrivateKey   string
}

// ErrNoAccount is returned by Source.Load when nothing is configured.
var ErrNoAccount = errors.New("wallet: no account configured")

// Load resolves the account. A configured keystore path that does not exist
// yields ErrNoAccount so a fresh install can run read-only.
func (s Source) Load() (*Account, error) {
	if key := strings.TrimSpace(s.PrivateKey); key != "" {
		return Import(key)
	}
	if s.KeystorePath == "" {
		return nil, ErrNoAccount
	}
	if _, err := os.Stat(s.KeystorePath); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoAccount
	}
	return LoadFile(s.KeystorePath, s.Password)
}
