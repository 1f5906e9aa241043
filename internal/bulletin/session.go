package bulletin

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	xerrors "UB-Client/internal/errors"
	"UB-Client/internal/wallet"
	"UB-Client/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Session is the authenticated view: a Reader acting on behalf of an account.
// UserStatus and PostAtIndex identify the caller to the contracts; the
// remaining reads behave exactly as on the Reader.
type Session struct {
	*Reader
	account *wallet.Account
}

// NewSession pairs reader with account.
func NewSession(reader *Reader, account *wallet.Account) (*Session, error) {
	if reader == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "bulletin: reader is nil")
	}
	if account == nil {
		return nil, ErrAccountRequired
	}
	return &Session{Reader: reader, account: account}, nil
}

// Session opens an authenticated view for account.
func (r *Reader) Session(account *wallet.Account) (*Session, error) {
	return NewSession(r, account)
}

// Address returns the acting account's address.
func (s *Session) Address() common.Address {
	return s.account.Address()
}

func (s *Session) ready() error {
	if s == nil || s.Reader == nil || s.account == nil {
		return ErrAccountRequired
	}
	return nil
}

func (s *Session) sessionCallOpts(ctx context.Context) *bind.CallOpts {
	return s.account.CallOpts(ctx)
}

func (s *Session) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainCallFailure, err, "query chain id")
	}
	return s.account.TransactOpts(ctx, chainID)
}

// UserStatus returns the caller's status as seen by UB.
func (s *Session) UserStatus(ctx context.Context) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.stringCall(s.ub, s.sessionCallOpts(ctx), "getUserStatus")
}

// PostAtIndex fetches a post as the session account, so subscription-only
// posts are readable when the account is subscribed.
func (s *Session) PostAtIndex(ctx context.Context, idx uint64) (*Post, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.postAtIndex(s.sessionCallOpts(ctx), idx)
}

// SubmitFeedback stores a feedback message on chain. The transaction is
// returned once broadcast; it is not waited for.
func (s *Session) SubmitFeedback(ctx context.Context, message string) (*types.Transaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	opts, err := s.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.ub.transact(opts, "submitFeedback", message)
	if err != nil {
		logger.Audit().Warn("feedback submission failed",
			slog.String("from", s.Address().Hex()),
			slog.Any("error", err))
		return nil, err
	}
	logger.Audit().Info("feedback submitted",
		slog.String("from", s.Address().Hex()),
		slog.String("tx", tx.Hash().Hex()),
		slog.Int("length", len(message)))
	return tx, nil
}

// Subscribe purchases periods subscription periods for the session account,
// paying SubscriptionPrice * periods.
func (s *Session) Subscribe(ctx context.Context, periods uint64) (*types.Transaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if periods == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "subscription period count must be positive")
	}
	etc, err := s.etcContract()
	if err != nil {
		return nil, err
	}
	price, err := s.SubscriptionPrice(ctx)
	if err != nil {
		return nil, err
	}
	count := new(big.Int).SetUint64(periods)

	opts, err := s.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = new(big.Int).Mul(price, count)

	tx, err := etc.transact(opts, "subscribe", count)
	if err != nil {
		logger.Audit().Warn("subscription failed",
			slog.String("from", s.Address().Hex()),
			slog.Uint64("periods", periods),
			slog.Any("error", err))
		return nil, err
	}
	logger.Audit().Info("subscription purchased",
		slog.String("from", s.Address().Hex()),
		slog.Uint64("periods", periods),
		slog.String("value_wei", opts.Value.String()),
		slog.String("tx", tx.Hash().Hex()))
	return tx, nil
}

// WaitMined blocks until tx is included in a block and fails when it
// reverted. The backend must be able to report receipts.
func (s *Session) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	deployer, ok := s.backend.(bind.DeployBackend)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "backend cannot report transaction receipts")
	}
	receipt, err := bind.WaitMined(ctx, deployer, tx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainCallFailure, err, fmt.Sprintf("wait for %s", tx.Hash().Hex()))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, xerrors.New(CodeContractReverted, fmt.Sprintf("transaction %s reverted", tx.Hash().Hex()),
			xerrors.WithMetadata("block", receipt.BlockNumber.String()))
	}
	return receipt, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("bulletin.Session(%s)", s.Address().Hex())
}
