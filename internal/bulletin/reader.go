package bulletin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"UB-Client/internal/web3"
	"UB-Client/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Reader is the read-only view over the UB and ETC contracts. All fields are
// set by NewReader and never change afterwards.
type Reader struct {
	backend web3.Backend
	ubAddr  common.Address
	etcAddr common.Address
	ub      *contract
	etc     *contract
	aliases AliasCache
	log     *slog.Logger
}

// NewReader binds the UB contract and discovers the ETC address through
// getETC. A discovery failure is logged and leaves the reader usable for UB
// calls; ETC calls then fail with ErrNotConnected.
func NewReader(ctx context.Context, backend web3.Backend, opts ...Option) (*Reader, error) {
	if backend == nil {
		return nil, errors.New("bulletin: backend is nil")
	}
	r := &Reader{
		backend: backend,
		ubAddr:  DefaultBulletinAddress,
		log:     logger.Named("bulletin"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.ub = newContract("ub", r.ubAddr, BulletinABI, backend)

	if r.etcAddr == (common.Address{}) {
		addr, err := r.discoverETC(ctx)
		if err != nil {
			r.log.Warn("could not retrieve the ETC contract address",
				slog.String("ub", r.ubAddr.Hex()),
				slog.Any("error", err))
			return r, nil
		}
		r.etcAddr = addr
	}
	r.etc = newContract("etc", r.etcAddr, ETCABI, backend)
	r.log.Info("ETC contract bound", slog.String("ub", r.ubAddr.Hex()), slog.String("etc", r.etcAddr.Hex()))
	return r, nil
}

func (r *Reader) discoverETC(ctx context.Context) (common.Address, error) {
	out, err := r.ub.call(r.callOpts(ctx), "getETC")
	if err != nil {
		return common.Address{}, err
	}
	addr, err := first[common.Address]("ub", "getETC", out)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("ub.getETC returned the zero address")
	}
	return addr, nil
}

// Connected reports whether the ETC address is known.
func (r *Reader) Connected() bool {
	return r.etc != nil
}

// BulletinAddress returns the UB contract address.
func (r *Reader) BulletinAddress() common.Address {
	return r.ubAddr
}

// ETCAddress returns the discovered ETC address, zero when not connected.
func (r *Reader) ETCAddress() common.Address {
	if r.etc == nil {
		return common.Address{}
	}
	return r.etcAddr
}

// Backend exposes the chain backend the reader was built on.
func (r *Reader) Backend() web3.Backend {
	return r.backend
}

func (r *Reader) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

func (r *Reader) etcContract() (*contract, error) {
	if r.etc == nil {
		return nil, ErrNotConnected
	}
	return r.etc, nil
}

// DocumentationURL returns the URL of the platform documentation.
func (r *Reader) DocumentationURL(ctx context.Context) (string, error) {
	return r.stringCall(r.ub, r.callOpts(ctx), "getDocumentationURL")
}

// UIPackageURL returns the URL of the latest published viewer build.
func (r *Reader) UIPackageURL(ctx context.Context) (string, error) {
	return r.stringCall(r.ub, r.callOpts(ctx), "getCreatorUIPackageURL")
}

// TotalPosts returns the number of posts ever published, removed ones included.
func (r *Reader) TotalPosts(ctx context.Context) (uint64, error) {
	return r.totalPosts(r.callOpts(ctx))
}

// UserStatus returns "manager", "author", "subscriber" or "viewer". Without
// an account the contract always answers "viewer".
func (r *Reader) UserStatus(ctx context.Context) (string, error) {
	return r.stringCall(r.ub, r.callOpts(ctx), "getUserStatus")
}

// PostAtIndex fetches the post at idx. It returns (nil, nil) when the caller
// needs a subscription to read it.
func (r *Reader) PostAtIndex(ctx context.Context, idx uint64) (*Post, error) {
	return r.postAtIndex(r.callOpts(ctx), idx)
}

// ManagerAlias returns the display name of the platform manager.
func (r *Reader) ManagerAlias(ctx context.Context) (string, error) {
	etc, err := r.etcContract()
	if err != nil {
		return "", err
	}
	return r.stringCall(etc, r.callOpts(ctx), "getManagerAlias")
}

// AuthorAlias returns the display name of an author, empty when unset.
func (r *Reader) AuthorAlias(ctx context.Context, author common.Address) (string, error) {
	return r.authorAlias(r.callOpts(ctx), author)
}

// SubscriptionPrice returns the price of one subscription period in wei.
func (r *Reader) SubscriptionPrice(ctx context.Context) (*big.Int, error) {
	etc, err := r.etcContract()
	if err != nil {
		return nil, err
	}
	out, err := etc.call(r.callOpts(ctx), "subscriptionPrice")
	if err != nil {
		return nil, err
	}
	return first[*big.Int]("etc", "subscriptionPrice", out)
}

// VerifySubscription reports whether subscriber holds a valid subscription.
func (r *Reader) VerifySubscription(ctx context.Context, subscriber common.Address) (bool, error) {
	etc, err := r.etcContract()
	if err != nil {
		return false, err
	}
	out, err := etc.call(r.callOpts(ctx), "verifySubscription", subscriber)
	if err != nil {
		return false, err
	}
	status, err := first[*big.Int]("etc", "verifySubscription", out)
	if err != nil {
		return false, err
	}
	return status.Cmp(big.NewInt(1)) == 0, nil
}

func (r *Reader) stringCall(c *contract, opts *bind.CallOpts, method string, params ...any) (string, error) {
	out, err := c.call(opts, method, params...)
	if err != nil {
		return "", err
	}
	return first[string](c.name, method, out)
}

func (r *Reader) totalPosts(opts *bind.CallOpts) (uint64, error) {
	out, err := r.ub.call(opts, "totalPosts")
	if err != nil {
		return 0, err
	}
	total, err := first[*big.Int]("ub", "totalPosts", out)
	if err != nil {
		return 0, err
	}
	if !total.IsUint64() {
		return 0, fmt.Errorf("ub.totalPosts: value %s overflows uint64", total)
	}
	return total.Uint64(), nil
}

// postAtIndex checks idx against a freshly fetched count. The count and the
// post are separate calls, so a concurrent publication between them is not
// observed.
func (r *Reader) postAtIndex(opts *bind.CallOpts, idx uint64) (*Post, error) {
	total, err := r.totalPosts(opts)
	if err != nil {
		return nil, err
	}
	if idx >= total {
		return nil, fmt.Errorf("post %d of %d: %w", idx, total, ErrIndexTooHigh)
	}

	out, err := r.ub.rawCall(opts, "postAt", new(big.Int).SetUint64(idx))
	if err != nil {
		if IsSubscriptionRequired(err) {
			return nil, nil
		}
		return nil, wrapCallError("ub", "postAt", err)
	}
	raw, ok := abi.ConvertType(out[0], new(rawPost)).(*rawPost)
	if !ok || raw == nil {
		return nil, fmt.Errorf("ub.postAt: unexpected result type %T", out[0])
	}

	alias, err := r.authorAlias(opts, raw.Author)
	if err != nil {
		if IsSubscriptionRequired(err) {
			return nil, nil
		}
		return nil, err
	}
	return raw.toPost(idx, alias)
}

func (r *Reader) authorAlias(opts *bind.CallOpts, author common.Address) (string, error) {
	etc, err := r.etcContract()
	if err != nil {
		return "", err
	}
	if r.aliases != nil {
		alias, found, cacheErr := r.aliases.GetAlias(opts.Context, author)
		if cacheErr != nil {
			r.log.Debug("alias cache read failed", slog.String("author", author.Hex()), slog.Any("error", cacheErr))
		} else if found {
			return alias, nil
		}
	}

	alias, err := r.stringCall(etc, opts, "getAuthorAlias", author)
	if err != nil {
		return "", err
	}
	if r.aliases != nil {
		if cacheErr := r.aliases.SetAlias(opts.Context, author, alias); cacheErr != nil {
			r.log.Debug("alias cache write failed", slog.String("author", author.Hex()), slog.Any("error", cacheErr))
		}
	}
	return alias, nil
}
