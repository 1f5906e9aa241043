package bulletin

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
)

// AliasCache stores author aliases keyed by address. An empty alias is a
// valid cached value meaning "no alias".
type AliasCache interface {
	GetAlias(ctx context.Context, author common.Address) (alias string, found bool, err error)
	SetAlias(ctx context.Context, author common.Address, alias string) error
}

// Option customises a Reader.
type Option func(*Reader)

// WithBulletinAddress overrides the UB contract address.
func WithBulletinAddress(addr common.Address) Option {
	return func(r *Reader) {
		r.ubAddr = addr
	}
}

// WithETCAddress skips discovery and binds the ETC at a known address.
func WithETCAddress(addr common.Address) Option {
	return func(r *Reader) {
		r.etcAddr = addr
	}
}

// WithAliasCache enables author alias caching.
func WithAliasCache(cache AliasCache) Option {
	return func(r *Reader) {
		r.aliases = cache
	}
}

// WithLogger sets the logger used for discovery and cache diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.log = logger
		}
	}
}
