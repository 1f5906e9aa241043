package archive

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SortOrder defines how archived posts are ordered when listing.
type SortOrder int

const (
	// SortByIndexDesc lists the newest posts first.
	SortByIndexDesc SortOrder = iota
	// SortByIndexAsc lists the oldest posts first.
	SortByIndexAsc
)

// ListOptions controls which archived posts are returned.
type ListOptions struct {
	Limit      int
	Offset     int
	FromIndex  *uint64
	ToIndex    *uint64
	Author     string
	Restricted *bool
	Order      SortOrder
	Query      string
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Order != SortByIndexAsc {
		opts.Order = SortByIndexDesc
	}
	opts.Author = strings.TrimSpace(opts.Author)
	if common.IsHexAddress(opts.Author) {
		opts.Author = common.HexToAddress(opts.Author).Hex()
	}
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of posts returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching posts.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithIndexRange keeps posts with from <= index < to. A zero to means no
// upper bound.
func WithIndexRange(from, to uint64) ListOption {
	return func(opts *ListOptions) {
		lower := from
		opts.FromIndex = &lower
		opts.ToIndex = nil
		if to > 0 {
			upper := to
			opts.ToIndex = &upper
		}
	}
}

// WithAuthor filters by author address.
func WithAuthor(address string) ListOption {
	return func(opts *ListOptions) {
		opts.Author = address
	}
}

// WithRestricted filters by whether the post content was readable.
func WithRestricted(restricted bool) ListOption {
	return func(opts *ListOptions) {
		opts.Restricted = new(bool)
		*opts.Restricted = restricted
	}
}

// WithSortOrder changes the returned order.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// WithQuery matches title, summary, content and author alias.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) {
		opts.Query = query
	}
}

// buildListOptions applies option functions on top of defaults.
func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func matchesListFilters(record *Record, opts ListOptions) bool {
	if opts.FromIndex != nil && record.Index < *opts.FromIndex {
		return false
	}
	if opts.ToIndex != nil && record.Index >= *opts.ToIndex {
		return false
	}
	if opts.Author != "" && !strings.EqualFold(record.AuthorAddress, opts.Author) {
		return false
	}
	if opts.Restricted != nil && record.Restricted != *opts.Restricted {
		return false
	}
	if opts.Query != "" {
		needle := strings.ToLower(opts.Query)
		haystack := strings.ToLower(strings.Join([]string{record.Title, record.Summary, record.Content, record.Author}, "\n"))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
