package bulletin

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
)

// PostType is the bit-set stored with every post.
type PostType uint64

const (
	// PostDeleted marks a post removed by its author. It carries no content.
	PostDeleted PostType = 0
	// PostPublic marks a post readable by anyone.
	PostPublic PostType = 1
	// PostSubscriptionOnly marks a post readable by subscribers only.
	PostSubscriptionOnly PostType = 1 << 1
	// PostIPFS marks content that is an IPFS CID rather than inline text.
	PostIPFS PostType = 1 << 2
)

// Has reports whether every bit of flag is set.
func (t PostType) Has(flag PostType) bool {
	return flag != 0 && t&flag == flag
}

// String renders the type for display, e.g. "Public | IPFS CID".
func (t PostType) String() string {
	if t == PostDeleted {
		return "Removed"
	}
	labels := make([]string, 0, 3)
	if t.Has(PostPublic) {
		labels = append(labels, "Public")
	}
	if t.Has(PostSubscriptionOnly) {
		labels = append(labels, "Subscription only")
	}
	if t.Has(PostIPFS) {
		labels = append(labels, "IPFS CID")
	} else {
		labels = append(labels, "Text content")
	}
	return strings.Join(labels, " | ")
}

// PostTypeString formats a raw post type value.
func PostTypeString(postType uint64) string {
	return PostType(postType).String()
}

// Post is a bulletin post as returned by PostAtIndex.
type Post struct {
	Index         uint64         `json:"index"`
	Type          PostType       `json:"type"`
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	Content       string         `json:"content"`
	Author        string         `json:"author"`
	AuthorAddress common.Address `json:"author_address"`
	Timestamp     int64          `json:"timestamp"`
}

// Deleted reports whether the author removed the post.
func (p *Post) Deleted() bool {
	return p.Type == PostDeleted
}

// Time returns the publication time.
func (p *Post) Time() time.Time {
	return time.Unix(p.Timestamp, 0).UTC()
}

// ErrInlineContent is returned by CID for posts whose content is plain text.
var ErrInlineContent = errors.New("bulletin: post content is inline text")

// CID parses the content of an IPFS-backed post.
func (p *Post) CID() (cid.Cid, error) {
	if !p.Type.Has(PostIPFS) {
		return cid.Undef, ErrInlineContent
	}
	c, err := cid.Decode(strings.TrimSpace(p.Content))
	if err != nil {
		return cid.Undef, fmt.Errorf("post %d: invalid CID: %w", p.Index, err)
	}
	return c, nil
}

// rawPost mirrors the postAt tuple field for field.
type rawPost struct {
	PostType  *big.Int
	Title     string
	Summary   string
	Content   string
	Author    common.Address
	Timestamp *big.Int
	Extra     string
}

func (r *rawPost) toPost(index uint64, alias string) (*Post, error) {
	p := &Post{
		Index:         index,
		Title:         r.Title,
		Summary:       r.Summary,
		Content:       r.Content,
		AuthorAddress: r.Author,
		Author:        r.Author.Hex(),
	}
	if r.PostType != nil {
		if !r.PostType.IsUint64() {
			return nil, fmt.Errorf("ub.postAt(%d): post type %s overflows uint64", index, r.PostType)
		}
		p.Type = PostType(r.PostType.Uint64())
	}
	if r.Timestamp != nil {
		if !r.Timestamp.IsInt64() {
			return nil, fmt.Errorf("ub.postAt(%d): timestamp %s overflows int64", index, r.Timestamp)
		}
		p.Timestamp = r.Timestamp.Int64()
	}
	if alias != "" {
		p.Author = alias
	}
	return p, nil
}
