package bulletin

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPostTypeString(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{0, "Removed"},
		{1, "Public | Text content"},
		{2, "Subscription only | Text content"},
		{5, "Public | IPFS CID"},
		{6, "Subscription only | IPFS CID"},
	}
	for _, tc := range cases {
		if got := PostTypeString(tc.in); got != tc.want {
			t.Fatalf("PostTypeString(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}

	mixed := PostTypeString(uint64(PostPublic | PostIPFS))
	if strings.Contains(mixed, "Text content") {
		t.Fatalf("IPFS post should not be labelled text content: %q", mixed)
	}
}

func TestRawPostAliasSubstitution(t *testing.T) {
	author := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	raw := &rawPost{PostType: big.NewInt(1), Author: author, Timestamp: big.NewInt(10)}

	post, err := raw.toPost(0, "")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if post.Author != author.Hex() {
		t.Fatalf("empty alias should fall back to address, got %q", post.Author)
	}
	if post.Time().Unix() != 10 {
		t.Fatalf("unexpected time %d", post.Time().Unix())
	}
	post, err = raw.toPost(0, "Alice")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if post.Author != "Alice" {
		t.Fatalf("alias not used, got %q", post.Author)
	}
}

func TestRawPostRejectsOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	author := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	if _, err := (&rawPost{PostType: huge, Author: author, Timestamp: big.NewInt(1)}).toPost(0, ""); err == nil {
		t.Fatal("expected error for post type wider than 64 bits")
	}
	if _, err := (&rawPost{PostType: big.NewInt(1), Author: author, Timestamp: huge}).toPost(0, ""); err == nil {
		t.Fatal("expected error for timestamp wider than 64 bits")
	}
}

func TestPostCID(t *testing.T) {
	p := &Post{Type: PostPublic | PostIPFS, Content: "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"}
	c, err := p.CID()
	if err != nil {
		t.Fatalf("parse cid: %v", err)
	}
	if c.String() != p.Content {
		t.Fatalf("cid round trip mismatch: %s", c)
	}

	text := &Post{Type: PostPublic, Content: "hello"}
	if _, err := text.CID(); !errors.Is(err, ErrInlineContent) {
		t.Fatalf("expected ErrInlineContent, got %v", err)
	}

	bad := &Post{Type: PostIPFS, Content: "not-a-cid"}
	if _, err := bad.CID(); err == nil {
		t.Fatal("expected invalid cid error")
	}
}
