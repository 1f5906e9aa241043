package main

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"UB-Client/internal/bulletin"
	"UB-Client/internal/bulletin/bulletintest"
	"UB-Client/internal/config"
	"UB-Client/internal/wallet"
	"UB-Client/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

const devKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func setup(t *testing.T, chain *bulletintest.Chain, mutate func(*config.Config)) *bytes.Buffer {
	t.Helper()
	cfg := config.Default()
	cfg.Wallet.PasswordEnv = "UB_TEST_PASSWORD"
	cfg.Wallet.PrivateKeyEnv = "UB_TEST_PRIVATE_KEY"
	cfg.Wallet.LightScrypt = true
	if mutate != nil {
		mutate(cfg)
	}

	out := &bytes.Buffer{}
	prevOut, prevDial, prevLoad := stdout, dial, loadConfig
	stdout = out
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	dial = func(context.Context, config.ChainConfig) (web3.Backend, []bulletin.Option, func(), error) {
		return chain, nil, func() {}, nil
	}
	t.Cleanup(func() {
		stdout, dial, loadConfig = prevOut, prevDial, prevLoad
	})
	return out
}

func TestRunType(t *testing.T) {
	out := setup(t, bulletintest.New(), nil)
	cases := map[string]string{
		"0":   "Removed",
		"1":   "Public | Text content",
		"3":   "Public | Subscription only | Text content",
		"0x5": "Public | IPFS CID",
	}
	for in, want := range cases {
		out.Reset()
		if err := runType(context.Background(), []string{in}); err != nil {
			t.Fatalf("type %s: %v", in, err)
		}
		if got := strings.TrimSpace(out.String()); got != want {
			t.Fatalf("type %s: got %q want %q", in, got, want)
		}
	}
	if err := runType(context.Background(), []string{"abc"}); err == nil {
		t.Fatal("expected error for invalid bits")
	}
}

func TestRunPostAndPosts(t *testing.T) {
	chain := bulletintest.New()
	chain.SetAlias(alice, "Alice")
	chain.AddPost(bulletintest.Post{Type: bulletin.PostPublic, Title: "first", Content: "hello", Author: alice, Timestamp: 1700000000})
	chain.AddPost(bulletintest.Post{Type: bulletin.PostSubscriptionOnly, Title: "hidden", Author: alice})
	chain.AddPost(bulletintest.Post{Type: bulletin.PostDeleted, Author: alice})
	out := setup(t, chain, nil)

	if err := runPost(context.Background(), []string{"0"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if text := out.String(); !strings.Contains(text, "first") || !strings.Contains(text, "Alice") {
		t.Fatalf("unexpected post output: %s", text)
	}

	out.Reset()
	if err := runPosts(context.Background(), nil); err != nil {
		t.Fatalf("posts: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "first") || !strings.Contains(text, "removed by its author") {
		t.Fatalf("unexpected posts output: %s", text)
	}
	if strings.Contains(text, "hidden") || !strings.Contains(text, "#1") {
		t.Fatalf("restricted post should be rendered without content: %s", text)
	}

	err := runPost(context.Background(), []string{"3"})
	if !errors.Is(err, bulletin.ErrIndexTooHigh) {
		t.Fatalf("expected ErrIndexTooHigh, got %v", err)
	}
}

func TestRunStatusAndPrice(t *testing.T) {
	chain := bulletintest.New()
	out := setup(t, chain, nil)

	if err := runStatus(context.Background(), nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	if text := out.String(); !strings.Contains(text, "manager") || !strings.Contains(text, "0.001 POL") {
		t.Fatalf("unexpected status output: %s", text)
	}

	out.Reset()
	if err := runPrice(context.Background(), nil); err != nil {
		t.Fatalf("price: %v", err)
	}
	if !strings.Contains(out.String(), "1000000000000000 wei") {
		t.Fatalf("unexpected price output: %s", out.String())
	}
}

func TestRunFeedbackRequiresAccount(t *testing.T) {
	chain := bulletintest.New()
	setup(t, chain, nil)

	err := runFeedback(context.Background(), []string{"hello"})
	if !errors.Is(err, bulletin.ErrAccountRequired) {
		t.Fatalf("expected ErrAccountRequired, got %v", err)
	}
	if len(chain.Sent()) != 0 {
		t.Fatal("no transaction should be sent")
	}
}

func TestRunFeedbackAndSubscribe(t *testing.T) {
	chain := bulletintest.New()
	out := setup(t, chain, nil)
	t.Setenv("UB_TEST_PRIVATE_KEY", devKey)

	if err := runFeedback(context.Background(), []string{"nice", "posts"}); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if fb := chain.Feedback(); len(fb) != 1 || fb[0] != "nice posts" {
		t.Fatalf("unexpected feedback: %v", fb)
	}

	out.Reset()
	if err := runSubscribe(context.Background(), []string{"-wait", "2"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !strings.Contains(out.String(), "mined in block 2") {
		t.Fatalf("unexpected subscribe output: %s", out.String())
	}
	sent := chain.Sent()
	if got := sent[len(sent)-1].Value(); got.Cmp(big.NewInt(2_000_000_000_000_000)) != 0 {
		t.Fatalf("unexpected subscription value %s", got)
	}
}

func TestWalletImportAndAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	out := setup(t, bulletintest.New(), func(cfg *config.Config) {
		cfg.Wallet.KeystorePath = path
	})
	t.Setenv("UB_TEST_PASSWORD", "pw")

	if err := runWallet(context.Background(), []string{"import", devKey}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := runWallet(context.Background(), []string{"import", devKey}); err == nil {
		t.Fatal("expected error when keystore exists")
	}

	out.Reset()
	if err := runWallet(context.Background(), []string{"address"}); err != nil {
		t.Fatalf("address: %v", err)
	}
	account, err := wallet.Import(devKey)
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != account.Address().Hex() {
		t.Fatalf("unexpected address output: %s", got)
	}
}

func TestFormatPOL(t *testing.T) {
	if got := formatPOL(big.NewInt(1_500_000_000_000_000_000)); got != "1.5" {
		t.Fatalf("unexpected format %s", got)
	}
}
