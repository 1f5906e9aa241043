package web3

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleChains = `
default: polygon
chains:
  polygon:
    rpc_url: https://polygon.llamarpc.com
    chain_id: 137
    bulletin_address: "0x19250120917529c25EeEb3FAEdE3977e313b4e49"
    description: Polygon mainnet
  local:
    type: evm
    rpc_url: http://127.0.0.1:8545
    chain_id: 1337
`

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte(sampleChains), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Default != "polygon" {
		t.Fatalf("unexpected default %q", defs.Default)
	}
	polygon := defs.Chains["polygon"]
	if polygon.ChainID != 137 || polygon.RPCURL != "https://polygon.llamarpc.com" {
		t.Fatalf("unexpected polygon entry %+v", polygon)
	}
	if defs.Chains["local"].BulletinAddress != "" {
		t.Fatal("local chain should not carry an address")
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("expected empty set, got %+v", defs.Chains)
	}
}

func TestParseChainDefinitionsValidation(t *testing.T) {
	cases := map[string]string{
		"missing rpc":     "chains:\n  a:\n    chain_id: 1\n",
		"bad address":     "chains:\n  a:\n    rpc_url: http://x\n    bulletin_address: nope\n",
		"unknown default": "default: b\nchains:\n  a:\n    rpc_url: http://x\n",
		"broken yaml":     "chains: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseChainDefinitions([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
