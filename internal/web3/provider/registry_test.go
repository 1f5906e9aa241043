package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"UB-Client/internal/bulletin"
	"UB-Client/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryDefaultsToPolygon(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.ChainConfig{})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	target, err := reg.Default()
	require.NoError(t, err)
	require.Equal(t, DefaultChainName, target.Name)
	require.Equal(t, bulletin.DefaultBulletinAddress, target.BulletinAddress)

	id, err := target.Client.ChainID(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, bulletin.DefaultChainID, id.Int64())
	require.Len(t, target.ReaderOptions(), 1)
}

func TestNewRegistryFromDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default: local
chains:
  local:
    rpc_url: http://127.0.0.1:8545
    chain_id: 1337
    bulletin_address: "0x00000000000000000000000000000000000000aa"
  amoy:
    rpc_url: http://127.0.0.1:8546
    chain_id: 80002
`), 0o644))

	etc := "0x00000000000000000000000000000000000000bb"
	reg, err := NewRegistry(context.Background(), config.ChainConfig{DefinitionsPath: path, ETCAddress: etc})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	require.Equal(t, []string{"amoy", "local"}, reg.Chains())
	target, err := reg.Default()
	require.NoError(t, err)
	require.Equal(t, "local", target.Name)
	require.Equal(t, common.HexToAddress("0xaa"), target.BulletinAddress)
	require.Equal(t, common.HexToAddress(etc), target.ETCAddress)
	require.Len(t, target.ReaderOptions(), 2)

	amoy, ok := reg.Target("amoy")
	require.True(t, ok)
	require.Equal(t, common.Address{}, amoy.BulletinAddress)
}

func TestNewRegistryOverridesAndUnknownChain(t *testing.T) {
	reg, err := NewRegistry(context.Background(), config.ChainConfig{
		RPCURL:          "http://127.0.0.1:8545",
		ChainID:         31337,
		BulletinAddress: "0x00000000000000000000000000000000000000cc",
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	target, err := reg.Default()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xcc"), target.BulletinAddress)

	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  local:\n    rpc_url: http://127.0.0.1:8545\n"), 0o644))
	_, err = NewRegistry(context.Background(), config.ChainConfig{DefinitionsPath: path, Name: "mainnet"})
	require.Error(t, err)
}
