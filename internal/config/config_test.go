package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ubd.json")
	if err := os.WriteFile(path, []byte(`{"wallet":{"keystore_path":"keys/wallet.json"},"log":{"audit":{"enabled":true}}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Cache.Driver != "none" || cfg.Archive.Store.Driver != "memory" || cfg.Archive.Queue.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v %+v", cfg.Cache, cfg.Archive)
	}
	if cfg.Wallet.KeystorePath != filepath.Join(dir, "keys", "wallet.json") {
		t.Fatalf("keystore path not resolved: %s", cfg.Wallet.KeystorePath)
	}
	if cfg.Log.Audit.Path != filepath.Join(dir, "logs", "audit.log") {
		t.Fatalf("audit path not defaulted: %s", cfg.Log.Audit.Path)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %s", cfg.Runtime.DataDir)
	}
	if cfg.Wallet.PasswordEnv != "UB_WALLET_PASSWORD" {
		t.Fatalf("unexpected password env %s", cfg.Wallet.PasswordEnv)
	}
	if cfg.Archive.Alerts.TimeoutSeconds != 10 || cfg.Archive.Alerts.WebhookURL != "" {
		t.Fatalf("unexpected alert defaults: %+v", cfg.Archive.Alerts)
	}
}

func TestParseRejectsInvalidDrivers(t *testing.T) {
	_, err := Parse([]byte(`{
		"cache": {"driver": "memcached"},
		"archive": {"store": {"driver": "mysql"}, "queue": {"driver": "rabbitmq"}},
		"chain": {"bulletin_address": "0x123"}
	}`), ".")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"memcached", "archive.store.dsn", "rabbitmq.url", "chain.bulletin_address"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	if err := os.WriteFile(path, []byte(`{"server":{"address":"127.0.0.1:9999"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvConfigPath, path)

	cfg, used, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if used != path || cfg.Server.Address != "127.0.0.1:9999" {
		t.Fatalf("unexpected result: %s %+v", used, cfg.Server)
	}
}

func TestWalletSecretsFromEnv(t *testing.T) {
	t.Setenv("TEST_UB_PW", "s3cret")
	t.Setenv("TEST_UB_KEY", " 0xabc \n")
	w := WalletConfig{PasswordEnv: "TEST_UB_PW", PrivateKeyEnv: "TEST_UB_KEY"}
	if w.Password() != "s3cret" || w.PrivateKey() != "0xabc" {
		t.Fatalf("unexpected secrets: %q %q", w.Password(), w.PrivateKey())
	}
	if (WalletConfig{}).PrivateKey() != "" {
		t.Fatal("empty env name should yield empty key")
	}
}

func TestSampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "ubd.json"))
	if err != nil {
		t.Fatalf("load sample config: %v", err)
	}
	if !cfg.Archive.Enabled || cfg.Cache.Driver != "memory" {
		t.Fatalf("unexpected sample config: %+v", cfg)
	}
	if filepath.Base(cfg.Chain.DefinitionsPath) != "chains.yaml" {
		t.Fatalf("unexpected definitions path %s", cfg.Chain.DefinitionsPath)
	}
}
