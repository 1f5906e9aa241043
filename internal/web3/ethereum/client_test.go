package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func newRPCServer(t *testing.T, results map[string]string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if calls != nil && req.Method == "eth_chainId" {
			calls.Add(1)
		}
		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestDialSnapshotCachesChainID(t *testing.T) {
	var chainCalls atomic.Int32
	srv := newRPCServer(t, map[string]string{
		"eth_chainId":     "0x89",
		"eth_blockNumber": "0x10",
	}, &chainCalls)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, Config{Name: "polygon", RPCURL: srv.URL, Notes: "test"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)

	snap, err := client.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ChainID != "137" || snap.BlockNumber != 16 || snap.Name != "polygon" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := client.ChainID(ctx); err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if got := chainCalls.Load(); got != 1 {
		t.Fatalf("expected chain id to be queried once, got %d", got)
	}
}

func TestDialWithConfiguredChainID(t *testing.T) {
	var chainCalls atomic.Int32
	srv := newRPCServer(t, map[string]string{}, &chainCalls)
	defer srv.Close()

	client, err := Dial(context.Background(), Config{RPCURL: srv.URL, ChainID: 1337})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	id, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Int64() != 1337 || chainCalls.Load() != 0 {
		t.Fatalf("expected configured chain id without rpc call, got %s after %d calls", id, chainCalls.Load())
	}
	client.Close()
}

func TestDialRequiresURL(t *testing.T) {
	if _, err := Dial(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty rpc url")
	}
}
