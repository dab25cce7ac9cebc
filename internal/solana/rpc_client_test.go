package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newRPCServer answers each JSON-RPC request with result(req).
func newRPCServer(t *testing.T, result func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result(req),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getAccountInfo" {
			t.Errorf("expected method getAccountInfo, got %s", req.Method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   uint64(1000000),
				"owner":      "11111111111111111111111111111111",
				"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
				"executable": false,
				"rentEpoch":  uint64(100),
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	info, err := client.GetAccountInfo(ctx, "testpubkey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}

	if info == nil {
		t.Fatal("expected account info, got nil")
	}

	if info.Lamports != 1000000 {
		t.Errorf("expected lamports 1000000, got %d", info.Lamports)
	}

	if info.Owner != "11111111111111111111111111111111" {
		t.Errorf("unexpected owner: %s", info.Owner)
	}

	if info.Data != "SGVsbG8gV29ybGQ=" {
		t.Errorf("unexpected data: %s", info.Data)
	}
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} {
		return map[string]interface{}{"value": nil}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	info, err := client.GetAccountInfo(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}

	if info != nil {
		t.Errorf("expected nil for not found, got %+v", info)
	}
}

func TestHTTPClient_GetProgramAccounts(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getProgramAccounts" {
			t.Errorf("expected method getProgramAccounts, got %s", req.Method)
		}
		checkProgramAccountsParams(t, req.Params)
		return []map[string]interface{}{
			{
				"pubkey": "plan1",
				"account": map[string]interface{}{
					"lamports": uint64(1),
					"owner":    "program",
					"data":     []string{"AAEC", "base64"},
				},
			},
			{
				"pubkey": "plan2",
				"account": map[string]interface{}{
					"lamports": uint64(2),
					"owner":    "program",
					"data":     []string{"", "base64"},
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	accounts, err := client.GetProgramAccounts(context.Background(), "program", &ProgramAccountsOpts{
		DataSize: PlanAccountSize,
		Memcmp:   []MemcmpFilter{{Offset: 0, Bytes: "abc"}},
	})
	if err != nil {
		t.Fatalf("GetProgramAccounts: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Pubkey != "plan1" || accounts[0].Account.Data != "AAEC" {
		t.Errorf("unexpected first account: %+v", accounts[0])
	}
}

func checkProgramAccountsParams(t *testing.T, params []interface{}) {
	t.Helper()

	if len(params) != 2 || params[0] != "program" {
		t.Errorf("unexpected params: %v", params)
		return
	}
	config, ok := params[1].(map[string]interface{})
	if !ok {
		t.Errorf("expected config object, got %T", params[1])
		return
	}
	filters, ok := config["filters"].([]interface{})
	if !ok || len(filters) != 2 {
		t.Errorf("expected 2 filters, got %v", config["filters"])
		return
	}
	if size := filters[0].(map[string]interface{})["dataSize"]; size != float64(PlanAccountSize) {
		t.Errorf("expected dataSize %d, got %v", PlanAccountSize, size)
	}
	memcmp, _ := filters[1].(map[string]interface{})["memcmp"].(map[string]interface{})
	if memcmp["bytes"] != "abc" {
		t.Errorf("unexpected memcmp filter: %v", filters[1])
	}
}

func TestHTTPClient_GetTokenAccountBalance(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getTokenAccountBalance" {
			t.Errorf("expected method getTokenAccountBalance, got %s", req.Method)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"amount":         "18446744073709551615",
				"decimals":       6,
				"uiAmountString": "18446744073709.551615",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	bal, err := client.GetTokenAccountBalance(context.Background(), "vault")
	if err != nil {
		t.Fatalf("GetTokenAccountBalance: %v", err)
	}

	if bal.Amount != ^uint64(0) {
		t.Errorf("expected max u64 amount, got %d", bal.Amount)
	}
	if bal.Decimals != 6 {
		t.Errorf("expected 6 decimals, got %d", bal.Decimals)
	}
}

func TestHTTPClient_GetTokenAccountBalance_BadAmount(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} {
		return map[string]interface{}{
			"value": map[string]interface{}{"amount": "-1", "decimals": 6},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	if _, err := client.GetTokenAccountBalance(context.Background(), "vault"); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestHTTPClient_GetSlotAndBlockTime(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "getSlot":
			return int64(250_000_000)
		case "getBlockTime":
			if len(req.Params) != 1 || req.Params[0] != float64(250_000_000) {
				t.Errorf("unexpected getBlockTime params: %v", req.Params)
			}
			return int64(1_700_000_000)
		}
		t.Errorf("unexpected method %s", req.Method)
		return nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	slot, err := client.GetSlot(ctx)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	ts, err := client.GetBlockTime(ctx, slot)
	if err != nil {
		t.Fatalf("GetBlockTime: %v", err)
	}
	if ts == nil || *ts != 1_700_000_000 {
		t.Errorf("unexpected block time: %v", ts)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(999),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}

	if slot != 999 {
		t.Errorf("expected slot 999, got %d", slot)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32600,
				"message": "Invalid Request",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.GetSlot(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	rpcErr, ok := err.(*rpcError)
	if !ok {
		t.Fatalf("expected rpcError, got %T", err)
	}

	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_RateLimit(t *testing.T) {
	server := newRPCServer(t, func(rpcRequest) interface{} { return int64(1) })
	defer server.Close()

	// 20 rps, burst 1: the third call waits at least ~100ms in total.
	client := NewHTTPClient(server.URL, WithRateLimit(20, 1))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.GetSlot(ctx); err != nil {
			t.Fatalf("GetSlot: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected rate limiting delay, calls took %v", elapsed)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.GetSlot(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
