package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultConfirmations(t *testing.T) {
	tests := []struct {
		chain Chain
		want  uint32
	}{
		{BTC, 5},  // ceil(2700/600)
		{BCH, 5},
		{LTC, 18}, // ceil(2700/150)
		{XMR, 23}, // ceil(2700/120)
		{ETH, 225}, // ceil(2700/12)
		{Tron, 900}, // ceil(2700/3)
	}
	for _, tt := range tests {
		if got := DefaultConfirmations(tt.chain); got != tt.want {
			t.Errorf("DefaultConfirmations(%s) = %d, want %d", tt.chain, got, tt.want)
		}
	}
}

func TestConfig_RequiredConfirmations_Override(t *testing.T) {
	override := uint32(3)
	cfg := Config{Chains: map[Chain]NodeConfig{
		BTC: {Endpoint: "http://localhost", ConfirmationCount: &override},
	}}
	if got := cfg.RequiredConfirmations(BTC); got != 3 {
		t.Errorf("RequiredConfirmations() = %d, want 3 (override)", got)
	}
	if got := cfg.RequiredConfirmations(ETH); got != DefaultConfirmations(ETH) {
		t.Errorf("RequiredConfirmations() unconfigured chain = %d, want default", got)
	}
}

func jsonRPC1Server(t *testing.T, handle func(method string, params []interface{}) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "1.0" {
			t.Errorf("request JSONRPC = %q, want 1.0", req.JSONRPC)
		}
		result, rpcErr := handle(req.Method, req.Params)
		resp := response{ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			data, _ := json.Marshal(result)
			resp.Result = data
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestManager_GetTransaction_Found(t *testing.T) {
	srv := jsonRPC1Server(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		switch method {
		case "getrawtransaction":
			return rawTransactionResult{Confirmations: 3, BlockHash: "abc123"}, nil
		case "getblockheader":
			return blockHeaderResult{Height: 100}, nil
		}
		return nil, &rpcError{Code: -1, Message: "unknown method"}
	})
	defer srv.Close()

	m := NewManager(Config{Chains: map[Chain]NodeConfig{BTC: {Endpoint: srv.URL}}})
	info, err := m.GetTransaction(context.Background(), BTC, "txid")
	if err != nil {
		t.Fatalf("GetTransaction() error: %v", err)
	}
	if info == nil {
		t.Fatal("GetTransaction() = nil, want a TxInfo")
	}
	if info.Confirmations != 3 || info.BlockHeight != 100 {
		t.Errorf("GetTransaction() = %+v, want confirmations=3 height=100", info)
	}
}

func TestManager_GetTransaction_NotFound(t *testing.T) {
	srv := jsonRPC1Server(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		return rawTransactionResult{}, nil
	})
	defer srv.Close()

	m := NewManager(Config{Chains: map[Chain]NodeConfig{BTC: {Endpoint: srv.URL}}})
	info, err := m.GetTransaction(context.Background(), BTC, "txid")
	if err != nil {
		t.Fatalf("GetTransaction() error: %v", err)
	}
	if info != nil {
		t.Errorf("GetTransaction() = %+v, want nil (not seen yet)", info)
	}
}

func TestManager_GetTransaction_ChainNotConfigured(t *testing.T) {
	m := NewManager(Config{})
	_, err := m.GetTransaction(context.Background(), BTC, "txid")
	if !errors.Is(err, ErrChainNotConfigured) {
		t.Errorf("GetTransaction() error = %v, want ErrChainNotConfigured", err)
	}
}

func TestManager_GetTransaction_RPCError(t *testing.T) {
	srv := jsonRPC1Server(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -5, Message: "no such transaction"}
	})
	defer srv.Close()

	m := NewManager(Config{Chains: map[Chain]NodeConfig{BTC: {Endpoint: srv.URL}}})
	_, err := m.GetTransaction(context.Background(), BTC, "txid")
	if !errors.Is(err, ErrRPC) {
		t.Errorf("GetTransaction() error = %v, want ErrRPC", err)
	}
}

func TestManager_GetBlockHeight(t *testing.T) {
	srv := jsonRPC1Server(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		if method != "getblockcount" {
			return nil, &rpcError{Code: -1, Message: "unexpected method"}
		}
		return 12345, nil
	})
	defer srv.Close()

	m := NewManager(Config{Chains: map[Chain]NodeConfig{ETH: {Endpoint: srv.URL}}})
	height, err := m.GetBlockHeight(context.Background(), ETH)
	if err != nil {
		t.Fatalf("GetBlockHeight() error: %v", err)
	}
	if height != 12345 {
		t.Errorf("GetBlockHeight() = %d, want 12345", height)
	}
}

func TestTxInfo_NormalizedConfirmations_ClampsNegative(t *testing.T) {
	info := &TxInfo{Confirmations: -2}
	if got := info.NormalizedConfirmations(); got != 0 {
		t.Errorf("NormalizedConfirmations() = %d, want 0", got)
	}
}

func TestTxInfo_NormalizedConfirmations_Nil(t *testing.T) {
	var info *TxInfo
	if got := info.NormalizedConfirmations(); got != 0 {
		t.Errorf("NormalizedConfirmations() on nil = %d, want 0", got)
	}
}
