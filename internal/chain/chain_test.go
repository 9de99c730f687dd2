package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/shopspring/decimal"
)

func TestIDFormats(t *testing.T) {
	if id := (IDs{}).PaymentID("TX"); !regexp.MustCompile(`^TX-[A-Z0-9]{6}$`).MatchString(id) {
		t.Errorf("PaymentID = %q", id)
	}
	if h := TxHash(); !regexp.MustCompile(`^0x[0-9a-f]{64}$`).MatchString(h) {
		t.Errorf("TxHash = %q", h)
	}
	tok := TokenID(time.UnixMilli(1735689600000))
	if !regexp.MustCompile(`^nero_1735689600000_[a-z0-9]{9}$`).MatchString(tok) {
		t.Errorf("TokenID = %q", tok)
	}
}

func TestSimulatedMinter(t *testing.T) {
	m := &SimulatedMinter{}
	if _, err := m.Mint(context.Background(), "", "Aave", "Aave"); !errors.Is(err, ErrWalletRequired) {
		t.Fatalf("Mint without wallet error = %v", err)
	}
	res, err := m.Mint(context.Background(), "0xabc", "Aave", "Aave")
	if err != nil || res.TokenID == "" || res.TxHash == "" {
		t.Fatalf("Mint() = %+v, %v", res, err)
	}
}

func TestSimulatedExecutorValidates(t *testing.T) {
	e := &SimulatedExecutor{}
	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{"zero amount", PaymentRequest{Amount: decimal.Zero, SenderWallet: "a", RecipientWallet: "b"}, ErrInvalidPayment},
		{"no sender", PaymentRequest{Amount: decimal.NewFromInt(1), RecipientWallet: "b"}, ErrWalletRequired},
		{"no recipient", PaymentRequest{Amount: decimal.NewFromInt(1), SenderWallet: "a"}, ErrWalletRequired},
		{"ok", PaymentRequest{Amount: decimal.NewFromInt(1), SenderWallet: "a", RecipientWallet: "b"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Execute(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if err == nil && res.TransactionHash == "" {
				t.Fatal("missing transaction hash")
			}
		})
	}
}

func TestX402Executor(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"transactionHash":"0xfeed","timestamp":1735689600000}`))
	}))
	defer srv.Close()

	e := NewX402Executor(srv.URL, time.Second)
	res, err := e.Execute(context.Background(), PaymentRequest{
		Amount:          decimal.RequireFromString("0.005"),
		Token:           domain.TokenMOVE,
		SenderWallet:    "0xabc",
		RecipientWallet: "0xdef",
		Metadata:        PaymentMetadata{Type: domain.PaymentQuery, PlatformID: "Aave"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.TransactionHash != "0xfeed" || !res.Timestamp.Equal(time.UnixMilli(1735689600000)) {
		t.Fatalf("result = %+v", res)
	}
	if got["from"] != "0xabc" || got["to"] != "0xdef" || got["amount"] != "0.005" || got["queryId"] == "" {
		t.Fatalf("request body = %v", got)
	}
}

func TestX402ExecutorFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusBadGateway, `{"error":"upstream"}`},
		{"declined", http.StatusOK, `{"success":false,"error":"insufficient allowance"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewX402Executor(srv.URL, time.Second).Execute(context.Background(), PaymentRequest{
				Amount: decimal.NewFromInt(1), SenderWallet: "a", RecipientWallet: "b",
			})
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCheckBalanceFromCoinStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/0xabc/resources" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"type":"0x1::account::Account","data":{"sequence_number":"3"}},
			{"type":"0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>","data":{"coin":{"value":"250000000"}}}
		]`))
	}))
	defer srv.Close()

	got := NewRPCBalanceChecker(srv.URL+"/v1", time.Second).CheckBalance(context.Background(), "0xabc")
	if !got.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("CheckBalance() = %s, want 2.5", got)
	}
}

func TestCheckBalanceFallsBackToAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/0xabc/resources":
			_, _ = w.Write([]byte(`[]`))
		case "/accounts/0xabc":
			_, _ = w.Write([]byte(`{"balance":"15000000"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	got := NewRPCBalanceChecker(srv.URL, time.Second).CheckBalance(context.Background(), "0xabc")
	if !got.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("CheckBalance() = %s, want 0.15", got)
	}
}

func TestCheckBalanceEmptyCoinStore(t *testing.T) {
	var accountHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/0xabc/resources":
			_, _ = w.Write([]byte(`[{"type":"0x1::coin::CoinStore<M>","data":{"coin":{"value":"0"}}}]`))
		case "/accounts/0xabc":
			accountHits.Add(1)
			_, _ = w.Write([]byte(`{"balance":"15000000"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	got := NewRPCBalanceChecker(srv.URL, time.Second).CheckBalance(context.Background(), "0xabc")
	if !got.IsZero() {
		t.Fatalf("CheckBalance() = %s, want 0", got)
	}
	if n := accountHits.Load(); n != 0 {
		t.Fatalf("account fallback queried %d times for a zero coin store", n)
	}
}

func TestCheckBalanceZeroOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRPCBalanceChecker(srv.URL, time.Second)
	if got := c.CheckBalance(context.Background(), "0xabc"); !got.IsZero() {
		t.Fatalf("CheckBalance() = %s, want 0", got)
	}
	if got := c.CheckBalance(context.Background(), ""); !got.IsZero() {
		t.Fatalf("CheckBalance(\"\") = %s, want 0", got)
	}
}

func TestCheckBalanceCollapsesConcurrentQueries(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`[{"type":"0x1::coin::CoinStore<M>","data":{"coin":{"value":"100000000"}}}]`))
	}))
	defer srv.Close()

	c := NewRPCBalanceChecker(srv.URL, 5*time.Second)
	var wg sync.WaitGroup
	results := make([]decimal.Decimal, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.CheckBalance(context.Background(), "0xABC")
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := hits.Load(); n != 1 {
		t.Fatalf("rpc hits = %d, want 1", n)
	}
	for i, r := range results {
		if !r.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("result %d = %s", i, r)
		}
	}
}
