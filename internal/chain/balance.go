package chain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// octasPerMove converts the smallest on-chain unit to MOVE.
const octasPerMove = 8

// BalanceChecker reports a wallet's on-chain MOVE balance, 0 on any failure.
type BalanceChecker interface {
	CheckBalance(ctx context.Context, wallet string) decimal.Decimal
}

// RPCBalanceChecker queries an Aptos-compatible Movement RPC. Concurrent
// queries for one wallet share a single round trip.
type RPCBalanceChecker struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
}

// NewRPCBalanceChecker returns a checker for the RPC at baseURL
// (e.g. https://testnet.movementnetwork.xyz/v1).
func NewRPCBalanceChecker(baseURL string, timeout time.Duration) *RPCBalanceChecker {
	return &RPCBalanceChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (c *RPCBalanceChecker) CheckBalance(ctx context.Context, wallet string) decimal.Decimal {
	if wallet == "" {
		return decimal.Zero
	}
	v, _, _ := c.group.Do(strings.ToLower(wallet), func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.query(qctx, wallet), nil
	})
	return v.(decimal.Decimal)
}

func (c *RPCBalanceChecker) query(ctx context.Context, wallet string) decimal.Decimal {
	account := c.baseURL + "/accounts/" + url.PathEscape(wallet)

	body, err := c.get(ctx, account+"/resources")
	if err == nil {
		value := gjson.GetBytes(body, `#(type%"*CoinStore*").data.coin.value`)
		if amount, ok := octas(value.String()); ok {
			return amount
		}
	} else {
		slog.Warn("RPC resources query failed, trying account", "wallet", wallet, "error", err)
	}

	body, err = c.get(ctx, account)
	if err != nil {
		slog.Warn("RPC account query failed", "wallet", wallet, "error", err)
		return decimal.Zero
	}
	if amount, ok := octas(gjson.GetBytes(body, "balance").String()); ok {
		return amount
	}
	return decimal.Zero
}

func (c *RPCBalanceChecker) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func octas(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return v.Shift(-octasPerMove), true
}
