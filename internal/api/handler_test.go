//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/nero-labs/internal/auth"
	"github.com/ashureev/nero-labs/internal/chain"
	"github.com/ashureev/nero-labs/internal/chat"
	"github.com/ashureev/nero-labs/internal/controller"
	"github.com/ashureev/nero-labs/internal/device"
	"github.com/ashureev/nero-labs/internal/identity"
	"github.com/ashureev/nero-labs/internal/middleware"
	"github.com/ashureev/nero-labs/internal/platform"
	"github.com/ashureev/nero-labs/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const adminToken = "admin-secret"

type echoBackend struct {
	calls int
	last  chat.Request
}

func (e *echoBackend) Name() string { return "echo" }

func (e *echoBackend) Reply(_ context.Context, req chat.Request) (string, error) {
	e.calls++
	e.last = req
	return "Nero says: " + req.History[len(req.History)-1].Content, nil
}

type testAPI struct {
	router   http.Handler
	backend  *echoBackend
	deviceID string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := store.NewMemory()
	codes := &auth.LogCodeSender{Echo: true}
	platforms := platform.NewRegistry()
	devices := device.NewRegistry(device.Config{
		Session: auth.Options{Store: repo, Codes: codes},
		Controller: controller.Deps{
			Store:     repo,
			Platforms: platforms,
			Minter:    &chain.SimulatedMinter{},
			Payments:  &chain.SimulatedExecutor{},
		},
	})
	t.Cleanup(devices.Close)

	backend := &echoBackend{}
	h := NewHandler(Deps{
		Devices:    devices,
		Platforms:  platforms,
		Chat:       chat.NewService(backend, chat.Config{RatePerMinute: 600, Burst: 100}),
		Codes:      codes,
		AdminToken: adminToken,
	})

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	NewHealthHandler(repo, backend.Name()).RegisterHealth(r)
	h.RegisterRoutes(r)
	return &testAPI{router: r, backend: backend, deviceID: identity.NewDeviceID()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.DeviceHeaderName, a.deviceID)
	if method == http.MethodPut {
		req.Header.Set(middleware.AdminTokenHeader, adminToken)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

// emailLogin drives the full email flow and returns the wallet address.
func (a *testAPI) emailLogin(t *testing.T) string {
	t.Helper()
	expectStatus(t, a.do(t, http.MethodPost, "/api/session/login", nil), http.StatusOK)
	expectStatus(t, a.do(t, http.MethodPost, "/api/session/email/start", nil), http.StatusOK)

	rec := a.do(t, http.MethodPost, "/api/session/email/submit", map[string]string{"email": "builder@movement.xyz"})
	expectStatus(t, rec, http.StatusOK)
	sent := decodeBody[sessionResponse](t, rec)
	if sent.DevCode == "" || sent.Flow.Step != "code" {
		t.Fatalf("after email: %+v", sent)
	}

	rec = a.do(t, http.MethodPost, "/api/session/code", map[string]string{"code": sent.DevCode})
	expectStatus(t, rec, http.StatusOK)
	view := decodeBody[sessionResponse](t, rec)
	if !view.Authenticated {
		t.Fatalf("not authenticated: %+v", view)
	}
	return view.Address()
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrValidation, http.StatusBadRequest},
		{auth.ErrVerification, http.StatusUnauthorized},
		{auth.ErrRequestPending, http.StatusConflict},
		{auth.ErrNotReady, http.StatusServiceUnavailable},
		{auth.ErrExternalAuth, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("body = %v", body)
	}
}

func TestEmailLoginBindsState(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/session", nil)
	expectStatus(t, rec, http.StatusOK)
	if v := decodeBody[sessionResponse](t, rec); !v.Ready || v.Authenticated {
		t.Fatalf("initial view = %+v", v)
	}

	addr := a.emailLogin(t)

	rec = a.do(t, http.MethodGet, "/api/state", nil)
	expectStatus(t, rec, http.StatusOK)
	snap := decodeBody[controller.Snapshot](t, rec)
	if !strings.EqualFold(snap.State.WalletAddress, addr) {
		t.Fatalf("state wallet = %q, want %q", snap.State.WalletAddress, addr)
	}

	expectStatus(t, a.do(t, http.MethodPost, "/api/session/logout", nil), http.StatusOK)
	snap = decodeBody[controller.Snapshot](t, a.do(t, http.MethodGet, "/api/state", nil))
	if snap.State.WalletAddress != "" {
		t.Fatalf("state after logout = %q", snap.State.WalletAddress)
	}
}

func TestWrongCodeKeepsCodeStep(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/session/login", nil)
	a.do(t, http.MethodPost, "/api/session/email/start", nil)
	sent := decodeBody[sessionResponse](t, a.do(t, http.MethodPost, "/api/session/email/submit", map[string]string{"email": "a@b.c"}))

	wrong := "000000"
	if sent.DevCode == wrong {
		wrong = "111111"
	}
	rec := a.do(t, http.MethodPost, "/api/session/code", map[string]string{"code": wrong})
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decodeBody[errorBody](t, rec); body.Code != "verification" {
		t.Fatalf("code = %q", body.Code)
	}

	v := decodeBody[sessionResponse](t, a.do(t, http.MethodGet, "/api/session", nil))
	if v.Authenticated || v.Flow.Step != "code" || v.LoginError == "" {
		t.Fatalf("view after wrong code = %+v", v)
	}
}

func TestSessionTransitionErrors(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/session/email/start", nil)
	expectStatus(t, rec, http.StatusConflict)

	a.do(t, http.MethodPost, "/api/session/login", nil)
	a.do(t, http.MethodPost, "/api/session/email/start", nil)
	rec = a.do(t, http.MethodPost, "/api/session/email/submit", map[string]string{"email": "no-at-sign"})
	expectStatus(t, rec, http.StatusBadRequest)

	expectStatus(t, a.do(t, http.MethodPost, "/api/session/back", nil), http.StatusOK)
	expectStatus(t, a.do(t, http.MethodPost, "/api/session/back", nil), http.StatusConflict)
	expectStatus(t, a.do(t, http.MethodPost, "/api/session/close", nil), http.StatusOK)
}

func TestWalletLoginErrors(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/session/login", nil)

	rec := a.do(t, http.MethodPost, "/api/session/wallet", map[string]string{"errorCode": auth.CodeUserRejected})
	expectStatus(t, rec, http.StatusConflict)
	if body := decodeBody[errorBody](t, rec); body.Code != "user_rejected" {
		t.Fatalf("code = %q", body.Code)
	}

	rec = a.do(t, http.MethodPost, "/api/session/wallet", map[string]any{
		"accounts":  []string{"0xAbC0000000000000000000000000000000000001"},
		"signature": "0xsig",
	})
	expectStatus(t, rec, http.StatusOK)
	v := decodeBody[sessionResponse](t, rec)
	if !v.Authenticated || !strings.EqualFold(v.Address(), "0xabc0000000000000000000000000000000000001") {
		t.Fatalf("view = %+v", v)
	}
}

func TestMintFlow(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/agents/Uniswap/mint", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	a.do(t, http.MethodPost, "/api/session/login", nil)
	expectStatus(t, a.do(t, http.MethodPost, "/api/session/wallet", map[string]any{"simulated": true}), http.StatusOK)

	rec = a.do(t, http.MethodPost, "/api/agents/Uniswap/mint", nil)
	expectStatus(t, rec, http.StatusOK)
	res := decodeBody[controller.MintResult](t, rec)
	if res.Agent == nil || !strings.HasPrefix(res.Agent.TokenID, "nero_") {
		t.Fatalf("mint result = %+v", res)
	}

	rec = a.do(t, http.MethodPost, "/api/agents/Uniswap/mint", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = a.do(t, http.MethodPost, "/api/agents/Nowhere/mint", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestTopUp(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/topup", map[string]string{"amount": "0"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = a.do(t, http.MethodPost, "/api/topup", map[string]string{"amount": "1", "token": "DOGE"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = a.do(t, http.MethodPost, "/api/topup", map[string]string{"amount": "0.05"})
	expectStatus(t, rec, http.StatusOK)
	rec = a.do(t, http.MethodPost, "/api/topup", map[string]string{"amount": "1"})
	expectStatus(t, rec, http.StatusOK)
	res := decodeBody[controller.TopUpResult](t, rec)
	if !res.State.Balance.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("balance = %s", res.State.Balance)
	}
}

func TestChatPaymentRequired(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPut, "/api/platforms/Movement", map[string]any{
		"name":        "Movement x Nero",
		"feePerQuery": "1",
	})
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, a.do(t, http.MethodPost, "/api/platform/select", map[string]string{"platformId": "Movement"}), http.StatusOK)

	msg := map[string]any{"messages": []chat.Message{{Role: chat.RoleUser, Content: "gm"}}}
	for i := 0; i < 10; i++ {
		rec = a.do(t, http.MethodPost, "/api/chat", msg)
		expectStatus(t, rec, http.StatusOK)
		if got := decodeBody[chatResponse](t, rec); got.Reply != "Nero says: gm" {
			t.Fatalf("reply = %q", got.Reply)
		}
	}

	rec = a.do(t, http.MethodPost, "/api/chat", msg)
	expectStatus(t, rec, http.StatusPaymentRequired)
	resp := decodeBody[chatResponse](t, rec)
	if resp.Reply != "" || resp.Activity.Pending == nil {
		t.Fatalf("unaffordable chat = %+v", resp)
	}
	if a.backend.calls != 10 {
		t.Fatalf("backend calls = %d, want 10", a.backend.calls)
	}

	snap := decodeBody[controller.Snapshot](t, a.do(t, http.MethodGet, "/api/state", nil))
	if snap.Pending == nil || !snap.Pending.Amount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("pending = %+v", snap.Pending)
	}

	// Guests cannot settle.
	expectStatus(t, a.do(t, http.MethodPost, "/api/payments/confirm", nil), http.StatusUnauthorized)

	rec = a.do(t, http.MethodPost, "/api/payments/cancel", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[map[string]bool](t, rec); got["cancelled"] {
		t.Fatal("confirm should already have cleared the pending payment")
	}
}

func TestChatValidation(t *testing.T) {
	a := newTestAPI(t)
	expectStatus(t, a.do(t, http.MethodPost, "/api/chat", map[string]any{}), http.StatusBadRequest)
}

func TestPlatformsAdmin(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/platforms", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decodeBody[map[string][]platform.Platform](t, rec)
	if len(list["platforms"]) != 3 {
		t.Fatalf("platforms = %+v", list)
	}

	rec = a.do(t, http.MethodPut, "/api/platforms/Aave", map[string]any{"name": "", "feePerQuery": "0.01"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = a.do(t, http.MethodPut, "/api/platforms/Nowhere", map[string]any{"name": "X", "feePerQuery": "0.01"})
	expectStatus(t, rec, http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPut, "/api/platforms/Aave", strings.NewReader(`{"name":"X"}`))
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestOnchainBalanceRequiresLogin(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/balance/onchain", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestSelectUnknownPlatform(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPost, "/api/platform/select", map[string]string{"platformId": "Nowhere"})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestInvalidBody(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/topup", strings.NewReader("{"))
	req.Header.Set(identity.DeviceHeaderName, a.deviceID)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}
