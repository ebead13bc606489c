package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"

	"papertradingv1/internal/auth"
	"papertradingv1/internal/ledger"
	"papertradingv1/internal/model"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func newTestServer(t *testing.T, secret string) *Server {
	t.Helper()
	led := ledger.New(ledger.Config{InitialCapital: decimal.NewFromInt(100000)}, nil)
	hub := NewHub()
	go hub.Run()
	return NewServer(":0", led, auth.NewLiveArmGuard(secret), hub)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandlePlaceTrade(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/trades", TradeRequest{
		Symbol:   "AAPL",
		Side:     model.SideBuy,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(150),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var trade model.PaperTrade
	decodeInto(t, rec, &trade)
	if trade.ID == "" || trade.Symbol != "AAPL" {
		t.Errorf("unexpected trade: %+v", trade)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/portfolio", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio status = %d", rec.Code)
	}
	var p PortfolioResponse
	decodeInto(t, rec, &p)
	if !p.Balance.Equal(decimal.NewFromInt(99850)) {
		t.Errorf("balance = %s, want 99850", p.Balance)
	}
	if !p.Equity.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("equity = %s, want 100000", p.Equity)
	}
}

func TestHandlePlaceTrade_ErrorMapping(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	var gotReject error
	s.OnReject = func(err error) { gotReject = err }

	cases := []struct {
		name string
		req  TradeRequest
		want int
	}{
		{"oversell", TradeRequest{Symbol: "AAPL", Side: model.SideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10)}, http.StatusUnprocessableEntity},
		{"overspend", TradeRequest{Symbol: "AAPL", Side: model.SideBuy, Quantity: decimal.NewFromInt(1000), Price: decimal.NewFromInt(1000)}, http.StatusUnprocessableEntity},
		{"bad quantity", TradeRequest{Symbol: "AAPL", Side: model.SideBuy, Quantity: decimal.Zero, Price: decimal.NewFromInt(10)}, http.StatusBadRequest},
		{"bad side", TradeRequest{Symbol: "AAPL", Side: "hold", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10)}, http.StatusBadRequest},
		{"missing symbol", TradeRequest{Side: model.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/trades", tc.req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
	if gotReject == nil {
		t.Error("expected the reject hook to fire")
	}
}

func TestHandleSetMode_TOTPGate(t *testing.T) {
	s := newTestServer(t, testSecret)
	h := s.Handler()

	// Without a code: forbidden.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/mode", ModeRequest{Mode: model.ModeLive})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	// With a valid code: armed.
	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/mode", ModeRequest{Mode: model.ModeLive, TOTPCode: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Live mode rejects trades with a conflict.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/trades", TradeRequest{
		Symbol: "AAPL", Side: model.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(150),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("trade in live mode: status = %d, want 409", rec.Code)
	}

	// Back to demo needs no code.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/mode", ModeRequest{Mode: model.ModeDemo})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]model.Mode
	decodeInto(t, rec, &resp)
	if resp["mode"] != model.ModeDemo {
		t.Errorf("mode = %s, want demo", resp["mode"])
	}
}

func TestHandleSetMode_ReportsModeChange(t *testing.T) {
	s := newTestServer(t, testSecret)
	var seen []model.Mode
	s.OnModeChange = func(m model.Mode) { seen = append(seen, m) }
	h := s.Handler()

	// A rejected arming attempt must not report anything.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/mode", ModeRequest{Mode: model.ModeLive})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(seen) != 0 {
		t.Fatalf("mode change reported on rejected request: %v", seen)
	}

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/mode", ModeRequest{Mode: model.ModeLive, TOTPCode: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/mode", ModeRequest{Mode: model.ModeDemo})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	want := []model.Mode{model.ModeLive, model.ModeDemo}
	if len(seen) != len(want) {
		t.Fatalf("reported modes = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("reported mode %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestHandlePushPrices(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/api/v1/trades", TradeRequest{
		Symbol: "AAPL", Side: model.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(150),
	})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/prices", PricesRequest{
		Quotes: map[string]decimal.Decimal{
			"AAPL": decimal.NewFromInt(160),
			"TSLA": decimal.NewFromInt(900),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int
	decodeInto(t, rec, &resp)
	if resp["updated"] != 1 {
		t.Errorf("updated = %d, want 1", resp["updated"])
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/performance", nil)
	var m ledger.PerformanceMetrics
	decodeInto(t, rec, &m)
	if !m.Equity.Equal(decimal.NewFromInt(100010)) {
		t.Errorf("equity = %s, want 100010", m.Equity)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/prices", PricesRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty quotes: status = %d, want 400", rec.Code)
	}
}

func TestHandleReset_RequiresConfirmation(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()
	resets := 0
	s.OnReset = func() { resets++ }

	doJSON(t, h, http.MethodPost, "/api/v1/trades", TradeRequest{
		Symbol: "AAPL", Side: model.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(150),
	})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/reset", ResetRequest{Confirm: false})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed reset: status = %d, want 400", rec.Code)
	}
	if resets != 0 {
		t.Fatal("unconfirmed reset ran")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/reset", ResetRequest{Confirm: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var p PortfolioResponse
	decodeInto(t, rec, &p)
	if !p.Balance.Equal(decimal.NewFromInt(100000)) || len(p.Trades) != 0 {
		t.Errorf("reset portfolio: balance=%s trades=%d", p.Balance, len(p.Trades))
	}
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestHandleGetPosition_Unknown(t *testing.T) {
	s := newTestServer(t, "")
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/positions/GHOST", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
