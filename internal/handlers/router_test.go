package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/audit"
	"github.com/sitecraft/backend/internal/gateway"
	mW "github.com/sitecraft/backend/internal/middleware"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/services"
	"github.com/sitecraft/backend/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardSecret = "sk_test_card"

type fakeGenerator struct {
	err error
}

func (f fakeGenerator) Generate(_ context.Context, prompt, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "<html>" + prompt + "</html>", nil
}

type testServer struct {
	router   http.Handler
	identity *mW.JWTIdentity
	store    *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Reference string `json:"reference"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]string{
				"authorization_url": "https://checkout.test/" + in.Reference,
				"access_code":       "ac_" + in.Reference[:8],
				"reference":         in.Reference,
			},
		})
	}))
	t.Cleanup(provider.Close)

	st := memory.New(100)
	for _, pt := range []models.PriceTier{
		{Tier: "starter", Credits: 20, PriceUSD: decimal.RequireFromString("5.00"), PriceLocal: decimal.RequireFromString("7500"), IsActive: true},
		{Tier: "pro", Credits: 100, PriceUSD: decimal.RequireFromString("20.00"), PriceLocal: decimal.RequireFromString("30000"), IsActive: true},
	} {
		require.NoError(t, st.SavePriceTier(ctx, pt))
	}

	log := zerolog.Nop()
	auditLog := audit.NewLogger(log)
	ledger := services.NewCreditLedger(st, auditLog, log, time.Second, 100)
	pricing := services.NewPricingService(st, "NGN")
	card := gateway.NewCardGateway(provider.URL, cardSecret, time.Second)
	payments := services.NewPaymentService(st, ledger, pricing, auditLog, log, "https://sitecraft.test", card)
	accounts := services.NewAccountService(st)

	h := NewHandler(Services{
		Ledger:     ledger,
		Pricing:    pricing,
		Payments:   payments,
		Settlement: services.NewSettlementService(ledger, payments, services.NewISO20022Service(), nil, auditLog, log),
		Capacity:   services.NewCapacityService(st, ledger, 3, []string{"admin-1"}, log),
		Generation: services.NewGenerationService(ledger, fakeGenerator{}, nil, 0, time.Minute, auditLog, log),
		QR:         services.NewQRService(payments, nil, log),
		Accounts:   accounts,
	}, log)

	identity := mW.NewJWTIdentity("jwt-secret", "sitecraft")
	return &testServer{
		router: NewRouter(h, RouterConfig{
			Identity:   identity,
			Authorizer: accounts,
			Logger:     log,
		}),
		identity: identity,
		store:    st,
	}
}

func (s *testServer) do(t *testing.T, method, path, accountID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		token, err := s.identity.Issue(accountID, accountID+"@example.com", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) webhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/card", bytes.NewReader(body))
	req.Header.Set(gateway.CardSignatureHeader, signature)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouter_PublicPricing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/pricing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	tiers := decodeBody(t, w)["tiers"].([]any)
	assert.Len(t, tiers, 2)
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/v1/credits/balance", "/api/v1/payments", "/api/v1/admin/capacity"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_PurchaseAndSettle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/accounts/signup", "acct-1", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(3), decodeBody(t, w)["balance"])

	w = s.do(t, http.MethodPost, "/api/v1/payments", "acct-1", map[string]string{
		"tier": "pro", "currency": "USD", "provider": "card-gateway",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payment := decodeBody(t, w)
	txID := payment["id"].(string)
	assert.Equal(t, "pending", payment["status"])
	assert.Equal(t, "https://checkout.test/"+txID, payment["checkout_url"])

	event := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":4099260516,"reference":%q,"amount":2000,"currency":"USD","status":"success"}}`, txID))
	signature := gateway.SignHMACSHA512([]byte(cardSecret), event)

	w = s.webhook(t, event, signature)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "settled", decodeBody(t, w)["outcome"])

	w = s.webhook(t, event, signature)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decodeBody(t, w)["outcome"])

	w = s.do(t, http.MethodGet, "/api/v1/credits/balance", "acct-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(103), decodeBody(t, w)["balance"])

	w = s.do(t, http.MethodGet, "/api/v1/payments/"+txID, "acct-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decodeBody(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/v1/credits/history?limit=5", "acct-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["entries"].([]any), 2)
}

func TestRouter_WebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	event := []byte(`{"event":"charge.success","data":{"reference":"x","amount":2000,"currency":"USD"}}`)

	w := s.webhook(t, event, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid signature", decodeBody(t, w)["error"])
}

func TestRouter_WebhookUnknownTransaction(t *testing.T) {
	s := newTestServer(t)
	event := []byte(`{"event":"charge.success","data":{"id":1,"reference":"nope","amount":2000,"currency":"USD"}}`)

	w := s.webhook(t, event, gateway.SignHMACSHA512([]byte(cardSecret), event))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_GenerateWithoutCredits(t *testing.T) {
	s := newTestServer(t)
	s.store.SetCapacity(models.BetaCapacity{MaxFreeUsers: 10})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts/signup", "acct-1", nil).Code)

	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/generate", "acct-1", map[string]string{"prompt": "bakery"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/v1/generate", "acct-1", map[string]string{"prompt": "bakery"})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	details := decodeBody(t, w)["details"].(map[string]any)
	assert.Equal(t, "0", details["balance"])
	assert.Equal(t, "1", details["required"])
	assert.Equal(t, "/api/v1/pricing", details["purchase"])
}

func TestRouter_SignupWaitlist(t *testing.T) {
	s := newTestServer(t)
	s.store.SetCapacity(models.BetaCapacity{MaxFreeUsers: 1, CurrentFreeUsers: 1})

	w := s.do(t, http.MethodPost, "/api/v1/accounts/signup", "acct-late", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["admitted"])
	assert.Equal(t, float64(1), body["waitlist_position"])
}

func TestRouter_RejectsUnknownFields(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts/signup", "acct-1", nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/payments", "acct-1", `{"tier":"pro","currency":"USD","provider":"card-gateway","credits":9999}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/payments", "acct-1", `{"tier":"pro","currency":"USD","provider":"paypal"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", decodeBody(t, w)["error"])
}

func TestRouter_AdminRoutes(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts/signup", "admin-1", nil).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts/signup", "acct-1", nil).Code)

	t.Run("regular users are forbidden", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/admin/capacity", "acct-1", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("capacity", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/admin/capacity", "admin-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), decodeBody(t, w)["current_free_users"])

		w = s.do(t, http.MethodPut, "/api/v1/admin/capacity", "admin-1", map[string]int{"max_free_users": 1})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = s.do(t, http.MethodPut, "/api/v1/admin/capacity", "admin-1", map[string]int{"max_free_users": 500})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(500), decodeBody(t, w)["max_free_users"])
	})

	t.Run("pricing update keeps pending purchases frozen", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/payments", "acct-1", map[string]string{
			"tier": "pro", "currency": "NGN", "provider": "bank-transfer",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		txID := decodeBody(t, w)["id"].(string)

		w = s.do(t, http.MethodPut, "/api/v1/admin/pricing/pro", "admin-1", map[string]any{
			"credits": 50, "price_usd": "20.00", "price_local": "30000", "is_active": true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodPost, "/api/v1/admin/payments/"+txID+"/settle", "admin-1", map[string]string{"bank_reference": "GTB-1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, float64(100), decodeBody(t, w)["credits"])
	})

	t.Run("refund and audit", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/payments", "acct-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		txID := decodeBody(t, w)["transactions"].([]any)[0].(map[string]any)["id"].(string)

		w = s.do(t, http.MethodPost, "/api/v1/admin/payments/"+txID+"/refund", "admin-1", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, float64(100), decodeBody(t, w)["clawed_back"])

		w = s.do(t, http.MethodGet, "/api/v1/admin/accounts/acct-1/audit", "admin-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		report := decodeBody(t, w)
		assert.Equal(t, true, report["consistent"])
		assert.Equal(t, float64(3), report["balance"])
	})

	t.Run("fail requires a reason", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/admin/payments/whatever/fail", "admin-1", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_CORS(t *testing.T) {
	preflight := func(router http.Handler, origin string) http.Header {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/pricing", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Header()
	}

	t.Run("default allows any origin without credentials", func(t *testing.T) {
		router := NewRouter(&Handler{}, RouterConfig{Logger: zerolog.Nop(), AllowCredentials: true})

		h := preflight(router, "https://elsewhere.example")
		assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
		assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("explicit origins may carry credentials", func(t *testing.T) {
		router := NewRouter(&Handler{}, RouterConfig{
			Logger:           zerolog.Nop(),
			AllowedOrigins:   []string{"https://app.sitecraft.dev"},
			AllowCredentials: true,
		})

		h := preflight(router, "https://app.sitecraft.dev")
		assert.Equal(t, "https://app.sitecraft.dev", h.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))

		h = preflight(router, "https://elsewhere.example")
		assert.Empty(t, h.Get("Access-Control-Allow-Origin"))
		assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
	})
}
