package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/models"
)

// CardSignatureHeader carries hex HMAC-SHA512(secret key, raw body).
const CardSignatureHeader = "x-paystack-signature"

// CardGateway is a Paystack-style hosted card checkout. Amounts travel in minor units.
type CardGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewCardGateway(baseURL, secretKey string, timeout time.Duration) *CardGateway {
	return &CardGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    newHTTPClient(timeout),
	}
}

func (g *CardGateway) Provider() models.Provider { return models.ProviderCard }

type cardInitRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type cardInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (g *CardGateway) InitCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	in := cardInitRequest{
		Email:       req.Email,
		Amount:      req.Amount.Shift(2).Round(0).IntPart(),
		Currency:    strings.ToUpper(req.Currency),
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    map[string]string{"description": req.Description},
	}

	var out cardInitResponse
	err := postJSON(ctx, g.client, g.baseURL+"/transaction/initialize",
		map[string]string{"Authorization": "Bearer " + g.secretKey}, in, &out)
	if err != nil {
		return nil, err
	}
	if !out.Status || out.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, out.Message)
	}

	return &Checkout{CheckoutURL: out.Data.AuthorizationURL, ProviderReference: out.Data.AccessCode}, nil
}

func (g *CardGateway) VerifySignature(body []byte, signature string) error {
	return verifyHMACSHA512([]byte(g.secretKey), body, strings.ToLower(strings.TrimSpace(signature)))
}

type cardEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Amount    json.Number `json:"amount"`
		Currency  string      `json:"currency"`
		Status    string      `json:"status"`
	} `json:"data"`
}

func (g *CardGateway) ParseEvent(body []byte) (*Event, error) {
	var raw cardEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedEvent)
	}

	ev := &Event{
		Type:              raw.Event,
		Reference:         raw.Data.Reference,
		ProviderReference: raw.Data.ID.String(),
		Currency:          strings.ToUpper(raw.Data.Currency),
		Status:            raw.Data.Status,
	}

	switch raw.Event {
	case "charge.success":
		ev.Kind = EventSucceeded
	case "charge.failed":
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	if ev.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrMalformedEvent)
	}
	minor, err := strconv.ParseInt(raw.Data.Amount.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformedEvent, raw.Data.Amount)
	}
	ev.Amount = decimal.New(minor, -2)
	return ev, nil
}
