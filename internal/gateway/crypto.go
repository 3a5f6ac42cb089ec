package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/models"
)

// CryptoSignatureHeader carries hex HMAC-SHA512(IPN secret, body re-encoded with
// sorted keys).
const CryptoSignatureHeader = "x-nowpayments-sig"

// CryptoGateway is a NOWPayments-style invoice API.
type CryptoGateway struct {
	baseURL     string
	apiKey      string
	ipnSecret   string
	payCurrency string
	client      *http.Client
}

func NewCryptoGateway(baseURL, apiKey, ipnSecret, payCurrency string, timeout time.Duration) *CryptoGateway {
	return &CryptoGateway{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		ipnSecret:   ipnSecret,
		payCurrency: payCurrency,
		client:      newHTTPClient(timeout),
	}
}

func (g *CryptoGateway) Provider() models.Provider { return models.ProviderCrypto }

type cryptoInvoiceRequest struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency,omitempty"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description,omitempty"`
	IPNCallbackURL   string      `json:"ipn_callback_url,omitempty"`
	SuccessURL       string      `json:"success_url,omitempty"`
}

type cryptoInvoiceResponse struct {
	ID         json.Number `json:"id"`
	InvoiceURL string      `json:"invoice_url"`
}

func (g *CryptoGateway) InitCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	in := cryptoInvoiceRequest{
		PriceAmount:      json.Number(req.Amount.StringFixed(2)),
		PriceCurrency:    strings.ToLower(req.Currency),
		PayCurrency:      g.payCurrency,
		OrderID:          req.Reference,
		OrderDescription: req.Description,
		IPNCallbackURL:   req.CallbackURL,
	}

	var out cryptoInvoiceResponse
	if err := postJSON(ctx, g.client, g.baseURL+"/v1/invoice", map[string]string{"x-api-key": g.apiKey}, in, &out); err != nil {
		return nil, err
	}
	if out.InvoiceURL == "" {
		return nil, fmt.Errorf("%w: invoice url missing", ErrUpstream)
	}
	return &Checkout{CheckoutURL: out.InvoiceURL, ProviderReference: out.ID.String()}, nil
}

func (g *CryptoGateway) VerifySignature(body []byte, signature string) error {
	canonical, err := sortedJSON(body)
	if err != nil {
		return ErrSignatureMismatch
	}
	return verifyHMACSHA512([]byte(g.ipnSecret), canonical, strings.ToLower(strings.TrimSpace(signature)))
}

// sortedJSON re-encodes body with object keys sorted at every level. Numbers keep
// their original text.
func sortedJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type cryptoEvent struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	OrderID       string      `json:"order_id"`
	PriceAmount   json.Number `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
}

func (g *CryptoGateway) ParseEvent(body []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw cryptoEvent
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.PaymentStatus == "" {
		return nil, fmt.Errorf("%w: missing payment_status", ErrMalformedEvent)
	}

	ev := &Event{
		Type:              "payment." + raw.PaymentStatus,
		Reference:         raw.OrderID,
		ProviderReference: raw.PaymentID.String(),
		Currency:          strings.ToUpper(raw.PriceCurrency),
		Status:            raw.PaymentStatus,
	}

	switch raw.PaymentStatus {
	case "finished", "confirmed":
		ev.Kind = EventSucceeded
	case "failed", "expired":
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	if ev.Reference == "" {
		return nil, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	amount, err := decimal.NewFromString(raw.PriceAmount.String())
	if err != nil {
		return nil, fmt.Errorf("%w: price_amount %q", ErrMalformedEvent, raw.PriceAmount)
	}
	ev.Amount = amount
	return ev, nil
}
