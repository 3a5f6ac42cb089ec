// Package gateway talks to the hosted payment providers: it opens checkouts and
// authenticates and decodes their webhook notifications.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/models"
)

var (
	ErrSignatureMismatch = errors.New("gateway: signature mismatch")
	ErrMalformedEvent    = errors.New("gateway: malformed event")
	ErrUpstream          = errors.New("gateway: upstream failure")
)

type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventIgnored   EventKind = "ignored"
)

type CheckoutRequest struct {
	Reference   string
	Email       string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
	Description string
}

type Checkout struct {
	CheckoutURL       string
	ProviderReference string
}

// Event is a provider notification reduced to what settlement needs. Reference is
// the transaction id we sent at checkout; ProviderReference is the provider's own id.
type Event struct {
	Kind              EventKind
	Type              string
	Reference         string
	ProviderReference string
	Amount            decimal.Decimal
	Currency          string
	Status            string
}

type Gateway interface {
	Provider() models.Provider
	InitCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	// VerifySignature checks the signature header against the raw body.
	VerifySignature(body []byte, signature string) error
	ParseEvent(body []byte) (*Event, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// verifyHMACSHA512 compares a hex signature in constant time.
func verifyHMACSHA512(secret, payload []byte, signature string) error {
	if len(secret) == 0 || signature == "" {
		return ErrSignatureMismatch
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha512.New, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrSignatureMismatch
	}
	return nil
}

// SignHMACSHA512 returns the hex signature a provider would send for payload.
func SignHMACSHA512(secret, payload []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}
