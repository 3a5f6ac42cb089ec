package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/services"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the verified caller as supplied by the identity provider.
type Identity struct {
	AccountID string
	Email     string
}

type ctxKey int

const identityKey ctxKey = iota

// IdentityProvider verifies a request and returns who made it.
type IdentityProvider interface {
	Identify(r *http.Request) (*Identity, error)
}

// JWTIdentity accepts HS256 bearer tokens carrying sub and email claims.
type JWTIdentity struct {
	secret []byte
	issuer string
}

func NewJWTIdentity(secret, issuer string) *JWTIdentity {
	return &JWTIdentity{secret: []byte(secret), issuer: issuer}
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (p *JWTIdentity) Identify(r *http.Request) (*Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("%w: authorization header required", ErrUnauthenticated)
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	var c claims
	token, err := jwt.ParseWithClaims(parts[1], &c, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return &Identity{AccountID: c.Subject, Email: c.Email}, nil
}

// Issue signs a token for accountID. The identity provider normally does this;
// it exists for local tooling and tests.
func (p *JWTIdentity) Issue(accountID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(p.secret)
}

// StaticIdentity authenticates every request as the same caller. Test double.
type StaticIdentity Identity

func (s StaticIdentity) Identify(*http.Request) (*Identity, error) {
	if s.AccountID == "" {
		return nil, ErrUnauthenticated
	}
	id := Identity(s)
	return &id, nil
}

// Authenticate rejects requests the provider cannot identify and stores the
// identity in the request context.
func Authenticate(p IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := p.Identify(r)
			if err != nil {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// RequireCapability lets the request through only if the caller's role grants c.
func RequireCapability(auth services.Authorizer, c models.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			if err := auth.Can(r.Context(), id.AccountID, c); err != nil {
				services.SendServiceError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
