package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/logger"
)

// =============================================================================
// OWNER AUTHENTICATION
// =============================================================================

// OwnerHeader names the owner when token authentication is disabled.
const OwnerHeader = "X-Owner-ID"

var (
	ErrMissingToken = errors.New("authorization header required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type ownerKey struct{}

func withOwner(ctx context.Context, owner ledger.OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the authenticated owner of the request.
func OwnerFromContext(ctx context.Context) (ledger.OwnerID, bool) {
	owner, ok := ctx.Value(ownerKey{}).(ledger.OwnerID)
	return owner, ok && owner != ""
}

// Authenticator resolves the shop owner of a request. Tokens are issued by
// the platform identity provider; the owner is the token subject.
type Authenticator struct {
	Enabled bool
	Secret  []byte
	Issuer  string
}

// Owner extracts the owner id from the request.
func (a Authenticator) Owner(r *http.Request) (ledger.OwnerID, error) {
	if !a.Enabled {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			return "", fmt.Errorf("%w: %s header required", ErrMissingToken, OwnerHeader)
		}
		return ledger.OwnerID(owner), nil
	}

	header := r.Header.Get("Authorization")
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(header[7:], claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return ledger.OwnerID(claims.Subject), nil
}

// IssueToken signs a token for owner. Used by tests and local tooling.
func (a Authenticator) IssueToken(owner ledger.OwnerID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(owner),
		Issuer:    a.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Middleware rejects requests without an owner and attaches the owner to
// the request context and logger.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := a.Owner(r)
		if err != nil {
			logger.FromContext(r.Context()).Debug("unauthenticated request", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "unauthorized"})
			return
		}
		ctx, _ := logger.With(withOwner(r.Context(), owner), zap.String("owner_id", string(owner)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
