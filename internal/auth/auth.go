package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	jwt "github.com/golang-jwt/jwt/v5"
)

// Roles issued by the identity provider.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleBodaboda = "bodaboda"
	RoleAdmin    = "admin"
)

var (
	ErrMissingToken = errors.New("missing authorization token")
	ErrInvalidToken = errors.New("invalid authorization token")
)

// Identity represents the authenticated caller extracted from a bearer token.
// Token issuance and credential checks live in the identity provider; this
// package only verifies and decodes what it issued.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

func (i Identity) IsRider() bool { return i.Role == RoleBodaboda }

type identityKey struct{}

// WithIdentity stores the identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the identity from context (if any).
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 token and returns the caller's identity.
// The subject claim carries the user id.
func ParseToken(tokenStr, secret string) (Identity, error) {
	if secret == "" {
		return Identity{}, errors.New("jwt secret is empty")
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}

	c, _ := tok.Claims.(*claims)
	if c == nil || c.Subject == "" || c.Role == "" {
		return Identity{}, ErrInvalidToken
	}

	userID, err := uuid.FromString(c.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, Role: strings.ToLower(c.Role)}, nil
}

// NewToken signs an HS256 token for the given identity. Used by tests and
// seed tooling; real tokens come from the identity provider.
func NewToken(id Identity, secret string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.UserID.String(),
		},
	})
	return tok.SignedString([]byte(secret))
}

// Middleware extracts a Bearer token from the Authorization header and puts
// the resulting Identity into the request context. Requests without a valid
// token are rejected with 401.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}

			id, err := ParseToken(strings.TrimSpace(parts[1]), secret)
			if err != nil {
				http.Error(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
