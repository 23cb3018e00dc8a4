package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/hive/internal/fault"
)

// Identity is an authenticated user.
type Identity struct {
	ID     string
	Handle string
}

// Claims is the token body. The subject is the user id.
type Claims struct {
	Handle string `json:"handle,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens issued by the account service.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify returns the identity carried by token.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fault.Auth(fault.MissingToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fault.AuthCause(fault.InvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fault.AuthCause(fault.InvalidToken, errors.New("token has no subject"))
	}
	return Identity{ID: claims.Subject, Handle: claims.Handle}, nil
}

// Issue signs a token for id. Used by tooling and tests; production tokens
// come from the account service.
func (v *Verifier) Issue(id, handle string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id,
			Issuer:   v.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest reads a bearer token from the Authorization header, then
// from the token query parameter. It returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
