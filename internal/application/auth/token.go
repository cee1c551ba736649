package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/watchdogstudios/cassandra-core/internal/domain/authctx"
)

// claims adapts authctx.Claims to the jwt.Claims interface so the package
// can sign and verify with golang-jwt while keeping the wire field names
// §4.2 mandates (sub, tenant_id, scopes, use, nonce, session, ...). iat/exp
// are integer seconds since epoch on the wire, per the token wire format.
type claims struct {
	authctx.Claims
}

func (c claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c claims) GetIssuer() (string, error) { return c.Issuer, nil }

func (c claims) GetSubject() (string, error) { return c.Subject, nil }

func (c claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// signJWT mints a three-part base64url-no-pad token with header exactly
// {"alg":"HS256","typ":"JWT"}, as golang-jwt's HS256 signing method
// produces by default.
func signJWT(c authctx.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{c})
	return token.SignedString(secret)
}

var errBadToken = errors.New("malformed or invalid token")

// verifyJWT parses and verifies a token, rejecting any algorithm other than
// HS256 and any token with more than three segments (golang-jwt's parser
// already rejects malformed segment counts; WithValidMethods enforces the
// algorithm allowlist). Signature comparison is constant-time internally.
func verifyJWT(raw string, secret []byte, now time.Time) (authctx.Claims, error) {
	var out claims
	parsed, err := jwt.ParseWithClaims(raw, &out, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return authctx.Claims{}, errBadToken
	}
	return out.Claims, nil
}
