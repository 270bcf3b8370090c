package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/psantos/driverauth/pkg/domain"
)

// DefaultAccessTokenTTL is the default lifetime of the short-lived access
// token minted at login and refresh.
const DefaultAccessTokenTTL = 15 * time.Minute

// AccessTokenConfig holds signing configuration for access tokens.
type AccessTokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// AccessTokenClaims represents the claims in an access token. The token is
// a convenience credential for read endpoints only: session resolution
// always goes to the store with the (session_id, token) pair, and neither
// a JWT nor a session ID alone can resolve a session.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Username           string `json:"username"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
}

// AccessTokenIssuer mints and validates HS256 access tokens.
type AccessTokenIssuer struct {
	config AccessTokenConfig
	now    func() time.Time
}

// NewAccessTokenIssuer creates an access token issuer.
func NewAccessTokenIssuer(config AccessTokenConfig) *AccessTokenIssuer {
	if config.TTL == 0 {
		config.TTL = DefaultAccessTokenTTL
	}
	return &AccessTokenIssuer{config: config, now: time.Now}
}

// TTL returns the access token lifetime.
func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.config.TTL
}

// Issue mints an access token bound to the identity and session.
func (i *AccessTokenIssuer) Issue(identity domain.Identity, sessionID string) (string, error) {
	now := i.now()
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.TTL)),
			Issuer:    i.config.Issuer,
			ID:        sessionID,
		},
		Username:           identity.Username,
		MustChangePassword: identity.MustChangePassword,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.config.Secret)
}

// Validate parses an access token and returns its claims.
func (i *AccessTokenIssuer) Validate(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return i.config.Secret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
