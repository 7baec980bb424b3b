package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued to API clients.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller extracted from a verified token.
type Principal struct {
	UserID string
	Email  string
}

// TokenConfig configures HS256 tokens. Secret is the raw signing key.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type Tokens struct {
	cfg    TokenConfig
	now    func() time.Time
	parser *jwt.Parser
}

func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	t := &Tokens{cfg: cfg, now: time.Now}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	return t, nil
}

// Issue signs a token for the user and returns it with its expiry.
func (t *Tokens) Issue(userID, email string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.cfg.TTL)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (t *Tokens) Verify(raw string) (Principal, error) {
	var claims Claims
	_, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(t.cfg.Secret), nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Principal{UserID: claims.Subject, Email: claims.Email}, nil
}
