package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/saakshy/saakshy-backend/pkg/config"
)

// clockSkew tolerates small drift between the identity service and us.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// Signer verifies access tokens and, for tests and local tooling, mints them.
// Production tokens come from the identity service.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	}
	return &Signer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

func (s *Signer) Mint(now time.Time, payload AccessTokenPayload) (string, error) {
	if s.ttl <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		return "", errors.New("user id is required")
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: userID,
		Mobile: payload.Mobile,
		Name:   payload.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns its claims with UserID resolved.
func (s *Signer) Parse(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, s.key); err != nil {
		return nil, err
	}
	claims.UserID = claims.subjectID()
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

func (s *Signer) key(*jwt.Token) (any, error) { return s.secret, nil }

// MintAccessToken is Mint on a one-off Signer.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	signer, err := NewSigner(cfg)
	if err != nil {
		return "", err
	}
	return signer.Mint(now, payload)
}
