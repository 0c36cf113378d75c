package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload is what a locally minted token says about its user.
type AccessTokenPayload struct {
	UserID string
	// Mobile is the verified phone number. It is how a user is matched as the
	// counterparty of records created by others.
	Mobile string
	Name   string
	JTI    string
}

// AccessTokenClaims are the claims clients present. user_id wins over sub
// when both are set.
type AccessTokenClaims struct {
	UserID string `json:"user_id"`
	Mobile string `json:"mobile,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) subjectID() string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}
