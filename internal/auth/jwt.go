package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a validated admin token vouches for.
type Identity struct {
	OrganizationID string
	AdminID        string
}

// GenerateJWT signs an admin token for organizationID. adminID becomes the
// subject and defaults to the organization.
func GenerateJWT(secret, organizationID, adminID string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	if organizationID == "" {
		return "", fmt.Errorf("organization id is required")
	}
	if adminID == "" {
		adminID = organizationID
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": adminID,
		"org": organizationID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT checks the signature and expiry and returns the organization
// and admin the token was issued for.
func ValidateJWT(secret, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	org, _ := claims["org"].(string)
	if org == "" {
		org = sub
	}
	if org == "" {
		return Identity{}, fmt.Errorf("%w: no organization claim", ErrInvalidToken)
	}
	if sub == "" {
		sub = org
	}
	return Identity{OrganizationID: org, AdminID: sub}, nil
}
