// Package auth issues and checks the service's JWTs and password hashes.
package auth

import (
	"errors"
	"fmt"
	"pipi/backend/internal/config"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const (
	purposeSession = "session"
	purposeLink    = "telegram_link"

	linkCodeTTL = 15 * time.Minute
)

// Tokens signs HS256 tokens carrying a user id.
type Tokens struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = config.TokenTTL
	}
	return &Tokens{
		Secret: []byte(secret),
		Issuer: config.TokenIssuer,
		TTL:    ttl,
		Now:    time.Now,
	}
}

// Issue генерує JWT для сесії користувача.
func (t *Tokens) Issue(userID string) (string, error) {
	return t.sign(userID, purposeSession, t.TTL)
}

// Parse returns the user id of a valid session token.
func (t *Tokens) Parse(token string) (string, error) {
	return t.parse(token, purposeSession)
}

// IssueLinkCode creates a short-lived code that binds a Telegram chat to userID.
func (t *Tokens) IssueLinkCode(userID string) (string, error) {
	return t.sign(userID, purposeLink, linkCodeTTL)
}

// ParseLinkCode returns the user id of a valid link code.
func (t *Tokens) ParseLinkCode(code string) (string, error) {
	return t.parse(code, purposeLink)
}

func (t *Tokens) sign(userID, purpose string, ttl time.Duration) (string, error) {
	now := t.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"purpose": purpose,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
		"iss":     t.Issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.Secret)
}

func (t *Tokens) parse(token, purpose string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.Secret, nil
	},
		jwt.WithIssuer(t.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.Now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	if p, _ := claims["purpose"].(string); p != purpose {
		return "", ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}
