package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"solchat/pkg/models"
)

const (
	// TokenLifetime defines how long session tokens are valid.
	TokenLifetime = 30 * 24 * time.Hour
)

var (
	// ErrTokenExpired is returned when the token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned when the token is invalid for any reason.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionClaims are the JWT claims of a user or guest session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID   string `json:"account_id"`
	AccountKind string `json:"account_kind"`
}

// Session identifies the account a validated token belongs to.
type Session struct {
	AccountID   string
	AccountKind models.OwnerKind
}

// CreateSessionToken generates a signed JWT for an account.
func CreateSessionToken(accountID string, kind models.OwnerKind, secret string) (string, error) {
	now := time.Now()

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        now.Format(time.RFC3339Nano),
		},
		AccountID:   accountID,
		AccountKind: string(kind),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateSessionToken validates and parses a session JWT.
func ValidateSessionToken(tokenString, secret string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}

	kind := models.OwnerKind(claims.AccountKind)
	if kind != models.OwnerUser && kind != models.OwnerGuest {
		return nil, ErrInvalidToken
	}

	return &Session{AccountID: claims.AccountID, AccountKind: kind}, nil
}
