package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/mr-tron/base58"

	"solchat/pkg/models"
)

const testSecret = "test-session-secret"

func TestSessionTokenRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind models.OwnerKind
	}{
		{"user session", models.OwnerUser},
		{"guest session", models.OwnerGuest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := CreateSessionToken("account-1", tt.kind, testSecret)
			if err != nil {
				t.Fatalf("CreateSessionToken failed: %v", err)
			}

			session, err := ValidateSessionToken(token, testSecret)
			if err != nil {
				t.Fatalf("ValidateSessionToken failed: %v", err)
			}
			if session.AccountID != "account-1" {
				t.Errorf("Expected account-1, got %q", session.AccountID)
			}
			if session.AccountKind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, session.AccountKind)
			}
		})
	}
}

func TestValidateSessionTokenWrongSecret(t *testing.T) {
	token, err := CreateSessionToken("account-1", models.OwnerUser, testSecret)
	if err != nil {
		t.Fatalf("CreateSessionToken failed: %v", err)
	}
	if _, err := ValidateSessionToken(token, "other-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateSessionTokenMalformed(t *testing.T) {
	if _, err := ValidateSessionToken("not-a-jwt", testSecret); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateSessionTokenExpired(t *testing.T) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
		AccountID:   "account-1",
		AccountKind: string(models.OwnerUser),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	if _, err := ValidateSessionToken(token, testSecret); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateSessionTokenUnknownKind(t *testing.T) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		AccountID:   "account-1",
		AccountKind: "robot",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	if _, err := ValidateSessionToken(token, testSecret); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyWalletSignature(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	wallet := base58.Encode(publicKey)
	message := "Connect wallet to solchat"
	signature := base58.Encode(ed25519.Sign(privateKey, []byte(message)))

	if err := VerifyWalletSignature(wallet, signature, message); err != nil {
		t.Errorf("Valid signature rejected: %v", err)
	}

	if err := VerifyWalletSignature(wallet, signature, "different message"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for altered message, got %v", err)
	}

	otherPublic, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	if err := VerifyWalletSignature(base58.Encode(otherPublic), signature, message); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for wrong wallet, got %v", err)
	}
}

func TestVerifyWalletSignatureBadInputs(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	wallet := base58.Encode(publicKey)
	signature := base58.Encode(ed25519.Sign(privateKey, []byte("msg")))

	if err := VerifyWalletSignature("0OIl-not-base58", signature, "msg"); err == nil {
		t.Error("Expected error for malformed wallet address")
	}
	if err := VerifyWalletSignature(base58.Encode([]byte("short")), signature, "msg"); err == nil {
		t.Error("Expected error for wrong-length public key")
	}
	if err := VerifyWalletSignature(wallet, base58.Encode([]byte("short")), "msg"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for wrong-length signature, got %v", err)
	}
}
