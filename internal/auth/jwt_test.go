package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret", "inbox", time.Hour)

	token, expiry, err := svc.GenerateAccessToken("usr_1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if time.Until(expiry) <= 0 {
		t.Fatalf("expiry = %v, want future", expiry)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.UserID != "usr_1" {
		t.Fatalf("claims.UserID = %q, want usr_1", claims.UserID)
	}
}

func TestValidateAccessTokenRejects(t *testing.T) {
	svc := NewJWTService("test-secret", "inbox", time.Hour)

	expired, _, err := NewJWTService("test-secret", "inbox", -time.Minute).GenerateAccessToken("usr_1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	wrongSecret, _, err := NewJWTService("other-secret", "inbox", time.Hour).GenerateAccessToken("usr_1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	wrongIssuer, _, err := NewJWTService("test-secret", "elsewhere", time.Hour).GenerateAccessToken("usr_1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: wrongSecret},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateAccessToken(tt.token); err == nil {
				t.Fatal("ValidateAccessToken() error = nil, want error")
			}
		})
	}
}

func TestValidateAccessTokenFallsBackToSubject(t *testing.T) {
	svc := NewJWTService("test-secret", "", time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "usr_sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	got, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if got.UserID != "usr_sub" {
		t.Fatalf("UserID = %q, want usr_sub", got.UserID)
	}

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	if _, err := svc.ValidateAccessToken(noSubject); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("ValidateAccessToken() error = %v, want ErrMissingSubject", err)
	}
}
