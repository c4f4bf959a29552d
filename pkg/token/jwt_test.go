package token

import (
	"errors"
	"testing"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)
	tok, err := m.GenerateToken(7, 12345, true)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.VerifyAccessToken(tok)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != 7 || claims.TelegramID != 12345 || !claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRefreshTokenIsNotAccessToken(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)
	tok, err := m.GenerateRefreshToken(1, 2, false)
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if _, err := m.VerifyAccessToken(tok); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
	if _, err := m.VerifyRefreshToken(tok); err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, _ := NewJWTManager("a", 1, 1).GenerateToken(1, 1, false)
	if _, err := NewJWTManager("b", 1, 1).VerifyToken(tok); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestGenerateRandomString(t *testing.T) {
	s := GenerateRandomString(32)
	if len(s) != 64 {
		t.Fatalf("len = %d", len(s))
	}
	if s == GenerateRandomString(32) {
		t.Fatal("expected distinct values")
	}
}
