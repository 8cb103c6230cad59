package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateOperatorToken("op-1")
	if err != nil {
		t.Fatalf("GenerateOperatorToken failed: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.OperatorID != "op-1" {
		t.Errorf("expected op-1, got %s", claims.OperatorID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateOperatorToken("op-1")
	if err != nil {
		t.Fatalf("GenerateOperatorToken failed: %v", err)
	}

	_, err = NewJWTManager("secret-b", time.Hour).ValidateToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)
	token, err := m.GenerateOperatorToken("op-1")
	if err != nil {
		t.Fatalf("GenerateOperatorToken failed: %v", err)
	}

	if _, err := m.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	if _, err := m.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
