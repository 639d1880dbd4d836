package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, accessTTL, refreshTTL time.Duration) *AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	svc, err := NewAuthService(privPEM, pubPEM, accessTTL, refreshTTL)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestGenerateTokenPair_Roundtrip(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, 24*time.Hour)

	pair, err := svc.GenerateTokenPair(7, "company")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	access, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if access.UserID != 7 || access.UserType != "company" || access.TokenType != "access" {
		t.Fatalf("unexpected access claims %+v", access)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh token: %v", err)
	}
	if refresh.TokenType != "refresh" {
		t.Fatalf("expected refresh token type got %q", refresh.TokenType)
	}
	if refresh.ID == "" {
		t.Fatalf("refresh token must carry a jti")
	}
}

func TestValidateToken_RejectsExpired(t *testing.T) {
	svc := newTestService(t, -time.Minute, -time.Minute)

	pair, err := svc.GenerateTokenPair(1, "user")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	if _, err := svc.ValidateToken(pair.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateToken_RejectsTampered(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, 24*time.Hour)

	pair, err := svc.GenerateTokenPair(1, "user")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.ValidateToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}

	if _, err := svc.ValidateToken(""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestValidateToken_RejectsForeignKey(t *testing.T) {
	issuer := newTestService(t, 15*time.Minute, 24*time.Hour)
	verifier := newTestService(t, 15*time.Minute, 24*time.Hour)

	pair, err := issuer.GenerateTokenPair(1, "user")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	if _, err := verifier.ValidateToken(pair.AccessToken); err == nil {
		t.Fatalf("expected token signed by another key to be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	svc := newTestService(t, 15*time.Minute, 24*time.Hour)

	hash, err := svc.HashPassword("secret-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "secret-password" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !svc.CheckPasswordHash("secret-password", hash) {
		t.Fatalf("expected password to match its hash")
	}
	if svc.CheckPasswordHash("wrong-password", hash) {
		t.Fatalf("expected wrong password to be rejected")
	}
}
