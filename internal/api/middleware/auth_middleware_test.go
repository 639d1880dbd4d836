package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"jobboard/internal/auth"
	"jobboard/internal/database"
)

func newTestAuthService(t *testing.T) *auth.AuthService {
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

	svc, err := auth.NewAuthService(privPEM, pubPEM, 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func newAuthRouter(svc *auth.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/user-only", AuthMiddleware(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint("userID")})
	})
	router.GET("/company-only", CompanyAuthMiddleware(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"company_user_id": c.GetUint("companyUserID")})
	})
	router.GET("/optional", OptionalAuthMiddleware(svc), func(c *gin.Context) {
		_, authed := c.Get("userID")
		c.JSON(http.StatusOK, gin.H{"authed": authed})
	})
	return router
}

func performGet(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_AcceptsUserAccessToken(t *testing.T) {
	svc := newTestAuthService(t)
	router := newAuthRouter(svc)

	pair, err := svc.GenerateTokenPair(3, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	w := performGet(router, "/user-only", pair.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestAuthMiddleware_RejectsCompanyToken(t *testing.T) {
	svc := newTestAuthService(t)
	router := newAuthRouter(svc)

	pair, err := svc.GenerateTokenPair(3, database.UserTypeCompany)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	if w := performGet(router, "/user-only", pair.AccessToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for company token on user route, got %d", w.Code)
	}
	if w := performGet(router, "/company-only", pair.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for company token on company route, got %d", w.Code)
	}
}

func TestAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	svc := newTestAuthService(t)
	router := newAuthRouter(svc)

	pair, err := svc.GenerateTokenPair(3, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	// 刷新令牌不能当访问令牌用。
	if w := performGet(router, "/user-only", pair.RefreshToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh token, got %d", w.Code)
	}
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	svc := newTestAuthService(t)
	router := newAuthRouter(svc)

	if w := performGet(router, "/user-only", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/user-only", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed header, got %d", w.Code)
	}
}

func TestOptionalAuthMiddleware_AnonymousContinues(t *testing.T) {
	svc := newTestAuthService(t)
	router := newAuthRouter(svc)

	w := performGet(router, "/optional", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"authed":false}` {
		t.Fatalf("expected anonymous passthrough, got %s", body)
	}

	pair, err := svc.GenerateTokenPair(3, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	w = performGet(router, "/optional", pair.AccessToken)
	if body := w.Body.String(); body != `{"authed":true}` {
		t.Fatalf("expected authenticated passthrough, got %s", body)
	}
}
