package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"jobboard/internal/database"
	"jobboard/internal/oauth"
)

type stubOAuthProvider struct {
	profile oauth.Profile
	err     error
}

func (s stubOAuthProvider) Exchange(context.Context, string) (oauth.Profile, error) {
	return s.profile, s.err
}

func newOAuthTestHandler(t *testing.T, provider oauth.Provider) *OAuthHandler {
	t.Helper()
	db := newTestDB(t)
	svc := newTestAuthService(t)
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	authHandler := NewAuthHandler(db, svc, redisClient, newTestLogger(), 10, 5, time.Minute)
	providers := map[string]oauth.Provider{"kakao": provider}
	return NewOAuthHandler(db, svc, authHandler, providers, newTestLogger())
}

func TestOAuthLogin_UnknownProvider(t *testing.T) {
	h := newOAuthTestHandler(t, stubOAuthProvider{})

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/google/login", map[string]any{"code": "abc"})
	c.Params = gin.Params{{Key: "provider", Value: "google"}}
	h.Login(c)

	requireStatus(t, w, http.StatusNotFound)
}

func TestOAuthLogin_ExchangeFailure(t *testing.T) {
	h := newOAuthTestHandler(t, stubOAuthProvider{err: errors.New("upstream down")})

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/kakao/login", map[string]any{"code": "abc"})
	c.Params = gin.Params{{Key: "provider", Value: "kakao"}}
	h.Login(c)

	requireStatus(t, w, http.StatusBadGateway)
}

func TestOAuthLogin_NewUserNeedsRegister(t *testing.T) {
	h := newOAuthTestHandler(t, stubOAuthProvider{
		profile: oauth.Profile{Email: "social@example.com", Name: "김소셜"},
	})

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/kakao/login", map[string]any{"code": "abc"})
	c.Params = gin.Params{{Key: "provider", Value: "kakao"}}
	h.Login(c)

	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["need_register"] != true {
		t.Fatalf("expected need_register response, got %v", body)
	}

	// 预置的验证记录让后续注册直接通过邮箱校验。
	var record database.EmailVerification
	if err := h.db.Where("email = ?", "social@example.com").First(&record).Error; err != nil {
		t.Fatalf("load verification: %v", err)
	}
	if !record.IsVerified {
		t.Fatalf("expected pre-verified record")
	}
}

func TestOAuthLogin_ExistingUserGetsTokens(t *testing.T) {
	h := newOAuthTestHandler(t, stubOAuthProvider{
		profile: oauth.Profile{Email: "social@example.com", Name: "김소셜"},
	})

	user := database.User{Name: "김소셜", Email: "social@example.com", PasswordHash: "x", IsActive: false}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/kakao/login", map[string]any{"code": "abc"})
	c.Params = gin.Params{{Key: "provider", Value: "kakao"}}
	h.Login(c)

	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["access_token"] == nil || body["access_token"] == "" {
		t.Fatalf("expected access token in response, got %v", body)
	}

	var reloaded database.User
	if err := h.db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !reloaded.IsActive {
		t.Fatalf("expected social login to reactivate account")
	}
}
