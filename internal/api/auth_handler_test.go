package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"jobboard/internal/database"
)

// fakeRedis 只实现黑名单与限流用到的几个命令，其余方法触发即 panic。
type fakeRedis struct {
	redis.UniversalClient

	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		counts: map[string]int64{},
		ttls:   map[string]time.Duration{},
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if value, ok := f.values[key]; ok {
		cmd.SetVal(value)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = "1"
	f.ttls[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) TTL(ctx context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewDurationCmd(ctx, time.Second)
	if ttl, ok := f.ttls[key]; ok {
		cmd.SetVal(ttl)
	} else {
		cmd.SetVal(-2 * time.Second)
	}
	return cmd
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
		delete(f.counts, key)
		delete(f.ttls, key)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func newAuthTestHandler(t *testing.T) (*AuthHandler, *fakeRedis) {
	t.Helper()
	db := newTestDB(t)
	svc := newTestAuthService(t)
	fake := newFakeRedis()
	return NewAuthHandler(db, svc, fake, newTestLogger(), 10, 5, time.Minute), fake
}

func TestRefresh_RotatesAndRevokesOldToken(t *testing.T) {
	h, _ := newAuthTestHandler(t)

	user := database.User{Name: "김유저", Email: "rotate@example.com", PasswordHash: "x", IsActive: true}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	pair, err := h.authService.GenerateTokenPair(user.ID, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/refresh-token", map[string]any{"refresh_token": pair.RefreshToken})
	h.Refresh(c)

	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["access_token"] == nil || body["access_token"] == "" {
		t.Fatalf("expected new access token, got %v", body)
	}
	if body["refresh_token"] == pair.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}

	// 旧刷新令牌旋转后立刻失效。
	c, w = newJSONContext(t, http.MethodPost, "/v1/auth/refresh-token", map[string]any{"refresh_token": pair.RefreshToken})
	h.Refresh(c)
	requireStatus(t, w, http.StatusUnauthorized)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	h, _ := newAuthTestHandler(t)

	pair, err := h.authService.GenerateTokenPair(1, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/refresh-token", map[string]any{"refresh_token": pair.AccessToken})
	h.Refresh(c)

	requireStatus(t, w, http.StatusUnauthorized)
}

func TestRefresh_UnknownAccount(t *testing.T) {
	h, _ := newAuthTestHandler(t)

	pair, err := h.authService.GenerateTokenPair(999, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/refresh-token", map[string]any{"refresh_token": pair.RefreshToken})
	h.Refresh(c)

	requireStatus(t, w, http.StatusUnauthorized)
}

func TestLogout_BlacklistsRefreshToken(t *testing.T) {
	h, _ := newAuthTestHandler(t)

	user := database.User{Name: "김유저", Email: "logout@example.com", PasswordHash: "x", IsActive: true}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	pair, err := h.authService.GenerateTokenPair(user.ID, database.UserTypeUser)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	c, w := newJSONContext(t, http.MethodPost, "/v1/auth/logout", map[string]any{"refresh_token": pair.RefreshToken})
	h.Logout(c)
	requireStatus(t, w, http.StatusOK)

	c, w = newJSONContext(t, http.MethodPost, "/v1/auth/refresh-token", map[string]any{"refresh_token": pair.RefreshToken})
	h.Refresh(c)
	requireStatus(t, w, http.StatusUnauthorized)
}

func TestLoginThrottle_LocksAfterRepeatedFailures(t *testing.T) {
	h, _ := newAuthTestHandler(t)
	ctx := context.Background()

	if err := h.checkLoginThrottle(ctx, "10.0.0.1", "victim@example.com"); err != nil {
		t.Fatalf("expected clean account to pass throttle, got %v", err)
	}

	for i := 0; i < h.loginLockThreshold; i++ {
		if err := h.registerLoginFailure(ctx, "victim@example.com"); err != nil {
			t.Fatalf("register failure: %v", err)
		}
	}

	if err := h.checkLoginThrottle(ctx, "10.0.0.1", "victim@example.com"); err != errLoginLocked {
		t.Fatalf("expected locked error, got %v", err)
	}
}

func TestLoginThrottle_RateLimitPerHour(t *testing.T) {
	h, _ := newAuthTestHandler(t)
	ctx := context.Background()

	var last error
	for i := 0; i < h.loginRateLimitPerHour+1; i++ {
		last = h.checkLoginThrottle(ctx, "10.0.0.2", "busy@example.com")
	}
	if last != errLoginRateLimited {
		t.Fatalf("expected rate limit error, got %v", last)
	}
}
