package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jobboard/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep_RemovesStaleInactiveAccounts(t *testing.T) {
	db := newTestDB(t)
	grace := 5 * time.Minute
	handler := NewSweepTaskHandler(db, grace, newTestLogger())

	old := time.Now().Add(-time.Hour)
	users := []database.User{
		{Model: gorm.Model{CreatedAt: old}, Name: "만료", Email: "stale@example.com", PasswordHash: "x", IsActive: false},
		{Name: "신규", Email: "fresh@example.com", PasswordHash: "x", IsActive: false},
		{Model: gorm.Model{CreatedAt: old}, Name: "활성", Email: "active@example.com", PasswordHash: "x", IsActive: true},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	companyUser := database.CompanyUser{
		Model:        gorm.Model{CreatedAt: old},
		Email:        "stale-biz@example.com",
		PasswordHash: "x",
		CompanyID:    1,
		ManagerName:  "박담당",
		ManagerPhone: "010-1234-5678",
		IsActive:     false,
	}
	if err := db.Create(&companyUser).Error; err != nil {
		t.Fatalf("seed company user: %v", err)
	}

	verifications := []database.EmailVerification{
		{Email: "stale@example.com", Token: "expired", UserType: "user", ExpiresAt: time.Now().Add(-time.Minute)},
		{Email: "fresh@example.com", Token: "pending", UserType: "user", ExpiresAt: time.Now().Add(30 * time.Minute)},
		{Email: "done@example.com", Token: "verified", UserType: "user", IsVerified: true, ExpiresAt: time.Now().Add(-time.Minute)},
	}
	for i := range verifications {
		if err := db.Create(&verifications[i]).Error; err != nil {
			t.Fatalf("seed verification: %v", err)
		}
	}

	if err := handler.ProcessTask(context.Background(), nil); err != nil {
		t.Fatalf("process task: %v", err)
	}

	var emails []string
	if err := db.Unscoped().Model(&database.User{}).Order("id").Pluck("email", &emails).Error; err != nil {
		t.Fatalf("pluck users: %v", err)
	}
	if len(emails) != 2 || emails[0] != "fresh@example.com" || emails[1] != "active@example.com" {
		t.Fatalf("unexpected surviving users %v", emails)
	}

	var companyCount int64
	if err := db.Unscoped().Model(&database.CompanyUser{}).Count(&companyCount).Error; err != nil {
		t.Fatalf("count company users: %v", err)
	}
	if companyCount != 0 {
		t.Fatalf("expected stale company user removed, got %d", companyCount)
	}

	var tokens []string
	if err := db.Unscoped().Model(&database.EmailVerification{}).Order("id").Pluck("token", &tokens).Error; err != nil {
		t.Fatalf("pluck verifications: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "pending" || tokens[1] != "verified" {
		t.Fatalf("unexpected surviving verifications %v", tokens)
	}
}

func TestSweep_NoRowsIsNoop(t *testing.T) {
	db := newTestDB(t)
	handler := NewSweepTaskHandler(db, 5*time.Minute, newTestLogger())

	if err := handler.ProcessTask(context.Background(), nil); err != nil {
		t.Fatalf("process task on empty database: %v", err)
	}
}
