package api

import (
	"net/http"
	"testing"
	"time"

	"jobboard/internal/database"
)

func TestSendVerification_CreatesRecord(t *testing.T) {
	db := newTestDB(t)
	h := NewVerificationHandler(db, newTestAsynqClient(), newTestLogger())

	payload := map[string]any{"email": "minsu@example.com", "user_type": "user"}
	c, w := newJSONContext(t, http.MethodPost, "/v1/email/send-verification", payload)
	h.SendVerification(c)

	requireStatus(t, w, http.StatusCreated)

	var record database.EmailVerification
	if err := db.Where("email = ?", "minsu@example.com").First(&record).Error; err != nil {
		t.Fatalf("load verification: %v", err)
	}
	if record.Token == "" {
		t.Fatalf("expected token to be set")
	}
	if record.IsVerified {
		t.Fatalf("fresh record must not be verified")
	}
	if !record.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", record.ExpiresAt)
	}
}

func TestSendVerification_RejectsUnknownUserType(t *testing.T) {
	db := newTestDB(t)
	h := NewVerificationHandler(db, newTestAsynqClient(), newTestLogger())

	payload := map[string]any{"email": "minsu@example.com", "user_type": "admin"}
	c, w := newJSONContext(t, http.MethodPost, "/v1/email/send-verification", payload)
	h.SendVerification(c)

	requireStatus(t, w, http.StatusUnprocessableEntity)
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	db := newTestDB(t)
	h := NewVerificationHandler(db, newTestAsynqClient(), newTestLogger())

	c, w := newJSONContext(t, http.MethodGet, "/v1/verify-email?token=missing", nil)
	h.VerifyEmail(c)

	requireStatus(t, w, http.StatusNotFound)
}

func TestVerifyEmail_ExpiredToken(t *testing.T) {
	db := newTestDB(t)
	h := NewVerificationHandler(db, newTestAsynqClient(), newTestLogger())

	record := database.EmailVerification{
		Email:     "minsu@example.com",
		Token:     "expired-token",
		UserType:  database.UserTypeUser,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed verification: %v", err)
	}

	c, w := newJSONContext(t, http.MethodGet, "/v1/verify-email?token=expired-token", nil)
	h.VerifyEmail(c)

	requireStatus(t, w, http.StatusBadRequest)
}

func TestVerifyEmail_MarksVerifiedOnce(t *testing.T) {
	db := newTestDB(t)
	h := NewVerificationHandler(db, newTestAsynqClient(), newTestLogger())

	record := database.EmailVerification{
		Email:     "minsu@example.com",
		Token:     "valid-token",
		UserType:  database.UserTypeUser,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed verification: %v", err)
	}

	c, w := newJSONContext(t, http.MethodGet, "/v1/verify-email?token=valid-token", nil)
	h.VerifyEmail(c)
	requireStatus(t, w, http.StatusOK)

	var updated database.EmailVerification
	if err := db.Where("token = ?", "valid-token").First(&updated).Error; err != nil {
		t.Fatalf("load verification: %v", err)
	}
	if !updated.IsVerified {
		t.Fatalf("expected record to be verified")
	}

	c, w = newJSONContext(t, http.MethodGet, "/v1/verify-email?token=valid-token", nil)
	h.VerifyEmail(c)
	requireStatus(t, w, http.StatusBadRequest)
}
