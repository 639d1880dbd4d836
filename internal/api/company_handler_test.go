package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"jobboard/internal/database"
)

type stubBRNValidator struct {
	valid bool
	err   error
}

func (s stubBRNValidator) ValidateBusiness(context.Context, string, time.Time, string) (bool, error) {
	return s.valid, s.err
}

func companyRegisterPayload(email, regNumber string) map[string]any {
	return map[string]any{
		"email":         email,
		"password":      "secret-password",
		"manager_name":  "박담당",
		"manager_phone": "010-1234-5678",
		"company": map[string]any{
			"company_name":        "테스트상사",
			"business_reg_number": regNumber,
			"opening_date":        "2015-03-02",
			"company_intro":       "소개",
			"ceo_name":            "이대표",
		},
	}
}

func TestRegisterCompany_InvalidBusinessNumber(t *testing.T) {
	db := newTestDB(t)
	h := NewCompanyHandler(db, newTestAuthService(t), nil, stubBRNValidator{valid: false}, newTestLogger())

	seedVerifiedEmail(t, db, "biz@example.com", database.UserTypeCompany)

	c, w := newJSONContext(t, http.MethodPost, "/v1/company/register", companyRegisterPayload("biz@example.com", "123-45-67890"))
	h.Register(c)

	requireStatus(t, w, http.StatusBadRequest)
}

func TestRegisterCompany_RegistryUnavailable(t *testing.T) {
	db := newTestDB(t)
	h := NewCompanyHandler(db, newTestAuthService(t), nil, stubBRNValidator{err: errors.New("timeout")}, newTestLogger())

	seedVerifiedEmail(t, db, "biz@example.com", database.UserTypeCompany)

	c, w := newJSONContext(t, http.MethodPost, "/v1/company/register", companyRegisterPayload("biz@example.com", "123-45-67890"))
	h.Register(c)

	requireStatus(t, w, http.StatusBadGateway)
}

func TestRegisterCompany_DuplicateBusinessNumber(t *testing.T) {
	db := newTestDB(t)
	h := NewCompanyHandler(db, newTestAuthService(t), nil, stubBRNValidator{valid: true}, newTestLogger())

	seedVerifiedEmail(t, db, "biz@example.com", database.UserTypeCompany)
	existing := database.CompanyInfo{
		CompanyName:       "선점상사",
		BusinessRegNumber: "123-45-67890",
		OpeningDate:       time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC),
		CompanyIntro:      "소개",
		CEOName:           "최대표",
	}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("seed company: %v", err)
	}

	c, w := newJSONContext(t, http.MethodPost, "/v1/company/register", companyRegisterPayload("biz@example.com", "123-45-67890"))
	h.Register(c)

	requireStatus(t, w, http.StatusConflict)
}

func TestRegisterCompany_Success(t *testing.T) {
	db := newTestDB(t)
	h := NewCompanyHandler(db, newTestAuthService(t), nil, stubBRNValidator{valid: true}, newTestLogger())

	seedVerifiedEmail(t, db, "biz@example.com", database.UserTypeCompany)

	c, w := newJSONContext(t, http.MethodPost, "/v1/company/register", companyRegisterPayload("biz@example.com", "123-45-67890"))
	h.Register(c)

	requireStatus(t, w, http.StatusCreated)

	var companyUser database.CompanyUser
	if err := db.Preload("Company").Where("email = ?", "biz@example.com").First(&companyUser).Error; err != nil {
		t.Fatalf("load company user: %v", err)
	}
	if !companyUser.IsActive {
		t.Fatalf("expected registered company account to be active")
	}
	if companyUser.Company.BusinessRegNumber != "123-45-67890" {
		t.Fatalf("unexpected business reg number %q", companyUser.Company.BusinessRegNumber)
	}
}

func TestRegisterCompany_RequiresVerifiedEmail(t *testing.T) {
	db := newTestDB(t)
	h := NewCompanyHandler(db, newTestAuthService(t), nil, stubBRNValidator{valid: true}, newTestLogger())

	c, w := newJSONContext(t, http.MethodPost, "/v1/company/register", companyRegisterPayload("biz@example.com", "123-45-67890"))
	h.Register(c)

	requireStatus(t, w, http.StatusBadRequest)
}
