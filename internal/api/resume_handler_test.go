package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/database"
)

func seedUser(t *testing.T, db *gorm.DB, email string) database.User {
	t.Helper()
	user := database.User{Name: "김민수", Email: email, PasswordHash: "x", Birthday: "1999-04-01", IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedResume(t *testing.T, db *gorm.DB, userID uint, createdAt time.Time) database.Resume {
	t.Helper()
	date := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	resume := database.Resume{
		Model:        gorm.Model{CreatedAt: createdAt},
		UserID:       userID,
		DesiredArea:  "서울",
		Introduction: "성실합니다",
		Educations: []database.ResumeEducation{
			{EducationType: "high", SchoolName: "서울고", EducationStatus: "graduated", StartDate: &date},
			{EducationType: "college_4", SchoolName: "한국대", EducationStatus: "enrolled"},
		},
		Experiences: []database.ResumeExperience{
			{CompanyName: "카페봄", Position: "바리스타"},
		},
	}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	return resume
}

func TestGetLatestResume_ReturnsNewest(t *testing.T) {
	db := newTestDB(t)
	h := NewResumeHandler(db, &ImageUploader{}, newTestLogger())
	user := seedUser(t, db, "minsu@example.com")

	seedResume(t, db, user.ID, time.Now().Add(-time.Hour))
	latest := seedResume(t, db, user.ID, time.Now())

	c, w := newJSONContext(t, http.MethodGet, "/v1/resumes/latest", nil)
	c.Set("userID", user.ID)
	h.GetLatestResume(c)

	requireStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if uint(body["id"].(float64)) != latest.ID {
		t.Fatalf("expected latest resume %d got %v", latest.ID, body["id"])
	}
}

func TestGetLatestResume_NoneExists(t *testing.T) {
	db := newTestDB(t)
	h := NewResumeHandler(db, &ImageUploader{}, newTestLogger())
	user := seedUser(t, db, "minsu@example.com")

	c, w := newJSONContext(t, http.MethodGet, "/v1/resumes/latest", nil)
	c.Set("userID", user.ID)
	h.GetLatestResume(c)

	requireStatus(t, w, http.StatusNotFound)
}

func TestGetResume_OwnerScoped(t *testing.T) {
	db := newTestDB(t)
	h := NewResumeHandler(db, &ImageUploader{}, newTestLogger())
	owner := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")
	resume := seedResume(t, db, owner.ID, time.Now())

	c, w := newJSONContext(t, http.MethodGet, "/v1/resumes/1", nil)
	c.Set("userID", other.ID)
	c.Params = gin.Params{{Key: "id", Value: idParam(resume.ID)}}
	h.GetResume(c)

	requireStatus(t, w, http.StatusNotFound)
}

func TestUpdateResume_ReplacesEducationsKeepsExperiences(t *testing.T) {
	db := newTestDB(t)
	h := NewResumeHandler(db, &ImageUploader{}, newTestLogger())
	user := seedUser(t, db, "minsu@example.com")
	resume := seedResume(t, db, user.ID, time.Now())

	// 空列表也算出现：学历整体清空，未提交的经历保持不变。
	payload := map[string]any{"educations": []any{}}
	c, w := newJSONContext(t, http.MethodPatch, "/v1/resumes/1", payload)
	c.Set("userID", user.ID)
	c.Params = gin.Params{{Key: "id", Value: idParam(resume.ID)}}
	h.UpdateResume(c)

	requireStatus(t, w, http.StatusOK)

	var educations int64
	if err := db.Model(&database.ResumeEducation{}).Where("resume_id = ?", resume.ID).Count(&educations).Error; err != nil {
		t.Fatalf("count educations: %v", err)
	}
	if educations != 0 {
		t.Fatalf("expected educations to be cleared, got %d", educations)
	}

	var experiences int64
	if err := db.Model(&database.ResumeExperience{}).Where("resume_id = ?", resume.ID).Count(&experiences).Error; err != nil {
		t.Fatalf("count experiences: %v", err)
	}
	if experiences != 1 {
		t.Fatalf("expected experiences untouched, got %d", experiences)
	}
}

func TestUpdateResume_ReplacesExperienceList(t *testing.T) {
	db := newTestDB(t)
	h := NewResumeHandler(db, &ImageUploader{}, newTestLogger())
	user := seedUser(t, db, "minsu@example.com")
	resume := seedResume(t, db, user.ID, time.Now())

	payload := map[string]any{
		"experiences": []map[string]any{
			{"company_name": "편의점나무", "position": "캐셔", "start_date": "2023-01-02"},
			{"company_name": "물류센터", "position": "상하차"},
		},
	}
	c, w := newJSONContext(t, http.MethodPatch, "/v1/resumes/1", payload)
	c.Set("userID", user.ID)
	c.Params = gin.Params{{Key: "id", Value: idParam(resume.ID)}}
	h.UpdateResume(c)

	requireStatus(t, w, http.StatusOK)

	var experiences []database.ResumeExperience
	if err := db.Where("resume_id = ?", resume.ID).Order("id").Find(&experiences).Error; err != nil {
		t.Fatalf("load experiences: %v", err)
	}
	if len(experiences) != 2 {
		t.Fatalf("expected 2 experiences got %d", len(experiences))
	}
	if experiences[0].CompanyName != "편의점나무" {
		t.Fatalf("unexpected first experience %q", experiences[0].CompanyName)
	}
}

func TestDeleteResume_RemovesChildren(t *testing.T) {
	db := newTestDB(t)
	h := NewResumeHandler(db, &ImageUploader{}, newTestLogger())
	user := seedUser(t, db, "minsu@example.com")
	resume := seedResume(t, db, user.ID, time.Now())

	c, w := newJSONContext(t, http.MethodDelete, "/v1/resumes/1", nil)
	c.Set("userID", user.ID)
	c.Params = gin.Params{{Key: "id", Value: idParam(resume.ID)}}
	h.DeleteResume(c)
	c.Writer.WriteHeaderNow()

	requireStatus(t, w, http.StatusNoContent)

	var count int64
	if err := db.Unscoped().Model(&database.ResumeEducation{}).Where("resume_id = ?", resume.ID).Count(&count).Error; err != nil {
		t.Fatalf("count educations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected educations removed, got %d", count)
	}
	if err := db.Unscoped().Model(&database.Resume{}).Where("id = ?", resume.ID).Count(&count).Error; err != nil {
		t.Fatalf("count resumes: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected resume removed, got %d", count)
	}
}
