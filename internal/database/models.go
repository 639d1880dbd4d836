package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 性别枚举值。
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// 学历要求枚举值。
const (
	EducationNone     = "none"
	EducationHigh     = "high"
	EducationCollege2 = "college_2"
	EducationCollege4 = "college_4"
	EducationGraduate = "graduate"
)

// 薪资支付方式枚举值。
const (
	PaymentHourly  = "hourly"
	PaymentDaily   = "daily"
	PaymentWeekly  = "weekly"
	PaymentMonthly = "monthly"
	PaymentYearly  = "yearly"
)

// 工作期限枚举值。
const (
	DurationMore3Months = "more_3_months"
	DurationMore6Months = "more_6_months"
	DurationMore1Year   = "more_1_year"
	DurationMore3Years  = "more_3_years"
	DurationNegotiable  = "negotiable"
)

// 投递状态枚举值，任意值都可以被企业方覆盖写入（无状态机约束）。
const (
	ApplicationApplied  = "applied"
	ApplicationPassed   = "passed"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// 邮箱验证记录所属的账号类型。
const (
	UserTypeUser    = "user"
	UserTypeCompany = "company"
)

// User 表示求职者账号。
type User struct {
	gorm.Model
	Name           string `gorm:"size:50;not null"`
	Email          string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash   string `gorm:"size:255;not null"`
	UserImage      string `gorm:"size:512"`
	PhoneNumber    string `gorm:"size:50"`
	Birthday       string `gorm:"size:50"` // YYYY-MM-DD
	Gender         string `gorm:"size:16"`
	SignupPurpose  string `gorm:"type:text"`
	ReferralSource string `gorm:"type:text"`
	IsActive       bool   `gorm:"not null;default:false"`

	Resumes       []Resume         `gorm:"constraint:OnDelete:CASCADE"`
	Applications  []JobApplication `gorm:"constraint:OnDelete:CASCADE"`
	Favorites     []Favorite       `gorm:"constraint:OnDelete:CASCADE"`
	UserInterests []UserInterest   `gorm:"constraint:OnDelete:CASCADE"`
}

// CompanyInfo 表示企业主体信息。
type CompanyInfo struct {
	gorm.Model
	CompanyName       string    `gorm:"size:50;not null"`
	BusinessRegNumber string    `gorm:"size:50;uniqueIndex;not null"`
	OpeningDate       time.Time `gorm:"type:date;not null"`
	CompanyIntro      string    `gorm:"type:text;not null"`
	CEOName           string    `gorm:"size:50;not null"`
	Address           string    `gorm:"size:100"`
	CompanyImage      string    `gorm:"size:512"`

	CompanyUsers []CompanyUser `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
	JobPostings  []JobPosting  `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
}

// CompanyUser 表示企业账号（招聘负责人登录用）。
type CompanyUser struct {
	gorm.Model
	Email        string `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	CompanyID    uint   `gorm:"index;not null"`
	ManagerName  string `gorm:"size:50;not null"`
	ManagerPhone string `gorm:"size:20;not null"`
	ManagerEmail string `gorm:"size:100"`
	IsActive     bool   `gorm:"not null;default:false"`

	Company     CompanyInfo  `gorm:"constraint:OnDelete:CASCADE"`
	JobPostings []JobPosting `gorm:"foreignKey:AuthorID"`
}

// JobPosting 表示招聘岗位。作者必须属于 CompanyID 指向的企业。
type JobPosting struct {
	gorm.Model
	Title     string `gorm:"size:50;not null"`
	AuthorID  uint   `gorm:"index;not null"`
	CompanyID uint   `gorm:"index;not null"`

	RecruitPeriodStart *time.Time `gorm:"type:date"`
	RecruitPeriodEnd   *time.Time `gorm:"type:date"`
	IsAlwaysRecruiting bool       `gorm:"not null;default:false"`

	Education           string `gorm:"size:32;not null"`
	RecruitNumber       int    `gorm:"not null"` // 0 表示名额未定/随到随招
	Benefits            string `gorm:"type:text"`
	PreferredConditions string `gorm:"type:text"`
	OtherConditions     string `gorm:"type:text"`

	WorkAddress    string     `gorm:"size:255;not null"`
	WorkPlaceName  string     `gorm:"size:64;not null"`
	PaymentMethod  string     `gorm:"size:32;not null"`
	JobCategory    string     `gorm:"size:64;index;not null"`
	WorkDuration   string     `gorm:"size:32"`
	Career         string     `gorm:"size:50;not null"`
	EmploymentType string     `gorm:"size:50;not null"`
	Salary         int        `gorm:"not null"`
	DeadlineAt     *time.Time `gorm:"type:date"`
	WorkDays       string     `gorm:"size:255"`
	Description    string     `gorm:"type:text;not null"`
	PostingImage   string     `gorm:"size:512"`
	Latitude       *float64
	Longitude      *float64

	Author       CompanyUser      `gorm:"foreignKey:AuthorID"`
	Company      CompanyInfo      `gorm:"foreignKey:CompanyID"`
	Favorites    []Favorite       `gorm:"constraint:OnDelete:CASCADE"`
	Applications []JobApplication `gorm:"constraint:OnDelete:CASCADE"`
}

// Resume 表示求职者的简历主体。
type Resume struct {
	gorm.Model
	UserID       uint   `gorm:"index;not null"`
	ResumeImage  string `gorm:"size:512"`
	DesiredArea  string `gorm:"size:255"`
	Introduction string `gorm:"type:text"`

	User        User               `gorm:"constraint:OnDelete:CASCADE"`
	Educations  []ResumeEducation  `gorm:"constraint:OnDelete:CASCADE"`
	Experiences []ResumeExperience `gorm:"constraint:OnDelete:CASCADE"`
}

// ResumeEducation 表示简历中的一条学历记录。
type ResumeEducation struct {
	gorm.Model
	ResumeID        uint       `gorm:"index;not null"`
	EducationType   string     `gorm:"size:32"`
	SchoolName      string     `gorm:"size:255"`
	EducationStatus string     `gorm:"size:32"`
	StartDate       *time.Time `gorm:"type:date"`
	EndDate         *time.Time `gorm:"type:date"`
}

// ResumeExperience 表示简历中的一条工作经历。
type ResumeExperience struct {
	gorm.Model
	ResumeID    uint       `gorm:"index;not null"`
	CompanyName string     `gorm:"size:100;not null"`
	Position    string     `gorm:"size:100"`
	StartDate   *time.Time `gorm:"type:date"`
	EndDate     *time.Time `gorm:"type:date"`
	Description string     `gorm:"type:text"`
}

// JobApplication 表示一次投递。ResumesData 保存投递时刻的简历快照，
// 之后简历被修改或删除都不影响已投递内容。
type JobApplication struct {
	gorm.Model
	UserID       uint           `gorm:"not null;uniqueIndex:uq_user_jobposting"`
	JobPostingID uint           `gorm:"not null;uniqueIndex:uq_user_jobposting"`
	ResumeID     uint           `gorm:"index"`
	Status       string         `gorm:"size:32;not null;default:applied"`
	ResumesData  datatypes.JSON `gorm:"type:jsonb"`

	User       User       `gorm:"constraint:OnDelete:CASCADE"`
	JobPosting JobPosting `gorm:"constraint:OnDelete:CASCADE"`
}

// Favorite 表示求职者收藏的岗位。
type Favorite struct {
	gorm.Model
	UserID       uint `gorm:"not null;uniqueIndex:uq_user_favorite"`
	JobPostingID uint `gorm:"not null;uniqueIndex:uq_user_favorite"`

	User       User       `gorm:"constraint:OnDelete:CASCADE"`
	JobPosting JobPosting `gorm:"constraint:OnDelete:CASCADE"`
}

// Interest 表示兴趣领域字典项，IsCustom 表示由用户注册时自定义。
type Interest struct {
	gorm.Model
	Code     string `gorm:"size:50;uniqueIndex;not null"`
	Name     string `gorm:"size:100;not null"`
	IsCustom bool   `gorm:"not null;default:false"`

	UserInterests []UserInterest `gorm:"constraint:OnDelete:CASCADE"`
}

// UserInterest 是 User 与 Interest 的关联表。
type UserInterest struct {
	gorm.Model
	UserID     uint `gorm:"not null;uniqueIndex:uq_user_interest"`
	InterestID uint `gorm:"not null;uniqueIndex:uq_user_interest"`

	Interest Interest `gorm:"constraint:OnDelete:CASCADE"`
}

// EmailVerification 记录一次邮箱验证请求。注册前必须存在已验证且未过期的记录。
type EmailVerification struct {
	gorm.Model
	Email      string    `gorm:"size:255;index;not null"`
	Token      string    `gorm:"size:255;uniqueIndex;not null"`
	UserType   string    `gorm:"size:16;not null"`
	IsVerified bool      `gorm:"not null;default:false"`
	ExpiresAt  time.Time `gorm:"not null"`
}

// AllModels 返回 AutoMigrate 所需的全部模型列表。
func AllModels() []any {
	return []any{
		&User{},
		&CompanyInfo{},
		&CompanyUser{},
		&JobPosting{},
		&Resume{},
		&ResumeEducation{},
		&ResumeExperience{},
		&JobApplication{},
		&Favorite{},
		&Interest{},
		&UserInterest{},
		&EmailVerification{},
	}
}
