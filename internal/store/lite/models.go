package lite

import (
	"time"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/auth"
)

// Timestamps are written by the services, so gorm's automatic tracking is off.

type userRow struct {
	ID           string    `gorm:"primaryKey;size:26"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"not null;uniqueIndex"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

type courseRow struct {
	ID           string    `gorm:"primaryKey;size:26"`
	Title        string    `gorm:"not null"`
	Description  string    `gorm:"not null;default:''"`
	InstructorID *string   `gorm:"size:26;index"`
	Instructor   *userRow  `gorm:"foreignKey:InstructorID;constraint:OnDelete:RESTRICT"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (courseRow) TableName() string { return "courses" }

type assessmentRow struct {
	ID          string     `gorm:"primaryKey;size:26"`
	CourseID    string     `gorm:"size:26;not null;index"`
	Course      *courseRow `gorm:"foreignKey:CourseID;constraint:OnDelete:RESTRICT"`
	Title       string     `gorm:"not null"`
	Description string     `gorm:"not null;default:''"`
	MaxScore    float64    `gorm:"not null"`
	DueAt       *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (assessmentRow) TableName() string { return "assessments" }

type resultRow struct {
	ID           string         `gorm:"primaryKey;size:26"`
	AssessmentID string         `gorm:"size:26;not null;index"`
	Assessment   *assessmentRow `gorm:"foreignKey:AssessmentID;constraint:OnDelete:RESTRICT"`
	StudentID    string         `gorm:"size:26;not null;index"`
	Student      *userRow       `gorm:"foreignKey:StudentID;constraint:OnDelete:RESTRICT"`
	Score        float64        `gorm:"not null"`
	Feedback     string         `gorm:"not null;default:''"`
	CreatedAt    time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime:false"`
}

func (resultRow) TableName() string { return "results" }

func fromUser(u *auth.User) userRow {
	return userRow{
		ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash,
		Role: string(u.Role), CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (r userRow) toUser() auth.User {
	return auth.User{
		ID: r.ID, Name: r.Name, Email: r.Email, PasswordHash: r.PasswordHash,
		Role: auth.Role(r.Role), CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func fromCourse(c *academics.Course) courseRow {
	return courseRow{
		ID: c.ID, Title: c.Title, Description: c.Description, InstructorID: c.InstructorID,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r courseRow) toCourse() academics.Course {
	return academics.Course{
		ID: r.ID, Title: r.Title, Description: r.Description, InstructorID: r.InstructorID,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func fromAssessment(a *academics.Assessment) assessmentRow {
	return assessmentRow{
		ID: a.ID, CourseID: a.CourseID, Title: a.Title, Description: a.Description,
		MaxScore: a.MaxScore, DueAt: a.DueAt, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (r assessmentRow) toAssessment() academics.Assessment {
	a := academics.Assessment{
		ID: r.ID, CourseID: r.CourseID, Title: r.Title, Description: r.Description,
		MaxScore: r.MaxScore, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.DueAt != nil {
		due := r.DueAt.UTC()
		a.DueAt = &due
	}
	return a
}

func fromResult(res *academics.Result) resultRow {
	return resultRow{
		ID: res.ID, AssessmentID: res.AssessmentID, StudentID: res.StudentID, Score: res.Score,
		Feedback: res.Feedback, CreatedAt: res.CreatedAt, UpdatedAt: res.UpdatedAt,
	}
}

func (r resultRow) toResult() academics.Result {
	return academics.Result{
		ID: r.ID, AssessmentID: r.AssessmentID, StudentID: r.StudentID, Score: r.Score,
		Feedback: r.Feedback, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}
