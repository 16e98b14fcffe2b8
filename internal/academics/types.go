package academics

import (
	"strings"
	"time"
)

// Course is a unit of teaching, optionally owned by an instructor.
type Course struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	InstructorID *string   `json:"instructor_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Assessment belongs to exactly one course.
type Assessment struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	MaxScore    float64    `json:"max_score"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Result is a student's score on an assessment.
type Result struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	StudentID    string    `json:"student_id"`
	Score        float64   `json:"score"`
	Feedback     string    `json:"feedback"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CourseInput carries the writable fields of a course (create and full update).
type CourseInput struct {
	Title        string  `json:"title" validate:"notblank,max=200"`
	Description  string  `json:"description" validate:"max=4000"`
	InstructorID *string `json:"instructor_id"`
}

// AssessmentInput carries the writable fields of an assessment.
type AssessmentInput struct {
	CourseID    string     `json:"course_id" validate:"notblank"`
	Title       string     `json:"title" validate:"notblank,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	MaxScore    float64    `json:"max_score" validate:"gt=0"`
	DueAt       *time.Time `json:"due_at"`
}

// ResultInput carries the writable fields of a result.
type ResultInput struct {
	AssessmentID string  `json:"assessment_id" validate:"notblank"`
	StudentID    string  `json:"student_id" validate:"notblank"`
	Score        float64 `json:"score" validate:"gte=0"`
	Feedback     string  `json:"feedback" validate:"max=4000"`
}

// UserInput is the admin-editable part of a user record.
type UserInput struct {
	Name  string `json:"name" validate:"notblank,max=200"`
	Email string `json:"email" validate:"notblank,email,max=320"`
	Role  string `json:"role" validate:"notblank"`
}

// CourseFilter narrows ListCourses; zero value lists everything.
type CourseFilter struct {
	InstructorID string
}

// AssessmentFilter narrows ListAssessments to one course when CourseID is set.
type AssessmentFilter struct {
	CourseID string
}

// ResultFilter narrows ListResults; empty fields do not filter.
type ResultFilter struct {
	AssessmentID string
	StudentID    string
}

func optionalID(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
