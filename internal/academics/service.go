// Package academics manages courses, assessments, results and user records.
// Every mutation runs in one store transaction: referenced rows are read with a
// lock before the write, so an existence check cannot be invalidated by a
// concurrent delete.
package academics

import (
	"context"
	"errors"
	"strings"
	"time"

	"coursehub.org/internal/audit"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/ids"
	"coursehub.org/internal/validation"
)

// Service implements the resource operations behind the REST controllers.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService returns a Service backed by store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("academics: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) stamp() time.Time { return s.now().UTC() }

// check runs the struct tag rules of an input.
func check(in any) error {
	v := validation.Violations{}
	if err := validation.Check(in, v); err != nil {
		return err
	}
	return v.Err()
}

// --- courses ---

func validateCourse(in CourseInput) error {
	in.Title = strings.TrimSpace(in.Title)
	return check(in)
}

func checkInstructor(ctx context.Context, tx Repo, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := tx.GetUser(ctx, *id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return missingRef("instructor", *id)
		}
		return err
	}
	return nil
}

// CreateCourse stores a new course after checking its optional instructor.
func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (Course, error) {
	if err := validateCourse(in); err != nil {
		return Course{}, err
	}
	now := s.stamp()
	c := Course{
		ID:           ids.New(),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		InstructorID: optionalID(in.InstructorID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if err := checkInstructor(ctx, tx, c.InstructorID); err != nil {
			return err
		}
		return tx.CreateCourse(ctx, &c)
	})
	if err != nil {
		return Course{}, err
	}
	audit.Record(ctx, "course.created", map[string]any{"course_id": c.ID})
	return c, nil
}

// GetCourse returns ErrNotFound for an unknown id.
func (s *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	return *c, nil
}

// ListCourses returns courses matching f.
func (s *Service) ListCourses(ctx context.Context, f CourseFilter) ([]Course, error) {
	return s.store.ListCourses(ctx, f)
}

// UpdateCourse replaces the writable fields of course id.
func (s *Service) UpdateCourse(ctx context.Context, id string, in CourseInput) (Course, error) {
	if err := validateCourse(in); err != nil {
		return Course{}, err
	}
	var out Course
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		c, err := tx.GetCourse(ctx, id)
		if err != nil {
			return err
		}
		c.Title = strings.TrimSpace(in.Title)
		c.Description = in.Description
		c.InstructorID = optionalID(in.InstructorID)
		c.UpdatedAt = s.stamp()
		if err := checkInstructor(ctx, tx, c.InstructorID); err != nil {
			return err
		}
		if err := tx.UpdateCourse(ctx, c); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return Course{}, err
	}
	audit.Record(ctx, "course.updated", map[string]any{"course_id": id})
	return out, nil
}

// DeleteCourse refuses with ErrHasDependents while assessments reference the course.
func (s *Service) DeleteCourse(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if _, err := tx.GetCourse(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountAssessments(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return dependents("course", n, "assessments")
		}
		return tx.DeleteCourse(ctx, id)
	})
	if err != nil {
		return err
	}
	audit.Record(ctx, "course.deleted", map[string]any{"course_id": id})
	return nil
}

// --- assessments ---

func validateAssessment(in AssessmentInput) error {
	in.Title = strings.TrimSpace(in.Title)
	return check(in)
}

func checkCourse(ctx context.Context, tx Repo, id string) error {
	if _, err := tx.GetCourse(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return missingRef("course", id)
		}
		return err
	}
	return nil
}

// CreateAssessment stores an assessment under an existing course.
func (s *Service) CreateAssessment(ctx context.Context, in AssessmentInput) (Assessment, error) {
	if err := validateAssessment(in); err != nil {
		return Assessment{}, err
	}
	now := s.stamp()
	a := Assessment{
		ID:          ids.New(),
		CourseID:    strings.TrimSpace(in.CourseID),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		MaxScore:    in.MaxScore,
		DueAt:       utcPtr(in.DueAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if err := checkCourse(ctx, tx, a.CourseID); err != nil {
			return err
		}
		return tx.CreateAssessment(ctx, &a)
	})
	if err != nil {
		return Assessment{}, err
	}
	audit.Record(ctx, "assessment.created", map[string]any{"assessment_id": a.ID, "course_id": a.CourseID})
	return a, nil
}

// GetAssessment returns ErrNotFound for an unknown id.
func (s *Service) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	return *a, nil
}

// ListAssessments returns assessments matching f.
func (s *Service) ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error) {
	return s.store.ListAssessments(ctx, f)
}

// UpdateAssessment replaces the writable fields. Lowering max_score below an
// already recorded score is rejected.
func (s *Service) UpdateAssessment(ctx context.Context, id string, in AssessmentInput) (Assessment, error) {
	if err := validateAssessment(in); err != nil {
		return Assessment{}, err
	}
	var out Assessment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		a, err := tx.GetAssessment(ctx, id)
		if err != nil {
			return err
		}
		courseID := strings.TrimSpace(in.CourseID)
		if err := checkCourse(ctx, tx, courseID); err != nil {
			return err
		}
		top, ok, err := tx.MaxResultScore(ctx, id)
		if err != nil {
			return err
		}
		if ok && in.MaxScore < top {
			return validation.Violations{"max_score": "below_recorded_score"}.Err()
		}
		a.CourseID = courseID
		a.Title = strings.TrimSpace(in.Title)
		a.Description = in.Description
		a.MaxScore = in.MaxScore
		a.DueAt = utcPtr(in.DueAt)
		a.UpdatedAt = s.stamp()
		if err := tx.UpdateAssessment(ctx, a); err != nil {
			return err
		}
		out = *a
		return nil
	})
	if err != nil {
		return Assessment{}, err
	}
	audit.Record(ctx, "assessment.updated", map[string]any{"assessment_id": id})
	return out, nil
}

// DeleteAssessment refuses while results reference the assessment.
func (s *Service) DeleteAssessment(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if _, err := tx.GetAssessment(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountResults(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return dependents("assessment", n, "results")
		}
		return tx.DeleteAssessment(ctx, id)
	})
	if err != nil {
		return err
	}
	audit.Record(ctx, "assessment.deleted", map[string]any{"assessment_id": id})
	return nil
}

// --- results ---

func validateResult(in ResultInput) error {
	return check(in)
}

// checkResultRefs locks the assessment and the student and checks the score
// against the assessment's maximum.
func checkResultRefs(ctx context.Context, tx Repo, r *Result) error {
	a, err := tx.GetAssessment(ctx, r.AssessmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return missingRef("assessment", r.AssessmentID)
		}
		return err
	}
	if _, err := tx.GetUser(ctx, r.StudentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return missingRef("student", r.StudentID)
		}
		return err
	}
	v := validation.Violations{}
	validation.Range("score", r.Score, 0, a.MaxScore, v)
	return v.Err()
}

// CreateResult records a score for an existing assessment and student.
func (s *Service) CreateResult(ctx context.Context, in ResultInput) (Result, error) {
	if err := validateResult(in); err != nil {
		return Result{}, err
	}
	now := s.stamp()
	r := Result{
		ID:           ids.New(),
		AssessmentID: strings.TrimSpace(in.AssessmentID),
		StudentID:    strings.TrimSpace(in.StudentID),
		Score:        in.Score,
		Feedback:     in.Feedback,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if err := checkResultRefs(ctx, tx, &r); err != nil {
			return err
		}
		return tx.CreateResult(ctx, &r)
	})
	if err != nil {
		return Result{}, err
	}
	audit.Record(ctx, "result.created", map[string]any{"result_id": r.ID, "assessment_id": r.AssessmentID})
	return r, nil
}

// GetResult returns ErrNotFound for an unknown id.
func (s *Service) GetResult(ctx context.Context, id string) (Result, error) {
	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return *r, nil
}

// ListResults returns results matching f.
func (s *Service) ListResults(ctx context.Context, f ResultFilter) ([]Result, error) {
	return s.store.ListResults(ctx, f)
}

// UpdateResult replaces the writable fields of a result.
func (s *Service) UpdateResult(ctx context.Context, id string, in ResultInput) (Result, error) {
	if err := validateResult(in); err != nil {
		return Result{}, err
	}
	var out Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		r, err := tx.GetResult(ctx, id)
		if err != nil {
			return err
		}
		r.AssessmentID = strings.TrimSpace(in.AssessmentID)
		r.StudentID = strings.TrimSpace(in.StudentID)
		r.Score = in.Score
		r.Feedback = in.Feedback
		r.UpdatedAt = s.stamp()
		if err := checkResultRefs(ctx, tx, r); err != nil {
			return err
		}
		if err := tx.UpdateResult(ctx, r); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	audit.Record(ctx, "result.updated", map[string]any{"result_id": id})
	return out, nil
}

// DeleteResult removes a result; nothing depends on it.
func (s *Service) DeleteResult(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if _, err := tx.GetResult(ctx, id); err != nil {
			return err
		}
		return tx.DeleteResult(ctx, id)
	})
	if err != nil {
		return err
	}
	audit.Record(ctx, "result.deleted", map[string]any{"result_id": id})
	return nil
}

// --- users ---

// ListUsers returns every user without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]auth.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// GetUser returns one user without its password hash.
func (s *Service) GetUser(ctx context.Context, id string) (auth.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return auth.User{}, err
	}
	out := *u
	out.PasswordHash = ""
	return out, nil
}

// UpdateUser changes name, email and role. The email stays unique
// case-insensitively; a clash is reported as auth.ErrEmailTaken.
func (s *Service) UpdateUser(ctx context.Context, id string, in UserInput) (auth.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	v := validation.Violations{}
	if err := validation.Check(in, v); err != nil {
		return auth.User{}, err
	}
	role, ok := auth.ParseRole(in.Role)
	if strings.TrimSpace(in.Role) != "" && !ok {
		v.Add("role", "unknown_role")
	}
	if err := v.Err(); err != nil {
		return auth.User{}, err
	}

	var out auth.User
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		u.Name = strings.TrimSpace(in.Name)
		u.Email = auth.NormalizeEmail(in.Email)
		u.Role = role
		u.UpdatedAt = s.stamp()
		if err := tx.UpdateUser(ctx, u); err != nil {
			if errors.Is(err, ErrConflict) && !errors.Is(err, ErrReferenceNotFound) {
				return auth.ErrEmailTaken
			}
			return err
		}
		out = *u
		return nil
	})
	if err != nil {
		return auth.User{}, err
	}
	out.PasswordHash = ""
	audit.Record(ctx, "user.updated", map[string]any{"target_user_id": id, "new_role": role.String()})
	return out, nil
}

// DeleteUser refuses while the user instructs a course or has results.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Repo) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountUserDependents(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return dependents("user", n, "courses or results")
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}
	audit.Record(ctx, "user.deleted", map[string]any{"target_user_id": id})
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

