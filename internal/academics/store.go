package academics

import (
	"context"

	"coursehub.org/internal/auth"
)

// Repo is the relational access used by Service. Implementations map missing
// rows to ErrNotFound, unique violations to ErrConflict and foreign key
// violations to ErrReferenceNotFound or ErrHasDependents.
//
// A Repo handed out by Store.InTx performs locking reads in its Get methods,
// so a row read inside the transaction cannot be deleted before commit.
type Repo interface {
	CreateCourse(ctx context.Context, c *Course) error
	GetCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context, f CourseFilter) ([]Course, error)
	UpdateCourse(ctx context.Context, c *Course) error
	DeleteCourse(ctx context.Context, id string) error
	CountAssessments(ctx context.Context, courseID string) (int, error)

	CreateAssessment(ctx context.Context, a *Assessment) error
	GetAssessment(ctx context.Context, id string) (*Assessment, error)
	ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error)
	UpdateAssessment(ctx context.Context, a *Assessment) error
	DeleteAssessment(ctx context.Context, id string) error
	CountResults(ctx context.Context, assessmentID string) (int, error)
	MaxResultScore(ctx context.Context, assessmentID string) (float64, bool, error)

	CreateResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, id string) (*Result, error)
	ListResults(ctx context.Context, f ResultFilter) ([]Result, error)
	UpdateResult(ctx context.Context, r *Result) error
	DeleteResult(ctx context.Context, id string) error

	GetUser(ctx context.Context, id string) (*auth.User, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
	UpdateUser(ctx context.Context, u *auth.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUserDependents(ctx context.Context, userID string) (int, error)
}

// Store is a Repo that can also run a function inside one transaction.
// The function's error rolls the transaction back.
type Store interface {
	Repo
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repo) error) error
}
