// Package lite is an embedded SQLite implementation of the credential and
// academics stores, built on gorm. It backs local development and the
// end-to-end tests; production runs on the pg store.
package lite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/dbx"
)

// Store is the gorm/SQLite implementation of the credential and academics stores.
type Store struct {
	*repo
	db    *gorm.DB
	retry *dbx.Retrier
}

var (
	_ auth.UserStore  = (*Store)(nil)
	_ academics.Store = (*Store)(nil)
)

// Open connects to dsn with foreign keys enforced and creates the schema.
// A single connection is used, so transactions are serialized.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(dsn)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &courseRow{}, &assessmentRow{}, &resultRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	s := &Store{db: db, retry: dbx.NewRetrier(dbx.WithClassifier(IsBusy))}
	s.repo = &repo{db: db, retry: s.retry}
	return s, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=1"
	}
	return dsn + "?_foreign_keys=1"
}

// IsBusy reports SQLite lock contention, the only transient failure here.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InTx runs fn in one gorm transaction, replayed while SQLite reports a lock.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx academics.Repo) error) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, &repo{db: tx})
		})
	})
}

type repo struct {
	db    *gorm.DB
	retry *dbx.Retrier
}

func (r *repo) q(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *repo) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.retry.Do(ctx, fn)
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", auth.ErrConflict, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", academics.ErrReferenceNotFound, err)
	}
	return err
}

func mapDeleteErr(err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", academics.ErrHasDependents, err)
	}
	return err
}

// isForeignKeyViolation matches both the translated gorm error and the raw
// driver error; gorm does not translate the failure raised on delete.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func mapReadErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.ErrNotFound
	}
	return err
}

func expectOne(tx *gorm.DB, mapErr func(error) error) error {
	if tx.Error != nil {
		return mapErr(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// --- users ---

func (r *repo) CreateUser(ctx context.Context, u *auth.User) error {
	row := fromUser(u)
	return r.run(ctx, func(ctx context.Context) error {
		return mapWriteErr(r.q(ctx).Create(&row).Error)
	})
}

func (r *repo) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	var row userRow
	err := r.run(ctx, func(ctx context.Context) error {
		return mapReadErr(r.q(ctx).Where("lower(email) = lower(?)", email).First(&row).Error)
	})
	if err != nil {
		return nil, err
	}
	u := row.toUser()
	return &u, nil
}

func (r *repo) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return r.GetUser(ctx, id)
}

func (r *repo) GetUser(ctx context.Context, id string) (*auth.User, error) {
	var row userRow
	err := r.run(ctx, func(ctx context.Context) error {
		return mapReadErr(r.q(ctx).Where("id = ?", id).First(&row).Error)
	})
	if err != nil {
		return nil, err
	}
	u := row.toUser()
	return &u, nil
}

func (r *repo) ListUsers(ctx context.Context) ([]auth.User, error) {
	var rows []userRow
	err := r.run(ctx, func(ctx context.Context) error {
		return r.q(ctx).Order("id").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]auth.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toUser())
	}
	return out, nil
}

func (r *repo) UpdateUser(ctx context.Context, u *auth.User) error {
	return r.run(ctx, func(ctx context.Context) error {
		tx := r.q(ctx).Model(&userRow{}).Where("id = ?", u.ID).Updates(map[string]any{
			"name": u.Name, "email": u.Email, "role": string(u.Role), "updated_at": u.UpdatedAt,
		})
		return expectOne(tx, mapWriteErr)
	})
}

func (r *repo) DeleteUser(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		return expectOne(r.q(ctx).Where("id = ?", id).Delete(&userRow{}), mapDeleteErr)
	})
}

func (r *repo) CountUserDependents(ctx context.Context, userID string) (int, error) {
	var courses, results int64
	err := r.run(ctx, func(ctx context.Context) error {
		if err := r.q(ctx).Model(&courseRow{}).Where("instructor_id = ?", userID).Count(&courses).Error; err != nil {
			return err
		}
		return r.q(ctx).Model(&resultRow{}).Where("student_id = ?", userID).Count(&results).Error
	})
	return int(courses + results), err
}

// --- courses ---

func (r *repo) CreateCourse(ctx context.Context, c *academics.Course) error {
	row := fromCourse(c)
	return r.run(ctx, func(ctx context.Context) error {
		return mapWriteErr(r.q(ctx).Omit("Instructor").Create(&row).Error)
	})
}

func (r *repo) GetCourse(ctx context.Context, id string) (*academics.Course, error) {
	var row courseRow
	err := r.run(ctx, func(ctx context.Context) error {
		return mapReadErr(r.q(ctx).Where("id = ?", id).First(&row).Error)
	})
	if err != nil {
		return nil, err
	}
	c := row.toCourse()
	return &c, nil
}

func (r *repo) ListCourses(ctx context.Context, f academics.CourseFilter) ([]academics.Course, error) {
	var rows []courseRow
	err := r.run(ctx, func(ctx context.Context) error {
		q := r.q(ctx).Order("id")
		if id := strings.TrimSpace(f.InstructorID); id != "" {
			q = q.Where("instructor_id = ?", id)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]academics.Course, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCourse())
	}
	return out, nil
}

func (r *repo) UpdateCourse(ctx context.Context, c *academics.Course) error {
	return r.run(ctx, func(ctx context.Context) error {
		tx := r.q(ctx).Model(&courseRow{}).Where("id = ?", c.ID).Updates(map[string]any{
			"title": c.Title, "description": c.Description, "instructor_id": c.InstructorID, "updated_at": c.UpdatedAt,
		})
		return expectOne(tx, mapWriteErr)
	})
}

func (r *repo) DeleteCourse(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		return expectOne(r.q(ctx).Where("id = ?", id).Delete(&courseRow{}), mapDeleteErr)
	})
}

func (r *repo) CountAssessments(ctx context.Context, courseID string) (int, error) {
	var n int64
	err := r.run(ctx, func(ctx context.Context) error {
		return r.q(ctx).Model(&assessmentRow{}).Where("course_id = ?", courseID).Count(&n).Error
	})
	return int(n), err
}

// --- assessments ---

func (r *repo) CreateAssessment(ctx context.Context, a *academics.Assessment) error {
	row := fromAssessment(a)
	return r.run(ctx, func(ctx context.Context) error {
		return mapWriteErr(r.q(ctx).Omit("Course").Create(&row).Error)
	})
}

func (r *repo) GetAssessment(ctx context.Context, id string) (*academics.Assessment, error) {
	var row assessmentRow
	err := r.run(ctx, func(ctx context.Context) error {
		return mapReadErr(r.q(ctx).Where("id = ?", id).First(&row).Error)
	})
	if err != nil {
		return nil, err
	}
	a := row.toAssessment()
	return &a, nil
}

func (r *repo) ListAssessments(ctx context.Context, f academics.AssessmentFilter) ([]academics.Assessment, error) {
	var rows []assessmentRow
	err := r.run(ctx, func(ctx context.Context) error {
		q := r.q(ctx).Order("id")
		if id := strings.TrimSpace(f.CourseID); id != "" {
			q = q.Where("course_id = ?", id)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]academics.Assessment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAssessment())
	}
	return out, nil
}

func (r *repo) UpdateAssessment(ctx context.Context, a *academics.Assessment) error {
	return r.run(ctx, func(ctx context.Context) error {
		tx := r.q(ctx).Model(&assessmentRow{}).Where("id = ?", a.ID).Updates(map[string]any{
			"course_id": a.CourseID, "title": a.Title, "description": a.Description,
			"max_score": a.MaxScore, "due_at": a.DueAt, "updated_at": a.UpdatedAt,
		})
		return expectOne(tx, mapWriteErr)
	})
}

func (r *repo) DeleteAssessment(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		return expectOne(r.q(ctx).Where("id = ?", id).Delete(&assessmentRow{}), mapDeleteErr)
	})
}

func (r *repo) CountResults(ctx context.Context, assessmentID string) (int, error) {
	var n int64
	err := r.run(ctx, func(ctx context.Context) error {
		return r.q(ctx).Model(&resultRow{}).Where("assessment_id = ?", assessmentID).Count(&n).Error
	})
	return int(n), err
}

func (r *repo) MaxResultScore(ctx context.Context, assessmentID string) (float64, bool, error) {
	var top sql.NullFloat64
	err := r.run(ctx, func(ctx context.Context) error {
		return r.q(ctx).Model(&resultRow{}).Select("max(score)").Where("assessment_id = ?", assessmentID).Row().Scan(&top)
	})
	if err != nil {
		return 0, false, err
	}
	return top.Float64, top.Valid, nil
}

// --- results ---

func (r *repo) CreateResult(ctx context.Context, res *academics.Result) error {
	row := fromResult(res)
	return r.run(ctx, func(ctx context.Context) error {
		return mapWriteErr(r.q(ctx).Omit("Assessment", "Student").Create(&row).Error)
	})
}

func (r *repo) GetResult(ctx context.Context, id string) (*academics.Result, error) {
	var row resultRow
	err := r.run(ctx, func(ctx context.Context) error {
		return mapReadErr(r.q(ctx).Where("id = ?", id).First(&row).Error)
	})
	if err != nil {
		return nil, err
	}
	res := row.toResult()
	return &res, nil
}

func (r *repo) ListResults(ctx context.Context, f academics.ResultFilter) ([]academics.Result, error) {
	var rows []resultRow
	err := r.run(ctx, func(ctx context.Context) error {
		q := r.q(ctx).Order("id")
		if id := strings.TrimSpace(f.AssessmentID); id != "" {
			q = q.Where("assessment_id = ?", id)
		}
		if id := strings.TrimSpace(f.StudentID); id != "" {
			q = q.Where("student_id = ?", id)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]academics.Result, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toResult())
	}
	return out, nil
}

func (r *repo) UpdateResult(ctx context.Context, res *academics.Result) error {
	return r.run(ctx, func(ctx context.Context) error {
		tx := r.q(ctx).Model(&resultRow{}).Where("id = ?", res.ID).Updates(map[string]any{
			"assessment_id": res.AssessmentID, "student_id": res.StudentID, "score": res.Score,
			"feedback": res.Feedback, "updated_at": res.UpdatedAt,
		})
		return expectOne(tx, mapWriteErr)
	})
}

func (r *repo) DeleteResult(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		return expectOne(r.q(ctx).Where("id = ?", id).Delete(&resultRow{}), mapWriteErr)
	})
}
