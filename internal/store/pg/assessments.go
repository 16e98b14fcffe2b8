package pg

import (
	"context"
	"database/sql"
	"strings"

	"coursehub.org/internal/academics"
)

const assessmentColumns = `id, course_id, title, description, max_score, due_at, created_at, updated_at`

func scanAssessment(row interface{ Scan(...any) error }) (*academics.Assessment, error) {
	var (
		a   academics.Assessment
		due sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.CourseID, &a.Title, &a.Description, &a.MaxScore, &due, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.DueAt = timePtr(due)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (r *repo) CreateAssessment(ctx context.Context, a *academics.Assessment) error {
	return r.run(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, `
			insert into assessments (id, course_id, title, description, max_score, due_at, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, a.ID, a.CourseID, a.Title, a.Description, a.MaxScore, nullTime(a.DueAt), a.CreatedAt, a.UpdatedAt)
		return mapWriteErr(err)
	})
}

func (r *repo) GetAssessment(ctx context.Context, id string) (*academics.Assessment, error) {
	var a *academics.Assessment
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		a, err = scanAssessment(r.q.QueryRowContext(ctx, r.locking(`select `+assessmentColumns+` from assessments where id = $1`), id))
		return mapReadErr(err)
	})
	return a, err
}

func (r *repo) ListAssessments(ctx context.Context, f academics.AssessmentFilter) ([]academics.Assessment, error) {
	query := `select ` + assessmentColumns + ` from assessments`
	var args []any
	if id := strings.TrimSpace(f.CourseID); id != "" {
		query += ` where course_id = $1`
		args = append(args, id)
	}
	query += ` order by id`

	var out []academics.Assessment
	err := r.run(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = make([]academics.Assessment, 0)
		for rows.Next() {
			a, err := scanAssessment(rows)
			if err != nil {
				return err
			}
			out = append(out, *a)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repo) UpdateAssessment(ctx context.Context, a *academics.Assessment) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `
			update assessments
			set course_id = $2, title = $3, description = $4, max_score = $5, due_at = $6, updated_at = $7
			where id = $1
		`, a.ID, a.CourseID, a.Title, a.Description, a.MaxScore, nullTime(a.DueAt), a.UpdatedAt)
		return expectOne(res, mapWriteErr(err))
	})
}

func (r *repo) DeleteAssessment(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `delete from assessments where id = $1`, id)
		return expectOne(res, mapDeleteErr(err))
	})
}

func (r *repo) CountResults(ctx context.Context, assessmentID string) (int, error) {
	var n int
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		n, err = count(ctx, r.q, `select count(*) from results where assessment_id = $1`, assessmentID)
		return err
	})
	return n, err
}

func (r *repo) MaxResultScore(ctx context.Context, assessmentID string) (float64, bool, error) {
	var top sql.NullFloat64
	err := r.run(ctx, func(ctx context.Context) error {
		return r.q.QueryRowContext(ctx, `select max(score) from results where assessment_id = $1`, assessmentID).Scan(&top)
	})
	if err != nil {
		return 0, false, err
	}
	return top.Float64, top.Valid, nil
}
