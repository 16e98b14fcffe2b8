package pg

import (
	"context"
	"database/sql"
	"strings"

	"coursehub.org/internal/academics"
)

const courseColumns = `id, title, description, instructor_id, created_at, updated_at`

func scanCourse(row interface{ Scan(...any) error }) (*academics.Course, error) {
	var (
		c          academics.Course
		instructor sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &instructor, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.InstructorID = stringPtr(instructor)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *repo) CreateCourse(ctx context.Context, c *academics.Course) error {
	return r.run(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, `
			insert into courses (id, title, description, instructor_id, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.Title, c.Description, nullString(c.InstructorID), c.CreatedAt, c.UpdatedAt)
		return mapWriteErr(err)
	})
}

func (r *repo) GetCourse(ctx context.Context, id string) (*academics.Course, error) {
	var c *academics.Course
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		c, err = scanCourse(r.q.QueryRowContext(ctx, r.locking(`select `+courseColumns+` from courses where id = $1`), id))
		return mapReadErr(err)
	})
	return c, err
}

func (r *repo) ListCourses(ctx context.Context, f academics.CourseFilter) ([]academics.Course, error) {
	query := `select ` + courseColumns + ` from courses`
	var args []any
	if id := strings.TrimSpace(f.InstructorID); id != "" {
		query += ` where instructor_id = $1`
		args = append(args, id)
	}
	query += ` order by id`

	var out []academics.Course
	err := r.run(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = make([]academics.Course, 0)
		for rows.Next() {
			c, err := scanCourse(rows)
			if err != nil {
				return err
			}
			out = append(out, *c)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repo) UpdateCourse(ctx context.Context, c *academics.Course) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `
			update courses set title = $2, description = $3, instructor_id = $4, updated_at = $5
			where id = $1
		`, c.ID, c.Title, c.Description, nullString(c.InstructorID), c.UpdatedAt)
		return expectOne(res, mapWriteErr(err))
	})
}

func (r *repo) DeleteCourse(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `delete from courses where id = $1`, id)
		return expectOne(res, mapDeleteErr(err))
	})
}

func (r *repo) CountAssessments(ctx context.Context, courseID string) (int, error) {
	var n int
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		n, err = count(ctx, r.q, `select count(*) from assessments where course_id = $1`, courseID)
		return err
	})
	return n, err
}
