package pg

import (
	"context"
	"fmt"
	"strings"

	"coursehub.org/internal/academics"
)

const resultColumns = `id, assessment_id, student_id, score, feedback, created_at, updated_at`

func scanResult(row interface{ Scan(...any) error }) (*academics.Result, error) {
	var res academics.Result
	if err := row.Scan(&res.ID, &res.AssessmentID, &res.StudentID, &res.Score, &res.Feedback, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return &res, nil
}

func (r *repo) CreateResult(ctx context.Context, res *academics.Result) error {
	return r.run(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, `
			insert into results (id, assessment_id, student_id, score, feedback, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, res.ID, res.AssessmentID, res.StudentID, res.Score, res.Feedback, res.CreatedAt, res.UpdatedAt)
		return mapWriteErr(err)
	})
}

func (r *repo) GetResult(ctx context.Context, id string) (*academics.Result, error) {
	var res *academics.Result
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		res, err = scanResult(r.q.QueryRowContext(ctx, r.locking(`select `+resultColumns+` from results where id = $1`), id))
		return mapReadErr(err)
	})
	return res, err
}

func (r *repo) ListResults(ctx context.Context, f academics.ResultFilter) ([]academics.Result, error) {
	var (
		where []string
		args  []any
	)
	if id := strings.TrimSpace(f.AssessmentID); id != "" {
		args = append(args, id)
		where = append(where, fmt.Sprintf("assessment_id = $%d", len(args)))
	}
	if id := strings.TrimSpace(f.StudentID); id != "" {
		args = append(args, id)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	query := `select ` + resultColumns + ` from results`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by id`

	var out []academics.Result
	err := r.run(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = make([]academics.Result, 0)
		for rows.Next() {
			res, err := scanResult(rows)
			if err != nil {
				return err
			}
			out = append(out, *res)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repo) UpdateResult(ctx context.Context, res *academics.Result) error {
	return r.run(ctx, func(ctx context.Context) error {
		out, err := r.q.ExecContext(ctx, `
			update results set assessment_id = $2, student_id = $3, score = $4, feedback = $5, updated_at = $6
			where id = $1
		`, res.ID, res.AssessmentID, res.StudentID, res.Score, res.Feedback, res.UpdatedAt)
		return expectOne(out, mapWriteErr(err))
	})
}

func (r *repo) DeleteResult(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `delete from results where id = $1`, id)
		return expectOne(res, err)
	})
}
