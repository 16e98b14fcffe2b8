package pg

import (
	"context"

	"coursehub.org/internal/auth"
)

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *repo) CreateUser(ctx context.Context, u *auth.User) error {
	return r.run(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, `
			insert into users (id, name, email, password_hash, role, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
		return mapWriteErr(err)
	})
}

func (r *repo) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u *auth.User
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		u, err = scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email))
		return mapReadErr(err)
	})
	return u, err
}

func (r *repo) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return r.GetUser(ctx, id)
}

func (r *repo) GetUser(ctx context.Context, id string) (*auth.User, error) {
	var u *auth.User
	err := r.run(ctx, func(ctx context.Context) error {
		var err error
		u, err = scanUser(r.q.QueryRowContext(ctx, r.locking(`select `+userColumns+` from users where id = $1`), id))
		return mapReadErr(err)
	})
	return u, err
}

func (r *repo) ListUsers(ctx context.Context) ([]auth.User, error) {
	var out []auth.User
	err := r.run(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, `select `+userColumns+` from users order by id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = make([]auth.User, 0)
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, *u)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repo) UpdateUser(ctx context.Context, u *auth.User) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `
			update users set name = $2, email = $3, role = $4, updated_at = $5
			where id = $1
		`, u.ID, u.Name, u.Email, string(u.Role), u.UpdatedAt)
		return expectOne(res, mapWriteErr(err))
	})
}

func (r *repo) DeleteUser(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		res, err := r.q.ExecContext(ctx, `delete from users where id = $1`, id)
		return expectOne(res, mapDeleteErr(err))
	})
}

func (r *repo) CountUserDependents(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.run(ctx, func(ctx context.Context) error {
		return r.q.QueryRowContext(ctx, `
			select (select count(*) from courses where instructor_id = $1)
			     + (select count(*) from results where student_id = $1)
		`, userID).Scan(&n)
	})
	return n, err
}
