package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tinychat/server/internal/storage"
)

var _ storage.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const userColumns = `id, username, discriminator, email, hash, created_at`

func scanUser(row pgx.Row) (*storage.User, error) {
	var u storage.User
	if err := row.Scan(&u.ID, &u.Username, &u.Discriminator, &u.Email, &u.Hash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*storage.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*storage.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) CountByUsername(ctx context.Context, username string) (int, error) {
	var count int
	err := pick(r.pool, r.tx).QueryRow(ctx, `SELECT count(*) FROM users WHERE username = $1`, username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users by username: %w", err)
	}
	return count, nil
}

func (r *UserRepository) Create(ctx context.Context, user storage.User) (*storage.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
INSERT INTO users (id, username, discriminator, email, hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+userColumns,
		user.ID, user.Username, user.Discriminator, user.Email, user.Hash)
	created, err := scanUser(row)
	if err != nil {
		if mapped := mapError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *UserRepository) Update(ctx context.Context, user storage.User) (*storage.User, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
UPDATE users
   SET username = $2, discriminator = $3, email = $4, hash = $5
 WHERE id = $1
RETURNING `+userColumns,
		user.ID, user.Username, user.Discriminator, user.Email, user.Hash)
	updated, err := scanUser(row)
	if err != nil {
		if mapped := mapError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
