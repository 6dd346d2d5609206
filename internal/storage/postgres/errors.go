package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tinychat/server/internal/storage"
)

const (
	constraintUserEmail = "users_email_key"
	constraintUserTag   = "users_tag_key"
)

// mapError translates driver errors into storage sentinels. Unknown errors
// are returned unchanged so callers can wrap them.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintUserEmail:
			return storage.ErrEmailExists
		case constraintUserTag:
			return storage.ErrTagExists
		}
	case pgerrcode.ForeignKeyViolation:
		// the referenced guild, channel or user vanished underneath us
		return storage.ErrNotFound
	}
	return err
}
