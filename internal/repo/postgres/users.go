package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geocoder89/labshare/internal/db"
	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/geocoder89/labshare/internal/pgerr"
)

// created_via is optional: older databases do not have it.
const createdViaColumn = "created_via"

const userColumns = `id, email, password_hash, first_name, last_name, phone, bio, avatar_url, is_verified, created_at, updated_at`

type UsersRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewUsersRepo(sqlDB *sql.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: sqlDB, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func scanUser(row interface{ Scan(dest ...any) error }) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.Bio,
		&u.AvatarURL,
		&u.IsVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			user.NormalizeEmail(email),
		))
		return err
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

// EmailTaken runs on q so provisioning can check inside its transaction.
func EmailTaken(ctx context.Context, q db.DBTX, email string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`,
		user.NormalizeEmail(email),
	).Scan(&exists)
	return exists, err
}

// InsertUserTx inserts nu inside an open transaction. If the database has no
// created_via column the insert is retried once without it; onDrift is
// called before that retry. A duplicate email becomes user.ErrEmailTaken.
//
// q must be a transaction: the first attempt runs under a savepoint so the
// failed statement does not abort the surrounding work.
func InsertUserTx(ctx context.Context, q db.DBTX, nu user.NewUser, onDrift func()) (user.User, error) {
	nu.Email = user.NormalizeEmail(nu.Email)

	if _, err := q.ExecContext(ctx, `SAVEPOINT insert_user`); err != nil {
		return user.User{}, err
	}

	u, err := scanUser(q.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, phone, bio, avatar_url, is_verified, created_via)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+userColumns,
		nu.Email, nu.PasswordHash, nu.FirstName, nu.LastName, nu.Phone, nu.Bio, nu.AvatarURL, nu.IsVerified, nu.CreatedVia,
	))

	if err != nil && pgerr.IsUnknownColumn(err, createdViaColumn) {
		if _, rbErr := q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT insert_user`); rbErr != nil {
			return user.User{}, rbErr
		}
		if onDrift != nil {
			onDrift()
		}

		u, err = scanUser(q.QueryRowContext(ctx,
			`INSERT INTO users (email, password_hash, first_name, last_name, phone, bio, avatar_url, is_verified)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING `+userColumns,
			nu.Email, nu.PasswordHash, nu.FirstName, nu.LastName, nu.Phone, nu.Bio, nu.AvatarURL, nu.IsVerified,
		))
		if err != nil {
			return user.User{}, translateUserErr(err)
		}
		u.CreatedVia = nil
	} else if err != nil {
		return user.User{}, translateUserErr(err)
	} else if nu.CreatedVia != "" {
		via := nu.CreatedVia
		u.CreatedVia = &via
	}

	if _, err := q.ExecContext(ctx, `RELEASE SAVEPOINT insert_user`); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func translateUserErr(err error) error {
	if pgerr.IsDuplicateKey(err) {
		return fmt.Errorf("%w: %v", user.ErrEmailTaken, err)
	}
	return err
}

// Create inserts a self-registered user in its own transaction.
func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (u user.User, err error) {
	err = r.observe("users.create", func() (err error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		u, err = InsertUserTx(ctx, tx, nu, r.prom.IncSchemaDriftRetry)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return u, err
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id int64, req user.UpdateProfileRequest) (user.User, error) {
	var u user.User

	err := r.observe("users.update_profile", func() error {
		var err error
		u, err = scanUser(r.db.QueryRowContext(ctx,
			`UPDATE users SET
				first_name = COALESCE($2, first_name),
				last_name  = COALESCE($3, last_name),
				phone      = COALESCE($4, phone),
				bio        = COALESCE($5, bio),
				avatar_url = COALESCE($6, avatar_url),
				updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+userColumns,
			id, req.FirstName, req.LastName, req.Phone, req.Bio, req.AvatarURL,
		))
		return err
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

// Delete removes the user; memberships go with it through ON DELETE CASCADE.
func (r *UsersRepo) Delete(ctx context.Context, id int64) error {
	return r.observe("users.delete", func() error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}
