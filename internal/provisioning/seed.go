package provisioning

import (
	"context"
	"database/sql"
	"errors"

	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/domain/role"
	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/geocoder89/labshare/internal/membership"
	"github.com/geocoder89/labshare/internal/repo/postgres"
)

type SeedAdmin struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// EnsureAdmin creates the platform administrator on first start. An existing
// account with the same email is left alone.
func (e *Engine) EnsureAdmin(ctx context.Context, s SeedAdmin) (created bool, err error) {
	if s.Email == "" || s.Password == "" {
		return false, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				e.log.ErrorContext(ctx, "seed admin rollback failed", "err", rbErr)
			}
		}
	}()

	taken, err := postgres.EmailTaken(ctx, tx, s.Email)
	if err != nil {
		return false, err
	}
	if taken {
		return false, tx.Rollback()
	}

	digest, err := e.hasher.Hash(s.Password)
	if err != nil {
		return false, err
	}

	u, err := postgres.InsertUserTx(ctx, tx, user.NewUser{
		Email:        s.Email,
		PasswordHash: digest,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		IsVerified:   true,
		CreatedVia:   "seed",
	}, e.prom.IncSchemaDriftRetry)
	if err != nil {
		return false, err
	}

	roleID, err := membership.EnsureRoleTx(ctx, tx, role.Admin)
	if err != nil {
		return false, err
	}

	// platform admins belong to no particular institution
	if _, err = membership.ReplaceTx(ctx, tx, membership.Membership{
		UserID:           u.ID,
		OrganizationType: organization.KindInstitution,
		RoleID:           roleID,
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	e.log.InfoContext(ctx, "seed admin created", "user_id", u.ID, "email", u.Email)
	return true, nil
}
