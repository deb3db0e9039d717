// Package membership resolves a user's platform role from the polymorphic
// organization_users table and maintains the one-row-per-type invariant.
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/labshare/internal/db"
	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/domain/role"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/geocoder89/labshare/internal/pgerr"
)

// Membership is one organization_users row. OrganizationID is nil for the
// default membership inserted by the users trigger.
type Membership struct {
	UserID           int64
	OrganizationType organization.Kind
	OrganizationID   *int64
	RoleID           int64
}

type Resolver struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewResolver(sqlDB *sql.DB, prom *observability.Prom) *Resolver {
	return &Resolver{db: sqlDB, prom: prom}
}

// RoleOf returns the role of the user's institution membership, or
// role.Default when there is none. A missing row is not an error.
func (r *Resolver) RoleOf(ctx context.Context, userID int64) (string, error) {
	var name sql.NullString

	err := r.prom.ObserveDB("membership.role_of", func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT r.name
			 FROM users u
			 JOIN organization_users ou ON ou.user_id = u.id AND ou.organization_type = $2
			 LEFT JOIN roles r ON r.id = ou.role_id
			 WHERE u.id = $1
			 LIMIT 1`,
			userID, string(organization.KindInstitution),
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}

	if !name.Valid || name.String == "" {
		return role.Default, nil
	}
	return name.String, nil
}

// EnsureRole finds or creates the named role in its own transaction.
func (r *Resolver) EnsureRole(ctx context.Context, name string) (id int64, err error) {
	err = r.prom.ObserveDB("membership.ensure_role", func() (err error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		id, err = EnsureRoleTx(ctx, tx, name)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return id, err
}

// EnsureRoleTx returns the id of the named role, creating it if needed. It is
// safe under concurrent callers: the insert is conflict-tolerant and runs
// under a savepoint, and a lost race falls back to re-reading the winner's
// row. q must be a transaction.
func EnsureRoleTx(ctx context.Context, q db.DBTX, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("membership: role name is empty")
	}

	id, found, err := lookupRole(ctx, q, name)
	if err != nil || found {
		return id, err
	}

	if _, err := q.ExecContext(ctx, `SAVEPOINT ensure_role`); err != nil {
		return 0, err
	}

	err = q.QueryRowContext(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`,
		name, role.Description(name),
	).Scan(&id)

	switch {
	case err == nil:
		if _, err := q.ExecContext(ctx, `RELEASE SAVEPOINT ensure_role`); err != nil {
			return 0, err
		}
		return id, nil

	case errors.Is(err, sql.ErrNoRows):
		// another transaction inserted it first
		if _, err := q.ExecContext(ctx, `RELEASE SAVEPOINT ensure_role`); err != nil {
			return 0, err
		}

	case pgerr.IsDuplicateKey(err):
		if _, err := q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT ensure_role`); err != nil {
			return 0, err
		}

	default:
		return 0, fmt.Errorf("ensure role %q: %w", name, err)
	}

	id, found, err = lookupRole(ctx, q, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("ensure role %q: row vanished after conflict", name)
	}
	return id, nil
}

func lookupRole(ctx context.Context, q db.DBTX, name string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// PurgeTx deletes the user's memberships of the given types and returns how
// many rows went. Other types are untouched.
func PurgeTx(ctx context.Context, q db.DBTX, userID int64, kinds ...organization.Kind) (int64, error) {
	if len(kinds) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(kinds))
	args := []any{userID}
	seen := make(map[organization.Kind]bool, len(kinds))

	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		args = append(args, string(k))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	res, err := q.ExecContext(ctx,
		`DELETE FROM organization_users WHERE user_id = $1 AND organization_type IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func InsertTx(ctx context.Context, q db.DBTX, m Membership) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO organization_users (user_id, organization_type, organization_id, role_id)
		 VALUES ($1, $2, $3, $4)`,
		m.UserID, string(m.OrganizationType), m.OrganizationID, m.RoleID,
	)
	return err
}

// ReplaceTx is purge-then-insert for m's type. The default institution
// membership added by the users trigger is purged too, so the user ends with
// exactly the intended row for m's type and nothing left over from the
// trigger.
func ReplaceTx(ctx context.Context, q db.DBTX, m Membership) (purged int64, err error) {
	purged, err = PurgeTx(ctx, q, m.UserID, m.OrganizationType, organization.KindInstitution)
	if err != nil {
		return 0, err
	}
	return purged, InsertTx(ctx, q, m)
}
