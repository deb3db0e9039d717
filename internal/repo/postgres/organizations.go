package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/geocoder89/labshare/internal/db"
	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/observability"
)

const (
	institutionColumns = `id, name, type, description, website, logo_url, country, city, address, created_at`
	laboratoryColumns  = `id, institution_id, director_id, name, description, location, contact_email, website, research_areas, created_at`
	supplierColumns    = `id, name, description, website, country, city, address, created_at`
)

type rowScanner interface{ Scan(dest ...any) error }

func scanInstitution(row rowScanner) (organization.Institution, error) {
	var i organization.Institution
	err := row.Scan(&i.ID, &i.Name, &i.Type, &i.Description, &i.Website, &i.LogoURL, &i.Country, &i.City, &i.Address, &i.CreatedAt)
	return i, err
}

func scanLaboratory(row rowScanner) (organization.Laboratory, error) {
	var l organization.Laboratory
	err := row.Scan(&l.ID, &l.InstitutionID, &l.DirectorID, &l.Name, &l.Description, &l.Location, &l.ContactEmail, &l.Website, &l.ResearchAreas, &l.CreatedAt)
	return l, err
}

func scanSupplier(row rowScanner) (organization.Supplier, error) {
	var s organization.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Website, &s.Country, &s.City, &s.Address, &s.CreatedAt)
	return s, err
}

func InsertInstitutionTx(ctx context.Context, q db.DBTX, in organization.InstitutionInput) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO institutions (name, type, description, website, country, city, address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		in.Name, in.Type, in.Description, in.Website, in.Country, in.City, in.Address,
	).Scan(&id)
	return id, err
}

// LockInstitutionTx confirms the institution exists and holds a share lock on
// it until the transaction ends, so it cannot be deleted underneath a new lab.
func LockInstitutionTx(ctx context.Context, q db.DBTX, id int64) error {
	var got int64
	err := q.QueryRowContext(ctx, `SELECT id FROM institutions WHERE id = $1 FOR SHARE`, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return organization.ErrInstitutionNotFound
	}
	return err
}

// InsertLaboratoryTx leaves director_id NULL; SetLaboratoryDirectorTx fills it
// once the director user exists.
func InsertLaboratoryTx(ctx context.Context, q db.DBTX, in organization.LaboratoryInput) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO laboratories (institution_id, name, description, location, contact_email, website, research_areas)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		in.InstitutionID, in.Name, in.Description, in.Location, in.ContactEmail, in.Website, in.ResearchAreas,
	).Scan(&id)
	return id, err
}

func SetLaboratoryDirectorTx(ctx context.Context, q db.DBTX, labID, userID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE laboratories SET director_id = $1 WHERE id = $2`, userID, labID)
	return err
}

func InsertSupplierTx(ctx context.Context, q db.DBTX, in organization.SupplierInput) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO suppliers (name, description, website, country, city, address)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		in.Name, in.Description, in.Website, in.Country, in.City, in.Address,
	).Scan(&id)
	return id, err
}

// OrganizationsRepo serves the read and delete endpoints. Creation goes
// through the provisioning engine.
type OrganizationsRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewOrganizationsRepo(sqlDB *sql.DB, prom *observability.Prom) *OrganizationsRepo {
	return &OrganizationsRepo{db: sqlDB, prom: prom}
}

func (r *OrganizationsRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func (r *OrganizationsRepo) ListInstitutions(ctx context.Context, limit, offset int) ([]organization.Institution, error) {
	out := make([]organization.Institution, 0, limit)

	err := r.observe("institutions.list", func() error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+institutionColumns+` FROM institutions ORDER BY id ASC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			i, err := scanInstitution(rows)
			if err != nil {
				return err
			}
			out = append(out, i)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrganizationsRepo) GetInstitution(ctx context.Context, id int64) (organization.Institution, error) {
	var i organization.Institution
	err := r.observe("institutions.get", func() error {
		var err error
		i, err = scanInstitution(r.db.QueryRowContext(ctx,
			`SELECT `+institutionColumns+` FROM institutions WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return organization.Institution{}, organization.ErrNotFound
	}
	return i, err
}

func (r *OrganizationsRepo) ListLaboratories(ctx context.Context, institutionID int64) ([]organization.Laboratory, error) {
	out := []organization.Laboratory{}

	err := r.observe("laboratories.list", func() error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+laboratoryColumns+` FROM laboratories WHERE institution_id = $1 ORDER BY id ASC`,
			institutionID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			l, err := scanLaboratory(rows)
			if err != nil {
				return err
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrganizationsRepo) GetLaboratory(ctx context.Context, id int64) (organization.Laboratory, error) {
	var l organization.Laboratory
	err := r.observe("laboratories.get", func() error {
		var err error
		l, err = scanLaboratory(r.db.QueryRowContext(ctx,
			`SELECT `+laboratoryColumns+` FROM laboratories WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return organization.Laboratory{}, organization.ErrNotFound
	}
	return l, err
}

func (r *OrganizationsRepo) ListSuppliers(ctx context.Context, limit, offset int) ([]organization.Supplier, error) {
	out := make([]organization.Supplier, 0, limit)

	err := r.observe("suppliers.list", func() error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+supplierColumns+` FROM suppliers ORDER BY id ASC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSupplier(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrganizationsRepo) GetSupplier(ctx context.Context, id int64) (organization.Supplier, error) {
	var s organization.Supplier
	err := r.observe("suppliers.get", func() error {
		var err error
		s, err = scanSupplier(r.db.QueryRowContext(ctx,
			`SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return organization.Supplier{}, organization.ErrNotFound
	}
	return s, err
}

// Delete removes the organization row and the memberships pointing at it.
// organization_users.organization_id is polymorphic and has no foreign key, so
// the cleanup is explicit.
func (r *OrganizationsRepo) Delete(ctx context.Context, kind organization.Kind, id int64) error {
	var table string
	switch kind {
	case organization.KindInstitution:
		table = "institutions"
	case organization.KindLaboratory:
		table = "laboratories"
	case organization.KindSupplier:
		table = "suppliers"
	default:
		return organization.ErrUnknownKind
	}

	return r.observe(table+".delete", func() (err error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return organization.ErrNotFound
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM organization_users WHERE organization_type = $1 AND organization_id = $2`,
			string(kind), id,
		)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
}
