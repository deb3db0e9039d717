package membership

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB, mock
}

func exact(q string) string { return "^" + regexp.QuoteMeta(q) + "$" }

const (
	qLookup  = `SELECT id FROM roles WHERE name = $1`
	qInsRole = `INSERT INTO roles (name, description) VALUES ($1, $2)`
	qPurge   = `DELETE FROM organization_users WHERE user_id = $1 AND organization_type IN`
	qInsMem  = `INSERT INTO organization_users (user_id, organization_type, organization_id, role_id)`
)

func TestRoleOf(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m sqlmock.Sqlmock)
		want    string
		wantErr bool
	}{
		{
			name: "institution_membership",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("SELECT r.name")).
					WithArgs(int64(42), "institution").
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("lab_manager"))
			},
			want: "lab_manager",
		},
		{
			name: "no_row_defaults_to_student",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("SELECT r.name")).
					WithArgs(int64(42), "institution").
					WillReturnRows(sqlmock.NewRows([]string{"name"}))
			},
			want: "student",
		},
		{
			name: "dangling_role_defaults_to_student",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("SELECT r.name")).
					WithArgs(int64(42), "institution").
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(nil))
			},
			want: "student",
		},
		{
			name: "db_error_propagates",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("SELECT r.name")).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sqlDB, mock := newMock(t)
			tt.setup(mock)

			got, err := NewResolver(sqlDB, nil).RoleOf(context.Background(), 42)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
			} else {
				if err != nil {
					t.Fatalf("RoleOf: %v", err)
				}
				if got != tt.want {
					t.Fatalf("role = %q, want %q", got, tt.want)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestEnsureRoleTx(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m sqlmock.Sqlmock)
		want  int64
	}{
		{
			name: "existing_role",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(exact(qLookup)).WithArgs("lab_manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
			},
			want: 3,
		},
		{
			name: "created",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(exact(qLookup)).WithArgs("lab_manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				m.ExpectExec(exact("SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(regexp.QuoteMeta(qInsRole)).WithArgs("lab_manager", "Laboratory manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
				m.ExpectExec(exact("RELEASE SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			want: 9,
		},
		{
			name: "lost_race_on_conflict_rereads",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(exact(qLookup)).WithArgs("lab_manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				m.ExpectExec(exact("SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(regexp.QuoteMeta(qInsRole)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				m.ExpectExec(exact("RELEASE SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(exact(qLookup)).WithArgs("lab_manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
			},
			want: 5,
		},
		{
			name: "unique_violation_rolls_back_savepoint_and_rereads",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(exact(qLookup)).WithArgs("lab_manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				m.ExpectExec(exact("SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(regexp.QuoteMeta(qInsRole)).
					WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"})
				m.ExpectExec(exact("ROLLBACK TO SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(exact(qLookup)).WithArgs("lab_manager").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sqlDB, mock := newMock(t)
			mock.ExpectBegin()
			tt.setup(mock)

			tx, err := sqlDB.Begin()
			if err != nil {
				t.Fatalf("begin: %v", err)
			}

			got, err := EnsureRoleTx(context.Background(), tx, "lab_manager")
			if err != nil {
				t.Fatalf("EnsureRoleTx: %v", err)
			}
			if got != tt.want {
				t.Fatalf("id = %d, want %d", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestEnsureRoleTx_OtherErrorPropagates(t *testing.T) {
	sqlDB, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(exact(qLookup)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(exact("SAVEPOINT ensure_role")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(qInsRole)).WillReturnError(errors.New("disk full"))

	tx, _ := sqlDB.Begin()
	if _, err := EnsureRoleTx(context.Background(), tx, "auditor"); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureRole_OwnTransaction(t *testing.T) {
	sqlDB, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(exact(qLookup)).WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	id, err := NewResolver(sqlDB, nil).EnsureRole(context.Background(), "admin")
	if err != nil || id != 2 {
		t.Fatalf("EnsureRole = %d, %v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReplaceTx_PurgesScopedTypesBeforeInsert(t *testing.T) {
	sqlDB, mock := newMock(t)
	orgID := int64(11)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qPurge+` ($2, $3)`)).
		WithArgs(int64(7), "provider", "institution").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(qInsMem)).
		WithArgs(int64(7), "provider", orgID, int64(4)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx, _ := sqlDB.Begin()
	purged, err := ReplaceTx(context.Background(), tx, Membership{
		UserID:           7,
		OrganizationType: organization.KindSupplier,
		OrganizationID:   &orgID,
		RoleID:           4,
	})
	if err != nil {
		t.Fatalf("ReplaceTx: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPurgeTx_DeduplicatesTypes(t *testing.T) {
	sqlDB, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(qPurge+` ($2)`)).
		WithArgs(int64(7), "institution").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := PurgeTx(context.Background(), sqlDB, 7, organization.KindInstitution, organization.KindInstitution)
	if err != nil {
		t.Fatalf("PurgeTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
