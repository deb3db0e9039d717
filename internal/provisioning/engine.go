// Package provisioning creates an organization together with its
// administrator in one transaction: organization row, admin user, role,
// and exactly one membership for the admin.
package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/domain/role"
	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/geocoder89/labshare/internal/membership"
	"github.com/geocoder89/labshare/internal/notifications"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/geocoder89/labshare/internal/repo/postgres"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Hasher interface {
	Hash(secret string) (string, error)
}

type AdminCredentials struct {
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,min=8,max=72,bcrypt_max"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
}

type Request struct {
	Org   organization.Payload
	Admin *AdminCredentials
	// RequireAdmin rejects a request without Admin during validation.
	RequireAdmin bool
}

type Result struct {
	Kind           organization.Kind `json:"kind"`
	OrganizationID int64             `json:"organization_id"`
	UserID         *int64            `json:"user_id,omitempty"`
	Role           string            `json:"role,omitempty"`
}

type Engine struct {
	db       *sql.DB
	hasher   Hasher
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewEngine wires the engine. notifier, log and prom may be nil.
func NewEngine(sqlDB *sql.DB, hasher Hasher, notifier notifications.Notifier, log *slog.Logger, prom *observability.Prom) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		db:       sqlDB,
		hasher:   hasher,
		notifier: notifier,
		log:      log,
		prom:     prom,
		validate: newValidator(),
		tracer:   otel.Tracer("labshare/provisioning"),
	}
}

// AdminRole is the role granted to the administrator of a new organization.
func AdminRole(kind organization.Kind) string {
	if kind == organization.KindSupplier {
		return role.ProviderAdmin
	}
	return role.LabManager
}

// run tracks one provisioning call through its states.
type run struct {
	kind  organization.Kind
	state State
	log   *slog.Logger
	span  trace.Span
}

func (r *run) advance(ctx context.Context, next State) {
	r.log.DebugContext(ctx, "provisioning state", "kind", r.kind, "from", r.state, "to", next)
	r.span.AddEvent(string(next))
	r.state = next
}

// Provision validates req, then runs every write in a single transaction.
// Any failure after BEGIN rolls the whole transaction back; a failed rollback
// is logged and the original error is returned.
func (e *Engine) Provision(ctx context.Context, req Request) (res Result, err error) {
	if verr := e.Validate(req); verr != nil {
		kind, _ := req.Org.Kind()
		e.prom.ObserveProvision(string(kind), "rejected", 0)
		return Result{}, verr
	}
	kind, _ := req.Org.Kind()

	ctx, span := e.tracer.Start(ctx, "provisioning.Provision",
		trace.WithAttributes(
			attribute.String("org.kind", string(kind)),
			attribute.Bool("org.with_admin", req.Admin != nil),
		),
	)
	defer span.End()

	start := time.Now()
	r := &run{kind: kind, state: StateInit, log: e.log, span: span}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		e.prom.ObserveProvision(string(kind), "rolled_back", time.Since(start))
		return Result{}, &TransactionError{State: StateInit, Err: err}
	}

	defer func() {
		if err == nil {
			return
		}

		failedAt := r.state
		txErr := &TransactionError{State: failedAt, Err: err}

		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			txErr.RollbackErr = rbErr
			e.log.ErrorContext(ctx, "provisioning rollback failed",
				"kind", kind, "state", failedAt, "err", rbErr, "cause", err)
		}
		r.advance(ctx, StateRolledBack)

		e.log.WarnContext(ctx, "provisioning rolled back",
			"kind", kind, "state", failedAt, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failedAt))
		e.prom.ObserveProvision(string(kind), "rolled_back", time.Since(start))

		res = Result{}
		err = txErr
	}()

	res, err = e.provisionTx(ctx, tx, r, req)
	if err != nil {
		return Result{}, err
	}

	if err = tx.Commit(); err != nil {
		return Result{}, err
	}
	r.advance(ctx, StateCommitted)

	e.prom.ObserveProvision(string(kind), "committed", time.Since(start))
	e.log.InfoContext(ctx, "organization provisioned",
		"kind", kind, "organization_id", res.OrganizationID, "user_id", res.UserID)

	e.notify(ctx, req, res)
	return res, nil
}

func (e *Engine) provisionTx(ctx context.Context, tx *sql.Tx, r *run, req Request) (Result, error) {
	res := Result{Kind: r.kind}

	orgID, err := e.insertOrganization(ctx, tx, req.Org)
	if err != nil {
		return Result{}, err
	}
	res.OrganizationID = orgID
	r.advance(ctx, StateOrgCreated)

	if req.Admin == nil {
		return res, nil
	}

	admin := req.Admin

	taken, err := postgres.EmailTaken(ctx, tx, admin.Email)
	if err != nil {
		return Result{}, err
	}
	if taken {
		return Result{}, ErrDuplicateEmail
	}

	digest, err := e.hasher.Hash(admin.Password)
	if err != nil {
		return Result{}, err
	}

	u, err := postgres.InsertUserTx(ctx, tx, user.NewUser{
		Email:        admin.Email,
		PasswordHash: digest,
		FirstName:    admin.FirstName,
		LastName:     admin.LastName,
		Phone:        admin.Phone,
		CreatedVia:   "provisioning:" + string(r.kind),
	}, func() {
		e.prom.IncSchemaDriftRetry()
		e.log.WarnContext(ctx, "users.created_via missing, retrying insert without it", "kind", r.kind)
	})
	if err != nil {
		return Result{}, err
	}
	res.UserID = &u.ID
	r.advance(ctx, StateAdminUserCreated)

	if req.Org.Laboratory != nil {
		if err := postgres.SetLaboratoryDirectorTx(ctx, tx, orgID, u.ID); err != nil {
			return Result{}, err
		}
	}

	roleName := AdminRole(r.kind)
	roleID, err := membership.EnsureRoleTx(ctx, tx, roleName)
	if err != nil {
		return Result{}, err
	}
	res.Role = roleName
	r.advance(ctx, StateRoleResolved)

	targetType, targetID := req.Org.MembershipTarget(orgID)

	// the users trigger may already have added a default institution row
	purged, err := membership.PurgeTx(ctx, tx, u.ID, targetType, organization.KindInstitution)
	if err != nil {
		return Result{}, err
	}
	if purged > 0 {
		r.log.DebugContext(ctx, "purged trigger memberships", "user_id", u.ID, "rows", purged)
	}
	r.advance(ctx, StateStaleMembershipPurged)

	if err := membership.InsertTx(ctx, tx, membership.Membership{
		UserID:           u.ID,
		OrganizationType: targetType,
		OrganizationID:   &targetID,
		RoleID:           roleID,
	}); err != nil {
		return Result{}, err
	}
	r.advance(ctx, StateMembershipAssigned)

	return res, nil
}

func (e *Engine) insertOrganization(ctx context.Context, tx *sql.Tx, p organization.Payload) (int64, error) {
	switch {
	case p.Institution != nil:
		return postgres.InsertInstitutionTx(ctx, tx, *p.Institution)
	case p.Laboratory != nil:
		if err := postgres.LockInstitutionTx(ctx, tx, p.Laboratory.InstitutionID); err != nil {
			return 0, err
		}
		return postgres.InsertLaboratoryTx(ctx, tx, *p.Laboratory)
	case p.Supplier != nil:
		return postgres.InsertSupplierTx(ctx, tx, *p.Supplier)
	}
	return 0, organization.ErrUnknownKind
}

// notify runs after commit. Its failure is logged and never changes the
// result.
func (e *Engine) notify(ctx context.Context, req Request, res Result) {
	if e.notifier == nil {
		return
	}

	evt := notifications.OrganizationProvisioned{
		Event:          notifications.EventOrganizationProvisioned,
		Kind:           string(res.Kind),
		OrganizationID: res.OrganizationID,
		Name:           orgName(req.Org),
		AdminUserID:    res.UserID,
		Role:           res.Role,
		OccurredAt:     time.Now().UTC(),
	}
	if req.Admin != nil {
		evt.AdminEmail = user.NormalizeEmail(req.Admin.Email)
	}

	if err := e.notifier.OrganizationProvisioned(context.WithoutCancel(ctx), evt); err != nil {
		e.log.WarnContext(ctx, "provisioning notification failed",
			"kind", res.Kind, "organization_id", res.OrganizationID, "err", err)
	}
}

func orgName(p organization.Payload) string {
	switch {
	case p.Institution != nil:
		return p.Institution.Name
	case p.Laboratory != nil:
		return p.Laboratory.Name
	case p.Supplier != nil:
		return p.Supplier.Name
	}
	return ""
}
