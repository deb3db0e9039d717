package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type OrganizationStore interface {
	ListInstitutions(ctx context.Context, limit, offset int) ([]organization.Institution, error)
	GetInstitution(ctx context.Context, id int64) (organization.Institution, error)
	ListLaboratories(ctx context.Context, institutionID int64) ([]organization.Laboratory, error)
	GetLaboratory(ctx context.Context, id int64) (organization.Laboratory, error)
	ListSuppliers(ctx context.Context, limit, offset int) ([]organization.Supplier, error)
	GetSupplier(ctx context.Context, id int64) (organization.Supplier, error)
	Delete(ctx context.Context, kind organization.Kind, id int64) error
}

type OrganizationsHandler struct {
	store OrganizationStore
	errs  ErrorMapper
}

func NewOrganizationsHandler(store OrganizationStore, errs ErrorMapper) *OrganizationsHandler {
	return &OrganizationsHandler{store: store, errs: errs}
}

// page reads limit/offset query params, clamping limit to maxPageLimit.
func page(ctx *gin.Context) (limit, offset int) {
	limit = defaultPageLimit
	if v, err := strconv.Atoi(ctx.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v, err := strconv.Atoi(ctx.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func (h *OrganizationsHandler) ListInstitutions(ctx *gin.Context) {
	limit, offset := page(ctx)

	items, err := h.store.ListInstitutions(ctx.Request.Context(), limit, offset)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not list institutions")
		return
	}
	RespondOK(ctx, http.StatusOK, "Institutions", gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *OrganizationsHandler) GetInstitution(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	inst, err := h.store.GetInstitution(ctx.Request.Context(), id)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not load institution")
		return
	}
	RespondOKWithETag(ctx, "Institution", inst)
}

func (h *OrganizationsHandler) ListLaboratories(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetInstitution(ctx.Request.Context(), id); err != nil {
		h.errs.Respond(ctx, err, "Could not list laboratories")
		return
	}

	labs, err := h.store.ListLaboratories(ctx.Request.Context(), id)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not list laboratories")
		return
	}
	RespondOKWithETag(ctx, "Laboratories", gin.H{"items": labs})
}

func (h *OrganizationsHandler) GetLaboratory(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	lab, err := h.store.GetLaboratory(ctx.Request.Context(), id)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not load laboratory")
		return
	}
	RespondOKWithETag(ctx, "Laboratory", lab)
}

func (h *OrganizationsHandler) ListSuppliers(ctx *gin.Context) {
	limit, offset := page(ctx)

	items, err := h.store.ListSuppliers(ctx.Request.Context(), limit, offset)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not list suppliers")
		return
	}
	RespondOK(ctx, http.StatusOK, "Suppliers", gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *OrganizationsHandler) GetSupplier(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	s, err := h.store.GetSupplier(ctx.Request.Context(), id)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not load supplier")
		return
	}
	RespondOKWithETag(ctx, "Supplier", s)
}

// Delete returns a handler removing organizations of the given kind.
func (h *OrganizationsHandler) Delete(kind organization.Kind) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := pathID(ctx, "id")
		if !ok {
			return
		}

		if err := h.store.Delete(ctx.Request.Context(), kind, id); err != nil {
			h.errs.Respond(ctx, err, "Could not delete organization")
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}
