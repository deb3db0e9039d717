package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/provisioning"
	"github.com/gin-gonic/gin"
)

type Provisioner interface {
	Provision(ctx context.Context, req provisioning.Request) (provisioning.Result, error)
}

type ProvisioningHandler struct {
	engine Provisioner
	errs   ErrorMapper
}

func NewProvisioningHandler(engine Provisioner, errs ErrorMapper) *ProvisioningHandler {
	return &ProvisioningHandler{engine: engine, errs: errs}
}

// flatAdmin is the older request shape where admin fields sit next to the
// organization fields.
type flatAdmin struct {
	AdminEmail     string `json:"adminEmail"`
	AdminPassword  string `json:"adminPassword"`
	AdminFirstName string `json:"adminFirstName"`
	AdminLastName  string `json:"adminLastName"`
}

func (f flatAdmin) credentials() *provisioning.AdminCredentials {
	if strings.TrimSpace(f.AdminEmail) == "" && f.AdminPassword == "" {
		return nil
	}
	return &provisioning.AdminCredentials{
		Email:     f.AdminEmail,
		Password:  f.AdminPassword,
		FirstName: f.AdminFirstName,
		LastName:  f.AdminLastName,
	}
}

type createInstitutionRequest struct {
	organization.InstitutionInput
	Admin *provisioning.AdminCredentials `json:"admin"`
	flatAdmin
}

type createLaboratoryRequest struct {
	organization.LaboratoryInput
	Admin    *provisioning.AdminCredentials `json:"admin"`
	Director *provisioning.AdminCredentials `json:"director"`
}

type createSupplierWithAdminRequest struct {
	Provider *organization.SupplierInput   `json:"provider"`
	Admin    *provisioning.AdminCredentials `json:"admin"`
}

func (h *ProvisioningHandler) provision(ctx *gin.Context, req provisioning.Request, message string) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	res, err := h.engine.Provision(cctx, req)
	if err != nil {
		h.errs.Respond(ctx, err, "Could not create organization")
		return
	}

	RespondOK(ctx, http.StatusCreated, message, res)
}

func (h *ProvisioningHandler) CreateInstitution(ctx *gin.Context) {
	var body createInstitutionRequest
	if !BindJSON(ctx, &body) {
		return
	}

	admin := body.Admin
	if admin == nil {
		admin = body.flatAdmin.credentials()
	}

	inst := body.InstitutionInput
	h.provision(ctx, provisioning.Request{
		Org:   organization.Payload{Institution: &inst},
		Admin: admin,
	}, "Institution created")
}

func (h *ProvisioningHandler) CreateLaboratory(ctx *gin.Context) {
	institutionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body createLaboratoryRequest
	if !BindJSON(ctx, &body) {
		return
	}

	admin := body.Admin
	if admin == nil {
		admin = body.Director
	}

	lab := body.LaboratoryInput
	lab.InstitutionID = institutionID
	h.provision(ctx, provisioning.Request{
		Org:   organization.Payload{Laboratory: &lab},
		Admin: admin,
	}, "Laboratory created")
}

// CreateSupplierWithAdmin requires the admin payload.
func (h *ProvisioningHandler) CreateSupplierWithAdmin(ctx *gin.Context) {
	var body createSupplierWithAdminRequest
	if !BindJSON(ctx, &body) {
		return
	}

	h.provision(ctx, provisioning.Request{
		Org:          organization.Payload{Supplier: body.Provider},
		Admin:        body.Admin,
		RequireAdmin: true,
	}, "Supplier created")
}

func (h *ProvisioningHandler) CreateSupplier(ctx *gin.Context) {
	var body organization.SupplierInput
	if !BindJSON(ctx, &body) {
		return
	}

	h.provision(ctx, provisioning.Request{
		Org: organization.Payload{Supplier: &body},
	}, "Supplier created")
}
