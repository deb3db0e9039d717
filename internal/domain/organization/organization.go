package organization

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("organization not found")
	ErrInstitutionNotFound = errors.New("institution not found")
	ErrUnknownKind         = errors.New("unknown organization kind")
)

// Kind tags the concrete organization table. Its string value is what the
// organization_users.organization_type column stores.
type Kind string

const (
	KindInstitution Kind = "institution"
	KindLaboratory  Kind = "laboratory"
	KindSupplier    Kind = "provider"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInstitution, KindLaboratory, KindSupplier:
		return true
	}
	return false
}

type Institution struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        *string   `json:"type,omitempty"`
	Description *string   `json:"description,omitempty"`
	Website     *string   `json:"website,omitempty"`
	LogoURL     *string   `json:"logo_url,omitempty"`
	Country     *string   `json:"country,omitempty"`
	City        *string   `json:"city,omitempty"`
	Address     *string   `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Laboratory struct {
	ID            int64     `json:"id"`
	InstitutionID int64     `json:"institution_id"`
	DirectorID    *int64    `json:"director_id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Location      *string   `json:"location,omitempty"`
	ContactEmail  *string   `json:"contact_email,omitempty"`
	Website       *string   `json:"website,omitempty"`
	ResearchAreas *string   `json:"research_areas,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Supplier struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Website     *string   `json:"website,omitempty"`
	Country     *string   `json:"country,omitempty"`
	City        *string   `json:"city,omitempty"`
	Address     *string   `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InstitutionInput, LaboratoryInput and SupplierInput are the organization
// payloads accepted by provisioning. Exactly one is set on a Payload.
type InstitutionInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Type        *string `json:"type" validate:"omitempty,max=100"`
	Description *string `json:"description"`
	Website     *string `json:"website" validate:"omitempty,url"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	Address     *string `json:"address" validate:"omitempty,max=255"`
}

type LaboratoryInput struct {
	InstitutionID int64   `json:"-" validate:"required,gt=0"`
	Name          string  `json:"name" validate:"required,max=255"`
	Description   string  `json:"description" validate:"required"`
	Location      *string `json:"location" validate:"omitempty,max=255"`
	ContactEmail  *string `json:"contact_email" validate:"omitempty,email"`
	Website       *string `json:"website" validate:"omitempty,url"`
	ResearchAreas *string `json:"research_areas"`
}

type SupplierInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description"`
	Website     *string `json:"website" validate:"omitempty,url"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	Address     *string `json:"address" validate:"omitempty,max=255"`
}

// Payload is a closed union over the three organization kinds.
type Payload struct {
	Institution *InstitutionInput
	Laboratory  *LaboratoryInput
	Supplier    *SupplierInput
}

func (p Payload) Kind() (Kind, error) {
	set := 0
	var k Kind
	if p.Institution != nil {
		set++
		k = KindInstitution
	}
	if p.Laboratory != nil {
		set++
		k = KindLaboratory
	}
	if p.Supplier != nil {
		set++
		k = KindSupplier
	}
	if set != 1 {
		return "", ErrUnknownKind
	}
	return k, nil
}

// MembershipTarget is the (organization_type, organization_id) an admin of a
// freshly created organization is attached to. Laboratory managers belong to
// the parent institution so that role resolution, which reads institution
// memberships, sees them.
func (p Payload) MembershipTarget(orgID int64) (Kind, int64) {
	switch {
	case p.Laboratory != nil:
		return KindInstitution, p.Laboratory.InstitutionID
	case p.Supplier != nil:
		return KindSupplier, orgID
	default:
		return KindInstitution, orgID
	}
}
