package notifications

import (
	"context"
	"time"
)

const EventOrganizationProvisioned = "organization.provisioned"

// OrganizationProvisioned is published after a provisioning transaction
// commits. It never carries credentials.
type OrganizationProvisioned struct {
	Event          string    `json:"event"`
	Kind           string    `json:"kind"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	AdminUserID    *int64    `json:"admin_user_id,omitempty"`
	AdminEmail     string    `json:"admin_email,omitempty"`
	Role           string    `json:"role,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Notifier interface {
	OrganizationProvisioned(ctx context.Context, evt OrganizationProvisioned) error
}
