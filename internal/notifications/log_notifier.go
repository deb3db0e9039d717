package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier is the default when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OrganizationProvisioned(ctx context.Context, evt OrganizationProvisioned) error {
	n.log.InfoContext(ctx, "notification."+EventOrganizationProvisioned,
		"kind", evt.Kind,
		"organization_id", evt.OrganizationID,
		"name", evt.Name,
		"admin_user_id", evt.AdminUserID,
		"role", evt.Role,
	)
	return nil
}
