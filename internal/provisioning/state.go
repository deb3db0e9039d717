package provisioning

type State string

const (
	StateInit                  State = "INIT"
	StateOrgCreated            State = "ORG_CREATED"
	StateAdminUserCreated      State = "ADMIN_USER_CREATED"
	StateRoleResolved          State = "ROLE_RESOLVED"
	StateStaleMembershipPurged State = "STALE_MEMBERSHIP_PURGED"
	StateMembershipAssigned    State = "MEMBERSHIP_ASSIGNED"
	StateCommitted             State = "COMMITTED"
	StateRolledBack            State = "ROLLED_BACK"
)
