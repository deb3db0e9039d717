package role

// Well-known role names. Roles are rows in the roles table and are created
// lazily, so this list is not exhaustive.
const (
	Student       = "student"
	Admin         = "admin"
	LabManager    = "lab_manager"
	ProviderAdmin = "provider_admin"
)

// Default is what a user without an institution membership is treated as.
const Default = Student

var descriptions = map[string]string{
	Student:       "Student",
	Admin:         "Platform administrator",
	LabManager:    "Laboratory manager",
	ProviderAdmin: "Provider administrator",
}

// Description returns the description used when a role has to be created.
func Description(name string) string {
	if d, ok := descriptions[name]; ok {
		return d
	}
	return "Role " + name
}
