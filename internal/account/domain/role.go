package domain

// Built-in roles. Both are created by the initial migration.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)
