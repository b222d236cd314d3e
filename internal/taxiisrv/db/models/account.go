package models

// Permission is an account's access level on a single collection.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionModify Permission = "modify"
)

// Account is the authenticated principal making a request. Accounts are managed outside this
// server; they arrive already resolved from a bearer token.
type Account struct {
	ID          string                `mapstructure:"account_id"`
	Username    string                `mapstructure:"username"`
	IsAdmin     bool                  `mapstructure:"is_admin"`
	Permissions map[string]Permission `mapstructure:"permissions"`
}
