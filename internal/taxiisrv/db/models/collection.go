package models

/*
     Column      |          Type           | Nullable | Default
-----------------+-------------------------+----------+---------
 id              | character varying(64)   | not null |
 api_root_id     | character varying(64)   | not null |
 title           | character varying(256)  | not null |
 description     | text                    |          |
 alias           | character varying(128)  |          |
 is_public       | boolean                 | not null | false
 is_public_write | boolean                 | not null | false
Indexes:
    "collections_pkey" PRIMARY KEY, btree (id)
    "collections_api_root_id_alias_key" UNIQUE CONSTRAINT, btree (api_root_id, alias)
Foreign-key constraints:
    FOREIGN KEY (api_root_id) REFERENCES api_roots(id) ON DELETE CASCADE
*/

// Collection is an independently permissioned set of versioned STIX objects within one
// API root. Alias, when set, is an alternative lookup key for ID.
type Collection struct {
	ID            string `db:"id" json:"id" yaml:"id"`
	APIRootID     string `db:"api_root_id" json:"api_root_id" yaml:"api_root_id"`
	Title         string `db:"title" json:"title" yaml:"title"`
	Description   string `db:"description" json:"description,omitempty" yaml:"description"`
	Alias         string `db:"alias" json:"alias,omitempty" yaml:"alias"`
	IsPublic      bool   `db:"is_public" json:"is_public" yaml:"is_public"`
	IsPublicWrite bool   `db:"is_public_write" json:"is_public_write" yaml:"is_public_write"`
}

// CanRead reports whether account may read from the collection. A nil account is anonymous.
func (c *Collection) CanRead(account *Account) bool {
	if c.IsPublic {
		return true
	}
	if account == nil {
		return false
	}
	if account.IsAdmin {
		return true
	}
	switch account.Permissions[c.ID] {
	case PermissionRead, PermissionWrite, PermissionModify:
		return true
	}
	return false
}

// CanWrite reports whether account may add objects to the collection. A nil account is
// anonymous.
func (c *Collection) CanWrite(account *Account) bool {
	if c.IsPublicWrite {
		return true
	}
	if account == nil {
		return false
	}
	if account.IsAdmin {
		return true
	}
	switch account.Permissions[c.ID] {
	case PermissionWrite, PermissionModify:
		return true
	}
	return false
}
