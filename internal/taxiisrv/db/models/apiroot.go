package models

/*
   Column    |          Type           | Nullable | Default
-------------+-------------------------+----------+---------
 id          | character varying(64)   | not null |
 title       | character varying(256)  | not null |
 description | text                    |          |
 is_default  | boolean                 | not null | false
 is_public   | boolean                 | not null | false
Indexes:
    "api_roots_pkey" PRIMARY KEY, btree (id)
*/

// APIRoot is a named partition of the server hosting a set of collections.
type APIRoot struct {
	ID          string `db:"id" json:"id" yaml:"id"`
	Title       string `db:"title" json:"title" yaml:"title"`
	Description string `db:"description" json:"description,omitempty" yaml:"description"`
	IsDefault   bool   `db:"is_default" json:"default" yaml:"default"`
	IsPublic    bool   `db:"is_public" json:"is_public" yaml:"is_public"`
}
