package models

import (
	"encoding/json"
	"time"
)

/*
     Column      |           Type           | Nullable | Default
-----------------+--------------------------+----------+---------
 collection_id   | character varying(64)    | not null |
 id              | character varying(256)   | not null |
 type            | character varying(128)   | not null |
 spec_version    | character varying(16)    | not null |
 date_added      | timestamp with time zone | not null |
 version         | timestamp with time zone | not null |
 serialized_data | bytea                    | not null |
Indexes:
    "stix_objects_pkey" PRIMARY KEY, btree (collection_id, id, version)
    "stix_objects_paging_idx" btree (collection_id, date_added, id)
*/

// STIXObject is one version of a STIX object stored in a collection. SerializedData holds
// the object exactly as it was submitted.
type STIXObject struct {
	CollectionID   string          `db:"collection_id"`
	ID             string          `db:"id"`
	Type           string          `db:"type"`
	SpecVersion    string          `db:"spec_version"`
	DateAdded      time.Time       `db:"date_added"`
	Version        time.Time       `db:"version"`
	SerializedData json.RawMessage `db:"serialized_data"`
}

// ManifestRecord describes one version of an object without its payload.
type ManifestRecord struct {
	ID          string
	DateAdded   time.Time
	Version     time.Time
	SpecVersion string
}

// VersionRecord is one version of a fixed object id.
type VersionRecord struct {
	DateAdded time.Time
	Version   time.Time
}

// Page is one page of an ordered query result. Next is set only when More is true.
type Page[T any] struct {
	Items []T
	More  bool
	Next  string
}

// Dated is implemented by every row type that carries a date_added.
type Dated interface {
	GetDateAdded() time.Time
}

func (o STIXObject) GetDateAdded() time.Time     { return o.DateAdded }
func (m ManifestRecord) GetDateAdded() time.Time { return m.DateAdded }
func (v VersionRecord) GetDateAdded() time.Time  { return v.DateAdded }

// DateAddedRange returns the smallest and largest date_added among items. ok is false for an
// empty page, in which case no range headers should be sent.
func DateAddedRange[T Dated](items []T) (first, last time.Time, ok bool) {
	for i, item := range items {
		d := item.GetDateAdded()
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}
	return first, last, len(items) > 0
}
