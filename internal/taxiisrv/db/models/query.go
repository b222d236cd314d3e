package models

import (
	"time"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/cursor"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

// QueryParams are the filters and paging arguments shared by the read operations. A nil or
// empty list is an absent filter. Limit <= 0 means unbounded.
type QueryParams struct {
	Limit            int
	AddedAfter       *time.Time
	Next             *cursor.Position
	MatchID          []string
	MatchType        []string
	MatchVersion     versions.Selectors
	MatchSpecVersion []string
}
