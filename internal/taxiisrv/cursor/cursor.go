// Package cursor encodes and decodes the opaque "next" token clients use to resume paging.
//
// A token is the standard base64 encoding of "<date_added>|<object id>", where date_added is
// rendered in ISO 8601 with a "+00:00" offset and microseconds only when they are non-zero.
// The format is visible to clients and must stay stable across restarts and implementations.
package cursor

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
)

const separator = "|"

const (
	isoLayout       = "2006-01-02T15:04:05-07:00"
	isoLayoutMicros = "2006-01-02T15:04:05.000000-07:00"
)

// ErrInvalidToken is returned for tokens that cannot be decoded.
var ErrInvalidToken = apperrors.New("invalid next token").SetStatusCode(http.StatusBadRequest)

// Position is the resume point of a page: the last returned row's id and date_added.
type Position struct {
	ID        string
	DateAdded time.Time
}

// Encode returns the token for the row (id, dateAdded).
func Encode(id string, dateAdded time.Time) string {
	raw := formatISO(dateAdded) + separator + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode.
func Decode(token string) (Position, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Position{}, ErrInvalidToken.MsgErr("next token is not valid base64", err)
	}
	parts := strings.Split(string(raw), separator)
	if len(parts) != 2 {
		return Position{}, ErrInvalidToken.Msg("next token is malformed")
	}
	dateAdded, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Position{}, ErrInvalidToken.MsgErr("next token has an invalid timestamp", err)
	}
	return Position{
		ID:        parts[1],
		DateAdded: dateAdded.UTC(),
	}, nil
}

// Token returns Encode(p.ID, p.DateAdded).
func (p Position) Token() string {
	return Encode(p.ID, p.DateAdded)
}

func formatISO(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoLayoutMicros)
}
