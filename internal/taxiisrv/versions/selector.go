// Package versions resolves match[version] selectors against the versions known for
// STIX object ids.
//
// A selector is one of first, last, all or an exact version timestamp. A list of selectors
// is a union: each selector is resolved per object id and the results are merged. An empty
// list means last.
package versions

import (
	"net/http"
	"strings"
	"time"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
)

// ErrInvalidSelector is returned for match[version] values that are neither a keyword nor a
// timestamp.
var ErrInvalidSelector = apperrors.New("invalid version selector").SetStatusCode(http.StatusBadRequest)

// Kind discriminates Selector.
type Kind int

const (
	KindLast Kind = iota
	KindFirst
	KindAll
	KindExact
)

func (k Kind) String() string {
	switch k {
	case KindFirst:
		return "first"
	case KindLast:
		return "last"
	case KindAll:
		return "all"
	case KindExact:
		return "exact"
	}
	return "unknown"
}

// Selector is a single match[version] term.
type Selector struct {
	kind Kind
	at   time.Time
}

// First selects the oldest version of every id.
func First() Selector { return Selector{kind: KindFirst} }

// Last selects the newest version of every id.
func Last() Selector { return Selector{kind: KindLast} }

// All selects every version.
func All() Selector { return Selector{kind: KindAll} }

// Exact selects the version equal to t, for every id that has it. Stored versions carry
// microsecond precision, so t is truncated to match.
func Exact(t time.Time) Selector {
	return Selector{kind: KindExact, at: t.UTC().Truncate(time.Microsecond)}
}

// Kind returns the selector kind.
func (s Selector) Kind() Kind { return s.kind }

// Time returns the timestamp of an Exact selector and the zero time otherwise.
func (s Selector) Time() time.Time { return s.at }

func (s Selector) String() string {
	if s.kind == KindExact {
		return s.at.Format(time.RFC3339Nano)
	}
	return s.kind.String()
}

// Parse converts a wire value into a Selector.
func Parse(v string) (Selector, error) {
	switch strings.TrimSpace(v) {
	case "first":
		return First(), nil
	case "last":
		return Last(), nil
	case "all":
		return All(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if err != nil {
		return Selector{}, ErrInvalidSelector.MsgErr("invalid match[version] value: "+v, err)
	}
	return Exact(t), nil
}

// Selectors is a union of selectors.
type Selectors []Selector

// ParseList parses query values, each of which may hold a comma separated list.
// Empty values are skipped, so ParseList(nil) returns an empty list.
func ParseList(values []string) (Selectors, error) {
	var out Selectors
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := Parse(part)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}
