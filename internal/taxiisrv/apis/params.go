package apis

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/cursor"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/stix"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

const (
	headerDateAddedFirst = "X-TAXII-Date-Added-First"
	headerDateAddedLast  = "X-TAXII-Date-Added-Last"
)

// queryParams reads the paging and filter parameters of a read request.
func (a *API) queryParams(r *http.Request) (models.QueryParams, error) {
	q := r.URL.Query()
	var params models.QueryParams

	limit, err := a.limit(q.Get("limit"))
	if err != nil {
		return params, err
	}
	params.Limit = limit

	if v := q.Get("added_after"); v != "" {
		t, err := stix.ParseTimestamp(v)
		if err != nil {
			return params, httpx.ErrInvalidRequest("invalid added_after value: " + v)
		}
		params.AddedAfter = &t
	}
	if v := q.Get("next"); v != "" {
		// unescaped "+" in a base64 token arrives as a space
		pos, err := cursor.Decode(strings.ReplaceAll(v, " ", "+"))
		if err != nil {
			return params, err
		}
		params.Next = &pos
	}

	params.MatchID = listParam(q, "match[id]")
	params.MatchType = listParam(q, "match[type]")
	params.MatchSpecVersion = listParam(q, "match[spec_version]")
	params.MatchVersion, err = versions.ParseList(q["match[version]"])
	if err != nil {
		return params, err
	}
	return params, nil
}

func (a *API) limit(v string) (int, error) {
	if v == "" {
		return a.settings.DefaultPageSize, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, httpx.ErrInvalidRequest("limit must be a positive integer")
	}
	if a.settings.MaxPageSize > 0 && n > a.settings.MaxPageSize {
		n = a.settings.MaxPageSize
	}
	return n, nil
}

// listParam splits every value of key on commas. An absent or empty parameter yields nil.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, value := range q[key] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// dateAddedHeaders reports the date_added range of a page.
func dateAddedHeaders[T models.Dated](items []T) http.Header {
	h := http.Header{}
	if first, last, ok := models.DateAddedRange(items); ok {
		h.Set(headerDateAddedFirst, models.FormatTimestamp(first))
		h.Set(headerDateAddedLast, models.FormatTimestamp(last))
	}
	return h
}
