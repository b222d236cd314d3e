package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/cursor"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

// whereClause accumulates AND-ed conditions with their '?' arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) addIn(column string, values []string) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+placeholders(len(values))+")", args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scope describes which rows of a collection a read operation considers.
type scope struct {
	collectionID string
	objectID     string // empty for collection-wide reads
	params       models.QueryParams
	plan         versions.Plan
	matchIDType  bool
}

// filters returns the conditions of sc without paging: the version plan, the match filters
// and the fixed object id.
func (s *Store) filters(sc scope) *whereClause {
	w := &whereClause{}
	w.add("collection_id = ?", sc.collectionID)
	if sc.objectID != "" {
		w.add("id = ?", sc.objectID)
	}
	if sc.matchIDType {
		w.addIn("id", sc.params.MatchID)
		w.addIn("type", sc.params.MatchType)
	}
	w.addIn("spec_version", sc.params.MatchSpecVersion)
	if cond, args := s.versionCondition(sc.collectionID, sc.plan); cond != "" {
		w.add(cond, args...)
	}
	return w
}

// versionCondition translates a plan into SQL. first and last are resolved per id over every
// version stored in the collection, before any other filter applies.
func (s *Store) versionCondition(collectionID string, plan versions.Plan) (string, []any) {
	if plan.All {
		return "", nil
	}
	var (
		parts []string
		args  []any
	)
	if plan.Last {
		parts = append(parts, "(id, version) IN (SELECT id, MAX(version) FROM stix_objects WHERE collection_id = ? GROUP BY id)")
		args = append(args, collectionID)
	}
	if plan.First {
		parts = append(parts, "(id, version) IN (SELECT id, MIN(version) FROM stix_objects WHERE collection_id = ? GROUP BY id)")
		args = append(args, collectionID)
	}
	if len(plan.Exact) > 0 {
		parts = append(parts, "version IN ("+placeholders(len(plan.Exact))+")")
		for _, v := range plan.Exact {
			args = append(args, s.timeArg(v))
		}
	}
	if len(parts) == 0 {
		// a plan that selects nothing
		return "1 = 0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// pagingConditions adds added_after and the cursor position to w.
func (s *Store) pagingConditions(w *whereClause, p models.QueryParams) {
	if p.AddedAfter != nil {
		w.add("date_added > ?", s.timeArg(*p.AddedAfter))
	}
	if p.Next != nil {
		at := s.timeArg(p.Next.DateAdded)
		w.add("(date_added > ? OR (date_added = ? AND id > ?))", at, at, p.Next.ID)
	}
}

// groupKey is the paging position of a row. Rows sharing a key cannot be told apart by a
// cursor, so a page never ends between them.
type groupKey struct {
	dateAdded time.Time
	id        string
}

func (k groupKey) same(o groupKey) bool {
	return k.id == o.id && k.dateAdded.Equal(o.dateAdded)
}

// rowReader projects stix_objects rows into T.
type rowReader[T any] struct {
	columns string
	scan    func(rowScanner) (T, groupKey, error)
}

// readPage runs the paged query described by sc. It fetches one row beyond the limit to
// compute More, and backs off to the previous group boundary when the limit falls inside a
// group. A single group larger than the limit is returned whole.
func readPage[T any](ctx context.Context, s *Store, q queryer, sc scope, rr rowReader[T]) (models.Page[T], error) {
	w := s.filters(sc)
	s.pagingConditions(w, sc.params)

	query := `SELECT ` + rr.columns + ` FROM stix_objects` + w.String() + ` ORDER BY date_added, id, version`
	args := w.args
	limit := sc.params.Limit
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit+1)
	}

	items, keys, err := queryRows(ctx, s, q, query, args, rr)
	if err != nil {
		return models.Page[T]{}, err
	}
	if limit <= 0 || len(items) <= limit {
		return models.Page[T]{Items: items}, nil
	}

	end := limit
	if keys[limit].same(keys[limit-1]) {
		for end > 0 && keys[end-1].same(keys[limit]) {
			end--
		}
	}
	if end > 0 {
		last := keys[end-1]
		return models.Page[T]{Items: items[:end], More: true, Next: cursor.Encode(last.id, last.dateAdded)}, nil
	}

	// the first group alone exceeds the limit
	group := keys[0]
	gw := s.filters(sc)
	gw.add("date_added = ?", s.timeArg(group.dateAdded))
	gw.add("id = ?", group.id)
	items, _, err = queryRows(ctx, s, q,
		`SELECT `+rr.columns+` FROM stix_objects`+gw.String()+` ORDER BY version`, gw.args, rr)
	if err != nil {
		return models.Page[T]{}, err
	}

	after := sc
	after.params.Next = &cursor.Position{ID: group.id, DateAdded: group.dateAdded}
	aw := s.filters(after)
	s.pagingConditions(aw, after.params)
	var more int
	if err := q.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM (SELECT 1 FROM stix_objects`+aw.String()+` LIMIT 1) t`), aw.args...).Scan(&more); err != nil {
		return models.Page[T]{}, err
	}
	page := models.Page[T]{Items: items, More: more > 0}
	if page.More {
		page.Next = cursor.Encode(group.id, group.dateAdded)
	}
	return page, nil
}

func queryRows[T any](ctx context.Context, s *Store, q queryer, query string, args []any, rr rowReader[T]) ([]T, []groupKey, error) {
	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		items []T
		keys  []groupKey
	)
	for rows.Next() {
		item, key, err := rr.scan(rows)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
		keys = append(keys, key)
	}
	return items, keys, rows.Err()
}

// objectExists reports whether the collection holds any version of objectID.
func (s *Store) objectExists(ctx context.Context, q queryer, collectionID, objectID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM (SELECT 1 FROM stix_objects WHERE collection_id = ? AND id = ? LIMIT 1) t`),
		collectionID, objectID).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return n > 0, nil
}
