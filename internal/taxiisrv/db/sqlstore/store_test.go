package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/cursor"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dberror"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/versions"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// storeFactory returns an empty, migrated store for one test.
type storeFactory func(t *testing.T, opts ...Option) *Store

var (
	t1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	t3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

func stixObject(id string, modified time.Time) json.RawMessage {
	typ := strings.SplitN(id, "--", 2)[0]
	return json.RawMessage(fmt.Sprintf(`{"type":%q,"id":%q,"spec_version":"2.1","created":%q,"modified":%q}`,
		typ, id, t1.Format(time.RFC3339Nano), modified.Format(time.RFC3339Nano)))
}

func seedCatalog(t *testing.T, s *Store) (*models.APIRoot, *models.Collection) {
	t.Helper()
	ctx := context.Background()
	root := &models.APIRoot{ID: "api1", Title: "API 1", IsDefault: true}
	require.Nil(t, s.AddAPIRoot(ctx, root))
	coll := &models.Collection{ID: "coll1", APIRootID: root.ID, Title: "Collection 1", Alias: "one"}
	require.Nil(t, s.AddCollection(ctx, coll))
	return root, coll
}

func addObjects(t *testing.T, s *Store, root *models.APIRoot, coll *models.Collection, objs ...json.RawMessage) *models.Job {
	t.Helper()
	job, err := s.AddObjects(context.Background(), root.ID, coll.ID, objs)
	require.Nil(t, err)
	require.NotNil(t, job)
	return job
}

func manifestVersions(items []models.ManifestRecord) []string {
	var out []string
	for _, m := range items {
		out = append(out, m.ID+"@"+models.FormatTimestamp(m.Version))
	}
	return out
}

func objectVersions(items []models.STIXObject) []string {
	var out []string
	for _, o := range items {
		out = append(out, o.ID+"@"+models.FormatTimestamp(o.Version))
	}
	return out
}

func ver(id string, t time.Time) string {
	return id + "@" + models.FormatTimestamp(t)
}

func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("catalog", func(t *testing.T) { testCatalog(t, newStore) })
	t.Run("default api root switch", func(t *testing.T) { testDefaultAPIRoot(t, newStore) })
	t.Run("idempotent ingestion", func(t *testing.T) { testIdempotentIngestion(t, newStore) })
	t.Run("concurrent ingestion", func(t *testing.T) { testConcurrentIngestion(t, newStore) })
	t.Run("partial failure", func(t *testing.T) { testPartialFailure(t, newStore) })
	t.Run("unknown collection", func(t *testing.T) { testUnknownCollection(t, newStore) })
	t.Run("version selectors", func(t *testing.T) { testVersionSelectors(t, newStore) })
	t.Run("manifest scenario", func(t *testing.T) { testManifestScenario(t, newStore) })
	t.Run("filters", func(t *testing.T) { testFilters(t, newStore) })
	t.Run("pagination", func(t *testing.T) { testPagination(t, newStore) })
	t.Run("pagination with shared date_added", func(t *testing.T) { testPaginationSharedDateAdded(t, newStore) })
	t.Run("get object", func(t *testing.T) { testGetObject(t, newStore) })
	t.Run("get versions", func(t *testing.T) { testGetVersions(t, newStore) })
	t.Run("delete object", func(t *testing.T) { testDeleteObject(t, newStore) })
	t.Run("job details", func(t *testing.T) { testJobDetails(t, newStore) })
	t.Run("job cleanup", func(t *testing.T) { testJobCleanup(t, newStore) })
	t.Run("compression", func(t *testing.T) { testCompression(t, newStore) })
}

func testCatalog(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)

	r, err := s.GetAPIRoot(ctx, "missing")
	assert.Nil(t, err)
	assert.Nil(t, r)

	root, coll := seedCatalog(t, s)

	r, err = s.GetAPIRoot(ctx, root.ID)
	require.Nil(t, err)
	require.NotNil(t, r)
	assert.Equal(t, *root, *r)

	// generated id
	other := &models.APIRoot{Title: "API 2", Description: "second", IsPublic: true}
	require.Nil(t, s.AddAPIRoot(ctx, other))
	assert.NotEmpty(t, other.ID)

	roots, err := s.GetAPIRoots(ctx)
	require.Nil(t, err)
	assert.Len(t, roots, 2)

	err = s.AddAPIRoot(ctx, &models.APIRoot{ID: root.ID, Title: "dup"})
	assert.True(t, errors.Is(err, dberror.ErrAlreadyExists))

	// lookup by id and by alias
	c, err := s.GetCollection(ctx, root.ID, coll.ID)
	require.Nil(t, err)
	require.NotNil(t, c)
	assert.Equal(t, *coll, *c)
	c, err = s.GetCollection(ctx, root.ID, "one")
	require.Nil(t, err)
	require.NotNil(t, c)
	assert.Equal(t, coll.ID, c.ID)

	// wrong api root
	c, err = s.GetCollection(ctx, other.ID, coll.ID)
	assert.Nil(t, err)
	assert.Nil(t, c)
	c, err = s.GetCollection(ctx, root.ID, "nope")
	assert.Nil(t, err)
	assert.Nil(t, c)

	// alias conflicts within a root, not across roots
	err = s.AddCollection(ctx, &models.Collection{APIRootID: root.ID, Title: "dup alias", Alias: "one"})
	assert.True(t, errors.Is(err, dberror.ErrAlreadyExists))
	require.Nil(t, s.AddCollection(ctx, &models.Collection{APIRootID: other.ID, Title: "same alias", Alias: "one"}))

	// empty aliases never conflict
	require.Nil(t, s.AddCollection(ctx, &models.Collection{APIRootID: root.ID, Title: "no alias 1"}))
	require.Nil(t, s.AddCollection(ctx, &models.Collection{APIRootID: root.ID, Title: "no alias 2"}))

	err = s.AddCollection(ctx, &models.Collection{APIRootID: "missing", Title: "orphan"})
	assert.True(t, errors.Is(err, dberror.ErrNotFound))

	err = s.AddCollection(ctx, &models.Collection{APIRootID: root.ID})
	assert.True(t, errors.Is(err, dberror.ErrInvalidInput))

	colls, err := s.GetCollections(ctx, root.ID)
	require.Nil(t, err)
	assert.Len(t, colls, 3)
}

func testDefaultAPIRoot(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)

	require.Nil(t, s.AddAPIRoot(ctx, &models.APIRoot{ID: "a", Title: "A", IsDefault: true}))
	require.Nil(t, s.AddAPIRoot(ctx, &models.APIRoot{ID: "b", Title: "B", IsDefault: true}))
	require.Nil(t, s.AddAPIRoot(ctx, &models.APIRoot{ID: "c", Title: "C"}))

	roots, err := s.GetAPIRoots(ctx)
	require.Nil(t, err)
	var defaults []string
	for _, r := range roots {
		if r.IsDefault {
			defaults = append(defaults, r.ID)
		}
	}
	assert.Equal(t, []string{"b"}, defaults)

	// concurrent switches leave exactly one default
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.AddAPIRoot(ctx, &models.APIRoot{ID: fmt.Sprintf("d%d", i), Title: "D", IsDefault: true}); err != nil {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i])
	}

	roots, err = s.GetAPIRoots(ctx)
	require.Nil(t, err)
	defaults = nil
	for _, r := range roots {
		if r.IsDefault {
			defaults = append(defaults, r.ID)
		}
	}
	require.Len(t, defaults, 1)
	assert.True(t, strings.HasPrefix(defaults[0], "d"))
}

func testIdempotentIngestion(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)
	root, coll := seedCatalog(t, s)

	obj := stixObject("indicator--a", t1)
	j1 := addObjects(t, s, root, coll, obj)
	j2 := addObjects(t, s, root, coll, obj)
	for _, j := range []*models.Job{j1, j2} {
		assert.Equal(t, models.JobStatusComplete, j.Status)
		assert.Equal(t, 1, j.SuccessCount)
		require.Len(t, j.Details, 1)
		assert.Equal(t, models.JobDetailSuccess, j.Details[0].Status)
	}

	page, err := s.GetObjects(ctx, coll.ID, models.QueryParams{MatchVersion: versions.Selectors{versions.All()}})
	require.Nil(t, err)
	assert.Len(t, page.Items, 1)
	assert.JSONEq(t, string(obj), string(page.Items[0].SerializedData))
}

func testConcurrentIngestion(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)
	root, coll := seedCatalog(t, s)

	obj := stixObject("indicator--race", t1)
	var wg sync.WaitGroup
	jobs := make([]*models.Job, 4)
	errs := make([]error, 4)
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := s.AddObjects(ctx, root.ID, coll.ID, []json.RawMessage{obj})
			jobs[i] = job
			if err != nil {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	for i := range jobs {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, jobs[i].SuccessCount)
	}
	page, err := s.GetObjects(ctx, coll.ID, models.QueryParams{MatchVersion: versions.Selectors{versions.All()}})
	require.Nil(t, err)
	assert.Len(t, page.Items, 1)
}

func testPartialFailure(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)
	root, coll := seedCatalog(t, s)

	job := addObjects(t, s, root, coll,
		stixObject("indicator--a", t1),
		json.RawMessage(`{"type":"indicator","modified":"2024-01-01T00:00:00Z"}`),
		stixObject("indicator--b", t1),
	)
	assert.Equal(t, 3, job.TotalCount)
	assert.Equal(t, 2, job.SuccessCount)
	assert.Equal(t, 1, job.FailureCount)
	assert.Equal(t, 0, job.PendingCount)
	require.Len(t, job.Details, 3)
	assert.Equal(t, models.JobDetailFailure, job.Details[1].Status)
	assert.NotEmpty(t, job.Details[1].Message)
	assert.Nil(t, job.Details[1].Version)
	require.NotNil(t, job.Details[0].Version)
	assert.True(t, t1.Equal(*job.Details[0].Version))

	page, err := s.GetManifest(ctx, coll.ID, models.QueryParams{})
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{ver("indicator--a", t1), ver("indicator--b", t1)}, manifestVersions(page.Items))
}

func testUnknownCollection(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)
	root, coll := seedCatalog(t, s)
	require.Nil(t, s.AddAPIRoot(ctx, &models.APIRoot{ID: "api2", Title: "API 2"}))

	_, err := s.AddObjects(ctx, root.ID, "missing", []json.RawMessage{stixObject("indicator--a", t1)})
	assert.True(t, errors.Is(err, dberror.ErrNotFound))

	_, err = s.AddObjects(ctx, "api2", coll.ID, []json.RawMessage{stixObject("indicator--a", t1)})
	assert.True(t, errors.Is(err, dberror.ErrNotFound))

	page, err := s.GetObjects(ctx, coll.ID, models.QueryParams{})
	require.Nil(t, err)
	assert.Empty(t, page.Items)
}

func testVersionSelectors(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	// a frozen clock gives every version the same date_added, so rows order by version
	s := newStore(t, WithClock(newTestClock(t1).Now))
	root, coll := seedCatalog(t, s)
	addObjects(t, s, root, coll,
		stixObject("indicator--a", t2),
		stixObject("indicator--a", t1),
		stixObject("indicator--a", t3),
	)

	tests := []struct {
		name string
		sel  versions.Selectors
		want []string
	}{
		{"default", nil, []string{ver("indicator--a", t3)}},
		{"first", versions.Selectors{versions.First()}, []string{ver("indicator--a", t1)}},
		{"last", versions.Selectors{versions.Last()}, []string{ver("indicator--a", t3)}},
		{"all", versions.Selectors{versions.All()}, []string{ver("indicator--a", t1), ver("indicator--a", t2), ver("indicator--a", t3)}},
		{"exact", versions.Selectors{versions.Exact(t2)}, []string{ver("indicator--a", t2)}},
		{"exact and last", versions.Selectors{versions.Exact(t2), versions.Last()}, []string{ver("indicator--a", t2), ver("indicator--a", t3)}},
		{"exact unknown", versions.Selectors{versions.Exact(t3.Add(time.Hour))}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.GetManifest(ctx, coll.ID, models.QueryParams{MatchVersion: tt.sel})
			require.Nil(t, err)
			assert.Equal(t, tt.want, manifestVersions(page.Items))
			assert.False(t, page.More)
		})
	}
}

func testManifestScenario(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	clock := newTestClock(t1)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)

	addObjects(t, s, root, coll, stixObject("indicator--a", t1))
	clock.Set(t2)
	addObjects(t, s, root, coll, stixObject("malware--b", t2))
	clock.Set(t3)
	addObjects(t, s, root, coll, stixObject("indicator--a", t3))

	page, err := s.GetManifest(ctx, coll.ID, models.QueryParams{MatchVersion: versions.Selectors{versions.Last()}})
	require.Nil(t, err)
	assert.Equal(t, []string{ver("malware--b", t2), ver("indicator--a", t3)}, manifestVersions(page.Items))
	assert.False(t, page.More)
	assert.Empty(t, page.Next)

	first, last, ok := models.DateAddedRange(page.Items)
	require.True(t, ok)
	assert.True(t, t2.Equal(first))
	assert.True(t, t3.Equal(last))

	page, err = s.GetManifest(ctx, coll.ID, models.QueryParams{Limit: 1})
	require.Nil(t, err)
	assert.Equal(t, []string{ver("malware--b", t2)}, manifestVersions(page.Items))
	assert.True(t, page.More)
	assert.Equal(t, cursor.Encode("malware--b", t2), page.Next)

	// added_after excludes the boundary
	page, err = s.GetManifest(ctx, coll.ID, models.QueryParams{AddedAfter: &t2, MatchVersion: versions.Selectors{versions.All()}})
	require.Nil(t, err)
	assert.Equal(t, []string{ver("indicator--a", t3)}, manifestVersions(page.Items))
}

func testFilters(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	clock := newTestClock(t1)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)

	addObjects(t, s, root, coll,
		stixObject("indicator--a", t1),
		stixObject("malware--b", t1),
		json.RawMessage(`{"type":"tool","id":"tool--c","spec_version":"2.0","modified":"2024-01-01T00:00:00Z"}`),
	)
	clock.Advance(time.Hour)
	// the latest version of a is 2.0; a version filter still resolves against all versions
	addObjects(t, s, root, coll,
		json.RawMessage(`{"type":"indicator","id":"indicator--a","spec_version":"2.0","modified":"2024-01-02T00:00:00Z"}`))

	tests := []struct {
		name   string
		params models.QueryParams
		want   []string
	}{
		{"match id", models.QueryParams{MatchID: []string{"malware--b", "tool--c"}}, []string{ver("malware--b", t1), ver("tool--c", t1)}},
		{"match type", models.QueryParams{MatchType: []string{"indicator"}}, []string{ver("indicator--a", t2)}},
		{"match spec_version", models.QueryParams{MatchSpecVersion: []string{"2.1"}}, []string{ver("malware--b", t1)}},
		{"match spec_version all", models.QueryParams{MatchSpecVersion: []string{"2.1"}, MatchVersion: versions.Selectors{versions.All()}},
			[]string{ver("indicator--a", t1), ver("malware--b", t1)}},
		{"combined", models.QueryParams{MatchID: []string{"tool--c"}, MatchType: []string{"indicator"}}, nil},
		{"empty lists are absent", models.QueryParams{MatchID: []string{}, MatchType: []string{}},
			[]string{ver("malware--b", t1), ver("tool--c", t1), ver("indicator--a", t2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.GetObjects(ctx, coll.ID, tt.params)
			require.Nil(t, err)
			assert.Equal(t, tt.want, objectVersions(page.Items))
		})
	}
}

// collectAll follows next tokens until the last page and returns every visited version.
func collectAll(t *testing.T, s *Store, collectionID string, limit int) []string {
	t.Helper()
	ctx := context.Background()
	params := models.QueryParams{Limit: limit, MatchVersion: versions.Selectors{versions.All()}}
	var visited []string
	for i := 0; i < 100; i++ {
		page, err := s.GetObjects(ctx, collectionID, params)
		require.Nil(t, err)
		visited = append(visited, objectVersions(page.Items)...)
		if !page.More {
			assert.Empty(t, page.Next)
			return visited
		}
		require.NotEmpty(t, page.Items)
		pos, derr := cursor.Decode(page.Next)
		require.NoError(t, derr)
		params.Next = &pos
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func testPagination(t *testing.T, newStore storeFactory) {
	clock := newTestClock(t1)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)

	var all []string
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("indicator--%02d", i)
		addObjects(t, s, root, coll, stixObject(id, t1))
		all = append(all, ver(id, t1))
		clock.Advance(time.Second)
	}

	for _, limit := range []int{0, 1, 2, 3, 7, 10} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			assert.Equal(t, all, collectAll(t, s, coll.ID, limit))
		})
	}
}

func testPaginationSharedDateAdded(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	clock := newTestClock(t1)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)

	// one batch at a frozen clock: every row shares date_added, and a has three versions
	addObjects(t, s, root, coll,
		stixObject("indicator--0", t1),
		stixObject("indicator--a", t1),
		stixObject("indicator--a", t2),
		stixObject("indicator--a", t3),
		stixObject("indicator--b", t1),
		stixObject("indicator--c", t1),
	)
	all := []string{
		ver("indicator--0", t1),
		ver("indicator--a", t1), ver("indicator--a", t2), ver("indicator--a", t3),
		ver("indicator--b", t1), ver("indicator--c", t1),
	}
	for _, limit := range []int{1, 2, 3, 4, 5, 6} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			assert.Equal(t, all, collectAll(t, s, coll.ID, limit))
		})
	}

	// the limit falls inside the group of a: the page backs off to the group boundary
	params := models.QueryParams{Limit: 2, MatchVersion: versions.Selectors{versions.All()}}
	page, err := s.GetObjects(ctx, coll.ID, params)
	require.Nil(t, err)
	assert.Equal(t, all[:1], objectVersions(page.Items))
	assert.True(t, page.More)
	assert.Equal(t, cursor.Encode("indicator--0", t1), page.Next)

	// the group of a is larger than the limit and is returned whole
	params.Next = &cursor.Position{ID: "indicator--0", DateAdded: t1}
	page, err = s.GetObjects(ctx, coll.ID, params)
	require.Nil(t, err)
	assert.Equal(t, all[1:4], objectVersions(page.Items))
	assert.True(t, page.More)
	assert.Equal(t, cursor.Encode("indicator--a", t1), page.Next)
}

func testGetObject(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)
	root, coll := seedCatalog(t, s)
	addObjects(t, s, root, coll,
		stixObject("indicator--a", t1),
		stixObject("indicator--a", t2),
		stixObject("indicator--b", t1),
	)

	page, err := s.GetObject(ctx, coll.ID, "indicator--missing", models.QueryParams{})
	require.Nil(t, err)
	assert.Nil(t, page)

	page, err = s.GetObject(ctx, coll.ID, "indicator--a", models.QueryParams{})
	require.Nil(t, err)
	require.NotNil(t, page)
	assert.Equal(t, []string{ver("indicator--a", t2)}, objectVersions(page.Items))

	// match id and type are ignored
	page, err = s.GetObject(ctx, coll.ID, "indicator--a", models.QueryParams{
		MatchID: []string{"indicator--b"}, MatchType: []string{"malware"}, MatchVersion: versions.Selectors{versions.All()},
	})
	require.Nil(t, err)
	require.NotNil(t, page)
	assert.Equal(t, []string{ver("indicator--a", t1), ver("indicator--a", t2)}, objectVersions(page.Items))

	// found but filtered to nothing
	page, err = s.GetObject(ctx, coll.ID, "indicator--a", models.QueryParams{MatchSpecVersion: []string{"2.0"}})
	require.Nil(t, err)
	require.NotNil(t, page)
	assert.Empty(t, page.Items)
	assert.False(t, page.More)
}

func testGetVersions(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	clock := newTestClock(t1)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)
	addObjects(t, s, root, coll, stixObject("indicator--a", t1))
	clock.Advance(time.Minute)
	addObjects(t, s, root, coll, stixObject("indicator--a", t2))
	clock.Advance(time.Minute)
	addObjects(t, s, root, coll, stixObject("indicator--a", t3))

	page, err := s.GetVersions(ctx, coll.ID, "indicator--missing", models.QueryParams{})
	require.Nil(t, err)
	assert.Nil(t, page)

	page, err = s.GetVersions(ctx, coll.ID, "indicator--a", models.QueryParams{MatchVersion: versions.Selectors{versions.Last()}})
	require.Nil(t, err)
	require.NotNil(t, page)
	require.Len(t, page.Items, 3)
	assert.True(t, t1.Equal(page.Items[0].Version))
	assert.True(t, t1.Equal(page.Items[0].DateAdded))
	assert.True(t, t3.Equal(page.Items[2].Version))

	page, err = s.GetVersions(ctx, coll.ID, "indicator--a", models.QueryParams{Limit: 2})
	require.Nil(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.More)
	assert.NotEmpty(t, page.Next)
}

func testDeleteObject(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t)
	root, coll := seedCatalog(t, s)
	addObjects(t, s, root, coll,
		stixObject("indicator--a", t1),
		stixObject("indicator--a", t2),
		stixObject("indicator--a", t3),
		stixObject("indicator--b", t1),
	)
	all := models.QueryParams{MatchVersion: versions.Selectors{versions.All()}}

	require.Nil(t, s.DeleteObject(ctx, coll.ID, "indicator--missing", nil, nil))

	require.Nil(t, s.DeleteObject(ctx, coll.ID, "indicator--a", versions.Selectors{versions.Exact(t2)}, nil))
	page, err := s.GetObjects(ctx, coll.ID, all)
	require.Nil(t, err)
	assert.Equal(t, []string{ver("indicator--a", t1), ver("indicator--a", t3), ver("indicator--b", t1)}, objectVersions(page.Items))

	// spec_version filter that matches nothing
	require.Nil(t, s.DeleteObject(ctx, coll.ID, "indicator--a", nil, []string{"2.0"}))
	page, err = s.GetObjects(ctx, coll.ID, all)
	require.Nil(t, err)
	assert.Len(t, page.Items, 3)

	require.Nil(t, s.DeleteObject(ctx, coll.ID, "indicator--a", versions.Selectors{versions.First()}, []string{"2.1"}))
	page, err = s.GetObjects(ctx, coll.ID, all)
	require.Nil(t, err)
	assert.Equal(t, []string{ver("indicator--a", t3), ver("indicator--b", t1)}, objectVersions(page.Items))

	require.Nil(t, s.DeleteObject(ctx, coll.ID, "indicator--a", nil, nil))
	page, err = s.GetObjects(ctx, coll.ID, all)
	require.Nil(t, err)
	assert.Equal(t, []string{ver("indicator--b", t1)}, objectVersions(page.Items))

	obj, err := s.GetObject(ctx, coll.ID, "indicator--a", models.QueryParams{})
	require.Nil(t, err)
	assert.Nil(t, obj)

	// sub-microsecond digits are dropped on ingest and on match
	fine := time.Date(2024, 1, 5, 0, 0, 0, 123456789, time.UTC)
	addObjects(t, s, root, coll, stixObject("indicator--c", fine), stixObject("indicator--c", t3))
	require.Nil(t, s.DeleteObject(ctx, coll.ID, "indicator--c", versions.Selectors{versions.Exact(fine)}, nil))
	page, err = s.GetObjects(ctx, coll.ID, all)
	require.Nil(t, err)
	assert.Equal(t, []string{ver("indicator--b", t1), ver("indicator--c", t3)}, objectVersions(page.Items))
}

func testJobDetails(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	clock := newTestClock(t1)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)
	require.Nil(t, s.AddAPIRoot(ctx, &models.APIRoot{ID: "api2", Title: "API 2"}))

	job := addObjects(t, s, root, coll,
		stixObject("indicator--a", t1),
		json.RawMessage(`"not an object"`),
		stixObject("indicator--b", t2),
	)

	got, err := s.GetJobAndDetails(ctx, root.ID, job.ID)
	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusComplete, got.Status)
	assert.True(t, t1.Equal(got.RequestTimestamp))
	require.NotNil(t, got.CompletedTimestamp)
	assert.True(t, t1.Equal(*got.CompletedTimestamp))
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
	require.Len(t, got.Details, 3)
	assert.Equal(t, "indicator--a", got.Details[0].STIXID)
	assert.Equal(t, models.JobDetailFailure, got.Details[1].Status)
	assert.Equal(t, "indicator--b", got.Details[2].STIXID)
	require.NotNil(t, got.Details[2].Version)
	assert.True(t, t2.Equal(*got.Details[2].Version))

	got, err = s.GetJobAndDetails(ctx, "api2", job.ID)
	assert.Nil(t, err)
	assert.Nil(t, got)
	got, err = s.GetJobAndDetails(ctx, root.ID, "missing")
	assert.Nil(t, err)
	assert.Nil(t, got)
}

func testJobCleanup(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newTestClock(now)
	s := newStore(t, WithClock(clock.Now))
	root, coll := seedCatalog(t, s)

	var jobs []*models.Job
	for _, age := range []time.Duration{25 * time.Hour, 23 * time.Hour, time.Hour} {
		clock.Set(now.Add(-age))
		jobs = append(jobs, addObjects(t, s, root, coll, stixObject("indicator--a", t1)))
	}
	clock.Set(now)

	_, errdb := s.pool.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO jobs (id, api_root_id, status, request_timestamp)
		VALUES (?, ?, ?, ?)`), "pending-job", root.ID, string(models.JobStatusPending), s.timeArg(now.Add(-48*time.Hour)))
	require.NoError(t, errdb)

	n, err := s.JobCleanup(ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetJobAndDetails(ctx, root.ID, jobs[0].ID)
	require.Nil(t, err)
	assert.Nil(t, got)
	for _, j := range jobs[1:] {
		got, err := s.GetJobAndDetails(ctx, root.ID, j.ID)
		require.Nil(t, err)
		assert.NotNil(t, got)
	}
	got, err = s.GetJobAndDetails(ctx, root.ID, "pending-job")
	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.CompletedTimestamp)

	var details int
	require.NoError(t, s.pool.DB.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM job_details WHERE job_id = ?`), jobs[0].ID).Scan(&details))
	assert.Equal(t, 0, details)

	n, err = s.JobCleanup(ctx)
	require.Nil(t, err)
	assert.Equal(t, 0, n)
}

func testCompression(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	s := newStore(t, WithCompression(true), WithClock(newTestClock(t1).Now))
	root, coll := seedCatalog(t, s)

	obj := stixObject("indicator--a", t1)
	addObjects(t, s, root, coll, obj)

	var stored []byte
	require.NoError(t, s.pool.DB.QueryRowContext(ctx, `SELECT serialized_data FROM stix_objects`).Scan(&stored))
	require.NotEmpty(t, stored)
	assert.Equal(t, snappyMarker, stored[0])

	// uncompressed rows remain readable by a compressing store
	_, err := s.pool.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO stix_objects (collection_id, id, type, spec_version, date_added, version, serialized_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		coll.ID, "indicator--plain", "indicator", "2.1", s.timeArg(t2), s.timeArg(t1), []byte(stixObject("indicator--plain", t1)))
	require.NoError(t, err)

	page, aerr := s.GetObjects(ctx, coll.ID, models.QueryParams{})
	require.Nil(t, aerr)
	require.Len(t, page.Items, 2)
	assert.Equal(t, string(obj), string(page.Items[0].SerializedData))
	assert.Equal(t, string(stixObject("indicator--plain", t1)), string(page.Items[1].SerializedData))
}
