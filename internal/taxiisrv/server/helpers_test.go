package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/config"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dbmanager"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/sqlstore"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/metrics"
)

const testSecret = "test-secret"

var (
	t1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	t3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

// tickingClock returns a later instant on every call, so every ingested batch gets its own
// date_added.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	server *TAXIIServer
	db     db.Database
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	clock := &tickingClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	database, err := db.Open(ctx, dbmanager.Config{
		Driver: dbmanager.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "taxii.db"),
	}, sqlstore.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.Default()
	cfg.TAXII.Title = "Test TAXII"
	cfg.TAXII.Contact = "soc@example.com"
	cfg.TAXII.MaxPageSize = 50
	cfg.Auth.Secret = testSecret

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	s, err := CreateNewServer(cfg, database, reg)
	require.NoError(t, err)
	s.MountHandlers()
	return &testEnv{server: s, db: database}
}

// seed creates:
// - api1 (default, public) with pub (public read and write), priv (private) and ro (public read)
// - api2 (private) with sec (private)
func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.Nil(t, e.db.AddAPIRoot(ctx, &models.APIRoot{ID: "api1", Title: "API 1", IsDefault: true, IsPublic: true}))
	require.Nil(t, e.db.AddAPIRoot(ctx, &models.APIRoot{ID: "api2", Title: "API 2"}))
	require.Nil(t, e.db.AddCollection(ctx, &models.Collection{ID: "pub", APIRootID: "api1", Title: "Public", Alias: "public", IsPublic: true, IsPublicWrite: true}))
	require.Nil(t, e.db.AddCollection(ctx, &models.Collection{ID: "priv", APIRootID: "api1", Title: "Private"}))
	require.Nil(t, e.db.AddCollection(ctx, &models.Collection{ID: "ro", APIRootID: "api1", Title: "Read only", IsPublic: true}))
	require.Nil(t, e.db.AddCollection(ctx, &models.Collection{ID: "sec", APIRootID: "api2", Title: "Secret"}))
}

func signToken(t *testing.T, accountID string, admin bool, permissions map[string]any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id":  accountID,
		"is_admin":    admin,
		"permissions": permissions,
		"exp":         time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", httpx.MediaTypeTAXII)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(t *testing.T, target, token string) *httptest.ResponseRecorder {
	return e.do(t, http.MethodGet, target, token, nil)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func stixObject(id string, modified time.Time) string {
	typ := strings.SplitN(id, "--", 2)[0]
	return fmt.Sprintf(`{"type":%q,"id":%q,"spec_version":"2.1","created":%q,"modified":%q}`,
		typ, id, t1.Format(time.RFC3339Nano), modified.Format(time.RFC3339Nano))
}

func envelopeOf(objects ...string) io.Reader {
	return strings.NewReader(`{"objects":[` + strings.Join(objects, ",") + `]}`)
}

// versionKeys renders the id and version of every entry of body[key] as "id@version".
func versionKeys(t *testing.T, body map[string]any, key, versionField string) []string {
	t.Helper()
	var out []string
	items, _ := body[key].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		require.True(t, ok)
		out = append(out, fmt.Sprintf("%v@%v", m["id"], m[versionField]))
	}
	return out
}

func ver(id string, v time.Time) string {
	return id + "@" + v.Format(time.RFC3339Nano)
}
