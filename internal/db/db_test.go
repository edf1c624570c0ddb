package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ohnitiel/upsql/dbapi"
	"ohnitiel/upsql/dberr"
	"ohnitiel/upsql/internal/config"
	"ohnitiel/upsql/query"
)

// pagesSource replays a fixed list of pages, one per call.
type pagesSource struct {
	mu    sync.Mutex
	pages []*query.Page
	pos   int
}

func (s *pagesSource) Next(context.Context, time.Duration) (query.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pages[s.pos]
	s.pos++
	return query.Reply{Page: p, RequestID: "req"}, nil
}

func (s *pagesSource) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= len(s.pages)
}

// fakeService answers every query with the same pages, or fails the first
// failures submissions with err.
type fakeService struct {
	pages    []*query.Page
	err      error
	failures int32
	submits  atomic.Int32
}

func (f *fakeService) Submit(context.Context, string) (query.Source, error) {
	n := f.submits.Add(1)
	if f.err != nil && (f.failures == 0 || n <= f.failures) {
		return nil, f.err
	}
	return &pagesSource{pages: f.pages}, nil
}

func testConfig(names ...string) *config.Config {
	conf := config.NewConfig()
	conf.Profiles = make(map[string]*config.Profile)
	for _, name := range names {
		conf.Profiles[name] = &config.Profile{Name: name, APIURL: "https://" + name + ".example.com", Token: "t"}
	}
	return conf
}

func fakeConnector(services map[string]*fakeService) ConnectFunc {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return func(p *config.Profile) (*dbapi.Connection, error) {
		svc, ok := services[p.Name]
		if !ok {
			return nil, errors.New("no service")
		}
		return dbapi.Connect(p.Token, p.APIURL,
			dbapi.WithSubmitter(svc),
			dbapi.WithPollInterval(time.Millisecond),
			dbapi.WithLogger(quiet),
		)
	}
}

func loadManager(t *testing.T, services map[string]*fakeService, names ...string) *Manager {
	t.Helper()

	dm := NewManager()
	dm.backoff = func(int) time.Duration { return time.Millisecond }
	if err := dm.LoadConnections(testConfig(names...), nil, fakeConnector(services)); err != nil {
		t.Fatalf("LoadConnections: %v", err)
	}
	t.Cleanup(dm.Close)
	return dm
}

func eventsPages() []*query.Page {
	columns := []query.Column{
		{Name: "id", ColumnType: query.ColumnType{Clazz: "int"}},
		{Name: "v", ColumnType: query.ColumnType{Clazz: "string"}},
	}
	return []*query.Page{
		query.NewDataPage(columns, [][]any{{int64(1), "a"}}, true),
		query.NewDataPage(columns, [][]any{{int64(2), "b"}}, false),
	}
}

func TestExecuteQuery_DrainsAllPages(t *testing.T) {
	t.Parallel()

	dm := loadManager(t, map[string]*fakeService{"eu": {pages: eventsPages()}}, "eu")

	res, err := dm.GetConnection("eu").ExecuteQuery(context.Background(), "SELECT id, v FROM events")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	wantCols := []Column{{Ordinal: 0, Name: "id", Type: "int"}, {Ordinal: 1, Name: "v", Type: "string"}}
	if !reflect.DeepEqual(res.Columns, wantCols) {
		t.Fatalf("columns: %+v", res.Columns)
	}
	if res.RowCount != 2 || !reflect.DeepEqual(res.Rows, [][]any{{int64(1), "a"}, {int64(2), "b"}}) {
		t.Fatalf("rows: %+v", res.Rows)
	}
}

func TestExecuteQuery_MessagesAndUnnamedColumns(t *testing.T) {
	t.Parallel()

	dm := loadManager(t, map[string]*fakeService{"eu": {pages: []*query.Page{
		query.NewMessagePage("query accepted"),
		query.NewDataPage(nil, [][]any{{int64(42), "x"}}, false),
	}}}, "eu")

	res, err := dm.GetConnection("eu").ExecuteQuery(context.Background(), "INSERT INTO t SELECT 42, 'x'")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if !reflect.DeepEqual(res.Messages, []string{"query accepted"}) {
		t.Fatalf("messages: %v", res.Messages)
	}
	if len(res.Columns) != 2 || res.Columns[1].Name != "column_2" {
		t.Fatalf("columns: %+v", res.Columns)
	}
}

func TestLoadConnections_KeepsFailedProfiles(t *testing.T) {
	t.Parallel()

	dm := loadManager(t, map[string]*fakeService{"eu": {pages: eventsPages()}}, "eu", "us")

	if dm.GetConnection("us").Err() == nil {
		t.Fatal("us should carry its connection error")
	}
	if len(dm.GetConnections()) != 2 {
		t.Fatalf("connections: %d", len(dm.GetConnections()))
	}
}

func TestParallelExecution(t *testing.T) {
	t.Parallel()

	services := map[string]*fakeService{
		"eu": {pages: eventsPages()},
		"us": {pages: eventsPages()},
		"ap": {err: dberr.NewAPI(400, `{"message":"bad column"}`, "r1")},
	}
	dm := loadManager(t, services, "eu", "us", "ap", "missing")
	cache := NewMemoryCache(time.Minute)
	ex := NewExecutor(dm, cache, 2)

	results, summary := ex.ParallelExecution(context.Background(), "SELECT id, v FROM events", true)

	if summary.Successful != 2 || summary.Failed != 2 {
		t.Fatalf("summary: %+v", summary)
	}
	if !reflect.DeepEqual(summary.Failures(), []string{"ap", "missing"}) {
		t.Fatalf("failures: %v", summary.Failures())
	}
	if !errors.Is(summary.Errors["ap"], dberr.Operational) {
		t.Fatalf("ap error should be a translated fault: %v", summary.Errors["ap"])
	}
	if len(results) != 2 || results["eu"].RowCount != 2 {
		t.Fatalf("results: %+v", results)
	}

	_, _ = ex.ParallelExecution(context.Background(), "SELECT id, v FROM events", true)
	if services["eu"].submits.Load() != 1 {
		t.Fatalf("second run should hit the cache, eu submits: %d", services["eu"].submits.Load())
	}

	_, _ = ex.ParallelExecution(context.Background(), "INSERT INTO t VALUES (1)", true)
	_, _ = ex.ParallelExecution(context.Background(), "INSERT INTO t VALUES (1)", true)
	if services["eu"].submits.Load() != 3 {
		t.Fatalf("mutating statements are never cached, eu submits: %d", services["eu"].submits.Load())
	}
}

func TestCheckAll(t *testing.T) {
	t.Parallel()

	services := map[string]*fakeService{
		"eu":    {pages: []*query.Page{query.NewDataPage(nil, [][]any{{int64(1)}}, false)}},
		"flaky": {pages: []*query.Page{query.NewDataPage(nil, [][]any{{int64(1)}}, false)}, err: dberr.NewRequest("https://flaky", errors.New("reset")), failures: 2},
		"auth":  {err: dberr.NewAuth(401, "", "")},
	}
	dm := loadManager(t, services, "eu", "flaky", "auth")

	summary := NewExecutor(dm, nil, 3).CheckAll(context.Background(), 3)

	if summary.Successful != 2 || summary.Failed != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	if services["flaky"].submits.Load() != 3 {
		t.Fatalf("flaky should succeed on the third attempt, submits: %d", services["flaky"].submits.Load())
	}
	if services["auth"].submits.Load() != 1 {
		t.Fatalf("auth faults are not retried, submits: %d", services["auth"].submits.Load())
	}
	if !errors.Is(summary.Errors["auth"], dberr.Auth) {
		t.Fatalf("auth error: %v", summary.Errors["auth"])
	}
}

func TestCheck_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	services := map[string]*fakeService{
		"eu":  {pages: []*query.Page{query.NewDataPage(nil, [][]any{{int64(1)}}, false)}},
		"bad": {err: dberr.NewRequest("https://bad", errors.New("reset"))},
	}
	dm := loadManager(t, services, "eu", "bad")

	if err := dm.GetConnection("eu").Check(context.Background(), 0); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if services["eu"].submits.Load() != 1 {
		t.Fatalf("eu submits: %d", services["eu"].submits.Load())
	}

	err := dm.GetConnection("bad").Check(context.Background(), 0)
	if !errors.Is(err, dberr.Request) {
		t.Fatalf("want the request fault, got %v", err)
	}
	if services["bad"].submits.Load() != 1 {
		t.Fatalf("bad submits: %d", services["bad"].submits.Load())
	}
}

func TestParallelExecution_ModifyingStatementsBypassCache(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"WITH src AS (SELECT 1) INSERT INTO audit SELECT * FROM src",
		"SELECT 1; DROP TABLE t",
	} {
		services := map[string]*fakeService{"eu": {pages: eventsPages()}}
		dm := loadManager(t, services, "eu")
		ex := NewExecutor(dm, NewMemoryCache(time.Minute), 1)

		_, _ = ex.ParallelExecution(context.Background(), q, true)
		_, _ = ex.ParallelExecution(context.Background(), q, true)
		if services["eu"].submits.Load() != 2 {
			t.Fatalf("%q: both runs should reach the service, submits: %d", q, services["eu"].submits.Load())
		}
	}
}

func TestGetCacheKey_NoCollisions(t *testing.T) {
	t.Parallel()

	if getCacheKey("a-b", "c") == getCacheKey("a", "b-c") {
		t.Fatal("profile and query boundaries must not be ambiguous")
	}
	if getCacheKey("eu", "SELECT 1") != getCacheKey("eu", "SELECT 1") {
		t.Fatal("keys must be stable")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	cache.Set(ctx, "eu", "SELECT 1", &ResultSet{RowCount: 1})
	if _, ok := cache.Get(ctx, "eu", "SELECT 1"); !ok {
		t.Fatal("fresh entry should be served")
	}
	if _, ok := cache.Get(ctx, "us", "SELECT 1"); ok {
		t.Fatal("entries are per profile")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, "eu", "SELECT 1"); ok {
		t.Fatal("expired entry should not be served")
	}

	cache.Set(ctx, "eu", "SELECT 2", &ResultSet{})
	if cache.Len() != 1 {
		t.Fatalf("expired entries should be pruned on write, have %d", cache.Len())
	}
}

func TestDecodeResultSet(t *testing.T) {
	t.Parallel()

	rs, err := decodeResultSet([]byte(`{"columns":[{"ordinal":0,"name":"n","type":"int"}],"rows":[[1,2.5,"x",null]],"row_count":1,"duration":0}`))
	if err != nil {
		t.Fatalf("decodeResultSet: %v", err)
	}
	if !reflect.DeepEqual(rs.Rows[0], []any{int64(1), 2.5, "x", nil}) {
		t.Fatalf("row: %#v", rs.Rows[0])
	}
}

func TestRedisCache_UnreachableServerIsAMiss(t *testing.T) {
	t.Parallel()

	cache := NewCache(config.CacheConfig{
		UseCache: true,
		Backend:  "redis",
		Redis:    config.RedisConfig{Addr: "127.0.0.1:1"},
		MaxAge:   time.Minute,
	})
	rc, ok := cache.(*RedisCache)
	if !ok {
		t.Fatalf("want *RedisCache, got %T", cache)
	}
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rc.Set(ctx, "eu", "SELECT 1", &ResultSet{})
	if _, ok := rc.Get(ctx, "eu", "SELECT 1"); ok {
		t.Fatal("an unreachable cache must behave as a miss")
	}
}

func TestNewCache_Disabled(t *testing.T) {
	t.Parallel()

	if NewCache(config.CacheConfig{UseCache: false}) != nil {
		t.Fatal("caching off should yield a nil cache")
	}
	if _, ok := NewCache(config.CacheConfig{UseCache: true, Backend: "memory"}).(*MemoryCache); !ok {
		t.Fatal("memory backend expected")
	}
}
