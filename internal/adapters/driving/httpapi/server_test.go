package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/cache/lru"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/services"
)

const testSecret = "webhook-secret"

// stubSearch records the last call and returns canned results.
type stubSearch struct {
	mu      sync.Mutex
	query   string
	filters domain.SearchFilters
	opts    domain.SearchOptions
	results []domain.SearchResult
	err     error
}

func (s *stubSearch) Search(_ context.Context, query string, filters domain.SearchFilters, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query, s.filters, s.opts = query, filters, opts
	return s.results, s.err
}

// stubSync records every sync run.
type stubSync struct {
	mu   sync.Mutex
	runs []domain.SyncParams
}

func (s *stubSync) Sync(_ context.Context, params domain.SyncParams) (*domain.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, params)
	report := &domain.SyncReport{CommitSHA: params.CommitSHA}
	for _, p := range params.ChangedFiles {
		report.Steps = append(report.Steps, domain.StepRecord{FilePath: p, Outcome: domain.OutcomeStored, Attempts: 1})
	}
	return report, nil
}

func (s *stubSync) Runs() []domain.SyncParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncParams(nil), s.runs...)
}

type fixture struct {
	server *Server
	search *stubSearch
	syncer *stubSync
	store  *memory.DocumentStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		search: &stubSearch{},
		syncer: &stubSync{},
		store:  memory.NewDocumentStore(),
	}
	f.server = New(f.search, services.NewDocumentService(f.store), f.syncer,
		lru.NewDeliveryLog(100, time.Minute), Config{Branch: "main", WebhookSecret: testSecret})
	t.Cleanup(f.server.Wait)
	return f
}

func (f *fixture) put(t *testing.T, ct domain.ContentType, id string, md domain.Metadata) {
	t.Helper()
	doc := &domain.Document{ID: id, ContentType: ct, Path: "notes/" + id + ".md", Metadata: md, Content: "body " + id}
	key, err := doc.Key()
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), key, doc))
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(body, delivery, event, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestWebhook_StartsSync(t *testing.T) {
	f := newFixture(t)
	body := `{"ref":"refs/heads/main","after":"abc123","commits":[
		{"added":["notes/a.md","README.md"],"modified":["notes/b.md"],"removed":[]},
		{"added":[],"modified":[],"removed":["notes/b.md","notes/c.md"]}
	]}`

	rec := f.do(t, webhookRequest(body, "d-1", "push", signBody(testSecret, body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[WebhookResponse](t, rec)
	assert.Equal(t, StatusAccepted, resp.Status)
	assert.Equal(t, "abc123", resp.CommitSHA)
	assert.Equal(t, 1, resp.Changed)
	assert.Equal(t, 2, resp.Deleted)

	f.server.Wait()
	runs := f.syncer.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"notes/a.md"}, runs[0].ChangedFiles)
	assert.Equal(t, []string{"notes/b.md", "notes/c.md"}, runs[0].DeletedFiles)
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	body := `{"ref":"refs/heads/main","after":"abc","commits":[{"added":["notes/a.md"]}]}`
	sig := signBody(testSecret, body)

	first := f.do(t, webhookRequest(body, "d-1", "push", sig))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := f.do(t, webhookRequest(body, "d-1", "push", sig))
	require.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, StatusDuplicate, decode[WebhookResponse](t, second).Status)

	f.server.Wait()
	assert.Len(t, f.syncer.Runs(), 1)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := `{"ref":"refs/heads/main","after":"abc","commits":[{"added":["notes/a.md"]}]}`

	for name, sig := range map[string]string{
		"missing":      "",
		"wrong secret": signBody("nope", body),
		"tampered":     signBody(testSecret, body+"x"),
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, webhookRequest(body, "d-"+name, "push", sig))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, CodeUnauthorized, decode[ErrorBody](t, rec).Error.Code)
		})
	}

	f.server.Wait()
	assert.Empty(t, f.syncer.Runs())
}

func TestWebhook_FailsClosedWithoutSecret(t *testing.T) {
	syncer := &stubSync{}
	server := New(&stubSearch{}, services.NewDocumentService(memory.NewDocumentStore()), syncer,
		lru.NewDeliveryLog(10, time.Minute), Config{})
	body := `{"ref":"refs/heads/main","after":"abc","commits":[{"added":["notes/a.md"]}]}`

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, webhookRequest(body, "d-1", "push", signBody("", body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	server.Wait()
	assert.Empty(t, syncer.Runs())
}

func TestWebhook_Ignored(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		event  string
		body   string
		status string
	}{
		{name: "ping", event: "ping", body: `{"zen":"hi"}`, status: StatusIgnored},
		{name: "other branch", event: "push", body: `{"ref":"refs/heads/dev","after":"abc","commits":[{"added":["notes/a.md"]}]}`, status: StatusIgnored},
		{name: "no markdown", event: "push", body: `{"ref":"refs/heads/main","after":"abc","commits":[{"added":["main.go"]}]}`, status: StatusNoChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, webhookRequest(tt.body, "d-"+tt.name, tt.event, signBody(testSecret, tt.body)))
			require.Equal(t, http.StatusAccepted, rec.Code)
			assert.Equal(t, tt.status, decode[WebhookResponse](t, rec).Status)
		})
	}

	f.server.Wait()
	assert.Empty(t, f.syncer.Runs())
}

func TestWebhook_MalformedPayload(t *testing.T) {
	f := newFixture(t)
	body := `{"ref":`
	rec := f.do(t, webhookRequest(body, "d-1", "push", signBody(testSecret, body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.search.results = []domain.SearchResult{
		{ID: "a", ContentType: domain.ContentTypePattern, Title: "A", Score: 0.9, RerankScore: 0.8},
		{ID: "b", ContentType: domain.ContentTypePattern, Title: "B", Score: 0.7, RerankScore: 0.6},
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/search?q=dao+governance&contentType=pattern&group=dao&tags=a,b&tags=c&includeDocuments=true&limit=1", nil)
	rec := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SearchResponse](t, rec)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "a", resp.Data[0].ID)
	assert.Equal(t, 2, resp.Meta.Total)
	assert.Equal(t, 1, resp.Meta.Limit)

	assert.Equal(t, "dao governance", f.search.query)
	assert.Equal(t, domain.ContentTypePattern, f.search.filters.ContentType)
	assert.Equal(t, "dao", f.search.filters.Group)
	assert.Equal(t, []string{"a", "b", "c"}, f.search.filters.Tags)
	assert.True(t, f.search.opts.IncludeDocuments)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=300")
}

func TestSearch_EmptyIsNotAnError(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=nothing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"total":0,"limit":10,"offset":0}}`, rec.Body.String())
}

func TestSearch_BadRequests(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=%20",
		"/api/v1/search?q=x&contentType=novel",
		"/api/v1/search?q=x&limit=0",
		"/api/v1/search?q=x&limit=51",
		"/api/v1/search?q=x&includeDocuments=maybe",
	} {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSearch_OracleFailures(t *testing.T) {
	f := newFixture(t)

	f.search.err = domain.ErrEmbeddingUnavailable
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.search.err = errors.New("boom")
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[ErrorBody](t, rec).Error.Message)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, HEAD, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestGetEntry(t *testing.T) {
	f := newFixture(t)
	f.put(t, domain.ContentTypePattern, "commons", domain.Metadata{
		"title": "Commons", "date": "2024-01-02", "publish": true,
	})
	f.put(t, domain.ContentTypeLink, "no-url", domain.Metadata{
		"title": "Link", "date": "2024-01-02", "publish": true,
	})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/pattern/commons", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[EntryResponse](t, rec)
	assert.Equal(t, "commons", resp.Data.ID)
	assert.Equal(t, "Commons", resp.Data.Title())
	assert.Empty(t, resp.Issues)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/link/no-url", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	issues := decode[EntryResponse](t, rec).Issues
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "url")
}

func TestGetEntry_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/pattern/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, CodeNotFound, body.Error.Code)
	assert.Equal(t, "Entry pattern/missing not found", body.Error.Message)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/novel/x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/pattern/..", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEntries(t *testing.T) {
	f := newFixture(t)
	f.put(t, domain.ContentTypePattern, "a", domain.Metadata{"title": "A", "group": "dao"})
	f.put(t, domain.ContentTypePattern, "b", domain.Metadata{"title": "B", "group": "coop"})
	f.put(t, domain.ContentTypeStudy, "c", domain.Metadata{"title": "C", "group": "dao"})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries?group=dao", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[EntryListResponse](t, rec)
	assert.Equal(t, 2, resp.Meta.Total)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "a", resp.Data[0].ID)
	assert.Equal(t, "c", resp.Data[1].ID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries?contentType=pattern&limit=1&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[EntryListResponse](t, rec)
	assert.Equal(t, 2, resp.Meta.Total)
	assert.Equal(t, 1, resp.Meta.Limit)
	assert.Equal(t, 1, resp.Meta.Offset)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "b", resp.Data[0].ID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries?contentType=novel", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries?limit=101", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEntries_EmptyStore(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[EntryListResponse](t, rec)
	assert.NotNil(t, resp.Data)
	assert.Zero(t, resp.Meta.Total)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.server.Shutdown(context.Background()))
}

func TestWebhook_RejectedDeliveryIsNotRemembered(t *testing.T) {
	f := newFixture(t)
	malformed := `{"ref":`
	for i := 0; i < 2; i++ {
		rec := f.do(t, webhookRequest(malformed, "d-1", "push", signBody(testSecret, malformed)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	ignored := `{"zen":"hi"}`
	rec := f.do(t, webhookRequest(ignored, "d-1", "ping", signBody(testSecret, ignored)))
	assert.Equal(t, StatusIgnored, decode[WebhookResponse](t, rec).Status)

	body := `{"ref":"refs/heads/main","after":"abc","commits":[{"added":["notes/a.md"]}]}`
	rec = f.do(t, webhookRequest(body, "d-1", "push", signBody(testSecret, body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, StatusAccepted, decode[WebhookResponse](t, rec).Status)

	f.server.Wait()
	assert.Len(t, f.syncer.Runs(), 1)
}
