package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/core"
	_ "github.com/JonMunkholm/shopimport/internal/core/processors"
	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/metrics"
	"github.com/JonMunkholm/shopimport/internal/store/memory"
)

const testImportYAML = `
product:
  csv:
    processors: [property]
    mapping:
      item:
        0: product.code
      property:
        1: product.property.type
        2: product.property.value
broken:
  csv:
    processors: [nosuch]
`

type testServer struct {
	t     *testing.T
	srv   *Server
	store *memory.Store
}

func newTestServer(t *testing.T, modify ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		Import:   config.ImportConfig{MaxFileSize: 1 << 20},
		Security: config.SecurityConfig{RequestsPerMinute: 1000},
	}
	for _, fn := range modify {
		fn(cfg)
	}

	tree, err := config.ParseTree([]byte(testImportYAML))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	store := memory.NewStore()
	env := &core.Env{
		Config:   tree,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Managers: store,
		Metrics:  metrics.New(reg),
	}
	svc := core.NewService(core.NewImporter(env, core.ImporterConfig{}), core.ServiceConfig{
		MaxConcurrent: 2,
		MaxWait:       time.Second,
	})
	srv := NewServer(svc, cfg, reg)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.CancelAll()
		_ = svc.WaitForImports(ctx)
		_ = srv.Shutdown(ctx)
	})
	return &testServer{t: t, srv: srv, store: store}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// upload posts content as multipart field "file" and returns the import id.
func (ts *testServer) upload(path, content string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "products.csv")
	require.NoError(ts.t, err)
	_, _ = io.WriteString(fw, content)
	require.NoError(ts.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(req)
}

func (ts *testServer) startImport(content string) string {
	ts.t.Helper()
	rec := ts.upload("/api/imports/product", content)
	require.Equal(ts.t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(ts.t, resp["import_id"])
	return resp["import_id"]
}

func (ts *testServer) waitResult(id string) core.ImportResult {
	ts.t.Helper()
	rec := ts.get("/api/imports/" + id + "/result?wait=true")
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.ImportResult
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func (ts *testServer) product(code string) *domain.Item {
	ts.t.Helper()
	m, err := ts.store.Manager("product")
	require.NoError(ts.t, err)
	items, err := m.Search(context.Background(), domain.NewFilter().Eq("product.code", code))
	require.NoError(ts.t, err)
	require.Len(ts.t, items, 1)
	return items[0]
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shopimport_active_imports")
}

func TestListProcessors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/processors")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["csv"], "property")
	assert.Contains(t, resp["csv"], "address")
	assert.NotEmpty(t, resp["xml"])
}

func TestValidateChain(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/chains/product")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp chainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, []string{"property"}, resp.Processors)

	rec = ts.get("/api/chains/broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CFG002", decodeError(t, rec).Code)

	rec = ts.get("/api/chains/product?format=json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CFG004", decodeError(t, rec).Code)
}

func TestStartImport_Multipart(t *testing.T) {
	ts := newTestServer(t)

	id := ts.startImport("p1,size,L\np2,color,red\n")
	res := ts.waitResult(id)

	assert.Equal(t, id, res.ImportID)
	assert.Equal(t, "products.csv", res.FileName)
	assert.Equal(t, 2, res.Imported)
	assert.Zero(t, res.Failed)

	props := ts.product("p1").PropertyItems()
	require.Len(t, props, 1)
	assert.Equal(t, "size", props[0].Type())
	assert.Equal(t, "L", props[0].Value())
}

func TestStartImport_RawBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/imports/product?name=feed.csv", strings.NewReader("p7,size,S\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := ts.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	res := ts.waitResult(resp["import_id"])
	assert.Equal(t, "feed.csv", res.FileName)
	assert.Equal(t, 1, res.Imported)
}

func TestStartImport_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		content  string
		noFile   bool
		maxSize  int64
		wantCode int
		wantErr  string
	}{
		{name: "unknown format", path: "/api/imports/product?format=json", content: "p1", wantCode: http.StatusBadRequest, wantErr: "CFG004"},
		{name: "invalid chain", path: "/api/imports/broken", content: "p1", wantCode: http.StatusBadRequest, wantErr: "CFG002"},
		{name: "no file", path: "/api/imports/product", noFile: true, wantCode: http.StatusBadRequest, wantErr: "FILE004"},
		{name: "empty file", path: "/api/imports/product", content: "", wantCode: http.StatusBadRequest, wantErr: "FILE005"},
		{name: "too large", path: "/api/imports/product", content: strings.Repeat("p1,size,L\n", 100), maxSize: 16, wantCode: http.StatusRequestEntityTooLarge, wantErr: "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(c *config.Config) {
				if tt.maxSize > 0 {
					c.Import.MaxFileSize = tt.maxSize
				}
			})

			var rec *httptest.ResponseRecorder
			if tt.noFile {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				require.NoError(t, mw.WriteField("note", "nothing attached"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, tt.path, &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				rec = ts.do(req)
			} else {
				rec = ts.upload(tt.path, tt.content)
			}

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
			assert.Empty(t, ts.srv.service.ListImports())
		})
	}
}

func TestImportProgressAndList(t *testing.T) {
	ts := newTestServer(t)

	id := ts.startImport("p1,size,L\n")
	ts.waitResult(id)

	rec := ts.get("/api/imports/" + id)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, core.PhaseComplete, progress.Phase)
	assert.Equal(t, 1, progress.Processed)
	assert.Equal(t, 100, progress.Percent)

	rec = ts.get("/api/imports")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []core.ImportProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ImportID)
}

func TestImportResult_NotWaiting(t *testing.T) {
	ts := newTestServer(t)

	id := ts.startImport("p1,size,L\n")
	ts.waitResult(id)

	rec := ts.get("/api/imports/" + id + "/result")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"imported":1`)
}

func TestImportEvents(t *testing.T) {
	ts := newTestServer(t)

	id := ts.startImport("p1,size,L\np2,size,M\n")
	ts.waitResult(id)

	rec := ts.get("/api/imports/" + id + "/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "id: 2\nevent: complete")
	assert.Contains(t, body, `"phase":"complete"`)
}

func TestExportFailedRecords(t *testing.T) {
	ts := newTestServer(t)

	id := ts.startImport("p1,size,L\n,size,M\n")
	res := ts.waitResult(id)
	require.Equal(t, 1, res.Failed)

	rec := ts.get("/api/imports/" + id + "/failed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "line,code,reason", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2,,"), lines[1])
	assert.Contains(t, lines[1], "missing product.code")
}

func TestUnknownImport(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/imports/nope",
		"/api/imports/nope/events",
		"/api/imports/nope/result",
		"/api/imports/nope/failed",
	} {
		rec := ts.get(path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "IMP001", decodeError(t, rec).Code, path)
	}

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/imports/nope/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelImport(t *testing.T) {
	ts := newTestServer(t)

	id := ts.startImport("p1,size,L\n")
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/imports/"+id+"/cancel", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	res := ts.waitResult(id)
	assert.Equal(t, id, res.ImportID)
}

func TestAPIKeyAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	assert.Equal(t, http.StatusOK, ts.get("/healthz").Code, "health is not protected")
	assert.Equal(t, http.StatusUnauthorized, ts.get("/api/processors").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/processors", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/processors", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Security.RequestsPerMinute = 2
	})

	assert.Equal(t, http.StatusOK, ts.get("/healthz").Code)
	assert.Equal(t, http.StatusOK, ts.get("/healthz").Code)

	rec := ts.get("/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestRateLimiter_Window(t *testing.T) {
	rl := newRateLimiter(1, 50*time.Millisecond)
	defer rl.stop()

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "clients are limited separately")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.allow("10.0.0.1"), "a new window restores the budget")
}
