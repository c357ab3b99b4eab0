package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/archive"
	"github.com/JakeFAU/creator-crawler/internal/config"
	"github.com/JakeFAU/creator-crawler/internal/credential"
	"github.com/JakeFAU/creator-crawler/internal/crawler"
	"github.com/JakeFAU/creator-crawler/internal/guard"
	"github.com/JakeFAU/creator-crawler/internal/orchestrator"
	"github.com/JakeFAU/creator-crawler/internal/session"
	"github.com/JakeFAU/creator-crawler/internal/storage/local"
	"github.com/JakeFAU/creator-crawler/internal/storage/memory"
)

type fakeOrchestrator struct {
	mu     sync.Mutex
	reqs   []crawler.JobRequest
	report crawler.Report
	err    error
	state  crawler.RunState
}

func (f *fakeOrchestrator) Submit(_ context.Context, req crawler.JobRequest) (crawler.Report, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.report, f.err
}

func (f *fakeOrchestrator) State() crawler.RunState {
	return f.state
}

type fakeLogin struct {
	valid    bool
	checkErr error
	loginErr error
	accounts []string
}

func (f *fakeLogin) CheckLogin(_ context.Context, account string, _ bool) (bool, error) {
	f.accounts = append(f.accounts, account)
	return f.valid, f.checkErr
}

func (f *fakeLogin) Login(_ context.Context, account string, _ bool) error {
	f.accounts = append(f.accounts, account)
	return f.loginErr
}

type harness struct {
	server  *Server
	orch    *fakeOrchestrator
	login   *fakeLogin
	pool    *credential.Pool
	jobs    *memory.JobStore
	store   *local.ArchiveStore
	profile string
}

func testConfig() config.Config {
	return config.Config{
		Credentials: config.CredentialsConfig{DefaultAccount: "xhs", ArchiveKey: "xhs/xhs_user_data_dir.zip"},
	}
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	profiles := t.TempDir()
	h := &harness{
		orch:    &fakeOrchestrator{},
		login:   &fakeLogin{},
		pool:    credential.NewPool(nil, nil, zap.NewNop()),
		jobs:    memory.NewJobStore(),
		store:   store,
		profile: profiles,
	}
	h.server = NewServer(Deps{
		Orchestrator: h.orch,
		Pool:         h.pool,
		Sessions: session.New(h.pool, h.login, archive.NewSyncer(store), session.Config{
			DefaultAccount: cfg.Credentials.DefaultAccount,
			ArchiveKey:     cfg.ArchiveKey,
			ProfileDir:     func(account string) string { return filepath.Join(profiles, account) },
		}, zap.NewNop()),
		Jobs: h.jobs,
	}, cfg, zap.NewNop())
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Code == http.StatusOK && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestSubmitCrawlReturnsReport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.orch.report = crawler.Report{
		RunID:      "run-1",
		Total:      1,
		List:       []crawler.ContentRecord{{NoteID: "n1", NotePublishTime: "2023-11-15 06:13:20"}},
		ErrorInfos: map[string]string{"batch-1:acct2": "timeout"},
		ElapsedMs:  42,
	}

	rec, env := h.do(t, http.MethodPost, "/api/xhs/crawler", `{"taskId":17,"creatorIds":["a"," ","b"],"headless":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, codeOK, env.Code)
	require.Equal(t, []crawler.JobRequest{{JobID: "17", Targets: []string{"a", "b"}, Headless: true}}, h.orch.reqs)

	data := env.Data.(map[string]any)
	require.EqualValues(t, 1, data["total"])
	require.Equal(t, "run-1", data["jobId"])
	require.EqualValues(t, 42, data["elapsedMs"])
	require.Equal(t, map[string]any{"batch-1:acct2": "timeout"}, data["errorInfos"])
	require.Len(t, data["list"], 1)
}

func TestSubmitCrawlStringTaskIDAndEmptyList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.orch.report = crawler.Report{RunID: "run-2", ErrorInfos: map[string]string{}}

	_, env := h.do(t, http.MethodPost, "/api/xhs/crawler", `{"taskId":"task-x","creatorIds":["a"]}`)
	require.Equal(t, codeOK, env.Code)
	require.Equal(t, "task-x", h.orch.reqs[0].JobID)
	require.False(t, h.orch.reqs[0].Headless)
	require.Equal(t, []any{}, env.Data.(map[string]any)["list"])
}

func TestSubmitCrawlRejection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.orch.err = &crawler.AdmissionError{Reason: crawler.ReasonBusy, ActiveJobID: "7", ActiveAccount: "acct1"}

	rec, env := h.do(t, http.MethodPost, "/api/xhs/crawler", `{"taskId":8,"creatorIds":["a"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, codeError, env.Code)
	require.Contains(t, env.Msg, "job id: 7")
	require.Nil(t, env.Data)
}

func TestSubmitCrawlFaultAndBadJSON(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.orch.err = &crawler.FaultError{Stage: "crawl", Err: errors.New("boom")}
	_, env := h.do(t, http.MethodPost, "/api/xhs/crawler", `{"creatorIds":["a"]}`)
	require.Equal(t, codeError, env.Code)
	require.Contains(t, env.Msg, "boom")

	_, env = h.do(t, http.MethodPost, "/api/xhs/crawler", `{bad`)
	require.Equal(t, codeError, env.Code)
	require.Equal(t, "invalid JSON", env.Msg)
}

// disconnectingCrawler cancels the HTTP request context during its first call.
type disconnectingCrawler struct {
	mu     sync.Mutex
	calls  int
	cancel context.CancelFunc
}

func (c *disconnectingCrawler) Crawl(_ context.Context, req crawler.CrawlRequest) ([]crawler.RawNote, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		c.cancel()
	}
	notes := make([]crawler.RawNote, 0, len(req.Targets))
	for _, target := range req.Targets {
		notes = append(notes, crawler.RawNote{NoteID: "note-" + target, UserID: target, Time: 1700000000})
	}
	return notes, nil
}

func TestSubmitCrawlSurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	pool := credential.NewPool(nil, nil, zap.NewNop())
	pool.Upsert(context.Background(), "acct1", true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &disconnectingCrawler{cancel: cancel}
	g := guard.New(nil)
	orch := orchestrator.New(g, pool, c, nil, nil, nil, nil, orchestrator.Config{BatchSize: 5}, zap.NewNop())
	srv := NewServer(Deps{Orchestrator: orch, Pool: pool}, testConfig(), zap.NewNop())

	body := `{"taskId":"t-1","creatorIds":["a","b","c","d","e","f"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/xhs/crawler", bytes.NewReader([]byte(body))).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Error(t, ctx.Err())
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, codeOK, env.Code, env.Msg)
	data := env.Data.(map[string]any)
	require.EqualValues(t, 6, data["total"])
	require.Equal(t, 2, c.calls)
	require.False(t, g.State().Running)
}

func TestCheckLoginUpsertsPoolAndUploads(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.login.valid = true
	require.NoError(t, os.MkdirAll(filepath.Join(h.profile, "xhs"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(h.profile, "xhs", "Cookies"), []byte("c"), 0o600))

	_, env := h.do(t, http.MethodPost, "/api/xhs/check_login", `{"uploadToOss":true}`)
	require.Equal(t, codeOK, env.Code)
	require.Equal(t, "login valid", env.Msg)
	require.Equal(t, true, env.Data)
	require.Equal(t, []string{"xhs"}, h.pool.SnapshotValid())
	require.Equal(t, []string{"xhs"}, h.login.accounts)

	rc, err := h.store.Download(context.Background(), "xhs/xhs_user_data_dir.zip")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestCheckLoginInvalidAndDownloadMissingArchive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.pool.Upsert(context.Background(), "acct2", true)

	_, env := h.do(t, http.MethodPost, "/api/xhs/check_login", `{"account":"acct2","downloadFromOss":true,"uploadToOss":true}`)
	require.Equal(t, codeOK, env.Code)
	require.Equal(t, "login invalid", env.Msg)
	require.Equal(t, false, env.Data)
	require.Empty(t, h.pool.SnapshotValid())
}

func TestCheckLoginRestoresProfileBeforeChecking(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Cookies"), []byte("stored"), 0o600))
	_, err := archive.NewSyncer(h.store).Push(context.Background(), "xhs/xhs_user_data_dir.zip", src)
	require.NoError(t, err)

	h.login.valid = true
	_, env := h.do(t, http.MethodPost, "/api/xhs/check_login", `{"downloadFromOss":true}`)
	require.Equal(t, codeOK, env.Code)

	data, err := os.ReadFile(filepath.Join(h.profile, "xhs", "Cookies"))
	require.NoError(t, err)
	require.Equal(t, "stored", string(data))
}

func TestCheckLoginError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.login.checkErr = errors.New("browser crashed")
	_, env := h.do(t, http.MethodPost, "/api/xhs/check_login", "")
	require.Equal(t, codeError, env.Code)
	require.Equal(t, "browser crashed", env.Msg)
	require.Equal(t, false, env.Data)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	_, env := h.do(t, http.MethodPost, "/api/xhs/login", `{"account":"acct3"}`)
	require.Equal(t, codeOK, env.Code)
	require.Equal(t, []string{"acct3"}, h.pool.SnapshotValid())

	h.login.loginErr = errors.New("qr code expired")
	_, env = h.do(t, http.MethodPost, "/api/xhs/login", `{}`)
	require.Equal(t, codeError, env.Code)
	require.Equal(t, "qr code expired", env.Msg)
}

func TestStatusAccountsAndJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.orch.state = crawler.RunState{Running: true, JobID: "7", Account: "acct1"}
	h.pool.Upsert(context.Background(), "acct1", true)
	require.NoError(t, h.jobs.SaveJob(context.Background(), crawler.JobRecord{RunID: "run-9", Status: crawler.JobStatusSucceeded}))

	_, env := h.do(t, http.MethodGet, "/api/xhs/status", "")
	require.Equal(t, true, env.Data.(map[string]any)["running"])
	require.Equal(t, "acct1", env.Data.(map[string]any)["account"])

	_, env = h.do(t, http.MethodGet, "/api/xhs/accounts", "")
	require.Len(t, env.Data, 1)

	_, env = h.do(t, http.MethodGet, "/api/xhs/jobs/run-9", "")
	require.Equal(t, codeOK, env.Code)
	require.Equal(t, "succeeded", env.Data.(map[string]any)["status"])

	_, env = h.do(t, http.MethodGet, "/api/xhs/jobs/none", "")
	require.Equal(t, codeError, env.Code)
	require.Equal(t, "job not found", env.Msg)
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	rec, _ := h.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()

	server := NewServer(Deps{Ready: func(context.Context) error { return errors.New("redis down") }}, testConfig(), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis down")
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	h := newHarness(t, cfg)

	rec, _ := h.do(t, http.MethodGet, "/api/xhs/status", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/xhs/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTaskID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", taskID(nil))
	require.Equal(t, "", taskID(json.RawMessage("null")))
	require.Equal(t, "12", taskID(json.RawMessage("12")))
	require.Equal(t, "abc", taskID(json.RawMessage(`"abc"`)))
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")
}
