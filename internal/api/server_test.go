package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/promptvault/internal/importer"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
)

// fakeImporter creates the session and lets the test drive it.
type fakeImporter struct {
	tracker *progress.Tracker
	mu      sync.Mutex
	reqs    []importer.Request
	err     error
}

func (f *fakeImporter) Start(_ context.Context, req importer.Request) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	id := "sess-" + req.UserID
	if _, err := f.tracker.Start(id, req.UserID, req.Platform, len(req.Files)); err != nil {
		return "", err
	}
	return id, nil
}

const testToken = "secret"

func newTestServer(t *testing.T) (*Server, *fakeImporter) {
	t.Helper()
	tracker := progress.NewTracker()
	t.Cleanup(tracker.Close)
	imp := &fakeImporter{tracker: tracker}
	srv := NewServer(8750, testToken, Deps{
		Importer: imp,
		Tracker:  tracker,
		Metrics:  metrics.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return srv, imp
}

func authed(req *http.Request, user string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	return req
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/nonexistent", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		token  string
		user   string
		status int
	}{
		{"no token", "", "u1", http.StatusUnauthorized},
		{"wrong token", "nope", "u1", http.StatusUnauthorized},
		{"no user", testToken, "", http.StatusUnauthorized},
		{"ok", testToken, "u1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/imports/missing", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.user != "" {
				req.Header.Set(UserHeader, tt.user)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)

			var apiErr APIError
			require.NoError(t, json.NewDecoder(w.Body).Decode(&apiErr))
			assert.NotEmpty(t, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestCreateImport(t *testing.T) {
	srv, imp := newTestServer(t)
	body, ctype := multipartBody(t,
		map[string]string{"platform": "chatgpt", "maxConcurrency": "5", "enableRecovery": "false"},
		map[string]string{"conversations.json": `[]`, "notes.md": "# hi"},
	)
	req := authed(httptest.NewRequest("POST", "/api/v1/imports", body), "u1")
	req.Header.Set("Content-Type", ctype)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp createImportResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sess-u1", resp.SessionID)
	assert.Equal(t, "/api/v1/imports/sess-u1/stream", resp.StreamURL)

	require.Len(t, imp.reqs, 1)
	got := imp.reqs[0]
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "chatgpt", got.Platform)
	assert.Len(t, got.Files, 2)
	assert.Equal(t, 5, got.Options.MaxConcurrency)
	assert.False(t, got.Options.EnableRecovery)
	assert.Equal(t, 10, got.Options.ChunkSize, "unset fields keep defaults")
}

func TestCreateImport_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	body, ctype := multipartBody(t, map[string]string{"platform": "auto"}, nil)
	req := authed(httptest.NewRequest("POST", "/api/v1/imports", body), "u1")
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ctype = multipartBody(t, map[string]string{"chunkSize": "ten"}, map[string]string{"a.json": "[]"})
	req = authed(httptest.NewRequest("POST", "/api/v1/imports", body), "u1")
	req.Header.Set("Content-Type", ctype)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid chunkSize")

	req = authed(httptest.NewRequest("POST", "/api/v1/imports", strings.NewReader("{}")), "u1")
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetImport_ScopedToUser(t *testing.T) {
	srv, imp := newTestServer(t)
	_, err := imp.tracker.Start("s1", "owner", "auto", 2)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authed(httptest.NewRequest("GET", "/api/v1/imports/s1", nil), "owner"))
	require.Equal(t, http.StatusOK, w.Code)
	var sess progress.Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sess))
	assert.Equal(t, progress.StatusPending, sess.Status)
	assert.Equal(t, 2, sess.TotalCount)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authed(httptest.NewRequest("GET", "/api/v1/imports/s1", nil), "intruder"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamImport(t *testing.T) {
	srv, imp := newTestServer(t)
	tracker := imp.tracker
	_, err := tracker.Start("s1", "u1", "auto", 2)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest("GET", ts.URL+"/api/v1/imports/s1/stream", nil)
	require.NoError(t, err)
	authed(req, "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.IncrementProcessed("s1", true)
		tracker.IncrementProcessed("s1", false)
		tracker.Complete("s1")
	}()

	var (
		events []string
		snaps  []progress.Session
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			var s progress.Session
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s))
			snaps = append(snaps, s)
		}
	}

	require.Len(t, snaps, 4, "initial snapshot, two increments, completion")
	assert.Equal(t, []string{"progress", "progress", "progress", "completed"}, events)
	assert.Equal(t, 100, snaps[3].ProgressPercent)
	assert.Equal(t, 1, snaps[3].ImportedCount)
	assert.Equal(t, 1, snaps[3].SkippedCount)
}

func TestStreamImport_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authed(httptest.NewRequest("GET", "/api/v1/imports/nope/stream", nil), "u1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
