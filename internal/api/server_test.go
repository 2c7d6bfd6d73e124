package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextconvert/reelmix/internal/api/websocket"
	"github.com/nextconvert/reelmix/internal/modules/jobs"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopRunner struct{ calls int }

func (n *noopRunner) Run(context.Context, montage.Request) (*montage.Result, error) {
	n.calls++
	return nil, montage.ErrMediaOpen
}

type emptyRuns struct{}

func (emptyRuns) CreateRun(context.Context, jobs.CreateRunParams) (*jobs.Run, error) {
	return nil, jobs.ErrTooManyRuns
}

func (emptyRuns) GetRun(context.Context, string, string) (*jobs.Run, error) {
	return nil, jobs.ErrRunNotFound
}

func (emptyRuns) ListRuns(context.Context, string, string) ([]*jobs.Run, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (http.Handler, *noopRunner) {
	t.Helper()
	cfg := &config.Config{
		AllowedOrigins: []string{"https://app.example"},
		MaxUploadSize:  1 << 20,
		Montage: config.MontageConfig{
			WorkspaceDir:  t.TempDir(),
			DefaultPreset: montage.DefaultPreset,
		},
	}

	store, err := storage.NewService(config.StorageConfig{Backend: "local", BasePath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)
	runner := &noopRunner{}

	server := NewServer(ServerConfig{
		Config:   cfg,
		Logger:   zap.NewNop(),
		Storage:  store,
		WSHub:    websocket.NewHub(zap.NewNop(), cfg.AllowedOrigins, m),
		Pipeline: runner,
		Presets:  montage.NewPresets(),
		Runs:     emptyRuns{},
		Metrics:  m,
		Gatherer: registry,
	})
	return server.Router(), runner
}

func uploadRequest(t *testing.T, target, intervals, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("intervals", intervals))
	part, err := mw.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// mp4Header is enough of an ISO BMFF box for the sniffer to report video/mp4
var mp4Header = string([]byte{0, 0, 0, 0x18}) + "ftypmp42" + string(make([]byte, 12))

func TestRouter(t *testing.T) {
	router, runner := newTestServer(t)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("presets", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presets/batch", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"mode":"batch"`)
	})

	t.Run("legacy clip endpoint rejects malformed intervals", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, uploadRequest(t, "/clip-video/", "0-5,abc", "in.mp4", mp4Header))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
		assert.Zero(t, runner.calls)
	})

	t.Run("clip media errors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, uploadRequest(t, "/api/v1/clips", "0-5", "in.mp4", mp4Header))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "MEDIA_ERROR")
		assert.Equal(t, 1, runner.calls)
	})

	t.Run("uploads are validated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, uploadRequest(t, "/api/v1/clips/batch", "0-5", "in.mp4", "plain text"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("runs get an anonymous identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
		assert.NotEmpty(t, rec.Result().Cookies())
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	})

	t.Run("run limits", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, uploadRequest(t, "/api/v1/runs", "0-5", "in.mp4", mp4Header))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/clips", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("metrics use route patterns", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `path="/api/v1/presets/{name}"`)
		assert.NotContains(t, rec.Body.String(), `path="/api/v1/presets/batch"`)
	})
}
