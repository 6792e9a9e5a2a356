package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	prod, err := New("production", "")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))

	dev, err := New("development", "")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	warn, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, warn.Core().Enabled(zapcore.InfoLevel))

	_, err = New("production", "loud")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := middleware.RequestID(Middleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/listings", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])
	assert.Equal(t, "/listings", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(404), entries[1].ContextMap()["status"])
}
