package logging

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("debug", "json", &buf))
	t.Cleanup(func() { _ = Setup("info", "text", nil) })

	log.WithField("vault", "kv1").Info("hello")
	assert.Contains(t, buf.String(), `"vault":"kv1"`)
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	assert.Error(t, Setup("verbose", "text", nil))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))

	var buf bytes.Buffer
	require.NoError(t, Setup("info", "json", &buf))
	t.Cleanup(func() { _ = Setup("info", "text", nil) })
	log.WithField("value", s).Info("retrieved")
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), `"value":"[REDACTED]"`)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "system-assigned", OrDefault("", "system-assigned"))
	assert.Equal(t, "abc", OrDefault("abc", "system-assigned"))
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer must remain flushable")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/secrets/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "fixed", rec.Header().Get(RequestIDHeader))
}
