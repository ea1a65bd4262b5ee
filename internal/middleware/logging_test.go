package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportgen/internal/logging"
)

func TestLoggingMiddleware(t *testing.T) {
	var out bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &out})

	var ctxRequestID string
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxRequestID = logging.GetRequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/reports/unknown", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", ctxRequestID)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "/reports/unknown", entry["path"])
	assert.Equal(t, float64(404), entry["status"])
	assert.Equal(t, float64(7), entry["bytes"])
}

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Output: &bytes.Buffer{}})
	handler := LoggingMiddleware(logger)(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, rr.Header().Get(RequestIDHeader), 36)
}
