package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func loggedRequest(t *testing.T, userAgent string) string {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/vault/stats", nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotEmpty(t, buf.String())
	return buf.String()
}

func TestLoggerRecordsClientMetadata(t *testing.T) {
	line := loggedRequest(t, chromeOnWindows)

	assert.Contains(t, line, `"client_browser":"Chrome"`)
	assert.Contains(t, line, `"client_os":"Windows 10"`)
	assert.Contains(t, line, `"status":204`)
}

func TestLoggerOmitsClientMetadataWithoutUserAgent(t *testing.T) {
	line := loggedRequest(t, "")

	assert.NotContains(t, line, "client_browser")
	assert.NotContains(t, line, "client_os")
	assert.Contains(t, line, `"path":"/vault/stats"`)
}
