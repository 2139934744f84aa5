package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/rc-quote-api/pkg/config"
	"github.com/noah-isme/rc-quote-api/pkg/middleware/requestid"
)

func TestNewWritesToLogFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "rc-email.log")
	logr, err := New(&config.Config{
		Env: config.EnvProduction,
		Log: config.LogConfig{Level: "debug", Format: "json", File: file},
	})
	require.NoError(t, err)
	require.True(t, logr.Core().Enabled(zapcore.DebugLevel))

	logr.Info("quote sent")
	_ = logr.Sync()
	require.FileExists(t, file)
}

func TestLogFileFollowsRotation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "rc-email.log")
	logr, err := New(&config.Config{
		Env: config.EnvProduction,
		Log: config.LogConfig{Level: "info", Format: "json", File: file},
	})
	require.NoError(t, err)

	logr.Info("before rotation")
	_ = logr.Sync()

	rotated := file + ".tmp"
	require.NoError(t, os.WriteFile(rotated, []byte("kept line\n"), 0o644))
	require.NoError(t, os.Rename(rotated, file))

	logr.Info("after rotation")
	_ = logr.Sync()

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(content), "kept line\n"))
	require.Contains(t, string(content), "after rotation")
	require.NotContains(t, string(content), "before rotation")
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.Use(GinMiddleware(zap.New(core)))
	r.POST("/enviar-email", func(c *gin.Context) { c.Status(http.StatusSeeOther) })

	req := httptest.NewRequest(http.MethodPost, "/enviar-email", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, int64(http.StatusSeeOther), fields["status"])
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "/enviar-email", fields["path"])
}
