package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (header, seen string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/health", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if inbound != "" {
		req.Header.Set(headerKey, inbound)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Header().Get(headerKey), seen
}

func TestInboundIDIsKept(t *testing.T) {
	header, seen := serve(t, "edge-42_a")
	require.Equal(t, "edge-42_a", header)
	require.Equal(t, header, seen)
}

func TestUnsafeIDIsReplaced(t *testing.T) {
	for _, inbound := range []string{"", "bad id\r\n", strings.Repeat("a", 65)} {
		header, seen := serve(t, inbound)
		_, err := uuid.Parse(header)
		require.NoError(t, err, inbound)
		require.Equal(t, header, seen)
	}
}
