package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
)

func newContext(accept string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/enviar-email", nil)
	if accept != "" {
		c.Request.Header.Set("Accept", accept)
	}
	return c, w
}

func TestErrorUsesCategoryStatus(t *testing.T) {
	c, w := newContext("application/json")
	require.True(t, WantsJSON(c))

	Error(c, appErrors.Clone(appErrors.ErrRateLimited, "slow down"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)
	require.Equal(t, "slow down", env.Error.Message)
}

func TestSeeOtherAppendsQuery(t *testing.T) {
	c, w := newContext("text/html")
	require.False(t, WantsJSON(c))

	SeeOther(c, "obrigado.html", url.Values{"sent": {"true"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "obrigado.html?sent=true", w.Header().Get("Location"))
}

func TestWithQuery(t *testing.T) {
	q := url.Values{"sent": {"true"}}
	require.Equal(t, "obrigado.html?sent=true", withQuery("obrigado.html", q))
	require.Equal(t, "/done?lang=pt&sent=true", withQuery("/done?lang=pt", q))
}
