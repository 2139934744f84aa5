package response

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/rc-quote-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional metadata.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// SeeOther redirects a browser form post to target, appending query to any query target already has.
func SeeOther(c *gin.Context, target string, query url.Values) {
	noStore(c)
	if len(query) > 0 {
		target = withQuery(target, query)
	}
	c.Redirect(http.StatusSeeOther, target)
}

// WantsJSON reports whether the client asked for a JSON answer instead of a redirect.
func WantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func withQuery(target string, query url.Values) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode()
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
