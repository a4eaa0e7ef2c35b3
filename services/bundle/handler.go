package bundle

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the public bundle serving endpoint. The requesting
// domain is taken from the query string, falling back to the Referer header
// set by the embedding page.
func RegisterRoutes(r *gin.Engine, svc *Service) {
	r.GET("/v1/widget.js", func(c *gin.Context) {
		key := c.Query("key")
		domain := c.Query("domain")
		if domain == "" {
			domain = c.GetHeader("Referer")
		}

		out, err := svc.ServeByKey(c.Request.Context(), key, domain)
		if err != nil {
			c.Error(err)
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(out))
	})
}
