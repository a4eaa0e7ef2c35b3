package widget

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"widget-controlplane/pkg/db/pagination"
)

type updateConfigRequest struct {
	Config datatypes.JSON `json:"config" binding:"required"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// RegisterRoutes mounts the widget CRUD endpoints. Creation goes through the
// quota-guarded path; quota rejections carry the tier and numeric limit.
func RegisterRoutes(r *gin.Engine, svc *Service) {
	v1 := r.Group("/v1")

	v1.POST("/widgets", func(c *gin.Context) {
		var req CreateWidgetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		w, err := svc.CreateWithLimit(c.Request.Context(), &req)
		if err != nil {
			var quotaErr *QuotaExceededError
			if errors.As(err, &quotaErr) {
				c.JSON(http.StatusForbidden, gin.H{
					"error": gin.H{
						"code":    "QUOTA_EXCEEDED",
						"message": quotaErr.Error(),
						"tier":    string(quotaErr.Tier),
						"limit":   quotaErr.Limit,
					},
				})
				return
			}
			c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, w.ToResponse())
	})

	v1.GET("/widgets", func(c *gin.Context) {
		licenseID := c.Query("license_id")
		if licenseID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "license_id is required"}})
			return
		}

		var p pagination.Pagination
		if err := c.ShouldBindQuery(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		widgets, info, err := svc.List(c.Request.Context(), licenseID, p)
		if err != nil {
			c.Error(err)
			return
		}

		out := make([]*Response, 0, len(widgets))
		for _, w := range widgets {
			out = append(out, w.ToResponse())
		}
		c.JSON(http.StatusOK, gin.H{"widgets": out, "page_info": info})
	})

	v1.GET("/widgets/:id", func(c *gin.Context) {
		w, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, w.ToResponse())
	})

	v1.PUT("/widgets/:id/config", func(c *gin.Context) {
		var req updateConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		w, err := svc.UpdateConfig(c.Request.Context(), c.Param("id"), req.Config)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, w.ToResponse())
	})

	v1.POST("/widgets/:id/status", func(c *gin.Context) {
		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		w, err := svc.UpdateStatus(c.Request.Context(), c.Param("id"), Status(req.Status))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, w.ToResponse())
	})

	v1.POST("/widgets/:id/deploy", func(c *gin.Context) {
		w, err := svc.Deploy(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, w.ToResponse())
	})

	v1.DELETE("/widgets/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
