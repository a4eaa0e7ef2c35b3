package license

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type validateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	Domain     string `json:"domain"`
}

type updateDomainsRequest struct {
	Domains []string `json:"domains"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type createRequest struct {
	UserID    string     `json:"user_id" binding:"required"`
	Tier      string     `json:"tier" binding:"required"`
	Domains   []string   `json:"domains"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// RegisterRoutes mounts the validate and license admin endpoints.
func RegisterRoutes(r *gin.Engine, svc *Service) {
	v1 := r.Group("/v1")

	v1.POST("/validate", func(c *gin.Context) {
		var req validateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		result, err := svc.Validate(c.Request.Context(), req.LicenseKey, req.Domain)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, result)
	})

	v1.POST("/licenses", func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		lic, err := svc.Create(c.Request.Context(), &CreateLicenseRequest{
			UserID:    req.UserID,
			Tier:      Tier(req.Tier),
			Domains:   req.Domains,
			ExpiresAt: req.ExpiresAt,
		})
		if err != nil {
			c.Error(err)
			return
		}

		// The key is only disclosed once, on issuance.
		c.JSON(http.StatusCreated, lic.ToResponse(true))
	})

	v1.GET("/licenses/:id", func(c *gin.Context) {
		lic, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, lic.ToResponse(false))
	})

	v1.PUT("/licenses/:id/domains", func(c *gin.Context) {
		var req updateDomainsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		lic, err := svc.UpdateDomains(c.Request.Context(), c.Param("id"), req.Domains)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, lic.ToResponse(false))
	})

	v1.POST("/licenses/:id/status", func(c *gin.Context) {
		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		lic, err := svc.UpdateStatus(c.Request.Context(), c.Param("id"), Status(req.Status))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, lic.ToResponse(false))
	})
}
