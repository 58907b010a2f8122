package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/monitoring"
	"github.com/charlesng35/taskhub/pkg/response"
)

// Liveness reports that the process is serving requests.
func Liveness() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": monitoring.StatusUp})
	}
}

// Readiness evaluates the dependency probes. Degraded dependencies still
// serve traffic; a down dependency answers 503.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		status := http.StatusOK
		if report.Status == monitoring.StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response.Response{Success: status == http.StatusOK, Data: report})
	}
}
