package daemon

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
)

// healthHandler handles the health check endpoint
//
//	@Summary		Health check
//	@Description	Reports the gateway status and resident sessions per state
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	models.HealthResponse
//	@Router			/health [get]
func (s *Server) healthHandler(c *gin.Context) {
	services := map[string]models.HealthState{
		"sessions": models.HealthStatusHealthy,
	}

	if s.events != nil {
		services["bridge"] = models.HealthStatusHealthy
	}
	if s.journal != nil {
		services["journal"] = models.HealthStatusHealthy
	}

	status := models.HealthStatusHealthy
	if s.draining.Load() {
		status = models.HealthStatusDegraded
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.GetVersion(),
		Uptime:    time.Since(s.StartTime).Round(time.Second).String(),
		Services:  services,
		Sessions:  s.sessions.Counts(),
	})
}

// readyHandler handles the readiness check endpoint
func (s *Server) readyHandler(c *gin.Context) {
	if s.draining.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "draining",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.GetVersion(),
	})
}

// getLogs returns buffered log entries. Supported filters are level (comma
// separated), session_id, since/until (RFC3339) and limit.
func (s *Server) getLogs(c *gin.Context) {
	filter := models.LogFilter{
		SessionID: c.Query("session_id"),
	}

	if value := c.Query("level"); len(value) > 0 {
		for _, name := range strings.Split(value, ",") {
			level, err := logrus.ParseLevel(strings.TrimSpace(name))
			if err != nil {
				s.getErrorPage(c, http.StatusBadRequest, "Invalid level parameter", err)
				return
			}
			filter.Levels = append(filter.Levels, level)
		}
	}

	for param, target := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		value := c.Query(param)
		if len(value) == 0 {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			s.getErrorPage(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s parameter", param), err)
			return
		}
		*target = &parsed
	}

	if value := c.Query("limit"); len(value) > 0 {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.getErrorPage(c, http.StatusBadRequest, "Invalid limit parameter", err)
			return
		}
		filter.Limit = limit
	}

	entries := []*models.LogEntry{}
	if s.logs != nil {
		if found := s.logs.GetEventsWithFilter(filter); found != nil {
			entries = found
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  entries,
		"count": len(entries),
	})
}
