package daemon

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/client/bridge"
	"github.com/wagate/gateway/internal/models"
)

const bridgeTokenHeader = "X-Bridge-Token"

// postBridgeEvent receives lifecycle CloudEvents from the automation worker.
func (s *Server) postBridgeEvent(c *gin.Context) {
	if s.events == nil {
		s.writeError(c, "Bridge not configured", models.ErrBridgeNotConfigured)
		return
	}

	if !s.bridgeAuthorized(c) {
		s.writeError(c, "Bridge callback rejected", models.ErrBridgeUnauthenticated)
		return
	}

	event, err := cehttp.NewEventFromHTTPRequest(c.Request)
	if err != nil {
		s.getErrorPage(c, http.StatusBadRequest, "Invalid lifecycle event", err)
		return
	}

	LogWithCorrelation(c).WithFields(logrus.Fields{
		"session_id": event.Subject(),
		"type":       event.Type(),
	}).Debugln("Lifecycle event received")

	if err := s.events.Dispatch(*event); err != nil {
		if errors.Is(err, bridge.ErrUnknownInstance) {
			// The client was torn down; tell the worker to stop reporting.
			s.getErrorPage(c, http.StatusGone, "Unknown client instance", err)
			return
		}
		s.getErrorPage(c, http.StatusBadRequest, "Lifecycle event rejected", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "id": event.ID()})
}

func (s *Server) bridgeAuthorized(c *gin.Context) bool {
	expected := s.Config.Bridge.CallbackToken
	if len(expected) == 0 {
		return true
	}

	provided := c.GetHeader(bridgeTokenHeader)
	if len(provided) == 0 {
		provided = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
