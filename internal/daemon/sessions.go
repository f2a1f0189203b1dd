package daemon

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wagate/gateway/internal/models"
	"github.com/wagate/gateway/internal/qrcode"
)

const defaultHistoryLimit = 100

// getSessions lists resident sessions
//
//	@Summary	List sessions
//	@Tags		sessions
//	@Produce	json
//	@Success	200	{object}	models.SessionListResponse
//	@Router		/sessions [get]
func (s *Server) getSessions(c *gin.Context) {
	list := s.sessions.List()
	c.JSON(http.StatusOK, models.SessionListResponse{
		Sessions: list,
		Count:    len(list),
	})
}

// getSession returns the status of one session
//
//	@Summary	Session status
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session id"
//	@Success	200	{object}	models.SessionResponse
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/sessions/{id} [get]
func (s *Server) getSession(c *gin.Context) {
	info, err := s.sessions.Status(c.Param("id"))
	if err != nil {
		s.writeError(c, "Session not available", err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{
		Success: true,
		Session: &info,
	})
}

// postSessionStart starts a session and by default holds the request until
// it is ready
//
//	@Summary		Start session
//	@Description	Creates the client for the session if none exists. With wait=false the call returns once initialization is underway.
//	@Tags			sessions
//	@Produce		json
//	@Param			id		path		string	true	"Session id"
//	@Param			wait	query		bool	false	"Wait until the session is ready"
//	@Success		200		{object}	models.SessionResponse
//	@Success		202		{object}	models.SessionResponse
//	@Failure		500		{object}	models.ErrorResponse
//	@Failure		504		{object}	models.ErrorResponse
//	@Router			/sessions/{id}/start [post]
func (s *Server) postSessionStart(c *gin.Context) {
	wait := s.Config.Sessions.WaitForReady
	if value, ok := c.GetQuery("wait"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			s.getErrorPage(c, http.StatusBadRequest, "Invalid wait parameter", err)
			return
		}
		wait = parsed
	}

	info, err := s.sessions.Start(c.Request.Context(), c.Param("id"), wait)
	if err != nil {
		s.writeError(c, "Failed to start session", err)
		return
	}

	if info.State == models.SessionStateReady {
		c.JSON(http.StatusOK, models.SessionResponse{
			Success: true,
			Message: "session ready",
			Session: &info,
		})
		return
	}

	c.JSON(http.StatusAccepted, models.SessionResponse{
		Success: true,
		Message: "session starting",
		Session: &info,
	})
}

// getSessionQR waits for the next pairing code
//
//	@Summary		Pairing QR code
//	@Description	Starts the session if needed and waits for the next QR code. format=png returns the image itself.
//	@Tags			sessions
//	@Produce		json,png
//	@Param			id		path		string	true	"Session id"
//	@Param			format	query		string	false	"json (default) or png"
//	@Success		200		{object}	models.QRCodeResponse
//	@Failure		408		{object}	models.ErrorResponse
//	@Failure		409		{object}	models.ErrorResponse
//	@Router			/sessions/{id}/qr [get]
func (s *Server) getSessionQR(c *gin.Context) {
	code, info, err := s.sessions.QRCode(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrAlreadyAuthenticated) {
		c.JSON(http.StatusOK, models.QRCodeResponse{
			Success: true,
			Message: "session already started",
			State:   info.State,
		})
		return
	}
	if err != nil {
		s.writeError(c, "QR code not available", err)
		return
	}

	if c.Query("format") == "png" {
		image, err := qrcode.PNG(code, s.Config.QR.Size)
		if err != nil {
			s.getErrorPage(c, http.StatusInternalServerError, "Failed to render QR code", err)
			return
		}
		c.Data(http.StatusOK, "image/png", image)
		return
	}

	dataURI, err := qrcode.DataURI(code, s.Config.QR.Size)
	if err != nil {
		s.getErrorPage(c, http.StatusInternalServerError, "Failed to render QR code", err)
		return
	}

	c.JSON(http.StatusOK, models.QRCodeResponse{
		Success: true,
		Message: "scan the QR code to link the session",
		QR:      dataURI,
		Code:    code,
		State:   info.State,
	})
}

// deleteSession disconnects a session and schedules credential cleanup.
func (s *Server) deleteSession(c *gin.Context) {
	info, err := s.sessions.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "Failed to stop session", err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{
		Success: true,
		Message: "session stopped",
		Session: &info,
	})
}

func (s *Server) getSessionHistory(c *gin.Context) {
	sessionID := c.Param("id")
	if err := models.ValidateSessionID(sessionID); err != nil {
		s.writeError(c, "Invalid session id", err)
		return
	}

	if s.journal == nil {
		s.writeError(c, "History not available", models.ErrJournalDisabled)
		return
	}

	limit := defaultHistoryLimit
	if value := c.Query("limit"); len(value) > 0 {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.getErrorPage(c, http.StatusBadRequest, "Invalid limit parameter", err)
			return
		}
		limit = parsed
	}

	transitions, err := s.journal.History(c.Request.Context(), sessionID, limit)
	if err != nil {
		s.getErrorPage(c, http.StatusInternalServerError, "Failed to read session history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  sessionID,
		"transitions": transitions,
		"count":       len(transitions),
	})
}
