package daemon

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wagate/gateway/internal/models"
)

// getErrorPage aborts the request with a JSON error body. Internal errors
// only expose the taxonomy sentinel they wrap, or the title when there is
// none; the full error is logged.
func (s *Server) getErrorPage(c *gin.Context, code int, message string, err ...error) {
	s.errorPage(c, code, message, false, err...)
}

func (s *Server) errorPage(c *gin.Context, code int, message string, verbatim bool, err ...error) {
	var (
		messages []string
		public   []string
		state    models.SessionState
	)

	logger := LogWithCorrelation(c).WithField("code", code)

	for _, e := range err {
		if e == nil {
			continue
		}
		messages = append(messages, e.Error())
		if text, ok := models.PublicMessage(e); ok {
			public = append(public, text)
		}
		if found, ok := models.SessionStateOf(e); ok && len(state) == 0 {
			state = found
		}
		logger = logger.WithError(e)
	}

	if code >= http.StatusInternalServerError {
		logger.Errorln(message)
	} else {
		logger.Warnln(message)
	}

	if code == http.StatusInternalServerError && !verbatim {
		messages = public
	}

	detail := strings.Join(messages, ". ")
	if len(detail) == 0 {
		detail = message
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Success: false,
		Code:    code,
		Title:   message,
		Message: detail,
		State:   state,
	})
}

// writeError maps err onto its status code.
func (s *Server) writeError(c *gin.Context, message string, err error) {
	s.getErrorPage(c, models.HTTPStatusFor(err), message, err)
}

// writeSendError is writeError for the send path: an error outside the
// taxonomy came from the client transport and is passed through untouched.
func (s *Server) writeSendError(c *gin.Context, message string, err error) {
	code := models.HTTPStatusFor(err)
	s.errorPage(c, code, message, code == http.StatusInternalServerError, err)
}
