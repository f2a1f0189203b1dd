package daemon

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/wagate/gateway/internal/models"
)

// postMessage sends a text or media message through a ready session
//
//	@Summary		Send message
//	@Description	Accepts multipart (number, message, optional file) or JSON (number, message).
//	@Tags			messages
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	models.SendMessageResponse
//	@Failure		400	{object}	models.ErrorResponse
//	@Failure		500	{object}	models.ErrorResponse
//	@Router			/sessions/{id}/messages [post]
func (s *Server) postMessage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.Config.GetMaxUploadSize()+(1<<20))

	var request models.SendMessageRequest
	if err := c.ShouldBind(&request); err != nil {
		s.getErrorPage(c, http.StatusBadRequest, "Failed to parse request body", err)
		return
	}

	msg := models.OutgoingMessage{
		Number: request.Number,
		Text:   request.Message,
	}

	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		file, err := c.FormFile("file")
		switch {
		case err == nil:
			attachment, err := s.stageUpload(c, file)
			if err != nil {
				s.getErrorPage(c, http.StatusInternalServerError, "Failed to store upload", err)
				return
			}
			msg.Attachment = attachment
		case err != http.ErrMissingFile:
			s.getErrorPage(c, http.StatusBadRequest, "Failed to read upload", err)
			return
		}
	}

	// The attachment is removed by Send whatever the outcome.
	ack, err := s.sessions.Send(c.Request.Context(), c.Param("id"), msg)
	if err != nil {
		s.writeSendError(c, "Failed to send message", err)
		return
	}

	c.JSON(http.StatusOK, models.SendMessageResponse{
		Success:  true,
		Response: ack,
	})
}

// stageUpload writes an uploaded file under the uploads directory using a
// random name.
func (s *Server) stageUpload(c *gin.Context, file *multipart.FileHeader) (*models.Attachment, error) {
	if file.Size > s.Config.GetMaxUploadSize() {
		return nil, fmt.Errorf("upload of %d bytes exceeds the limit of %d", file.Size, s.Config.GetMaxUploadSize())
	}

	dir := s.Config.GetUploadsDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		return nil, err
	}

	return &models.Attachment{
		Path:      path,
		FileName:  filepath.Base(file.Filename),
		MimeType:  file.Header.Get("Content-Type"),
		Temporary: true,
	}, nil
}
