package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// readUpload reads the multipart "file" field, capped at h.maxUpload. It
// writes the error response itself and reports false on failure.
func (h *Handlers) readUpload(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Image is too large")
			return nil, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return nil, false
	}
	if fh.Size > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Image is too large")
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read upload")
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read upload")
		return nil, false
	}
	if int64(len(data)) > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Image is too large")
		return nil, false
	}
	return data, true
}
