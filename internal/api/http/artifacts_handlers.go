package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/artifacts"
)

// ListArtifacts lists the files below the session's output folder. With
// ?archive=tar.gz or ?archive=tar.zst the folder is streamed as an archive
// instead.
func (h *Handlers) ListArtifacts(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	id := s.ID().String()

	if name := c.Query("archive"); name != "" {
		format, err := artifacts.ParseFormat(name)
		if err != nil {
			badRequest(c, id, err)
			return
		}
		h.streamArchive(c, id, s.OutputFolder(), format)
		return
	}

	done := h.metrics.Track("artifacts.list")
	list, err := artifacts.List(c.Request.Context(), s.OutputFolder())
	done(err)
	if err != nil {
		artifactError(c, id, err)
		return
	}
	respond(c, http.StatusOK, id, list)
}

func (h *Handlers) streamArchive(c *gin.Context, id, root string, format artifacts.Format) {
	if root == "" {
		artifactError(c, id, artifacts.ErrNoOutput)
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+id+"."+string(format)+`"`)
	c.Status(http.StatusOK)

	done := h.metrics.Track("artifacts.archive")
	err := artifacts.WriteArchive(c.Request.Context(), root, c.Writer, format)
	done(err)
	if err != nil {
		// headers are gone; the truncated stream is all the client gets
		_ = c.Error(err)
		h.logger.Warn("Artifact archive failed", zap.String("session", id), zap.Error(err))
	}
}

// GetArtifact serves one file below the session's output folder. Text files
// are served as UTF-8.
func (h *Handlers) GetArtifact(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	id := s.ID().String()

	f, err := artifacts.Open(s.OutputFolder(), c.Param("path"))
	if err != nil {
		artifactError(c, id, err)
		return
	}
	defer f.Close()

	c.Header("X-Session-ID", id)
	c.Header("Content-Length", strconv.FormatInt(f.Size, 10))
	c.Header("Content-Type", f.MIME)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		_ = c.Error(err)
	}
}

func artifactError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, artifacts.ErrOutsideRoot):
		badRequest(c, id, err)
	case errors.Is(err, artifacts.ErrNoOutput), errors.Is(err, artifacts.ErrNotFile), errors.Is(err, fs.ErrNotExist):
		_ = c.Error(err)
		c.JSON(http.StatusNotFound, Response{
			SessionID: id,
			Status:    StatusUnknownError,
			Value:     ErrorValue{Message: err.Error()},
		})
	default:
		fail(c, id, err)
	}
}
