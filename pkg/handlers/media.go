package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
)

// ListMedia lists the assets in a collection's media folder.
func (s *Server) ListMedia(c *gin.Context) {
	files, err := s.Media.List(c.Query("collection"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list media: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, files)
}

// UploadMedia stores one multipart file upload.
func (s *Server) UploadMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	info, err := s.Media.Save(file, c.PostForm("collection"))
	if err != nil {
		if errors.Is(err, corpus.ErrUnsafePath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.Error().Err(err).Str("file", file.Filename).Msg("media upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteMedia removes one asset by name.
func (s *Server) DeleteMedia(c *gin.Context) {
	var req struct {
		Name       string `json:"name" binding:"required"`
		Collection string `json:"collection"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Media.Delete(req.Name, req.Collection); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ServeMediaRaw streams one asset from the media folder.
func (s *Server) ServeMediaRaw(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	absPath, err := s.Media.AbsPath(name, c.Query("collection"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(absPath)
}
