package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/dev-sujan/prepdesk/pkg/config"
	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/markdown"
	"github.com/dev-sujan/prepdesk/pkg/models"
)

// guidePayload is the save and diff request body. Clients send either
// structured front matter plus body, or the whole file as content.
type guidePayload struct {
	Path        string                 `json:"path" binding:"required"`
	FrontMatter map[string]interface{} `json:"frontmatter"`
	Body        string                 `json:"body"`
	Format      string                 `json:"format"`
	Content     string                 `json:"content"`
}

// fileContent reassembles the on-disk representation. A payload carrying
// neither front matter nor content yields nil.
func (p guidePayload) fileContent() ([]byte, error) {
	if p.FrontMatter != nil {
		return markdown.ComposeFile(p.FrontMatter, p.Body, p.Format)
	}
	if p.Content == "" {
		return nil, nil
	}
	return []byte(p.Content), nil
}

func guideErrStatus(err error) int {
	switch {
	case errors.Is(err, corpus.ErrUnsafePath):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ListGuides returns the corpus listing.
func (s *Server) ListGuides(c *gin.Context) {
	guides, err := s.Library.List(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("corpus listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list guides"})
		return
	}
	c.JSON(http.StatusOK, guides)
}

// GetGuide returns one guide with front matter, body and structure.
func (s *Server) GetGuide(c *gin.Context) {
	relPath := c.Query("path")
	if relPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path required"})
		return
	}
	guide, err := s.Library.Load(c.Request.Context(), relPath)
	if err != nil {
		c.JSON(guideErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, guide)
}

// SaveGuide writes a guide back to disk.
func (s *Server) SaveGuide(c *gin.Context) {
	var req guidePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FrontMatter == nil && req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frontmatter or content required"})
		return
	}

	var err error
	if req.FrontMatter != nil {
		err = s.Library.Save(c.Request.Context(), req.Path, req.FrontMatter, req.Body, req.Format)
	} else {
		err = s.Library.SaveRaw(c.Request.Context(), req.Path, []byte(req.Content))
	}
	if err != nil {
		if errors.Is(err, corpus.ErrUnsafePath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.Error().Err(err).Str("path", req.Path).Msg("guide save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "path": req.Path})
}

// DeleteGuide removes a guide file.
func (s *Server) DeleteGuide(c *gin.Context) {
	relPath := c.Query("path")
	if relPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path required"})
		return
	}
	if err := s.Library.Delete(c.Request.Context(), relPath); err != nil {
		c.JSON(guideErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "path": relPath})
}

// CreateGuide makes a new guide in a collection.
func (s *Server) CreateGuide(c *gin.Context) {
	var req struct {
		Collection string                 `json:"collection" binding:"required"`
		Filename   string                 `json:"filename" binding:"required"`
		Fields     map[string]interface{} `json:"fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	relPath, err := s.Library.Create(c.Request.Context(), req.Collection, req.Filename, req.Fields)
	if err != nil {
		switch {
		case errors.Is(err, corpus.ErrExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, corpus.ErrUnsafePath):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created", "path": relPath})
}

// RenderGuide returns the HTML preview fragment for one guide.
func (s *Server) RenderGuide(c *gin.Context) {
	relPath := c.Query("path")
	if relPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path required"})
		return
	}
	guide, err := s.Library.Load(c.Request.Context(), relPath)
	if err != nil {
		c.JSON(guideErrStatus(err), gin.H{"error": err.Error()})
		return
	}
	html, err := s.Renderer.Render(guide.Path, []byte(guide.Body))
	if err != nil {
		s.log.Error().Err(err).Str("path", relPath).Msg("render failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": guide.Path, "title": guide.Title, "html": html})
}

// GetDiff compares editor content against the saved file and the last
// commit.
func (s *Server) GetDiff(c *gin.Context) {
	var req guidePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	absPath, err := s.Library.AbsPath(req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	edited, err := req.fileContent()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repoRel := path.Join(config.ContentDir, req.Path)
	diff, source, err := s.Git.Diff(c.Request.Context(), absPath, repoRel, edited)
	if err != nil {
		s.log.Error().Err(err).Str("path", req.Path).Msg("diff failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "diff failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"diff": diff, "source": source})
}

// GetSiteConfig returns the parsed site file. Webhook secrets are excluded
// by their marshalling.
func (s *Server) GetSiteConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.Site)
}

// HandleSync pulls the corpus from the remote and refreshes the listing.
func (s *Server) HandleSync(c *gin.Context) {
	out, err := s.Git.Sync(c.Request.Context(), sessionToken(c))
	if err != nil {
		s.log.Error().Err(err).Msg("sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "log": out})
		return
	}
	s.Library.Invalidate()
	s.Webhooks.Publish(models.Event{Name: models.EventCorpusSynced})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "log": out})
}

// HandlePublish commits local changes and pushes them to the remote.
func (s *Server) HandlePublish(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	out, err := s.Git.Publish(c.Request.Context(), sessionToken(c), req.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("publish failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "log": out})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "log": out})
}

// HandleExport rebuilds the static HTML site from the corpus.
func (s *Server) HandleExport(c *gin.Context) {
	result, err := s.Exporter.Export(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}
