package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-sujan/prepdesk/pkg/questions"
)

// RunLint lints the whole corpus, or just the listed paths when the request
// names some. Full runs are persisted and announced like scheduled sweeps;
// partial runs are ephemeral.
func (s *Server) RunLint(c *gin.Context) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if len(req.Paths) > 0 {
		report, err := s.Linter.Files(c.Request.Context(), req.Paths)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	report, err := s.Scheduler.RunLintSweep(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("lint sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// LatestLintReport returns the most recent stored lint run.
func (s *Server) LatestLintReport(c *gin.Context) {
	report, err := s.Store.LatestLintReport(c.Request.Context())
	if err != nil {
		if errors.Is(err, questions.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no lint run recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetLintReport returns one stored lint run by id.
func (s *Server) GetLintReport(c *gin.Context) {
	report, err := s.Store.LintReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, questions.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
