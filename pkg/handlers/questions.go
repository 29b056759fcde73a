package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dev-sujan/prepdesk/pkg/questions"
)

// questionQuery is the question list filter, bound from the query string.
type questionQuery struct {
	Category   string `form:"category"`
	Difficulty string `form:"difficulty" binding:"omitempty,oneof=basic intermediate advanced unrated"`
	Guide      string `form:"guide"`
	Search     string `form:"q"`
	Limit      int    `form:"limit,default=50" binding:"omitempty,min=1,max=500"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
}

func (q questionQuery) filter() questions.Filter {
	return questions.Filter{
		Category:   q.Category,
		Difficulty: q.Difficulty,
		GuidePath:  q.Guide,
		Search:     q.Search,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
}

// ListQuestions returns bank entries matching the query filters.
func (s *Server) ListQuestions(c *gin.Context) {
	var q questionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, total, err := s.Store.List(c.Request.Context(), q.filter())
	if err != nil {
		s.log.Error().Err(err).Msg("question query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": items, "total": total})
}

// QuestionCategories returns the categories present in the bank with their
// counts.
func (s *Server) QuestionCategories(c *gin.Context) {
	categories, err := s.Store.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// QuestionStats summarises the bank.
func (s *Server) QuestionStats(c *gin.Context) {
	stats, err := s.Store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// PracticeSet draws a random practice set, optionally narrowed by category
// or difficulty.
func (s *Server) PracticeSet(c *gin.Context) {
	var q struct {
		N          int    `form:"n,default=5" binding:"omitempty,min=1,max=50"`
		Category   string `form:"category"`
		Difficulty string `form:"difficulty" binding:"omitempty,oneof=basic intermediate advanced unrated"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	set, err := s.Store.Practice(c.Request.Context(), q.N, questions.Filter{
		Category:   q.Category,
		Difficulty: q.Difficulty,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, set)
}

// ReimportQuestions rebuilds the bank from the question-list files.
func (s *Server) ReimportQuestions(c *gin.Context) {
	count, err := s.Importer.ImportAll(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("question reimport failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "imported": count})
}
