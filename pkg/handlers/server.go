// Package handlers is the gin HTTP layer: session auth, the admin API and
// the public health and metrics endpoints.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/health"
	"github.com/dev-sujan/prepdesk/pkg/lint"
	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/questions"
	"github.com/dev-sujan/prepdesk/pkg/ratelimit"
	"github.com/dev-sujan/prepdesk/pkg/render"
	"github.com/dev-sujan/prepdesk/pkg/scheduler"
	"github.com/dev-sujan/prepdesk/pkg/services"
	"github.com/dev-sujan/prepdesk/pkg/webhooks"
)

// Deps carries the services the HTTP layer exposes.
type Deps struct {
	Site      *models.SiteConfig
	Library   *corpus.Library
	Renderer  *render.HTML
	Git       *services.Git
	Media     *services.Media
	Exporter  *services.Exporter
	Linter    *lint.Runner
	Store     *questions.Store
	Importer  *questions.Importer
	Webhooks  *webhooks.Dispatcher
	Scheduler *scheduler.Scheduler
	Health    *health.Manager
	Limiter   *ratelimit.Limiter // nil disables API rate limiting
}

// Server holds the handler set.
type Server struct {
	Deps
	log zerolog.Logger
}

// NewServer creates the handler set from its dependencies.
func NewServer(deps Deps) *Server {
	return &Server{Deps: deps, log: logging.WithComponent("http")}
}

// Routes mounts everything on the engine. Session middleware and HTML
// templates are the caller's to set up first.
func (s *Server) Routes(r *gin.Engine) {
	r.GET("/healthz", s.Healthz)
	r.GET("/readyz", s.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/login", s.LoginPage)
	r.GET("/login/github", s.GithubLogin)
	r.GET("/auth/callback", s.AuthCallback)
	r.GET("/logout", s.Logout)

	authorized := r.Group("/")
	authorized.Use(AuthRequired)
	{
		authorized.GET("/", s.IndexPage)
		authorized.GET("/edit/*path", s.GuidePage)

		api := authorized.Group("/api")
		if s.Limiter != nil {
			api.Use(RateLimit(s.Limiter))
		}
		{
			api.GET("/guides", s.ListGuides)
			api.GET("/guide", s.GetGuide)
			api.POST("/guide", s.SaveGuide)
			api.DELETE("/guide", s.DeleteGuide)
			api.POST("/create", s.CreateGuide)
			api.GET("/render", s.RenderGuide)
			api.POST("/diff", s.GetDiff)
			api.GET("/config", s.GetSiteConfig)

			api.POST("/sync", s.HandleSync)
			api.POST("/publish", s.HandlePublish)
			api.POST("/export", s.HandleExport)

			api.POST("/lint/run", s.RunLint)
			api.GET("/lint/latest", s.LatestLintReport)
			api.GET("/lint/reports/:id", s.GetLintReport)

			api.GET("/questions", s.ListQuestions)
			api.GET("/questions/categories", s.QuestionCategories)
			api.GET("/questions/stats", s.QuestionStats)
			api.GET("/questions/practice", s.PracticeSet)
			api.POST("/questions/reimport", s.ReimportQuestions)

			api.GET("/webhooks", s.ListWebhooks)
			api.GET("/webhooks/deliveries", s.ListDeliveries)
			api.POST("/webhooks/test", s.TestWebhook)

			api.GET("/media", s.ListMedia)
			api.POST("/media", s.UploadMedia)
			api.DELETE("/media", s.DeleteMedia)
			api.GET("/media/raw", s.ServeMediaRaw)
		}
	}
}

// IndexPage serves the guide browser shell.
func (s *Server) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"Title": s.Site.Title})
}

// GuidePage serves the editor shell for one guide.
func (s *Server) GuidePage(c *gin.Context) {
	c.HTML(http.StatusOK, "guide.html", gin.H{
		"Title": s.Site.Title,
		"Path":  strings.TrimPrefix(c.Param("path"), "/"),
	})
}

// Healthz is the liveness probe. ?verbose=1 attaches component checks.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, s.Health.Health(c.Request.Context(), c.Query("verbose") == "1"))
}

// Readyz is the readiness probe.
func (s *Server) Readyz(c *gin.Context) {
	resp := s.Health.Ready(c.Request.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
