package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dev-sujan/prepdesk/pkg/config"
	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/health"
	"github.com/dev-sujan/prepdesk/pkg/lint"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/questions"
	"github.com/dev-sujan/prepdesk/pkg/ratelimit"
	"github.com/dev-sujan/prepdesk/pkg/render"
	"github.com/dev-sujan/prepdesk/pkg/scheduler"
	"github.com/dev-sujan/prepdesk/pkg/services"
	"github.com/dev-sujan/prepdesk/pkg/webhooks"
)

const testTemplates = `{{define "login.html"}}login{{end}}` +
	`{{define "index.html"}}index{{end}}` +
	`{{define "guide.html"}}guide {{.Path}}{{end}}`

type testApp struct {
	srv    *Server
	router *gin.Engine
	repo   string
	cookie string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := t.TempDir()
	writeFixture(t, repo, "content/guides/oauth.md", `---
title: OAuth Guide
---

## Token Exchange

Swap the code for a token:

`+"```go\ntoken, err := conf.Exchange(ctx, code)\n```"+`

See the [question list](../questions.md#oauth).
`)
	writeFixture(t, repo, "content/questions.md", `---
title: Interview Questions
---

## OAuth

- [basic] What is a bearer token?
- [advanced] Walk through the token exchange.
`)

	site := &models.SiteConfig{
		Title:       "Prep Desk",
		MediaFolder: "static/uploads",
		Collections: []models.Collection{
			{
				Name: "guides", Label: "Study Guides", Folder: "guides",
				Extension: "md", Format: "yaml", Role: models.RoleGuides,
				Fields: []models.Field{{Name: "title", Widget: "string"}},
			},
			{Name: "questions", Folder: ".", Extension: "md", Format: "yaml", Role: models.RoleQuestions},
		},
		Lint:     models.LintPolicy{FailOn: "error"},
		Webhooks: []models.WebhookEndpoint{{Name: "ci", URL: "http://127.0.0.1:9/hook", Secret: "hook-secret-1"}},
	}

	lib := corpus.NewLibrary(repo, "content", site)
	store, err := questions.NewStore(filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runner := lint.NewRunner(lib, site)
	dispatcher := webhooks.New(site.Webhooks)

	srv := NewServer(Deps{
		Site:     site,
		Library:  lib,
		Renderer: render.NewHTML(nil, 0),
		Git:      services.NewGit(repo, "origin", "main", "Prepdesk Bot", "bot@prepdesk.local"),
		Media:    services.NewMedia(repo, site),
		Exporter: services.NewExporter(lib, site,
			render.NewHTML(nil, 0, render.WithGuideLinksAsHTML()),
			repo, filepath.Join(repo, "public"), site.Title),
		Linter:    runner,
		Store:     store,
		Importer:  questions.NewImporter(lib, store),
		Webhooks:  dispatcher,
		Scheduler: scheduler.New(runner, store, dispatcher, scheduler.Config{}),
		Health:    health.NewManager("test"),
	})

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("pages").Parse(testTemplates)))
	r.Use(sessions.Sessions("prepdesk_session", cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
	r.GET("/session", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(sessionTokenKey, "test-token")
		_ = session.Save()
		c.Status(http.StatusNoContent)
	})
	srv.Routes(r)

	app := &testApp{srv: srv, router: r, repo: repo}
	app.login(t)
	return app
}

func writeFixture(t *testing.T, repo, relPath, content string) {
	t.Helper()
	abs := filepath.Join(repo, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (a *testApp) login(t *testing.T) {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	a.cookie = w.Header().Get("Set-Cookie")
	require.NotEmpty(t, a.cookie)
}

func (a *testApp) request(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cookie", a.cookie)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/guides", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "login", w.Body.String())
}

func TestOAuthFlow(t *testing.T) {
	app := newTestApp(t)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"gh-token","token_type":"bearer"}`)
	}))
	defer tokenSrv.Close()

	prev := config.OauthConf
	config.OauthConf = &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  tokenSrv.URL + "/authorize",
			TokenURL: tokenSrv.URL + "/token",
		},
		RedirectURL: "http://localhost/auth/callback",
	}
	t.Cleanup(func() { config.OauthConf = prev })

	// Login issues a state nonce and redirects to the provider.
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/github", nil))
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
	nonceCookie := w.Header().Get("Set-Cookie")
	require.NotEmpty(t, nonceCookie)

	// Callback with the matching state completes the flow.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state="+url.QueryEscape(state)+"&code=abc", nil)
	req.Header.Set("Cookie", nonceCookie)
	app.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/", w.Header().Get("Location"))
	authedCookie := w.Header().Get("Set-Cookie")
	require.NotEmpty(t, authedCookie)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/guides", nil)
	req.Header.Set("Cookie", authedCookie)
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// A stale or forged state is rejected before any token exchange.
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/github", nil))
	freshCookie := w.Header().Get("Set-Cookie")
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/auth/callback?state=forged&code=abc", nil)
	req.Header.Set("Cookie", freshCookie)
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGetGuide(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/api/guides", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var guides []models.Guide
	decode(t, w, &guides)
	require.Len(t, guides, 2)
	assert.Equal(t, "guides/oauth.md", guides[0].Path)
	assert.Equal(t, "OAuth Guide", guides[0].Title)

	w = app.request(t, http.MethodGet, "/api/guide?path=guides/oauth.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var guide models.Guide
	decode(t, w, &guide)
	assert.Equal(t, "OAuth Guide", guide.Title)
	require.NotNil(t, guide.Structure)
	assert.Equal(t, "token-exchange", guide.Structure.Sections[0].Anchor)

	w = app.request(t, http.MethodGet, "/api/guide?path=guides/missing.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.request(t, http.MethodGet, "/api/guide?path=../prepdesk.yml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.request(t, http.MethodGet, "/api/guide", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveGuide(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/api/guide", gin.H{
		"path":        "guides/oauth.md",
		"frontmatter": gin.H{"title": "OAuth Deep Dive"},
		"body":        "## Scopes\n",
		"format":      "yaml",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = app.request(t, http.MethodGet, "/api/guide?path=guides/oauth.md", nil)
	var guide models.Guide
	decode(t, w, &guide)
	assert.Equal(t, "OAuth Deep Dive", guide.Title)
	assert.Contains(t, guide.Body, "## Scopes")

	// Binding rejects a payload without a path.
	w = app.request(t, http.MethodPost, "/api/guide", gin.H{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// And a payload with nothing to write.
	w = app.request(t, http.MethodPost, "/api/guide", gin.H{"path": "guides/oauth.md"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGuide(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/api/create", gin.H{
		"collection": "guides",
		"filename":   "webhooks",
		"fields":     gin.H{"title": "Webhooks"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "guides/webhooks.md")

	w = app.request(t, http.MethodPost, "/api/create", gin.H{
		"collection": "guides",
		"filename":   "webhooks",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.request(t, http.MethodPost, "/api/create", gin.H{"collection": "guides"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteGuide(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodDelete, "/api/guide?path=guides/oauth.md", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.request(t, http.MethodGet, "/api/guide?path=guides/oauth.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.request(t, http.MethodDelete, "/api/guide?path=guides/oauth.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenderGuide(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/api/render?path=guides/oauth.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Title string `json:"title"`
		HTML  string `json:"html"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "OAuth Guide", resp.Title)
	assert.Contains(t, resp.HTML, `id="token-exchange"`)
	assert.Contains(t, resp.HTML, "<pre")
	assert.Contains(t, resp.HTML, "Exchange")
	// The preview keeps .md links untouched; only the export rewrites them.
	assert.Contains(t, resp.HTML, `href="../questions.md#oauth"`)
}

func TestSiteConfigOmitsWebhookSecrets(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Study Guides")
	assert.Contains(t, w.Body.String(), `"ci"`)
	assert.NotContains(t, w.Body.String(), "hook-secret-1")
}

func TestQuestionEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/api/questions/reimport", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var imported struct {
		Imported int `json:"imported"`
	}
	decode(t, w, &imported)
	assert.Equal(t, 2, imported.Imported)

	w = app.request(t, http.MethodGet, "/api/questions?category=oauth&difficulty=basic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Questions []models.Question `json:"questions"`
		Total     int               `json:"total"`
	}
	decode(t, w, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "What is a bearer token?", list.Questions[0].Prompt)

	w = app.request(t, http.MethodGet, "/api/questions?difficulty=impossible", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.request(t, http.MethodGet, "/api/questions/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"OAuth"`)

	w = app.request(t, http.MethodGet, "/api/questions/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.BankStats
	decode(t, w, &stats)
	assert.Equal(t, 2, stats.Total)

	w = app.request(t, http.MethodGet, "/api/questions/practice?n=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var set models.PracticeSet
	decode(t, w, &set)
	assert.Len(t, set.Questions, 1)
	assert.False(t, set.GeneratedAt.IsZero())
}

func TestLintEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/api/lint/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.request(t, http.MethodPost, "/api/lint/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report models.LintReport
	decode(t, w, &report)
	assert.Equal(t, 2, report.Files)
	require.NotEmpty(t, report.ID)

	w = app.request(t, http.MethodGet, "/api/lint/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var latest models.LintReport
	decode(t, w, &latest)
	assert.Equal(t, report.ID, latest.ID)

	w = app.request(t, http.MethodGet, "/api/lint/reports/"+report.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.request(t, http.MethodGet, "/api/lint/reports/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Partial runs lint only the named files and are not persisted.
	w = app.request(t, http.MethodPost, "/api/lint/run", gin.H{"paths": []string{"guides/oauth.md"}})
	require.Equal(t, http.StatusOK, w.Code)
	var partial models.LintReport
	decode(t, w, &partial)
	assert.Equal(t, 1, partial.Files)

	w = app.request(t, http.MethodGet, "/api/lint/latest", nil)
	var still models.LintReport
	decode(t, w, &still)
	assert.Equal(t, report.ID, still.ID)
}

func TestWebhookEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/api/webhooks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ci"`)
	assert.NotContains(t, w.Body.String(), "hook-secret-1")

	w = app.request(t, http.MethodGet, "/api/webhooks/deliveries", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.request(t, http.MethodGet, "/api/webhooks/deliveries?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.request(t, http.MethodPost, "/api/webhooks/test", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMediaEndpoints(t *testing.T) {
	app := newTestApp(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "logo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Cookie", app.cookie)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved services.MediaFile
	decode(t, w, &saved)
	require.NotEmpty(t, saved.Name)

	w = app.request(t, http.MethodGet, "/api/media", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), saved.Name)

	w = app.request(t, http.MethodGet, "/api/media/raw?name="+url.QueryEscape(saved.Name), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())

	w = app.request(t, http.MethodDelete, "/api/media", gin.H{"name": saved.Name})
	require.Equal(t, http.StatusOK, w.Code)

	w = app.request(t, http.MethodDelete, "/api/media", gin.H{"name": saved.Name})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodPost, "/api/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Result services.ExportResult `json:"result"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Result.Pages)

	_, err := os.Stat(filepath.Join(app.repo, "public", "guides", "oauth.html"))
	assert.NoError(t, err)
}

func TestGuidePageShell(t *testing.T) {
	app := newTestApp(t)

	w := app.request(t, http.MethodGet, "/edit/guides/oauth.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guide guides/oauth.md", w.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// A failing component flips readiness to 503.
	app.srv.Health.RegisterChecker(health.NewPingChecker("bank", func(context.Context) error {
		return errors.New("database is down")
	}))
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database is down")
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.New(ratelimit.Config{
		GlobalRate: 1000, GlobalBurst: 1000,
		PerIPRate: 0.1, PerIPBurst: 1,
		CleanupInterval: time.Minute,
	})

	r := gin.New()
	r.GET("/ping", RateLimit(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic(errors.New("kaboom")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
}
