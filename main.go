package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dev-sujan/prepdesk/pkg/cache"
	"github.com/dev-sujan/prepdesk/pkg/config"
	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/handlers"
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

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	verbose    bool
	listenAddr string
)

// rootCmd is the base command. prepdesk with no arguments starts the server.
var rootCmd = &cobra.Command{
	Use:   "prepdesk",
	Short: "prepdesk - a study platform for Markdown interview-prep corpora",
	Long: `prepdesk serves a git-backed corpus of Markdown study guides through an
admin UI and a REST API, keeps an interview question bank extracted from
the guides, lints the corpus on a schedule, and notifies webhook
subscribers about every change.

Run without arguments to start the server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		config.Init()
		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		level := ""
		if verbose {
			level = "debug"
		}
		logging.Configure(logging.Config{Level: level})
		return nil
	},
	RunE: runServe,
}

// serveCmd runs the HTTP server. Same as running prepdesk with no arguments.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prepdesk server",
	Long: `Starts the admin UI and REST API, the corpus file watcher, the cron
scheduler for lint sweeps and daily digests, and the webhook dispatcher.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides LISTEN_ADDR)")

	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.WithComponent("main")

	site, err := config.LoadSite()
	if err != nil {
		return fmt.Errorf("load site file: %w", err)
	}

	bank, err := openBank()
	if err != nil {
		return fmt.Errorf("open question bank: %w", err)
	}
	defer bank.Close()

	// Rendered-page cache. Redis when configured, in-memory otherwise.
	var pageCache cache.Cache
	if config.RedisAddr != "" {
		pageCache, err = cache.NewRedisCache(cache.RedisConfig{Addr: config.RedisAddr}, logging.WithComponent("cache"))
		if err != nil {
			log.Warn().Err(err).Str("addr", config.RedisAddr).Msg("redis unreachable, falling back to in-memory cache")
			pageCache = nil
		}
	}
	if pageCache == nil {
		pageCache = cache.NewMemoryCache(config.CacheCleanupInterval)
	}

	git := services.NewGit(config.RepoPath, config.GitRemote, config.GitBranch, config.GitUserName, config.GitUserEmail)
	lib := corpus.NewLibrary(config.RepoPath, config.ContentDir, site, corpus.WithDirtyFunc(git.DirtyFiles))

	renderer := render.NewHTML(pageCache, config.CacheTTL)
	exporter := services.NewExporter(lib, site,
		render.NewHTML(pageCache, config.CacheTTL, render.WithGuideLinksAsHTML()),
		config.RepoPath, config.PublicPath, site.Title)
	media := services.NewMedia(config.RepoPath, site)

	runner := lint.NewRunner(lib, site, lint.WithConcurrency(config.LintConcurrency))
	importer := questions.NewImporter(lib, bank)

	dispatcher := webhooks.New(site.Webhooks,
		webhooks.WithDeliveryLog(bank),
		webhooks.WithClient(&http.Client{Timeout: config.WebhookTimeout}),
		webhooks.WithRetry(config.WebhookRetries, 0),
		webhooks.WithQueueSize(config.WebhookQueueSize),
	)
	dispatcher.Start()

	sched := scheduler.New(runner, bank, dispatcher, scheduler.Config{
		LintSweepSpec:   config.LintSweepCron,
		DailyDigestSpec: config.DailyDigestCron,
		DigestSize:      config.DigestSize,
		JobTimeout:      config.JobTimeout,
		SweepOnStart:    true,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	watcher, err := corpus.NewWatcher(lib, time.Second, func(paths []string) {
		dispatcher.Publish(models.Event{
			Name: models.EventGuideUpdated,
			Data: map[string]interface{}{"paths": paths},
		})
	})
	if err != nil {
		return fmt.Errorf("create corpus watcher: %w", err)
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewDirChecker("repo", config.RepoPath))
	hm.RegisterChecker(health.NewPingChecker("question_bank", bank.Ping))
	hm.RegisterChecker(health.NewLastSweepChecker(sched.LastRun))

	limCfg := ratelimit.DefaultConfig()
	limCfg.PerIPRate = rate.Limit(config.RateLimitRPS)
	limCfg.PerIPBurst = config.RateLimitBurst
	limCfg.GlobalRate = rate.Limit(config.RateLimitRPS * 5)
	limCfg.GlobalBurst = config.RateLimitBurst * 5
	limiter := ratelimit.New(limCfg)

	srv := handlers.NewServer(handlers.Deps{
		Site:      site,
		Library:   lib,
		Renderer:  renderer,
		Git:       git,
		Media:     media,
		Exporter:  exporter,
		Linter:    runner,
		Store:     bank,
		Importer:  importer,
		Webhooks:  dispatcher,
		Scheduler: sched,
		Health:    hm,
		Limiter:   limiter,
	})

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(handlers.RequestLogger(), handlers.Recovery())
	if config.TrustedProxies != "" {
		if err := r.SetTrustedProxies(strings.Split(config.TrustedProxies, ",")); err != nil {
			return fmt.Errorf("trusted proxies: %w", err)
		}
	} else {
		_ = r.SetTrustedProxies(nil)
	}

	// Session Setup
	r.Use(sessions.Sessions("prepdesk_session", cookie.NewStore(config.SessionSecret())))

	// Static Files & Templates
	r.LoadHTMLGlob("templates/*")
	r.Static("/static", "./static")
	r.Static(config.PreviewURL, config.PublicPath)

	srv.Routes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		// A missing content tree is not fatal; edits through the API
		// still invalidate the cache themselves.
		log.Warn().Err(err).Msg("corpus watcher not running")
	}

	addr := config.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("repo", config.RepoPath).Str("version", version).Msg("prepdesk listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	watcher.Stop()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("webhook dispatcher shutdown")
	}
	return runErr
}

// openBank opens the SQLite question bank under the data directory.
func openBank() (*questions.Store, error) {
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return questions.NewStore(filepath.Join(config.DataDir, "bank.db"))
}
