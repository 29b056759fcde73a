// Package config holds process configuration loaded from the environment
// and the per-corpus prepdesk.yml site file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var (
	RepoPath   = "./repo"
	PublicPath = "./repo/public"
	PreviewURL = "/preview/"

	// Content layout inside the repo.
	ContentDir = "content"
	SiteFile   = "prepdesk.yml"

	// Data directory for the SQLite bank and reports.
	DataDir = "./data"

	// HTTP server settings.
	ListenAddr = ":8080"

	// Cache settings.
	CacheTTL             = 10 * time.Minute
	CacheCleanupInterval = 5 * time.Minute
	RedisAddr            = "" // empty = in-memory cache

	// Rate limit settings for the API.
	RateLimitRPS   = 20.0
	RateLimitBurst = 40
	TrustedProxies = ""

	// Lint settings.
	LintConcurrency = 8

	// Scheduler settings. An empty cron expression disables the job.
	LintSweepCron   = "0 3 * * *"
	DailyDigestCron = "0 9 * * *"
	DigestSize      = 5
	JobTimeout      = 2 * time.Minute

	// Webhook dispatch settings.
	WebhookTimeout   = 10 * time.Second
	WebhookRetries   = 3
	WebhookQueueSize = 128

	// Git settings.
	GitUserEmail = "bot@prepdesk.local"
	GitUserName  = "Prepdesk Bot"
	GitBranch    = "main"
	GitRemote    = "origin"
)

var OauthConf *oauth2.Config

// Init loads .env (when present) and populates the package settings.
func Init() {
	// No .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	appURL := getEnv("APP_URL", "http://localhost:8080")
	redirectURL := getEnv("GITHUB_REDIRECT_URL", appURL+"/auth/callback")

	RepoPath = getEnv("REPO_PATH", "./repo")
	PublicPath = getEnv("PUBLIC_PATH", RepoPath+"/public")
	ContentDir = getEnv("CONTENT_DIR", "content")
	SiteFile = getEnv("SITE_FILE", "prepdesk.yml")
	DataDir = getEnv("DATA_DIR", "./data")
	ListenAddr = getEnv("LISTEN_ADDR", ":8080")

	CacheTTL = getDuration("CACHE_TTL", 10*time.Minute)
	CacheCleanupInterval = getDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute)
	RedisAddr = getEnv("REDIS_ADDR", "")

	RateLimitRPS = getFloat("RATE_LIMIT_RPS", 20.0)
	RateLimitBurst = getInt("RATE_LIMIT_BURST", 40)
	TrustedProxies = getEnv("TRUSTED_PROXIES", "")

	LintConcurrency = getInt("LINT_CONCURRENCY", 8)
	LintSweepCron = getEnv("LINT_SWEEP_CRON", "0 3 * * *")
	DailyDigestCron = getEnv("DAILY_DIGEST_CRON", "0 9 * * *")
	DigestSize = getInt("DIGEST_SIZE", 5)
	JobTimeout = getDuration("JOB_TIMEOUT", 2*time.Minute)

	WebhookTimeout = getDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	WebhookRetries = getInt("WEBHOOK_RETRIES", 3)
	WebhookQueueSize = getInt("WEBHOOK_QUEUE_SIZE", 128)

	GitUserEmail = getEnv("GIT_USER_EMAIL", "bot@prepdesk.local")
	GitUserName = getEnv("GIT_USER_NAME", "Prepdesk Bot")
	GitBranch = getEnv("GIT_BRANCH", "main")
	GitRemote = getEnv("GIT_REMOTE", "origin")

	OauthConf = &oauth2.Config{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		Scopes:       []string{"repo"},
		Endpoint:     github.Endpoint,
		RedirectURL:  redirectURL,
	}
}

// GetAppURL returns the externally visible base URL of the server.
func GetAppURL() string {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}
	return appURL
}

// SessionSecret returns the cookie-store secret. A fixed fallback keeps dev
// setups working; production must set SESSION_SECRET.
func SessionSecret() []byte {
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("prepdesk-dev-secret")
}

// Validate performs basic sanity checks after Init.
func Validate() error {
	if RepoPath == "" {
		return fmt.Errorf("REPO_PATH must not be empty")
	}
	if RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", RateLimitRPS)
	}
	if WebhookRetries < 0 {
		return fmt.Errorf("WEBHOOK_RETRIES must not be negative")
	}
	if DigestSize <= 0 {
		return fmt.Errorf("DIGEST_SIZE must be positive, got %d", DigestSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
