// Package scheduler runs the recurring corpus jobs: the nightly lint sweep
// and the daily practice digest.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/lint"
	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/questions"
)

// Publisher is the slice of the webhook dispatcher the jobs publish through.
type Publisher interface {
	Publish(event models.Event)
}

// Config carries the cron expressions and job settings. An empty expression
// disables that job.
type Config struct {
	LintSweepSpec   string
	DailyDigestSpec string
	DigestSize      int
	JobTimeout      time.Duration

	// SweepOnStart runs one lint sweep right after Start so a fresh deploy
	// has a report before the first scheduled run.
	SweepOnStart bool
}

// Scheduler owns the cron loop and remembers the last sweep outcome for the
// readiness probe.
type Scheduler struct {
	cron      *cron.Cron
	runner    *lint.Runner
	store     *questions.Store
	publisher Publisher
	cfg       Config
	log       zerolog.Logger

	mu        sync.Mutex
	lastSweep time.Time
	lastError string
}

// New creates a Scheduler. Jobs are registered on Start.
func New(runner *lint.Runner, store *questions.Store, publisher Publisher, cfg Config) *Scheduler {
	if cfg.DigestSize <= 0 {
		cfg.DigestSize = 5
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &Scheduler{
		cron:      cron.New(),
		runner:    runner,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       logging.WithComponent("scheduler"),
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := 0
	if s.cfg.LintSweepSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.LintSweepSpec, s.lintSweepJob); err != nil {
			return fmt.Errorf("lint sweep schedule %q: %w", s.cfg.LintSweepSpec, err)
		}
		jobs++
	}
	if s.cfg.DailyDigestSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.DailyDigestSpec, s.dailyDigestJob); err != nil {
			return fmt.Errorf("daily digest schedule %q: %w", s.cfg.DailyDigestSpec, err)
		}
		jobs++
	}

	s.cron.Start()
	if s.cfg.SweepOnStart {
		go s.lintSweepJob()
	}
	s.log.Info().Int("jobs", jobs).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	drained := s.cron.Stop()
	select {
	case <-drained.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRun reports when the last sweep succeeded and the error of the last
// failed one, feeding the readiness checker.
func (s *Scheduler) LastRun() (time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.lastError
}

func (s *Scheduler) lintSweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	if _, err := s.RunLintSweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled lint sweep failed")
	}
}

func (s *Scheduler) dailyDigestJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	if _, err := s.RunDailyDigest(ctx); err != nil {
		s.log.Error().Err(err).Msg("daily digest failed")
	}
}

// RunLintSweep lints the whole corpus, persists the report and publishes
// lint.completed. The REST API triggers it through the same path.
func (s *Scheduler) RunLintSweep(ctx context.Context) (*models.LintReport, error) {
	report, err := s.runner.Corpus(ctx)
	if err != nil {
		s.recordSweep(time.Time{}, err)
		return nil, err
	}
	if err := s.store.SaveLintReport(ctx, report); err != nil {
		s.recordSweep(time.Time{}, err)
		return nil, fmt.Errorf("persist lint report: %w", err)
	}
	s.recordSweep(report.FinishedAt, nil)

	if s.publisher != nil {
		s.publisher.Publish(models.Event{
			Name: models.EventLintCompleted,
			Data: map[string]interface{}{
				"report_id": report.ID,
				"files":     report.Files,
				"errors":    report.Errors(),
				"warnings":  report.Warnings(),
			},
		})
	}
	return report, nil
}

// RunDailyDigest draws a practice set and publishes it as digest.daily.
// An empty bank publishes nothing.
func (s *Scheduler) RunDailyDigest(ctx context.Context) (models.PracticeSet, error) {
	set, err := s.store.Practice(ctx, s.cfg.DigestSize, questions.Filter{})
	if err != nil {
		return models.PracticeSet{}, err
	}
	if len(set.Questions) == 0 {
		s.log.Debug().Msg("question bank empty, skipping digest")
		return set, nil
	}

	if s.publisher != nil {
		s.publisher.Publish(models.Event{Name: models.EventDigestDaily, Data: set})
	}
	s.log.Info().Int("questions", len(set.Questions)).Msg("daily digest published")
	return set, nil
}

func (s *Scheduler) recordSweep(finished time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastSweep = finished
	s.lastError = ""
}
