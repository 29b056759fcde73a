// Package lint checks guide files for the documented corpus properties:
// parseability, resolving ToC and cross-file links, annotated code fences and
// compiling go snippets.
package lint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/markdown"
	"github.com/dev-sujan/prepdesk/pkg/metrics"
	"github.com/dev-sujan/prepdesk/pkg/models"
)

// Runner evaluates the rule set over guide files.
type Runner struct {
	lib         *corpus.Library
	site        *models.SiteConfig
	rules       []Rule
	concurrency int
	log         zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRules replaces the default rule set.
func WithRules(rules []Rule) RunnerOption {
	return func(r *Runner) { r.rules = rules }
}

// WithConcurrency bounds how many files are checked in parallel.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner creates a Runner over the library's corpus.
func NewRunner(lib *corpus.Library, site *models.SiteConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		lib:         lib,
		site:        site,
		rules:       DefaultRules(),
		concurrency: 4,
		log:         logging.WithComponent("lint"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// File lints a single guide.
func (r *Runner) File(ctx context.Context, relPath string) ([]models.LintIssue, error) {
	resolver := newDiskResolver(r.lib.ContentDir())
	f, err := r.buildFile(relPath, resolver)
	if err != nil {
		return nil, err
	}
	return r.check(f), nil
}

// Corpus lints every guide and returns the aggregated report.
func (r *Runner) Corpus(ctx context.Context) (*models.LintReport, error) {
	guides, err := r.lib.List(ctx)
	if err != nil {
		metrics.RecordLintRun("error")
		return nil, err
	}
	paths := make([]string, len(guides))
	for i, g := range guides {
		paths[i] = g.Path
	}
	return r.Files(ctx, paths)
}

// Files lints the given corpus-relative paths in parallel.
func (r *Runner) Files(ctx context.Context, paths []string) (*models.LintReport, error) {
	report := &models.LintReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Files:     len(paths),
	}
	resolver := newDiskResolver(r.lib.ContentDir())

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, relPath := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := r.buildFile(relPath, resolver)
			if err != nil {
				return err
			}
			issues := r.check(f)

			mu.Lock()
			report.Issues = append(report.Issues, issues...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.RecordLintRun("error")
		return nil, fmt.Errorf("lint corpus: %w", err)
	}

	sort.Slice(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Rule < b.Rule
	})
	report.FinishedAt = time.Now()

	errorCount := report.Errors()
	warnCount := report.Warnings()
	metrics.SetLintIssues(errorCount, warnCount)
	if len(report.Issues) == 0 {
		metrics.RecordLintRun("clean")
	} else {
		metrics.RecordLintRun("issues")
	}

	r.log.Info().
		Str("report_id", report.ID).
		Int("files", report.Files).
		Int("errors", errorCount).
		Int("warnings", warnCount).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("lint run finished")

	return report, nil
}

func (r *Runner) check(f *File) []models.LintIssue {
	var issues []models.LintIssue
	for _, rule := range r.rules {
		if f.Policy.RuleDisabled(rule.ID()) {
			continue
		}
		issues = append(issues, rule.Check(f)...)
	}
	return issues
}

func (r *Runner) buildFile(relPath string, resolver Resolver) (*File, error) {
	absPath, err := r.lib.AbsPath(relPath)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("lint %s: %w", relPath, err)
	}

	fm, _, _, fmErr := markdown.ParseFrontMatter(content)
	body, offset := markdown.SplitBody(content)

	return &File{
		Path:        relPath,
		Content:     content,
		FrontMatter: fm,
		HasMarker:   markdown.HasDelimitedFrontMatter(content),
		FMValid:     fmErr == nil,
		Doc:         markdown.Scan(body),
		LineOffset:  offset,
		Collection:  r.lib.CollectionFor(relPath),
		Policy:      r.site.Lint,
		Resolver:    resolver,
	}, nil
}

// diskResolver resolves xref targets against the content directory, caching
// scanned anchor sets for the duration of one run.
type diskResolver struct {
	root string

	mu      sync.Mutex
	anchors map[string]map[string]bool
}

func newDiskResolver(root string) *diskResolver {
	return &diskResolver{
		root:    root,
		anchors: make(map[string]map[string]bool),
	}
}

func (d *diskResolver) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(relPath)))
	return err == nil
}

func (d *diskResolver) Anchors(relPath string) (map[string]bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.anchors[relPath]; ok {
		return cached, cached != nil
	}

	content, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(relPath)))
	if err != nil {
		d.anchors[relPath] = nil
		return nil, false
	}
	body, _ := markdown.SplitBody(content)
	anchors := markdown.Scan(body).Anchors()
	d.anchors[relPath] = anchors
	return anchors, true
}
