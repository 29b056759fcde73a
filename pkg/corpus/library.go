// Package corpus manages the Markdown study guide repository: listing,
// loading, saving and creating guides inside the configured collections.
package corpus

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/markdown"
	"github.com/dev-sujan/prepdesk/pkg/models"
)

// DirtyFunc reports repo-relative paths with uncommitted changes.
type DirtyFunc func(ctx context.Context) (map[string]bool, error)

// Library lists and edits the guides under the content directory. Listings
// are cached until Invalidate is called; the watcher and the save paths call
// it on every change.
type Library struct {
	repoPath   string
	contentDir string
	site       *models.SiteConfig
	dirty      DirtyFunc
	log        zerolog.Logger

	mu     sync.Mutex
	guides []models.Guide
	loaded bool
}

// Option configures a Library.
type Option func(*Library)

// WithDirtyFunc wires git working tree status into listings.
func WithDirtyFunc(fn DirtyFunc) Option {
	return func(l *Library) { l.dirty = fn }
}

// WithLogger overrides the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Library) { l.log = logger }
}

// NewLibrary creates a Library rooted at repoPath/contentDir.
func NewLibrary(repoPath, contentDir string, site *models.SiteConfig, opts ...Option) *Library {
	l := &Library{
		repoPath:   repoPath,
		contentDir: filepath.Join(repoPath, contentDir),
		site:       site,
		log:        logging.WithComponent("corpus"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ContentDir returns the absolute content directory.
func (l *Library) ContentDir() string { return l.contentDir }

// RepoPath returns the repository root.
func (l *Library) RepoPath() string { return l.repoPath }

// List returns the cached guide listing, building it on first use. Entries
// carry path, title and dirty flag only; Load fills in the rest.
func (l *Library) List(ctx context.Context) ([]models.Guide, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return append([]models.Guide(nil), l.guides...), nil
	}

	guides, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	l.guides = guides
	l.loaded = true
	return append([]models.Guide(nil), l.guides...), nil
}

func (l *Library) scan(ctx context.Context) ([]models.Guide, error) {
	var dirtyFiles map[string]bool
	if l.dirty != nil {
		var err error
		dirtyFiles, err = l.dirty(ctx)
		if err != nil {
			l.log.Warn().Err(err).Msg("could not read working tree status, listing without dirty flags")
		}
	}

	var guides []models.Guide
	err := filepath.WalkDir(l.contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		relPath, err := filepath.Rel(l.contentDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		repoRel, _ := filepath.Rel(l.repoPath, path)
		repoRel = filepath.ToSlash(repoRel)

		title := relPath
		if content, readErr := os.ReadFile(path); readErr == nil {
			if fm, _, _, parseErr := markdown.ParseFrontMatter(content); parseErr == nil {
				if t := markdown.Title(fm); t != "" {
					title = t
				}
			} else {
				// Guides without front matter fall back to their first
				// heading when one exists near the top.
				if t := firstHeading(content); t != "" {
					title = t
				}
			}
		} else {
			l.log.Warn().Err(readErr).Str("path", relPath).Msg("unreadable guide skipped from title scan")
		}

		guides = append(guides, models.Guide{
			Path:    relPath,
			Title:   title,
			IsDirty: dirtyFiles[repoRel],
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}

	sort.Slice(guides, func(i, j int) bool { return guides[i].Path < guides[j].Path })
	return guides, nil
}

// firstHeading returns the text of the first ATX heading within the leading
// lines of a document.
func firstHeading(content []byte) string {
	for i, line := range bytes.Split(content, []byte("\n")) {
		if i > 10 {
			break
		}
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("#")) {
			return string(bytes.TrimSpace(bytes.TrimLeft(trimmed, "#")))
		}
	}
	return ""
}

// Load reads and parses one guide, including its scanned structure.
func (l *Library) Load(ctx context.Context, relPath string) (*models.Guide, error) {
	absPath, err := l.AbsPath(relPath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("load guide %s: %w", relPath, err)
	}

	guide := &models.Guide{
		Path:    filepath.ToSlash(relPath),
		Content: string(content),
	}

	fm, body, format, err := markdown.ParseFrontMatter(content)
	if err == nil {
		guide.FrontMatter = fm
		guide.Body = body
		guide.Format = format
		guide.Title = markdown.Title(fm)
	} else {
		// A guide is not required to carry front matter.
		guide.Body = string(content)
		guide.Title = firstHeading(content)
	}
	if guide.Title == "" {
		guide.Title = guide.Path
	}

	guide.Structure = markdown.Scan([]byte(guide.Body))

	if l.dirty != nil {
		if dirtyFiles, dirtyErr := l.dirty(ctx); dirtyErr == nil {
			repoRel, _ := filepath.Rel(l.repoPath, absPath)
			guide.IsDirty = dirtyFiles[filepath.ToSlash(repoRel)]
		}
	}

	return guide, nil
}

// Save composes front matter and body back into a file and writes it.
func (l *Library) Save(ctx context.Context, relPath string, fm map[string]interface{}, body, format string) error {
	absPath, err := l.AbsPath(relPath)
	if err != nil {
		return err
	}

	content, err := markdown.ComposeFile(fm, body, format)
	if err != nil {
		return fmt.Errorf("compose guide %s: %w", relPath, err)
	}
	content = append(bytes.TrimSpace(content), '\n')

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("save guide %s: %w", relPath, err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return fmt.Errorf("save guide %s: %w", relPath, err)
	}

	l.log.Info().Str("path", relPath).Msg("guide saved")
	l.Invalidate()
	return nil
}

// SaveRaw writes raw markdown as-is, used by editors that submit the whole
// file instead of front matter plus body.
func (l *Library) SaveRaw(ctx context.Context, relPath string, content []byte) error {
	absPath, err := l.AbsPath(relPath)
	if err != nil {
		return err
	}
	content = append(bytes.TrimSpace(content), '\n')

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("save guide %s: %w", relPath, err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return fmt.Errorf("save guide %s: %w", relPath, err)
	}

	l.log.Info().Str("path", relPath).Msg("guide saved")
	l.Invalidate()
	return nil
}

// Create makes a new guide in a collection, seeding front matter from the
// collection's field defaults plus the caller's overrides.
func (l *Library) Create(ctx context.Context, collectionName, filename string, overrides map[string]interface{}) (string, error) {
	collection := l.site.CollectionByName(collectionName)
	if collection == nil {
		return "", fmt.Errorf("unknown collection %q", collectionName)
	}

	if filename == "" {
		return "", fmt.Errorf("filename required")
	}
	ext := collection.Extension
	if ext == "" {
		ext = "md"
	}
	if !strings.HasSuffix(filename, "."+ext) {
		filename += "." + ext
	}

	relPath := filename
	if collection.Folder != "." && collection.Folder != "" {
		relPath = path.Join(collection.Folder, filename)
	}

	absPath, err := l.AbsPath(relPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absPath); err == nil {
		return "", fmt.Errorf("guide %s: %w", relPath, ErrExists)
	}

	fm, body := seedFromFields(collection.Fields, overrides)
	content, err := markdown.ComposeFile(fm, body, collection.Format)
	if err != nil {
		return "", fmt.Errorf("create guide %s: %w", relPath, err)
	}
	content = append(bytes.TrimSpace(content), '\n')

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("create guide %s: %w", relPath, err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return "", fmt.Errorf("create guide %s: %w", relPath, err)
	}

	l.log.Info().Str("path", relPath).Str("collection", collectionName).Msg("guide created")
	l.Invalidate()
	return relPath, nil
}

// seedFromFields builds the initial front matter for a new guide. Overrides
// win over field defaults, and the "body" pseudo-field becomes the document
// body.
func seedFromFields(fields []models.Field, overrides map[string]interface{}) (map[string]interface{}, string) {
	fm := make(map[string]interface{})
	var body string

	for _, field := range fields {
		if val, ok := overrides[field.Name]; ok {
			if field.Name == "body" {
				if s, ok := val.(string); ok {
					body = s
				}
				continue
			}
			fm[field.Name] = val
			continue
		}

		if field.Name == "body" {
			if s, ok := field.Default.(string); ok {
				body = s
			}
			continue
		}

		if field.Default != nil {
			fm[field.Name] = field.Default
			continue
		}
		switch field.Widget {
		case "datetime":
			fm[field.Name] = time.Now().Format(time.RFC3339)
		case "boolean":
			fm[field.Name] = false
		case "list":
			fm[field.Name] = []string{}
		default:
			fm[field.Name] = ""
		}
	}

	for name, val := range overrides {
		if name == "body" {
			continue
		}
		if _, ok := fm[name]; !ok {
			fm[name] = val
		}
	}

	return fm, body
}

// Delete removes a guide from the corpus.
func (l *Library) Delete(ctx context.Context, relPath string) error {
	absPath, err := l.AbsPath(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("delete guide %s: %w", relPath, err)
	}

	l.log.Info().Str("path", relPath).Msg("guide deleted")
	l.Invalidate()
	return nil
}

// AbsPath resolves a corpus-relative path, rejecting traversal.
func (l *Library) AbsPath(relPath string) (string, error) {
	return SafeJoin(l.contentDir, "", relPath)
}

// CollectionFor returns the collection whose folder contains relPath, or nil.
func (l *Library) CollectionFor(relPath string) *models.Collection {
	relPath = filepath.ToSlash(relPath)
	dir := path.Dir(relPath)

	var best *models.Collection
	bestLen := -1
	for i := range l.site.Collections {
		c := &l.site.Collections[i]
		folder := c.Folder
		if folder == "" || folder == "." {
			if dir == "." && bestLen < 0 {
				best, bestLen = c, 0
			}
			continue
		}
		if (dir == folder || strings.HasPrefix(dir+"/", folder+"/")) && len(folder) > bestLen {
			best, bestLen = c, len(folder)
		}
	}
	return best
}

// Invalidate drops the cached listing.
func (l *Library) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.guides = nil
}
