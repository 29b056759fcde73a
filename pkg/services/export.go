package services

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/render"
)

// ExportResult summarises one export run.
type ExportResult struct {
	Pages      int   `json:"pages"`
	Assets     int   `json:"assets"`
	DurationMS int64 `json:"duration_ms"`
}

// Exporter writes the rendered corpus into the public directory: one HTML
// page per guide, an index grouped by collection, and the media folder
// copied through.
type Exporter struct {
	lib       *corpus.Library
	site      *models.SiteConfig
	html      *render.HTML
	repoPath  string
	publicDir string
	siteTitle string
	log       zerolog.Logger
}

// NewExporter creates an Exporter. The html renderer should be built with
// render.WithGuideLinksAsHTML so cross-guide links point at exported pages.
func NewExporter(lib *corpus.Library, site *models.SiteConfig, html *render.HTML, repoPath, publicDir, siteTitle string) *Exporter {
	if siteTitle == "" {
		siteTitle = "prepdesk"
	}
	return &Exporter{
		lib:       lib,
		site:      site,
		html:      html,
		repoPath:  repoPath,
		publicDir: publicDir,
		siteTitle: siteTitle,
		log:       logging.WithComponent("export"),
	}
}

// Export renders every guide and rebuilds the public directory from scratch.
func (e *Exporter) Export(ctx context.Context) (*ExportResult, error) {
	start := time.Now()

	absPublic, err := filepath.Abs(e.publicDir)
	if err != nil {
		return nil, err
	}
	absRepo, err := filepath.Abs(e.repoPath)
	if err != nil {
		return nil, err
	}
	// The public dir is wiped on every run; refuse layouts where the wipe
	// would take the corpus with it (public equal to, or a parent of, the
	// repository).
	rel, err := filepath.Rel(absPublic, absRepo)
	if err != nil || rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return nil, fmt.Errorf("public dir %q overlaps the repository", e.publicDir)
	}

	guides, err := e.lib.List(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(absPublic); err != nil {
		return nil, fmt.Errorf("clean public dir: %w", err)
	}
	if err := os.MkdirAll(absPublic, 0o755); err != nil {
		return nil, fmt.Errorf("create public dir: %w", err)
	}

	pages := 0
	for _, g := range guides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.exportGuide(ctx, absPublic, g.Path); err != nil {
			return nil, err
		}
		pages++
	}

	if err := e.writeIndex(absPublic, guides); err != nil {
		return nil, err
	}

	assets, err := e.copyMedia(absPublic)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{
		Pages:      pages,
		Assets:     assets,
		DurationMS: time.Since(start).Milliseconds(),
	}
	e.log.Info().Int("pages", pages).Int("assets", assets).Str("dir", absPublic).Msg("corpus exported")
	return result, nil
}

func (e *Exporter) exportGuide(ctx context.Context, absPublic, relPath string) error {
	guide, err := e.lib.Load(ctx, relPath)
	if err != nil {
		return err
	}
	fragment, err := e.html.Render(guide.Path, []byte(guide.Body))
	if err != nil {
		return err
	}

	page, err := render.Page(render.PageData{
		SiteTitle: e.siteTitle,
		Title:     guide.Title,
		Home:      homeHref(guide.Path),
		Body:      template.HTML(fragment),
	})
	if err != nil {
		return fmt.Errorf("page %s: %w", relPath, err)
	}

	outPath := filepath.Join(absPublic, filepath.FromSlash(htmlPath(guide.Path)))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(page), 0o644)
}

func (e *Exporter) writeIndex(absPublic string, guides []models.Guide) error {
	grouped := make(map[string][]render.IndexEntry)
	var order []string
	for _, g := range guides {
		label := "Other"
		if col := e.lib.CollectionFor(g.Path); col != nil {
			label = col.Label
			if label == "" {
				label = col.Name
			}
		}
		if _, seen := grouped[label]; !seen {
			order = append(order, label)
		}
		grouped[label] = append(grouped[label], render.IndexEntry{
			Title: g.Title,
			Href:  htmlPath(g.Path),
		})
	}

	data := render.IndexData{SiteTitle: e.siteTitle}
	for _, label := range order {
		data.Groups = append(data.Groups, render.IndexGroup{Label: label, Entries: grouped[label]})
	}

	html, err := render.Index(data)
	if err != nil {
		return fmt.Errorf("index page: %w", err)
	}
	return os.WriteFile(filepath.Join(absPublic, "index.html"), []byte(html), 0o644)
}

// copyMedia mirrors the media folder into the export so reference paths keep
// resolving. No media folder configured means nothing to copy.
func (e *Exporter) copyMedia(absPublic string) (int, error) {
	if e.site.MediaFolder == "" {
		return 0, nil
	}

	srcRoot := filepath.Join(e.repoPath, filepath.FromSlash(e.site.MediaFolder))
	if _, err := os.Stat(srcRoot); os.IsNotExist(err) {
		return 0, nil
	}

	copied := 0
	err := filepath.WalkDir(srcRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcRoot, p)
		if err != nil {
			return err
		}
		ref := refPath(e.site.MediaFolder, e.site.PublicFolder, filepath.ToSlash(rel))
		dst := filepath.Join(absPublic, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
		if err := copyFile(p, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("copy media: %w", err)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// htmlPath maps a guide path to its exported page path.
func htmlPath(relPath string) string {
	return strings.TrimSuffix(relPath, path.Ext(relPath)) + ".html"
}

// homeHref builds the relative link from an exported page back to the index.
func homeHref(relPath string) string {
	depth := strings.Count(relPath, "/")
	return strings.Repeat("../", depth) + "index.html"
}
