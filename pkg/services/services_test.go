package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/render"
)

func gitRepo(t *testing.T) (string, *Git) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	repo := t.TempDir()
	g := NewGit(repo, "origin", "main", "Prepdesk Bot", "bot@prepdesk.local")
	ctx := context.Background()

	mustGit := func(args ...string) {
		t.Helper()
		out, err := g.run(ctx, args...)
		require.NoError(t, err, out)
	}
	mustGit("init", "-b", "main")
	mustGit("config", "user.email", "test@example.com")
	mustGit("config", "user.name", "Test")

	require.NoError(t, os.WriteFile(filepath.Join(repo, "guide.md"), []byte("# Guide\n"), 0o644))
	mustGit("add", ".")
	mustGit("commit", "-m", "seed")
	return repo, g
}

func TestDirtyFiles(t *testing.T) {
	repo, g := gitRepo(t)
	ctx := context.Background()

	dirty, err := g.DirtyFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "guide.md"), []byte("# Changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.md"), []byte("# New\n"), 0o644))

	dirty, err = g.DirtyFiles(ctx)
	require.NoError(t, err)
	assert.True(t, dirty["guide.md"])
	assert.True(t, dirty["new.md"])
	assert.Len(t, dirty, 2)
}

func TestDiff(t *testing.T) {
	repo, g := gitRepo(t)
	ctx := context.Background()
	absPath := filepath.Join(repo, "guide.md")

	// Clean tree, no editor content.
	diff, source, err := g.Diff(ctx, absPath, "guide.md", nil)
	require.NoError(t, err)
	assert.Equal(t, "none", source)
	assert.Empty(t, diff)

	// Editor content that differs from the saved file.
	diff, source, err = g.Diff(ctx, absPath, "guide.md", []byte("# Guide\n\nEdited.\n"))
	require.NoError(t, err)
	assert.Equal(t, "unsaved", source)
	assert.Contains(t, diff, "+Edited.")
	assert.Contains(t, diff, "editor")
	assert.NotContains(t, diff, absPath)

	// Identical editor content falls through to the HEAD diff.
	require.NoError(t, os.WriteFile(absPath, []byte("# Guide v2\n"), 0o644))
	diff, source, err = g.Diff(ctx, absPath, "guide.md", []byte("# Guide v2\n"))
	require.NoError(t, err)
	assert.Equal(t, "git", source)
	assert.Contains(t, diff, "+# Guide v2")
}

func TestHeadRevision(t *testing.T) {
	_, g := gitRepo(t)
	rev, err := g.HeadRevision(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rev)
	assert.NotContains(t, rev, "\n")
}

func uploadHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func TestRefPath(t *testing.T) {
	assert.Equal(t, "/img/logo.png", refPath("static/img", "", "logo.png"))
	assert.Equal(t, "logo.png", refPath("content/media", "", "logo.png"))
	assert.Equal(t, "/uploads/logo.png", refPath("uploads", "", "logo.png"))
	assert.Equal(t, "/assets/logo.png", refPath("static/img", "/assets", "logo.png"))
	assert.Equal(t, "/assets/logo.png", refPath("static/img", "assets", "logo.png"))
}

func TestMediaSaveListDelete(t *testing.T) {
	repo := t.TempDir()
	site := &models.SiteConfig{MediaFolder: "static/uploads"}
	m := NewMedia(repo, site)

	saved, err := m.Save(uploadHeader(t, "cover image.png", []byte("png-bytes")), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(saved.Name, "cover_image_"))
	assert.True(t, strings.HasSuffix(saved.Name, ".png"))
	assert.True(t, strings.HasPrefix(saved.Path, "/uploads/"))
	assert.Equal(t, int64(len("png-bytes")), saved.Size)

	onDisk := filepath.Join(repo, "static", "uploads", saved.Name)
	data, err := os.ReadFile(onDisk)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	files, err := m.List("")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, saved.Name, files[0].Name)

	require.NoError(t, m.Delete(saved.Name, ""))
	files, err = m.List("")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMediaCollectionOverride(t *testing.T) {
	repo := t.TempDir()
	site := &models.SiteConfig{
		MediaFolder: "static/uploads",
		Collections: []models.Collection{
			{Name: "guides", Folder: "guides", MediaFolder: "content/guides/img"},
		},
	}
	m := NewMedia(repo, site)

	saved, err := m.Save(uploadHeader(t, "diagram.svg", []byte("<svg/>")), "guides")
	require.NoError(t, err)
	assert.NotContains(t, saved.Path, "/") // content/ media resolves relative to the page

	_, err = os.Stat(filepath.Join(repo, "content", "guides", "img", saved.Name))
	assert.NoError(t, err)
}

func TestMediaUnconfigured(t *testing.T) {
	m := NewMedia(t.TempDir(), &models.SiteConfig{})
	_, err := m.List("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media_folder not configured")
}

func exportFixture(t *testing.T) (*Exporter, string) {
	t.Helper()
	repo := t.TempDir()
	content := filepath.Join(repo, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "guides"), 0o755))

	guide := "---\ntitle: Webhooks\n---\n\n# Webhooks\n\nSee the [question list](../questions.md#oauth).\n"
	require.NoError(t, os.WriteFile(filepath.Join(content, "guides", "webhooks.md"), []byte(guide), 0o644))

	questions := "---\ntitle: Questions\n---\n\n## OAuth\n\n- What is a scope?\n"
	require.NoError(t, os.WriteFile(filepath.Join(content, "questions.md"), []byte(questions), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(repo, "static", "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "static", "img", "logo.png"), []byte("png"), 0o644))

	site := &models.SiteConfig{
		Title:       "Prep Desk",
		MediaFolder: "static/img",
		Collections: []models.Collection{
			{Name: "guides", Label: "Study Guides", Folder: "guides", Extension: "md", Format: "yaml", Role: models.RoleGuides},
			{Name: "questions", Folder: ".", Extension: "md", Format: "yaml", Role: models.RoleQuestions},
		},
	}
	lib := corpus.NewLibrary(repo, "content", site)
	html := render.NewHTML(nil, 0, render.WithGuideLinksAsHTML())
	publicDir := filepath.Join(repo, "public")
	return NewExporter(lib, site, html, repo, publicDir, site.Title), publicDir
}

func TestExport(t *testing.T) {
	exporter, publicDir := exportFixture(t)

	result, err := exporter.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 1, result.Assets)

	index, err := os.ReadFile(filepath.Join(publicDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Prep Desk")
	assert.Contains(t, string(index), "Study Guides")
	assert.Contains(t, string(index), `href="guides/webhooks.html"`)

	page, err := os.ReadFile(filepath.Join(publicDir, "guides", "webhooks.html"))
	require.NoError(t, err)
	// Cross-guide links point at the exported pages, anchors intact.
	assert.Contains(t, string(page), `href="../questions.html#oauth"`)
	assert.Contains(t, string(page), `id="webhooks"`)
	assert.Contains(t, string(page), `href="../index.html"`)

	_, err = os.Stat(filepath.Join(publicDir, "img", "logo.png"))
	assert.NoError(t, err)

	// A removed guide disappears from the next export.
	lib := exporter.lib
	require.NoError(t, lib.Delete(context.Background(), "guides/webhooks.md"))
	result, err = exporter.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	_, err = os.Stat(filepath.Join(publicDir, "guides", "webhooks.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportRefusesRepoRoot(t *testing.T) {
	repo := t.TempDir()
	site := &models.SiteConfig{}
	lib := corpus.NewLibrary(repo, "content", site)
	exporter := NewExporter(lib, site, render.NewHTML(nil, 0), repo, repo, "x")

	_, err := exporter.Export(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlaps the repository")
}
