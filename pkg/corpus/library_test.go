package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-sujan/prepdesk/pkg/models"
)

func testSite() *models.SiteConfig {
	return &models.SiteConfig{
		Collections: []models.Collection{
			{
				Name:      "guides",
				Folder:    "guides",
				Extension: "md",
				Format:    "yaml",
				Role:      models.RoleGuides,
				Fields: []models.Field{
					{Name: "title", Widget: "string"},
					{Name: "draft", Widget: "boolean"},
					{Name: "tags", Widget: "list"},
					{Name: "body", Widget: "markdown", Default: "Write here.\n"},
				},
			},
			{
				Name:      "questions",
				Folder:    ".",
				Extension: "md",
				Format:    "yaml",
				Role:      models.RoleQuestions,
			},
		},
	}
}

func seedCorpus(t *testing.T) (string, *Library) {
	t.Helper()
	repo := t.TempDir()
	content := filepath.Join(repo, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "guides"), 0o755))

	webhooks := "---\ntitle: Webhooks Guide\n---\n\n# Webhooks\n\nDelivery basics.\n"
	require.NoError(t, os.WriteFile(filepath.Join(content, "guides", "webhooks.md"), []byte(webhooks), 0o644))

	// No front matter: the title falls back to the first heading.
	questions := "# Interview Questions\n\n- What is an access scope?\n"
	require.NoError(t, os.WriteFile(filepath.Join(content, "questions.md"), []byte(questions), 0o644))

	lib := NewLibrary(repo, "content", testSite())
	return content, lib
}

func TestListBuildsAndCaches(t *testing.T) {
	content, lib := seedCorpus(t)
	ctx := context.Background()

	guides, err := lib.List(ctx)
	require.NoError(t, err)
	require.Len(t, guides, 2)

	assert.Equal(t, "guides/webhooks.md", guides[0].Path)
	assert.Equal(t, "Webhooks Guide", guides[0].Title)
	assert.Equal(t, "questions.md", guides[1].Path)
	assert.Equal(t, "Interview Questions", guides[1].Title)

	// A file added behind the cache's back is invisible until Invalidate.
	extra := "---\ntitle: OAuth\n---\n\nbody\n"
	require.NoError(t, os.WriteFile(filepath.Join(content, "guides", "oauth.md"), []byte(extra), 0o644))

	guides, err = lib.List(ctx)
	require.NoError(t, err)
	assert.Len(t, guides, 2)

	lib.Invalidate()
	guides, err = lib.List(ctx)
	require.NoError(t, err)
	assert.Len(t, guides, 3)
}

func TestListDirtyFlags(t *testing.T) {
	_, lib := seedCorpus(t)
	lib.dirty = func(context.Context) (map[string]bool, error) {
		return map[string]bool{"content/guides/webhooks.md": true}, nil
	}

	guides, err := lib.List(context.Background())
	require.NoError(t, err)
	assert.True(t, guides[0].IsDirty)
	assert.False(t, guides[1].IsDirty)
}

func TestLoadParsesStructure(t *testing.T) {
	_, lib := seedCorpus(t)

	guide, err := lib.Load(context.Background(), "guides/webhooks.md")
	require.NoError(t, err)

	assert.Equal(t, "Webhooks Guide", guide.Title)
	assert.Equal(t, "yaml", guide.Format)
	require.NotNil(t, guide.Structure)
	require.Len(t, guide.Structure.Sections, 1)
	assert.Equal(t, "webhooks", guide.Structure.Sections[0].Anchor)
}

func TestLoadRejectsTraversal(t *testing.T) {
	_, lib := seedCorpus(t)

	_, err := lib.Load(context.Background(), "../outside.md")
	require.ErrorIs(t, err, ErrUnsafePath)
}

func TestSaveRoundTrip(t *testing.T) {
	_, lib := seedCorpus(t)
	ctx := context.Background()

	guide, err := lib.Load(ctx, "guides/webhooks.md")
	require.NoError(t, err)

	guide.FrontMatter["title"] = "Webhooks, Revised"
	require.NoError(t, lib.Save(ctx, guide.Path, guide.FrontMatter, guide.Body, guide.Format))

	reloaded, err := lib.Load(ctx, "guides/webhooks.md")
	require.NoError(t, err)
	assert.Equal(t, "Webhooks, Revised", reloaded.Title)
	assert.Equal(t, guide.Body, reloaded.Body)
}

func TestCreateFromCollectionDefaults(t *testing.T) {
	_, lib := seedCorpus(t)
	ctx := context.Background()

	relPath, err := lib.Create(ctx, "guides", "rate-limits", map[string]interface{}{
		"title": "Rate Limits",
	})
	require.NoError(t, err)
	assert.Equal(t, "guides/rate-limits.md", relPath)

	guide, err := lib.Load(ctx, relPath)
	require.NoError(t, err)
	assert.Equal(t, "Rate Limits", guide.Title)
	assert.Equal(t, false, guide.FrontMatter["draft"])
	assert.Equal(t, "Write here.", guide.Body)

	// Second create at the same path must refuse to clobber.
	_, err = lib.Create(ctx, "guides", "rate-limits", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreateUnknownCollection(t *testing.T) {
	_, lib := seedCorpus(t)

	_, err := lib.Create(context.Background(), "nope", "x", nil)
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	content, lib := seedCorpus(t)
	ctx := context.Background()

	require.NoError(t, lib.Delete(ctx, "guides/webhooks.md"))
	_, err := os.Stat(filepath.Join(content, "guides", "webhooks.md"))
	assert.True(t, os.IsNotExist(err))

	guides, err := lib.List(ctx)
	require.NoError(t, err)
	assert.Len(t, guides, 1)
}

func TestCollectionFor(t *testing.T) {
	_, lib := seedCorpus(t)

	c := lib.CollectionFor("guides/webhooks.md")
	require.NotNil(t, c)
	assert.Equal(t, "guides", c.Name)

	c = lib.CollectionFor("questions.md")
	require.NotNil(t, c)
	assert.Equal(t, "questions", c.Name)

	assert.Nil(t, lib.CollectionFor("elsewhere/file.md"))
}

func TestSafeJoin(t *testing.T) {
	root := string(filepath.Separator) + "srv"

	got, err := SafeJoin(root, "content", "guides/webhooks.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "content", "guides", "webhooks.md"), got)

	for _, target := range []string{"../secrets", "a/../../b", "..", "/etc/passwd"} {
		_, err := SafeJoin(root, "content", target)
		assert.ErrorIs(t, err, ErrUnsafePath, target)
	}

	// Interior dot-dot that still resolves inside the tree is cleaned away.
	got, err = SafeJoin(root, "content", "guides/../questions.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "content", "questions.md"), got)
}
