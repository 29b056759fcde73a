// Package render turns guide Markdown into HTML for the API and the export,
// and into styled text for the terminal reader.
package render

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	highlighting "github.com/yuin/goldmark-highlighting/v2"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/dev-sujan/prepdesk/pkg/cache"
	"github.com/dev-sujan/prepdesk/pkg/markdown"
	"github.com/dev-sujan/prepdesk/pkg/metrics"
)

// headingIDs assigns each heading the same anchor the structural scan
// computes, so rendered pages and ToC links agree.
type headingIDs struct{}

func (headingIDs) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	slugger := markdown.NewSlugger()
	source := reader.Source()

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			anchor := slugger.Anchor(markdown.NodeText(h, source))
			h.SetAttributeString("id", []byte(anchor))
		}
		return ast.WalkContinue, nil
	})
}

// mdLinkRewrite points relative guide links at their exported .html pages.
type mdLinkRewrite struct{}

func (mdLinkRewrite) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(rewriteDest(string(link.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

func rewriteDest(dest string) string {
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "mailto:") {
		return dest
	}
	base, frag := dest, ""
	if i := strings.Index(dest, "#"); i >= 0 {
		base, frag = dest[:i], dest[i:]
	}
	if strings.HasSuffix(base, ".md") {
		return strings.TrimSuffix(base, ".md") + ".html" + frag
	}
	return dest
}

// HTML renders guide bodies to HTML fragments, caching by content hash.
type HTML struct {
	md       goldmark.Markdown
	cache    cache.Cache
	ttl      time.Duration
	keySpace string
}

// HTMLOption configures the renderer.
type HTMLOption func(*htmlConfig)

type htmlConfig struct {
	rewriteLinks bool
}

// WithGuideLinksAsHTML rewrites relative .md link targets to .html, for the
// static export where pages link to each other's rendered files.
func WithGuideLinksAsHTML() HTMLOption {
	return func(c *htmlConfig) { c.rewriteLinks = true }
}

// NewHTML creates the HTML renderer. cache may be nil to disable caching.
func NewHTML(c cache.Cache, ttl time.Duration, opts ...HTMLOption) *HTML {
	var cfg htmlConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	transformers := []util.PrioritizedValue{
		util.Prioritized(headingIDs{}, 500),
	}
	keySpace := "render:html:"
	if cfg.rewriteLinks {
		transformers = append(transformers, util.Prioritized(mdLinkRewrite{}, 600))
		// Rewritten output must never be served from the preview cache.
		keySpace = "render:export:"
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(transformers...),
		),
	)
	return &HTML{md: md, cache: c, ttl: ttl, keySpace: keySpace}
}

// Render converts a guide body to an HTML fragment. relPath only
// namespaces the cache key.
func (h *HTML) Render(relPath string, body []byte) (string, error) {
	key := h.renderKey(relPath, body)
	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			metrics.RecordCacheHit()
			return cached, nil
		}
		metrics.RecordCacheMiss()
	}

	var buf bytes.Buffer
	if err := h.md.Convert(body, &buf); err != nil {
		return "", fmt.Errorf("render %s: %w", relPath, err)
	}
	out := buf.String()

	if h.cache != nil {
		h.cache.Set(key, out, h.ttl)
	}
	return out, nil
}

// renderKey hashes the body so stale cache entries can never be served for
// changed content.
func (h *HTML) renderKey(relPath string, body []byte) string {
	sum := sha1.Sum(body)
	return h.keySpace + relPath + ":" + hex.EncodeToString(sum[:8])
}
