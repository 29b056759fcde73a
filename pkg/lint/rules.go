package lint

import (
	"fmt"
	"go/parser"
	"go/token"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/dev-sujan/prepdesk/pkg/markdown"
	"github.com/dev-sujan/prepdesk/pkg/models"
)

// File is the per-file context rules run against. Line numbers inside Doc are
// body-relative; rules add LineOffset when reporting.
type File struct {
	Path        string
	Content     []byte
	FrontMatter map[string]interface{}
	HasMarker   bool // file opens with a --- or +++ fence
	FMValid     bool
	Doc         *models.Document
	LineOffset  int
	Collection  *models.Collection
	Policy      models.LintPolicy
	Resolver    Resolver
}

func (f *File) line(bodyLine int) int {
	return f.LineOffset + bodyLine
}

// Resolver answers cross-file questions for the xref rule.
type Resolver interface {
	// Exists reports whether a corpus-relative path exists.
	Exists(relPath string) bool
	// Anchors returns the heading anchors of another corpus file. ok is
	// false when the target is not a readable Markdown file.
	Anchors(relPath string) (map[string]bool, bool)
}

// Rule checks one property of a guide file.
type Rule interface {
	ID() string
	Check(f *File) []models.LintIssue
}

// DefaultRules returns the full rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		ParseClean{},
		TocResolves{},
		XrefResolves{},
		FenceLanguage{},
		GoSnippetParses{},
		FrontMatterTitle{},
		UniqueHeadings{},
	}
}

// ParseClean flags files that cannot be parsed at all: invalid UTF-8 or a
// front matter block that does not decode. An unterminated code fence is
// legal CommonMark but almost always an authoring mistake, so it surfaces as
// a warning.
type ParseClean struct{}

func (ParseClean) ID() string { return "parse-clean" }

func (r ParseClean) Check(f *File) []models.LintIssue {
	var issues []models.LintIssue

	if !utf8.Valid(f.Content) {
		issues = append(issues, models.LintIssue{
			Rule:     r.ID(),
			Severity: models.SeverityError,
			Path:     f.Path,
			Line:     1,
			Message:  "file is not valid UTF-8",
		})
		return issues
	}

	if f.HasMarker && !f.FMValid {
		issues = append(issues, models.LintIssue{
			Rule:     r.ID(),
			Severity: models.SeverityError,
			Path:     f.Path,
			Line:     1,
			Message:  "front matter block does not parse",
		})
	}

	if line, open := danglingFence(f.Content); open {
		issues = append(issues, models.LintIssue{
			Rule:     r.ID(),
			Severity: models.SeverityWarn,
			Path:     f.Path,
			Line:     line,
			Message:  "code fence is never closed",
		})
	}

	return issues
}

// danglingFence reports an odd number of backtick fence lines. It is a
// heuristic: indented or tilde fences are not counted.
func danglingFence(content []byte) (int, bool) {
	lines := strings.Split(string(content), "\n")
	open := false
	lastFence := 0
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimLeft(l, " "), "```") {
			open = !open
			lastFence = i + 1
		}
	}
	return lastFence, open
}

// TocResolves checks that every intra-document fragment link points at a
// heading anchor that exists in the document.
type TocResolves struct{}

func (TocResolves) ID() string { return "toc-resolves" }

func (r TocResolves) Check(f *File) []models.LintIssue {
	var issues []models.LintIssue
	anchors := f.Doc.Anchors()

	for _, link := range f.Doc.Links {
		if !strings.HasPrefix(link.Dest, "#") {
			continue
		}
		anchor := strings.TrimPrefix(link.Dest, "#")
		if unescaped, err := url.PathUnescape(anchor); err == nil {
			anchor = unescaped
		}
		if anchor == "" || anchors[anchor] {
			continue
		}
		issues = append(issues, models.LintIssue{
			Rule:     r.ID(),
			Severity: models.SeverityError,
			Path:     f.Path,
			Line:     f.line(link.Line),
			Message:  fmt.Sprintf("link %q does not resolve to any heading in this document", link.Dest),
		})
	}
	return issues
}

// XrefResolves checks relative links against the corpus: the target file must
// exist and a fragment, when present, must be an anchor in the target.
type XrefResolves struct{}

func (XrefResolves) ID() string { return "xref-resolves" }

func (r XrefResolves) Check(f *File) []models.LintIssue {
	var issues []models.LintIssue

	for _, link := range f.Doc.Links {
		if link.IsExternal() || link.Dest == "" || strings.HasPrefix(link.Dest, "#") {
			continue
		}
		if strings.HasPrefix(link.Dest, "//") {
			continue
		}

		dest := link.Dest
		fragment := ""
		if idx := strings.Index(dest, "#"); idx >= 0 {
			dest, fragment = dest[:idx], dest[idx+1:]
		}
		if unescaped, err := url.PathUnescape(dest); err == nil {
			dest = unescaped
		}
		if dest == "" {
			continue
		}

		var target string
		if strings.HasPrefix(dest, "/") {
			target = path.Clean(strings.TrimPrefix(dest, "/"))
		} else {
			target = path.Join(path.Dir(f.Path), dest)
		}
		if target == ".." || strings.HasPrefix(target, "../") {
			issues = append(issues, models.LintIssue{
				Rule:     r.ID(),
				Severity: models.SeverityError,
				Path:     f.Path,
				Line:     f.line(link.Line),
				Message:  fmt.Sprintf("link %q points outside the corpus", link.Dest),
			})
			continue
		}

		if !f.Resolver.Exists(target) {
			issues = append(issues, models.LintIssue{
				Rule:     r.ID(),
				Severity: models.SeverityError,
				Path:     f.Path,
				Line:     f.line(link.Line),
				Message:  fmt.Sprintf("link target %q does not exist", target),
			})
			continue
		}

		if fragment != "" && strings.HasSuffix(target, ".md") {
			if unescaped, err := url.PathUnescape(fragment); err == nil {
				fragment = unescaped
			}
			anchors, ok := f.Resolver.Anchors(target)
			if ok && !anchors[fragment] {
				issues = append(issues, models.LintIssue{
					Rule:     r.ID(),
					Severity: models.SeverityError,
					Path:     f.Path,
					Line:     f.line(link.Line),
					Message:  fmt.Sprintf("anchor %q not found in %s", "#"+fragment, target),
				})
			}
		}
	}
	return issues
}

// FenceLanguage requires every fenced code block to carry a known language.
// Known means the chroma lexer registry, or the policy allowlist when one is
// configured. mermaid is accepted because rendered sites draw it client-side.
type FenceLanguage struct{}

func (FenceLanguage) ID() string { return "fence-language" }

func (r FenceLanguage) Check(f *File) []models.LintIssue {
	var issues []models.LintIssue

	for _, block := range f.Doc.CodeBlocks {
		if block.Language == "" {
			issues = append(issues, models.LintIssue{
				Rule:     r.ID(),
				Severity: models.SeverityError,
				Path:     f.Path,
				Line:     f.line(block.Line),
				Message:  "code fence has no language annotation",
			})
			continue
		}
		if !languageKnown(block.Language, f.Policy.FenceLanguages) {
			issues = append(issues, models.LintIssue{
				Rule:     r.ID(),
				Severity: models.SeverityError,
				Path:     f.Path,
				Line:     f.line(block.Line),
				Message:  fmt.Sprintf("unknown code fence language %q", block.Language),
			})
		}
	}
	return issues
}

func languageKnown(lang string, allowlist []string) bool {
	if len(allowlist) > 0 {
		for _, allowed := range allowlist {
			if strings.EqualFold(allowed, lang) {
				return true
			}
		}
		return false
	}
	if strings.EqualFold(lang, "mermaid") {
		return true
	}
	return lexers.Get(lang) != nil
}

// GoSnippetParses parses fences tagged go with go/parser. Snippets without a
// package clause are retried wrapped as a file and then as a function body,
// so both whole files and statement fragments pass.
type GoSnippetParses struct{}

func (GoSnippetParses) ID() string { return "go-snippet-parses" }

func (r GoSnippetParses) Check(f *File) []models.LintIssue {
	var issues []models.LintIssue

	for _, block := range f.Doc.CodeBlocks {
		lang := strings.ToLower(block.Language)
		if lang != "go" && lang != "golang" {
			continue
		}
		if err := parseGoSnippet(block.Body); err != nil {
			issues = append(issues, models.LintIssue{
				Rule:     r.ID(),
				Severity: models.SeverityError,
				Path:     f.Path,
				Line:     f.line(block.Line),
				Message:  fmt.Sprintf("go snippet does not parse: %v", err),
			})
		}
	}
	return issues
}

func parseGoSnippet(body string) error {
	fset := token.NewFileSet()

	if _, err := parser.ParseFile(fset, "snippet.go", body, parser.ParseComments); err == nil {
		return nil
	}

	wrapped := "package snippet\n\n" + body
	if _, err := parser.ParseFile(fset, "snippet.go", wrapped, parser.ParseComments); err == nil {
		return nil
	}

	asFunc := "package snippet\n\nfunc _() {\n" + body + "\n}"
	_, err := parser.ParseFile(fset, "snippet.go", asFunc, parser.ParseComments)
	return err
}

// FrontMatterTitle wants guides to declare a title so listings and rendered
// pages have something better than the file path.
type FrontMatterTitle struct{}

func (FrontMatterTitle) ID() string { return "front-matter-title" }

func (r FrontMatterTitle) Check(f *File) []models.LintIssue {
	if f.Collection != nil && f.Collection.Role != models.RoleGuides {
		return nil
	}
	if markdown.Title(f.FrontMatter) != "" {
		return nil
	}
	return []models.LintIssue{{
		Rule:     r.ID(),
		Severity: models.SeverityWarn,
		Path:     f.Path,
		Line:     1,
		Message:  "guide has no front matter title",
	}}
}

// UniqueHeadings flags headings whose text repeats. The repeated ones get
// suffixed anchors, which makes hand-written ToC links fragile.
type UniqueHeadings struct{}

func (UniqueHeadings) ID() string { return "unique-headings" }

func (r UniqueHeadings) Check(f *File) []models.LintIssue {
	var issues []models.LintIssue

	for _, section := range f.Doc.Sections {
		if section.Anchor == markdown.Slugify(section.Text) {
			continue
		}
		issues = append(issues, models.LintIssue{
			Rule:     r.ID(),
			Severity: models.SeverityWarn,
			Path:     f.Path,
			Line:     f.line(section.Line),
			Message:  fmt.Sprintf("heading %q collides with an earlier heading, its anchor becomes %q", section.Text, section.Anchor),
		})
	}
	return issues
}
