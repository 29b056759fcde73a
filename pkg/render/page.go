package render

import (
	"html/template"
	"strings"
)

// PageData fills the standalone page wrapper used by the export.
type PageData struct {
	SiteTitle string
	Title     string
	Home      string
	Body      template.HTML
}

// IndexGroup is one collection's block on the exported index page.
type IndexGroup struct {
	Label   string
	Entries []IndexEntry
}

// IndexEntry is a single guide link on the index page.
type IndexEntry struct {
	Title string
	Href  string
}

// IndexData fills the exported index page.
type IndexData struct {
	SiteTitle string
	Groups    []IndexGroup
}

const pageCSS = `body{max-width:860px;margin:2rem auto;padding:0 1rem;font-family:-apple-system,"Segoe UI",sans-serif;line-height:1.6;color:#1f2328}
pre{background:#f6f8fa;padding:1rem;overflow-x:auto;border-radius:6px}
code{font-family:ui-monospace,monospace;font-size:.92em}
a{color:#0969da;text-decoration:none}
a:hover{text-decoration:underline}
h1,h2,h3{border-bottom:1px solid #d1d9e0;padding-bottom:.3em}
blockquote{border-left:4px solid #d1d9e0;margin-left:0;padding-left:1rem;color:#59636e}
table{border-collapse:collapse}
td,th{border:1px solid #d1d9e0;padding:.4em .8em}
nav{margin-bottom:2rem;font-size:.9em}`

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · {{.SiteTitle}}</title>
<style>` + pageCSS + `</style>
</head>
<body>
<nav><a href="{{.Home}}">{{.SiteTitle}}</a></nav>
<article>
{{.Body}}
</article>
</body>
</html>
`))

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.SiteTitle}}</title>
<style>` + pageCSS + `</style>
</head>
<body>
<h1>{{.SiteTitle}}</h1>
{{range .Groups}}
<h2>{{.Label}}</h2>
<ul>
{{range .Entries}}<li><a href="{{.Href}}">{{.Title}}</a></li>
{{end}}</ul>
{{end}}
</body>
</html>
`))

// Page wraps a rendered guide fragment into a standalone HTML document.
func Page(data PageData) (string, error) {
	var b strings.Builder
	if err := pageTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Index renders the exported corpus index page.
func Index(data IndexData) (string, error) {
	var b strings.Builder
	if err := indexTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
