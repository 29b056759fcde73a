package models

// Guide represents one study-guide file in the corpus.
type Guide struct {
	Path        string                 `json:"path"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content,omitempty"` // raw file content (backward compatibility)
	FrontMatter map[string]interface{} `json:"frontmatter,omitempty"`
	Body        string                 `json:"body,omitempty"`
	Format      string                 `json:"format,omitempty"` // yaml, toml, json
	IsDirty     bool                   `json:"is_dirty"`
	Structure   *Document              `json:"structure,omitempty"`
}

// Document is the structural view of a guide body: its heading tree,
// outgoing links and fenced code blocks, in source order.
type Document struct {
	Sections   []Section   `json:"sections"`
	Links      []Link      `json:"links"`
	CodeBlocks []CodeBlock `json:"code_blocks"`
}

// Section is one heading in a guide. Anchor is the GitHub-style slug the
// heading renders to, after duplicate de-duplication.
type Section struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	Anchor string `json:"anchor"`
	Line   int    `json:"line"`
}

// Link is an outgoing link found in a guide body.
type Link struct {
	Dest string `json:"dest"`
	Text string `json:"text,omitempty"`
	Line int    `json:"line"`
}

// IsExternal reports whether the link points outside the corpus.
func (l Link) IsExternal() bool {
	for _, prefix := range []string{"http://", "https://", "mailto:", "tel:"} {
		if len(l.Dest) >= len(prefix) && l.Dest[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// CodeBlock is a fenced code block with its info-string language.
type CodeBlock struct {
	Language string `json:"language"`
	Line     int    `json:"line"`
	Body     string `json:"body,omitempty"`
}

// Anchors returns the set of heading anchors defined by the document.
func (d *Document) Anchors() map[string]bool {
	anchors := make(map[string]bool, len(d.Sections))
	for _, s := range d.Sections {
		anchors[s.Anchor] = true
	}
	return anchors
}
