package models

// SiteConfig is the parsed prepdesk.yml at the corpus root. It declares the
// content collections, the lint policy and the outbound webhook endpoints.
// MediaFolder is the repo-relative directory uploads land in; PublicFolder
// is the path guides reference those uploads by.
type SiteConfig struct {
	Title        string            `yaml:"title" json:"title"`
	MediaFolder  string            `yaml:"media_folder" json:"media_folder"`
	PublicFolder string            `yaml:"public_folder" json:"public_folder,omitempty"`
	Collections  []Collection      `yaml:"collections" json:"collections"`
	Lint         LintPolicy        `yaml:"lint" json:"lint"`
	Webhooks     []WebhookEndpoint `yaml:"webhooks" json:"webhooks,omitempty"`
}

// Collection roles: study guide folders and interview question lists.
const (
	RoleGuides    = "guides"
	RoleQuestions = "questions"
)

// Collection describes one folder of content files and the front-matter
// fields new files in it receive. MediaFolder and PublicFolder, when set,
// override the site-level media settings for uploads tied to this
// collection.
type Collection struct {
	Name         string  `yaml:"name" json:"name"`
	Label        string  `yaml:"label" json:"label,omitempty"`
	Folder       string  `yaml:"folder" json:"folder"`
	Extension    string  `yaml:"extension" json:"extension,omitempty"`
	Format       string  `yaml:"format" json:"format,omitempty"` // front-matter format for new files: yaml, toml, json
	Role         string  `yaml:"role" json:"role,omitempty"`     // "guides" or "questions"
	MediaFolder  string  `yaml:"media_folder" json:"media_folder,omitempty"`
	PublicFolder string  `yaml:"public_folder" json:"public_folder,omitempty"`
	Fields       []Field `yaml:"fields" json:"fields,omitempty"`
}

// Field is a front-matter field definition for a collection.
type Field struct {
	Name    string      `yaml:"name" json:"name"`
	Widget  string      `yaml:"widget" json:"widget,omitempty"`
	Default interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// LintPolicy tunes the lint rule set for a corpus.
type LintPolicy struct {
	// FenceLanguages restricts fenced-block languages to this allowlist when
	// non-empty. Languages must still be known to the highlighter registry.
	FenceLanguages []string `yaml:"fence_languages" json:"fence_languages,omitempty"`
	// DisabledRules lists rule ids that should not run for this corpus.
	DisabledRules []string `yaml:"disabled_rules" json:"disabled_rules,omitempty"`
	// FailOn is the severity that makes a lint run fail: "error" (default)
	// or "warn".
	FailOn string `yaml:"fail_on" json:"fail_on,omitempty"`
}

// RuleDisabled reports whether the policy switches a rule off.
func (p LintPolicy) RuleDisabled(id string) bool {
	for _, d := range p.DisabledRules {
		if d == id {
			return true
		}
	}
	return false
}

// CollectionByName returns the named collection, or nil.
func (c *SiteConfig) CollectionByName(name string) *Collection {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i]
		}
	}
	return nil
}

// CollectionsByRole returns the collections with the given role.
func (c *SiteConfig) CollectionsByRole(role string) []Collection {
	var out []Collection
	for _, col := range c.Collections {
		if col.Role == role {
			out = append(out, col)
		}
	}
	return out
}
