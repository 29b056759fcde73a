package questions

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/markdown"
	"github.com/dev-sujan/prepdesk/pkg/metrics"
	"github.com/dev-sujan/prepdesk/pkg/models"
)

var questionParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

var difficultyMarker = regexp.MustCompile(`^\[(basic|intermediate|advanced)\]\s*`)

// Importer pulls questions out of the corpus question-list files into the
// bank.
type Importer struct {
	lib   *corpus.Library
	store *Store
	log   zerolog.Logger
}

// NewImporter creates an Importer.
func NewImporter(lib *corpus.Library, store *Store) *Importer {
	return &Importer{
		lib:   lib,
		store: store,
		log:   logging.WithComponent("questions"),
	}
}

// Extract parses a question-list body. Headings open categories, top-level
// list items under them become questions. A leading [basic], [intermediate]
// or [advanced] marker on an item sets its difficulty.
func Extract(guidePath string, body []byte) []models.Question {
	root := questionParser.Parser().Parse(text.NewReader(body))
	slugger := markdown.NewSlugger()

	var questions []models.Question
	category := "general"
	anchor := ""

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Heading:
			headingText := markdown.NodeText(v, body)
			// Anchors must match the scan, so every heading feeds the
			// slugger even when it opens no category.
			headingAnchor := slugger.Anchor(headingText)
			if headingText != "" {
				category = headingText
				anchor = headingAnchor
			}

		case *ast.List:
			for item := v.FirstChild(); item != nil; item = item.NextSibling() {
				prompt := itemPrompt(item, body)
				if prompt == "" {
					continue
				}

				difficulty := models.DifficultyUnrated
				if m := difficultyMarker.FindStringSubmatch(prompt); m != nil {
					difficulty = m[1]
					prompt = strings.TrimSpace(prompt[len(m[0]):])
				}
				if prompt == "" {
					continue
				}

				questions = append(questions, models.Question{
					ID:         questionID(guidePath, prompt),
					GuidePath:  guidePath,
					Category:   category,
					Difficulty: difficulty,
					Prompt:     prompt,
					Anchor:     anchor,
					Position:   len(questions) + 1,
				})
			}
			// Nested lists are elaboration on their parent item, not
			// separate questions.
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return questions
}

// itemPrompt extracts the text of a list item's first block, leaving nested
// lists out.
func itemPrompt(item ast.Node, source []byte) string {
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *ast.TextBlock, *ast.Paragraph:
			return strings.TrimSpace(markdown.NodeText(child, source))
		}
	}
	return ""
}

// questionID derives a stable id from guide path and prompt so re-imports
// keep ids while edits produce new ones.
func questionID(guidePath, prompt string) string {
	sum := sha1.Sum([]byte(guidePath + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// ImportGuide re-imports one question-list file.
func (i *Importer) ImportGuide(ctx context.Context, relPath string) (int, error) {
	guide, err := i.lib.Load(ctx, relPath)
	if err != nil {
		return 0, err
	}

	questions := Extract(guide.Path, []byte(guide.Body))
	now := time.Now()
	for idx := range questions {
		questions[idx].ImportedAt = now
	}

	if err := i.store.ReplaceForGuide(ctx, guide.Path, questions); err != nil {
		return 0, err
	}

	i.log.Info().Str("path", relPath).Int("questions", len(questions)).Msg("question list imported")
	return len(questions), nil
}

// ImportAll re-imports every file in the question-role collections and
// refreshes the bank size gauge.
func (i *Importer) ImportAll(ctx context.Context) (int, error) {
	guides, err := i.lib.List(ctx)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, guide := range guides {
		collection := i.lib.CollectionFor(guide.Path)
		if collection == nil || collection.Role != models.RoleQuestions {
			continue
		}
		n, err := i.ImportGuide(ctx, guide.Path)
		if err != nil {
			return imported, err
		}
		imported += n
	}

	if total, err := i.store.Count(ctx); err == nil {
		metrics.SetQuestionCount(total)
	}
	return imported, nil
}
