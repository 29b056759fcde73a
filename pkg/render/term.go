package render

import (
	"github.com/charmbracelet/glamour"
)

// Term renders guide Markdown for the terminal reader.
type Term struct {
	width int
}

// NewTerm creates a terminal renderer wrapping at width columns.
func NewTerm(width int) *Term {
	if width <= 0 {
		width = 100
	}
	return &Term{width: width}
}

// Render styles a guide body for the terminal. A renderer is built per call
// because glamour's TermRenderer buffers internally and is not safe to share.
func (t *Term) Render(body string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(t.width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(body)
}
