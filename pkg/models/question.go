package models

import "time"

// Difficulty buckets for interview questions. Question list items opt in
// with a leading [basic], [intermediate] or [advanced] marker.
const (
	DifficultyBasic        = "basic"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyUnrated      = "unrated"
)

// Question is one interview question imported from a question-list file.
type Question struct {
	ID         string    `json:"id"`
	GuidePath  string    `json:"guide_path"`
	Category   string    `json:"category"`
	Difficulty string    `json:"difficulty"`
	Prompt     string    `json:"prompt"`
	Anchor     string    `json:"anchor,omitempty"`
	Position   int       `json:"position"`
	ImportedAt time.Time `json:"imported_at"`
}

// CategoryCount pairs a category with its question count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// BankStats summarises the question bank.
type BankStats struct {
	Total        int            `json:"total"`
	ByDifficulty map[string]int `json:"by_difficulty"`
	Categories   int            `json:"categories"`
}

// PracticeSet is a randomly drawn set of questions for one practice session.
type PracticeSet struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Questions   []Question `json:"questions"`
}
