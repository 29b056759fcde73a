// Package questions keeps the interview question bank: importing questions
// from the corpus question lists and answering queries over SQLite. The same
// database also records lint reports and webhook deliveries.
package questions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dev-sujan/prepdesk/pkg/models"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store is the SQLite persistence layer.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database and runs migrations.
// WAL and a busy timeout keep concurrent API reads and scheduled imports out
// of each other's way.
func NewStore(dbPath string) (*Store, error) {
	// modernc.org/sqlite takes pragmas in the DSN as _pragma=name(value).
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		guide_path TEXT NOT NULL,
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT 'unrated' CHECK(difficulty IN ('basic', 'intermediate', 'advanced', 'unrated')),
		prompt TEXT NOT NULL,
		anchor TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		imported_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_questions_guide ON questions(guide_path);
	CREATE INDEX IF NOT EXISTS idx_questions_category ON questions(category);
	CREATE INDEX IF NOT EXISTS idx_questions_difficulty ON questions(difficulty);

	CREATE TABLE IF NOT EXISTS lint_reports (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		files INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		warnings INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lint_issues (
		report_id TEXT NOT NULL REFERENCES lint_reports(id) ON DELETE CASCADE,
		rule TEXT NOT NULL,
		severity TEXT NOT NULL,
		path TEXT NOT NULL,
		line INTEGER NOT NULL,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lint_issues_report ON lint_issues(report_id);

	CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		event TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		delivered_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_endpoint ON webhook_deliveries(endpoint, delivered_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ReplaceForGuide swaps a guide's questions in one transaction so a re-import
// never leaves a partial bank behind.
func (s *Store) ReplaceForGuide(ctx context.Context, guidePath string, questions []models.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE guide_path = ?`, guidePath); err != nil {
		return err
	}

	insert := `
	INSERT INTO questions (id, guide_path, category, difficulty, prompt, anchor, position, imported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, q := range questions {
		_, err := tx.ExecContext(ctx, insert,
			q.ID, q.GuidePath, q.Category, q.Difficulty, q.Prompt, q.Anchor, q.Position,
			q.ImportedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Filter narrows question queries. Category matching ignores case and
// Search matches a case-insensitive substring of the prompt.
type Filter struct {
	Category   string
	Difficulty string
	GuidePath  string
	Search     string
	Limit      int
	Offset     int
}

func (f Filter) where() (string, []interface{}) {
	clause := ""
	var args []interface{}
	add := func(cond string, arg interface{}) {
		if clause == "" {
			clause = " WHERE " + cond
		} else {
			clause += " AND " + cond
		}
		args = append(args, arg)
	}

	if f.Category != "" {
		add("category = ? COLLATE NOCASE", f.Category)
	}
	if f.Difficulty != "" {
		add("difficulty = ?", f.Difficulty)
	}
	if f.GuidePath != "" {
		add("guide_path = ?", f.GuidePath)
	}
	if f.Search != "" {
		add("prompt LIKE ? ESCAPE '\\'", "%"+escapeLike(f.Search)+"%")
	}
	return clause, args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// List returns matching questions in import order plus the total match count.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Question, int, error) {
	clause, args := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
	SELECT id, guide_path, category, difficulty, prompt, anchor, position, imported_at
	FROM questions` + clause + `
	ORDER BY guide_path, position`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, 0, err
	}
	return questions, total, rows.Err()
}

// Get returns one question by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Question, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, guide_path, category, difficulty, prompt, anchor, position, imported_at
	FROM questions WHERE id = ?`, id)

	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Random draws n matching questions for a practice set.
func (s *Store) Random(ctx context.Context, n int, f Filter) ([]models.Question, error) {
	clause, args := f.where()
	query := `
	SELECT id, guide_path, category, difficulty, prompt, anchor, position, imported_at
	FROM questions` + clause + `
	ORDER BY RANDOM() LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	return questions, rows.Err()
}

// Practice draws a timestamped practice set of up to n random questions.
func (s *Store) Practice(ctx context.Context, n int, f Filter) (models.PracticeSet, error) {
	questions, err := s.Random(ctx, n, f)
	if err != nil {
		return models.PracticeSet{}, err
	}
	return models.PracticeSet{GeneratedAt: time.Now(), Questions: questions}, nil
}

// Categories lists categories with their question counts.
func (s *Store) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT category, COUNT(*) FROM questions GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var counts []models.CategoryCount
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Stats summarises the bank.
func (s *Store) Stats(ctx context.Context) (models.BankStats, error) {
	stats := models.BankStats{ByDifficulty: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT difficulty, COUNT(*) FROM questions GROUP BY difficulty`)
	if err != nil {
		return stats, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var difficulty string
		var count int
		if err := rows.Scan(&difficulty, &count); err != nil {
			return stats, err
		}
		stats.ByDifficulty[difficulty] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT category) FROM questions`).Scan(&stats.Categories)
	return stats, err
}

// Count returns the number of questions in the bank.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}

func scanQuestion(row *sql.Row) (*models.Question, error) {
	var q models.Question
	var importedAt string
	if err := row.Scan(&q.ID, &q.GuidePath, &q.Category, &q.Difficulty, &q.Prompt, &q.Anchor, &q.Position, &importedAt); err != nil {
		return nil, err
	}
	q.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
	return &q, nil
}

func scanQuestions(rows *sql.Rows) ([]models.Question, error) {
	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var importedAt string
		if err := rows.Scan(&q.ID, &q.GuidePath, &q.Category, &q.Difficulty, &q.Prompt, &q.Anchor, &q.Position, &importedAt); err != nil {
			return nil, err
		}
		q.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
		questions = append(questions, q)
	}
	return questions, nil
}
