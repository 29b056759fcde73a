package questions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dev-sujan/prepdesk/pkg/models"
)

// SaveLintReport persists a report with its issue rows.
func (s *Store) SaveLintReport(ctx context.Context, report *models.LintReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO lint_reports (id, started_at, finished_at, files, errors, warnings)
	VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		report.Files,
		report.Errors(),
		report.Warnings(),
	)
	if err != nil {
		return err
	}

	for _, issue := range report.Issues {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO lint_issues (report_id, rule, severity, path, line, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
			report.ID, issue.Rule, string(issue.Severity), issue.Path, issue.Line, issue.Message,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestLintReport returns the most recent report with its issues, or
// ErrNotFound when no run has been recorded yet.
func (s *Store) LatestLintReport(ctx context.Context) (*models.LintReport, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, files
	FROM lint_reports ORDER BY started_at DESC LIMIT 1`)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadIssues(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// LintReport returns one report by id.
func (s *Store) LintReport(ctx context.Context, id string) (*models.LintReport, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, files
	FROM lint_reports WHERE id = ?`, id)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadIssues(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func scanReport(row *sql.Row) (*models.LintReport, error) {
	var report models.LintReport
	var started, finished string
	if err := row.Scan(&report.ID, &started, &finished, &report.Files); err != nil {
		return nil, err
	}
	report.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	report.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return &report, nil
}

func (s *Store) loadIssues(ctx context.Context, report *models.LintReport) error {
	rows, err := s.db.QueryContext(ctx, `
	SELECT rule, severity, path, line, message
	FROM lint_issues WHERE report_id = ?
	ORDER BY path, line, rule`, report.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var issue models.LintIssue
		var severity string
		if err := rows.Scan(&issue.Rule, &severity, &issue.Path, &issue.Line, &issue.Message); err != nil {
			return err
		}
		issue.Severity = models.Severity(severity)
		report.Issues = append(report.Issues, issue)
	}
	return rows.Err()
}

// RecordDelivery logs one webhook delivery outcome.
func (s *Store) RecordDelivery(ctx context.Context, d models.Delivery) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO webhook_deliveries (id, endpoint, event, status_code, attempts, error, delivered_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Endpoint, d.Event, d.StatusCode, d.Attempts, d.Error,
		d.DeliveredAt.UTC().Format(time.RFC3339Nano), d.DurationMS,
	)
	return err
}

// RecentDeliveries returns the latest delivery records, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, endpoint, event, status_code, attempts, error, delivered_at, duration_ms
	FROM webhook_deliveries ORDER BY delivered_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var deliveries []models.Delivery
	for rows.Next() {
		var d models.Delivery
		var deliveredAt string
		if err := rows.Scan(&d.ID, &d.Endpoint, &d.Event, &d.StatusCode, &d.Attempts, &d.Error, &deliveredAt, &d.DurationMS); err != nil {
			return nil, err
		}
		d.DeliveredAt, _ = time.Parse(time.RFC3339Nano, deliveredAt)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
