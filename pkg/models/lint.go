package models

import "time"

// Severity grades a lint issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// LintIssue is one finding produced by a lint rule.
type LintIssue struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

// LintReport aggregates the issues of one lint run over the corpus.
type LintReport struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Files      int         `json:"files"`
	Issues     []LintIssue `json:"issues"`
}

// Errors counts issues at error severity.
func (r *LintReport) Errors() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings counts issues at warn severity.
func (r *LintReport) Warnings() int {
	return len(r.Issues) - r.Errors()
}

// Failed reports whether the run fails under the given threshold severity.
// A "warn" threshold fails on any issue; the default "error" threshold only
// fails on errors.
func (r *LintReport) Failed(failOn string) bool {
	if failOn == string(SeverityWarn) {
		return len(r.Issues) > 0
	}
	return r.Errors() > 0
}
