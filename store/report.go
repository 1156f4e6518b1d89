package store

// ReportRecord is a persisted analysis report. Payload is the canonical JSON
// encoding of the report; Markdown is the rendered human-readable form.
type ReportRecord struct {
	ID           string
	RepositoryID string
	Status       string
	Payload      string
	Markdown     string
	CreatedTs    int64
}

// FindReportRecord narrows report queries. Nil fields match everything.
type FindReportRecord struct {
	ID           *string
	RepositoryID *string
	Status       *string

	Limit *int
}
