package store

// Repository is a source tree registered for analysis. Source is either a
// local filesystem path or a clone URL.
type Repository struct {
	ID        string
	Name      string
	Source    string
	CreatedTs int64
}

// FindRepository narrows repository queries. Nil fields match everything.
type FindRepository struct {
	ID   *string
	Name *string

	Limit *int
}
