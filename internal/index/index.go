package index

// TermIndex is the set of index operations the services depend on.
type TermIndex interface {
	UpsertTerm(row TermRow, body string, related []string) error
	DeleteTerm(name string) error
	GetChecksum(name string) (string, error)
	AllChecksums() (map[string]string, error)
	Backlinks(target string) ([]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ TermIndex = (*DB)(nil)
