package introspect

// CockroachDBDescriber describes CockroachDB databases. CockroachDB speaks the
// PostgreSQL catalog, so it is the PostgreSQL describer with the implicit rowid
// column and its primary key filtered out.
type CockroachDBDescriber struct {
	*PostgresDescriber
}

// NewCockroachDBDescriber creates a CockroachDB describer.
func NewCockroachDBDescriber(db Queryer) *CockroachDBDescriber {
	return &CockroachDBDescriber{PostgresDescriber: &PostgresDescriber{db: db, cockroach: true}}
}
