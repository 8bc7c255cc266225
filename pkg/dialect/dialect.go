// Package dialect describes each upstream SQL variant as a flat table of
// knobs — quoting, parameter style, limit syntax, date literals, timeout
// primitive, ping query — consumed by one generic rewrite pass. There is no
// inheritance tree of per-kind adapters, per spec.md §4.4 and §9.
package dialect

import "fmt"

// ParamStyle selects how the compiler renders bound-parameter placeholders.
type ParamStyle string

const (
	ParamDollar  ParamStyle = "dollar"  // $1, $2, ...
	ParamQuestion ParamStyle = "question" // ?
	ParamAt      ParamStyle = "at"      // @p1, @p2, ...
	ParamNamed   ParamStyle = "named"   // :p1, :p2, ...
)

// LimitStyle selects how row-limiting is spelled.
type LimitStyle string

const (
	LimitTrailing LimitStyle = "trailing" // LIMIT n OFFSET m
	LimitTop      LimitStyle = "top"      // SELECT TOP n ... (SQL Server)
	LimitFetch    LimitStyle = "fetch"    // OFFSET m ROWS FETCH NEXT n ROWS ONLY (Oracle)
)

// Kind is one of the eleven upstream source kinds spec.md §2 names.
type Kind string

const (
	Postgres   Kind = "postgres"
	MySQL      Kind = "mysql"
	Snowflake  Kind = "snowflake"
	BigQuery   Kind = "bigquery"
	Databricks Kind = "databricks"
	Redshift   Kind = "redshift"
	ClickHouse Kind = "clickhouse"
	DuckDB     Kind = "duckdb"
	SQLServer  Kind = "sqlserver"
	Oracle     Kind = "oracle"
	CockroachDB Kind = "cockroachdb"
)

// Descriptor is the flat set of knobs for one dialect.
type Descriptor struct {
	Kind          Kind
	IdentQuote    [2]byte // open/close quote char for identifiers, e.g. '"','"' or '`','`'
	ParamStyle    ParamStyle
	LimitStyle    LimitStyle
	DateLiteral   func(isoDate string) string
	TimeoutStmt   func(seconds int) string // empty string if unsupported
	PingQuery     string
}

// QuoteIdent quotes an identifier per this dialect's convention.
func (d Descriptor) QuoteIdent(name string) string {
	return fmt.Sprintf("%c%s%c", d.IdentQuote[0], name, d.IdentQuote[1])
}

// Placeholder renders the nth (1-based) bound-parameter placeholder.
func (d Descriptor) Placeholder(n int, name string) string {
	switch d.ParamStyle {
	case ParamDollar:
		return fmt.Sprintf("$%d", n)
	case ParamQuestion:
		return "?"
	case ParamAt:
		return fmt.Sprintf("@p%d", n)
	case ParamNamed:
		return fmt.Sprintf(":%s", name)
	default:
		return "?"
	}
}

var registry = map[Kind]Descriptor{
	Postgres: {
		Kind: Postgres, IdentQuote: [2]byte{'"', '"'}, ParamStyle: ParamDollar, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE '" + d + "'" },
		TimeoutStmt: func(s int) string { return fmt.Sprintf("SET statement_timeout = %d", s*1000) },
		PingQuery:   "SELECT 1",
	},
	CockroachDB: {
		Kind: CockroachDB, IdentQuote: [2]byte{'"', '"'}, ParamStyle: ParamDollar, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE '" + d + "'" },
		TimeoutStmt: func(s int) string { return fmt.Sprintf("SET statement_timeout = %d", s*1000) },
		PingQuery:   "SELECT 1",
	},
	Redshift: {
		Kind: Redshift, IdentQuote: [2]byte{'"', '"'}, ParamStyle: ParamDollar, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE '" + d + "'" },
		TimeoutStmt: func(s int) string { return fmt.Sprintf("SET statement_timeout TO %d", s*1000) },
		PingQuery:   "SELECT 1",
	},
	MySQL: {
		Kind: MySQL, IdentQuote: [2]byte{'`', '`'}, ParamStyle: ParamQuestion, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE('" + d + "')" },
		TimeoutStmt: func(s int) string { return fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME=%d", s*1000) },
		PingQuery:   "SELECT 1",
	},
	ClickHouse: {
		Kind: ClickHouse, IdentQuote: [2]byte{'`', '`'}, ParamStyle: ParamQuestion, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "toDate('" + d + "')" },
		TimeoutStmt: func(s int) string { return "" },
		PingQuery:   "SELECT 1",
	},
	DuckDB: {
		Kind: DuckDB, IdentQuote: [2]byte{'"', '"'}, ParamStyle: ParamQuestion, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE '" + d + "'" },
		TimeoutStmt: func(s int) string { return "" },
		PingQuery:   "SELECT 1",
	},
	SQLServer: {
		Kind: SQLServer, IdentQuote: [2]byte{'[', ']'}, ParamStyle: ParamAt, LimitStyle: LimitTop,
		DateLiteral: func(d string) string { return "CONVERT(date, '" + d + "')" },
		TimeoutStmt: func(s int) string { return fmt.Sprintf("SET LOCK_TIMEOUT %d", s*1000) },
		PingQuery:   "SELECT 1",
	},
	Snowflake: {
		Kind: Snowflake, IdentQuote: [2]byte{'"', '"'}, ParamStyle: ParamQuestion, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "TO_DATE('" + d + "')" },
		TimeoutStmt: func(s int) string { return fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", s) },
		PingQuery:   "SELECT 1",
	},
	Oracle: {
		Kind: Oracle, IdentQuote: [2]byte{'"', '"'}, ParamStyle: ParamNamed, LimitStyle: LimitFetch,
		DateLiteral: func(d string) string { return "TO_DATE('" + d + "', 'YYYY-MM-DD')" },
		TimeoutStmt: func(s int) string { return "" },
		PingQuery:   "SELECT 1 FROM DUAL",
	},
	BigQuery: {
		Kind: BigQuery, IdentQuote: [2]byte{'`', '`'}, ParamStyle: ParamAt, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE '" + d + "'" },
		TimeoutStmt: func(s int) string { return "" }, // set via job config, not SQL
		PingQuery:   "SELECT 1",
	},
	Databricks: {
		Kind: Databricks, IdentQuote: [2]byte{'`', '`'}, ParamStyle: ParamQuestion, LimitStyle: LimitTrailing,
		DateLiteral: func(d string) string { return "DATE('" + d + "')" },
		TimeoutStmt: func(s int) string { return "" },
		PingQuery:   "SELECT 1",
	},
}

// Get returns the descriptor for a kind, or false if unknown.
func Get(k Kind) (Descriptor, bool) {
	d, ok := registry[k]
	return d, ok
}

// All returns every registered descriptor, stable iteration not guaranteed.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	return out
}
