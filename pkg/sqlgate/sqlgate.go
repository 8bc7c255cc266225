// Package sqlgate rejects anything that is not a single read-only SELECT
// (including CTE-of-SELECT), by parsing the statement tree rather than
// scanning for substrings, per spec.md §4.6.
package sqlgate

import (
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/setupranali/gateway/pkg/apierrors"
)

// github.com/xwb1989/sqlparser is a 2018-era extraction of vitess's SQL
// grammar: it predates both MySQL 8 window functions and vitess's own CTE
// support, so sqlparser.Parse rejects a syntactically valid "WITH ... SELECT"
// or "... OVER (...)" statement as a parse error. These two patterns detect
// that narrow class of rejection so it can be validated by denylist instead
// of by tree walk, rather than being turned away outright.
var (
	cteStatementPattern   = regexp.MustCompile(`(?i)^with\b`)
	windowFunctionPattern = regexp.MustCompile(`(?i)\)\s*over\s*\(`)
	unsafeKeywordPattern  = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|merge|call|exec|execute|set|use|lock|vacuum|copy|attach|detach|pragma|replace|into)\b`)
)

// Check validates a raw SQL body submitted to /v1/sql. It returns nil if the
// statement is acceptable, or an *apierrors.Error with KindSQLRejected
// otherwise.
func Check(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return rejected("empty SQL body")
	}

	if containsCommentToken(trimmed) {
		return rejected("SQL comments are not permitted")
	}

	pieces, err := sqlparser.SplitStatementToPieces(trimmed)
	if err != nil {
		return rejected("could not parse SQL: " + err.Error())
	}
	nonEmpty := 0
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			nonEmpty++
		}
	}
	if nonEmpty > 1 {
		return rejected("multiple statements are not permitted")
	}

	stmt, err := sqlparser.Parse(trimmed)
	if err != nil {
		if cteStatementPattern.MatchString(trimmed) || windowFunctionPattern.MatchString(trimmed) {
			return checkUnparsableConstruct(trimmed)
		}
		return rejected("could not parse SQL: " + err.Error())
	}

	if err := checkSelectOnly(stmt); err != nil {
		return err
	}

	return nil
}

// checkUnparsableConstruct validates a CTE or window-function statement that
// sqlparser couldn't build a tree for. It is strictly narrower than
// checkSelectOnly's tree walk: it denylists write/DDL keywords by whole-word
// match instead of walking the parsed AST, since there is no AST here to
// walk. Only reached for statements that already passed the multi-statement
// and comment checks in Check.
func checkUnparsableConstruct(sql string) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(upper, "WITH") && !strings.HasPrefix(upper, "SELECT") {
		return rejected("only SELECT statements, optionally with a leading WITH clause, are permitted")
	}
	if unsafeKeywordPattern.MatchString(sql) {
		return rejected("statement contains a non-SELECT construct")
	}
	return nil
}

// checkSelectOnly walks the parsed statement tree, rejecting anything other
// than a SELECT (or a UNION of SELECTs), and walks its subtree rejecting any
// data-modifying or DDL node that could appear nested (e.g. inside a
// derived table in dialects permissive enough to allow it).
func checkSelectOnly(stmt sqlparser.Statement) error {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return walkRejectingUnsafeNodes(s)
	case *sqlparser.Union:
		return walkRejectingUnsafeNodes(s)
	case *sqlparser.ParenSelect:
		return checkSelectOnly(s.Select)
	default:
		return rejected("only SELECT statements are permitted")
	}
}

func walkRejectingUnsafeNodes(node sqlparser.SQLNode) error {
	var rejectErr error
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		switch n.(type) {
		case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete,
			*sqlparser.DDL, *sqlparser.Set, *sqlparser.Show, *sqlparser.OtherAdmin,
			*sqlparser.OtherRead:
			rejectErr = rejected("statement contains a non-SELECT construct")
			return false, nil
		}
		return true, nil
	}, node)
	return rejectErr
}

// containsCommentToken does a conservative textual scan for comment
// openers. The parser itself may tolerate or strip comments silently on
// some dialects, so this check runs first and independently.
func containsCommentToken(sql string) bool {
	return strings.Contains(sql, "--") || strings.Contains(sql, "/*") || strings.Contains(sql, "#")
}

func rejected(reason string) error {
	return apierrors.New(apierrors.KindSQLRejected, apierrors.CodeSQLRejected, reason)
}
