// Package rls injects the tenant row-level-security predicate into both
// compiler-generated SQL and raw /v1/sql bodies, using one shared code path
// so the two never drift, per spec.md §4.5.
package rls

import (
	"fmt"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/catalog"
	"github.com/setupranali/gateway/pkg/dialect"
)

// Predicate returns the RLS clause and its single bound parameter for a
// dataset, or ok=false when RLS does not apply (no policy configured, or
// the identity is an admin). alias is the table/subquery alias the clause
// should reference ("" for the compiler's own FROM, non-empty for the raw
// SQL wrap below).
func Predicate(ds *catalog.Dataset, tenant string, isAdmin bool, d dialect.Descriptor, placeholderOrdinal int, alias string) (clause string, param any, ok bool) {
	if ds.RLS == nil || isAdmin {
		return "", nil, false
	}

	field := ds.RLS.Field
	if alias != "" {
		field = alias + "." + field
	}

	ph := d.Placeholder(placeholderOrdinal, "tenant")
	return fmt.Sprintf("%s = %s", field, ph), tenant, true
}

// WrapRawSQL wraps a caller-supplied SELECT with the dataset's tenant
// predicate, per spec.md §4.5: `SELECT * FROM (<user-sql>) AS u WHERE
// u.<rls-field> = :tenant`. Admin identities skip wrapping but must still
// pass the safety gate, enforced by the caller, not here. userSQL is
// expected to already have passed the safety gate before this is called.
func WrapRawSQL(userSQL string, ds *catalog.Dataset, tenant string, isAdmin bool, d dialect.Descriptor) (string, []any, error) {
	if isAdmin {
		return userSQL, nil, nil
	}

	if ds.RLS == nil {
		return "", nil, apierrors.New(apierrors.KindRLSViolation, apierrors.CodeInternal,
			"dataset has no row-level security policy configured")
	}

	clause, param, ok := Predicate(ds, tenant, isAdmin, d, 1, "u")
	if !ok {
		return userSQL, nil, nil
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS u WHERE %s", userSQL, clause)
	return wrapped, []any{param}, nil
}
