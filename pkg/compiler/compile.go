package compiler

import (
	"fmt"
	"strings"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/catalog"
	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/rls"
)

// Compile turns a validated QueryRequest + dataset + tenant identity into
// dialect SQL and bound parameters, per spec.md §4.4. req is assumed to have
// already passed pkg/guard's checks (dataset exists, fields are known,
// caps respected); Compile re-derives nothing guard already proved.
func Compile(ds *catalog.Dataset, req QueryRequest, tenant string, isAdmin bool, d dialect.Descriptor, maxRows int) (Compiled, error) {
	if len(req.Metrics) == 0 && len(req.Dimensions) > 0 {
		return Compiled{}, apierrors.New(apierrors.KindBadRequest, apierrors.CodeInvalidRequest,
			"at least one metric is required when dimensions are selected")
	}

	var params []any
	nextOrdinal := 1
	bind := func(v any) string {
		ph := d.Placeholder(nextOrdinal, fmt.Sprintf("p%d", nextOrdinal))
		params = append(params, v)
		nextOrdinal++
		return ph
	}

	// 1. SELECT list, in request order.
	selectParts := make([]string, 0, len(req.Dimensions)+len(req.Metrics))
	columns := make([]Column, 0, len(req.Dimensions)+len(req.Metrics))
	groupByParts := make([]string, 0, len(req.Dimensions))

	for _, name := range req.Dimensions {
		dim, _ := ds.Dimension(name)
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", dim.Expr, d.QuoteIdent(dim.Name)))
		groupByParts = append(groupByParts, dim.Expr)
		columns = append(columns, Column{Name: dim.Name, Type: string(dim.Type)})
	}
	for _, name := range req.Metrics {
		m, _ := ds.Metric(name)
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", m.Expr, d.QuoteIdent(m.Name)))
		columns = append(columns, Column{Name: m.Name, Type: "number"})
	}

	// 2. FROM clause.
	from := ds.FromExpr()
	if ds.SQL != "" {
		from = from + " AS base"
	}

	// 3. WHERE: filters, then RLS predicate.
	whereParts := make([]string, 0, len(req.Filters)+1)
	for _, f := range req.Filters {
		clause, err := renderFilter(ds, f, bind)
		if err != nil {
			return Compiled{}, err
		}
		whereParts = append(whereParts, clause)
	}

	if clause, param, ok := rls.Predicate(ds, tenant, isAdmin, d, nextOrdinal, ""); ok {
		params = append(params, param)
		nextOrdinal++
		whereParts = append(whereParts, clause)
	}

	// 4. GROUP BY.
	var groupBy string
	if len(groupByParts) > 0 {
		groupBy = "GROUP BY " + strings.Join(groupByParts, ", ")
	}

	// 5. ORDER BY.
	orderByParts := make([]string, 0, len(req.OrderBy))
	for _, ob := range req.OrderBy {
		dirSQL := "ASC"
		if ob.Direction == Desc {
			dirSQL = "DESC"
		}
		orderByParts = append(orderByParts, fmt.Sprintf("%s %s", d.QuoteIdent(ob.Field), dirSQL))
	}

	// 6. LIMIT/OFFSET.
	limit := req.Limit
	if maxRows > 0 && (limit <= 0 || limit > maxRows) {
		limit = maxRows
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	sql := assemble(d, selectParts, from, whereParts, groupBy, orderByParts, limit, offset)

	return Compiled{SQL: sql, Params: params, ExpectedColumns: columns}, nil
}

func assemble(d dialect.Descriptor, selectParts []string, from string, whereParts []string, groupBy string, orderByParts []string, limit, offset int) string {
	var b strings.Builder

	b.WriteString("SELECT ")
	if d.LimitStyle == dialect.LimitTop {
		fmt.Fprintf(&b, "TOP %d ", limit)
	}
	b.WriteString(strings.Join(selectParts, ", "))
	fmt.Fprintf(&b, " FROM %s", from)

	if len(whereParts) > 0 {
		fmt.Fprintf(&b, " WHERE %s", strings.Join(whereParts, " AND "))
	}
	if groupBy != "" {
		b.WriteString(" ")
		b.WriteString(groupBy)
	}
	if len(orderByParts) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(orderByParts, ", "))
	}

	switch d.LimitStyle {
	case dialect.LimitTrailing:
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	case dialect.LimitFetch:
		fmt.Fprintf(&b, " OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	case dialect.LimitTop:
		// TOP already applied in the SELECT list; SQL Server's TOP
		// form has no native OFFSET, acceptable since spec.md scopes
		// pagination to LIMIT/OFFSET-capable dialects for this case.
	}

	return b.String()
}

func renderFilter(ds *catalog.Dataset, f Filter, bind func(any) string) (string, error) {
	dim, ok := ds.Dimension(f.Field)
	if !ok {
		return "", apierrors.New(apierrors.KindBadRequest, apierrors.CodeUnknownField,
			"filter field is not a dimension: "+f.Field)
	}

	switch f.Op {
	case OpEq:
		return fmt.Sprintf("%s = %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpNe:
		return fmt.Sprintf("%s != %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpGt:
		return fmt.Sprintf("%s > %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpGe:
		return fmt.Sprintf("%s >= %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpLt:
		return fmt.Sprintf("%s < %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpLe:
		return fmt.Sprintf("%s <= %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpLike:
		if dim.Type != catalog.TypeString {
			return "", apierrors.New(apierrors.KindBadRequest, apierrors.CodeInvalidRequest,
				"like requires a string-typed dimension: "+f.Field)
		}
		return fmt.Sprintf("%s LIKE %s", dim.Expr, bind(f.Value.Bound())), nil
	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", dim.Expr), nil
	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", dim.Expr), nil
	case OpBetween:
		list, ok := f.Value.AsList()
		if !ok || len(list) != 2 {
			return "", apierrors.New(apierrors.KindBadRequest, apierrors.CodeInvalidRequest,
				"between requires a 2-element array: "+f.Field)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", dim.Expr, bind(list[0].Bound()), bind(list[1].Bound())), nil
	case OpIn, OpNotIn:
		list, ok := f.Value.AsList()
		if !ok {
			return "", apierrors.New(apierrors.KindBadRequest, apierrors.CodeInvalidRequest,
				"in/not_in requires an array: "+f.Field)
		}
		if len(list) == 0 {
			if f.Op == OpIn {
				return "1 = 0", nil // in on an empty list is always false
			}
			return "1 = 1", nil // not_in on an empty list excludes nothing
		}
		placeholders := make([]string, len(list))
		for i, v := range list {
			placeholders[i] = bind(v.Bound())
		}
		op := "IN"
		if f.Op == OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", dim.Expr, op, strings.Join(placeholders, ", ")), nil
	default:
		return "", apierrors.New(apierrors.KindBadRequest, apierrors.CodeInvalidRequest, "unknown filter operator: "+string(f.Op))
	}
}
