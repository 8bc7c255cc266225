package batch

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/setupranali/gateway/pkg/apierrors"
)

// refPattern matches a whole-value reference token: $ref:<id>[<n>].<field>
var refPattern = regexp.MustCompile(`^\$ref:([A-Za-z0-9_-]+)\[(\d+)\]\.([A-Za-z0-9_]+)$`)

// resolveFilters substitutes every $ref token in filters against completed,
// returning a new map with concrete values. A reference to a sub-query
// that failed, was skipped, or whose row/field doesn't exist is an error.
func resolveFilters(filters map[string]any, completed map[string]SubResult) (map[string]any, error) {
	if len(filters) == 0 {
		return filters, nil
	}
	resolved := make(map[string]any, len(filters))
	for k, v := range filters {
		rv, err := resolveValue(v, completed)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}
	return resolved, nil
}

func resolveValue(v any, completed map[string]SubResult) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return v, nil
	}

	refID, rowStr, field := m[1], m[2], m[3]
	row, _ := strconv.Atoi(rowStr)

	sub, ok := completed[refID]
	if !ok || sub.Status != StatusSuccess {
		return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeBatchMissingRef,
			fmt.Sprintf("$ref %q refers to a sub-query that has not succeeded", s))
	}

	colIdx := -1
	for i, c := range sub.Result.Columns {
		if c == field {
			colIdx = i
			break
		}
	}
	if colIdx == -1 {
		return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeBatchMissingRef,
			fmt.Sprintf("$ref %q: field %q not found in result of %q", s, field, refID))
	}
	if row < 0 || row >= len(sub.Result.Rows) {
		return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeBatchMissingRef,
			fmt.Sprintf("$ref %q: row %d out of range", s, row))
	}

	return sub.Result.Rows[row][colIdx], nil
}
