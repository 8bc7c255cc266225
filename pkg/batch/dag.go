package batch

import (
	"github.com/setupranali/gateway/pkg/apierrors"
)

// topologicalGroups returns the sub-requests grouped into waves: wave i
// contains every node whose dependencies are all satisfied by waves
// 0..i-1. Nodes within a wave carry no ordering guarantee against each
// other. Returns an error if the graph has a cycle or references an
// unknown id.
func topologicalGroups(reqs []SubRequest) ([][]SubRequest, error) {
	byID := make(map[string]SubRequest, len(reqs))
	indegree := make(map[string]int, len(reqs))
	dependents := make(map[string][]string, len(reqs))

	for _, r := range reqs {
		if _, dup := byID[r.ID]; dup {
			return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeBatchMissingRef, "duplicate sub-request id: "+r.ID)
		}
		byID[r.ID] = r
		indegree[r.ID] = 0
	}
	for _, r := range reqs {
		for _, dep := range r.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeBatchMissingRef, "unknown depends_on id: "+dep)
			}
			indegree[r.ID]++
			dependents[dep] = append(dependents[dep], r.ID)
		}
	}

	var groups [][]SubRequest
	remaining := len(reqs)
	frontier := make([]string, 0)
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		group := make([]SubRequest, 0, len(frontier))
		var next []string
		for _, id := range frontier {
			group = append(group, byID[id])
			remaining--
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		groups = append(groups, group)
		frontier = next
	}

	if remaining > 0 {
		return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeBatchCycle, "batch dependency graph contains a cycle")
	}

	return groups, nil
}
