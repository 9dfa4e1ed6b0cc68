package reconfig

import (
	"context"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/replset/internal/cluster"
)

// StaticSelection picks replacement nodes from a fixed candidate pool in
// configuration order, skipping blacklisted endpoints. Deployments with a
// live service registry substitute their own Selection.
type StaticSelection struct {
	Pool []string
}

// AutoSelect implements Selection.
func (s *StaticSelection) AutoSelect(_ context.Context, blacklist []string) (string, []string, error) {
	normalized := make([]string, 0, len(blacklist))
	for _, b := range blacklist {
		normalized = append(normalized, cluster.NormalizeEndpoint(b))
	}

	var picked []string
	for _, candidate := range s.Pool {
		if slices.Contains(normalized, cluster.NormalizeEndpoint(candidate)) {
			continue
		}
		picked = append(picked, candidate)
		if len(picked) == 3 {
			return picked[0], picked[1:], nil
		}
	}
	return "", nil, fmt.Errorf("need 3 candidates outside blacklist, pool yielded %d", len(picked))
}
