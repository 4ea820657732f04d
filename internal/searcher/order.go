package searcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docsift/docsift/pkg/types"
)

// orderResults sorts results in place. An empty key orders by score
// descending with id ascending as the tie-break. A metadata key orders
// by its value ascending, or descending with a leading '-'; documents
// missing the key sort as if the value were largest, so they come last
// ascending and first descending. Ties fall back to score descending
// then id ascending. The sort is stable.
func orderResults(results []types.Result, orderBy string) {
	if orderBy == "" {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].ID < results[j].ID
		})
		return
	}

	key := orderBy
	descending := false
	if strings.HasPrefix(key, "-") {
		key = key[1:]
		descending = true
	}

	sort.SliceStable(results, func(i, j int) bool {
		vi, oki := results[i].Metadata[key]
		vj, okj := results[j].Metadata[key]
		if oki != okj {
			if descending {
				return !oki
			}
			return oki
		}
		if oki && okj {
			if c := compareValues(vi, vj); c != 0 {
				if descending {
					return c > 0
				}
				return c < 0
			}
		}
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// compareValues orders metadata values: numbers numerically, booleans
// false before true, everything else by string form. Mixed types fall
// back to string comparison.
func compareValues(a, b any) int {
	if na, aok := asNumber(a); aok {
		if nb, bok := asNumber(b); bok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	if ba, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
