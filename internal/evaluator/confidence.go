package evaluator

import (
	"sort"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// hit is one matched indicator with its weight.
type hit struct {
	group  string
	weight float64
	ref    assessment.Ref
}

// combine folds hits with noisy-OR. Hits sharing a group (the same
// endpoint and payload, or the same evidence source) count once, with the
// heaviest hit standing for the group.
func combine(hits []hit) (float64, []assessment.Ref) {
	best := map[string]hit{}
	for _, h := range hits {
		if cur, ok := best[h.group]; !ok || h.weight > cur.weight {
			best[h.group] = h
		}
	}
	groups := make([]string, 0, len(best))
	for g := range best {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	miss := 1.0
	refs := make([]assessment.Ref, 0, len(groups))
	for _, g := range groups {
		miss *= 1 - best[g].weight
		refs = append(refs, best[g].ref)
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		if refs[i].Seq != refs[j].Seq {
			return refs[i].Seq < refs[j].Seq
		}
		return refs[i].Source < refs[j].Source
	})
	return round(1 - miss), refs
}

func round(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
