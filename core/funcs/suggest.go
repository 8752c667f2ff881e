package funcs

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const maxSuggestions = 3

// Suggest returns up to three candidates closest to target, best first.
func Suggest(target string, candidates []string) []string {
	if target == "" || len(candidates) == 0 {
		return nil
	}
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		// No subsequence match; rank by edit distance instead.
		for _, c := range candidates {
			if d := fuzzy.LevenshteinDistance(target, c); d <= len(target)/2+1 {
				ranks = append(ranks, fuzzy.Rank{Source: target, Target: c, Distance: d})
			}
		}
	}
	sort.Sort(ranks)
	out := make([]string, 0, maxSuggestions)
	for _, r := range ranks {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, r.Target)
	}
	return out
}
