package config

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kinecosystem/kinmigrate/internal/chain"
)

// maxSuggestDistance is the largest edit distance still worth suggesting.
const maxSuggestDistance = 3

// Closest returns the candidate nearest to input by edit distance, or ""
// when none is within maxSuggestDistance.
func Closest(input string, candidates []string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, c := range candidates {
		dist := levenshtein.ComputeDistance(input, c)
		if dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best
}

// SuggestNetwork returns a "did you mean" hint for an unknown network name.
func SuggestNetwork(input string) string {
	names := make([]string, 0, len(chain.Networks()))
	for _, n := range chain.Networks() {
		names = append(names, string(n))
	}
	return suggestion(input, names)
}

// SuggestBackend returns a "did you mean" hint for an unknown keystore backend.
func SuggestBackend(input string) string {
	return suggestion(input, []string{BackendMemory, BackendBadger, BackendKeyring})
}

func suggestion(input string, candidates []string) string {
	if match := Closest(input, candidates); match != "" {
		return fmt.Sprintf("did you mean %q?", match)
	}
	return "valid values: " + strings.Join(candidates, ", ")
}
