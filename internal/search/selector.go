package search

const (
	// EarlyExitScore stops adaptive selection once an accepted result scores
	// below it and MinResults are already collected, even if slots remain.
	EarlyExitScore = 0.55

	// MinResults is the floor: adaptive selection never returns fewer when
	// at least this many candidates exist.
	MinResults = 3
)

// Select cuts sorted (descending by FinalScore) results down to what is
// returned.
//
// Non-adaptive selection is the first topK. Adaptive selection keeps
// results scoring at least minScore until either a kept result falls below
// EarlyExitScore with MinResults collected, or topK are collected. If that
// leaves fewer than MinResults while the input has MinResults or more, the
// top MinResults of the input are returned instead; an empty selection
// falls back to the first topK.
func Select(sorted []ScoredResult, topK int, minScore float64, adaptive bool) []ScoredResult {
	if !adaptive {
		return head(sorted, topK)
	}

	var filtered []ScoredResult
	for _, r := range sorted {
		if r.FinalScore < minScore {
			continue
		}
		filtered = append(filtered, r)
		if r.FinalScore < EarlyExitScore && len(filtered) >= MinResults {
			break
		}
		if len(filtered) >= topK {
			break
		}
	}

	if len(filtered) < MinResults && len(sorted) >= MinResults {
		return head(sorted, MinResults)
	}
	if len(filtered) > 0 {
		return filtered
	}
	return head(sorted, topK)
}

func head(rs []ScoredResult, n int) []ScoredResult {
	if n < 0 {
		n = 0
	}
	n = min(n, len(rs))
	out := make([]ScoredResult, n)
	copy(out, rs[:n])
	return out
}
