package index

// Retrieval quality metrics used to compare an approximate index against
// exact search.

// PrecisionAtK is the share of retrieved ids that are relevant.
func PrecisionAtK(retrieved, relevant []string) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	return float64(hits(retrieved, relevant)) / float64(len(retrieved))
}

// RecallAtK is the share of relevant ids that were retrieved.
func RecallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	return float64(hits(retrieved, relevant)) / float64(len(relevant))
}

// ReciprocalRank is 1/rank of the first occurrence of relevant.
func ReciprocalRank(retrieved []string, relevant string) float64 {
	for i, r := range retrieved {
		if r == relevant {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

func hits(retrieved, relevant []string) int {
	relevantSet := make(map[string]struct{}, len(relevant))
	for _, r := range relevant {
		relevantSet[r] = struct{}{}
	}
	n := 0
	for _, r := range retrieved {
		if _, ok := relevantSet[r]; ok {
			n++
		}
	}
	return n
}
