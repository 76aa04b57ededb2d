package matching

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// opCompatScore rewards op-type agreement: 0.2 for identical types, 0.1
// for pairs that routinely differ between processing and settlement feeds.
func opCompatScore(left, right string) float64 {
	if left == right {
		return 0.2
	}
	compatible := map[[2]string]bool{
		{"PURCHASE", "CLEARING"}: true,
		{"REFUND", "CHARGEBACK"}: true,
	}
	if compatible[[2]string{left, right}] || compatible[[2]string{right, left}] {
		return 0.1
	}
	return 0.0
}

// refSimilarity is a cheap deterministic string similarity over rrn/arn:
// 1 for equality, otherwise shared-prefix length over the longer value.
func refSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	common := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		common++
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(common) / float64(longer)
}

// dateDiffDays is the absolute distance between two transaction times in
// fractional days.
func dateDiffDays(left, right time.Time) float64 {
	return math.Abs(left.Sub(right).Seconds()) / 86400.0
}

// fuzzyScore combines normalized amount delta, date delta, rrn/arn
// similarity and op-type agreement into a 0..1 confidence. The breakdown
// is returned for the result row's explain payload.
func fuzzyScore(left, right Record, rules Ruleset) (float64, map[string]string) {
	amountDelta, _ := left.Amount.Sub(right.Amount).Abs().Float64()
	dateDelta := dateDiffDays(left.TxnTime, right.TxnTime)

	tol, _ := rules.AmountTolerance.Float64()
	if tol < 0.01 {
		tol = 0.01
	}
	window := float64(rules.DateWindowDays)
	if window < 1 {
		window = 1
	}

	amountPenalty := math.Min(amountDelta/tol, 1.0) * 0.5
	datePenalty := math.Min(dateDelta/window, 1.0) * 0.3
	refSim := refSimilarity(left.Rrn, right.Rrn)
	if arnSim := refSimilarity(left.Arn, right.Arn); arnSim > refSim {
		refSim = arnSim
	}
	refPenalty := (1.0 - refSim) * 0.2
	compatBonus := opCompatScore(left.OpType, right.OpType)

	score := 1.0 - amountPenalty - datePenalty - refPenalty + compatBonus
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	explain := map[string]string{
		"amount_delta":    decimal.NewFromFloat(amountDelta).StringFixed(2),
		"date_delta_days": fmt.Sprintf("%.4f", dateDelta),
		"amount_penalty":  fmt.Sprintf("%.4f", amountPenalty),
		"date_penalty":    fmt.Sprintf("%.4f", datePenalty),
		"ref_similarity":  fmt.Sprintf("%.4f", refSim),
		"compat_bonus":    fmt.Sprintf("%.4f", compatBonus),
	}
	return score, explain
}

// ScoredCandidate is one near-miss suggestion for an unmatched record.
type ScoredCandidate struct {
	Candidate Record
	Score     float64
	Explain   map[string]string
}

// ScoreCandidates ranks candidates against one record, best first, and
// keeps the top N. Unlike the matcher passes it applies no threshold, so
// diagnostics can show why the best available candidate still lost.
func ScoreCandidates(left Record, candidates []Record, rules Ruleset, topN int) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score, explain := fuzzyScore(left, c, rules)
		scored = append(scored, ScoredCandidate{Candidate: c, Score: score, Explain: explain})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return recordSortKey(scored[i].Candidate) < recordSortKey(scored[j].Candidate)
	})
	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}
