package matching

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Match runs the four passes over both record sets and returns a result
// row set covering every input record exactly once. Partitions (one per
// currency) are matched concurrently; cross-currency pairs are impossible
// in every pass, so partitions are independent. Output ordering and
// classification depend only on the inputs and the ruleset.
func Match(ctx context.Context, way4, visa []Record, rules Ruleset) ([]ResultRow, error) {
	partitions := map[string]*partition{}
	for _, r := range way4 {
		part(partitions, r.Currency).way4 = append(part(partitions, r.Currency).way4, r)
	}
	for _, r := range visa {
		part(partitions, r.Currency).visa = append(part(partitions, r.Currency).visa, r)
	}

	currencies := make([]string, 0, len(partitions))
	for c := range partitions {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	rowsByCurrency := make([][]ResultRow, len(currencies))
	var wg sync.WaitGroup
	for i, c := range currencies {
		wg.Add(1)
		go func(i int, p *partition) {
			defer wg.Done()
			rowsByCurrency[i] = p.match(ctx, rules)
		}(i, partitions[c])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []ResultRow
	for _, prt := range rowsByCurrency {
		rows = append(rows, prt...)
	}
	for i := range rows {
		rows[i].finalize()
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rowSortKey(&rows[i]) < rowSortKey(&rows[j])
	})
	return rows, nil
}

// rowSortKey makes the final ordering explicit: currency, representative
// txn time, rrn, then first record id. Never input arrival order.
func rowSortKey(r *ResultRow) string {
	firstID := ""
	if len(r.Left) > 0 {
		firstID = r.Left[0].ID
	} else if len(r.Right) > 0 {
		firstID = r.Right[0].ID
	}
	return strings.Join([]string{
		r.Currency,
		r.RepresentativeTime().UTC().Format("2006-01-02T15:04:05.000000000Z"),
		r.RepresentativeRrn(),
		firstID,
	}, "|")
}

type partition struct {
	way4 []Record
	visa []Record
}

func part(m map[string]*partition, currency string) *partition {
	p, ok := m[currency]
	if !ok {
		p = &partition{}
		m[currency] = p
	}
	return p
}

// pool keeps a fixed deterministic ordering of one side's records plus the
// set still unconsumed by earlier passes.
type pool struct {
	order []Record
	alive map[string]bool
}

func newPool(records []Record) *pool {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return recordSortKey(sorted[i]) < recordSortKey(sorted[j])
	})
	alive := make(map[string]bool, len(sorted))
	for _, r := range sorted {
		alive[r.ID] = true
	}
	return &pool{order: sorted, alive: alive}
}

func recordSortKey(r Record) string {
	return r.TxnTime.UTC().Format("2006-01-02T15:04:05.000000000Z") + "|" + r.Rrn + "|" + r.ID
}

func (p *pool) remaining() []Record {
	out := make([]Record, 0, len(p.order))
	for _, r := range p.order {
		if p.alive[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (p *pool) consume(ids ...string) {
	for _, id := range ids {
		delete(p.alive, id)
	}
}

func (p *partition) match(ctx context.Context, rules Ruleset) []ResultRow {
	w := newPool(p.way4)
	v := newPool(p.visa)
	var rows []ResultRow

	passes := []func(context.Context, *pool, *pool, Ruleset) []ResultRow{
		passExact,
		passArnTolerance,
		passFuzzy,
		passOneToMany,
	}
	for _, pass := range passes {
		if ctx.Err() != nil {
			return nil
		}
		rows = append(rows, pass(ctx, w, v, rules)...)
	}

	for _, rec := range w.remaining() {
		rows = append(rows, ResultRow{
			Status: StatusMissingInVisa,
			Reason: ReasonMissingInVisa,
			Left:   []Record{rec},
		})
	}
	for _, rec := range v.remaining() {
		rows = append(rows, ResultRow{
			Status: StatusMissingInWay4,
			Reason: ReasonMissingInWay4,
			Right:  []Record{rec},
		})
	}
	return rows
}

func exactKey(r Record) string {
	return strings.Join([]string{r.Rrn, r.Amount.StringFixed(2), r.Currency, r.BusinessDate}, "|")
}

// passExact pairs records identical on (rrn, amount, currency, date).
// Within a candidate group the earliest txn_time wins; candidates tied on
// txn_time are surfaced as one DUPLICATE group row, never auto-resolved.
func passExact(_ context.Context, w, v *pool, _ Ruleset) []ResultRow {
	var rows []ResultRow
	index := map[string][]Record{}
	for _, rec := range v.remaining() {
		index[exactKey(rec)] = append(index[exactKey(rec)], rec)
	}

	for _, left := range w.remaining() {
		if !w.alive[left.ID] {
			continue
		}
		var candidates []Record
		for _, c := range index[exactKey(left)] {
			if v.alive[c.ID] {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		earliest := candidates[:1]
		for _, c := range candidates[1:] {
			switch {
			case c.TxnTime.Before(earliest[0].TxnTime):
				earliest = []Record{c}
			case c.TxnTime.Equal(earliest[0].TxnTime):
				earliest = append(earliest, c)
			}
		}

		if len(earliest) == 1 {
			rows = append(rows, ResultRow{
				Status:  StatusMatched,
				Reason:  ReasonExact,
				Left:    []Record{left},
				Right:   earliest,
				Explain: map[string]string{"stage": "exact"},
			})
			w.consume(left.ID)
			v.consume(earliest[0].ID)
			continue
		}

		dup := ResultRow{
			Status:  StatusDuplicate,
			Reason:  ReasonMultiExact,
			Left:    []Record{left},
			Right:   earliest,
			Explain: map[string]string{"stage": "exact", "candidates": strconv.Itoa(len(earliest))},
		}
		rows = append(rows, dup)
		w.consume(left.ID)
		for _, c := range earliest {
			v.consume(c.ID)
		}
	}
	return rows
}

// passArnTolerance pairs remaining records on ARN with amount inside the
// tolerance and date inside the window. Equally-close candidates become a
// DUPLICATE group.
func passArnTolerance(_ context.Context, w, v *pool, rules Ruleset) []ResultRow {
	var rows []ResultRow
	index := map[string][]Record{}
	for _, rec := range v.remaining() {
		if rec.Arn != "" {
			index[rec.Arn] = append(index[rec.Arn], rec)
		}
	}

	for _, left := range w.remaining() {
		if !w.alive[left.ID] || left.Arn == "" {
			continue
		}
		var candidates []Record
		for _, c := range index[left.Arn] {
			if !v.alive[c.ID] {
				continue
			}
			if left.Amount.Sub(c.Amount).Abs().GreaterThan(rules.AmountTolerance) {
				continue
			}
			if dateDiffDays(left.TxnTime, c.TxnTime) > float64(rules.DateWindowDays) {
				continue
			}
			candidates = append(candidates, c)
		}
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return arnCandidateKey(left, candidates[i]) < arnCandidateKey(left, candidates[j])
		})
		best := candidates[0]
		tied := len(candidates) > 1 &&
			arnCandidateRank(left, candidates[1]) == arnCandidateRank(left, best)

		if tied {
			group := []Record{best}
			for _, c := range candidates[1:] {
				if arnCandidateRank(left, c) == arnCandidateRank(left, best) {
					group = append(group, c)
				}
			}
			rows = append(rows, ResultRow{
				Status:  StatusDuplicate,
				Reason:  ReasonMultiArn,
				Left:    []Record{left},
				Right:   group,
				Explain: map[string]string{"stage": "arn", "candidates": strconv.Itoa(len(group))},
			})
			w.consume(left.ID)
			for _, c := range group {
				v.consume(c.ID)
			}
			continue
		}

		rows = append(rows, ResultRow{
			Status:  pairStatus(left, best),
			Reason:  ReasonArnTolerance,
			Left:    []Record{left},
			Right:   []Record{best},
			Explain: map[string]string{"stage": "arn"},
		})
		w.consume(left.ID)
		v.consume(best.ID)
	}
	return rows
}

// arnCandidateRank orders ARN candidates by closeness: smallest amount
// delta, then smallest date delta, then earliest txn time. Candidates with
// equal rank are equally valid.
func arnCandidateRank(left, c Record) string {
	amountDelta := left.Amount.Sub(c.Amount).Abs()
	return amountDelta.StringFixed(4) + "|" +
		fmtDays(dateDiffDays(left.TxnTime, c.TxnTime)) + "|" +
		c.TxnTime.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func arnCandidateKey(left, c Record) string {
	return arnCandidateRank(left, c) + "|" + c.ID
}

// pairStatus decides whether a tolerance/fuzzy pair is clean or a field
// mismatch needing an exception.
func pairStatus(left, right Record) string {
	if !left.Amount.Equal(right.Amount) ||
		left.BusinessDate != right.BusinessDate ||
		left.OpType != right.OpType ||
		left.Status != right.Status {
		return StatusMismatch
	}
	return StatusMatched
}

type scoredPair struct {
	left, right Record
	score       float64
	explain     map[string]string
}

// fuzzyUniqueMargin is the score lead the best candidate must hold over
// the runner-up before a fuzzy pair is accepted. Near-ties stay unmatched
// rather than guessing.
const fuzzyUniqueMargin = 0.05

// passFuzzy scores remaining cross-source pairs, keeps only each left
// record's unique best candidate, and consumes the accepted pairs greedily
// from the highest score down.
func passFuzzy(_ context.Context, w, v *pool, rules Ruleset) []ResultRow {
	leftRecs := w.remaining()
	rightRecs := v.remaining()
	byLeft := map[string][]scoredPair{}
	for _, l := range leftRecs {
		for _, r := range rightRecs {
			if dateDiffDays(l.TxnTime, r.TxnTime) > float64(rules.DateWindowDays) {
				continue
			}
			// Quick reference gate keeps the pair set near-linear
			// on real feeds.
			if l.Rrn != r.Rrn && (l.Arn == "" || l.Arn != r.Arn) &&
				refSimilarity(l.Rrn, r.Rrn) < 0.5 {
				continue
			}
			score, explain := fuzzyScore(l, r, rules)
			byLeft[l.ID] = append(byLeft[l.ID], scoredPair{left: l, right: r, score: score, explain: explain})
		}
	}

	var pairs []scoredPair
	for _, candidates := range byLeft {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return recordSortKey(candidates[i].right) < recordSortKey(candidates[j].right)
		})
		best := candidates[0]
		if best.score < rules.ScoreThreshold {
			continue
		}
		if len(candidates) > 1 && best.score-candidates[1].score <= fuzzyUniqueMargin {
			continue
		}
		pairs = append(pairs, best)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		ki := recordSortKey(pairs[i].left) + "|" + recordSortKey(pairs[i].right)
		kj := recordSortKey(pairs[j].left) + "|" + recordSortKey(pairs[j].right)
		return ki < kj
	})

	var rows []ResultRow
	for _, p := range pairs {
		if !w.alive[p.left.ID] || !v.alive[p.right.ID] {
			continue
		}
		score := p.score
		explain := p.explain
		explain["stage"] = "fuzzy"
		rows = append(rows, ResultRow{
			Status:  pairStatus(p.left, p.right),
			Reason:  ReasonFuzzyScore,
			Score:   &score,
			Left:    []Record{p.left},
			Right:   []Record{p.right},
			Explain: explain,
		})
		w.consume(p.left.ID)
		v.consume(p.right.ID)
	}
	return rows
}

// passOneToMany finds a group on one side whose amounts sum to a single
// record on the other, same date and currency. Searched in both
// directions, way4 targets first; group size bounded by the ruleset.
func passOneToMany(ctx context.Context, w, v *pool, rules Ruleset) []ResultRow {
	var rows []ResultRow
	rows = append(rows, oneToManyDirection(ctx, w, v, rules, true)...)
	rows = append(rows, oneToManyDirection(ctx, v, w, rules, false)...)
	return rows
}

func oneToManyDirection(ctx context.Context, targets, others *pool, rules Ruleset, targetIsWay4 bool) []ResultRow {
	maxSize := rules.MaxGroupSize
	if maxSize < 2 {
		maxSize = 2
	}
	var rows []ResultRow
	for _, target := range targets.remaining() {
		if ctx.Err() != nil {
			return rows
		}
		if !targets.alive[target.ID] {
			continue
		}
		var candidates []Record
		for _, c := range others.remaining() {
			if c.BusinessDate == target.BusinessDate {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) < 2 {
			continue
		}

		combo := findSumCombo(ctx, candidates, target.Amount, rules.AmountTolerance, maxSize)
		if combo == nil {
			continue
		}

		row := ResultRow{
			Status: StatusPartial,
			Reason: ReasonOneToManySum,
			Explain: map[string]string{
				"stage":      "one_to_many",
				"combo_size": strconv.Itoa(len(combo)),
			},
		}
		if targetIsWay4 {
			row.Left = []Record{target}
			row.Right = combo
		} else {
			row.Left = combo
			row.Right = []Record{target}
		}
		rows = append(rows, row)
		targets.consume(target.ID)
		ids := make([]string, len(combo))
		for i, c := range combo {
			ids[i] = c.ID
		}
		others.consume(ids...)
	}
	return rows
}

// findSumCombo returns the first combination (sizes 2..maxSize, candidates
// in pool order, lexicographic index order) whose total lands within the
// tolerance of the target amount. First hit wins; no backtracking. The
// enumeration is combinatorial, so cancellation is checked every 1024
// combinations to keep run deadlines effective.
func findSumCombo(ctx context.Context, candidates []Record, target decimal.Decimal, tolerance decimal.Decimal, maxSize int) []Record {
	if maxSize > len(candidates) {
		maxSize = len(candidates)
	}
	var steps uint
	for size := 2; size <= maxSize; size++ {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}
		for {
			if steps&1023 == 0 && ctx.Err() != nil {
				return nil
			}
			steps++
			total := decimal.Zero
			for _, i := range idx {
				total = total.Add(candidates[i].Amount)
			}
			if total.Sub(target).Abs().LessThanOrEqual(tolerance) {
				combo := make([]Record, size)
				for j, i := range idx {
					combo[j] = candidates[i]
				}
				return combo
			}
			if !nextCombination(idx, len(candidates)) {
				break
			}
		}
	}
	return nil
}

// nextCombination advances idx to the next k-combination of [0,n) in
// lexicographic order.
func nextCombination(idx []int, n int) bool {
	k := len(idx)
	for i := k - 1; i >= 0; i-- {
		if idx[i] < n-k+i {
			idx[i]++
			for j := i + 1; j < k; j++ {
				idx[j] = idx[j-1] + 1
			}
			return true
		}
	}
	return false
}

func fmtDays(d float64) string {
	return decimal.NewFromFloat(d).StringFixed(6)
}
