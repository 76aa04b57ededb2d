// Package matching implements the deterministic four-pass reconciliation
// matcher. It is pure: records in, result rows out, no storage access.
package matching

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ruleset carries the versioned tolerances the matcher runs under. Values
// come from the active MatchRuleset row; nothing here is hardcoded into
// the passes.
type Ruleset struct {
	Version            string
	AmountTolerance    decimal.Decimal
	DateWindowDays     int
	ScoreThreshold     float64
	MaxGroupSize       int
	HighValueThreshold decimal.Decimal
}

// Record is the matcher's view of a canonical transaction. Both sources
// are normalized into this shape before matching.
type Record struct {
	ID           string
	Source       string // WAY4 or VISA
	BusinessDate string // YYYY-MM-DD
	Rrn          string
	Arn          string
	Amount       decimal.Decimal
	Currency     string
	TxnTime      time.Time
	OpType       string
	Status       string
}

// Result row statuses. Kept as plain strings so the package stays free of
// model imports; models.ParseMatchResultStatus accepts every value below.
const (
	StatusMatched       = "MATCHED"
	StatusMissingInWay4 = "MISSING_IN_WAY4"
	StatusMissingInVisa = "MISSING_IN_VISA"
	StatusPartial       = "PARTIAL"
	StatusDuplicate     = "DUPLICATE"
	StatusMismatch      = "MISMATCH"
)

// Rule reasons persisted on result rows.
const (
	ReasonExact          = "EXACT_RRN_AMOUNT_CURR_DATE"
	ReasonArnTolerance   = "ARN_MATCH_WITH_TOLERANCE"
	ReasonFuzzyScore     = "FUZZY_SCORE"
	ReasonOneToManySum   = "ONE_TO_MANY_SUM_MATCH"
	ReasonMultiExact     = "MULTI_CANDIDATE_EXACT"
	ReasonMultiArn       = "MULTI_CANDIDATE_ARN"
	ReasonMissingInWay4  = "MISSING_IN_WAY4"
	ReasonMissingInVisa  = "MISSING_IN_VISA"
)

// ResultRow covers one or more records: exactly one record per side for
// MATCHED/MISMATCH, one side with a group for PARTIAL and DUPLICATE, a
// single record for MISSING rows.
type ResultRow struct {
	Status     string
	Reason     string
	Score      *float64
	Left       []Record // WAY4 side
	Right      []Record // VISA side
	Currency   string
	AmountWay4 *decimal.Decimal
	AmountVisa *decimal.Decimal
	Delta      *decimal.Decimal // visa - way4, when both sides present
	Explain    map[string]string
}

// RepresentativeTime is the earliest transaction time across the row's
// records; it anchors result ordering and the txn_time sort column.
func (r *ResultRow) RepresentativeTime() time.Time {
	var t time.Time
	first := true
	for _, rec := range append(append([]Record{}, r.Left...), r.Right...) {
		if first || rec.TxnTime.Before(t) {
			t = rec.TxnTime
			first = false
		}
	}
	return t
}

// RepresentativeRrn prefers the WAY4 side's reference.
func (r *ResultRow) RepresentativeRrn() string {
	if len(r.Left) > 0 {
		return r.Left[0].Rrn
	}
	if len(r.Right) > 0 {
		return r.Right[0].Rrn
	}
	return ""
}

func (r *ResultRow) RepresentativeArn() string {
	for _, rec := range r.Left {
		if rec.Arn != "" {
			return rec.Arn
		}
	}
	for _, rec := range r.Right {
		if rec.Arn != "" {
			return rec.Arn
		}
	}
	return ""
}

func sumAmounts(recs []Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Amount)
	}
	return total
}

// finalize fills the derived amount columns from the row's members.
func (r *ResultRow) finalize() {
	if len(r.Left) > 0 {
		w := sumAmounts(r.Left)
		r.AmountWay4 = &w
	}
	if len(r.Right) > 0 {
		v := sumAmounts(r.Right)
		r.AmountVisa = &v
	}
	if r.AmountWay4 != nil && r.AmountVisa != nil {
		d := r.AmountVisa.Sub(*r.AmountWay4)
		r.Delta = &d
	}
	if r.Currency == "" {
		if len(r.Left) > 0 {
			r.Currency = r.Left[0].Currency
		} else if len(r.Right) > 0 {
			r.Currency = r.Right[0].Currency
		}
	}
}
