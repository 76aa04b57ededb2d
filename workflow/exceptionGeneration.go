package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryForRow maps a non-MATCHED result to its exception category. For
// MISMATCH pairs the first differing field wins, checked in order of
// financial impact: amount, date, op type, status.
func CategoryForRow(src matching.ResultRow) models.ExceptionCategory {
	switch src.Status {
	case matching.StatusMissingInWay4:
		return models.CategoryMissingInWay4
	case matching.StatusMissingInVisa:
		return models.CategoryMissingInVisa
	case matching.StatusDuplicate:
		return models.CategoryDuplicate
	case matching.StatusPartial:
		return models.CategoryAmountMismatch
	}

	if len(src.Left) == 1 && len(src.Right) == 1 {
		l, r := src.Left[0], src.Right[0]
		switch {
		case !l.Amount.Equal(r.Amount):
			return models.CategoryAmountMismatch
		case l.BusinessDate != r.BusinessDate:
			return models.CategoryDateMismatch
		case l.OpType != r.OpType:
			return models.CategoryOpTypeMismatch
		default:
			return models.CategoryStatusMismatch
		}
	}
	return models.CategoryAmountMismatch
}

// stakeAmount is the money a case puts at risk: the larger absolute
// amount across the two sides.
func stakeAmount(src matching.ResultRow) decimal.Decimal {
	stake := decimal.Zero
	if src.AmountWay4 != nil && src.AmountWay4.Abs().GreaterThan(stake) {
		stake = src.AmountWay4.Abs()
	}
	if src.AmountVisa != nil && src.AmountVisa.Abs().GreaterThan(stake) {
		stake = src.AmountVisa.Abs()
	}
	return stake
}

// SeverityForCase grades a case. Duplicates are always HIGH, as is any
// case at or above the high-value threshold; money-moving and
// date/op-type categories below it are MEDIUM, bookkeeping ones LOW.
func SeverityForCase(category models.ExceptionCategory, stake decimal.Decimal, rules matching.Ruleset) models.Severity {
	if category == models.CategoryDuplicate || stake.GreaterThanOrEqual(rules.HighValueThreshold) {
		return models.SeverityHigh
	}
	switch category {
	case models.CategoryMissingInWay4, models.CategoryMissingInVisa,
		models.CategoryAmountMismatch, models.CategoryDateMismatch, models.CategoryOpTypeMismatch:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

func caseTitle(category models.ExceptionCategory, src matching.ResultRow) string {
	ref := src.RepresentativeRrn()
	if ref == "" {
		ref = src.RepresentativeArn()
	}
	if ref == "" {
		ref = "no reference"
	}
	return fmt.Sprintf("%s: %s %s", category.Label(), src.Currency, ref)
}

// BuildExceptionCases derives one NEW case per non-MATCHED row. The two
// slices are the matcher output and its persisted form in the same order;
// severity grading uses the ruleset the run executed with.
func BuildExceptionCases(run *models.MatchRun, src []matching.ResultRow, persisted []models.MatchResultRow, rules matching.Ruleset) []models.ExceptionCase {
	var cases []models.ExceptionCase
	for i, row := range src {
		if row.Status == matching.StatusMatched {
			continue
		}
		category := CategoryForRow(row)
		severity := SeverityForCase(category, stakeAmount(row), rules)
		var delta *string
		if row.Delta != nil {
			s := row.Delta.StringFixed(2)
			delta = &s
		}
		cases = append(cases, models.ExceptionCase{
			ID:           uuid.NewString(),
			RunId:        run.ID,
			ResultRowId:  persisted[i].ID,
			BusinessDate: run.BusinessDate,
			Category:     category,
			Severity:     severity,
			Status:       models.CaseStatusNew,
			Rrn:          row.RepresentativeRrn(),
			Arn:          row.RepresentativeArn(),
			Currency:     row.Currency,
			AmountDelta:  delta,
			Title:        caseTitle(category, row),
		})
	}
	return cases
}
