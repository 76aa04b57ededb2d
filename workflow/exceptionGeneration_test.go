package workflow_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/shopspring/decimal"
)

func genRules() matching.Ruleset {
	return matching.Ruleset{
		Version:            "v-test",
		AmountTolerance:    decimal.RequireFromString("1.50"),
		DateWindowDays:     1,
		ScoreThreshold:     0.75,
		MaxGroupSize:       5,
		HighValueThreshold: decimal.NewFromInt(500000),
	}
}

func genRecord(id, rrn, amount string) matching.Record {
	return matching.Record{
		ID:           id,
		BusinessDate: "2026-08-30",
		Rrn:          rrn,
		Amount:       decimal.RequireFromString(amount),
		Currency:     "KZT",
		TxnTime:      time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		OpType:       "PURCHASE",
		Status:       "POSTED",
	}
}

func pairRow(status string, left, right matching.Record) matching.ResultRow {
	return matching.ResultRow{
		Status: status,
		Left:   []matching.Record{left},
		Right:  []matching.Record{right},
	}
}

func TestCategoryForRow(t *testing.T) {
	base := genRecord("a", "700012345678", "100.00")

	amountDiff := genRecord("b", "700012345678", "101.00")
	dateDiff := base
	dateDiff.ID = "c"
	dateDiff.BusinessDate = "2026-08-29"
	opDiff := base
	opDiff.ID = "d"
	opDiff.OpType = "REFUND"
	statusDiff := base
	statusDiff.ID = "e"
	statusDiff.Status = "REVERSED"

	cases := []struct {
		name     string
		row      matching.ResultRow
		expected models.ExceptionCategory
	}{
		{"missing in visa", matching.ResultRow{Status: matching.StatusMissingInVisa, Left: []matching.Record{base}}, models.CategoryMissingInVisa},
		{"missing in way4", matching.ResultRow{Status: matching.StatusMissingInWay4, Right: []matching.Record{base}}, models.CategoryMissingInWay4},
		{"duplicate", matching.ResultRow{Status: matching.StatusDuplicate, Left: []matching.Record{base}, Right: []matching.Record{base, base}}, models.CategoryDuplicate},
		{"partial group", matching.ResultRow{Status: matching.StatusPartial, Left: []matching.Record{base}, Right: []matching.Record{amountDiff, dateDiff}}, models.CategoryAmountMismatch},
		{"amount mismatch", pairRow(matching.StatusMismatch, base, amountDiff), models.CategoryAmountMismatch},
		{"date mismatch", pairRow(matching.StatusMismatch, base, dateDiff), models.CategoryDateMismatch},
		{"op type mismatch", pairRow(matching.StatusMismatch, base, opDiff), models.CategoryOpTypeMismatch},
		{"status mismatch", pairRow(matching.StatusMismatch, base, statusDiff), models.CategoryStatusMismatch},
	}
	for _, tc := range cases {
		if got := workflow.CategoryForRow(tc.row); got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestSeverityForCase(t *testing.T) {
	rules := genRules()
	small := decimal.RequireFromString("120.50")
	big := decimal.NewFromInt(600000)

	cases := []struct {
		name     string
		category models.ExceptionCategory
		stake    decimal.Decimal
		expected models.Severity
	}{
		{"duplicate is always high", models.CategoryDuplicate, small, models.SeverityHigh},
		{"high value amount mismatch", models.CategoryAmountMismatch, big, models.SeverityHigh},
		{"high value missing", models.CategoryMissingInVisa, big, models.SeverityHigh},
		{"small amount mismatch", models.CategoryAmountMismatch, small, models.SeverityMedium},
		{"small missing", models.CategoryMissingInWay4, small, models.SeverityMedium},
		{"date mismatch", models.CategoryDateMismatch, small, models.SeverityMedium},
		{"op type mismatch", models.CategoryOpTypeMismatch, small, models.SeverityMedium},
		{"status mismatch", models.CategoryStatusMismatch, small, models.SeverityLow},
	}
	for _, tc := range cases {
		if got := workflow.SeverityForCase(tc.category, tc.stake, rules); got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestBuildExceptionCasesSkipsMatchedRows(t *testing.T) {
	run := &models.MatchRun{ID: "run-1", BusinessDate: "2026-08-30"}
	left := genRecord("w1", "700012345678", "100.00")
	right := genRecord("v1", "700012345678", "100.00")
	lone := genRecord("w2", "700099999999", "42.00")

	src := []matching.ResultRow{
		pairRow(matching.StatusMatched, left, right),
		{Status: matching.StatusMissingInVisa, Left: []matching.Record{lone}, Currency: "KZT"},
	}
	delta := decimal.RequireFromString("-42.00")
	src[1].Delta = &delta

	persisted := []models.MatchResultRow{
		{ID: "row-0", RunId: "run-1", SeqNo: 0},
		{ID: "row-1", RunId: "run-1", SeqNo: 1},
	}

	cases := workflow.BuildExceptionCases(run, src, persisted, genRules())
	if len(cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(cases))
	}
	c := cases[0]
	if c.ResultRowId != "row-1" {
		t.Fatalf("case must reference the non-matched row, got %s", c.ResultRowId)
	}
	if c.Status != models.CaseStatusNew {
		t.Fatalf("new cases start in NEW, got %s", c.Status)
	}
	if c.AssignedTo != nil {
		t.Fatalf("new cases start unassigned, got %v", *c.AssignedTo)
	}
	if c.Category != models.CategoryMissingInVisa {
		t.Fatalf("expected MISSING_IN_VISA, got %s", c.Category)
	}
	if c.Severity != models.SeverityMedium {
		t.Fatalf("expected MEDIUM severity, got %s", c.Severity)
	}
	if c.AmountDelta == nil || *c.AmountDelta != "-42.00" {
		t.Fatalf("expected delta -42.00, got %v", c.AmountDelta)
	}
	if c.RunId != "run-1" || c.BusinessDate != "2026-08-30" {
		t.Fatalf("case must carry the run context, got %+v", c)
	}
}
