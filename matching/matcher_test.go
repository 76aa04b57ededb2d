package matching_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"github.com/shopspring/decimal"
)

func testRules() matching.Ruleset {
	return matching.Ruleset{
		Version:            "v-test",
		AmountTolerance:    decimal.RequireFromString("1.50"),
		DateWindowDays:     1,
		ScoreThreshold:     0.75,
		MaxGroupSize:       5,
		HighValueThreshold: decimal.NewFromInt(1000000),
	}
}

func rec(id, source, rrn, arn, amount, currency string, txnTime time.Time) matching.Record {
	return matching.Record{
		ID:           id,
		Source:       source,
		BusinessDate: "2026-08-30",
		Rrn:          rrn,
		Arn:          arn,
		Amount:       decimal.RequireFromString(amount),
		Currency:     currency,
		TxnTime:      txnTime,
		OpType:       "PURCHASE",
		Status:       "POSTED",
	}
}

var baseTime = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func TestMatchExactPair(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "700012345678", "", "100.00", "KZT", baseTime)}
	visa := []matching.Record{rec("v1", "VISA", "700012345678", "", "100.00", "KZT", baseTime.Add(2*time.Hour))}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != matching.StatusMatched {
		t.Fatalf("expected MATCHED, got %s", row.Status)
	}
	if row.Reason != matching.ReasonExact {
		t.Fatalf("expected reason %s, got %s", matching.ReasonExact, row.Reason)
	}
	if len(row.Left) != 1 || row.Left[0].ID != "w1" || len(row.Right) != 1 || row.Right[0].ID != "v1" {
		t.Fatalf("unexpected members: left=%v right=%v", row.Left, row.Right)
	}
	if row.Delta == nil || !row.Delta.IsZero() {
		t.Fatalf("expected zero delta, got %v", row.Delta)
	}
}

func TestMatchMissingOnEachSide(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "700011111111", "", "50.00", "KZT", baseTime)}
	visa := []matching.Record{rec("v1", "VISA", "820099999999", "", "7200.00", "KZT", baseTime.Add(time.Hour))}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	byStatus := map[string]matching.ResultRow{}
	for _, r := range rows {
		byStatus[r.Status] = r
	}
	mv, ok := byStatus[matching.StatusMissingInVisa]
	if !ok || len(mv.Left) != 1 || mv.Left[0].ID != "w1" {
		t.Fatalf("expected w1 as MISSING_IN_VISA, got %+v", byStatus)
	}
	if mv.AmountVisa != nil {
		t.Fatalf("one-sided row must not carry a visa amount")
	}
	mw, ok := byStatus[matching.StatusMissingInWay4]
	if !ok || len(mw.Right) != 1 || mw.Right[0].ID != "v1" {
		t.Fatalf("expected v1 as MISSING_IN_WAY4, got %+v", byStatus)
	}
}

func TestMatchArnToleranceMismatch(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "700012345678", "74999990001", "100.00", "KZT", baseTime)}
	visa := []matching.Record{rec("v1", "VISA", "820012345678", "74999990001", "100.75", "KZT", baseTime.Add(3*time.Hour))}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != matching.StatusMismatch {
		t.Fatalf("expected MISMATCH, got %s", row.Status)
	}
	if row.Reason != matching.ReasonArnTolerance {
		t.Fatalf("expected reason %s, got %s", matching.ReasonArnTolerance, row.Reason)
	}
	if row.Delta == nil || row.Delta.StringFixed(2) != "0.75" {
		t.Fatalf("expected delta 0.75, got %v", row.Delta)
	}
}

func TestMatchFuzzyPairOnSharedRrn(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "700012345678", "", "85.50", "KZT", baseTime)}
	visa := []matching.Record{rec("v1", "VISA", "700012345678", "", "86.75", "KZT", baseTime)}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Reason != matching.ReasonFuzzyScore {
		t.Fatalf("expected reason %s, got %s", matching.ReasonFuzzyScore, row.Reason)
	}
	if row.Status != matching.StatusMismatch {
		t.Fatalf("amounts differ, expected MISMATCH, got %s", row.Status)
	}
	if row.Score == nil || *row.Score < 0.75 {
		t.Fatalf("expected score at or above threshold, got %v", row.Score)
	}
}

func TestMatchOneToManySum(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "800000000001", "", "100.00", "KZT", baseTime)}
	visa := []matching.Record{
		rec("v1", "VISA", "910000000001", "", "40.00", "KZT", baseTime.Add(time.Hour)),
		rec("v2", "VISA", "920000000002", "", "60.00", "KZT", baseTime.Add(2*time.Hour)),
	}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != matching.StatusPartial {
		t.Fatalf("expected PARTIAL, got %s", row.Status)
	}
	if row.Reason != matching.ReasonOneToManySum {
		t.Fatalf("expected reason %s, got %s", matching.ReasonOneToManySum, row.Reason)
	}
	if len(row.Left) != 1 || len(row.Right) != 2 {
		t.Fatalf("expected 1 way4 vs 2 visa members, got %d vs %d", len(row.Left), len(row.Right))
	}
	if row.Delta == nil || !row.Delta.IsZero() {
		t.Fatalf("group sums to the target, expected zero delta, got %v", row.Delta)
	}
}

func TestMatchOneToManySumGroupOnWay4Side(t *testing.T) {
	way4 := []matching.Record{
		rec("w1", "WAY4", "810000000001", "", "40.00", "KZT", baseTime),
		rec("w2", "WAY4", "820000000002", "", "60.00", "KZT", baseTime.Add(time.Hour)),
	}
	visa := []matching.Record{rec("v1", "VISA", "930000000001", "", "100.00", "KZT", baseTime.Add(2*time.Hour))}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != matching.StatusPartial || row.Reason != matching.ReasonOneToManySum {
		t.Fatalf("expected PARTIAL/%s, got %s/%s", matching.ReasonOneToManySum, row.Status, row.Reason)
	}
	if len(row.Left) != 2 || len(row.Right) != 1 {
		t.Fatalf("expected 2 way4 vs 1 visa members, got %d vs %d", len(row.Left), len(row.Right))
	}
}

func TestMatchDuplicateTiedCandidates(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "700012345678", "", "100.00", "KZT", baseTime)}
	visa := []matching.Record{
		rec("v1", "VISA", "700012345678", "", "100.00", "KZT", baseTime.Add(time.Hour)),
		rec("v2", "VISA", "700012345678", "", "100.00", "KZT", baseTime.Add(time.Hour)),
	}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != matching.StatusDuplicate {
		t.Fatalf("tied candidates must surface as DUPLICATE, got %s", row.Status)
	}
	if row.Reason != matching.ReasonMultiExact {
		t.Fatalf("expected reason %s, got %s", matching.ReasonMultiExact, row.Reason)
	}
	if len(row.Right) != 2 {
		t.Fatalf("expected both candidates in the group, got %d", len(row.Right))
	}
}

func TestMatchEarliestCandidateWinsExact(t *testing.T) {
	way4 := []matching.Record{rec("w1", "WAY4", "700012345678", "", "100.00", "KZT", baseTime)}
	visa := []matching.Record{
		rec("v-late", "VISA", "700012345678", "", "100.00", "KZT", baseTime.Add(5*time.Hour)),
		rec("v-early", "VISA", "700012345678", "", "100.00", "KZT", baseTime.Add(time.Hour)),
	}

	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	var matched *matching.ResultRow
	for i := range rows {
		if rows[i].Status == matching.StatusMatched {
			matched = &rows[i]
		}
	}
	if matched == nil {
		t.Fatalf("expected a MATCHED row, got %+v", rows)
	}
	if matched.Right[0].ID != "v-early" {
		t.Fatalf("expected the earlier candidate to win, got %s", matched.Right[0].ID)
	}
}

func mixedFeeds() ([]matching.Record, []matching.Record) {
	way4 := []matching.Record{
		rec("w1", "WAY4", "700012345678", "", "100.00", "KZT", baseTime),
		rec("w2", "WAY4", "700022222222", "74999990002", "250.00", "KZT", baseTime.Add(time.Hour)),
		rec("w3", "WAY4", "800000000001", "", "100.00", "KZT", baseTime.Add(2*time.Hour)),
		rec("w4", "WAY4", "700044444444", "", "999.99", "KZT", baseTime.Add(3*time.Hour)),
		rec("w5", "WAY4", "700055555555", "", "12.00", "EUR", baseTime.Add(4*time.Hour)),
	}
	visa := []matching.Record{
		rec("v1", "VISA", "700012345678", "", "100.00", "KZT", baseTime.Add(30*time.Minute)),
		rec("v2", "VISA", "820022222222", "74999990002", "250.50", "KZT", baseTime.Add(90*time.Minute)),
		rec("v3", "VISA", "910000000001", "", "40.00", "KZT", baseTime.Add(time.Hour)),
		rec("v4", "VISA", "920000000002", "", "60.00", "KZT", baseTime.Add(2*time.Hour)),
		rec("v5", "VISA", "700055555555", "", "12.00", "EUR", baseTime.Add(5*time.Hour)),
	}
	return way4, visa
}

func TestMatchCoversEveryRecordExactlyOnce(t *testing.T) {
	way4, visa := mixedFeeds()
	rows, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	seen := map[string]int{}
	for _, row := range rows {
		for _, r := range row.Left {
			seen[r.ID]++
		}
		for _, r := range row.Right {
			seen[r.ID]++
		}
	}
	for _, r := range append(way4, visa...) {
		if seen[r.ID] != 1 {
			t.Fatalf("record %s appears %d times in the result set", r.ID, seen[r.ID])
		}
	}
	if len(seen) != len(way4)+len(visa) {
		t.Fatalf("result set covers %d records, inputs have %d", len(seen), len(way4)+len(visa))
	}
}

func rowsFingerprint(rows []matching.ResultRow) string {
	var parts []string
	for _, row := range rows {
		ids := make([]string, 0, len(row.Left)+len(row.Right))
		for _, r := range row.Left {
			ids = append(ids, r.ID)
		}
		for _, r := range row.Right {
			ids = append(ids, r.ID)
		}
		parts = append(parts, row.Currency+"/"+row.Status+"/"+row.Reason+"/"+strings.Join(ids, ","))
	}
	return strings.Join(parts, ";")
}

func TestMatchDeterministicUnderInputShuffle(t *testing.T) {
	way4, visa := mixedFeeds()

	first, err := matching.Match(context.Background(), way4, visa, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	reversedW := make([]matching.Record, 0, len(way4))
	for i := len(way4) - 1; i >= 0; i-- {
		reversedW = append(reversedW, way4[i])
	}
	reversedV := make([]matching.Record, 0, len(visa))
	for i := len(visa) - 1; i >= 0; i-- {
		reversedV = append(reversedV, visa[i])
	}
	second, err := matching.Match(context.Background(), reversedW, reversedV, testRules())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	if rowsFingerprint(first) != rowsFingerprint(second) {
		t.Fatalf("ordering changed with input order:\n%s\nvs\n%s", rowsFingerprint(first), rowsFingerprint(second))
	}
}

func TestMatchDeadlineStopsGroupSearch(t *testing.T) {
	rules := testRules()
	rules.AmountTolerance = decimal.RequireFromString("0.01")
	rules.ScoreThreshold = 0.99

	// One target with no summable group: 60 same-date candidates of 1.00
	// make the size-5 search space large enough that an unbounded
	// enumeration runs for seconds.
	way4 := []matching.Record{rec("w1", "WAY4", "800000000001", "", "1000.00", "KZT", baseTime)}
	visa := make([]matching.Record, 0, 60)
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("v%02d", i)
		rrn := fmt.Sprintf("5%011d", i)
		visa = append(visa, rec(id, "VISA", rrn, "", "1.00", "KZT", baseTime.Add(time.Duration(i)*time.Minute)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := matching.Match(ctx, way4, visa, rules)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatalf("expected a deadline error")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("Match kept searching %v past a 50ms deadline", elapsed)
	}
}

func TestMatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	way4, visa := mixedFeeds()
	if _, err := matching.Match(ctx, way4, visa, testRules()); err == nil {
		t.Fatalf("expected a context error")
	}
}
