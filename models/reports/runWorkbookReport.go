package reports

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary    = "Summary"
	sheetMatched    = "Matched"
	sheetUnmatched4 = "Unmatched_Way4"
	sheetUnmatchedV = "Unmatched_VISA"
	sheetMismatch   = "Mismatches_Partial"
	sheetDuplicates = "Duplicates"
)

func setRow(f *excelize.File, sheet string, rowNo int, values ...interface{}) {
	col := 'A'
	for _, v := range values {
		f.SetCellValue(sheet, fmt.Sprintf("%c%d", col, rowNo), v)
		col++
	}
}

// BuildRunWorkbook renders one run into a multi-sheet workbook for the
// settlement back office. The caller streams or saves the file.
func BuildRunWorkbook(ctx context.Context, runId string) (*excelize.File, string, error) {
	run, err := models.GetRun(ctx, runId)
	if err != nil {
		return nil, "", err
	}
	summary, err := models.GetRunSummary(ctx, runId)
	if err != nil {
		return nil, "", err
	}

	db := config.GetDB()
	var rows []models.MatchResultRow
	if err := db.WithContext(ctx).Where("run_id = ?", runId).Order("seq_no").Find(&rows).Error; err != nil {
		return nil, "", err
	}
	diffsByRow, err := mismatchDiffs(ctx, rows)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	for _, sheet := range []string{sheetSummary, sheetMatched, sheetUnmatched4, sheetUnmatchedV, sheetMismatch, sheetDuplicates} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, "", err
		}
	}
	_ = f.DeleteSheet("Sheet1")

	setRow(f, sheetSummary, 1, "Run", run.ID)
	setRow(f, sheetSummary, 2, "Business date", run.BusinessDate)
	setRow(f, sheetSummary, 3, "Scope", run.ScopeFilter)
	setRow(f, sheetSummary, 4, "Ruleset", run.RulesetVersion)
	setRow(f, sheetSummary, 5, "Status", string(run.Status))
	setRow(f, sheetSummary, 7, "Matched", summary.Matched)
	setRow(f, sheetSummary, 8, "Missing in Way4", summary.MissingInWay4)
	setRow(f, sheetSummary, 9, "Missing in VISA", summary.MissingInVisa)
	setRow(f, sheetSummary, 10, "Partial", summary.Partial)
	setRow(f, sheetSummary, 11, "Duplicates", summary.Duplicates)
	setRow(f, sheetSummary, 12, "Mismatches", summary.Mismatches)
	setRow(f, sheetSummary, 13, "Absolute amount variance", summary.AmountDelta.StringFixed(2))

	setRow(f, sheetMatched, 1, "RRN", "ARN", "Currency", "Amount Way4", "Amount VISA", "Txn time", "Rule")
	setRow(f, sheetUnmatched4, 1, "RRN", "ARN", "Currency", "Amount", "Txn time")
	setRow(f, sheetUnmatchedV, 1, "RRN", "ARN", "Currency", "Amount", "Txn time")
	setRow(f, sheetMismatch, 1, "Status", "RRN", "ARN", "Currency", "Amount Way4", "Amount VISA", "Delta", "Different fields")
	setRow(f, sheetDuplicates, 1, "RRN", "ARN", "Currency", "Amount", "Txn time", "Rule")

	next := map[string]int{
		sheetMatched: 2, sheetUnmatched4: 2, sheetUnmatchedV: 2,
		sheetMismatch: 2, sheetDuplicates: 2,
	}
	for _, row := range rows {
		way4 := ""
		if row.AmountWay4 != nil {
			way4 = row.AmountWay4.StringFixed(2)
		}
		visa := ""
		if row.AmountVisa != nil {
			visa = row.AmountVisa.StringFixed(2)
		}
		ts := row.TxnTime.UTC().Format("2006-01-02 15:04:05")

		switch row.Status {
		case models.ResultMatched:
			setRow(f, sheetMatched, next[sheetMatched], row.Rrn, row.Arn, row.Currency, way4, visa, ts, row.RuleReason)
			next[sheetMatched]++
		case models.ResultMissingInVisa:
			setRow(f, sheetUnmatched4, next[sheetUnmatched4], row.Rrn, row.Arn, row.Currency, way4, ts)
			next[sheetUnmatched4]++
		case models.ResultMissingInWay4:
			setRow(f, sheetUnmatchedV, next[sheetUnmatchedV], row.Rrn, row.Arn, row.Currency, visa, ts)
			next[sheetUnmatchedV]++
		case models.ResultMismatch, models.ResultPartial:
			delta := ""
			if row.Delta != nil {
				delta = row.Delta.StringFixed(2)
			}
			setRow(f, sheetMismatch, next[sheetMismatch],
				string(row.Status), row.Rrn, row.Arn, row.Currency, way4, visa, delta, diffsByRow[row.ID])
			next[sheetMismatch]++
		case models.ResultDuplicate:
			amount := way4
			if amount == "" {
				amount = visa
			}
			setRow(f, sheetDuplicates, next[sheetDuplicates], row.Rrn, row.Arn, row.Currency, amount, ts, row.RuleReason)
			next[sheetDuplicates]++
		}
	}

	if idx, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}
	fileName := fmt.Sprintf("recon_%s_%s.xlsx", run.BusinessDate, run.ID[:8])
	return f, fileName, nil
}

// mismatchDiffs resolves the differing-field list for every one-to-one
// MISMATCH row in one batched transaction load.
func mismatchDiffs(ctx context.Context, rows []models.MatchResultRow) (map[string]string, error) {
	var ids []string
	for _, row := range rows {
		if row.Status != models.ResultMismatch {
			continue
		}
		if row.LeftTxnId != nil {
			ids = append(ids, *row.LeftTxnId)
		}
		if row.RightTxnId != nil {
			ids = append(ids, *row.RightTxnId)
		}
	}
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}

	var txns []models.CanonicalTransaction
	if err := config.GetDB().WithContext(ctx).Where("id IN ?", ids).Find(&txns).Error; err != nil {
		return nil, err
	}
	byId := make(map[string]*models.CanonicalTransaction, len(txns))
	for i := range txns {
		byId[txns[i].ID] = &txns[i]
	}

	for _, row := range rows {
		if row.Status != models.ResultMismatch || row.LeftTxnId == nil || row.RightTxnId == nil {
			continue
		}
		diffs := models.BuildFieldDiffs(byId[*row.LeftTxnId], byId[*row.RightTxnId])
		names := make([]string, 0, len(diffs))
		for _, d := range diffs {
			names = append(names, d.Field)
		}
		out[row.ID] = strings.Join(names, ", ")
	}
	return out, nil
}
