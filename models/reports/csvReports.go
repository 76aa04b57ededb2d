package reports

import (
	"context"
	"encoding/csv"
	"io"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// utf8Bom lets Excel open the files with correct encoding detection.
var utf8Bom = []byte{0xEF, 0xBB, 0xBF}

func newCsvWriter(w io.Writer) (*csv.Writer, error) {
	if _, err := w.Write(utf8Bom); err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw, nil
}

// WriteUnmatchedCsv streams one side's unmatched rows of a run. Side is
// WAY4 for records the settlement feed never confirmed, VISA for
// settlements with no ledger counterpart.
func WriteUnmatchedCsv(ctx context.Context, runId string, side models.SourceSystem, w io.Writer) error {
	run, err := models.GetRun(ctx, runId)
	if err != nil {
		return err
	}
	status := models.ResultMissingInVisa
	if side == models.SourceVisa {
		status = models.ResultMissingInWay4
	}

	var rows []models.MatchResultRow
	err = config.GetDB().WithContext(ctx).
		Where("run_id = ? AND status = ?", runId, status).
		Order("seq_no").
		Find(&rows).Error
	if err != nil {
		return err
	}

	cw, err := newCsvWriter(w)
	if err != nil {
		return err
	}
	if err := cw.Write([]string{"rrn", "arn", "currency", "amount", "txn_time", "business_date"}); err != nil {
		return err
	}

	for _, row := range rows {
		amount := ""
		if side == models.SourceWay4 && row.AmountWay4 != nil {
			amount = row.AmountWay4.StringFixed(2)
		}
		if side == models.SourceVisa && row.AmountVisa != nil {
			amount = row.AmountVisa.StringFixed(2)
		}
		record := []string{
			row.Rrn, row.Arn, row.Currency, amount,
			row.TxnTime.UTC().Format("2006-01-02 15:04:05"),
			run.BusinessDate,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// categoryGuidance is the back-office playbook line attached to each
// exported case so the file stands alone outside the tool.
var categoryGuidance = map[models.ExceptionCategory]string{
	models.CategoryMissingInVisa:  "Check next settlement file; escalate to scheme support after 2 days",
	models.CategoryMissingInWay4:  "Verify ledger posting; possible late clearing or wrong business date",
	models.CategoryAmountMismatch: "Compare fee and conversion amounts; raise adjustment if confirmed",
	models.CategoryDateMismatch:   "Confirm cutover handling for transactions near midnight",
	models.CategoryOpTypeMismatch: "Review operation coding between processing and settlement",
	models.CategoryStatusMismatch: "Check reversal and chargeback flags on both sides",
	models.CategoryDuplicate:      "Pick the valid candidate and flag the rest for repair",
}

// WriteOpenExceptionsCsv streams all open cases for a business date with
// per-category handling guidance.
func WriteOpenExceptionsCsv(ctx context.Context, businessDate string, w io.Writer) error {
	var cases []models.ExceptionCase
	err := config.GetDB().WithContext(ctx).
		Where("business_date = ? AND status <> ?", businessDate, models.CaseStatusClosed).
		Order("FIELD(severity, 'HIGH', 'MEDIUM', 'LOW'), created_at, id").
		Find(&cases).Error
	if err != nil {
		return err
	}

	cw, err := newCsvWriter(w)
	if err != nil {
		return err
	}
	header := []string{"case_id", "category", "severity", "status", "rrn", "arn", "currency", "amount_delta", "assigned_to", "created_at", "guidance"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range cases {
		record := []string{
			c.ID, string(c.Category), string(c.Severity), string(c.Status),
			c.Rrn, c.Arn, c.Currency,
			utils.DereferencePtr(c.AmountDelta, ""),
			utils.DereferencePtr(c.AssignedTo, ""),
			c.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			categoryGuidance[c.Category],
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
