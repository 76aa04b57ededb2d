package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

type ReasonCount struct {
	RuleReason string `json:"rule_reason"`
	Count      int64  `json:"count"`
}

type CurrencyCount struct {
	Currency string `json:"currency"`
	Count    int64  `json:"count"`
}

// RunDiagnostics summarizes where a run's unmatched volume comes from.
type RunDiagnostics struct {
	RunId           string             `json:"run_id"`
	Summary         *models.RunSummary `json:"summary"`
	ReasonBreakdown []ReasonCount      `json:"reason_breakdown"`
	UnmatchedByCCY  []CurrencyCount    `json:"unmatched_by_currency"`
}

func DiagnoseRun(ctx context.Context, runId string) (*RunDiagnostics, error) {
	if _, err := models.GetRun(ctx, runId); err != nil {
		return nil, err
	}
	db := config.GetDB()

	summary, err := models.GetRunSummary(ctx, runId)
	if err != nil {
		return nil, err
	}

	var reasons []ReasonCount
	err = db.WithContext(ctx).Model(&models.MatchResultRow{}).
		Select("rule_reason, COUNT(*) AS count").
		Where("run_id = ?", runId).
		Group("rule_reason").
		Order("count DESC").
		Scan(&reasons).Error
	if err != nil {
		return nil, err
	}

	var byCurrency []CurrencyCount
	err = db.WithContext(ctx).Model(&models.MatchResultRow{}).
		Select("currency, COUNT(*) AS count").
		Where("run_id = ? AND status IN ?", runId,
			[]models.MatchResultStatus{models.ResultMissingInWay4, models.ResultMissingInVisa}).
		Group("currency").
		Order("count DESC").
		Scan(&byCurrency).Error
	if err != nil {
		return nil, err
	}

	return &RunDiagnostics{
		RunId:           runId,
		Summary:         summary,
		ReasonBreakdown: reasons,
		UnmatchedByCCY:  byCurrency,
	}, nil
}

type NearMiss struct {
	Transaction models.CanonicalTransaction `json:"transaction"`
	Score       float64                     `json:"score"`
	Explain     map[string]string           `json:"explain"`
}

// ExplainUnmatchedRow re-scores an unmatched row against the other side's
// own unmatched records from the same run, without any threshold. The
// top candidates show the operator how close the nearest miss was and
// which penalty sank it.
func ExplainUnmatchedRow(ctx context.Context, rowId string) ([]NearMiss, error) {
	db := config.GetDB()

	detail, err := models.GetResultDetail(ctx, rowId)
	if err != nil {
		return nil, err
	}
	row := detail.Row
	if row.Status != models.ResultMissingInWay4 && row.Status != models.ResultMissingInVisa {
		return nil, utils.NewError(utils.ErrKindValidation, "row %s is %s, only missing rows can be explained", rowId, row.Status)
	}

	run, err := models.GetRun(ctx, row.RunId)
	if err != nil {
		return nil, err
	}
	ruleset, err := loadRunRuleset(ctx, db, run.RulesetVersion)
	if err != nil {
		return nil, err
	}

	var subject models.CanonicalTransaction
	var otherStatus models.MatchResultStatus
	if row.Status == models.ResultMissingInVisa {
		if len(detail.LeftRecords) == 0 {
			return nil, utils.NewError(utils.ErrKindInternal, "row %s has no source record", rowId)
		}
		subject = detail.LeftRecords[0]
		otherStatus = models.ResultMissingInWay4
	} else {
		if len(detail.RightRecords) == 0 {
			return nil, utils.NewError(utils.ErrKindInternal, "row %s has no source record", rowId)
		}
		subject = detail.RightRecords[0]
		otherStatus = models.ResultMissingInVisa
	}

	// The candidate set is the other side's leftovers in the same
	// currency, i.e. exactly the records the matcher also considered
	// and rejected.
	var rows []models.MatchResultRow
	err = db.WithContext(ctx).
		Where("run_id = ? AND status = ? AND currency = ?", row.RunId, otherStatus, row.Currency).
		Order("seq_no").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var candidates []matching.Record
	byId := map[string]models.CanonicalTransaction{}
	for _, r := range rows {
		txnId := r.LeftTxnId
		if otherStatus == models.ResultMissingInVisa {
			txnId = r.RightTxnId
		}
		if txnId == nil {
			continue
		}
		txn, err := models.GetTransaction(ctx, db, *txnId)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, txn.ToMatchingRecord())
		byId[txn.ID] = *txn
	}

	scored := matching.ScoreCandidates(subject.ToMatchingRecord(), candidates, ruleset.ToMatchingRuleset(), 3)
	misses := make([]NearMiss, 0, len(scored))
	for _, s := range scored {
		misses = append(misses, NearMiss{
			Transaction: byId[s.Candidate.ID],
			Score:       s.Score,
			Explain:     s.Explain,
		})
	}
	return misses, nil
}
