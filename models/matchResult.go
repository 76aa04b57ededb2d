package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MatchResultRow is one classification produced by a run. Rows are written
// once during run execution and never touched after the run finishes, so
// reads against a FINISHED run are a stable snapshot.
type MatchResultRow struct {
	ID         string            `gorm:"primaryKey;size:36" json:"row_id"`
	RunId      string            `gorm:"size:36;not null;index:idx_result_run_seq,priority:1" json:"run_id"`
	SeqNo      int               `gorm:"not null;index:idx_result_run_seq,priority:2" json:"seq_no"`
	Status     MatchResultStatus `gorm:"type:enum('MATCHED','MISSING_IN_WAY4','MISSING_IN_VISA','PARTIAL','DUPLICATE','MISMATCH');not null;index" json:"status"`
	RuleReason string            `gorm:"size:64;not null" json:"rule_reason"`
	MatchScore *float64          `json:"match_score"`
	LeftTxnId  *string           `gorm:"size:36;index" json:"left_txn_id"`
	RightTxnId *string           `gorm:"size:36;index" json:"right_txn_id"`
	Rrn        string            `gorm:"size:32;index" json:"rrn"`
	Arn        string            `gorm:"size:64" json:"arn"`
	TxnTime    time.Time         `gorm:"not null" json:"txn_time"`
	AmountWay4 *decimal.Decimal  `gorm:"type:decimal(20,2)" json:"amount_way4"`
	AmountVisa *decimal.Decimal  `gorm:"type:decimal(20,2)" json:"amount_visa"`
	Delta      *decimal.Decimal  `gorm:"type:decimal(20,2)" json:"delta"`
	Currency   string            `gorm:"size:3;not null" json:"currency"`
	ExplainRaw []byte            `gorm:"type:blob" json:"-"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// MatchResultMember links every record of a group row (PARTIAL,
// DUPLICATE) to its result row. One-to-one rows rely on Left/RightTxnId
// and carry no members.
type MatchResultMember struct {
	ID           int          `gorm:"primaryKey" json:"id"`
	RowId        string       `gorm:"size:36;not null;index" json:"row_id"`
	TxnId        string       `gorm:"size:36;not null;index" json:"txn_id"`
	SourceSystem SourceSystem `gorm:"type:enum('WAY4','VISA');not null" json:"source_system"`
	Position     int          `gorm:"not null" json:"position"`
}

func (r *MatchResultRow) Explain() map[string]string {
	out := map[string]string{}
	if len(r.ExplainRaw) > 0 {
		_ = json.Unmarshal(r.ExplainRaw, &out)
	}
	return out
}

// PersistResultRows converts the matcher's output into rows + group
// members inside the caller's transaction. Ordering is the matcher's
// deterministic order, captured in SeqNo.
func PersistResultRows(ctx context.Context, tx *gorm.DB, runId string, rows []matching.ResultRow) ([]MatchResultRow, error) {
	persisted := make([]MatchResultRow, 0, len(rows))
	var members []MatchResultMember

	for i, src := range rows {
		row := MatchResultRow{
			ID:         uuid.NewString(),
			RunId:      runId,
			SeqNo:      i,
			Status:     MatchResultStatus(src.Status),
			RuleReason: src.Reason,
			MatchScore: src.Score,
			Rrn:        src.RepresentativeRrn(),
			Arn:        src.RepresentativeArn(),
			TxnTime:    src.RepresentativeTime(),
			AmountWay4: src.AmountWay4,
			AmountVisa: src.AmountVisa,
			Delta:      src.Delta,
			Currency:   src.Currency,
		}
		if len(src.Explain) > 0 {
			raw, err := json.Marshal(src.Explain)
			if err != nil {
				return nil, err
			}
			row.ExplainRaw = raw
		}
		if len(src.Left) == 1 {
			row.LeftTxnId = &src.Left[0].ID
		}
		if len(src.Right) == 1 {
			row.RightTxnId = &src.Right[0].ID
		}
		if len(src.Left) > 1 || len(src.Right) > 1 {
			pos := 0
			for _, rec := range src.Left {
				members = append(members, MatchResultMember{
					RowId: row.ID, TxnId: rec.ID, SourceSystem: SourceWay4, Position: pos,
				})
				pos++
			}
			for _, rec := range src.Right {
				members = append(members, MatchResultMember{
					RowId: row.ID, TxnId: rec.ID, SourceSystem: SourceVisa, Position: pos,
				})
				pos++
			}
		}
		persisted = append(persisted, row)
	}

	if len(persisted) > 0 {
		if err := tx.WithContext(ctx).CreateInBatches(&persisted, 500).Error; err != nil {
			return nil, err
		}
	}
	if len(members) > 0 {
		if err := tx.WithContext(ctx).CreateInBatches(&members, 500).Error; err != nil {
			return nil, err
		}
	}
	return persisted, nil
}

// ResultFilter is the query surface of the results view.
type ResultFilter struct {
	Status    string
	Search    string
	Currency  string
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	SortBy    string // txn_time | delta | match_score
	SortDir   string // asc | desc
	Page      int
	PageSize  int
}

func (f *ResultFilter) normalize() error {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status != "" {
		if _, ok := ParseMatchResultStatus(f.Status); !ok {
			return utils.NewError(utils.ErrKindValidation, "unknown status filter: %s", f.Status)
		}
	}
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	f.Search = strings.TrimSpace(f.Search)
	if f.AmountMin != nil && f.AmountMax != nil && f.AmountMin.GreaterThan(*f.AmountMax) {
		return utils.NewError(utils.ErrKindValidation, "amount_min must be <= amount_max")
	}
	switch f.SortBy {
	case "", "txn_time":
		f.SortBy = "txn_time"
	case "delta", "match_score":
	default:
		return utils.NewError(utils.ErrKindValidation, "unsupported sort_by: %s", f.SortBy)
	}
	if f.SortDir != "asc" {
		f.SortDir = "desc"
	}
	return nil
}

// RunSummary aggregates a run's rows for the dashboard header and the
// export cover sheet.
type RunSummary struct {
	Matched       int64           `json:"matched"`
	MissingInWay4 int64           `json:"missing_in_way4"`
	MissingInVisa int64           `json:"missing_in_visa"`
	Partial       int64           `json:"partial"`
	Duplicates    int64           `json:"duplicates"`
	Mismatches    int64           `json:"mismatches"`
	AmountDelta   decimal.Decimal `json:"amount_delta"`
}

func GetRunSummary(ctx context.Context, runId string) (*RunSummary, error) {
	db := config.GetDB()
	type bucket struct {
		Status MatchResultStatus
		Cnt    int64
		Delta  decimal.NullDecimal
	}
	var buckets []bucket
	err := db.WithContext(ctx).Model(&MatchResultRow{}).
		Select("status, COUNT(*) AS cnt, SUM(ABS(COALESCE(delta, 0))) AS delta").
		Where("run_id = ?", runId).
		Group("status").
		Scan(&buckets).Error
	if err != nil {
		return nil, err
	}
	out := &RunSummary{AmountDelta: decimal.Zero}
	for _, b := range buckets {
		switch b.Status {
		case ResultMatched:
			out.Matched = b.Cnt
		case ResultMissingInWay4:
			out.MissingInWay4 = b.Cnt
		case ResultMissingInVisa:
			out.MissingInVisa = b.Cnt
		case ResultPartial:
			out.Partial = b.Cnt
		case ResultDuplicate:
			out.Duplicates = b.Cnt
		case ResultMismatch:
			out.Mismatches = b.Cnt
		}
		if b.Delta.Valid {
			out.AmountDelta = out.AmountDelta.Add(b.Delta.Decimal)
		}
	}
	return out, nil
}

type ResultPage struct {
	Items      []MatchResultRow `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Total      int64            `json:"total"`
	TotalPages int64            `json:"total_pages"`
}

// QueryResultRows pages through a run's rows. Rows of a FINISHED run are
// immutable, so page numbers stay valid for the life of the run.
func QueryResultRows(ctx context.Context, runId string, filter ResultFilter) (*ResultPage, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&MatchResultRow{}).Where("run_id = ?", runId)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Currency != "" {
		q = q.Where("currency = ?", filter.Currency)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("rrn LIKE ? OR arn LIKE ?", like, like)
	}
	if filter.AmountMin != nil {
		q = q.Where("COALESCE(amount_way4, amount_visa, 0) >= ?", filter.AmountMin)
	}
	if filter.AmountMax != nil {
		q = q.Where("COALESCE(amount_way4, amount_visa, 0) <= ?", filter.AmountMax)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	order := map[string]string{
		"txn_time":    "txn_time",
		"delta":       "COALESCE(delta, 0)",
		"match_score": "COALESCE(match_score, -1)",
	}[filter.SortBy]
	dir := "DESC"
	if filter.SortDir == "asc" {
		dir = "ASC"
	}

	var items []MatchResultRow
	err := q.Order(order + " " + dir + ", seq_no ASC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &ResultPage{
		Items:      items,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		Total:      total,
		TotalPages: (total + int64(filter.PageSize) - 1) / int64(filter.PageSize),
	}, nil
}

// ResultDetail carries everything the presentation layer renders for one
// row: the records on both sides and the field-level differences.
type ResultDetail struct {
	Row          MatchResultRow         `json:"row"`
	LeftRecords  []CanonicalTransaction `json:"left_records"`
	RightRecords []CanonicalTransaction `json:"right_records"`
	Differences  []FieldDiff            `json:"differences"`
	Explain      map[string]string      `json:"explain"`
}

func GetResultDetail(ctx context.Context, rowId string) (*ResultDetail, error) {
	db := config.GetDB()
	var row MatchResultRow
	if err := db.WithContext(ctx).Where("id = ?", rowId).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindNotFound, "result row not found: %s", rowId)
		}
		return nil, err
	}

	detail := &ResultDetail{Row: row, Explain: row.Explain()}

	appendTxn := func(id string, side SourceSystem) error {
		txn, err := GetTransaction(ctx, db, id)
		if err != nil {
			return err
		}
		if side == SourceWay4 {
			detail.LeftRecords = append(detail.LeftRecords, *txn)
		} else {
			detail.RightRecords = append(detail.RightRecords, *txn)
		}
		return nil
	}

	if row.LeftTxnId != nil {
		if err := appendTxn(*row.LeftTxnId, SourceWay4); err != nil {
			return nil, err
		}
	}
	if row.RightTxnId != nil {
		if err := appendTxn(*row.RightTxnId, SourceVisa); err != nil {
			return nil, err
		}
	}

	var members []MatchResultMember
	if err := db.WithContext(ctx).Where("row_id = ?", rowId).Order("position").Find(&members).Error; err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := appendTxn(m.TxnId, m.SourceSystem); err != nil {
			return nil, err
		}
	}

	var left, right *CanonicalTransaction
	if len(detail.LeftRecords) > 0 {
		left = &detail.LeftRecords[0]
	}
	if len(detail.RightRecords) > 0 {
		right = &detail.RightRecords[0]
	}
	detail.Differences = BuildFieldDiffs(left, right)
	return detail, nil
}
