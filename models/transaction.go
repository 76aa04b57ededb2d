package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CanonicalTransaction is one normalized record from either source.
// Immutable once stored; duplicate natural keys within a source are kept
// and flagged by the matcher, never overwritten.
type CanonicalTransaction struct {
	ID           string          `gorm:"primaryKey;size:36" json:"txn_id"`
	SourceSystem SourceSystem    `gorm:"type:enum('WAY4','VISA');not null;index:idx_txn_source_date,priority:1" json:"source_system"`
	BusinessDate string          `gorm:"size:10;not null;index:idx_txn_source_date,priority:2" json:"business_date"`
	BatchId      string          `gorm:"size:36;not null;index" json:"batch_id"`
	BatchRowNo   int             `gorm:"not null" json:"batch_row_no"`
	Rrn          string          `gorm:"size:32;index" json:"rrn"`
	Arn          string          `gorm:"size:64;index" json:"arn"`
	PanMasked    string          `gorm:"size:32" json:"pan_masked"`
	PanHash      string          `gorm:"size:64" json:"-"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency     string          `gorm:"size:3;not null;index" json:"currency"`
	TxnTime      time.Time       `gorm:"not null;index" json:"txn_time"`
	OpType       OpType          `gorm:"type:enum('PURCHASE','CLEARING','SETTLEMENT','REFUND','REVERSAL','CHARGEBACK','ADJUSTMENT');not null" json:"op_type"`
	StatusNorm   string          `gorm:"size:20;not null" json:"status_norm"`
	MerchantId   string          `gorm:"size:64" json:"merchant_id"`
	ChannelId    string          `gorm:"size:64" json:"channel_id"`
	FeeAmount    decimal.Decimal `gorm:"type:decimal(20,2)" json:"fee_amount"`
	FeeCurrency  string          `gorm:"size:3" json:"fee_currency"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// IngestBatch registers one canonical batch submission. The checksum makes
// resubmission idempotent per (source, business_date).
type IngestBatch struct {
	ID             string       `gorm:"primaryKey;size:36" json:"batch_id"`
	SourceSystem   SourceSystem `gorm:"type:enum('WAY4','VISA');not null;uniqueIndex:uq_batch_checksum,priority:1" json:"source_system"`
	BusinessDate   string       `gorm:"size:10;not null;uniqueIndex:uq_batch_checksum,priority:2" json:"business_date"`
	FileName       string       `gorm:"size:255;not null" json:"file_name"`
	ChecksumSha256 string       `gorm:"size:64;not null;uniqueIndex:uq_batch_checksum,priority:3" json:"checksum_sha256"`
	ParserProfile  string       `gorm:"size:64" json:"parser_profile"`
	ReceivedAt     time.Time    `gorm:"not null" json:"received_at"`
	Status         string       `gorm:"size:20;not null" json:"status"`
	RecordCount    int          `gorm:"not null" json:"record_count"`
	CreatedBy      string       `gorm:"size:64;not null" json:"created_by"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (t *CanonicalTransaction) ToMatchingRecord() matching.Record {
	return matching.Record{
		ID:           t.ID,
		Source:       string(t.SourceSystem),
		BusinessDate: t.BusinessDate,
		Rrn:          t.Rrn,
		Arn:          t.Arn,
		Amount:       t.Amount,
		Currency:     t.Currency,
		TxnTime:      t.TxnTime,
		OpType:       string(t.OpType),
		Status:       t.StatusNorm,
	}
}

// TransactionsForMatching loads one source's records for a date/scope
// ordered by the matcher's canonical sort, so run inputs are reproducible.
func TransactionsForMatching(ctx context.Context, tx *gorm.DB, source SourceSystem, businessDate, scopeFilter string) ([]CanonicalTransaction, error) {
	q := tx.WithContext(ctx).
		Where("source_system = ? AND business_date = ?", source, businessDate)
	if scopeFilter != "" && scopeFilter != ScopeAll {
		q = q.Where("currency = ?", scopeFilter)
	}
	var records []CanonicalTransaction
	if err := q.Order("txn_time, rrn, id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func GetTransaction(ctx context.Context, tx *gorm.DB, id string) (*CanonicalTransaction, error) {
	var record CanonicalTransaction
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// SourceBalance summarizes per-date ingest volume for the readiness check.
type SourceBalance struct {
	BusinessDate     string   `json:"business_date"`
	Way4Records      int64    `json:"way4_records"`
	VisaRecords      int64    `json:"visa_records"`
	Way4Batches      int64    `json:"way4_batches"`
	VisaBatches      int64    `json:"visa_batches"`
	RatioWay4ToVisa  *float64 `json:"ratio_way4_to_visa"`
	ReadyForMatching bool     `json:"ready_for_matching"`
	Warnings         []string `json:"warnings"`
}

func GetSourceBalance(ctx context.Context, businessDate string) (*SourceBalance, error) {
	db := config.GetDB()
	out := &SourceBalance{BusinessDate: businessDate, Warnings: []string{}}

	counts := []struct {
		source SourceSystem
		dest   *int64
	}{
		{SourceWay4, &out.Way4Records},
		{SourceVisa, &out.VisaRecords},
	}
	for _, c := range counts {
		if err := db.WithContext(ctx).Model(&CanonicalTransaction{}).
			Where("source_system = ? AND business_date = ?", c.source, businessDate).
			Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	batches := []struct {
		source SourceSystem
		dest   *int64
	}{
		{SourceWay4, &out.Way4Batches},
		{SourceVisa, &out.VisaBatches},
	}
	for _, b := range batches {
		if err := db.WithContext(ctx).Model(&IngestBatch{}).
			Where("source_system = ? AND business_date = ?", b.source, businessDate).
			Count(b.dest).Error; err != nil {
			return nil, err
		}
	}

	out.ReadyForMatching = out.Way4Records > 0 && out.VisaRecords > 0
	if out.Way4Records == 0 {
		out.Warnings = append(out.Warnings, "no Way4 records for the selected date")
	}
	if out.VisaRecords == 0 {
		out.Warnings = append(out.Warnings, "no VISA records for the selected date")
	}
	if out.ReadyForMatching {
		ratio := float64(out.Way4Records) / float64(out.VisaRecords)
		out.RatioWay4ToVisa = &ratio
		if ratio < 0.3 || ratio > 3.0 {
			out.Warnings = append(out.Warnings, "strong volume skew between Way4 and VISA")
		}
	}
	return out, nil
}
