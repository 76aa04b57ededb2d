package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

type IngestRecordInput struct {
	Rrn         string `json:"rrn" validate:"max=32"`
	Arn         string `json:"arn" validate:"max=64"`
	Pan         string `json:"pan" validate:"max=25"`
	Amount      string `json:"amount" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3,alpha"`
	TxnTime     string `json:"txn_time" validate:"required"`
	OpType      string `json:"op_type"`
	Status      string `json:"status" validate:"max=20"`
	MerchantId  string `json:"merchant_id" validate:"max=64"`
	ChannelId   string `json:"channel_id" validate:"max=64"`
	FeeAmount   string `json:"fee_amount"`
	FeeCurrency string `json:"fee_currency" validate:"omitempty,len=3,alpha"`
}

type IngestBatchInput struct {
	Source        string              `json:"source" validate:"required,oneof=WAY4 VISA"`
	BusinessDate  string              `json:"business_date" validate:"required,datetime=2006-01-02"`
	FileName      string              `json:"file_name" validate:"required,max=255"`
	ParserProfile string              `json:"parser_profile" validate:"max=64"`
	Records       []IngestRecordInput `json:"records" validate:"required,min=1,max=100000,dive"`
}

type RecordError struct {
	RowNo  int    `json:"row_no"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

type IngestResult struct {
	Batch     *models.IngestBatch `json:"batch"`
	Duplicate bool                `json:"duplicate"`
	Accepted  int                 `json:"accepted"`
}

// batchChecksum fingerprints the payload content, not its envelope: the
// same records resubmitted under a different file name still dedupe.
func batchChecksum(input IngestBatchInput) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s\n", input.Source, input.BusinessDate)
	for _, r := range input.Records {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
			r.Rrn, r.Arn, r.Pan, r.Amount, r.Currency, r.TxnTime,
			r.OpType, r.Status, r.MerchantId, r.ChannelId, r.FeeAmount)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// parseRecord converts one input row into a canonical transaction. The
// raw PAN never reaches the return value: it is masked and hashed here
// and discarded.
func parseRecord(input IngestRecordInput, rowNo int, batch *models.IngestBatch) (*models.CanonicalTransaction, *RecordError) {
	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil {
		return nil, &RecordError{RowNo: rowNo, Field: "amount", Detail: "not a decimal: " + input.Amount}
	}
	txnTime, err := time.Parse(time.RFC3339, input.TxnTime)
	if err != nil {
		return nil, &RecordError{RowNo: rowNo, Field: "txn_time", Detail: "not RFC3339: " + input.TxnTime}
	}
	if input.Rrn == "" && input.Arn == "" {
		return nil, &RecordError{RowNo: rowNo, Field: "rrn", Detail: "rrn and arn both empty"}
	}

	feeAmount := decimal.Zero
	if input.FeeAmount != "" {
		feeAmount, err = decimal.NewFromString(strings.TrimSpace(input.FeeAmount))
		if err != nil {
			return nil, &RecordError{RowNo: rowNo, Field: "fee_amount", Detail: "not a decimal: " + input.FeeAmount}
		}
	}

	status := strings.ToUpper(strings.TrimSpace(input.Status))
	if status == "" {
		status = "POSTED"
	}

	var panMasked, panHash string
	if input.Pan != "" {
		panMasked = utils.SanitizePanMasked(input.Pan)
		panHash = utils.HashPan(panMasked)
	}

	return &models.CanonicalTransaction{
		ID:           uuid.NewString(),
		SourceSystem: batch.SourceSystem,
		BusinessDate: batch.BusinessDate,
		BatchId:      batch.ID,
		BatchRowNo:   rowNo,
		Rrn:          strings.TrimSpace(input.Rrn),
		Arn:          strings.TrimSpace(input.Arn),
		PanMasked:    panMasked,
		PanHash:      panHash,
		Amount:       amount,
		Currency:     strings.ToUpper(input.Currency),
		TxnTime:      txnTime.UTC(),
		OpType:       models.NormalizeOpType(strings.ToUpper(strings.TrimSpace(input.OpType))),
		StatusNorm:   status,
		MerchantId:   strings.TrimSpace(input.MerchantId),
		ChannelId:    strings.TrimSpace(input.ChannelId),
		FeeAmount:    feeAmount,
		FeeCurrency:  strings.ToUpper(input.FeeCurrency),
	}, nil
}

// IngestFeedBatch accepts one source file worth of records. Invalid rows
// are reported back (row, field, detail) while the valid remainder is
// imported; the submission fails only when no record survives validation.
// Resubmitting identical content returns the original batch instead of
// double-loading it.
func IngestFeedBatch(ctx context.Context, input IngestBatchInput) (*IngestResult, []RecordError, error) {
	if err := RequirePermission(ctx, rbac.PermIngestWrite, "INGEST_REGISTER", "ingest_batch", input.FileName); err != nil {
		return nil, nil, err
	}
	if err := validate.Struct(input); err != nil {
		return nil, nil, utils.WrapError(utils.ErrKindValidation, err, "invalid ingest request")
	}

	db := config.GetDB()
	logger := config.GetLogger()
	actor, _ := utils.GetActorLoginFromContext(ctx)

	batch := models.IngestBatch{
		ID:             uuid.NewString(),
		SourceSystem:   models.SourceSystem(input.Source),
		BusinessDate:   input.BusinessDate,
		FileName:       input.FileName,
		ChecksumSha256: batchChecksum(input),
		ParserProfile:  input.ParserProfile,
		ReceivedAt:     time.Now().UTC(),
		Status:         "ACCEPTED",
		RecordCount:    len(input.Records),
		CreatedBy:      actor,
	}

	txns := make([]models.CanonicalTransaction, 0, len(input.Records))
	var rowErrors []RecordError
	invalid := 0
	for i, rec := range input.Records {
		txn, recErr := parseRecord(rec, i+1, &batch)
		if recErr != nil {
			invalid++
			if len(rowErrors) < 50 {
				rowErrors = append(rowErrors, *recErr)
			}
			continue
		}
		txns = append(txns, *txn)
	}
	if len(txns) == 0 {
		return nil, rowErrors, utils.NewError(utils.ErrKindValidation, "all %d records in the batch are invalid", invalid)
	}
	batch.RecordCount = len(txns)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(&txns, 500).Error; err != nil {
			return err
		}
		return models.AppendAudit(ctx, tx, "INGEST_REGISTER", "ingest_batch", batch.ID, models.AuditSuccess,
			map[string]interface{}{"source": input.Source, "business_date": input.BusinessDate,
				"records": len(txns), "rejected": invalid})
	})
	if err != nil {
		if models.IsDuplicateKeyErr(err) {
			existing, dupErr := findExistingBatch(ctx, db, &batch)
			if dupErr != nil {
				return nil, nil, dupErr
			}
			if auditErr := models.AppendAudit(ctx, db, "INGEST_REGISTER", "ingest_batch", existing.ID, models.AuditDuplicate,
				map[string]interface{}{"checksum": batch.ChecksumSha256, "resubmitted_as": input.FileName}); auditErr != nil {
				config.LogError(logger, "ingestWorkflow.go", "IngestFeedBatch", "Auditing duplicate batch", existing.ID, auditErr)
			}
			return &IngestResult{Batch: existing, Duplicate: true, Accepted: 0}, nil, nil
		}
		config.LogError(logger, "ingestWorkflow.go", "IngestFeedBatch", "Persisting batch", batch.FileName, err)
		return nil, nil, err
	}

	return &IngestResult{Batch: &batch, Duplicate: false, Accepted: len(txns)}, rowErrors, nil
}

func findExistingBatch(ctx context.Context, db *gorm.DB, batch *models.IngestBatch) (*models.IngestBatch, error) {
	var existing models.IngestBatch
	err := db.WithContext(ctx).
		Where("source_system = ? AND business_date = ? AND checksum_sha256 = ?",
			batch.SourceSystem, batch.BusinessDate, batch.ChecksumSha256).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// ListIngestBatches returns a date's batches, newest first.
func ListIngestBatches(ctx context.Context, businessDate string) ([]models.IngestBatch, error) {
	var batches []models.IngestBatch
	q := config.GetDB().WithContext(ctx).Order("received_at DESC, id DESC")
	if businessDate != "" {
		q = q.Where("business_date = ?", businessDate)
	}
	err := q.Limit(200).Find(&batches).Error
	return batches, err
}
