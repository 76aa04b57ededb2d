package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/shopspring/decimal"
)

func diffTxn() models.CanonicalTransaction {
	return models.CanonicalTransaction{
		Rrn:          "700012345678",
		Arn:          "74999990001",
		Amount:       decimal.RequireFromString("100.00"),
		Currency:     "KZT",
		TxnTime:      time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		OpType:       models.OpTypePurchase,
		StatusNorm:   "POSTED",
		MerchantId:   "M-100",
		ChannelId:    "POS",
		BusinessDate: "2026-08-30",
		FeeAmount:    decimal.RequireFromString("1.20"),
		FeeCurrency:  "KZT",
	}
}

func TestBuildFieldDiffs(t *testing.T) {
	way4 := diffTxn()
	visa := diffTxn()
	visa.Amount = decimal.RequireFromString("101.50")
	visa.MerchantId = "M-200"

	diffs := models.BuildFieldDiffs(&way4, &visa)
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs, got %d: %+v", len(diffs), diffs)
	}

	byField := map[string]models.FieldDiff{}
	for _, d := range diffs {
		byField[d.Field] = d
	}
	amount, ok := byField["amount"]
	if !ok {
		t.Fatalf("missing amount diff: %+v", diffs)
	}
	if amount.Way4Value != "100.00" || amount.VisaValue != "101.50" {
		t.Fatalf("unexpected amount values: %+v", amount)
	}
	if amount.Weight != models.DiffWeightHigh {
		t.Fatalf("amount is a high-weight field, got %s", amount.Weight)
	}
	merchant, ok := byField["merchant_id"]
	if !ok {
		t.Fatalf("missing merchant_id diff: %+v", diffs)
	}
	if merchant.Weight != models.DiffWeightMedium {
		t.Fatalf("merchant_id is a medium-weight field, got %s", merchant.Weight)
	}
}

func TestBuildFieldDiffsEqualAndOneSided(t *testing.T) {
	way4 := diffTxn()
	visa := diffTxn()
	if diffs := models.BuildFieldDiffs(&way4, &visa); len(diffs) != 0 {
		t.Fatalf("identical records must produce no diffs, got %+v", diffs)
	}
	if diffs := models.BuildFieldDiffs(&way4, nil); diffs != nil {
		t.Fatalf("one-sided rows have no diffs, got %+v", diffs)
	}
}

func TestBuildFieldDiffsUnknownFieldWeight(t *testing.T) {
	way4 := diffTxn()
	visa := diffTxn()
	visa.BusinessDate = "2026-08-29"

	diffs := models.BuildFieldDiffs(&way4, &visa)
	if len(diffs) != 1 || diffs[0].Field != "business_date" {
		t.Fatalf("expected one business_date diff, got %+v", diffs)
	}
	if diffs[0].Weight != models.DiffWeightLow {
		t.Fatalf("fields outside the weight table fall back to LOW, got %s", diffs[0].Weight)
	}
}
