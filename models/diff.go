package models

// FieldDiff describes one differing field between a Way4 record and its
// matched VISA record. Weight drives case severity and the mismatch export.
type FieldDiff struct {
	Field     string `json:"field"`
	Way4Value string `json:"way4_value"`
	VisaValue string `json:"visa_value"`
	Weight    string `json:"weight"`
}

const (
	DiffWeightHigh   = "HIGH"
	DiffWeightMedium = "MEDIUM"
	DiffWeightLow    = "LOW"
)

var diffWeights = map[string]string{
	"rrn":         DiffWeightHigh,
	"arn":         DiffWeightHigh,
	"amount":      DiffWeightHigh,
	"currency":    DiffWeightHigh,
	"txn_time":    DiffWeightMedium,
	"status_norm": DiffWeightMedium,
	"op_type":     DiffWeightMedium,
	"merchant_id": DiffWeightMedium,
	"channel_id":  DiffWeightMedium,
}

func diffWeight(field string) string {
	if w, ok := diffWeights[field]; ok {
		return w
	}
	return DiffWeightLow
}

// BuildFieldDiffs compares the two sides of a paired row field by field.
// Either side may be nil for one-sided rows; a nil side produces no diffs.
func BuildFieldDiffs(way4, visa *CanonicalTransaction) []FieldDiff {
	if way4 == nil || visa == nil {
		return nil
	}
	var diffs []FieldDiff
	add := func(field, lv, rv string) {
		if lv == rv {
			return
		}
		diffs = append(diffs, FieldDiff{Field: field, Way4Value: lv, VisaValue: rv, Weight: diffWeight(field)})
	}

	add("rrn", way4.Rrn, visa.Rrn)
	add("arn", way4.Arn, visa.Arn)
	if !way4.Amount.Equal(visa.Amount) {
		add("amount", way4.Amount.StringFixed(2), visa.Amount.StringFixed(2))
	}
	add("currency", way4.Currency, visa.Currency)
	if !way4.TxnTime.Equal(visa.TxnTime) {
		add("txn_time", way4.TxnTime.UTC().Format("2006-01-02T15:04:05Z"), visa.TxnTime.UTC().Format("2006-01-02T15:04:05Z"))
	}
	add("status_norm", way4.StatusNorm, visa.StatusNorm)
	add("op_type", string(way4.OpType), string(visa.OpType))
	add("merchant_id", way4.MerchantId, visa.MerchantId)
	add("channel_id", way4.ChannelId, visa.ChannelId)
	add("business_date", way4.BusinessDate, visa.BusinessDate)
	if !way4.FeeAmount.Equal(visa.FeeAmount) {
		add("fee_amount", way4.FeeAmount.StringFixed(2), visa.FeeAmount.StringFixed(2))
	}
	add("fee_currency", way4.FeeCurrency, visa.FeeCurrency)
	return diffs
}
