package models

type SourceSystem string

const (
	SourceWay4 SourceSystem = "WAY4"
	SourceVisa SourceSystem = "VISA"
)

func ParseSourceSystem(s string) (SourceSystem, bool) {
	switch SourceSystem(s) {
	case SourceWay4:
		return SourceWay4, true
	case SourceVisa:
		return SourceVisa, true
	}
	return "", false
}

type OpType string

const (
	OpTypePurchase   OpType = "PURCHASE"
	OpTypeClearing   OpType = "CLEARING"
	OpTypeSettlement OpType = "SETTLEMENT"
	OpTypeRefund     OpType = "REFUND"
	OpTypeReversal   OpType = "REVERSAL"
	OpTypeChargeback OpType = "CHARGEBACK"
	OpTypeAdjustment OpType = "ADJUSTMENT"
)

// NormalizeOpType maps any input onto the closed op-type set; anything
// unrecognized falls back to PURCHASE, matching ingest behavior for feeds
// that omit the column.
func NormalizeOpType(s string) OpType {
	switch OpType(s) {
	case OpTypePurchase, OpTypeClearing, OpTypeSettlement, OpTypeRefund,
		OpTypeReversal, OpTypeChargeback, OpTypeAdjustment:
		return OpType(s)
	}
	return OpTypePurchase
}

type MatchRunStatus string

const (
	RunStatusPending  MatchRunStatus = "PENDING"
	RunStatusRunning  MatchRunStatus = "RUNNING"
	RunStatusFinished MatchRunStatus = "FINISHED"
	RunStatusFailed   MatchRunStatus = "FAILED"
)

func (s MatchRunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed
}

type MatchResultStatus string

const (
	ResultMatched       MatchResultStatus = "MATCHED"
	ResultMissingInWay4 MatchResultStatus = "MISSING_IN_WAY4"
	ResultMissingInVisa MatchResultStatus = "MISSING_IN_VISA"
	ResultPartial       MatchResultStatus = "PARTIAL"
	ResultDuplicate     MatchResultStatus = "DUPLICATE"
	ResultMismatch      MatchResultStatus = "MISMATCH"
)

func ParseMatchResultStatus(s string) (MatchResultStatus, bool) {
	switch MatchResultStatus(s) {
	case ResultMatched, ResultMissingInWay4, ResultMissingInVisa,
		ResultPartial, ResultDuplicate, ResultMismatch:
		return MatchResultStatus(s), true
	}
	return "", false
}

type ExceptionCategory string

const (
	CategoryMissingInVisa  ExceptionCategory = "MISSING_IN_VISA"
	CategoryMissingInWay4  ExceptionCategory = "MISSING_IN_WAY4"
	CategoryAmountMismatch ExceptionCategory = "AMOUNT_MISMATCH"
	CategoryDateMismatch   ExceptionCategory = "DATE_MISMATCH"
	CategoryOpTypeMismatch ExceptionCategory = "OPTYPE_MISMATCH"
	CategoryDuplicate      ExceptionCategory = "DUPLICATE"
	CategoryStatusMismatch ExceptionCategory = "STATUS_MISMATCH"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

type CaseStatus string

const (
	CaseStatusNew        CaseStatus = "NEW"
	CaseStatusTriaged    CaseStatus = "TRIAGED"
	CaseStatusInProgress CaseStatus = "IN_PROGRESS"
	CaseStatusClosed     CaseStatus = "CLOSED"
)

func ParseCaseStatus(s string) (CaseStatus, bool) {
	switch CaseStatus(s) {
	case CaseStatusNew, CaseStatusTriaged, CaseStatusInProgress, CaseStatusClosed:
		return CaseStatus(s), true
	}
	return "", false
}

type CaseActionType string

const (
	ActionAssign       CaseActionType = "assign"
	ActionComment      CaseActionType = "comment"
	ActionStatusChange CaseActionType = "status_change"
	ActionClose        CaseActionType = "close"
)

func ParseCaseActionType(s string) (CaseActionType, bool) {
	switch CaseActionType(s) {
	case ActionAssign, ActionComment, ActionStatusChange, ActionClose:
		return CaseActionType(s), true
	}
	return "", false
}

type AuditResult string

const (
	AuditSuccess   AuditResult = "SUCCESS"
	AuditDuplicate AuditResult = "DUPLICATE"
	AuditFailure   AuditResult = "FAILURE"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusDisabled UserStatus = "DISABLED"
)

// Display labels for the presentation layer. Lookups fall back to the raw
// value so unknown codes render instead of disappearing.
var resultStatusLabels = map[MatchResultStatus]string{
	ResultMatched:       "Matched",
	ResultMissingInWay4: "Missing in Way4",
	ResultMissingInVisa: "Missing in VISA",
	ResultPartial:       "Partial (one-to-many)",
	ResultDuplicate:     "Duplicate candidates",
	ResultMismatch:      "Field mismatch",
}

var categoryLabels = map[ExceptionCategory]string{
	CategoryMissingInVisa:  "Missing in VISA",
	CategoryMissingInWay4:  "Missing in Way4",
	CategoryAmountMismatch: "Amount mismatch",
	CategoryDateMismatch:   "Date mismatch",
	CategoryOpTypeMismatch: "Operation type mismatch",
	CategoryDuplicate:      "Duplicate",
	CategoryStatusMismatch: "Status mismatch",
}

func (s MatchResultStatus) Label() string {
	if l, ok := resultStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (c ExceptionCategory) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}
