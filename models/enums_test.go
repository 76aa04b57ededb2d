package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/models"
)

func TestAllowedCaseTransition(t *testing.T) {
	cases := []struct {
		from, to models.CaseStatus
		allowed  bool
	}{
		{models.CaseStatusNew, models.CaseStatusTriaged, true},
		{models.CaseStatusNew, models.CaseStatusInProgress, true},
		{models.CaseStatusNew, models.CaseStatusClosed, false},
		{models.CaseStatusTriaged, models.CaseStatusInProgress, true},
		{models.CaseStatusTriaged, models.CaseStatusNew, false},
		{models.CaseStatusInProgress, models.CaseStatusTriaged, true},
		{models.CaseStatusInProgress, models.CaseStatusClosed, false},
		{models.CaseStatusClosed, models.CaseStatusNew, false},
		{models.CaseStatusClosed, models.CaseStatusTriaged, false},
		{models.CaseStatusClosed, models.CaseStatusInProgress, false},
	}
	for _, tc := range cases {
		if got := models.AllowedCaseTransition(tc.from, tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestParseCaseStatus(t *testing.T) {
	if s, ok := models.ParseCaseStatus("IN_PROGRESS"); !ok || s != models.CaseStatusInProgress {
		t.Fatalf("expected IN_PROGRESS to parse, got %v %v", s, ok)
	}
	if _, ok := models.ParseCaseStatus("REOPENED"); ok {
		t.Fatalf("unknown statuses must not parse")
	}
}

func TestParseMatchResultStatus(t *testing.T) {
	for _, s := range []string{"MATCHED", "MISSING_IN_WAY4", "MISSING_IN_VISA", "PARTIAL", "DUPLICATE", "MISMATCH"} {
		if _, ok := models.ParseMatchResultStatus(s); !ok {
			t.Fatalf("expected %s to parse", s)
		}
	}
	if _, ok := models.ParseMatchResultStatus("matched"); ok {
		t.Fatalf("statuses are case sensitive")
	}
}

func TestNormalizeOpType(t *testing.T) {
	if got := models.NormalizeOpType("REFUND"); got != models.OpTypeRefund {
		t.Fatalf("expected REFUND, got %s", got)
	}
	if got := models.NormalizeOpType("WIRE"); got != models.OpTypePurchase {
		t.Fatalf("unrecognized op types fall back to PURCHASE, got %s", got)
	}
}
