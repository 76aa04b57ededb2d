package utils_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

func TestSanitizePanMasked(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"4000123456781234", "400012******1234"},
		{"4000 1234 5678 1234", "400012******1234"},
		{"4000-1234-5678-1234", "400012******1234"},
		{"400012XXXXXX1234", "400012******1234"},
		{"400012******1234", "400012******1234"},
		{"", "****"},
		{"not-a-pan", "not-a-pan"},
	}
	for _, tc := range cases {
		if got := utils.SanitizePanMasked(tc.in); got != tc.expected {
			t.Fatalf("SanitizePanMasked(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestHashPanIsStable(t *testing.T) {
	a := utils.HashPan("400012******1234")
	b := utils.HashPan("400012******1234")
	if a != b {
		t.Fatalf("same input must hash identically")
	}
	if a == utils.HashPan("400012******9999") {
		t.Fatalf("different inputs must not collide trivially")
	}
	if len(a) != 64 {
		t.Fatalf("expected a hex sha256, got %d chars", len(a))
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := utils.SplitAndTrim(" ADMIN, ops ,,auditor ", ",")
	if len(got) != 3 || got[0] != "ADMIN" || got[1] != "ops" || got[2] != "auditor" {
		t.Fatalf("unexpected result: %v", got)
	}
	if got := utils.SplitAndTrim("", ","); len(got) != 0 {
		t.Fatalf("empty input yields no parts, got %v", got)
	}
}
