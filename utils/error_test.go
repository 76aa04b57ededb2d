package utils_test

import (
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

func TestKindOf(t *testing.T) {
	err := utils.NewError(utils.ErrKindConflict, "run %s already active", "abc")
	if utils.KindOf(err) != utils.ErrKindConflict {
		t.Fatalf("expected CONFLICT, got %s", utils.KindOf(err))
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if utils.KindOf(wrapped) != utils.ErrKindConflict {
		t.Fatalf("kind must survive wrapping, got %s", utils.KindOf(wrapped))
	}
	if utils.KindOf(errors.New("plain")) != utils.ErrKindInternal {
		t.Fatalf("untyped errors default to INTERNAL")
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("disk on fire")
	err := utils.WrapError(utils.ErrKindInternal, cause, "persisting results")
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause must be reachable via errors.Is")
	}
	if !utils.IsKind(err, utils.ErrKindInternal) {
		t.Fatalf("expected INTERNAL kind")
	}
}
