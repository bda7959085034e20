package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrappedKindsSurviveFurtherWrapping(t *testing.T) {
	err := Validationf("end time %s before start time %s", "09:00", "10:00")
	wrapped := fmt.Errorf("create template: %w", err)
	if !errors.Is(wrapped, ErrValidation) {
		t.Error("expected wrapped error to match ErrValidation")
	}
	if errors.Is(wrapped, ErrSlotConflict) {
		t.Error("validation error must not match ErrSlotConflict")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Conflictf("slot %s taken", "09:00")) {
		t.Error("slot conflicts are retryable")
	}
	if Retryable(NotFoundf("doctor %s", "d1")) {
		t.Error("not-found must never be retried")
	}
	if Retryable(Transitionf("cancel on COMPLETED")) {
		t.Error("invalid transitions must never be retried")
	}
	if Retryable(ErrBedUnavailable) {
		t.Error("bed unavailable must never be retried")
	}
}
