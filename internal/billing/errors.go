package billing

import (
	"fmt"

	"github.com/gemvault/gemvault/internal/shared"
)

var (
	ErrInvoiceNotFound   = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrPaymentNotFound   = fmt.Errorf("%w: payment", shared.ErrNotFound)
	ErrNegativeTotal     = fmt.Errorf("%w: discount exceeds the invoice amount", shared.ErrValidation)
	ErrNegativePrice     = fmt.Errorf("%w: item price must not be negative", shared.ErrValidation)
	ErrPlanExists        = fmt.Errorf("%w: payment plan already generated", shared.ErrConflict)
	ErrNoPaymentTerm     = fmt.Errorf("%w: invoice has no payment term", shared.ErrValidation)
	ErrInvoiceLocked     = fmt.Errorf("%w: invoice can no longer be edited", shared.ErrConflict)
	ErrInvoiceClosed     = fmt.Errorf("%w: invoice does not accept payments", shared.ErrConflict)
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be greater than zero", shared.ErrValidation)
	ErrUnknownSchedule   = fmt.Errorf("%w: selected schedule does not belong to the invoice", shared.ErrValidation)
	ErrScheduleSettled   = fmt.Errorf("%w: selected schedule is already paid", shared.ErrValidation)
	ErrReasonRequired    = fmt.Errorf("%w: rejection reason is required", shared.ErrValidation)
	ErrHasConfirmed      = fmt.Errorf("%w: invoice has confirmed payments", shared.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: payment transition not allowed", shared.ErrConflict)
)

// TransitionError names the refused payment transition.
type TransitionError struct {
	From PaymentState
	To   PaymentState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payment cannot move from %s to %s", e.From, e.To)
}

// Unwrap lets callers match ErrInvalidTransition and shared.ErrConflict.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
