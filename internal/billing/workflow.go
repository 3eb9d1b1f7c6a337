package billing

import (
	"strings"
	"time"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentPending:  {PaymentApproved, PaymentRejected},
	PaymentApproved: {PaymentConfirmed, PaymentRejected},
}

// CanTransition reports whether a payment may move from one state to another.
func CanTransition(from, to PaymentState) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (p *Payment) transition(to PaymentState, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return &TransitionError{From: p.Status, To: to}
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// Approve moves a pending payment to approved.
func (p *Payment) Approve(actorID int64, now time.Time) error {
	if err := p.transition(PaymentApproved, now); err != nil {
		return err
	}
	p.ApprovedAt = &now
	p.ApprovedBy = &actorID
	return nil
}

// Confirm moves an approved payment to confirmed.
func (p *Payment) Confirm(actorID int64, now time.Time) error {
	if err := p.transition(PaymentConfirmed, now); err != nil {
		return err
	}
	p.ConfirmedAt = &now
	p.ConfirmedBy = &actorID
	return nil
}

// Reject closes a pending or approved payment. A reason is mandatory.
func (p *Payment) Reject(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if err := p.transition(PaymentRejected, now); err != nil {
		return err
	}
	p.RejectionReason = reason
	return nil
}
