package terms

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gemvault/gemvault/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (PaymentTerm, error)
	List(ctx context.Context, filter ListFilter) ([]PaymentTerm, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditRecorder appends audit entries after a change is committed.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages payment term templates.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Get returns a term with its schedule.
func (s *Service) Get(ctx context.Context, id int64) (PaymentTerm, error) {
	return s.repo.Get(ctx, id)
}

// List returns terms matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PaymentTerm, int, error) {
	return s.repo.List(ctx, filter)
}

// Create validates and stores a term together with its schedule rows.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in TermInput) (PaymentTerm, error) {
	if err := actor.RequireStaff(); err != nil {
		return PaymentTerm{}, err
	}
	if err := in.normalize(); err != nil {
		return PaymentTerm{}, err
	}
	term := in.Term()
	term.Schedule = term.Sorted()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertTerm(ctx, term)
		if err != nil {
			return err
		}
		term.ID = id
		return tx.ReplaceSchedule(ctx, id, term.Schedule)
	})
	if err != nil {
		return PaymentTerm{}, err
	}
	s.record(ctx, actor, "payment_term.created", term)
	return s.repo.Get(ctx, term.ID)
}

// Update replaces a term and its schedule rows atomically. Invoice schedules
// already generated from the term are left untouched.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in TermInput) (PaymentTerm, error) {
	if err := actor.RequireStaff(); err != nil {
		return PaymentTerm{}, err
	}
	if err := in.normalize(); err != nil {
		return PaymentTerm{}, err
	}
	term := in.Term()
	term.ID = id
	term.Schedule = term.Sorted()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateTerm(ctx, term); err != nil {
			return err
		}
		return tx.ReplaceSchedule(ctx, id, term.Schedule)
	})
	if err != nil {
		return PaymentTerm{}, err
	}
	s.record(ctx, actor, "payment_term.updated", term)
	return s.repo.Get(ctx, id)
}

// Deactivate hides a term from new invoices.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, id int64) error {
	if err := actor.RequireStaff(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "payment_term.deactivated", PaymentTerm{ID: id})
	return nil
}

// GetActive returns a term usable for a new payment plan.
func (s *Service) GetActive(ctx context.Context, id int64) (PaymentTerm, error) {
	term, err := s.repo.Get(ctx, id)
	if err != nil {
		return PaymentTerm{}, err
	}
	if !term.Active {
		return PaymentTerm{}, ErrTermInactive
	}
	return term, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, term PaymentTerm) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{}
	if term.Name != "" {
		meta["name"] = term.Name
		meta["down_payment_percentage"] = term.DownPaymentPercentage.String()
		meta["term_months"] = term.TermMonths
	}
	if err := s.audit.Record(ctx, shared.NewAuditLog(actor, action, "payment_term", strconv.FormatInt(term.ID, 10), meta)); err != nil {
		s.logger.Warn("payment term audit", slog.String("action", action), slog.Any("error", err))
	}
}
