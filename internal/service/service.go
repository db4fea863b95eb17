package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nurbuild/backend/internal/credit"
	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/logger"
	"nurbuild/backend/internal/metrics"
	"nurbuild/backend/internal/report"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SystemActor is used by maintenance commands that run outside a request.
var SystemActor = domain.Actor{Username: "system", Role: domain.RoleAdmin}

type Options struct {
	Credit         credit.Validator
	Metrics        *metrics.Metrics
	DefaultDueDays int
	Now            func() time.Time
}

type Service struct {
	repo    store.Repository
	reports *report.Engine
	credit  credit.Validator
	metrics *metrics.Metrics
	dueDays int
	now     func() time.Time
	log     zerolog.Logger
}

func New(repo store.Repository, reports *report.Engine, opts Options) *Service {
	if reports == nil {
		reports = report.NewEngine(nil, 0)
	}
	if opts.DefaultDueDays < 1 {
		opts.DefaultDueDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Credit.Policy() == "" {
		opts.Credit = credit.NewValidator(credit.ZeroLimitUnlimited)
	}

	return &Service{
		repo:    repo,
		reports: reports,
		credit:  opts.Credit,
		metrics: opts.Metrics,
		dueDays: opts.DefaultDueDays,
		now:     opts.Now,
		log:     logger.WithComponent("service"),
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) today() time.Time {
	return domain.DateOf(s.now())
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s may not perform this action", ErrForbidden, actor.Role)
}

func (s *Service) requireWriter(ctx context.Context) (domain.Actor, error) {
	return s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.clock().Add(-24 * time.Hour)
	} else {
		parsed, err := parseDate("date", date)
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock(),
	}); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// afterDebtChange drops cached aggregates once a mutation has committed.
func (s *Service) afterDebtChange(ctx context.Context) {
	s.reports.Invalidate(ctx, s.now())
}

// checkCredit runs the limit check and counts rejections per operation.
func (s *Service) checkCredit(operation string, customer domain.Customer, requested decimal.Decimal, addBack decimal.Decimal) error {
	if err := s.credit.Check(customer, requested, addBack); err != nil {
		s.metrics.CreditRejected(operation)
		return err
	}
	return nil
}

func parseDate(field string, raw string) (time.Time, error) {
	parsed, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, domain.Invalid(field, "%s must be a date in YYYY-MM-DD format", field)
	}
	return parsed.UTC(), nil
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(100))
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// adjustOutstanding moves the customer's running balance by delta. The
// customer row must already be locked by tx.
func adjustOutstanding(ctx context.Context, tx store.Tx, customer *domain.Customer, delta decimal.Decimal, at time.Time) error {
	if delta.IsZero() {
		return nil
	}
	customer.OutstandingBalance = customer.OutstandingBalance.Add(delta)
	customer.UpdatedAt = at
	return tx.UpdateCustomer(ctx, *customer)
}

// syncSaleStatus mirrors the debt status onto its sale. sale may be nil
// for debts created without one.
func syncSaleStatus(ctx context.Context, tx store.Tx, sale *domain.Sale, debt domain.Debt, at time.Time) error {
	if sale == nil {
		return nil
	}
	next := domain.SaleStatusFor(debt.Status)
	if sale.PaymentStatus == next {
		return nil
	}
	sale.PaymentStatus = next
	sale.UpdatedAt = at
	return tx.UpdateSale(ctx, *sale)
}

// lockDebtGraph locks a debt, its sale and its customer in that order.
func lockDebtGraph(ctx context.Context, tx store.Tx, debtID string) (*domain.Debt, *domain.Sale, *domain.Customer, error) {
	debt, err := tx.LockDebt(ctx, debtID)
	if err != nil {
		return nil, nil, nil, err
	}
	var sale *domain.Sale
	if debt.SaleID != "" {
		sale, err = tx.LockSale(ctx, debt.SaleID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, err
		}
	}
	customer, err := tx.LockCustomer(ctx, debt.CustomerID)
	if err != nil {
		return nil, nil, nil, err
	}
	return debt, sale, customer, nil
}
