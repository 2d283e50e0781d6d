/**
 * @description
 * This file contains the payment ledger logic: recording installment payments
 * against a plan, selecting the current cycle, and keeping the tenant's
 * activation state in lock-step with the cycle phase. Recording a payment is
 * the only way a new cycle begins or an existing one advances.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spexafrica/billing-service/internal/config"
	"github.com/spexafrica/billing-service/internal/domain"
	"github.com/spexafrica/billing-service/internal/store"
)

// LedgerRepository defines the database operations the ledger needs.
type LedgerRepository interface {
	GetPlanByName(ctx context.Context, name string) (*domain.Plan, error)
	GetTenantByID(ctx context.Context, tenantID string) (*domain.TenantAccount, error)
	GetCurrentCycle(ctx context.Context, tenantID string) (*domain.PaymentRecord, error)
	InsertPaymentRecord(ctx context.Context, rec *domain.PaymentRecord) error
	InsertInstallment(ctx context.Context, inst *domain.Installment) error
	UpdatePaymentInstallment(ctx context.Context, cycleID string, amount, amountPaid, balance int64, phase domain.PaymentPhase) error
	AssignTenantPlan(ctx context.Context, tenantID, planName string) error
	UpdateTenantActivation(ctx context.Context, tenantID string, version int64, isActive bool, packs int) error
}

// Ledger provides the payment recording business logic.
type Ledger struct {
	repo   LedgerRepository
	events EventPublisher
	logger *slog.Logger
	config config.Config
	now    func() time.Time
}

// NewLedger creates a new payment ledger service. events may be nil.
func NewLedger(repo LedgerRepository, events EventPublisher, logger *slog.Logger, cfg config.Config) *Ledger {
	return &Ledger{
		repo:   repo,
		events: events,
		logger: logger,
		config: cfg,
		now:    time.Now,
	}
}

// RecordInstallment appends a confirmed payment to the ledger. It opens a new
// cycle when the previous one is absent or complete, and otherwise advances
// the existing cycle. Clearing the balance completes the cycle and reactivates
// the tenant.
//
// Every payment is stored as its own transaction row keyed by the gateway
// reference; a redelivered webhook returns store.ErrDuplicateReference and
// credits nothing.
func (l *Ledger) RecordInstallment(ctx context.Context, tenantID, planName string, amount int64, reference string) (*domain.PaymentRecord, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	plan, err := l.repo.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}
	tenant, err := l.repo.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := l.now()

	if plan.PaymentType == domain.PaymentTypeOneTime {
		return l.recordOneTimePayment(ctx, tenant, plan, amount, reference, now)
	}

	cur, err := l.repo.GetCurrentCycle(ctx, tenantID)
	if err != nil && !errors.Is(err, store.ErrCycleNotFound) {
		return nil, err
	}

	if cur == nil || cur.Phase == domain.PhaseComplete {
		return l.openCycle(ctx, tenant, plan, amount, reference, now)
	}
	return l.advanceCycle(ctx, tenant, plan, cur, amount, reference, now)
}

// appendTransaction durably records one confirmed gateway transaction before
// the cycle it belongs to is touched, so a replay fails here and leaves the
// cycle unchanged.
func (l *Ledger) appendTransaction(ctx context.Context, cycleID, tenantID string, amount int64, reference string, now time.Time) error {
	inst := &domain.Installment{
		ID:        uuid.New().String(),
		CycleID:   cycleID,
		TenantID:  tenantID,
		Reference: reference,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := l.repo.InsertInstallment(ctx, inst); err != nil {
		return fmt.Errorf("failed to record payment transaction: %w", err)
	}
	return nil
}

// CurrentCycle returns the tenant's current payment cycle, or
// store.ErrCycleNotFound when the tenant has never entered an installment plan.
func (l *Ledger) CurrentCycle(ctx context.Context, tenantID string) (*domain.PaymentRecord, error) {
	return l.repo.GetCurrentCycle(ctx, tenantID)
}

// recordOneTimePayment stores a plain, fully settled payment. One-time plans
// carry no due date and are never evaluated by the scheduler.
func (l *Ledger) recordOneTimePayment(ctx context.Context, tenant *domain.TenantAccount, plan *domain.Plan, amount int64, reference string, now time.Time) (*domain.PaymentRecord, error) {
	rec := &domain.PaymentRecord{
		ID:                uuid.New().String(),
		TenantID:          tenant.ID,
		PlanName:          plan.Name,
		PaymentType:       plan.PaymentType,
		Reference:         reference,
		OrderNumber:       newOrderNumber(now),
		Amount:            amount,
		TotalAmount:       plan.Price,
		AmountPaid:        amount,
		Balance:           plan.Price - amount,
		Phase:             domain.PhaseComplete,
		NotificationsSent: domain.NotificationSet{},
		CreatedAt:         now,
	}
	if err := l.appendTransaction(ctx, rec.ID, tenant.ID, amount, reference, now); err != nil {
		return nil, err
	}
	if err := l.repo.InsertPaymentRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	if err := l.activateForPlan(ctx, tenant, plan); err != nil {
		return nil, err
	}
	return rec, nil
}

// openCycle starts a fresh payment cycle. The due date is fixed once, at one
// cadence period (a calendar month) after creation, and the notification set
// starts empty.
func (l *Ledger) openCycle(ctx context.Context, tenant *domain.TenantAccount, plan *domain.Plan, amount int64, reference string, now time.Time) (*domain.PaymentRecord, error) {
	due := now.AddDate(0, 1, 0)
	rec := &domain.PaymentRecord{
		ID:                  uuid.New().String(),
		TenantID:            tenant.ID,
		PlanName:            plan.Name,
		PaymentType:         plan.PaymentType,
		Reference:           reference,
		OrderNumber:         newOrderNumber(now),
		Amount:              amount,
		TotalAmount:         plan.Price,
		AmountPaid:          amount,
		Balance:             plan.Price - amount,
		InstallmentDuration: plan.DurationMonths,
		NextDueDate:         &due,
		Phase:               domain.PhaseInProgress,
		NotificationsSent:   domain.NotificationSet{},
		CreatedAt:           now,
	}
	if rec.Balance <= 0 {
		rec.Phase = domain.PhaseComplete
	}

	if err := l.appendTransaction(ctx, rec.ID, tenant.ID, amount, reference, now); err != nil {
		return nil, err
	}
	if err := l.repo.InsertPaymentRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to open payment cycle: %w", err)
	}
	if err := l.repo.AssignTenantPlan(ctx, tenant.ID, plan.Name); err != nil {
		return nil, fmt.Errorf("failed to assign plan to tenant: %w", err)
	}
	if err := l.activateForPlan(ctx, tenant, plan); err != nil {
		return nil, err
	}

	l.logger.Info("opened payment cycle", "tenant_id", tenant.ID, "plan", plan.Name, "next_due_date", due)
	return rec, nil
}

// advanceCycle applies a further installment to the open cycle. The cumulative
// amount paid only ever grows; the balance is recomputed from the fixed total.
func (l *Ledger) advanceCycle(ctx context.Context, tenant *domain.TenantAccount, plan *domain.Plan, cur *domain.PaymentRecord, amount int64, reference string, now time.Time) (*domain.PaymentRecord, error) {
	if err := l.appendTransaction(ctx, cur.ID, tenant.ID, amount, reference, now); err != nil {
		return nil, err
	}

	amountPaid := cur.AmountPaid + amount
	balance := cur.TotalAmount - amountPaid
	phase := cur.Phase
	completed := balance <= 0
	if completed {
		phase = domain.PhaseComplete
	}

	if err := l.repo.UpdatePaymentInstallment(ctx, cur.ID, amount, amountPaid, balance, phase); err != nil {
		return nil, fmt.Errorf("failed to advance payment cycle %s: %w", cur.ID, err)
	}

	cur.Amount = amount
	cur.AmountPaid = amountPaid
	cur.Balance = balance
	cur.Phase = phase
	cur.Reference = reference

	if completed {
		if err := l.activateForPlan(ctx, tenant, plan); err != nil {
			return nil, err
		}
		l.publishCompleted(ctx, tenant.ID, cur.ID)
		l.logger.Info("payment cycle completed", "tenant_id", tenant.ID, "cycle_id", cur.ID)
	}

	return cur, nil
}

// activateForPlan marks the tenant active with the capacity its plan grants.
func (l *Ledger) activateForPlan(ctx context.Context, tenant *domain.TenantAccount, plan *domain.Plan) error {
	packs := plan.Staff * l.config.PacksPerStaff
	if err := setTenantActivation(ctx, l.repo, *tenant, true, packs); err != nil {
		return fmt.Errorf("failed to activate tenant %s: %w", tenant.ID, err)
	}
	return nil
}

func (l *Ledger) publishCompleted(ctx context.Context, tenantID, cycleID string) {
	if l.events == nil {
		return
	}
	payload := map[string]interface{}{
		"tenant_id": tenantID,
		"cycle_id":  cycleID,
		"phase":     string(domain.PhaseComplete),
	}
	if err := l.events.Publish(ctx, eventsExchange, "billing.cycle.completed", payload); err != nil {
		l.logger.Error("failed to publish billing event", "routing_key", "billing.cycle.completed", "tenant_id", tenantID, "error", err)
	}
}

// newOrderNumber generates an invoice-style order number for a payment.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}
