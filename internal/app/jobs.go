/**
 * @description
 * Scheduled job implementations for the billing service. One tick loads every
 * tenant with its current payment cycle in a single batched read, runs the
 * lifecycle evaluator per tenant, persists the resulting mutations, and then
 * dispatches the collected notifications as a batch.
 *
 * Mutations and notifications are deliberately decoupled: a mail outage never
 * rolls back or blocks an activation change, and a failed mutation suppresses
 * that tenant's notifications so the one-shot flags and the mail stay in step.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spexafrica/billing-service/internal/config"
	"github.com/spexafrica/billing-service/internal/domain"
	"github.com/spexafrica/billing-service/internal/store"
)

// BillingRepository defines the database operations needed by the tick runner.
type BillingRepository interface {
	ListTenantsForBilling(ctx context.Context) ([]domain.TenantBilling, error)
	GetTenantByID(ctx context.Context, tenantID string) (*domain.TenantAccount, error)
	UpdateTenantActivation(ctx context.Context, tenantID string, version int64, isActive bool, packs int) error
	ApplyCycleEvaluation(ctx context.Context, cycleID string, phase domain.PaymentPhase, notificationsSent []string, lastOverdueNoticeAt *time.Time) error
}

// Mailer is the external mail collaborator. The runner never depends on its
// result beyond logging.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EventPublisher publishes billing lifecycle events. May be absent.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

const eventsExchange = "billing.events"

// Jobs contains the logic for all scheduled billing tasks.
type Jobs struct {
	repo   BillingRepository
	mailer Mailer
	events EventPublisher
	logger *slog.Logger
	config config.Config
	now    func() time.Time
}

// NewJobs creates a new Jobs runner. events may be nil when event publishing
// is not configured.
func NewJobs(repo BillingRepository, mailer Mailer, events EventPublisher, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:   repo,
		mailer: mailer,
		events: events,
		logger: logger,
		config: cfg,
		now:    time.Now,
	}
}

// CheckInstallments is the cron entry point: one full evaluation pass.
func (j *Jobs) CheckInstallments() {
	j.logger.Info("starting installment billing check")
	if err := j.RunBillingCheck(context.Background()); err != nil {
		j.logger.Error("installment billing check failed", "error", err)
		return
	}
	j.logger.Info("installment billing check finished")
}

// RunBillingCheck evaluates every tenant once and applies the results. It is
// also invoked synchronously by the administrative check endpoint.
func (j *Jobs) RunBillingCheck(ctx context.Context) error {
	now := j.now()
	th := j.config.Thresholds()

	rows, err := j.repo.ListTenantsForBilling(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tenants for billing: %w", err)
	}

	var queue []domain.Notification
	for _, row := range rows {
		out := Evaluate(row.Tenant, row.Cycle, now, th)
		if !out.Changed() {
			continue
		}

		if err := j.applyOutcome(ctx, row, out); err != nil {
			j.logger.Error("failed to apply billing evaluation", "tenant_id", row.Tenant.ID, "error", err)
			continue
		}
		j.publishLifecycleEvents(ctx, row, out)

		for _, kind := range out.Send {
			queue = append(queue, RenderNotification(kind, row.Tenant, row.Cycle, now))
		}
	}

	j.dispatch(ctx, queue)
	return nil
}

// applyOutcome applies the tenant activation flip first, then the cycle
// mutation. A version conflict therefore never strands a persisted one-shot
// flag with its notification unsent; when the flip fails, nothing is written
// and the whole outcome is retried on the next tick.
func (j *Jobs) applyOutcome(ctx context.Context, row domain.TenantBilling, out Outcome) error {
	cycle := row.Cycle

	if out.Deactivate {
		if err := setTenantActivation(ctx, j.repo, row.Tenant, false, 0); err != nil {
			return err
		}
	} else if out.Reactivate {
		packs := row.Tenant.Packs
		if row.Plan != nil {
			packs = row.Plan.Staff * j.config.PacksPerStaff
		}
		if err := setTenantActivation(ctx, j.repo, row.Tenant, true, packs); err != nil {
			return err
		}
	}

	needsCycleUpdate := out.PhaseChanged || out.OverdueNoticeAt != nil
	sent := cycle.NotificationsSent
	for _, kind := range out.Send {
		if kind == domain.NotificationOverdue {
			continue // repeats on cadence, not flag-gated
		}
		if sent == nil {
			sent = domain.NotificationSet{}
		}
		sent.Add(kind)
		needsCycleUpdate = true
	}

	if needsCycleUpdate {
		lastOverdue := cycle.LastOverdueNoticeAt
		if out.OverdueNoticeAt != nil {
			lastOverdue = out.OverdueNoticeAt
		}
		if err := j.repo.ApplyCycleEvaluation(ctx, cycle.ID, out.Phase, sent.Strings(), lastOverdue); err != nil {
			return fmt.Errorf("failed to update payment cycle %s: %w", cycle.ID, err)
		}
	}

	return nil
}

// tenantActivator is the slice of repository behavior needed for the
// compare-and-set activation update.
type tenantActivator interface {
	GetTenantByID(ctx context.Context, tenantID string) (*domain.TenantAccount, error)
	UpdateTenantActivation(ctx context.Context, tenantID string, version int64, isActive bool, packs int) error
}

// setTenantActivation performs the compare-and-set tenant update, retrying
// once with a fresh version on conflict before giving up.
func setTenantActivation(ctx context.Context, repo tenantActivator, tenant domain.TenantAccount, isActive bool, packs int) error {
	err := repo.UpdateTenantActivation(ctx, tenant.ID, tenant.Version, isActive, packs)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return err
	}

	fresh, err := repo.GetTenantByID(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to reload tenant after version conflict: %w", err)
	}
	if err := repo.UpdateTenantActivation(ctx, fresh.ID, fresh.Version, isActive, packs); err != nil {
		return fmt.Errorf("tenant activation update conflicted twice: %w", err)
	}
	return nil
}

func (j *Jobs) publishLifecycleEvents(ctx context.Context, row domain.TenantBilling, out Outcome) {
	if j.events == nil {
		return
	}

	var routingKey string
	switch {
	case out.Deactivate:
		routingKey = "billing.tenant.deactivated"
	case out.Reactivate:
		routingKey = "billing.tenant.reactivated"
	case out.PhaseChanged && out.Phase == domain.PhaseComplete:
		routingKey = "billing.cycle.completed"
	default:
		return
	}

	payload := map[string]interface{}{
		"tenant_id": row.Tenant.ID,
		"cycle_id":  row.Cycle.ID,
		"phase":     string(out.Phase),
	}
	if err := j.events.Publish(ctx, eventsExchange, routingKey, payload); err != nil {
		j.logger.Error("failed to publish billing event", "routing_key", routingKey, "tenant_id", row.Tenant.ID, "error", err)
	}
}

// dispatch hands the collected notifications to the mail collaborator. Each
// send gets a bounded timeout; failures are logged and never retried within
// the tick.
func (j *Jobs) dispatch(ctx context.Context, queue []domain.Notification) {
	if len(queue) == 0 {
		return
	}
	j.logger.Info("dispatching billing notifications", "count", len(queue))

	for _, n := range queue {
		sendCtx, cancel := context.WithTimeout(ctx, j.config.MailSendTimeout())
		err := j.mailer.Send(sendCtx, n.To, n.Subject, n.Body)
		cancel()
		if err != nil {
			j.logger.Error("failed to send billing notification", "tenant_id", n.TenantID, "kind", string(n.Kind), "error", err)
			continue
		}
		j.logger.Info("billing notification sent", "tenant_id", n.TenantID, "kind", string(n.Kind))
	}
}
