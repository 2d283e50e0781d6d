/**
 * @description
 * The lifecycle evaluator: a pure function that derives, from a tenant and its
 * current payment cycle, the billing phase and the notifications to emit on
 * this evaluation pass. It mutates nothing; the job runner applies the
 * returned outcome.
 *
 * Every time threshold is expressed as a comparison against the single signed
 * duration untilDue = nextDueDate.Sub(now). Positive means the due date is
 * still ahead, zero or negative means it has been reached.
 */
package app

import (
	"time"

	"github.com/spexafrica/billing-service/internal/config"
	"github.com/spexafrica/billing-service/internal/domain"
)

// Outcome is what one evaluation pass decided for one tenant.
type Outcome struct {
	// Send lists the notification kinds to emit this pass, in emission order.
	Send []domain.NotificationKind
	// Phase is the cycle phase after this pass; PhaseChanged reports whether
	// it differs from the stored one.
	Phase        domain.PaymentPhase
	PhaseChanged bool
	// Deactivate / Reactivate request a tenant activation flip. At most one
	// is set.
	Deactivate bool
	Reactivate bool
	// OverdueNoticeAt carries the timestamp to persist as the last overdue
	// reminder when NotificationOverdue is in Send.
	OverdueNoticeAt *time.Time
}

// Changed reports whether the outcome requires any persistence or dispatch.
func (o Outcome) Changed() bool {
	return len(o.Send) > 0 || o.PhaseChanged || o.Deactivate || o.Reactivate
}

// Evaluate runs the billing state machine for one tenant against now.
//
// Tenants with no current cycle (never installment-billed, or on a one-time
// plan) and cycles missing a due date (malformed or legacy rows) are skipped
// entirely: no notification, no activation change.
func Evaluate(tenant domain.TenantAccount, cycle *domain.PaymentRecord, now time.Time, th config.Thresholds) Outcome {
	var out Outcome
	if cycle == nil || cycle.NextDueDate == nil || cycle.PaymentType == domain.PaymentTypeOneTime {
		return out
	}

	out.Phase = cycle.Phase
	untilDue := cycle.NextDueDate.Sub(now)
	sent := cycle.NotificationsSent

	switch cycle.Phase {
	case domain.PhaseComplete:
		// Rule 1: thank-you, once, activation untouched. A completed cycle on
		// an inactive tenant means the ledger update and the activation flip
		// drifted apart; repair the invariant before thanking.
		if !tenant.IsActive {
			out.Reactivate = true
			return out
		}
		if !sent.Has(domain.NotificationComplete) {
			out.Send = append(out.Send, domain.NotificationComplete)
		}
		return out

	case domain.PhaseInProgress:
		// A settled cycle still marked in-progress is drift from the ledger;
		// repair the phase before any reminder logic can fire.
		if cycle.Balance <= 0 {
			out.Phase = domain.PhaseComplete
			out.PhaseChanged = true
			return out
		}

		// Rule 2: pre-due reminder inside the fixed window.
		if untilDue > 0 {
			if untilDue <= th.ReminderWindow && !sent.Has(domain.NotificationReminder) {
				out.Send = append(out.Send, domain.NotificationReminder)
			}
			return out
		}

		// Rule 4: while inside a configured grace window, only the grace
		// notice fires; deactivation waits for the window to end.
		if th.GracePeriod > 0 && -untilDue < th.GracePeriod {
			if !sent.Has(domain.NotificationGrace) {
				out.Send = append(out.Send, domain.NotificationGrace)
			}
			return out
		}

		// Rule 3: the deactivation unit. Phase flips overdue, the tenant is
		// deactivated with zero capacity, and the due notification goes out.
		out.Phase = domain.PhaseOverdue
		out.PhaseChanged = true
		if tenant.IsActive {
			out.Deactivate = true
		}
		if !sent.Has(domain.NotificationDue) {
			out.Send = append(out.Send, domain.NotificationDue)
		}
		return out

	case domain.PhaseOverdue:
		// A still-active tenant on an overdue cycle is drift from a partially
		// applied earlier tick; restore lock-step.
		if tenant.IsActive {
			out.Deactivate = true
		}
		// Rule 5: the only repeating notification, gated on calendar cadence
		// and de-duplicated per day rather than by a one-shot flag.
		if th.OverdueReminderWeekdays[now.Weekday()] && !sameDay(cycle.LastOverdueNoticeAt, now) {
			out.Send = append(out.Send, domain.NotificationOverdue)
			ts := now
			out.OverdueNoticeAt = &ts
		}
		return out
	}

	return out
}

func sameDay(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	ly, lm, ld := last.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ly == ny && lm == nm && ld == nd
}
