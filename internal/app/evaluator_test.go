package app

import (
	"testing"
	"time"

	"github.com/spexafrica/billing-service/internal/config"
	"github.com/spexafrica/billing-service/internal/domain"
)

// March 11, 2025 is a Tuesday, off the Monday/Friday overdue cadence.
var testDue = time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)

func testThresholds() config.Thresholds {
	return config.Thresholds{
		ReminderWindow:          72 * time.Hour,
		GracePeriod:             0,
		OverdueReminderWeekdays: map[time.Weekday]bool{time.Monday: true, time.Friday: true},
	}
}

func testTenant(active bool) domain.TenantAccount {
	return domain.TenantAccount{
		ID:       "tenant-1",
		Company:  "Acme Agency",
		Email:    "billing@acme.test",
		IsActive: active,
		Packs:    10,
		Version:  3,
	}
}

func testCycle(phase domain.PaymentPhase, balance int64) *domain.PaymentRecord {
	due := testDue
	return &domain.PaymentRecord{
		ID:                "cycle-1",
		TenantID:          "tenant-1",
		PlanName:          "Silver",
		PaymentType:       domain.PaymentTypeInstallment,
		TotalAmount:       300,
		AmountPaid:        300 - balance,
		Balance:           balance,
		NextDueDate:       &due,
		Phase:             phase,
		NotificationsSent: domain.NotificationSet{},
		CreatedAt:         testDue.AddDate(0, -1, 0),
	}
}

func sendsOnly(t *testing.T, out Outcome, kinds ...domain.NotificationKind) {
	t.Helper()
	if len(out.Send) != len(kinds) {
		t.Fatalf("expected %d notifications, got %v", len(kinds), out.Send)
	}
	for i, k := range kinds {
		if out.Send[i] != k {
			t.Fatalf("expected notification %q at position %d, got %q", k, i, out.Send[i])
		}
	}
}

func TestEvaluate_SkipsTenantsWithoutACycle(t *testing.T) {
	out := Evaluate(testTenant(true), nil, testDue, testThresholds())
	if out.Changed() {
		t.Fatalf("expected no-op outcome, got %+v", out)
	}
}

func TestEvaluate_SkipsCyclesMissingDueDate(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 200)
	cycle.NextDueDate = nil

	out := Evaluate(testTenant(true), cycle, testDue, testThresholds())
	if out.Changed() {
		t.Fatalf("expected malformed cycle to be skipped, got %+v", out)
	}
}

func TestEvaluate_SkipsOneTimePlans(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 200)
	cycle.PaymentType = domain.PaymentTypeOneTime

	now := testDue.Add(24 * time.Hour) // well past due
	out := Evaluate(testTenant(true), cycle, now, testThresholds())
	if out.Changed() {
		t.Fatalf("expected one-time plan to be skipped, got %+v", out)
	}
}

func TestEvaluate_ReminderFiresInsideWindow(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 200)
	now := testDue.Add(-48 * time.Hour)

	out := Evaluate(testTenant(true), cycle, now, testThresholds())
	sendsOnly(t, out, domain.NotificationReminder)
	if out.Deactivate || out.PhaseChanged {
		t.Fatalf("reminder must not change state, got %+v", out)
	}
}

func TestEvaluate_NoReminderBeforeWindow(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 200)
	now := testDue.Add(-80 * time.Hour)

	out := Evaluate(testTenant(true), cycle, now, testThresholds())
	if out.Changed() {
		t.Fatalf("expected nothing outside the reminder window, got %+v", out)
	}
}

func TestEvaluate_ReminderIsOneShot(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 200)
	cycle.NotificationsSent.Add(domain.NotificationReminder)
	now := testDue.Add(-48 * time.Hour)

	out := Evaluate(testTenant(true), cycle, now, testThresholds())
	if out.Changed() {
		t.Fatalf("reminder flag must suppress re-sending, got %+v", out)
	}
}

func TestEvaluate_DueDateReachedDeactivates(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 200)

	out := Evaluate(testTenant(true), cycle, testDue, testThresholds())
	sendsOnly(t, out, domain.NotificationDue)
	if !out.Deactivate {
		t.Fatal("expected deactivation at the due instant")
	}
	if !out.PhaseChanged || out.Phase != domain.PhaseOverdue {
		t.Fatalf("expected phase overdue, got %+v", out)
	}
}

func TestEvaluate_OverdueTickIsIdempotent(t *testing.T) {
	// State after the deactivation tick has been applied.
	cycle := testCycle(domain.PhaseOverdue, 200)
	cycle.NotificationsSent.Add(domain.NotificationDue)
	now := testDue.Add(time.Hour)
	ts := now.Add(-30 * time.Minute)
	cycle.LastOverdueNoticeAt = &ts

	out := Evaluate(testTenant(false), cycle, now, testThresholds())
	if out.Changed() {
		t.Fatalf("expected idempotent overdue tick, got %+v", out)
	}
}

func TestEvaluate_GraceNoticePrecedesDeactivation(t *testing.T) {
	th := testThresholds()
	th.GracePeriod = 6 * time.Hour
	cycle := testCycle(domain.PhaseInProgress, 200)

	now := testDue.Add(2 * time.Hour)
	out := Evaluate(testTenant(true), cycle, now, th)
	sendsOnly(t, out, domain.NotificationGrace)
	if out.Deactivate || out.PhaseChanged {
		t.Fatalf("no deactivation inside the grace window, got %+v", out)
	}

	// Grace already notified, still inside window: nothing.
	cycle.NotificationsSent.Add(domain.NotificationGrace)
	out = Evaluate(testTenant(true), cycle, now, th)
	if out.Changed() {
		t.Fatalf("grace notice is one-shot, got %+v", out)
	}

	// Window over: hard deactivation.
	out = Evaluate(testTenant(true), cycle, testDue.Add(7*time.Hour), th)
	sendsOnly(t, out, domain.NotificationDue)
	if !out.Deactivate || out.Phase != domain.PhaseOverdue {
		t.Fatalf("expected deactivation after the grace window, got %+v", out)
	}
}

func TestEvaluate_CompletionThanksOnce(t *testing.T) {
	cycle := testCycle(domain.PhaseComplete, 0)

	out := Evaluate(testTenant(true), cycle, testDue, testThresholds())
	sendsOnly(t, out, domain.NotificationComplete)
	if out.Deactivate || out.Reactivate {
		t.Fatalf("completion thanks must leave activation unchanged, got %+v", out)
	}

	cycle.NotificationsSent.Add(domain.NotificationComplete)
	out = Evaluate(testTenant(true), cycle, testDue, testThresholds())
	if out.Changed() {
		t.Fatalf("thanks is one-shot, got %+v", out)
	}
}

func TestEvaluate_CompletedCycleOnInactiveTenantReactivates(t *testing.T) {
	cycle := testCycle(domain.PhaseComplete, 0)

	out := Evaluate(testTenant(false), cycle, testDue, testThresholds())
	if !out.Reactivate {
		t.Fatalf("expected activation repair for completed cycle, got %+v", out)
	}
	if len(out.Send) != 0 {
		t.Fatalf("thanks waits until the tenant is active again, got %v", out.Send)
	}
}

func TestEvaluate_ClearedBalancePastDueCompletesInsteadOfDeactivating(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 0)

	out := Evaluate(testTenant(true), cycle, testDue.Add(time.Hour), testThresholds())
	if out.Phase != domain.PhaseComplete || !out.PhaseChanged {
		t.Fatalf("expected phase repair to complete, got %+v", out)
	}
	if out.Deactivate || len(out.Send) != 0 {
		t.Fatalf("no deactivation for a settled cycle, got %+v", out)
	}
}

func TestEvaluate_SettledCycleInsideReminderWindowCompletes(t *testing.T) {
	cycle := testCycle(domain.PhaseInProgress, 0)
	now := testDue.Add(-48 * time.Hour)

	out := Evaluate(testTenant(true), cycle, now, testThresholds())
	if out.Phase != domain.PhaseComplete || !out.PhaseChanged {
		t.Fatalf("expected phase repair to complete, got %+v", out)
	}
	if len(out.Send) != 0 {
		t.Fatalf("a settled cycle must not get a payment reminder, got %v", out.Send)
	}
}

func TestEvaluate_OverdueReminderFollowsWeekdayCadence(t *testing.T) {
	th := testThresholds()
	cycle := testCycle(domain.PhaseOverdue, 200)
	cycle.NotificationsSent.Add(domain.NotificationDue)

	monday := testDue.Add(6 * 24 * time.Hour)
	out := Evaluate(testTenant(false), cycle, monday, th)
	sendsOnly(t, out, domain.NotificationOverdue)
	if out.OverdueNoticeAt == nil || !out.OverdueNoticeAt.Equal(monday) {
		t.Fatalf("expected overdue notice timestamp %v, got %+v", monday, out.OverdueNoticeAt)
	}

	// Same day, later tick: de-duplicated.
	cycle.LastOverdueNoticeAt = &monday
	out = Evaluate(testTenant(false), cycle, monday.Add(3*time.Hour), th)
	if out.Changed() {
		t.Fatalf("overdue reminder must fire at most once per day, got %+v", out)
	}

	// Tuesday: not on the cadence.
	out = Evaluate(testTenant(false), cycle, monday.Add(24*time.Hour), th)
	if out.Changed() {
		t.Fatalf("overdue reminder must respect the weekday cadence, got %+v", out)
	}

	// Friday: fires again.
	friday := monday.Add(4 * 24 * time.Hour)
	out = Evaluate(testTenant(false), cycle, friday, th)
	sendsOnly(t, out, domain.NotificationOverdue)
}

func TestEvaluate_OverdueActiveTenantIsDeactivatedAgain(t *testing.T) {
	// Drift: phase flipped but the activation CAS failed on a previous tick.
	cycle := testCycle(domain.PhaseOverdue, 200)
	cycle.NotificationsSent.Add(domain.NotificationDue)
	wednesday := testDue.Add(24 * time.Hour)

	out := Evaluate(testTenant(true), cycle, wednesday, testThresholds())
	if !out.Deactivate {
		t.Fatalf("expected lock-step repair to deactivate, got %+v", out)
	}
	if len(out.Send) != 0 {
		t.Fatalf("repair must not duplicate the due notification, got %v", out.Send)
	}
}

// The concrete scenario from the billing design: total 300, paid 100, due in
// 30 days. Reminder two days out, deactivation at the due instant.
func TestEvaluate_InstallmentScenario(t *testing.T) {
	th := testThresholds()
	cycle := testCycle(domain.PhaseInProgress, 200)
	cycle.AmountPaid = 100
	cycle.TotalAmount = 300

	out := Evaluate(testTenant(true), cycle, testDue.Add(-48*time.Hour), th)
	sendsOnly(t, out, domain.NotificationReminder)
	if out.Deactivate {
		t.Fatal("reminder must leave the tenant active")
	}
	cycle.NotificationsSent.Add(domain.NotificationReminder)

	out = Evaluate(testTenant(true), cycle, testDue, th)
	sendsOnly(t, out, domain.NotificationDue)
	if !out.Deactivate || out.Phase != domain.PhaseOverdue {
		t.Fatalf("expected deactivation at due, got %+v", out)
	}
}
