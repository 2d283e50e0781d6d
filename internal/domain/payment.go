/**
 * @description
 * This file defines the payment ledger models. A PaymentRecord is one billing
 * cycle: it is created on the first installment of a plan term and accumulates
 * subsequent installments until the balance clears or the cycle is superseded.
 */
package domain

import "time"

// PaymentPhase is the billing cycle's own state, independent of tenant
// activation.
type PaymentPhase string

const (
	PhaseInProgress PaymentPhase = "in-progress"
	PhaseComplete   PaymentPhase = "complete"
	PhaseOverdue    PaymentPhase = "overdue"
)

// PaymentRecord represents one payment cycle for a tenant.
//
// The record with the latest CreatedAt among those carrying a due date is the
// tenant's current cycle; older records are historical and are never
// re-evaluated. Seq breaks exact CreatedAt ties in favor of the record
// inserted later.
type PaymentRecord struct {
	ID                  string          `json:"id"`
	Seq                 int64           `json:"-"`
	TenantID            string          `json:"tenant_id"`
	PlanName            string          `json:"plan_name"`
	PaymentType         PaymentType     `json:"payment_type"`
	Reference           string          `json:"reference"`    // gateway transaction reference, unique
	OrderNumber         string          `json:"order_number"` // invoice number
	Amount              int64           `json:"amount"`       // most recent transaction amount
	TotalAmount         int64           `json:"total_amount"` // full plan price, fixed at cycle start
	AmountPaid          int64           `json:"amount_paid"`  // cumulative, monotonically non-decreasing
	Balance             int64           `json:"balance"`      // total_amount - amount_paid; <= 0 means fully paid
	InstallmentDuration int             `json:"installment_duration"`
	NextDueDate         *time.Time      `json:"next_due_date,omitempty"` // set once per cycle, never re-derived
	Phase               PaymentPhase    `json:"phase"`
	NotificationsSent   NotificationSet `json:"notifications_sent"`
	LastOverdueNoticeAt *time.Time      `json:"last_overdue_notice_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Installment is one confirmed gateway transaction against a cycle. Every
// recorded payment appends exactly one row; the unique reference makes a
// redelivered webhook a no-op instead of a double credit.
type Installment struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycle_id"`
	TenantID  string    `json:"tenant_id"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
