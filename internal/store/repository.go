/**
 * @description
 * This file implements the data access layer for the billing service. It
 * contains all the SQL queries for tenants, payment cycles, and the plan
 * catalog.
 *
 * Tenant rows carry a version counter; activation updates are compare-and-set
 * against it so concurrent evaluations of the same tenant cannot lose updates.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spexafrica/billing-service/internal/domain"
)

var (
	ErrPlanNotFound       = errors.New("subscription plan not found")
	ErrPlanExists         = errors.New("subscription plan already exists")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrCycleNotFound      = errors.New("payment cycle not found")
	ErrVersionConflict    = errors.New("tenant version conflict")
	ErrDuplicateReference = errors.New("payment reference already recorded")
)

// Repository handles database operations for the billing service.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListTenantsForBilling fetches every tenant together with its current payment
// cycle and assigned plan in one query. The current cycle is the record with
// the latest created_at among those carrying a due date; seq breaks exact
// ties in favor of the later insertion. Historical records are never loaded.
func (r *Repository) ListTenantsForBilling(ctx context.Context) ([]domain.TenantBilling, error) {
	query := `
        SELECT t.id, t.company, t.email, t.is_active, t.plan_name, t.packs, t.version, t.created_at,
               p.id, p.seq, p.plan_name, p.payment_type, p.reference, p.order_number,
               p.amount, p.total_amount, p.amount_paid, p.balance, p.installment_duration,
               p.next_due_date, p.phase, COALESCE(p.notifications_sent, '{}'), p.last_overdue_notice_at, p.created_at,
               pl.id, pl.price, pl.payment_type, pl.duration_months, pl.staff
        FROM tenants t
        LEFT JOIN LATERAL (
            SELECT * FROM payments
            WHERE tenant_id = t.id AND next_due_date IS NOT NULL
            ORDER BY created_at DESC, seq DESC
            LIMIT 1
        ) p ON TRUE
        LEFT JOIN plans pl ON pl.name = t.plan_name
        ORDER BY t.created_at
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TenantBilling
	for rows.Next() {
		var (
			tb domain.TenantBilling

			cycleID             *string
			cycleSeq            *int64
			cyclePlan           *string
			cycleType           *string
			cycleRef            *string
			cycleOrder          *string
			amount              *int64
			totalAmount         *int64
			amountPaid          *int64
			balance             *int64
			installmentDuration *int
			nextDueDate         *time.Time
			phase               *string
			notificationsSent   []string
			lastOverdueNoticeAt *time.Time
			cycleCreatedAt      *time.Time

			planID       *string
			planPrice    *int64
			planType     *string
			planDuration *int
			planStaff    *int
		)

		err := rows.Scan(
			&tb.Tenant.ID, &tb.Tenant.Company, &tb.Tenant.Email, &tb.Tenant.IsActive,
			&tb.Tenant.PlanName, &tb.Tenant.Packs, &tb.Tenant.Version, &tb.Tenant.CreatedAt,
			&cycleID, &cycleSeq, &cyclePlan, &cycleType, &cycleRef, &cycleOrder,
			&amount, &totalAmount, &amountPaid, &balance, &installmentDuration,
			&nextDueDate, &phase, &notificationsSent, &lastOverdueNoticeAt, &cycleCreatedAt,
			&planID, &planPrice, &planType, &planDuration, &planStaff,
		)
		if err != nil {
			return nil, err
		}

		if cycleID != nil {
			tb.Cycle = &domain.PaymentRecord{
				ID:                  *cycleID,
				Seq:                 *cycleSeq,
				TenantID:            tb.Tenant.ID,
				PlanName:            *cyclePlan,
				PaymentType:         domain.PaymentType(*cycleType),
				Reference:           *cycleRef,
				OrderNumber:         *cycleOrder,
				Amount:              *amount,
				TotalAmount:         *totalAmount,
				AmountPaid:          *amountPaid,
				Balance:             *balance,
				InstallmentDuration: *installmentDuration,
				NextDueDate:         nextDueDate,
				Phase:               domain.PaymentPhase(*phase),
				NotificationsSent:   domain.NewNotificationSet(notificationsSent),
				LastOverdueNoticeAt: lastOverdueNoticeAt,
				CreatedAt:           *cycleCreatedAt,
			}
		}
		if planID != nil {
			tb.Plan = &domain.Plan{
				ID:             *planID,
				Name:           tb.Tenant.PlanName,
				Price:          *planPrice,
				PaymentType:    domain.PaymentType(*planType),
				DurationMonths: *planDuration,
				Staff:          *planStaff,
			}
		}

		out = append(out, tb)
	}

	return out, rows.Err()
}

// GetTenantByID fetches a single tenant.
func (r *Repository) GetTenantByID(ctx context.Context, tenantID string) (*domain.TenantAccount, error) {
	query := `
        SELECT id, company, email, is_active, plan_name, packs, version, created_at
        FROM tenants
        WHERE id = $1
    `
	var t domain.TenantAccount
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&t.ID, &t.Company, &t.Email, &t.IsActive, &t.PlanName, &t.Packs, &t.Version, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTenantActivation flips a tenant's activation state and capacity with a
// compare-and-set on the version counter. Returns ErrVersionConflict when the
// row moved underneath the caller.
func (r *Repository) UpdateTenantActivation(ctx context.Context, tenantID string, version int64, isActive bool, packs int) error {
	query := `
        UPDATE tenants
        SET is_active = $1,
            packs = $2,
            version = version + 1,
            updated_at = NOW()
        WHERE id = $3 AND version = $4
    `
	tag, err := r.db.Exec(ctx, query, isActive, packs, tenantID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AssignTenantPlan points the tenant at a plan.
func (r *Repository) AssignTenantPlan(ctx context.Context, tenantID, planName string) error {
	query := `UPDATE tenants SET plan_name = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, planName, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// ApplyCycleEvaluation persists what one evaluation pass decided for a cycle:
// phase, the one-shot notification set, and the last overdue reminder time.
func (r *Repository) ApplyCycleEvaluation(ctx context.Context, cycleID string, phase domain.PaymentPhase, notificationsSent []string, lastOverdueNoticeAt *time.Time) error {
	query := `
        UPDATE payments
        SET phase = $1,
            notifications_sent = $2,
            last_overdue_notice_at = $3,
            updated_at = NOW()
        WHERE id = $4
    `
	tag, err := r.db.Exec(ctx, query, string(phase), notificationsSent, lastOverdueNoticeAt, cycleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCycleNotFound
	}
	return nil
}

// GetCurrentCycle returns the tenant's current payment cycle.
func (r *Repository) GetCurrentCycle(ctx context.Context, tenantID string) (*domain.PaymentRecord, error) {
	query := `
        SELECT id, seq, plan_name, payment_type, reference, order_number,
               amount, total_amount, amount_paid, balance, installment_duration,
               next_due_date, phase, COALESCE(notifications_sent, '{}'), last_overdue_notice_at, created_at
        FROM payments
        WHERE tenant_id = $1 AND next_due_date IS NOT NULL
        ORDER BY created_at DESC, seq DESC
        LIMIT 1
    `
	var (
		rec               domain.PaymentRecord
		phase             string
		paymentType       string
		notificationsSent []string
	)
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&rec.ID, &rec.Seq, &rec.PlanName, &paymentType, &rec.Reference, &rec.OrderNumber,
		&rec.Amount, &rec.TotalAmount, &rec.AmountPaid, &rec.Balance, &rec.InstallmentDuration,
		&rec.NextDueDate, &phase, &notificationsSent, &rec.LastOverdueNoticeAt, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.TenantID = tenantID
	rec.PaymentType = domain.PaymentType(paymentType)
	rec.Phase = domain.PaymentPhase(phase)
	rec.NotificationsSent = domain.NewNotificationSet(notificationsSent)
	return &rec, nil
}

// InsertPaymentRecord appends a new payment record to the ledger.
func (r *Repository) InsertPaymentRecord(ctx context.Context, rec *domain.PaymentRecord) error {
	query := `
        INSERT INTO payments (
            id, tenant_id, plan_name, payment_type, reference, order_number,
            amount, total_amount, amount_paid, balance, installment_duration,
            next_due_date, phase, notifications_sent, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING seq
    `
	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.PlanName, string(rec.PaymentType), rec.Reference, rec.OrderNumber,
		rec.Amount, rec.TotalAmount, rec.AmountPaid, rec.Balance, rec.InstallmentDuration,
		rec.NextDueDate, string(rec.Phase), rec.NotificationsSent.Strings(), rec.CreatedAt,
	).Scan(&rec.Seq)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

// InsertInstallment appends one confirmed gateway transaction. The reference
// is unique across all installments, so a redelivered webhook maps to
// ErrDuplicateReference instead of crediting the cycle twice.
func (r *Repository) InsertInstallment(ctx context.Context, inst *domain.Installment) error {
	query := `
        INSERT INTO installments (id, cycle_id, tenant_id, reference, amount, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		inst.ID, inst.CycleID, inst.TenantID, inst.Reference, inst.Amount, inst.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

// UpdatePaymentInstallment advances an open cycle after a further installment.
func (r *Repository) UpdatePaymentInstallment(ctx context.Context, cycleID string, amount, amountPaid, balance int64, phase domain.PaymentPhase) error {
	query := `
        UPDATE payments
        SET amount = $1,
            amount_paid = $2,
            balance = $3,
            phase = $4,
            updated_at = NOW()
        WHERE id = $5
    `
	tag, err := r.db.Exec(ctx, query, amount, amountPaid, balance, string(phase), cycleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCycleNotFound
	}
	return nil
}

// CreatePlan inserts a new subscription plan.
func (r *Repository) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	query := `
        INSERT INTO plans (id, name, price, payment_type, duration_months, staff, features, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		plan.ID, plan.Name, plan.Price, string(plan.PaymentType), plan.DurationMonths, plan.Staff, plan.Features,
	).Scan(&plan.CreatedAt)
	if isUniqueViolation(err) {
		return ErrPlanExists
	}
	return err
}

// GetPlanByName looks a plan up by its unique name.
func (r *Repository) GetPlanByName(ctx context.Context, name string) (*domain.Plan, error) {
	query := `
        SELECT id, name, price, payment_type, duration_months, staff, COALESCE(features, '{}'), created_at
        FROM plans
        WHERE name = $1
    `
	var (
		plan        domain.Plan
		paymentType string
	)
	err := r.db.QueryRow(ctx, query, name).Scan(
		&plan.ID, &plan.Name, &plan.Price, &paymentType, &plan.DurationMonths, &plan.Staff, &plan.Features, &plan.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	plan.PaymentType = domain.PaymentType(paymentType)
	return &plan, nil
}

// ListPlans returns the full plan catalog.
func (r *Repository) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	query := `
        SELECT id, name, price, payment_type, duration_months, staff, COALESCE(features, '{}'), created_at
        FROM plans
        ORDER BY created_at
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var (
			plan        domain.Plan
			paymentType string
		)
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Price, &paymentType, &plan.DurationMonths, &plan.Staff, &plan.Features, &plan.CreatedAt); err != nil {
			return nil, err
		}
		plan.PaymentType = domain.PaymentType(paymentType)
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
