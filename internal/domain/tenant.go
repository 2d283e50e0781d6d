/**
 * @description
 * This file defines the tenant account model. A tenant is a billed agency;
 * its activation flag gates whether downstream resources (meal packs) may be
 * issued, and must stay in lock-step with the current cycle's payment phase.
 */
package domain

import "time"

// TenantAccount represents a billed agency.
type TenantAccount struct {
	ID        string    `json:"id"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	PlanName  string    `json:"plan_name"`
	Packs     int       `json:"packs"`   // issuable pack capacity; zeroed on deactivation
	Version   int64     `json:"version"` // optimistic-lock counter
	CreatedAt time.Time `json:"created_at"`
}

// TenantBilling pairs a tenant with its current payment cycle, as loaded in a
// single batched read by the scheduler. Cycle is nil for tenants that have
// never entered an installment plan.
type TenantBilling struct {
	Tenant TenantAccount
	Cycle  *PaymentRecord
	Plan   *Plan // the tenant's assigned plan, when one exists
}
