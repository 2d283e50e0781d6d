/**
 * @description
 * This file defines the subscription plan catalog model. Plans are reference
 * data: created once by an administrator, looked up by name, never mutated.
 */
package domain

import "time"

// PaymentType describes how a plan is paid for.
type PaymentType string

const (
	PaymentTypeOneTime     PaymentType = "one-time"
	PaymentTypeInstallment PaymentType = "installment"
	PaymentTypeCustom      PaymentType = "custom"
)

// Plan represents a subscription plan offered to tenant agencies.
type Plan struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Price          int64       `json:"price"` // full plan price, minor currency units
	PaymentType    PaymentType `json:"payment_type"`
	DurationMonths int         `json:"duration_months"` // months an installment plan is split across
	Staff          int         `json:"staff"`           // staff headcount the plan covers
	Features       []string    `json:"features"`
	CreatedAt      time.Time   `json:"created_at"`
}
