/**
 * @description
 * Rendering of billing notifications into mail subjects and HTML bodies.
 */
package app

import (
	"fmt"
	"time"

	"github.com/spexafrica/billing-service/internal/domain"
)

// RenderNotification builds the outbound message for one notification kind.
func RenderNotification(kind domain.NotificationKind, tenant domain.TenantAccount, cycle *domain.PaymentRecord, now time.Time) domain.Notification {
	n := domain.Notification{
		TenantID: tenant.ID,
		Kind:     kind,
		To:       tenant.Email,
	}

	switch kind {
	case domain.NotificationComplete:
		n.Subject = "Thank You for Completing Your Payment"
		n.Body = fmt.Sprintf("<p>Dear %s, thank you for completing your installment payment. Your account is now up to date.</p>", tenant.Company)
	case domain.NotificationReminder:
		hours := int(cycle.NextDueDate.Sub(now).Hours())
		n.Subject = "Upcoming Payment Reminder"
		n.Body = fmt.Sprintf("<p>Dear %s, your next installment payment is due in approximately %d hours. Please ensure you complete it to avoid deactivation.</p>", tenant.Company, hours)
	case domain.NotificationGrace:
		n.Subject = "Grace Period Notification"
		n.Body = fmt.Sprintf("<p>Dear %s, your payment is due and you are within the grace period. Please settle the balance before your account is deactivated.</p>", tenant.Company)
	case domain.NotificationDue:
		n.Subject = "Account Deactivated - Payment Overdue"
		n.Body = fmt.Sprintf("<p>Dear %s, your payment is overdue, and your account has been deactivated. Please settle the balance to reactivate your account.</p>", tenant.Company)
	case domain.NotificationOverdue:
		n.Subject = "Overdue Payment Reminder"
		n.Body = fmt.Sprintf("<p>Dear %s, your payment is still overdue. Please make the payment as soon as possible to avoid further penalties.</p>", tenant.Company)
	}

	return n
}
