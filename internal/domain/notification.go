/**
 * @description
 * Notification kinds emitted by the billing lifecycle, and the per-cycle set
 * that records which one-shot kinds have already been sent. The set lives on
 * the payment record, not the tenant, so a new cycle always starts clean.
 */
package domain

import (
	"encoding/json"
	"sort"
)

// NotificationKind identifies one class of billing notification.
type NotificationKind string

const (
	NotificationReminder NotificationKind = "reminder"       // pre-due reminder
	NotificationDue      NotificationKind = "due"            // due reached, account deactivated
	NotificationGrace    NotificationKind = "grace"          // inside the post-due grace window
	NotificationOverdue  NotificationKind = "overdue"        // repeating overdue reminder
	NotificationComplete NotificationKind = "complete"       // thank-you on full payment
)

// NotificationSet tracks which one-shot notification kinds have fired for the
// current payment cycle.
type NotificationSet map[NotificationKind]struct{}

// NewNotificationSet builds a set from its stored representation.
func NewNotificationSet(kinds []string) NotificationSet {
	s := make(NotificationSet, len(kinds))
	for _, k := range kinds {
		s[NotificationKind(k)] = struct{}{}
	}
	return s
}

// Has reports whether the kind has already been sent this cycle.
func (s NotificationSet) Has(kind NotificationKind) bool {
	_, ok := s[kind]
	return ok
}

// Add marks the kind as sent.
func (s NotificationSet) Add(kind NotificationKind) {
	s[kind] = struct{}{}
}

// Strings returns the stored representation, suitable for a text[] column.
// The order is deterministic.
func (s NotificationSet) Strings() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// MarshalJSON renders the set as a plain array of kind names.
func (s NotificationSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON accepts the array form produced by MarshalJSON.
func (s *NotificationSet) UnmarshalJSON(data []byte) error {
	var kinds []string
	if err := json.Unmarshal(data, &kinds); err != nil {
		return err
	}
	*s = NewNotificationSet(kinds)
	return nil
}

// Notification is a rendered message ready for the mail collaborator.
type Notification struct {
	TenantID string
	Kind     NotificationKind
	To       string
	Subject  string
	Body     string
}
