// Package audit records authentication events for security review.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by purpose so stores and consumers can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers account lifecycle events.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers failed credentials and session termination.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine session activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted by the auth flows. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Subject is the user id when known, otherwise the submitted email.
	Subject   string
	Email     string
	Provider  string
	Reason    string
	RequestID string
	ClientIP  string
	UserAgent string
	// Device is a short human-readable form of UserAgent, e.g. "Chrome on macOS".
	Device string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	EventLoginSucceeded        AuditEvent = "login_succeeded"
	EventLoginFailed           AuditEvent = "login_failed"
	EventUserRegistered        AuditEvent = "user_registered"
	EventRegistrationFailed    AuditEvent = "registration_failed"
	EventSessionEstablished    AuditEvent = "session_established"
	EventSessionRejected       AuditEvent = "session_rejected"
	EventLoggedOut             AuditEvent = "logged_out"
	EventHostedSignInSucceeded AuditEvent = "hosted_sign_in_succeeded"
	EventHostedSignInFailed    AuditEvent = "hosted_sign_in_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered: CategoryCompliance,

	EventLoginFailed:        CategorySecurity,
	EventRegistrationFailed: CategorySecurity,
	EventSessionRejected:    CategorySecurity,
	EventLoggedOut:          CategorySecurity,
	EventHostedSignInFailed: CategorySecurity,

	EventLoginSucceeded:        CategoryOperations,
	EventSessionEstablished:    CategoryOperations,
	EventHostedSignInSucceeded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
