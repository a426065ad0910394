// Package audit defines the ledger event model the aid core emits on every
// state transition and disbursement. Reporting collaborators consume these
// events instead of reading the core's tables.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryLedger covers allocation facts: reservations, disbursement
	// ledger appends, donation consumption. These reconcile supply against
	// demand and require long retention.
	CategoryLedger EventCategory = "ledger"

	// CategoryLifecycle covers request state transitions and precheck
	// verdicts. These feed beneficiary-facing notifications and reporting.
	CategoryLifecycle EventCategory = "lifecycle"

	// CategoryOperations covers events useful for debugging and operational
	// visibility; these can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	Action     string        `json:"action"`
	RequestID  string        `json:"request_id,omitempty"`
	DonationID string        `json:"donation_id,omitempty"`
	// ActorID tracks who performed the action; "system" for sweep-driven
	// transitions.
	ActorID    string `json:"actor_id,omitempty"`
	University string `json:"university,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Reason     string `json:"reason,omitempty"`
	// CorrelationID carries the HTTP request ID for traceability.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Publisher emits events to a sink. Implementations must be safe for
// concurrent use; Emit failures never roll back the operation that
// produced the event.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists events for collaborators that poll instead of subscribe.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lifecycle and ledger actions emitted by the aid core.
const (
	EventRequestSubmitted  = "request_submitted"
	EventPrecheckFailed    = "request_precheck_failed"
	EventRequestClarified  = "request_clarification_requested"
	EventRequestResponded  = "request_clarification_answered"
	EventRequestVerified   = "request_verified"
	EventRequestRejected   = "request_rejected"
	EventRequestApproved   = "request_second_approved"
	EventRequestDisbursed  = "request_disbursed"
	EventRequestWaiting    = "request_waiting_funds"
	EventFundsReserved     = "funds_reserved"
	EventDonationRecorded  = "donation_recorded"
	EventDonationConfirmed = "donation_confirmed"
	EventDonationConsumed  = "donation_consumed"
)
