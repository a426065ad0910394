// Package ports defines shared interfaces for the aid module. Interfaces
// live here when consumed by multiple services to avoid duplication.
package ports

import (
	"context"
	"log/slog"
	"time"

	"aidpool/internal/aid/models"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/audit"
	"aidpool/pkg/requestcontext"
)

// RequestStore persists aid requests.
type RequestStore interface {
	// Create persists a new request.
	Create(ctx context.Context, request *models.AidRequest) error

	// Get retrieves a request by ID, sentinel.ErrNotFound if absent.
	Get(ctx context.Context, requestID id.RequestID) (*models.AidRequest, error)

	// Update persists changes, guarded by the request's Version.
	// Returns sentinel.ErrConflict if a concurrent writer won.
	Update(ctx context.Context, request *models.AidRequest) error

	// ListByRequester returns the requester's requests, newest first.
	ListByRequester(ctx context.Context, requester id.ActorID) ([]*models.AidRequest, error)

	// ListByUniversity returns a university's requests, newest first.
	ListByUniversity(ctx context.Context, university id.University) ([]*models.AidRequest, error)

	// ListByStatus returns requests in a status ordered by verification
	// time ascending, for the fund recheck sweep.
	ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AidRequest, error)

	// ListByRequesterCategorySince returns the requester's requests in a
	// category created at or after the window start, for quota evaluation.
	ListByRequesterCategorySince(ctx context.Context, requester id.ActorID, category models.Category, since time.Time) ([]*models.AidRequest, error)

	// SumReserved totals reserved amounts of financial requests currently
	// holding a reservation (second_approval_pending).
	SumReserved(ctx context.Context) (int64, error)
}

// DonationStore persists donations and applies consumption atomically.
type DonationStore interface {
	// Create persists a new donation.
	Create(ctx context.Context, donation *models.Donation) error

	// Get retrieves a donation by ID, sentinel.ErrNotFound if absent.
	Get(ctx context.Context, donationID id.DonationID) (*models.Donation, error)

	// GetByReference retrieves a donation by gateway reference.
	GetByReference(ctx context.Context, reference string) (*models.Donation, error)

	// Confirm flips a pending donation to confirmed, making it matchable.
	// Returns sentinel.ErrInvalidState if it is not pending.
	Confirm(ctx context.Context, donationID id.DonationID) (*models.Donation, error)

	// List returns all donations, newest first.
	List(ctx context.Context) ([]*models.Donation, error)

	// ListEligible returns confirmed and partially disbursed donations of a
	// kind in FCFS order: creation time ascending, donation ID as the
	// stable tie-break.
	ListEligible(ctx context.Context, kind models.RequestKind) ([]*models.Donation, error)

	// ApplyDebits consumes donation supply for a request atomically: either
	// every debit applies and a ledger entry is appended per donation, or
	// nothing is persisted. Debits carry the snapshot Version they were
	// planned from; a mismatch returns sentinel.ErrConflict so the caller
	// re-matches against fresh state. A debit exceeding remaining supply
	// returns sentinel.ErrInsufficient.
	ApplyDebits(ctx context.Context, requestID id.RequestID, debits []models.DonationDebit, now time.Time) error

	// RevertDebits removes every ledger entry recorded for the request and
	// restores the consumed amounts and item quantities. Used when the
	// request write that should have accompanied a debit batch lost its
	// version check, so the consumption is orphaned.
	RevertDebits(ctx context.Context, requestID id.RequestID, now time.Time) error
}

// IdempotencyStore deduplicates external confirmation callbacks.
type IdempotencyStore interface {
	// Claim records the key if unseen, returning false when the key was
	// already claimed within the TTL.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Notifier delivers human-readable outcomes to actors. Fire-and-forget:
// failures are logged and never roll back a transition.
type Notifier interface {
	Notify(ctx context.Context, recipient id.ActorID, subject, message string) error
}

// WalletCreditor credits a requester's wallet after a successful financial
// disbursement. Best-effort: failure is logged, not rolled back.
type WalletCreditor interface {
	Credit(ctx context.Context, recipient id.ActorID, amount int64, requestID id.RequestID) error
}

// AuditPublisher emits ledger events for reporting collaborators.
type AuditPublisher = audit.Publisher

// LogAudit logs an event and emits it to the publisher if available.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event) {
	if event.CorrelationID == "" {
		event.CorrelationID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	if logger != nil {
		logger.InfoContext(ctx, event.Action,
			"event", event.Action,
			"request_id", event.RequestID,
			"donation_id", event.DonationID,
			"actor_id", event.ActorID,
			"log_type", "audit",
		)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit ledger event", "event", event.Action, "error", err)
	}
}
