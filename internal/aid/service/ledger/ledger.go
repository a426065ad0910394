// Package ledger computes the financial pool's available balance and places
// advisory reservations against it. Balances are always computed from fresh
// donation and request snapshots, never cached.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/ports"
	dErrors "aidpool/pkg/domain-errors"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/requestcontext"
)

type Ledger struct {
	donations ports.DonationStore
	requests  ports.RequestStore
	logger    *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func New(donations ports.DonationStore, requests ports.RequestStore, opts ...Option) (*Ledger, error) {
	if donations == nil || requests == nil {
		return nil, fmt.Errorf("donation and request stores are required")
	}
	l := &Ledger{donations: donations, requests: requests}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// AvailableBalance is the unconsumed financial supply minus outstanding
// reservations.
func (l *Ledger) AvailableBalance(ctx context.Context) (int64, error) {
	supply, err := l.supply(ctx)
	if err != nil {
		return 0, err
	}
	reserved, err := l.requests.SumReserved(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum reservations")
	}
	return supply - reserved, nil
}

func (l *Ledger) supply(ctx context.Context) (int64, error) {
	donations, err := l.donations.ListEligible(ctx, models.KindFinancial)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
	}
	var total int64
	for _, d := range donations {
		total += d.RemainingAmount()
	}
	return total, nil
}

// Reserve places an advisory hold for the request's target amount, setting
// the reservation fields on the request in memory. The caller persists the
// request; no donation record is touched. Returns sentinel.ErrInsufficient
// without mutation when the pool cannot cover the target.
//
// Reservations guarantee aggregate sufficiency only at the instant they are
// taken: two concurrent reservations can both pass against the same balance.
// The matcher re-verifies at consumption time and the loser degrades to
// waiting_funds.
func (l *Ledger) Reserve(ctx context.Context, request *models.AidRequest) error {
	if request.Kind != models.KindFinancial {
		return dErrors.New(dErrors.CodeConflict, "only financial requests reserve funds")
	}

	available, err := l.AvailableBalance(ctx)
	if err != nil {
		return err
	}

	target := request.TargetAmount()
	if available < target {
		if l.logger != nil {
			l.logger.InfoContext(ctx, "reservation declined",
				"request_id", request.ID,
				"target", target,
				"available", available,
			)
		}
		return sentinel.ErrInsufficient
	}

	now := requestcontext.Now(ctx)
	request.ReservedAmount = target
	request.ReservedAt = &now
	return nil
}
