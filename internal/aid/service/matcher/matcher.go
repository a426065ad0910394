// Package matcher consumes donation supply for approved requests. Financial
// need splits greedily across donations in FCFS order; essentials demand
// exact single-donation coverage. Consumption is all-or-nothing: a plan is
// computed from a snapshot and applied under the store's optimistic guard,
// and a lost race re-matches against fresh state instead of partially
// applying.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/ports"
	dErrors "aidpool/pkg/domain-errors"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/requestcontext"
)

var tracer = otel.Tracer("aidpool/matcher")

// maxRetries bounds re-matching after optimistic-concurrency conflicts.
const maxRetries = 3

type Matcher struct {
	donations ports.DonationStore
	observer  prometheus.Observer
	logger    *slog.Logger
}

type Option func(*Matcher)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithDurationObserver records the wall time of each matching attempt,
// retries included.
func WithDurationObserver(observer prometheus.Observer) Option {
	return func(m *Matcher) {
		m.observer = observer
	}
}

func New(donations ports.DonationStore, opts ...Option) (*Matcher, error) {
	if donations == nil {
		return nil, fmt.Errorf("donation store is required")
	}
	m := &Matcher{donations: donations}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Disburse consumes supply for the request and records the disbursement
// entries on it. Returns sentinel.ErrInsufficient when live supply cannot
// cover the need; the caller degrades the request to waiting_funds.
func (m *Matcher) Disburse(ctx context.Context, request *models.AidRequest) error {
	ctx, span := tracer.Start(ctx, "matcher.Disburse")
	defer span.End()

	start := time.Now()
	defer func() {
		if m.observer != nil {
			m.observer.Observe(time.Since(start).Seconds())
		}
	}()

	for attempt := 0; ; attempt++ {
		var err error
		if request.Kind == models.KindFinancial {
			err = m.disburseFinancial(ctx, request)
		} else {
			err = m.disburseEssentials(ctx, request)
		}

		if errors.Is(err, sentinel.ErrConflict) && attempt < maxRetries {
			// A concurrent match consumed part of the snapshot. Re-plan
			// from fresh state; never partially apply.
			if m.logger != nil {
				m.logger.InfoContext(ctx, "match conflicted, retrying",
					"request_id", request.ID,
					"attempt", attempt+1,
				)
			}
			continue
		}
		return err
	}
}

// disburseFinancial consumes the earliest donations first, splitting the
// need across as many as required.
func (m *Matcher) disburseFinancial(ctx context.Context, request *models.AidRequest) error {
	need := request.ReservedAmount
	if need == 0 {
		need = request.TargetAmount()
	}

	eligible, err := m.donations.ListEligible(ctx, models.KindFinancial)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
	}
	sortFCFS(eligible)

	remaining := need
	var debits []models.DonationDebit
	for _, d := range eligible {
		if remaining == 0 {
			break
		}
		take := min(remaining, d.RemainingAmount())
		if take <= 0 {
			continue
		}
		debits = append(debits, models.DonationDebit{
			DonationID: d.ID,
			Amount:     take,
			Version:    d.Version,
		})
		remaining -= take
	}
	if remaining > 0 {
		return sentinel.ErrInsufficient
	}

	return m.apply(ctx, request, debits)
}

// disburseEssentials selects the first donation, FCFS, whose remaining
// items cover every required line. No splitting across donations.
func (m *Matcher) disburseEssentials(ctx context.Context, request *models.AidRequest) error {
	required := request.RequiredItems()
	if len(required) == 0 {
		return dErrors.New(dErrors.CodeConflict, "essentials request has no items")
	}

	eligible, err := m.donations.ListEligible(ctx, models.KindEssentials)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
	}
	sortFCFS(eligible)

	for _, d := range eligible {
		if !d.Covers(required) {
			continue
		}
		items := make([]models.RequestedItem, 0, len(required))
		// Deterministic item order for stable ledger entries.
		names := make([]string, 0, len(required))
		for name := range required {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			items = append(items, models.RequestedItem{Name: name, Quantity: required[name]})
		}
		debit := models.DonationDebit{DonationID: d.ID, Items: items, Version: d.Version}
		return m.apply(ctx, request, []models.DonationDebit{debit})
	}
	return sentinel.ErrInsufficient
}

// apply commits the plan and mirrors the ledger entries onto the request.
func (m *Matcher) apply(ctx context.Context, request *models.AidRequest, debits []models.DonationDebit) error {
	now := requestcontext.Now(ctx)
	if err := m.donations.ApplyDebits(ctx, request.ID, debits, now); err != nil {
		return err
	}
	for _, debit := range debits {
		request.Disbursements = append(request.Disbursements, models.DisbursementEntry{
			DonationID: debit.DonationID,
			Amount:     debit.Amount,
			Items:      debit.Items,
			Timestamp:  now,
		})
	}
	return nil
}

// sortFCFS orders donations by creation time ascending, donation ID as the
// stable tie-break, so matching is deterministic.
func sortFCFS(donations []*models.Donation) {
	sort.SliceStable(donations, func(i, j int) bool {
		if donations[i].CreatedAt.Equal(donations[j].CreatedAt) {
			return donations[i].ID.String() < donations[j].ID.String()
		}
		return donations[i].CreatedAt.Before(donations[j].CreatedAt)
	})
}
