package precheck

import (
	"context"
	"time"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/ports"
	id "aidpool/pkg/domain"
	dErrors "aidpool/pkg/domain-errors"
)

// Usage is a requester's consumed quota within a category's rolling window.
// Rejected and precheck-failed requests do not consume quota.
type Usage struct {
	Count  int
	Amount int64
}

// QuotaEvaluator computes consumed quota from request history.
type QuotaEvaluator struct {
	requests ports.RequestStore
}

func NewQuotaEvaluator(requests ports.RequestStore) *QuotaEvaluator {
	return &QuotaEvaluator{requests: requests}
}

// Consumed sums the requester's non-rejected, non-precheck-failed requests
// in the category created within [windowStart, now]. Each request counts
// its committed size (tier max).
func (q *QuotaEvaluator) Consumed(ctx context.Context, requester id.ActorID, category models.Category, windowStart time.Time) (Usage, error) {
	history, err := q.requests.ListByRequesterCategorySince(ctx, requester, category, windowStart)
	if err != nil {
		return Usage{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request history")
	}

	var usage Usage
	for _, r := range history {
		if r.Status == models.StatusRejected || r.Status == models.StatusPrecheckFailed {
			continue
		}
		usage.Count++
		usage.Amount += r.TargetAmount()
	}
	return usage, nil
}

// HasActiveSince reports whether a non-rejected, non-precheck-failed request
// in the category was created within the duplicate window.
func (q *QuotaEvaluator) HasActiveSince(ctx context.Context, requester id.ActorID, category models.Category, since time.Time) (bool, error) {
	history, err := q.requests.ListByRequesterCategorySince(ctx, requester, category, since)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request history")
	}
	for _, r := range history {
		if r.Status == models.StatusRejected || r.Status == models.StatusPrecheckFailed {
			continue
		}
		return true, nil
	}
	return false, nil
}
