// Package precheck decides whether a new request may be opened at all:
// eligibility, duplicate window and quota caps, with the emergency override
// escape hatch for hard-capped categories. Evaluation is pure; the caller
// persists the resulting request as pending_admin or precheck_failed.
package precheck

import (
	"context"
	"fmt"
	"log/slog"

	"aidpool/internal/aid/policy"
	"aidpool/pkg/requestcontext"
)

// Verdict is the precheck outcome. A denied verdict carries the reason the
// caller persists and reports; an admitted verdict may still demand an
// explicit admin override before verification.
type Verdict struct {
	Admitted bool
	Reason   string
	// limitFailure marks checks 3 and 4 (rate/amount caps); only these are
	// override-able.
	limitFailure     bool
	OverrideRequired bool
}

// Engine applies the precheck rules in order, short-circuiting on the first
// failure.
type Engine struct {
	quota  *QuotaEvaluator
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(quota *QuotaEvaluator, opts ...Option) (*Engine, error) {
	if quota == nil {
		return nil, fmt.Errorf("quota evaluator is required")
	}
	e := &Engine{quota: quota}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs the admission checks for a financial request sized by tier.
// Check order is fixed: eligibility, account approval, request-count cap,
// amount cap, duplicate window. Side-effect free.
func (e *Engine) Evaluate(ctx context.Context, actor requestcontext.Actor, rule policy.CategoryRule, tier policy.Tier) (Verdict, error) {
	verdict, err := e.evaluate(ctx, actor, rule, tier)
	if err != nil {
		return Verdict{}, err
	}

	// Emergency override: a hard-capped category admits limit failures
	// anyway, retaining the original reason for the admin's override call.
	if !verdict.Admitted && verdict.limitFailure && rule.RequiresOverride {
		verdict = Verdict{
			Admitted:         true,
			Reason:           fmt.Sprintf("Emergency override required (%s)", verdict.Reason),
			OverrideRequired: true,
		}
	}

	if e.logger != nil && !verdict.Admitted {
		e.logger.InfoContext(ctx, "precheck denied",
			"requester_id", actor.ID,
			"category", rule.Category,
			"reason", verdict.Reason,
		)
	}
	return verdict, nil
}

func (e *Engine) evaluate(ctx context.Context, actor requestcontext.Actor, rule policy.CategoryRule, tier policy.Tier) (Verdict, error) {
	if !actor.VerifiedBeneficiary {
		return Verdict{Reason: "not verified"}, nil
	}
	if !actor.Approved {
		return Verdict{Reason: "account not approved"}, nil
	}

	now := requestcontext.Now(ctx)
	usage, err := e.quota.Consumed(ctx, actor.ID, rule.Category, rule.Period.WindowStart(now))
	if err != nil {
		return Verdict{}, err
	}

	if usage.Count >= rule.MaxRequestsPerPeriod {
		return Verdict{
			Reason:       fmt.Sprintf("%s request limit reached for this period", rule.Category),
			limitFailure: true,
		}, nil
	}
	if usage.Amount+tier.Max > rule.MaxAmountPerPeriod {
		return Verdict{
			Reason:       fmt.Sprintf("%s amount limit reached for this period", rule.Category),
			limitFailure: true,
		}, nil
	}

	active, err := e.quota.HasActiveSince(ctx, actor.ID, rule.Category, now.Add(-policy.DuplicateWindow))
	if err != nil {
		return Verdict{}, err
	}
	if active {
		return Verdict{Reason: fmt.Sprintf("duplicate %s request within 14 days", rule.Category)}, nil
	}

	return Verdict{Admitted: true}, nil
}
