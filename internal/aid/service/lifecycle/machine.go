// Package lifecycle owns the authoritative status of a request and its
// legal transitions. Transitions are defined in an explicit table keyed on
// (status, action); any undefined pair is rejected with a state conflict and
// no mutation. Guards run before any field changes, so a failed transition
// never partially applies.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/service/ledger"
	"aidpool/internal/aid/service/matcher"
	id "aidpool/pkg/domain"
	dErrors "aidpool/pkg/domain-errors"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/requestcontext"
)

var tracer = otel.Tracer("aidpool/lifecycle")

// Action is an admin (or requester, for clarification answers) operation on
// a request.
type Action string

const (
	ActionClarify            Action = "clarify"
	ActionRespondClarify     Action = "respond_clarification"
	ActionReject             Action = "reject"
	ActionVerify             Action = "verify"
	ActionApproveSecond      Action = "approve_second"
	ActionRecheckFunds       Action = "recheck_funds"
	ActionDisburseEssentials Action = "disburse_essentials"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	switch a {
	case ActionClarify, ActionRespondClarify, ActionReject, ActionVerify,
		ActionApproveSecond, ActionRecheckFunds, ActionDisburseEssentials:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown action: "+s)
}

// Input carries the per-action payload.
type Input struct {
	Actor requestcontext.Actor
	// Note attaches to clarify and respond_clarification.
	Note string
	// Reason is required for reject.
	Reason string
	// Override must be true to verify an override-required request.
	Override bool
}

// Machine applies transitions, driving the reservation ledger and the
// disbursement matcher at the stages that need them. It mutates the request
// in memory only; the caller persists the result, so storage failures never
// leave half-applied transitions.
type Machine struct {
	ledger  *ledger.Ledger
	matcher *matcher.Matcher
	logger  *slog.Logger
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func New(l *ledger.Ledger, m *matcher.Matcher, opts ...Option) (*Machine, error) {
	if l == nil || m == nil {
		return nil, fmt.Errorf("ledger and matcher are required")
	}
	machine := &Machine{ledger: l, matcher: m}
	for _, opt := range opts {
		opt(machine)
	}
	return machine, nil
}

type transitionFunc func(ctx context.Context, m *Machine, request *models.AidRequest, input Input) error

type transitionKey struct {
	status models.RequestStatus
	action Action
}

// transitions is the full legal (status, action) table. Absent pairs fail
// with "not in correct status".
var transitions = map[transitionKey]transitionFunc{
	{models.StatusPendingAdmin, ActionClarify}:          applyClarify,
	{models.StatusClarificationRequired, ActionClarify}: applyClarify,

	{models.StatusClarificationRequired, ActionRespondClarify}: applyRespondClarify,

	{models.StatusPendingAdmin, ActionReject}:          applyReject,
	{models.StatusClarificationRequired, ActionReject}: applyReject,
	{models.StatusWaitingFunds, ActionReject}:          applyReject,

	{models.StatusPendingAdmin, ActionVerify}:          applyVerify,
	{models.StatusClarificationRequired, ActionVerify}: applyVerify,

	{models.StatusWaitingFunds, ActionRecheckFunds}:          applyRecheckFunds,
	{models.StatusSecondApprovalPending, ActionRecheckFunds}: applyRecheckNoop,

	{models.StatusSecondApprovalPending, ActionApproveSecond}: applyApproveSecond,

	{models.StatusApproved, ActionDisburseEssentials}: applyDisburseEssentials,
}

// Apply runs one transition. On error the caller must discard the in-memory
// request rather than persist it; guard failures happen before any mutation.
func (m *Machine) Apply(ctx context.Context, request *models.AidRequest, action Action, input Input) error {
	ctx, span := tracer.Start(ctx, "lifecycle.Apply")
	defer span.End()

	fn, ok := transitions[transitionKey{request.Status, action}]
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "not in correct status")
	}
	if err := fn(ctx, m, request, input); err != nil {
		return err
	}
	request.UpdatedAt = requestcontext.Now(ctx)
	if m.logger != nil {
		m.logger.InfoContext(ctx, "request transition",
			"request_id", request.ID,
			"action", string(action),
			"status", string(request.Status),
		)
	}
	return nil
}

func applyClarify(ctx context.Context, _ *Machine, request *models.AidRequest, input Input) error {
	if input.Note == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "clarification note is required")
	}
	request.ClarificationNote = input.Note
	request.Status = models.StatusClarificationRequired
	return nil
}

func applyRespondClarify(ctx context.Context, _ *Machine, request *models.AidRequest, input Input) error {
	if input.Actor.ID != request.RequesterID {
		return dErrors.New(dErrors.CodeForbidden, "only the requester may respond")
	}
	if input.Note == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "response note is required")
	}
	request.ClarificationResponse = input.Note
	request.Status = models.StatusPendingAdmin
	return nil
}

func applyReject(ctx context.Context, _ *Machine, request *models.AidRequest, input Input) error {
	if input.Reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "rejection reason is required")
	}
	request.RejectionReason = input.Reason
	request.Status = models.StatusRejected
	// Any outstanding reservation stops counting the moment the request
	// leaves a reservation-bearing status; nothing to release explicitly.
	return nil
}

func applyVerify(ctx context.Context, m *Machine, request *models.AidRequest, input Input) error {
	if request.OverrideRequired && !input.Override {
		return dErrors.New(dErrors.CodeUnprocessable, "Emergency override required")
	}

	now := requestcontext.Now(ctx)
	request.VerifiedBy = input.Actor.ID
	request.VerifiedAt = &now
	if request.OverrideRequired {
		request.OverrideApproved = true
	}
	request.Status = models.StatusVerified

	if request.Kind == models.KindEssentials {
		// Essentials have no currency abstraction to reserve; go straight
		// to the second approval stage.
		request.Status = models.StatusSecondApprovalPending
		return nil
	}
	return m.reserve(ctx, request)
}

func applyRecheckFunds(ctx context.Context, m *Machine, request *models.AidRequest, input Input) error {
	if request.VerifiedAt == nil {
		return dErrors.New(dErrors.CodeConflict, "not in correct status")
	}
	if request.Kind == models.KindEssentials {
		// An essentials request only waits on funds after a failed
		// disbursement, which means it already carries both approvals.
		return m.disburse(ctx, request, input.Actor.ID)
	}
	return m.reserve(ctx, request)
}

// applyRecheckNoop makes recheck_funds idempotent: a request already holding
// a reservation is left untouched rather than double-reserved.
func applyRecheckNoop(_ context.Context, _ *Machine, _ *models.AidRequest, _ Input) error {
	return nil
}

func applyApproveSecond(ctx context.Context, m *Machine, request *models.AidRequest, input Input) error {
	if input.Actor.ID == request.VerifiedBy {
		return dErrors.New(dErrors.CodeForbidden, "must be done by a different admin")
	}
	if request.OverrideRequired && !request.OverrideApproved {
		return dErrors.New(dErrors.CodeUnprocessable, "Emergency override required")
	}

	now := requestcontext.Now(ctx)
	request.SecondApprovedBy = input.Actor.ID
	request.SecondApprovedAt = &now

	if request.Kind == models.KindEssentials {
		request.Status = models.StatusApproved
		return nil
	}
	return m.disburse(ctx, request, input.Actor.ID)
}

func applyDisburseEssentials(ctx context.Context, m *Machine, request *models.AidRequest, input Input) error {
	if request.Kind != models.KindEssentials {
		return dErrors.New(dErrors.CodeConflict, "not an essentials request")
	}
	return m.disburse(ctx, request, input.Actor.ID)
}

// reserve attempts the advisory fund reservation; insufficiency degrades to
// waiting_funds with verification fields intact.
func (m *Machine) reserve(ctx context.Context, request *models.AidRequest) error {
	err := m.ledger.Reserve(ctx, request)
	switch {
	case err == nil:
		request.Status = models.StatusSecondApprovalPending
		return nil
	case errors.Is(err, sentinel.ErrInsufficient):
		request.Status = models.StatusWaitingFunds
		return nil
	default:
		return err
	}
}

// disburse runs the matcher; insufficiency degrades to waiting_funds and
// implicitly forfeits any reservation.
func (m *Machine) disburse(ctx context.Context, request *models.AidRequest, by id.ActorID) error {
	err := m.matcher.Disburse(ctx, request)
	switch {
	case err == nil:
		now := requestcontext.Now(ctx)
		request.DisbursedBy = by
		request.DisbursedAt = &now
		request.Status = models.StatusDisbursed
		return nil
	case errors.Is(err, sentinel.ErrInsufficient):
		request.Status = models.StatusWaitingFunds
		return nil
	default:
		return err
	}
}
