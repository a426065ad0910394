// Package service is the aid core's facade: request submission, admin
// transitions, donation intake and confirmation, and the pool projection.
// It authorizes callers, orchestrates the precheck engine, lifecycle
// machine, reservation ledger and disbursement matcher, persists results,
// and fans out the best-effort side effects (notifications, wallet credit,
// ledger events) that never roll back a transition.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"aidpool/internal/aid/metrics"
	"aidpool/internal/aid/models"
	"aidpool/internal/aid/policy"
	"aidpool/internal/aid/ports"
	"aidpool/internal/aid/service/ledger"
	"aidpool/internal/aid/service/lifecycle"
	"aidpool/internal/aid/service/matcher"
	"aidpool/internal/aid/service/precheck"
	id "aidpool/pkg/domain"
	dErrors "aidpool/pkg/domain-errors"
	"aidpool/pkg/platform/audit"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/platform/tx"
	"aidpool/pkg/requestcontext"
)

var tracer = otel.Tracer("aidpool/service")

// confirmationTTL bounds how long a gateway confirmation key is remembered.
const confirmationTTL = 24 * time.Hour

type Service struct {
	requests  ports.RequestStore
	donations ports.DonationStore
	idem      ports.IdempotencyStore

	precheck *precheck.Engine
	machine  *lifecycle.Machine
	ledger   *ledger.Ledger

	notifier  ports.Notifier
	wallet    ports.WalletCreditor
	publisher ports.AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// db enables wrapping a disbursement's request and donation writes in
	// one transaction. Nil for memory-backed deployments, whose donation
	// store already applies debits atomically.
	db *sql.DB
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(notifier ports.Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithWalletCreditor(wallet ports.WalletCreditor) Option {
	return func(s *Service) { s.wallet = wallet }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithIdempotencyStore(idem ports.IdempotencyStore) Option {
	return func(s *Service) { s.idem = idem }
}

func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

func New(requests ports.RequestStore, donations ports.DonationStore, opts ...Option) (*Service, error) {
	if requests == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if donations == nil {
		return nil, fmt.Errorf("donation store is required")
	}

	s := &Service{requests: requests, donations: donations}
	for _, opt := range opts {
		opt(s)
	}

	quota := precheck.NewQuotaEvaluator(requests)
	var err error
	if s.precheck, err = precheck.New(quota, precheck.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	led, err := ledger.New(donations, requests, ledger.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.ledger = led
	matcherOpts := []matcher.Option{matcher.WithLogger(s.logger)}
	if s.metrics != nil {
		matcherOpts = append(matcherOpts, matcher.WithDurationObserver(s.metrics.MatchDuration))
	}
	match, err := matcher.New(donations, matcherOpts...)
	if err != nil {
		return nil, err
	}
	if s.machine, err = lifecycle.New(led, match, lifecycle.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	return s, nil
}

// SubmitInput is the requester's ask.
type SubmitInput struct {
	Category      models.Category
	Kind          models.RequestKind
	TierLabel     string
	Items         []models.RequestedItem
	Justification string
}

// SubmitRequest runs the precheck and persists the request either as
// pending_admin or as a terminal precheck_failed record. A precheck denial
// is a recorded outcome, not an error.
func (s *Service) SubmitRequest(ctx context.Context, input SubmitInput) (*models.AidRequest, error) {
	ctx, span := tracer.Start(ctx, "service.SubmitRequest")
	defer span.End()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != id.RoleRequester {
		return nil, dErrors.New(dErrors.CodeForbidden, "only requesters may submit")
	}

	rule, tier, err := validateSubmit(input)
	if err != nil {
		return nil, err
	}

	verdict, err := s.precheck.Evaluate(ctx, actor, rule, tier)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	request := &models.AidRequest{
		ID:            id.NewRequestID(),
		RequesterID:   actor.ID,
		University:    actor.University,
		Category:      input.Category,
		Kind:          input.Kind,
		TierLabel:     input.TierLabel,
		AmountMin:     tier.Min,
		AmountMax:     tier.Max,
		Items:         input.Items,
		Justification: input.Justification,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if verdict.Admitted {
		request.Status = models.StatusPendingAdmin
		request.PrecheckReason = verdict.Reason
		request.OverrideRequired = verdict.OverrideRequired
	} else {
		request.Status = models.StatusPrecheckFailed
		request.PrecheckReason = verdict.Reason
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist request")
	}

	if verdict.Admitted {
		s.recordSubmission("admitted")
		s.emit(ctx, audit.Event{
			Category:   audit.CategoryLifecycle,
			Action:     audit.EventRequestSubmitted,
			RequestID:  request.ID.String(),
			ActorID:    actor.ID.String(),
			University: actor.University.String(),
			Amount:     request.TargetAmount(),
		})
		s.notify(ctx, actor.ID, "Request received",
			fmt.Sprintf("Your %s request was received and is awaiting review.", request.Category))
	} else {
		s.recordSubmission("denied")
		s.emit(ctx, audit.Event{
			Category:  audit.CategoryLifecycle,
			Action:    audit.EventPrecheckFailed,
			RequestID: request.ID.String(),
			ActorID:   actor.ID.String(),
			Reason:    verdict.Reason,
		})
		s.notify(ctx, actor.ID, "Request not accepted", verdict.Reason)
	}
	return request, nil
}

func validateSubmit(input SubmitInput) (policy.CategoryRule, policy.Tier, error) {
	if !input.Category.IsValid() {
		return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	if !input.Kind.IsValid() {
		return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "invalid request kind")
	}
	if len(input.Justification) > policy.JustificationMaxLen {
		return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "justification too long")
	}

	rule, ok := policy.RuleFor(input.Category)
	if !ok {
		return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}

	var tier policy.Tier
	if input.Kind == models.KindFinancial {
		tier, ok = rule.TierByLabel(input.TierLabel)
		if !ok {
			return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "unknown amount tier")
		}
		if len(input.Items) > 0 {
			return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "financial requests carry no items")
		}
	} else {
		if len(input.Items) == 0 {
			return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "essentials requests need at least one item")
		}
		for _, item := range input.Items {
			if strings.TrimSpace(item.Name) == "" || item.Quantity <= 0 {
				return policy.CategoryRule{}, policy.Tier{}, dErrors.New(dErrors.CodeInvalidInput, "invalid item line")
			}
		}
	}
	return rule, tier, nil
}

// TransitionInput is the per-action payload of a Transition call.
type TransitionInput struct {
	Note     string
	Reason   string
	Override bool
}

// Transition applies one admin (or requester) action to a request.
func (s *Service) Transition(ctx context.Context, requestID id.RequestID, action lifecycle.Action, input TransitionInput) (*models.AidRequest, error) {
	ctx, span := tracer.Start(ctx, "service.Transition")
	defer span.End()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := authorizeTransition(actor, request, action); err != nil {
		return nil, err
	}

	out, err := s.applyAndPersist(ctx, request, action, lifecycle.Input{
		Actor:    actor,
		Note:     input.Note,
		Reason:   input.Reason,
		Override: input.Override,
	})
	if err != nil {
		s.recordTransition(string(action), "error")
		return nil, err
	}
	s.recordTransition(string(action), string(out.Status))
	s.fanOut(ctx, actor, out, action)
	return out, nil
}

// authorizeTransition enforces who may act: requesters answer their own
// clarifications; every other action needs an admin of the request's
// university.
func authorizeTransition(actor requestcontext.Actor, request *models.AidRequest, action lifecycle.Action) error {
	if action == lifecycle.ActionRespondClarify {
		if actor.Role != id.RoleRequester || actor.ID != request.RequesterID {
			return dErrors.New(dErrors.CodeForbidden, "only the requester may respond")
		}
		return nil
	}
	if actor.Role != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	if actor.University != request.University {
		return dErrors.New(dErrors.CodeForbidden, "admin of another university")
	}
	return nil
}

// applyAndPersist runs the machine and persists the outcome. Disbursing
// actions wrap request and donation writes in one SQL transaction when a
// database is configured; a lost optimistic update retries against a fresh
// snapshot after reverting any donation consumption the failed attempt
// committed, so a retry re-plans against the full pool instead of debiting
// it twice.
func (s *Service) applyAndPersist(ctx context.Context, request *models.AidRequest, action lifecycle.Action, input lifecycle.Input) (*models.AidRequest, error) {
	for attempt := 0; ; attempt++ {
		working := request.Clone()
		err := s.inTx(ctx, func(ctx context.Context) error {
			if err := s.machine.Apply(ctx, working, action, input); err != nil {
				return err
			}
			if err := s.requests.Update(ctx, working); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return sentinel.ErrConflict
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist request")
			}
			return nil
		})
		if err != nil {
			s.revertOrphanedDebits(ctx, request, working)
		}
		if errors.Is(err, sentinel.ErrConflict) && attempt < 2 {
			fresh, loadErr := s.loadRequest(ctx, request.ID)
			if loadErr != nil {
				return nil, loadErr
			}
			request = fresh
			continue
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "request was modified concurrently")
		}
		if err != nil {
			return nil, err
		}
		return working, nil
	}
}

// revertOrphanedDebits undoes donation consumption left behind by an attempt
// whose request write never landed. With a SQL transaction the rollback
// already covers the donation writes; the memory stores share no transaction,
// so the debits the machine committed must be reversed explicitly.
func (s *Service) revertOrphanedDebits(ctx context.Context, before, after *models.AidRequest) {
	if s.db != nil {
		return
	}
	if len(after.Disbursements) <= len(before.Disbursements) {
		return
	}
	if err := s.donations.RevertDebits(ctx, after.ID, requestcontext.Now(ctx)); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to revert donation debits",
			"request_id", after.ID,
			"error", err,
		)
	}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	if err := fn(tx.WithTx(ctx, t)); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}

// fanOut emits the best-effort side effects of a completed transition.
func (s *Service) fanOut(ctx context.Context, actor requestcontext.Actor, request *models.AidRequest, action lifecycle.Action) {
	event := audit.Event{
		Category:   audit.CategoryLifecycle,
		RequestID:  request.ID.String(),
		ActorID:    actor.ID.String(),
		University: request.University.String(),
	}

	switch request.Status {
	case models.StatusClarificationRequired:
		event.Action = audit.EventRequestClarified
		s.notify(ctx, request.RequesterID, "Clarification needed", request.ClarificationNote)
	case models.StatusPendingAdmin:
		event.Action = audit.EventRequestResponded
	case models.StatusRejected:
		event.Action = audit.EventRequestRejected
		event.Reason = request.RejectionReason
		s.notify(ctx, request.RequesterID, "Request rejected", request.RejectionReason)
	case models.StatusSecondApprovalPending:
		if action == lifecycle.ActionVerify {
			event.Action = audit.EventRequestVerified
		} else {
			event.Action = audit.EventFundsReserved
		}
		event.Category = audit.CategoryLedger
		event.Amount = request.ReservedAmount
	case models.StatusWaitingFunds:
		event.Action = audit.EventRequestWaiting
		shortfall := "insufficient funds in the pool"
		if request.Kind == models.KindEssentials {
			shortfall = "insufficient items in the pool"
		}
		s.notify(ctx, request.RequesterID, "Request waiting on funds",
			"Your request was approved for processing but cannot be covered yet: "+shortfall+".")
	case models.StatusApproved:
		event.Action = audit.EventRequestApproved
	case models.StatusDisbursed:
		event.Action = audit.EventRequestDisbursed
		event.Category = audit.CategoryLedger
		event.Amount = request.TargetAmount()
		s.recordDisbursement(string(request.Kind))
		s.notify(ctx, request.RequesterID, "Request disbursed",
			fmt.Sprintf("Your %s request has been disbursed.", request.Category))
		if request.Kind == models.KindFinancial {
			s.creditWallet(ctx, request)
		}
	default:
		event.Action = "request_" + string(request.Status)
	}

	ports.LogAudit(ctx, s.logger, s.publisher, event)
	s.refreshPoolGauge(ctx)
}

func (s *Service) creditWallet(ctx context.Context, request *models.AidRequest) {
	if s.wallet == nil {
		return
	}
	var total int64
	for _, entry := range request.Disbursements {
		total += entry.Amount
	}
	if err := s.wallet.Credit(ctx, request.RequesterID, total, request.ID); err != nil && s.logger != nil {
		// Best-effort: the ledger is already settled, ops reconcile later.
		s.logger.ErrorContext(ctx, "wallet credit failed",
			"request_id", request.ID,
			"amount", total,
			"error", err,
		)
	}
}

// DonationInput is the intake payload after external payment confirmation
// (financial) or a physical hand-in (essentials).
type DonationInput struct {
	Kind      models.RequestKind
	Amount    int64
	Items     []models.RequestedItem
	Reference string
}

// RecordDonation persists a new donation. Financial donations start pending
// until the gateway confirms; essentials join the matchable pool at once.
func (s *Service) RecordDonation(ctx context.Context, input DonationInput) (*models.Donation, error) {
	ctx, span := tracer.Start(ctx, "service.RecordDonation")
	defer span.End()

	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != id.RoleDonor && actor.Role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "donor or admin role required")
	}

	if !input.Kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid donation kind")
	}

	now := requestcontext.Now(ctx)
	donation := &models.Donation{
		ID:        id.NewDonationID(),
		DonorID:   actor.ID,
		Kind:      input.Kind,
		Reference: input.Reference,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if input.Kind == models.KindFinancial {
		if input.Amount <= 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
		}
		donation.Amount = input.Amount
		donation.Status = models.DonationPending
	} else {
		if len(input.Items) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "essentials donations need at least one item")
		}
		for _, item := range input.Items {
			if strings.TrimSpace(item.Name) == "" || item.Quantity <= 0 {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid item line")
			}
			donation.Items = append(donation.Items, models.DonationItem{
				Name:     item.Name,
				Quantity: item.Quantity,
			})
		}
		donation.Status = models.DonationConfirmed
	}

	if err := s.donations.Create(ctx, donation); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist donation")
	}

	ports.LogAudit(ctx, s.logger, s.publisher, audit.Event{
		Category:   audit.CategoryLedger,
		Action:     audit.EventDonationRecorded,
		DonationID: donation.ID.String(),
		ActorID:    actor.ID.String(),
		Amount:     donation.Amount,
	})
	return donation, nil
}

// ConfirmDonation handles the payment gateway's confirmation callback. The
// idempotency key deduplicates replays; a replay returns the donation
// unchanged.
func (s *Service) ConfirmDonation(ctx context.Context, reference, idempotencyKey string) (*models.Donation, error) {
	ctx, span := tracer.Start(ctx, "service.ConfirmDonation")
	defer span.End()

	if reference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reference is required")
	}

	donation, err := s.donations.GetByReference(ctx, reference)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown donation reference")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donation")
	}

	if s.idem != nil && idempotencyKey != "" {
		claimed, err := s.idem.Claim(ctx, idempotencyKey, confirmationTTL)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency check failed")
		}
		if !claimed {
			return donation, nil
		}
	}

	confirmed, err := s.donations.Confirm(ctx, donation.ID)
	if errors.Is(err, sentinel.ErrInvalidState) {
		// Already confirmed; the callback raced a replay.
		return donation, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm donation")
	}

	ports.LogAudit(ctx, s.logger, s.publisher, audit.Event{
		Category:   audit.CategoryLedger,
		Action:     audit.EventDonationConfirmed,
		DonationID: confirmed.ID.String(),
		Amount:     confirmed.Amount,
	})
	s.refreshPoolGauge(ctx)
	return confirmed, nil
}

// GetRequest returns a request visible to the caller: its requester, or an
// admin of its university.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.AidRequest, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.ID == request.RequesterID:
	case actor.Role == id.RoleAdmin && actor.University == request.University:
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to view this request")
	}
	return request, nil
}

// ListMyRequests returns the caller's own requests, newest first.
func (s *Service) ListMyRequests(ctx context.Context) ([]*models.AidRequest, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	out, err := s.requests.ListByRequester(ctx, actor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return out, nil
}

// ListUniversityRequests returns the admin's university queue, newest first.
func (s *Service) ListUniversityRequests(ctx context.Context) ([]*models.AidRequest, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	out, err := s.requests.ListByUniversity(ctx, actor.University)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return out, nil
}

// ListDonations returns the donation pool for admins.
func (s *Service) ListDonations(ctx context.Context) ([]*models.Donation, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	out, err := s.donations.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
	}
	return out, nil
}

// PoolSummary is a read-only projection of the ledger.
type PoolSummary struct {
	AvailableBalance int64          `json:"available_balance"`
	ReservedTotal    int64          `json:"reserved_total"`
	ItemsRemaining   map[string]int `json:"items_remaining"`
}

// Summary computes the current pool state from fresh snapshots.
func (s *Service) Summary(ctx context.Context) (*PoolSummary, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != id.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}

	available, err := s.ledger.AvailableBalance(ctx)
	if err != nil {
		return nil, err
	}
	reserved, err := s.requests.SumReserved(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum reservations")
	}

	essentials, err := s.donations.ListEligible(ctx, models.KindEssentials)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
	}
	remaining := make(map[string]int)
	for _, d := range essentials {
		for _, item := range d.Items {
			remaining[item.Name] += item.Remaining()
		}
	}

	return &PoolSummary{
		AvailableBalance: available,
		ReservedTotal:    reserved,
		ItemsRemaining:   remaining,
	}, nil
}

// RecheckWaiting retries reservation (or essentials matching) for every
// request stuck in waiting_funds, oldest verification first. Driven by the
// periodic sweep; failures on one request do not stop the rest.
func (s *Service) RecheckWaiting(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "service.RecheckWaiting")
	defer span.End()

	waiting, err := s.requests.ListByStatus(ctx, models.StatusWaitingFunds)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list waiting requests")
	}

	system := requestcontext.Actor{Role: id.RoleAdmin}
	for _, request := range waiting {
		out, err := s.applyAndPersist(ctx, request, lifecycle.ActionRecheckFunds, lifecycle.Input{Actor: system})
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "fund recheck failed",
					"request_id", request.ID,
					"error", err,
				)
			}
			continue
		}
		if out.Status != models.StatusWaitingFunds {
			s.recordTransition(string(lifecycle.ActionRecheckFunds), string(out.Status))
			s.fanOut(ctx, system, out, lifecycle.ActionRecheckFunds)
			s.notify(ctx, out.RequesterID, "Funds available",
				"Your request resumed processing after new donations arrived.")
		}
	}
	return nil
}

func (s *Service) loadRequest(ctx context.Context, requestID id.RequestID) (*models.AidRequest, error) {
	request, err := s.requests.Get(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return request, nil
}

func (s *Service) notify(ctx context.Context, recipient id.ActorID, subject, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipient, subject, message); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "notification failed",
			"recipient", recipient,
			"subject", subject,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	ports.LogAudit(ctx, s.logger, s.publisher, event)
}

func (s *Service) refreshPoolGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if available, err := s.ledger.AvailableBalance(ctx); err == nil {
		s.metrics.SetPoolAvailable(available)
	}
}

func (s *Service) recordSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(outcome)
	}
}

func (s *Service) recordTransition(action, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(action, outcome)
	}
}

func (s *Service) recordDisbursement(kind string) {
	if s.metrics != nil {
		s.metrics.RecordDisbursement(kind)
	}
}
