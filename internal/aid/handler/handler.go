// Package handler exposes the aid core over HTTP. Authentication and
// request-scoped context are middleware concerns; handlers decode, call the
// service, and translate domain errors to the JSON envelope.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/service"
	"aidpool/internal/aid/service/lifecycle"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/httputil"
	"aidpool/pkg/requestcontext"
)

// Service defines the aid operations the handler exposes.
type Service interface {
	SubmitRequest(ctx context.Context, input service.SubmitInput) (*models.AidRequest, error)
	Transition(ctx context.Context, requestID id.RequestID, action lifecycle.Action, input service.TransitionInput) (*models.AidRequest, error)
	GetRequest(ctx context.Context, requestID id.RequestID) (*models.AidRequest, error)
	ListMyRequests(ctx context.Context) ([]*models.AidRequest, error)
	ListUniversityRequests(ctx context.Context) ([]*models.AidRequest, error)
	RecordDonation(ctx context.Context, input service.DonationInput) (*models.Donation, error)
	ConfirmDonation(ctx context.Context, reference, idempotencyKey string) (*models.Donation, error)
	ListDonations(ctx context.Context) ([]*models.Donation, error)
	Summary(ctx context.Context) (*service.PoolSummary, error)
}

// Handler wires aid endpoints to the aid service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts aid endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/requests", h.HandleSubmit)
	r.Get("/requests/mine", h.HandleListMine)
	r.Get("/requests", h.HandleListUniversity)
	r.Get("/requests/{id}", h.HandleGet)
	r.Post("/requests/{id}/transition", h.HandleTransition)

	r.Post("/donations", h.HandleRecordDonation)
	r.Post("/donations/confirm", h.HandleConfirmDonation)
	r.Get("/donations", h.HandleListDonations)

	r.Get("/pool/summary", h.HandleSummary)
}

// HandleSubmit handles POST /requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, err := httputil.Decode[SubmitRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	request, err := h.service.SubmitRequest(ctx, req.ToInput())
	if err != nil {
		h.logger.ErrorContext(ctx, "request submission failed",
			"request_id", requestcontext.RequestID(ctx),
			"category", req.Category,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "request submitted",
		"request_id", requestcontext.RequestID(ctx),
		"aid_request_id", request.ID,
		"status", string(request.Status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(request))
}

// HandleTransition handles POST /requests/{id}/transition.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := httputil.Decode[TransitionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := lifecycle.ParseAction(req.Action)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	request, err := h.service.Transition(ctx, requestID, action, service.TransitionInput{
		Note:     req.Note,
		Reason:   req.Reason,
		Override: req.Override,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "request transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"aid_request_id", requestID,
			"action", req.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

// HandleGet handles GET /requests/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	request, err := h.service.GetRequest(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(request))
}

// HandleListMine handles GET /requests/mine.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListMyRequests(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequests(requests))
}

// HandleListUniversity handles GET /requests, the admin review queue.
func (h *Handler) HandleListUniversity(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListUniversityRequests(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequests(requests))
}

// HandleRecordDonation handles POST /donations.
func (h *Handler) HandleRecordDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[DonationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	donation, err := h.service.RecordDonation(ctx, req.ToInput())
	if err != nil {
		h.logger.ErrorContext(ctx, "donation intake failed",
			"request_id", requestcontext.RequestID(ctx),
			"kind", req.Kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "donation recorded",
		"request_id", requestcontext.RequestID(ctx),
		"donation_id", donation.ID,
		"status", string(donation.Status),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromDonation(donation))
}

// HandleConfirmDonation handles POST /donations/confirm, the payment
// gateway's callback. The Idempotency-Key header takes precedence over the
// body field.
func (h *Handler) HandleConfirmDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[ConfirmDonationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	donation, err := h.service.ConfirmDonation(ctx, req.Reference, key)
	if err != nil {
		h.logger.ErrorContext(ctx, "donation confirmation failed",
			"request_id", requestcontext.RequestID(ctx),
			"reference", req.Reference,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDonation(donation))
}

// HandleListDonations handles GET /donations.
func (h *Handler) HandleListDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.service.ListDonations(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDonations(donations))
}

// HandleSummary handles GET /pool/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}
