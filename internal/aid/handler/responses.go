package handler

import (
	"time"

	"aidpool/internal/aid/models"
)

// RequestResponse is the wire shape of an aid request.
type RequestResponse struct {
	ID             string        `json:"id"`
	RequesterID    string        `json:"requester_id"`
	University     string        `json:"university"`
	Category       string        `json:"category"`
	Kind           string        `json:"kind"`
	Tier           string        `json:"tier,omitempty"`
	AmountMin      int64         `json:"amount_min,omitempty"`
	AmountMax      int64         `json:"amount_max,omitempty"`
	Items          []RequestItem `json:"items,omitempty"`
	Justification  string        `json:"justification,omitempty"`
	Status         string        `json:"status"`
	PrecheckReason string        `json:"precheck_reason,omitempty"`

	OverrideRequired bool `json:"override_required,omitempty"`
	OverrideApproved bool `json:"override_approved,omitempty"`

	ClarificationNote     string `json:"clarification_note,omitempty"`
	ClarificationResponse string `json:"clarification_response,omitempty"`
	RejectionReason       string `json:"rejection_reason,omitempty"`

	ReservedAmount int64      `json:"reserved_amount,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	DisbursedAt    *time.Time `json:"disbursed_at,omitempty"`

	Disbursements []DisbursementResponse `json:"disbursements,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisbursementResponse is one consumed-donation line of a disbursement.
type DisbursementResponse struct {
	DonationID string        `json:"donation_id"`
	Amount     int64         `json:"amount,omitempty"`
	Items      []RequestItem `json:"items,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

func FromRequest(request *models.AidRequest) RequestResponse {
	out := RequestResponse{
		ID:             request.ID.String(),
		RequesterID:    request.RequesterID.String(),
		University:     request.University.String(),
		Category:       string(request.Category),
		Kind:           string(request.Kind),
		Tier:           request.TierLabel,
		AmountMin:      request.AmountMin,
		AmountMax:      request.AmountMax,
		Items:          toItems(request.Items),
		Justification:  request.Justification,
		Status:         string(request.Status),
		PrecheckReason: request.PrecheckReason,

		OverrideRequired: request.OverrideRequired,
		OverrideApproved: request.OverrideApproved,

		ClarificationNote:     request.ClarificationNote,
		ClarificationResponse: request.ClarificationResponse,
		RejectionReason:       request.RejectionReason,

		ReservedAmount: request.ReservedAmount,
		VerifiedAt:     request.VerifiedAt,
		DisbursedAt:    request.DisbursedAt,

		CreatedAt: request.CreatedAt,
		UpdatedAt: request.UpdatedAt,
	}
	for _, entry := range request.Disbursements {
		out.Disbursements = append(out.Disbursements, DisbursementResponse{
			DonationID: entry.DonationID.String(),
			Amount:     entry.Amount,
			Items:      toItems(entry.Items),
			Timestamp:  entry.Timestamp,
		})
	}
	return out
}

func FromRequests(requests []*models.AidRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, FromRequest(request))
	}
	return out
}

// DonationResponse is the wire shape of a donation.
type DonationResponse struct {
	ID              string         `json:"id"`
	DonorID         string         `json:"donor_id"`
	Kind            string         `json:"kind"`
	Amount          int64          `json:"amount,omitempty"`
	DisbursedAmount int64          `json:"disbursed_amount,omitempty"`
	Items           []DonationItem `json:"items,omitempty"`
	Status          string         `json:"status"`
	Reference       string         `json:"reference,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// DonationItem is one item line of an essentials donation, with how much of
// it has already been disbursed.
type DonationItem struct {
	Name              string `json:"name"`
	Quantity          int    `json:"quantity"`
	DisbursedQuantity int    `json:"disbursed_quantity,omitempty"`
}

func FromDonation(donation *models.Donation) DonationResponse {
	out := DonationResponse{
		ID:              donation.ID.String(),
		DonorID:         donation.DonorID.String(),
		Kind:            string(donation.Kind),
		Amount:          donation.Amount,
		DisbursedAmount: donation.DisbursedAmount,
		Status:          string(donation.Status),
		Reference:       donation.Reference,
		CreatedAt:       donation.CreatedAt,
	}
	for _, item := range donation.Items {
		out.Items = append(out.Items, DonationItem{
			Name:              item.Name,
			Quantity:          item.Quantity,
			DisbursedQuantity: item.DisbursedQuantity,
		})
	}
	return out
}

func FromDonations(donations []*models.Donation) []DonationResponse {
	out := make([]DonationResponse, 0, len(donations))
	for _, donation := range donations {
		out = append(out, FromDonation(donation))
	}
	return out
}

func toItems(items []models.RequestedItem) []RequestItem {
	out := make([]RequestItem, 0, len(items))
	for _, item := range items {
		out = append(out, RequestItem{Name: item.Name, Quantity: item.Quantity})
	}
	return out
}
