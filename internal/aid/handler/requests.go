package handler

import (
	"aidpool/internal/aid/models"
	"aidpool/internal/aid/service"
)

// SubmitRequest is the POST /requests body.
type SubmitRequest struct {
	Category      string        `json:"category"`
	Kind          string        `json:"kind"`
	Tier          string        `json:"tier,omitempty"`
	Items         []RequestItem `json:"items,omitempty"`
	Justification string        `json:"justification,omitempty"`
}

// RequestItem is one item line of an essentials submission or donation.
type RequestItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (r SubmitRequest) ToInput() service.SubmitInput {
	input := service.SubmitInput{
		Category:      models.Category(r.Category),
		Kind:          models.RequestKind(r.Kind),
		TierLabel:     r.Tier,
		Justification: r.Justification,
	}
	for _, item := range r.Items {
		input.Items = append(input.Items, models.RequestedItem{
			Name:     item.Name,
			Quantity: item.Quantity,
		})
	}
	return input
}

// TransitionRequest is the POST /requests/{id}/transition body.
type TransitionRequest struct {
	Action   string `json:"action"`
	Note     string `json:"note,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// DonationRequest is the POST /donations body.
type DonationRequest struct {
	Kind      string        `json:"kind"`
	Amount    int64         `json:"amount,omitempty"`
	Items     []RequestItem `json:"items,omitempty"`
	Reference string        `json:"reference,omitempty"`
}

func (r DonationRequest) ToInput() service.DonationInput {
	input := service.DonationInput{
		Kind:      models.RequestKind(r.Kind),
		Amount:    r.Amount,
		Reference: r.Reference,
	}
	for _, item := range r.Items {
		input.Items = append(input.Items, models.RequestedItem{
			Name:     item.Name,
			Quantity: item.Quantity,
		})
	}
	return input
}

// ConfirmDonationRequest is the POST /donations/confirm body, sent by the
// payment gateway callback.
type ConfirmDonationRequest struct {
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
