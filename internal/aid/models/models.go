// Package models defines the aid core's entities: requests for pooled aid
// and the donations that fund them. Amounts are whole currency units;
// essentials are named discrete item quantities.
package models

import (
	"time"

	id "aidpool/pkg/domain"
)

// Category buckets requests for quota enforcement.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryAccommodation Category = "accommodation"
	CategoryMedical       Category = "medical"
	CategoryAcademic      Category = "academic"
	CategoryEmergency     Category = "emergency"
)

// IsValid checks the category is one of the supported enum values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryFood, CategoryAccommodation, CategoryMedical, CategoryAcademic, CategoryEmergency:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// RequestKind distinguishes divisible currency asks from discrete item asks.
type RequestKind string

const (
	KindFinancial  RequestKind = "financial"
	KindEssentials RequestKind = "essentials"
)

// IsValid checks the kind is one of the supported enum values.
func (k RequestKind) IsValid() bool {
	return k == KindFinancial || k == KindEssentials
}

// RequestStatus is the authoritative lifecycle state of a request. Legal
// moves between statuses are owned by the lifecycle package's transition
// table; nothing else may flip a status.
type RequestStatus string

const (
	StatusPrecheckFailed        RequestStatus = "precheck_failed"
	StatusPendingAdmin          RequestStatus = "pending_admin"
	StatusClarificationRequired RequestStatus = "clarification_required"
	// StatusVerified is transient: verification immediately attempts a fund
	// reservation and the request settles in second_approval_pending or
	// waiting_funds within the same operation.
	StatusVerified              RequestStatus = "verified"
	StatusSecondApprovalPending RequestStatus = "second_approval_pending"
	StatusWaitingFunds          RequestStatus = "waiting_funds"
	StatusApproved              RequestStatus = "approved"
	StatusRejected              RequestStatus = "rejected"
	StatusDisbursed             RequestStatus = "disbursed"
)

// IsTerminal reports whether no further transitions are legal.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusPrecheckFailed || s == StatusRejected || s == StatusDisbursed
}

// IsValid checks the status is one of the supported enum values.
func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPrecheckFailed, StatusPendingAdmin, StatusClarificationRequired,
		StatusVerified, StatusSecondApprovalPending, StatusWaitingFunds,
		StatusApproved, StatusRejected, StatusDisbursed:
		return true
	}
	return false
}

// RequestedItem is one (name, quantity) line of an essentials ask.
type RequestedItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// DisbursementEntry records one consumption of a donation by this request.
// Financial entries carry Amount; essentials entries carry Items.
type DisbursementEntry struct {
	DonationID id.DonationID   `json:"donation_id"`
	Amount     int64           `json:"amount,omitempty"`
	Items      []RequestedItem `json:"items,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// AidRequest is one beneficiary ask against the pool.
type AidRequest struct {
	ID          id.RequestID
	RequesterID id.ActorID
	University  id.University
	Category    Category
	Kind        RequestKind

	// Financial sizing: the tier bracket the requester selected.
	// AmountMax is the committed request size.
	TierLabel string
	AmountMin int64
	AmountMax int64

	// Essentials sizing.
	Items []RequestedItem

	Justification string

	Status         RequestStatus
	PrecheckReason string
	// OverrideRequired marks a limit failure admitted under the emergency
	// override rule; an admin must explicitly approve it at verification.
	OverrideRequired bool
	OverrideApproved bool

	ClarificationNote     string
	ClarificationResponse string
	RejectionReason       string

	VerifiedBy id.ActorID
	VerifiedAt *time.Time

	SecondApprovedBy id.ActorID
	SecondApprovedAt *time.Time

	// ReservedAmount is an advisory aggregate hold, not a lock on specific
	// donations. It counts against the pool only while the request sits in
	// second_approval_pending.
	ReservedAmount int64
	ReservedAt     *time.Time

	DisbursedBy   id.ActorID
	DisbursedAt   *time.Time
	Disbursements []DisbursementEntry

	CreatedAt time.Time
	UpdatedAt time.Time
	// Version guards read-modify-write cycles in the stores.
	Version int64
}

// TargetAmount is the committed size of a financial request.
func (r *AidRequest) TargetAmount() int64 { return r.AmountMax }

// RequiredItems returns the (name -> quantity) demand of an essentials
// request, merging duplicate lines.
func (r *AidRequest) RequiredItems() map[string]int {
	required := make(map[string]int, len(r.Items))
	for _, item := range r.Items {
		required[item.Name] += item.Quantity
	}
	return required
}

// Clone returns a deep copy so stores never hand out aliased slices.
func (r *AidRequest) Clone() *AidRequest {
	out := *r
	out.Items = append([]RequestedItem(nil), r.Items...)
	out.Disbursements = make([]DisbursementEntry, len(r.Disbursements))
	for i, d := range r.Disbursements {
		out.Disbursements[i] = d
		out.Disbursements[i].Items = append([]RequestedItem(nil), d.Items...)
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		out.VerifiedAt = &t
	}
	if r.SecondApprovedAt != nil {
		t := *r.SecondApprovedAt
		out.SecondApprovedAt = &t
	}
	if r.ReservedAt != nil {
		t := *r.ReservedAt
		out.ReservedAt = &t
	}
	if r.DisbursedAt != nil {
		t := *r.DisbursedAt
		out.DisbursedAt = &t
	}
	return &out
}
