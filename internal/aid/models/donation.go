package models

import (
	"time"

	id "aidpool/pkg/domain"
)

// DonationStatus is derived from consumption: a donation starts pending
// until the payment gateway confirms it, then moves through
// partially_disbursed to disbursed as the pool consumes it.
type DonationStatus string

const (
	DonationPending            DonationStatus = "pending"
	DonationConfirmed          DonationStatus = "confirmed"
	DonationPartiallyDisbursed DonationStatus = "partially_disbursed"
	DonationDisbursed          DonationStatus = "disbursed"
)

// DonationItem is one declared item line plus its consumed quantity.
type DonationItem struct {
	Name              string `json:"name"`
	Quantity          int    `json:"quantity"`
	DisbursedQuantity int    `json:"disbursed_quantity"`
}

// Remaining is the undisbursed quantity of this line.
func (i DonationItem) Remaining() int { return i.Quantity - i.DisbursedQuantity }

// DonationLedgerEntry records one consumption of this donation by a request.
// The ledger is append-only: consumption never decreases.
type DonationLedgerEntry struct {
	RequestID id.RequestID    `json:"request_id"`
	Amount    int64           `json:"amount,omitempty"`
	Items     []RequestedItem `json:"items,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Donation is one contributed resource: divisible currency or a bag of
// named discrete items.
type Donation struct {
	ID      id.DonationID
	DonorID id.ActorID
	Kind    RequestKind

	// Financial sizing. DisbursedAmount is monotonically non-decreasing
	// and never exceeds Amount.
	Amount          int64
	DisbursedAmount int64

	// Essentials sizing.
	Items []DonationItem

	Status DonationStatus
	// Reference correlates gateway confirmation callbacks to this donation.
	Reference string

	Ledger []DonationLedgerEntry

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Eligible reports whether the donation may fund requests.
func (d *Donation) Eligible() bool {
	return d.Status == DonationConfirmed || d.Status == DonationPartiallyDisbursed
}

// RemainingAmount is the unconsumed currency of a financial donation.
func (d *Donation) RemainingAmount() int64 { return d.Amount - d.DisbursedAmount }

// RemainingItem is the unconsumed quantity for an item name, 0 if absent.
func (d *Donation) RemainingItem(name string) int {
	for _, item := range d.Items {
		if item.Name == name {
			return item.Remaining()
		}
	}
	return 0
}

// Covers reports whether this donation alone satisfies every required item
// line. Essentials matching never splits a request across donations.
func (d *Donation) Covers(required map[string]int) bool {
	for name, qty := range required {
		if d.RemainingItem(name) < qty {
			return false
		}
	}
	return true
}

// FullyConsumed reports whether nothing is left to disburse.
func (d *Donation) FullyConsumed() bool {
	if d.Kind == KindFinancial {
		return d.RemainingAmount() == 0
	}
	for _, item := range d.Items {
		if item.Remaining() > 0 {
			return false
		}
	}
	return true
}

// RecalcStatus derives the post-consumption status. Pending donations stay
// pending regardless of bookkeeping.
func (d *Donation) RecalcStatus() {
	if d.Status == DonationPending {
		return
	}
	switch {
	case d.FullyConsumed():
		d.Status = DonationDisbursed
	case d.consumedAny():
		d.Status = DonationPartiallyDisbursed
	default:
		d.Status = DonationConfirmed
	}
}

func (d *Donation) consumedAny() bool {
	if d.DisbursedAmount > 0 {
		return true
	}
	for _, item := range d.Items {
		if item.DisbursedQuantity > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never hand out aliased slices.
func (d *Donation) Clone() *Donation {
	out := *d
	out.Items = append([]DonationItem(nil), d.Items...)
	out.Ledger = make([]DonationLedgerEntry, len(d.Ledger))
	for i, e := range d.Ledger {
		out.Ledger[i] = e
		out.Ledger[i].Items = append([]RequestedItem(nil), e.Items...)
	}
	return &out
}

// DonationDebit is one planned consumption the matcher asks the store to
// apply. Version pins the snapshot the plan was computed from so a
// concurrent consumer forces a re-match instead of a double-spend.
type DonationDebit struct {
	DonationID id.DonationID
	Amount     int64
	Items      []RequestedItem
	Version    int64
}
