package donation

import (
	"context"
	"sort"
	"sync"
	"time"

	"aidpool/internal/aid/models"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/sentinel"
)

// MemoryStore keeps donations in memory. ApplyDebits runs under the store
// mutex, so concurrent matches serialize and the version guard catches
// plans computed from stale snapshots.
type MemoryStore struct {
	mu        sync.RWMutex
	donations map[id.DonationID]*models.Donation
}

func NewMemory() *MemoryStore {
	return &MemoryStore{donations: make(map[id.DonationID]*models.Donation)}
}

func (s *MemoryStore) Create(_ context.Context, donation *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.donations[donation.ID]; exists {
		return sentinel.ErrConflict
	}
	donation.Version = 1
	s.donations[donation.ID] = donation.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, donationID id.DonationID) (*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	donation, ok := s.donations[donationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return donation.Clone(), nil
}

func (s *MemoryStore) GetByReference(_ context.Context, reference string) (*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.donations {
		if d.Reference != "" && d.Reference == reference {
			return d.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Confirm(_ context.Context, donationID id.DonationID) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	donation, ok := s.donations[donationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if donation.Status != models.DonationPending {
		return nil, sentinel.ErrInvalidState
	}
	donation.Status = models.DonationConfirmed
	donation.Version++
	return donation.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Donation, 0, len(s.donations))
	for _, d := range s.donations {
		out = append(out, d.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListEligible(_ context.Context, kind models.RequestKind) ([]*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Donation
	for _, d := range s.donations {
		if d.Kind == kind && d.Eligible() {
			out = append(out, d.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyDebits validates every debit against current state before touching
// anything, so a failure leaves no partial consumption.
func (s *MemoryStore) ApplyDebits(_ context.Context, requestID id.RequestID, debits []models.DonationDebit, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validation pass.
	for _, debit := range debits {
		donation, ok := s.donations[debit.DonationID]
		if !ok {
			return sentinel.ErrNotFound
		}
		if donation.Version != debit.Version {
			return sentinel.ErrConflict
		}
		if !donation.Eligible() {
			return sentinel.ErrInvalidState
		}
		if debit.Amount > 0 && donation.RemainingAmount() < debit.Amount {
			return sentinel.ErrInsufficient
		}
		for _, item := range debit.Items {
			if donation.RemainingItem(item.Name) < item.Quantity {
				return sentinel.ErrInsufficient
			}
		}
	}

	// Apply pass.
	for _, debit := range debits {
		donation := s.donations[debit.DonationID]
		donation.DisbursedAmount += debit.Amount
		for _, item := range debit.Items {
			for i := range donation.Items {
				if donation.Items[i].Name == item.Name {
					donation.Items[i].DisbursedQuantity += item.Quantity
				}
			}
		}
		donation.Ledger = append(donation.Ledger, models.DonationLedgerEntry{
			RequestID: requestID,
			Amount:    debit.Amount,
			Items:     append([]models.RequestedItem(nil), debit.Items...),
			Timestamp: now,
		})
		donation.RecalcStatus()
		donation.UpdatedAt = now
		donation.Version++
	}
	return nil
}

// RevertDebits walks every donation and strips the ledger entries recorded
// for the request, restoring the amounts and item quantities they consumed.
func (s *MemoryStore) RevertDebits(_ context.Context, requestID id.RequestID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, donation := range s.donations {
		kept := donation.Ledger[:0]
		changed := false
		for _, entry := range donation.Ledger {
			if entry.RequestID != requestID {
				kept = append(kept, entry)
				continue
			}
			donation.DisbursedAmount -= entry.Amount
			for _, item := range entry.Items {
				for i := range donation.Items {
					if donation.Items[i].Name == item.Name {
						donation.Items[i].DisbursedQuantity -= item.Quantity
					}
				}
			}
			changed = true
		}
		if !changed {
			continue
		}
		donation.Ledger = kept
		donation.RecalcStatus()
		donation.UpdatedAt = now
		donation.Version++
	}
	return nil
}
