package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"aidpool/internal/aid/models"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/sentinel"
)

// MemoryStore keeps requests in memory. Used in tests and single-node
// deployments without postgres. All reads return deep copies.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.AidRequest
}

func NewMemory() *MemoryStore {
	return &MemoryStore{requests: make(map[id.RequestID]*models.AidRequest)}
}

func (s *MemoryStore) Create(_ context.Context, request *models.AidRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	request.Version = 1
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, requestID id.RequestID) (*models.AidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return request.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, request *models.AidRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[request.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != request.Version {
		return sentinel.ErrConflict
	}
	request.Version++
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *MemoryStore) ListByRequester(_ context.Context, requester id.ActorID) ([]*models.AidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AidRequest
	for _, r := range s.requests {
		if r.RequesterID == requester {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListByUniversity(_ context.Context, university id.University) ([]*models.AidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AidRequest
	for _, r := range s.requests {
		if r.University == university {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.RequestStatus) ([]*models.AidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AidRequest
	for _, r := range s.requests {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	// Oldest verification first so the recheck sweep is FCFS over waiters.
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if out[i].VerifiedAt != nil {
			ti = *out[i].VerifiedAt
		}
		if out[j].VerifiedAt != nil {
			tj = *out[j].VerifiedAt
		}
		return ti.Before(tj)
	})
	return out, nil
}

func (s *MemoryStore) ListByRequesterCategorySince(_ context.Context, requester id.ActorID, category models.Category, since time.Time) ([]*models.AidRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AidRequest
	for _, r := range s.requests {
		if r.RequesterID == requester && r.Category == category && !r.CreatedAt.Before(since) {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) SumReserved(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, r := range s.requests {
		if r.Kind == models.KindFinancial && r.Status == models.StatusSecondApprovalPending {
			total += r.ReservedAmount
		}
	}
	return total, nil
}

func sortNewestFirst(requests []*models.AidRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID.String() > requests[j].ID.String()
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}
