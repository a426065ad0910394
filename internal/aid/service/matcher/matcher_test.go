package matcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/store/donation"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/requestcontext"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newMatcher(t *testing.T) (*Matcher, *donation.MemoryStore) {
	t.Helper()
	donations := donation.NewMemory()
	m, err := New(donations)
	require.NoError(t, err)
	return m, donations
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), testNow)
}

func seedFinancial(t *testing.T, store *donation.MemoryStore, amount int64, createdAt time.Time) id.DonationID {
	t.Helper()
	d := &models.Donation{
		ID:        id.NewDonationID(),
		DonorID:   id.NewActorID(),
		Kind:      models.KindFinancial,
		Amount:    amount,
		Status:    models.DonationConfirmed,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, store.Create(context.Background(), d))
	return d.ID
}

func seedEssentials(t *testing.T, store *donation.MemoryStore, items []models.DonationItem, createdAt time.Time) id.DonationID {
	t.Helper()
	d := &models.Donation{
		ID:        id.NewDonationID(),
		DonorID:   id.NewActorID(),
		Kind:      models.KindEssentials,
		Items:     items,
		Status:    models.DonationConfirmed,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, store.Create(context.Background(), d))
	return d.ID
}

func financialRequest(amount int64) *models.AidRequest {
	return &models.AidRequest{
		ID:             id.NewRequestID(),
		RequesterID:    id.NewActorID(),
		Category:       models.CategoryFood,
		Kind:           models.KindFinancial,
		AmountMax:      amount,
		ReservedAmount: amount,
		Status:         models.StatusSecondApprovalPending,
	}
}

func TestDisburseFinancialSplitsAcrossDonationsFCFS(t *testing.T) {
	m, store := newMatcher(t)

	oldest := seedFinancial(t, store, 300, testNow.Add(-3*time.Hour))
	middle := seedFinancial(t, store, 300, testNow.Add(-2*time.Hour))
	newest := seedFinancial(t, store, 300, testNow.Add(-1*time.Hour))

	req := financialRequest(500)
	require.NoError(t, m.Disburse(testCtx(), req))

	// Oldest fully consumed, middle partially, newest untouched.
	require.Len(t, req.Disbursements, 2)
	assert.Equal(t, oldest, req.Disbursements[0].DonationID)
	assert.Equal(t, int64(300), req.Disbursements[0].Amount)
	assert.Equal(t, middle, req.Disbursements[1].DonationID)
	assert.Equal(t, int64(200), req.Disbursements[1].Amount)

	first, err := store.Get(context.Background(), oldest)
	require.NoError(t, err)
	assert.Equal(t, models.DonationDisbursed, first.Status)
	assert.Zero(t, first.RemainingAmount())

	second, err := store.Get(context.Background(), middle)
	require.NoError(t, err)
	assert.Equal(t, models.DonationPartiallyDisbursed, second.Status)
	assert.Equal(t, int64(100), second.RemainingAmount())

	third, err := store.Get(context.Background(), newest)
	require.NoError(t, err)
	assert.Equal(t, models.DonationConfirmed, third.Status)
	assert.Equal(t, int64(300), third.RemainingAmount())
}

func TestDisburseFinancialInsufficientSupply(t *testing.T) {
	m, store := newMatcher(t)
	seedFinancial(t, store, 100, testNow)

	req := financialRequest(500)
	err := m.Disburse(testCtx(), req)
	require.ErrorIs(t, err, sentinel.ErrInsufficient)

	// Nothing consumed and nothing recorded on the request.
	assert.Empty(t, req.Disbursements)
	d, err := store.ListEligible(context.Background(), models.KindFinancial)
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, int64(100), d[0].RemainingAmount())
}

func TestDisburseFinancialTieBreakIsDeterministic(t *testing.T) {
	m, store := newMatcher(t)

	// Same creation instant: the lexically smaller donation ID wins.
	a := seedFinancial(t, store, 400, testNow)
	b := seedFinancial(t, store, 400, testNow)
	expected := a
	if b.String() < a.String() {
		expected = b
	}

	req := financialRequest(400)
	require.NoError(t, m.Disburse(testCtx(), req))
	require.Len(t, req.Disbursements, 1)
	assert.Equal(t, expected, req.Disbursements[0].DonationID)
}

func TestDisburseEssentialsExactSingleDonation(t *testing.T) {
	m, store := newMatcher(t)

	// Earlier donation cannot cover the blanket line; the later one can.
	seedEssentials(t, store, []models.DonationItem{
		{Name: "blanket", Quantity: 1},
		{Name: "soap", Quantity: 10},
	}, testNow.Add(-2*time.Hour))
	full := seedEssentials(t, store, []models.DonationItem{
		{Name: "blanket", Quantity: 5},
		{Name: "soap", Quantity: 5},
	}, testNow.Add(-1*time.Hour))

	req := &models.AidRequest{
		ID:          id.NewRequestID(),
		RequesterID: id.NewActorID(),
		Category:    models.CategoryEmergency,
		Kind:        models.KindEssentials,
		Items: []models.RequestedItem{
			{Name: "blanket", Quantity: 2},
			{Name: "soap", Quantity: 4},
		},
		Status: models.StatusApproved,
	}
	require.NoError(t, m.Disburse(testCtx(), req))

	require.Len(t, req.Disbursements, 1)
	assert.Equal(t, full, req.Disbursements[0].DonationID)
	assert.Equal(t, []models.RequestedItem{
		{Name: "blanket", Quantity: 2},
		{Name: "soap", Quantity: 4},
	}, req.Disbursements[0].Items)

	d, err := store.Get(context.Background(), full)
	require.NoError(t, err)
	assert.Equal(t, models.DonationPartiallyDisbursed, d.Status)
	assert.Equal(t, 3, d.RemainingItem("blanket"))
	assert.Equal(t, 1, d.RemainingItem("soap"))
}

func TestDisburseEssentialsNeverSplits(t *testing.T) {
	m, store := newMatcher(t)

	// Combined the two donations cover the ask; individually neither does.
	seedEssentials(t, store, []models.DonationItem{{Name: "blanket", Quantity: 1}}, testNow.Add(-2*time.Hour))
	seedEssentials(t, store, []models.DonationItem{{Name: "blanket", Quantity: 1}}, testNow.Add(-1*time.Hour))

	req := &models.AidRequest{
		ID:     id.NewRequestID(),
		Kind:   models.KindEssentials,
		Items:  []models.RequestedItem{{Name: "blanket", Quantity: 2}},
		Status: models.StatusApproved,
	}
	err := m.Disburse(testCtx(), req)
	require.ErrorIs(t, err, sentinel.ErrInsufficient)
	assert.Empty(t, req.Disbursements)
}

func TestDisburseConcurrentNeverOverConsumes(t *testing.T) {
	m, store := newMatcher(t)
	seedFinancial(t, store, 1000, testNow)

	// Ten competing 300-unit requests against a 1000-unit pool: exactly
	// three can win, everyone else degrades to insufficiency.
	const workers = 10
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Disburse(testCtx(), financialRequest(300))
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, sentinel.ErrInsufficient)
		}
	}
	assert.Equal(t, 3, wins)

	remaining, err := store.ListEligible(context.Background(), models.KindFinancial)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(100), remaining[0].RemainingAmount())
}

type recordingObserver struct {
	mu           sync.Mutex
	observations int
}

func (r *recordingObserver) Observe(float64) {
	r.mu.Lock()
	r.observations++
	r.mu.Unlock()
}

func TestDisburseObservesMatchDuration(t *testing.T) {
	donations := donation.NewMemory()
	obs := &recordingObserver{}
	m, err := New(donations, WithDurationObserver(obs))
	require.NoError(t, err)

	seedFinancial(t, donations, 300, testNow)

	// Both outcomes count as a matching attempt.
	require.NoError(t, m.Disburse(testCtx(), financialRequest(300)))
	require.ErrorIs(t, m.Disburse(testCtx(), financialRequest(300)), sentinel.ErrInsufficient)

	assert.Equal(t, 2, obs.observations)
}
