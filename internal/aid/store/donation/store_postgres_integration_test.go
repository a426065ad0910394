//go:build integration

package donation_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/store"
	"aidpool/internal/aid/store/donation"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/testutil/containers"
)

type PostgresDonationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *donation.PostgresStore
	now      time.Time
}

func TestPostgresDonationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDonationSuite))
}

func (s *PostgresDonationSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.store = donation.NewPostgres(s.postgres.DB)
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresDonationSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresDonationSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background(), "donations"))
}

func (s *PostgresDonationSuite) newFinancial(amount int64, reference string) *models.Donation {
	return &models.Donation{
		ID:        id.NewDonationID(),
		DonorID:   id.NewActorID(),
		Kind:      models.KindFinancial,
		Amount:    amount,
		Status:    models.DonationConfirmed,
		Reference: reference,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
}

func (s *PostgresDonationSuite) TestConfirmFlow() {
	ctx := context.Background()
	d := s.newFinancial(500, "pay-1")
	d.Status = models.DonationPending
	s.Require().NoError(s.store.Create(ctx, d))

	byRef, err := s.store.GetByReference(ctx, "pay-1")
	s.Require().NoError(err)
	s.Equal(d.ID, byRef.ID)

	confirmed, err := s.store.Confirm(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.DonationConfirmed, confirmed.Status)

	_, err = s.store.Confirm(ctx, d.ID)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.Confirm(ctx, id.NewDonationID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresDonationSuite) TestApplyDebitsRoundTrip() {
	ctx := context.Background()
	d := s.newFinancial(500, "")
	s.Require().NoError(s.store.Create(ctx, d))

	requestID := id.NewRequestID()
	err := s.store.ApplyDebits(ctx, requestID, []models.DonationDebit{
		{DonationID: d.ID, Amount: 200, Version: 1},
	}, s.now)
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(int64(300), got.RemainingAmount())
	s.Equal(models.DonationPartiallyDisbursed, got.Status)
	s.Require().Len(got.Ledger, 1)
	s.Equal(requestID, got.Ledger[0].RequestID)
}

func (s *PostgresDonationSuite) TestApplyDebitsStaleVersionRollsBack() {
	ctx := context.Background()
	a := s.newFinancial(500, "")
	b := s.newFinancial(500, "")
	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().NoError(s.store.Create(ctx, b))

	err := s.store.ApplyDebits(ctx, id.NewRequestID(), []models.DonationDebit{
		{DonationID: a.ID, Amount: 200, Version: 1},
		{DonationID: b.ID, Amount: 200, Version: 9},
	}, s.now)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(int64(500), got.RemainingAmount())
	s.Empty(got.Ledger)
}

func (s *PostgresDonationSuite) TestRevertDebitsRestoresSupply() {
	ctx := context.Background()
	a := s.newFinancial(500, "")
	b := s.newFinancial(500, "")
	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().NoError(s.store.Create(ctx, b))

	orphaned := id.NewRequestID()
	settled := id.NewRequestID()
	s.Require().NoError(s.store.ApplyDebits(ctx, settled, []models.DonationDebit{
		{DonationID: a.ID, Amount: 100, Version: 1},
	}, s.now))
	s.Require().NoError(s.store.ApplyDebits(ctx, orphaned, []models.DonationDebit{
		{DonationID: a.ID, Amount: 400, Version: 2},
		{DonationID: b.ID, Amount: 500, Version: 1},
	}, s.now))

	s.Require().NoError(s.store.RevertDebits(ctx, orphaned, s.now))

	gotA, err := s.store.Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(int64(400), gotA.RemainingAmount())
	s.Require().Len(gotA.Ledger, 1)
	s.Equal(settled, gotA.Ledger[0].RequestID)
	s.Equal(models.DonationPartiallyDisbursed, gotA.Status)

	gotB, err := s.store.Get(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(int64(500), gotB.RemainingAmount())
	s.Empty(gotB.Ledger)
	s.Equal(models.DonationConfirmed, gotB.Status)
	s.Equal(int64(3), gotB.Version)
}

func (s *PostgresDonationSuite) TestConcurrentDebitsNeverOverConsume() {
	ctx := context.Background()
	d := s.newFinancial(1000, "")
	s.Require().NoError(s.store.Create(ctx, d))

	// All workers plan from the same snapshot; row locking plus the version
	// guard lets exactly one win.
	const goroutines = 10
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.ApplyDebits(ctx, id.NewRequestID(), []models.DonationDebit{
				{DonationID: d.ID, Amount: 400, Version: 1},
			}, s.now)
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(int64(600), got.RemainingAmount())
}

func (s *PostgresDonationSuite) TestListEligibleFCFS() {
	ctx := context.Background()

	oldest := s.newFinancial(100, "")
	oldest.CreatedAt = s.now.Add(-2 * time.Hour)
	newest := s.newFinancial(100, "")
	pending := s.newFinancial(100, "")
	pending.Status = models.DonationPending
	pending.CreatedAt = s.now.Add(-3 * time.Hour)

	for _, d := range []*models.Donation{oldest, newest, pending} {
		s.Require().NoError(s.store.Create(ctx, d))
	}

	out, err := s.store.ListEligible(ctx, models.KindFinancial)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(oldest.ID, out[0].ID)
	s.Equal(newest.ID, out[1].ID)
}

func (s *PostgresDonationSuite) TestEssentialsItemsRoundTrip() {
	ctx := context.Background()
	d := &models.Donation{
		ID:      id.NewDonationID(),
		DonorID: id.NewActorID(),
		Kind:    models.KindEssentials,
		Items: []models.DonationItem{
			{Name: "blanket", Quantity: 5},
			{Name: "soap", Quantity: 10},
		},
		Status:    models.DonationConfirmed,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.Require().NoError(s.store.Create(ctx, d))

	err := s.store.ApplyDebits(ctx, id.NewRequestID(), []models.DonationDebit{
		{
			DonationID: d.ID,
			Items:      []models.RequestedItem{{Name: "blanket", Quantity: 2}},
			Version:    1,
		},
	}, s.now)
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(3, got.RemainingItem("blanket"))
	s.Equal(10, got.RemainingItem("soap"))
	s.Equal(models.DonationPartiallyDisbursed, got.Status)
}
