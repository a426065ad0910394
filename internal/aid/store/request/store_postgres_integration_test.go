//go:build integration

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/store"
	"aidpool/internal/aid/store/request"
	id "aidpool/pkg/domain"
	"aidpool/pkg/platform/sentinel"
	"aidpool/pkg/testutil/containers"
)

type PostgresRequestSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *request.PostgresStore
	now      time.Time
}

func TestPostgresRequestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRequestSuite))
}

func (s *PostgresRequestSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.store = request.NewPostgres(s.postgres.DB)
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresRequestSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *PostgresRequestSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background(), "aid_requests"))
}

func (s *PostgresRequestSuite) newRequest(requester id.ActorID) *models.AidRequest {
	return &models.AidRequest{
		ID:            id.NewRequestID(),
		RequesterID:   requester,
		University:    "state-u",
		Category:      models.CategoryFood,
		Kind:          models.KindFinancial,
		TierLabel:     "1-250",
		AmountMin:     1,
		AmountMax:     250,
		Justification: "groceries",
		Status:        models.StatusPendingAdmin,
		CreatedAt:     s.now,
		UpdatedAt:     s.now,
	}
}

func (s *PostgresRequestSuite) TestRoundTrip() {
	ctx := context.Background()
	req := s.newRequest(id.NewActorID())
	verifiedAt := s.now.Add(time.Hour)
	req.VerifiedBy = id.NewActorID()
	req.VerifiedAt = &verifiedAt
	req.Disbursements = []models.DisbursementEntry{
		{DonationID: id.NewDonationID(), Amount: 250, Timestamp: s.now},
	}

	s.Require().NoError(s.store.Create(ctx, req))

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.RequesterID, got.RequesterID)
	s.Equal(models.StatusPendingAdmin, got.Status)
	s.Equal(req.VerifiedBy, got.VerifiedBy)
	s.Require().NotNil(got.VerifiedAt)
	s.True(got.VerifiedAt.Equal(verifiedAt))
	s.Require().Len(got.Disbursements, 1)
	s.Equal(int64(250), got.Disbursements[0].Amount)

	_, err = s.store.Get(ctx, id.NewRequestID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRequestSuite) TestUpdateVersionGuard() {
	ctx := context.Background()
	req := s.newRequest(id.NewActorID())
	s.Require().NoError(s.store.Create(ctx, req))

	first, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	second, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)

	first.Status = models.StatusClarificationRequired
	s.Require().NoError(s.store.Update(ctx, first))

	second.Status = models.StatusRejected
	err = s.store.Update(ctx, second)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClarificationRequired, got.Status)
}

func (s *PostgresRequestSuite) TestQuotaWindowQuery() {
	ctx := context.Background()
	requester := id.NewActorID()

	inside := s.newRequest(requester)
	inside.CreatedAt = s.now.AddDate(0, 0, -10)
	outside := s.newRequest(requester)
	outside.CreatedAt = s.now.AddDate(0, -2, 0)
	otherCategory := s.newRequest(requester)
	otherCategory.Category = models.CategoryMedical
	otherCategory.CreatedAt = s.now.AddDate(0, 0, -5)

	for _, r := range []*models.AidRequest{inside, outside, otherCategory} {
		s.Require().NoError(s.store.Create(ctx, r))
	}

	out, err := s.store.ListByRequesterCategorySince(
		ctx, requester, models.CategoryFood, s.now.AddDate(0, -1, 0))
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal(inside.ID, out[0].ID)
}

func (s *PostgresRequestSuite) TestSumReserved() {
	ctx := context.Background()

	held := s.newRequest(id.NewActorID())
	held.Status = models.StatusSecondApprovalPending
	held.ReservedAmount = 300
	reservedAt := s.now
	held.ReservedAt = &reservedAt

	waiting := s.newRequest(id.NewActorID())
	waiting.Status = models.StatusWaitingFunds
	waiting.ReservedAmount = 500

	s.Require().NoError(s.store.Create(ctx, held))
	s.Require().NoError(s.store.Create(ctx, waiting))

	total, err := s.store.SumReserved(ctx)
	s.Require().NoError(err)
	s.Equal(int64(300), total)
}

func (s *PostgresRequestSuite) TestListByStatusOrder() {
	ctx := context.Background()

	early := s.newRequest(id.NewActorID())
	early.Status = models.StatusWaitingFunds
	earlyVerified := s.now.Add(-3 * time.Hour)
	early.VerifiedAt = &earlyVerified

	late := s.newRequest(id.NewActorID())
	late.Status = models.StatusWaitingFunds
	lateVerified := s.now.Add(-1 * time.Hour)
	late.VerifiedAt = &lateVerified

	s.Require().NoError(s.store.Create(ctx, late))
	s.Require().NoError(s.store.Create(ctx, early))

	out, err := s.store.ListByStatus(ctx, models.StatusWaitingFunds)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(early.ID, out[0].ID)
	s.Equal(late.ID, out[1].ID)
}
