package precheck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidpool/internal/aid/models"
	"aidpool/internal/aid/policy"
	"aidpool/internal/aid/store/request"
	id "aidpool/pkg/domain"
	"aidpool/pkg/requestcontext"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *request.MemoryStore) {
	t.Helper()
	store := request.NewMemory()
	engine, err := New(NewQuotaEvaluator(store))
	require.NoError(t, err)
	return engine, store
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), testNow)
}

func eligibleActor() requestcontext.Actor {
	return requestcontext.Actor{
		ID:                  id.NewActorID(),
		Role:                id.RoleRequester,
		University:          "state-u",
		Approved:            true,
		VerifiedBeneficiary: true,
	}
}

func seedRequest(t *testing.T, store *request.MemoryStore, actor requestcontext.Actor, category models.Category, amount int64, status models.RequestStatus, createdAt time.Time) {
	t.Helper()
	err := store.Create(context.Background(), &models.AidRequest{
		ID:          id.NewRequestID(),
		RequesterID: actor.ID,
		University:  actor.University,
		Category:    category,
		Kind:        models.KindFinancial,
		AmountMax:   amount,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	})
	require.NoError(t, err)
}

func mustRule(t *testing.T, category models.Category) policy.CategoryRule {
	t.Helper()
	rule, ok := policy.RuleFor(category)
	require.True(t, ok)
	return rule
}

func mustTier(t *testing.T, rule policy.CategoryRule, label string) policy.Tier {
	t.Helper()
	tier, ok := rule.TierByLabel(label)
	require.True(t, ok)
	return tier
}

func TestEvaluateEligibility(t *testing.T) {
	engine, _ := newEngine(t)
	rule := mustRule(t, models.CategoryFood)
	tier := mustTier(t, rule, "1-250")

	t.Run("unverified beneficiary", func(t *testing.T) {
		actor := eligibleActor()
		actor.VerifiedBeneficiary = false

		verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
		require.NoError(t, err)
		assert.False(t, verdict.Admitted)
		assert.Equal(t, "not verified", verdict.Reason)
	})

	t.Run("unapproved account", func(t *testing.T) {
		actor := eligibleActor()
		actor.Approved = false

		verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
		require.NoError(t, err)
		assert.False(t, verdict.Admitted)
		assert.Equal(t, "account not approved", verdict.Reason)
	})

	t.Run("clean actor admitted", func(t *testing.T) {
		verdict, err := engine.Evaluate(testCtx(), eligibleActor(), rule, tier)
		require.NoError(t, err)
		assert.True(t, verdict.Admitted)
		assert.False(t, verdict.OverrideRequired)
	})
}

func TestEvaluateRequestCountCap(t *testing.T) {
	engine, store := newEngine(t)
	rule := mustRule(t, models.CategoryFood)
	tier := mustTier(t, rule, "1-250")
	actor := eligibleActor()

	// Two disbursed requests inside the month window exhaust food's cap.
	seedRequest(t, store, actor, models.CategoryFood, 250, models.StatusDisbursed, testNow.AddDate(0, 0, -20))
	seedRequest(t, store, actor, models.CategoryFood, 250, models.StatusDisbursed, testNow.AddDate(0, 0, -16))

	verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
	require.NoError(t, err)
	assert.False(t, verdict.Admitted)
	assert.Equal(t, "food request limit reached for this period", verdict.Reason)
}

func TestEvaluateAmountCap(t *testing.T) {
	engine, store := newEngine(t)
	rule := mustRule(t, models.CategoryFood)
	tier := mustTier(t, rule, "501-1000")
	actor := eligibleActor()

	// 500 consumed; a 1000 tier would overshoot the 1000 period cap.
	seedRequest(t, store, actor, models.CategoryFood, 500, models.StatusDisbursed, testNow.AddDate(0, 0, -20))

	verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
	require.NoError(t, err)
	assert.False(t, verdict.Admitted)
	assert.Equal(t, "food amount limit reached for this period", verdict.Reason)
}

func TestEvaluateDuplicateWindow(t *testing.T) {
	engine, store := newEngine(t)
	rule := mustRule(t, models.CategoryMedical)
	tier := mustTier(t, rule, "1-500")
	actor := eligibleActor()

	seedRequest(t, store, actor, models.CategoryMedical, 500, models.StatusPendingAdmin, testNow.AddDate(0, 0, -3))

	verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
	require.NoError(t, err)
	assert.False(t, verdict.Admitted)
	assert.Equal(t, "duplicate medical request within 14 days", verdict.Reason)
}

func TestEvaluateDuplicateIgnoresRejected(t *testing.T) {
	engine, store := newEngine(t)
	rule := mustRule(t, models.CategoryMedical)
	tier := mustTier(t, rule, "1-500")
	actor := eligibleActor()

	// Rejected and precheck-failed requests neither consume quota nor count
	// as active duplicates.
	seedRequest(t, store, actor, models.CategoryMedical, 500, models.StatusRejected, testNow.AddDate(0, 0, -3))
	seedRequest(t, store, actor, models.CategoryMedical, 500, models.StatusPrecheckFailed, testNow.AddDate(0, 0, -2))

	verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
	require.NoError(t, err)
	assert.True(t, verdict.Admitted)
}

func TestEvaluateOldRequestsOutsideWindow(t *testing.T) {
	engine, store := newEngine(t)
	rule := mustRule(t, models.CategoryFood)
	tier := mustTier(t, rule, "1-250")
	actor := eligibleActor()

	// Both sit outside the one-month rolling window.
	seedRequest(t, store, actor, models.CategoryFood, 1000, models.StatusDisbursed, testNow.AddDate(0, -2, 0))
	seedRequest(t, store, actor, models.CategoryFood, 1000, models.StatusDisbursed, testNow.AddDate(0, -3, 0))

	verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
	require.NoError(t, err)
	assert.True(t, verdict.Admitted)
}

func TestEvaluateEmergencyOverride(t *testing.T) {
	engine, store := newEngine(t)
	rule := mustRule(t, models.CategoryEmergency)
	tier := mustTier(t, rule, "1-1000")
	actor := eligibleActor()

	t.Run("limit failure admitted with override flag", func(t *testing.T) {
		seedRequest(t, store, actor, models.CategoryEmergency, 1000, models.StatusDisbursed, testNow.AddDate(0, 0, -20))

		verdict, err := engine.Evaluate(testCtx(), actor, rule, tier)
		require.NoError(t, err)
		assert.True(t, verdict.Admitted)
		assert.True(t, verdict.OverrideRequired)
		assert.Equal(t, "Emergency override required (emergency request limit reached for this period)", verdict.Reason)
	})

	t.Run("eligibility failure is not override-able", func(t *testing.T) {
		blocked := eligibleActor()
		blocked.VerifiedBeneficiary = false

		verdict, err := engine.Evaluate(testCtx(), blocked, rule, tier)
		require.NoError(t, err)
		assert.False(t, verdict.Admitted)
		assert.Equal(t, "not verified", verdict.Reason)
	})

	t.Run("count cap trips before the duplicate check", func(t *testing.T) {
		dup := eligibleActor()
		seedRequest(t, store, dup, models.CategoryEmergency, 200, models.StatusPendingAdmin, testNow.AddDate(0, 0, -1))
		rule := mustRule(t, models.CategoryEmergency)
		// One active request already exhausts emergency's cap of one, so the
		// override path wins over the duplicate denial.
		verdict, err := engine.Evaluate(testCtx(), dup, rule, mustTier(t, rule, "1-1000"))
		require.NoError(t, err)
		assert.True(t, verdict.Admitted)
		assert.True(t, verdict.OverrideRequired)
	})
}
