// Package policy is the static per-category rule table: amount tiers, quota
// windows, per-period caps and the emergency override flag. Pure lookup,
// no state.
package policy

import (
	"time"

	"aidpool/internal/aid/models"
)

// JustificationMaxLen caps the free-text justification on submission.
const JustificationMaxLen = 500

// DuplicateWindow is how far back the precheck looks for an active request
// in the same category.
const DuplicateWindow = 14 * 24 * time.Hour

// QuotaPeriod is the rolling window over which request caps are enforced.
type QuotaPeriod string

const (
	PeriodMonth    QuotaPeriod = "month"
	PeriodSemester QuotaPeriod = "semester"
)

// WindowStart returns the start of the rolling window ending at now.
// Both periods slide from "now", not from calendar boundaries; a semester
// is approximated as four months.
func (p QuotaPeriod) WindowStart(now time.Time) time.Time {
	if p == PeriodSemester {
		return now.AddDate(0, -4, 0)
	}
	return now.AddDate(0, -1, 0)
}

// Tier is a discrete (min, max) amount bracket. Max is the committed
// request size.
type Tier struct {
	Label string
	Min   int64
	Max   int64
}

// CategoryRule configures quota enforcement for one category.
type CategoryRule struct {
	Category             models.Category
	Tiers                []Tier
	Period               QuotaPeriod
	MaxRequestsPerPeriod int
	MaxAmountPerPeriod   int64
	// RequiresOverride admits limit failures anyway, flagged for explicit
	// admin override approval at verification.
	RequiresOverride bool
}

// TierByLabel looks up a tier within the rule's ordered brackets.
func (r CategoryRule) TierByLabel(label string) (Tier, bool) {
	for _, t := range r.Tiers {
		if t.Label == label {
			return t, true
		}
	}
	return Tier{}, false
}

var rules = map[models.Category]CategoryRule{
	models.CategoryFood: {
		Category: models.CategoryFood,
		Tiers: []Tier{
			{Label: "1-250", Min: 1, Max: 250},
			{Label: "251-500", Min: 251, Max: 500},
			{Label: "501-1000", Min: 501, Max: 1000},
		},
		Period:               PeriodMonth,
		MaxRequestsPerPeriod: 2,
		MaxAmountPerPeriod:   1000,
	},
	models.CategoryAccommodation: {
		Category: models.CategoryAccommodation,
		Tiers: []Tier{
			{Label: "1-2500", Min: 1, Max: 2500},
			{Label: "2501-5000", Min: 2501, Max: 5000},
			{Label: "5001-10000", Min: 5001, Max: 10000},
		},
		Period:               PeriodSemester,
		MaxRequestsPerPeriod: 2,
		MaxAmountPerPeriod:   10000,
	},
	models.CategoryMedical: {
		Category: models.CategoryMedical,
		Tiers: []Tier{
			{Label: "1-500", Min: 1, Max: 500},
			{Label: "501-2000", Min: 501, Max: 2000},
			{Label: "2001-5000", Min: 2001, Max: 5000},
		},
		Period:               PeriodMonth,
		MaxRequestsPerPeriod: 3,
		MaxAmountPerPeriod:   5000,
	},
	models.CategoryAcademic: {
		Category: models.CategoryAcademic,
		Tiers: []Tier{
			{Label: "1-1000", Min: 1, Max: 1000},
			{Label: "1001-3000", Min: 1001, Max: 3000},
		},
		Period:               PeriodSemester,
		MaxRequestsPerPeriod: 2,
		MaxAmountPerPeriod:   4000,
	},
	models.CategoryEmergency: {
		Category: models.CategoryEmergency,
		Tiers: []Tier{
			{Label: "1-1000", Min: 1, Max: 1000},
			{Label: "1001-3000", Min: 1001, Max: 3000},
		},
		Period:               PeriodMonth,
		MaxRequestsPerPeriod: 1,
		MaxAmountPerPeriod:   3000,
		RequiresOverride:     true,
	},
}

// RuleFor returns the rule table entry for a category.
func RuleFor(category models.Category) (CategoryRule, bool) {
	rule, ok := rules[category]
	return rule, ok
}
