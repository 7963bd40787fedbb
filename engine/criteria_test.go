package engine

import (
	"context"
	"testing"

	"reachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCriteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria *models.FilterGroup
		wantErrs int
	}{
		{
			name:     "nil criteria",
			criteria: nil,
			wantErrs: 1,
		},
		{
			name: "valid single condition",
			criteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "industry", Operator: OpEquals, Value: "Hospitality"},
				},
			},
			wantErrs: 0,
		},
		{
			name: "valid nested groups",
			criteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "country", Operator: OpEquals, Value: "DE"},
				},
				Groups: []models.FilterGroup{
					{
						Operator: GroupOr,
						Conditions: []models.FilterCondition{
							{Field: "company", Operator: OpContains, Value: "Hotel"},
							{Field: "tag", Operator: OpEquals, Value: "vip"},
						},
					},
				},
			},
			wantErrs: 0,
		},
		{
			name: "unknown group operator",
			criteria: &models.FilterGroup{
				Operator: "xor",
				Conditions: []models.FilterCondition{
					{Field: "email", Operator: OpContains, Value: "@"},
				},
			},
			wantErrs: 1,
		},
		{
			name:     "empty group",
			criteria: &models.FilterGroup{Operator: GroupAnd},
			wantErrs: 1,
		},
		{
			name: "unknown field",
			criteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "shoe_size", Operator: OpEquals, Value: "44"},
				},
			},
			wantErrs: 1,
		},
		{
			name: "string operator on bool field",
			criteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "is_bounced", Operator: OpContains, Value: "x"},
				},
			},
			wantErrs: 1,
		},
		{
			name: "missing value",
			criteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "city", Operator: OpEquals},
				},
			},
			wantErrs: 1,
		},
		{
			name: "in with empty list",
			criteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "country", Operator: OpIn, Value: []interface{}{}},
				},
			},
			wantErrs: 1,
		},
		{
			name: "multiple problems are all reported",
			criteria: &models.FilterGroup{
				Operator: "maybe",
				Conditions: []models.FilterCondition{
					{Field: "shoe_size", Operator: OpEquals, Value: "44"},
					{Field: "city", Operator: OpEquals},
				},
				Groups: []models.FilterGroup{
					{Operator: GroupAnd},
				},
			},
			wantErrs: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateCriteria(tt.criteria)
			assert.Len(t, errs, tt.wantErrs, "errors: %v", errs)
		})
	}
}

func TestValidateCriteriaErrorPaths(t *testing.T) {
	criteria := &models.FilterGroup{
		Operator: GroupAnd,
		Groups: []models.FilterGroup{
			{
				Operator: GroupOr,
				Conditions: []models.FilterCondition{
					{Field: "nope", Operator: OpEquals, Value: "x"},
				},
			},
		},
	}

	errs := ValidateCriteria(criteria)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "filter_criteria.groups[0].conditions[0]")
}

func TestResolverResolve(t *testing.T) {
	db := newTestDB(t)
	r := newTestResolver(db)
	ctx := context.Background()

	hotel := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg", Company: "Grand Hotel", Industry: "Hospitality", Country: "DE"})
	agency := seedContact(t, db, models.Contact{FirstName: "Ben", LastName: "Cole", Company: "Travel Agency", Industry: "Travel", Country: "DE"})
	unsub := seedContact(t, db, models.Contact{FirstName: "Cara", LastName: "Dorn", Company: "Hotel Sun", Industry: "Hospitality", Country: "FR", IsUnsubscribed: true})
	seedTag(t, db, hotel.ID, "vip")
	seedTag(t, db, agency.ID, "newsletter")

	t.Run("equals", func(t *testing.T) {
		ids, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "industry", Operator: OpEquals, Value: "Hospitality"},
			},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uint{hotel.ID, unsub.ID}, ids)
	})

	t.Run("and combines conditions", func(t *testing.T) {
		ids, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "industry", Operator: OpEquals, Value: "Hospitality"},
				{Field: "country", Operator: OpEquals, Value: "DE"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint{hotel.ID}, ids)
	})

	t.Run("or widens", func(t *testing.T) {
		ids, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupOr,
			Conditions: []models.FilterCondition{
				{Field: "company", Operator: OpStartsWith, Value: "Grand"},
				{Field: "industry", Operator: OpEquals, Value: "Travel"},
			},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uint{hotel.ID, agency.ID}, ids)
	})

	t.Run("not inverts", func(t *testing.T) {
		ids, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupNot,
			Conditions: []models.FilterCondition{
				{Field: "country", Operator: OpEquals, Value: "DE"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint{unsub.ID}, ids)
	})

	t.Run("bool field", func(t *testing.T) {
		ids, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "is_unsubscribed", Operator: OpIsTrue},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint{unsub.ID}, ids)
	})

	t.Run("tag condition resolves through contact_tags", func(t *testing.T) {
		ids, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "tag", Operator: OpEquals, Value: "vip"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint{hotel.ID}, ids)
	})

	t.Run("invalid tree rejected", func(t *testing.T) {
		_, err := r.Resolve(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "nope", Operator: OpEquals, Value: "x"},
			},
		})
		require.ErrorIs(t, err, ErrInvalidCriteria)
	})
}

func TestResolverValidate(t *testing.T) {
	db := newTestDB(t)
	r := newTestResolver(db)
	ctx := context.Background()

	seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg", Industry: "Hospitality"})
	seedContact(t, db, models.Contact{FirstName: "Ben", LastName: "Cole", Industry: "Travel"})

	t.Run("valid criteria estimates matches", func(t *testing.T) {
		result, err := r.Validate(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "industry", Operator: OpEquals, Value: "Hospitality"},
			},
		})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
		assert.Equal(t, int64(1), result.EstimatedCount)
	})

	t.Run("invalid criteria reports errors without failing", func(t *testing.T) {
		result, err := r.Validate(ctx, &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "shoe_size", Operator: OpEquals, Value: "44"},
			},
		})
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
		assert.Zero(t, result.EstimatedCount)
	})
}

func TestResolverRecalculate(t *testing.T) {
	db := newTestDB(t)
	r := newTestResolver(db)
	ctx := context.Background()

	seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg", Industry: "Hospitality"})
	seedContact(t, db, models.Contact{FirstName: "Ben", LastName: "Cole", Industry: "Hospitality"})

	dynamic := models.Segment{
		Name:   "hospitality",
		Type:   models.SegmentTypeDynamic,
		Status: models.SegmentStatusActive,
		FilterCriteria: &models.FilterGroup{
			Operator: GroupAnd,
			Conditions: []models.FilterCondition{
				{Field: "industry", Operator: OpEquals, Value: "Hospitality"},
			},
		},
	}
	require.NoError(t, db.Create(&dynamic).Error)

	t.Run("refreshes member count", func(t *testing.T) {
		seg, err := r.Recalculate(ctx, dynamic.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, seg.MemberCount)

		// A new matching contact is picked up by the next recalculation.
		seedContact(t, db, models.Contact{FirstName: "Cara", LastName: "Dorn", Industry: "Hospitality"})
		seg, err = r.Recalculate(ctx, dynamic.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, seg.MemberCount)
	})

	t.Run("rejects static segments", func(t *testing.T) {
		static := seedStaticSegment(t, db, "static")
		_, err := r.Recalculate(ctx, static.ID)
		require.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("missing segment", func(t *testing.T) {
		_, err := r.Recalculate(ctx, 9999)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResolveSegment(t *testing.T) {
	db := newTestDB(t)
	r := newTestResolver(db)
	ctx := context.Background()

	a := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg", Industry: "Hospitality"})
	b := seedContact(t, db, models.Contact{FirstName: "Ben", LastName: "Cole", Industry: "Travel"})

	t.Run("static reads member rows", func(t *testing.T) {
		seg := seedStaticSegment(t, db, "static", a, b)
		ids, err := r.ResolveSegment(ctx, seg)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uint{a.ID, b.ID}, ids)
	})

	t.Run("dynamic evaluates criteria fresh", func(t *testing.T) {
		seg := models.Segment{
			Name: "dyn", Type: models.SegmentTypeDynamic, Status: models.SegmentStatusActive,
			FilterCriteria: &models.FilterGroup{
				Operator: GroupAnd,
				Conditions: []models.FilterCondition{
					{Field: "industry", Operator: OpEquals, Value: "Travel"},
				},
			},
		}
		require.NoError(t, db.Create(&seg).Error)

		ids, err := r.ResolveSegment(ctx, &seg)
		require.NoError(t, err)
		assert.Equal(t, []uint{b.ID}, ids)
	})
}
