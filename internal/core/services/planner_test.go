package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

func mustBuckets(t *testing.T, specs ...string) []domain.FollowerBucket {
	t.Helper()
	out := make([]domain.FollowerBucket, 0, len(specs))
	for _, s := range specs {
		b, err := domain.ParseFollowerBucket(s)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestQueryPlanner_Plan(t *testing.T) {
	t.Run("region outer, year middle, bucket inner", func(t *testing.T) {
		planner := NewQueryPlanner(domain.GranularityYear)
		buckets := mustBuckets(t, "<10", "10..50")

		plan := planner.Plan([]string{"Morocco", "Chile"}, []int{2019, 2020}, buckets)

		require.Len(t, plan, 8)
		want := []string{
			"Morocco|2019-01-01..2019-12-31|<=9",
			"Morocco|2019-01-01..2019-12-31|10..50",
			"Morocco|2020-01-01..2020-12-31|<=9",
			"Morocco|2020-01-01..2020-12-31|10..50",
			"Chile|2019-01-01..2019-12-31|<=9",
			"Chile|2019-01-01..2019-12-31|10..50",
			"Chile|2020-01-01..2020-12-31|<=9",
			"Chile|2020-01-01..2020-12-31|10..50",
		}
		for i, p := range plan {
			assert.Equal(t, i, p.Position)
			assert.Equal(t, want[i], p.ID())
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		planner := NewQueryPlanner(domain.GranularityYear)
		buckets := mustBuckets(t, "<10", ">100")

		a := planner.Plan([]string{"Morocco"}, []int{2018, 2017}, buckets)
		b := planner.Plan([]string{"Morocco"}, []int{2018, 2017}, buckets)

		assert.Equal(t, a, b)
		assert.Equal(t, 2018, a[0].Window.Start.Year(), "years keep input order")
	})

	t.Run("empty axis yields empty plan", func(t *testing.T) {
		planner := NewQueryPlanner(domain.GranularityYear)
		buckets := mustBuckets(t, "<10")

		assert.Empty(t, planner.Plan(nil, []int{2019}, buckets))
		assert.Empty(t, planner.Plan([]string{"Chile"}, nil, buckets))
		assert.Empty(t, planner.Plan([]string{"Chile"}, []int{2019}, nil))
	})

	t.Run("blank regions are skipped", func(t *testing.T) {
		planner := NewQueryPlanner(domain.GranularityYear)

		plan := planner.Plan([]string{" ", "Chile", ""}, []int{2019}, mustBuckets(t, "<10"))

		require.Len(t, plan, 1)
		assert.Equal(t, "Chile", plan[0].Region)
		assert.Equal(t, 0, plan[0].Position)
	})

	t.Run("quarter granularity", func(t *testing.T) {
		planner := NewQueryPlanner(domain.GranularityQuarter)

		plan := planner.Plan([]string{"Chile"}, []int{2019}, mustBuckets(t, "<10"))

		require.Len(t, plan, 4)
		assert.Equal(t, "2019-04-01..2019-06-30", plan[1].Window.String())
		assert.Equal(t, "2019-10-01..2019-12-31", plan[3].Window.String())
	})

	t.Run("invalid granularity falls back to years", func(t *testing.T) {
		planner := NewQueryPlanner("fortnight")

		plan := planner.Plan([]string{"Chile"}, []int{2019}, mustBuckets(t, "<10"))

		assert.Len(t, plan, 1)
	})
}

func TestPlanID(t *testing.T) {
	planner := NewQueryPlanner(domain.GranularityYear)
	buckets := mustBuckets(t, "<10", "10..50")

	a := PlanID(planner.Plan([]string{"Morocco"}, []int{2019}, buckets))
	b := PlanID(planner.Plan([]string{"Morocco"}, []int{2019}, buckets))
	c := PlanID(planner.Plan([]string{"Morocco"}, []int{2020}, buckets))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
