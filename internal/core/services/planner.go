package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// QueryPlanner enumerates the partition space of a crawl.
type QueryPlanner struct {
	window domain.Granularity
}

// NewQueryPlanner creates a planner that splits each year into windows of
// the given granularity. An invalid granularity falls back to whole years.
func NewQueryPlanner(window domain.Granularity) *QueryPlanner {
	if !window.IsValid() {
		window = domain.GranularityYear
	}
	return &QueryPlanner{window: window}
}

// Plan returns the Cartesian product of regions, time windows and follower
// buckets: region outer, window middle, bucket inner. Positions are
// assigned in that order so a run can resume by position. Blank regions are
// skipped. Any empty axis yields an empty plan.
func (p *QueryPlanner) Plan(regions []string, years []int, buckets []domain.FollowerBucket) []domain.PartitionKey {
	var windows []domain.TimeWindow
	for _, y := range years {
		windows = append(windows, domain.YearWindows(y, p.window)...)
	}

	var plan []domain.PartitionKey
	for _, region := range regions {
		region = strings.TrimSpace(region)
		if region == "" {
			continue
		}
		for _, w := range windows {
			for _, b := range buckets {
				plan = append(plan, domain.PartitionKey{
					Position:  len(plan),
					Region:    region,
					Window:    w,
					Followers: b,
				})
			}
		}
	}
	return plan
}

// PlanID fingerprints a plan by its ordered partition IDs. Two runs with
// the same configuration axes share a plan ID, so checkpoints carry over.
func PlanID(plan []domain.PartitionKey) string {
	h := sha256.New()
	for _, p := range plan {
		h.Write([]byte(p.ID()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
