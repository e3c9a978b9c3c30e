package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unbounded marks an open end of a FollowerBucket.
const Unbounded = -1

// dateLayout is the calendar-day layout used in partition IDs and queries.
const dateLayout = "2006-01-02"

// FollowerBucket is a numeric follower-count range. Min and Max are
// inclusive; either may be Unbounded.
type FollowerBucket struct {
	Min int
	Max int
}

// ParseFollowerBucket parses a follower range in search-qualifier form.
// Accepted forms: "<10", "<=10", ">100", ">=100", "10..50", "10..*",
// "*..50" and a single count "7".
func ParseFollowerBucket(s string) (FollowerBucket, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FollowerBucket{}, fmt.Errorf("%w: empty follower bucket", ErrInvalidInput)
	}

	parse := func(v string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: follower bucket %q", ErrInvalidInput, s)
		}
		return n, nil
	}

	switch {
	case strings.HasPrefix(s, "<="):
		n, err := parse(s[2:])
		return FollowerBucket{Min: Unbounded, Max: n}, err
	case strings.HasPrefix(s, "<"):
		n, err := parse(s[1:])
		if err == nil && n == 0 {
			return FollowerBucket{}, fmt.Errorf("%w: follower bucket %q is empty", ErrInvalidInput, s)
		}
		return FollowerBucket{Min: Unbounded, Max: n - 1}, err
	case strings.HasPrefix(s, ">="):
		n, err := parse(s[2:])
		return FollowerBucket{Min: n, Max: Unbounded}, err
	case strings.HasPrefix(s, ">"):
		n, err := parse(s[1:])
		return FollowerBucket{Min: n + 1, Max: Unbounded}, err
	case strings.Contains(s, ".."):
		lo, hi, _ := strings.Cut(s, "..")
		b := FollowerBucket{Min: Unbounded, Max: Unbounded}
		if strings.TrimSpace(lo) != "*" {
			n, err := parse(lo)
			if err != nil {
				return FollowerBucket{}, err
			}
			b.Min = n
		}
		if strings.TrimSpace(hi) != "*" {
			n, err := parse(hi)
			if err != nil {
				return FollowerBucket{}, err
			}
			b.Max = n
		}
		if b.Min != Unbounded && b.Max != Unbounded && b.Min > b.Max {
			return FollowerBucket{}, fmt.Errorf("%w: follower bucket %q is inverted", ErrInvalidInput, s)
		}
		return b, nil
	default:
		n, err := parse(s)
		return FollowerBucket{Min: n, Max: n}, err
	}
}

// IsOpen returns true if the bucket has no bounds at all.
func (b FollowerBucket) IsOpen() bool {
	return b.Min == Unbounded && b.Max == Unbounded
}

// String renders the bucket in canonical qualifier form. An open bucket
// renders as "*".
func (b FollowerBucket) String() string {
	switch {
	case b.IsOpen():
		return "*"
	case b.Min == Unbounded:
		return "<=" + strconv.Itoa(b.Max)
	case b.Max == Unbounded:
		return ">=" + strconv.Itoa(b.Min)
	case b.Min == b.Max:
		return strconv.Itoa(b.Min)
	default:
		return strconv.Itoa(b.Min) + ".." + strconv.Itoa(b.Max)
	}
}

// Granularity controls how a year is split into time windows.
type Granularity string

// Available window granularities.
const (
	GranularityYear    Granularity = "year"
	GranularityQuarter Granularity = "quarter"
	GranularityMonth   Granularity = "month"
)

// IsValid returns true if the granularity is recognised.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityYear, GranularityQuarter, GranularityMonth:
		return true
	default:
		return false
	}
}

// TimeWindow is an inclusive range of calendar days.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// YearWindows splits a calendar year into windows of the given granularity.
// An unknown granularity is treated as GranularityYear.
func YearWindows(year int, g Granularity) []TimeWindow {
	months := 12
	switch g {
	case GranularityQuarter:
		months = 3
	case GranularityMonth:
		months = 1
	}

	windows := make([]TimeWindow, 0, 12/months)
	for m := 1; m <= 12; m += months {
		start := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, months, -1)
		windows = append(windows, TimeWindow{Start: start, End: end})
	}
	return windows
}

// String renders the window as "start..end".
func (w TimeWindow) String() string {
	return w.Start.Format(dateLayout) + ".." + w.End.Format(dateLayout)
}

// PartitionKey identifies one concrete search query. It is created by the
// query planner and never modified afterwards.
type PartitionKey struct {
	// Position is the zero-based index of the partition in the plan.
	Position int
	// Region is the location filter.
	Region string
	// Window is the account creation date range.
	Window TimeWindow
	// Followers is the follower-count range.
	Followers FollowerBucket
}

// ID returns a stable identifier for the partition, independent of its
// position in a plan.
func (p PartitionKey) ID() string {
	return fmt.Sprintf("%s|%s|%s", p.Region, p.Window, p.Followers)
}

// String describes the partition for logs.
func (p PartitionKey) String() string {
	return fmt.Sprintf("#%d region=%q created=%s followers=%s", p.Position, p.Region, p.Window, p.Followers)
}

// PageRequest is one page of one partition.
type PageRequest struct {
	Partition PartitionKey
	// Page starts at 1.
	Page int
	// PerPage is fixed for a run.
	PerPage int
}
