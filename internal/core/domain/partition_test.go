package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFollowerBucket(t *testing.T) {
	tests := []struct {
		input string
		want  FollowerBucket
		str   string
	}{
		{"<10", FollowerBucket{Min: Unbounded, Max: 9}, "<=9"},
		{"<=10", FollowerBucket{Min: Unbounded, Max: 10}, "<=10"},
		{">100", FollowerBucket{Min: 101, Max: Unbounded}, ">=101"},
		{">=100", FollowerBucket{Min: 100, Max: Unbounded}, ">=100"},
		{"10..50", FollowerBucket{Min: 10, Max: 50}, "10..50"},
		{" 50..100 ", FollowerBucket{Min: 50, Max: 100}, "50..100"},
		{"10..*", FollowerBucket{Min: 10, Max: Unbounded}, ">=10"},
		{"*..50", FollowerBucket{Min: Unbounded, Max: 50}, "<=50"},
		{"*..*", FollowerBucket{Min: Unbounded, Max: Unbounded}, "*"},
		{"7", FollowerBucket{Min: 7, Max: 7}, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFollowerBucket(tt.input)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseFollowerBucket_Invalid(t *testing.T) {
	for _, input := range []string{"", "lots", "<0", "50..10", "-3", "a..b", ">x"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseFollowerBucket(input)

			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestFollowerBucket_IsOpen(t *testing.T) {
	assert.True(t, FollowerBucket{Min: Unbounded, Max: Unbounded}.IsOpen())
	assert.False(t, FollowerBucket{Min: 10, Max: Unbounded}.IsOpen())
}

func TestGranularity_IsValid(t *testing.T) {
	assert.True(t, GranularityYear.IsValid())
	assert.True(t, GranularityQuarter.IsValid())
	assert.True(t, GranularityMonth.IsValid())
	assert.False(t, Granularity("week").IsValid())
	assert.False(t, Granularity("").IsValid())
}

func TestYearWindows(t *testing.T) {
	t.Run("year", func(t *testing.T) {
		windows := YearWindows(2019, GranularityYear)

		require.Len(t, windows, 1)
		assert.Equal(t, "2019-01-01..2019-12-31", windows[0].String())
		assert.Equal(t, 2019, windows[0].Start.Year())
	})

	t.Run("quarter", func(t *testing.T) {
		windows := YearWindows(2019, GranularityQuarter)

		require.Len(t, windows, 4)
		assert.Equal(t, "2019-01-01..2019-03-31", windows[0].String())
		assert.Equal(t, "2019-04-01..2019-06-30", windows[1].String())
		assert.Equal(t, "2019-10-01..2019-12-31", windows[3].String())
	})

	t.Run("month handles leap years", func(t *testing.T) {
		windows := YearWindows(2020, GranularityMonth)

		require.Len(t, windows, 12)
		assert.Equal(t, "2020-02-01..2020-02-29", windows[1].String())
	})

	t.Run("unknown granularity is a year", func(t *testing.T) {
		assert.Len(t, YearWindows(2019, Granularity("week")), 1)
	})
}

func TestPartitionKey_ID(t *testing.T) {
	key := PartitionKey{
		Position:  3,
		Region:    "Morocco",
		Window:    TimeWindow{Start: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC)},
		Followers: FollowerBucket{Min: 10, Max: 50},
	}

	assert.Equal(t, "Morocco|2015-01-01..2015-12-31|10..50", key.ID())

	moved := key
	moved.Position = 9
	assert.Equal(t, key.ID(), moved.ID())
	assert.Contains(t, key.String(), "#3")
}
