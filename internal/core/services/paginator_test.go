package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

func testKey() domain.PartitionKey {
	return domain.PartitionKey{
		Region:    "Morocco",
		Window:    domain.YearWindows(2019, domain.GranularityYear)[0],
		Followers: domain.FollowerBucket{Min: 10, Max: 50},
	}
}

func TestSearchPaginator_Paginate(t *testing.T) {
	t.Run("pages of 100, 100, 37 yield 237 entities", func(t *testing.T) {
		source := newFakeSource()
		source.search = pagedSearch(237, 100, 100, 37)
		paginator := NewSearchPaginator(source, 100, 10)

		result := paginator.Paginate(context.Background(), testKey())

		require.NoError(t, result.Err)
		assert.Len(t, result.Entities, 237)
		assert.Equal(t, 3, result.Pages)
		assert.Equal(t, 237, result.TotalCount)
		assert.False(t, result.Truncated)

		reqs := source.searchRequests()
		require.Len(t, reqs, 3)
		for i, req := range reqs {
			assert.Equal(t, i+1, req.Page)
			assert.Equal(t, 100, req.PerPage)
			assert.Equal(t, testKey().ID(), req.Partition.ID())
		}
	})

	t.Run("empty first page", func(t *testing.T) {
		source := newFakeSource()
		paginator := NewSearchPaginator(source, 100, 10)

		result := paginator.Paginate(context.Background(), testKey())

		require.NoError(t, result.Err)
		assert.Empty(t, result.Entities)
		assert.Equal(t, 1, result.Pages)
		assert.Len(t, source.searchRequests(), 1)
	})

	t.Run("page cap truncates", func(t *testing.T) {
		source := newFakeSource()
		source.search = pagedSearch(500, 100, 100, 100, 100, 100)
		paginator := NewSearchPaginator(source, 100, 2)

		result := paginator.Paginate(context.Background(), testKey())

		require.NoError(t, result.Err)
		assert.Len(t, result.Entities, 200)
		assert.True(t, result.Truncated)
		assert.Len(t, source.searchRequests(), 2)
	})

	t.Run("reported total beyond reach is truncated", func(t *testing.T) {
		source := newFakeSource()
		source.search = pagedSearch(5000, 10, 3)
		paginator := NewSearchPaginator(source, 10, 2)

		result := paginator.Paginate(context.Background(), testKey())

		assert.Len(t, result.Entities, 13)
		assert.True(t, result.Truncated)
	})

	t.Run("error keeps entities from earlier pages", func(t *testing.T) {
		source := newFakeSource()
		source.search = func(req domain.PageRequest) (*domain.SearchPage, error) {
			if req.Page == 2 {
				return nil, fmt.Errorf("search: %w", domain.ErrPermanentAPI)
			}
			return &domain.SearchPage{TotalCount: 300, Entities: entities("p1", 100)}, nil
		}
		paginator := NewSearchPaginator(source, 100, 10)

		result := paginator.Paginate(context.Background(), testKey())

		assert.ErrorIs(t, result.Err, domain.ErrPermanentAPI)
		assert.Len(t, result.Entities, 100)
		assert.Equal(t, 1, result.Pages)
		assert.Len(t, source.searchRequests(), 2)
	})

	t.Run("never returns the same entity twice", func(t *testing.T) {
		source := newFakeSource()
		source.search = func(req domain.PageRequest) (*domain.SearchPage, error) {
			switch req.Page {
			case 1:
				return &domain.SearchPage{Entities: entities("u", 3)}, nil
			case 2:
				// Results shifted between requests: u-2 shows up again.
				page := append(entities("u", 3)[2:], entities("v", 2)...)
				return &domain.SearchPage{Entities: page}, nil
			default:
				return &domain.SearchPage{}, nil
			}
		}
		paginator := NewSearchPaginator(source, 3, 10)

		result := paginator.Paginate(context.Background(), testKey())

		logins := make([]string, 0, len(result.Entities))
		for _, e := range result.Entities {
			logins = append(logins, e.Login)
		}
		assert.Equal(t, []string{"u-0", "u-1", "u-2", "v-0", "v-1"}, logins)
	})

	t.Run("cancellation stops between pages", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		source := newFakeSource()
		source.search = func(req domain.PageRequest) (*domain.SearchPage, error) {
			if req.Page == 2 {
				cancel()
			}
			return &domain.SearchPage{Entities: entities(fmt.Sprintf("p%d", req.Page), 10)}, nil
		}
		paginator := NewSearchPaginator(source, 10, 10)

		result := paginator.Paginate(ctx, testKey())

		assert.ErrorIs(t, result.Err, context.Canceled)
		assert.Len(t, result.Entities, 20)
		assert.Len(t, source.searchRequests(), 2)
	})
}

func TestNewSearchPaginator_Clamps(t *testing.T) {
	p := NewSearchPaginator(newFakeSource(), 500, 0)

	assert.Equal(t, domain.MaxPerPage, p.perPage)
	assert.Equal(t, 1, p.pageCap)
}
