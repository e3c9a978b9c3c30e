package services

import (
	"context"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
	"github.com/custodia-labs/devtrawl/internal/logger"
)

// SearchPaginator walks the search pages of one partition.
type SearchPaginator struct {
	source  driven.Source
	perPage int
	pageCap int
}

// NewSearchPaginator creates a paginator. perPage is clamped to
// [1, domain.MaxPerPage] and pageCap to at least 1.
func NewSearchPaginator(source driven.Source, perPage, pageCap int) *SearchPaginator {
	if perPage < 1 || perPage > domain.MaxPerPage {
		perPage = domain.MaxPerPage
	}
	if pageCap < 1 {
		pageCap = 1
	}
	return &SearchPaginator{source: source, perPage: perPage, pageCap: pageCap}
}

// Paginate fetches pages of the partition starting at 1 until a short or
// empty page, the page cap, or a failed request. Entities collected before
// a failure are returned with Err set. An entity is returned at most once
// per call, in order of first appearance.
func (p *SearchPaginator) Paginate(ctx context.Context, key domain.PartitionKey) domain.PartitionResult {
	result := domain.PartitionResult{Partition: key}

	run := collectPages(ctx, p.perPage, p.pageCap, func(ctx context.Context, page int) ([]domain.Entity, error) {
		sp, err := p.source.SearchEntities(ctx, domain.PageRequest{
			Partition: key,
			Page:      page,
			PerPage:   p.perPage,
		})
		if err != nil {
			return nil, err
		}
		if page == 1 {
			result.TotalCount = sp.TotalCount
		}
		if sp.Incomplete {
			logger.Debug("paginator: %s page %d incomplete", key, page)
		}
		return sp.Entities, nil
	})

	seen := make(map[string]struct{}, len(run.items))
	result.Entities = make([]domain.Entity, 0, len(run.items))
	for _, e := range run.items {
		if _, ok := seen[e.Login]; ok {
			continue
		}
		seen[e.Login] = struct{}{}
		result.Entities = append(result.Entities, e)
	}

	result.Pages = run.pages
	result.Err = run.err
	result.Truncated = run.truncated || result.TotalCount > p.perPage*p.pageCap

	logger.Debug("paginator: %s pages=%d entities=%d total=%d truncated=%t",
		key, result.Pages, len(result.Entities), result.TotalCount, result.Truncated)
	return result
}
