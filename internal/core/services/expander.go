package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
	"github.com/custodia-labs/devtrawl/internal/logger"
)

// ExpanderOptions configures an EntityExpander.
type ExpanderOptions struct {
	// RepoPerPage is the page size of sub-resource listing.
	RepoPerPage int
	// RepoPageCap bounds sub-resource listing pages per entity.
	RepoPageCap int
	// CommitsPerRepo is the size of the single activity page per sub-resource.
	CommitsPerRepo int
	// NoReplyMarkers exclude identifiers containing them. Nil uses
	// domain.DefaultNoReplyMarkers.
	NoReplyMarkers []string
}

// EntityExpander turns a discovered entity into a contact record by walking
// its sub-resources and their recent activity.
type EntityExpander struct {
	source         driven.Source
	repoPerPage    int
	repoPageCap    int
	commitsPerRepo int
	markers        []string
	now            func() time.Time
}

// NewEntityExpander creates an expander over source.
func NewEntityExpander(source driven.Source, opts ExpanderOptions) *EntityExpander {
	if opts.RepoPerPage < 1 || opts.RepoPerPage > domain.MaxPerPage {
		opts.RepoPerPage = domain.MaxPerPage
	}
	if opts.RepoPageCap < 1 {
		opts.RepoPageCap = 1
	}
	if opts.CommitsPerRepo < 1 || opts.CommitsPerRepo > domain.MaxPerPage {
		opts.CommitsPerRepo = 30
	}
	if opts.NoReplyMarkers == nil {
		opts.NoReplyMarkers = domain.DefaultNoReplyMarkers
	}
	return &EntityExpander{
		source:         source,
		repoPerPage:    opts.RepoPerPage,
		repoPageCap:    opts.RepoPageCap,
		commitsPerRepo: opts.CommitsPerRepo,
		markers:        opts.NoReplyMarkers,
		now:            time.Now,
	}
}

// Expand lists the entity's sub-resources, reads the first activity page of
// each, and collects author identifiers. A failing sub-resource is skipped
// and the rest are still read; the returned error then wraps
// domain.ErrPartialFailure alongside a record built from what was found.
// An entity with no identifiers yields a nil record.
func (x *EntityExpander) Expand(ctx context.Context, key domain.PartitionKey, entity domain.Entity) (*domain.ContactRecord, error) {
	var (
		errs     []error
		failures int
	)

	run := collectPages(ctx, x.repoPerPage, x.repoPageCap, func(ctx context.Context, page int) ([]domain.SubResource, error) {
		return x.source.ListSubResources(ctx, entity.Login, page, x.repoPerPage)
	})
	if run.err != nil {
		failures++
		errs = append(errs, fmt.Errorf("list sub-resources of %s: %w", entity.Login, run.err))
	}

	ids := domain.NewIdentifierSet(x.markers)
	var origins []domain.SubResource
	visited := make(map[string]struct{}, len(run.items))

	for _, sub := range run.items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, ok := visited[sub.FullName()]; ok {
			continue
		}
		visited[sub.FullName()] = struct{}{}

		activity, err := x.source.ListActivity(ctx, sub, x.commitsPerRepo)
		if err != nil {
			failures++
			errs = append(errs, fmt.Errorf("list activity of %s: %w", sub.FullName(), err))
			logger.Debug("expander: skipping %s: %v", sub.FullName(), err)
			continue
		}

		contributed := false
		for _, a := range activity {
			if ids.Add(strings.TrimSpace(a.AuthorEmail)) {
				contributed = true
			}
		}
		if contributed {
			origins = append(origins, sub)
		}
	}

	var err error
	if len(errs) > 0 {
		err = fmt.Errorf("%w: %s: %w", domain.ErrPartialFailure, entity.Login, errors.Join(errs...))
	}

	if ids.Len() == 0 {
		return nil, err
	}

	return &domain.ContactRecord{
		EntityID:     entity.Login,
		Region:       key.Region,
		Partition:    key.ID(),
		ProfileURL:   entity.HTMLURL,
		Identifiers:  ids.Values(),
		Origins:      origins,
		Failures:     failures,
		DiscoveredAt: x.now().UTC(),
	}, err
}
