package github

import (
	"context"
	"encoding/json"
	"errors"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// Request names used in logs and metrics.
const (
	OpSearchUsers = "search_users"
	OpListRepos   = "list_repos"
	OpListCommits = "list_commits"
)

// Verify interface compliance.
var _ driven.Source = (*Source)(nil)

// Source reads users, repositories and commits from the GitHub REST API.
type Source struct {
	fetcher *Fetcher
}

// NewSource creates a source backed by fetcher.
func NewSource(fetcher *Fetcher) *Source {
	return &Source{fetcher: fetcher}
}

// SearchEntities returns one page of the user search for a partition.
func (s *Source) SearchEntities(ctx context.Context, req domain.PageRequest) (*domain.SearchPage, error) {
	query := SearchQuery(req.Partition)
	opts := &gh.SearchOptions{
		ListOptions: gh.ListOptions{Page: req.Page, PerPage: req.PerPage},
	}

	var result *gh.UsersSearchResult
	outcome := s.fetcher.Do(ctx, OpSearchUsers, func(ctx context.Context, client *gh.Client) (*gh.Response, error) {
		r, resp, err := client.Search.Users(ctx, query, opts)
		result = r
		return resp, err
	})
	if err := outcome.Err(); err != nil {
		return nil, err
	}

	page := &domain.SearchPage{
		TotalCount: result.GetTotal(),
		Incomplete: result.GetIncompleteResults(),
		Entities:   make([]domain.Entity, 0, len(result.Users)),
	}
	for _, u := range result.Users {
		if u == nil || u.GetLogin() == "" {
			continue
		}
		profile, err := json.Marshal(u)
		if err != nil {
			profile = nil
		}
		page.Entities = append(page.Entities, domain.Entity{
			Login:   u.GetLogin(),
			ID:      u.GetID(),
			HTMLURL: u.GetHTMLURL(),
			Profile: profile,
		})
	}
	return page, nil
}

// ListSubResources returns one page of the public repositories of login.
func (s *Source) ListSubResources(ctx context.Context, login string, page, perPage int) ([]domain.SubResource, error) {
	opts := &gh.RepositoryListByUserOptions{
		ListOptions: gh.ListOptions{Page: page, PerPage: perPage},
	}

	var repos []*gh.Repository
	outcome := s.fetcher.Do(ctx, OpListRepos, func(ctx context.Context, client *gh.Client) (*gh.Response, error) {
		r, resp, err := client.Repositories.ListByUser(ctx, login, opts)
		repos = r
		return resp, err
	})
	if err := outcome.Err(); err != nil {
		return nil, err
	}

	subs := make([]domain.SubResource, 0, len(repos))
	for _, r := range repos {
		if r == nil || r.GetName() == "" {
			continue
		}
		owner := r.GetOwner().GetLogin()
		if owner == "" {
			owner = login
		}
		subs = append(subs, domain.SubResource{Owner: owner, Name: r.GetName()})
	}
	return subs, nil
}

// ListActivity returns the first page of commits of a repository. An empty
// repository has no activity and is not an error.
func (s *Source) ListActivity(ctx context.Context, sub domain.SubResource, perPage int) ([]domain.Activity, error) {
	opts := &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var commits []*gh.RepositoryCommit
	outcome := s.fetcher.Do(ctx, OpListCommits, func(ctx context.Context, client *gh.Client) (*gh.Response, error) {
		c, resp, err := client.Repositories.ListCommits(ctx, sub.Owner, sub.Name, opts)
		commits = c
		return resp, err
	})
	if err := outcome.Err(); err != nil {
		if errors.Is(err, ErrEmptyRepository) {
			return nil, nil
		}
		return nil, err
	}

	activity := make([]domain.Activity, 0, len(commits))
	for _, c := range commits {
		if c == nil {
			continue
		}
		author := c.GetCommit().GetAuthor()
		activity = append(activity, domain.Activity{
			SHA:         c.GetSHA(),
			AuthorName:  author.GetName(),
			AuthorEmail: author.GetEmail(),
		})
	}
	return activity, nil
}
