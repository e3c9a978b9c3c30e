package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// fakeSource implements driven.Source from canned data.
type fakeSource struct {
	mu sync.Mutex

	// search returns the page for a request. Nil yields empty pages.
	search func(req domain.PageRequest) (*domain.SearchPage, error)

	// subs and activity are keyed by login and full name.
	subs        map[string][]domain.SubResource
	subErr      map[string]error
	activity    map[string][]domain.Activity
	activityErr map[string]error

	// onActivity runs before every activity request.
	onActivity func(sub domain.SubResource)

	searchCalls   []domain.PageRequest
	subCalls      int
	activityCalls []string
}

var _ driven.Source = (*fakeSource)(nil)

func newFakeSource() *fakeSource {
	return &fakeSource{
		subs:        make(map[string][]domain.SubResource),
		subErr:      make(map[string]error),
		activity:    make(map[string][]domain.Activity),
		activityErr: make(map[string]error),
	}
}

func (f *fakeSource) SearchEntities(_ context.Context, req domain.PageRequest) (*domain.SearchPage, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, req)
	search := f.search
	f.mu.Unlock()

	if search == nil {
		return &domain.SearchPage{}, nil
	}
	return search(req)
}

func (f *fakeSource) ListSubResources(_ context.Context, login string, page, perPage int) ([]domain.SubResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++

	if err := f.subErr[login]; err != nil {
		return nil, err
	}
	all := f.subs[login]
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeSource) ListActivity(_ context.Context, sub domain.SubResource, _ int) ([]domain.Activity, error) {
	f.mu.Lock()
	f.activityCalls = append(f.activityCalls, sub.FullName())
	hook := f.onActivity
	err := f.activityErr[sub.FullName()]
	acts := f.activity[sub.FullName()]
	f.mu.Unlock()

	if hook != nil {
		hook(sub)
	}
	if err != nil {
		return nil, err
	}
	return acts, nil
}

// withRepo gives login one repository whose commits carry emails.
func (f *fakeSource) withRepo(login, repo string, emails ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := domain.SubResource{Owner: login, Name: repo}
	f.subs[login] = append(f.subs[login], sub)
	for i, e := range emails {
		f.activity[sub.FullName()] = append(f.activity[sub.FullName()], domain.Activity{
			SHA:         fmt.Sprintf("%s-%d", repo, i),
			AuthorEmail: e,
		})
	}
}

func (f *fakeSource) searchRequests() []domain.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PageRequest(nil), f.searchCalls...)
}

// entities returns n entities named prefix-0 .. prefix-(n-1).
func entities(prefix string, n int) []domain.Entity {
	out := make([]domain.Entity, n)
	for i := range out {
		login := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = domain.Entity{Login: login, ID: int64(i + 1), HTMLURL: "https://github.com/" + login}
	}
	return out
}

// pagedSearch serves the given page sizes in order, with logins unique
// across pages.
func pagedSearch(total int, sizes ...int) func(req domain.PageRequest) (*domain.SearchPage, error) {
	return func(req domain.PageRequest) (*domain.SearchPage, error) {
		if req.Page > len(sizes) {
			return &domain.SearchPage{TotalCount: total}, nil
		}
		prefix := fmt.Sprintf("%s-p%d", req.Partition.Region, req.Page)
		return &domain.SearchPage{TotalCount: total, Entities: entities(prefix, sizes[req.Page-1])}, nil
	}
}

// failingSink rejects every batch as a whole.
type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) SaveBatch(_ context.Context, _ []domain.ContactRecord) (domain.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return domain.SaveResult{}, fmt.Errorf("%w: connection refused", domain.ErrPersistence)
}

func (s *failingSink) Close() error { return nil }
