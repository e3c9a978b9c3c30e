package services

import "context"

// pageFunc fetches one page, numbered from 1.
type pageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// pageRun is the result of walking a paginated listing.
type pageRun[T any] struct {
	items     []T
	pages     int
	truncated bool
	err       error
}

// collectPages fetches pages in order until a page is shorter than perPage,
// the page cap is reached, or a fetch fails. Items fetched before a failure
// or cancellation are kept. truncated is set when a full page was the last
// one allowed by pageCap.
func collectPages[T any](ctx context.Context, perPage, pageCap int, fetch pageFunc[T]) pageRun[T] {
	var run pageRun[T]

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			run.err = err
			return run
		}

		items, err := fetch(ctx, page)
		if err != nil {
			run.err = err
			return run
		}

		run.items = append(run.items, items...)
		run.pages++

		if len(items) < perPage {
			return run
		}
		if page >= pageCap {
			run.truncated = true
			return run
		}
	}
}
