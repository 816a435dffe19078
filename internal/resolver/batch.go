package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a query with its resolution outcome.
type BatchResult struct {
	Query  Query
	Result *Result
	Err    error
}

// ResolveBatch resolves queries concurrently with at most workers in flight
// and returns outcomes in input order. Per-query failures are reported on
// each BatchResult; the returned error is only set when ctx ends early.
func (r *Resolver) ResolveBatch(ctx context.Context, queries []Query, workers int) ([]BatchResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]BatchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.Resolve(gctx, q)
			results[i] = BatchResult{Query: q, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
