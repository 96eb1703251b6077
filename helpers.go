package cotask

import "fmt"

// ForEach runs fn for every item as its own task and waits for all of
// them. It is a convenience wrapper around [NewScope] and [SpawnIn].
//
//	err := cotask.ForEach(rt, urls, func(tc *cotask.Context, u string) error {
//	    return fetch(tc, u)
//	})
func ForEach[T any](rt *Runtime, items []T, fn func(tc *Context, item T) error, opts ...ScopeOption) error {
	sc := NewScope(rt, opts...)
	for i, item := range items {
		SpawnIn(sc, fmt.Sprintf("foreach[%d]", i), TaskFunc[struct{}](
			func(tc *Context) (struct{}, error, bool) {
				return struct{}{}, fn(tc, item), true
			},
		))
	}
	return sc.Wait()
}

// Map runs fn for every item as its own task and collects the results in
// input order. On any fault Map returns nil and the aggregated error.
func Map[T, R any](rt *Runtime, items []T, fn func(tc *Context, item T) (R, error), opts ...ScopeOption) ([]R, error) {
	results := make([]R, len(items))
	sc := NewScope(rt, opts...)
	for i, item := range items {
		SpawnIn(sc, fmt.Sprintf("map[%d]", i), TaskFunc[struct{}](
			func(tc *Context) (struct{}, error, bool) {
				r, err := fn(tc, item)
				if err != nil {
					return struct{}{}, err, true
				}
				results[i] = r // safe: each task writes a unique index
				return struct{}{}, nil, true
			},
		))
	}
	if err := sc.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
