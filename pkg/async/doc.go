// Package async provides the concurrency primitives used for batch side
// effects: bounded-parallel fan-out with per-item error collection, and a
// panic-safe goroutine launcher for fire-and-forget work that genuinely
// needs no delivery guarantee.
//
// Batch runs one function per item with a concurrency limit and waits for
// every item before returning, so callers can treat the whole batch as a
// unit of work:
//
//	errs := async.Batch(ctx, userIDs, 8, func(ctx context.Context, id string) error {
//		return revoke(ctx, id)
//	})
//
// The returned slice is index-aligned with the input; a nil entry means
// the item succeeded.
package async
