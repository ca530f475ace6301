package async

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Batch runs fn once per item with at most limit concurrent invocations
// and waits for all of them. Errors are collected per item instead of
// cancelling the batch: one item's failure must not block the others.
// Panics inside fn are recovered and reported as that item's error.
//
// The returned slice is index-aligned with items; nil entries succeeded.
func Batch[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) []error {
	if limit <= 0 {
		limit = 1
	}

	errs := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			errs[i] = runOne(gctx, item, fn)
			// Never return the error: the group must not cancel siblings.
			return nil
		})
	}

	// Wait cannot fail since every closure returns nil.
	_ = g.Wait()
	return errs
}

func runOne[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fn(ctx, item)
}

// SafeGo executes fn in a goroutine with a timeout, panic recovery and
// error logging. Use it instead of a bare `go func()` for background work
// that is explicitly fire-and-forget.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\n%s", taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[SafeGo] error in %s: %v", taskName, err)
		}
	}()
}
