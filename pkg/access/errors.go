package access

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a lookup whose subject does not exist (or is
// soft-deleted). The resolver maps it to "no permissions" rather than
// failing; repository transport errors are never wrapped with it.
var ErrNotFound = errors.New("not found")

// RevocationFailure records a single user's failed revocation inside a
// reconciliation batch.
type RevocationFailure struct {
	UserID string
	Err    error
}

// BatchError aggregates per-user revocation failures. One user's failure
// must not block the rest of the batch, so the reconciler collects these
// and reports them together.
type BatchError struct {
	Failures []RevocationFailure
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 0 {
		return "reconciliation batch failed"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("user %s: %v", f.UserID, f.Err))
	}
	return fmt.Sprintf("reconciliation failed for %d user(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the first underlying error for errors.Is/As chains.
func (e *BatchError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}
