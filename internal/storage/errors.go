package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bull/docshub/internal/apperr"
)

var (
	ErrStoreUnreachable   = errors.New("sqlite store unreachable")
	ErrRepositoryNotFound = &apperr.Error{Kind: apperr.KindNotFound, Message: "repository not found"}
)

// storeErr classifies a database failure as store-unavailable. Context
// errors pass through so callers can tell cancellation from failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.E(apperr.KindStoreUnavailable, op, err)
}
