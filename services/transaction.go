package services

import (
	"context"
	"errors"

	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
)

// WithTransaction runs fn inside a storage transaction scoped to ctx.
// The transaction is committed when fn returns nil and rolled back otherwise.
// A panic in fn rolls back and is re-raised. Failures that are not already
// domain errors surface as StorageUnavailable, except cancellation, which
// is returned as the context error.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	_, err := WithTransactionResult(ctx, txMgr, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTransactionResult is WithTransaction for functions that produce a value.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result   T
		panicked interface{}
	)

	err := txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) (fnErr error) {
		defer func() {
			if p := recover(); p != nil {
				panicked = p
				fnErr = ErrInternal
			}
		}()
		result, fnErr = fn(txCtx)
		return fnErr
	})

	if panicked != nil {
		panic(panicked)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		return result, WrapStorage("transaction failed", err)
	}
	return result, nil
}
