package listener

import "context"

// TransactionManager demarcates message handling in an externally
// coordinated transaction. When a container factory has one bound, handling
// runs inside InTransaction instead of the channel-local transaction
// fallback.
type TransactionManager interface {
	// InTransaction runs fn inside a transaction: committed when fn returns
	// nil, rolled back when it returns an error. The returned error is fn's
	// error or the commit failure.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactionManagerFunc adapts a function to the TransactionManager
// interface.
type TransactionManagerFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// InTransaction implements TransactionManager.
func (f TransactionManagerFunc) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
