package outbound

import "context"

// TransactionManager runs a function inside a storage transaction.
// Repository calls made with the provided context join the transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
