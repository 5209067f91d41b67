package engineer

import "context"

// Repository defines persistence of engineer wallets. All calls are scoped to the
// tenant in ctx and are expected to run inside one transaction per posting.
type Repository interface {
	// LockProfile creates the profile when missing, increments its version and returns it.
	// The version bump serializes concurrent postings for the same engineer.
	LockProfile(ctx context.Context, engineerID string) (*Profile, error)
	GetProfile(ctx context.Context, engineerID string) (*Profile, error)
	UpdateBalance(ctx context.Context, engineerID string, balance int64) error

	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	CreateTransaction(ctx context.Context, txn *Transaction) error
	// ListTransactions returns the ledger ordered by sequence
	ListTransactions(ctx context.Context, engineerID string) ([]*Transaction, error)
}
