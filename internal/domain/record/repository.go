package record

import "context"

// Repository is the durable store for both record collections.
type Repository interface {
	Ping(ctx context.Context) error

	// List returns every stored row of a source in storage order.
	List(ctx context.Context, src Source) ([]*Record, error)
	// ListNew returns the rows flagged new in both collections, bills first.
	ListNew(ctx context.Context) ([]*Record, error)
	// ListUncategorized returns rows of a source with every service-line slot blank.
	ListUncategorized(ctx context.Context, src Source) ([]*Record, error)

	Insert(ctx context.Context, r *Record) error
	// UpdateColumns writes only cols of r, keyed by its natural key.
	UpdateColumns(ctx context.Context, r *Record, cols []Column) error

	// ResetNewFlags clears is_new on every row of both collections.
	ResetNewFlags(ctx context.Context) (int64, error)
	// PurgeDuplicates keeps the most recently extracted row per natural key.
	PurgeDuplicates(ctx context.Context, src Source) (int64, error)
}
