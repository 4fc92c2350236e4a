package audit

import "context"

// Store persists entries. Implementations must return ErrStorageNotReady
// (wrapped or not) when the backing table does not exist yet.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, q Query) (Page, error)
}
