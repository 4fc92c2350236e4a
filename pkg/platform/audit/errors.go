package audit

import "errors"

var (
	// ErrStorageNotReady means the audit table is not provisioned yet, for
	// example while the schema is being created. Callers on the dispatch path
	// skip the write; it is not a failure of the triggering mutation.
	ErrStorageNotReady = errors.New("audit storage not ready")

	// ErrStorageWrite means the store rejected or could not complete a write
	// for any other reason. It always propagates.
	ErrStorageWrite = errors.New("audit storage write failed")

	// ErrMalformedEntry means a caller built an entry without a required
	// field. It is a programming error and is never coerced.
	ErrMalformedEntry = errors.New("malformed audit entry")
)
