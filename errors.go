package claim

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("claim: no store configured")
	ErrStoreClosed     = errors.New("claim: store closed")
	ErrMigrationFailed = errors.New("claim: migration failed")

	// Not found errors.
	ErrJobNotFound         = errors.New("claim: job not found")
	ErrTransactionNotFound = errors.New("claim: transaction not found")

	// Conflict errors.
	ErrJobAlreadyExists         = errors.New("claim: job already exists")
	ErrTransactionAlreadyExists = errors.New("claim: transaction already exists")

	// Validation errors.
	ErrInvalidStatus      = errors.New("claim: invalid status")
	ErrInvalidJob         = errors.New("claim: invalid job")
	ErrInvalidTransaction = errors.New("claim: invalid transaction")
	ErrEmptyWorkerID      = errors.New("claim: empty worker id")
	ErrUnknownKind        = errors.New("claim: unknown item kind")
)
