package storage

import "errors"

var (
	// ErrNotFound is returned when a plan or execution does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a plan address or an execution ID is
	// already taken. Executions are append-only: a checkpoint is recorded once.
	ErrDuplicateKey = errors.New("duplicate key: record already exists")

	// ErrInvalidInput is returned for nil or malformed records.
	ErrInvalidInput = errors.New("invalid input")
)

// IgnoreDuplicate returns nil for ErrDuplicateKey and err otherwise.
// Replaying an execution into a history store that already holds it is a no-op.
func IgnoreDuplicate(err error) error {
	if errors.Is(err, ErrDuplicateKey) {
		return nil
	}
	return err
}
