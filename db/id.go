package db

import "github.com/google/uuid"

// ValidUUID reports whether id can bind against a uuid column. Repositories
// treat malformed ids like absent rows; otherwise the uuid codec rejects the
// parameter before the query runs and the caller sees an encode error instead
// of a not-found outcome.
func ValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
