package db

import "errors"

// Sentinel errors for storage operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op names used for error context.
const (
	OpWait    = "WAIT"
	OpPing    = "PING"
	OpGet     = "GET"
	OpSet     = "SET"
	OpKNN     = "KNN"
	OpInsert  = "INSERT"
	OpUpdate  = "UPDATE"
	OpList    = "LIST"
	OpCount   = "COUNT"
	OpMigrate = "MIGRATE"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "db: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
