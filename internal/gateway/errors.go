package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport indicates a read failed on the network or was not authorized.
	ErrTransport = errors.New("transport failure")
	// ErrPersistence indicates a write was rejected or failed after submission.
	ErrPersistence = errors.New("persistence failure")
	// ErrRowNotFound indicates a write targeted a row the store does not hold.
	ErrRowNotFound = errors.New("row not found")
)

// TransportError wraps a failed read.
type TransportError struct {
	Op    string // "fetch all" or "fetch page"
	Table string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// PersistenceError wraps a failed write.
type PersistenceError struct {
	Op    string // "insert", "update" or "delete"
	Table string
	ID    string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Table, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Read wraps err as a TransportError unless it already is one.
func Read(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Table: table, Err: err}
}

// Write wraps err as a PersistenceError unless it already is one.
func Write(op, table, id string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Table: table, ID: id, Err: err}
}
