package fstreedb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a get or remove targets an absent key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoParentExists is returned by Set when parent enforcement is on and
	// the parent path holds no data.
	ErrNoParentExists = errors.New("no parent exists")

	// ErrInvalidChain is wrapped by every *ChainError.
	ErrInvalidChain = errors.New("invalid chain")

	ErrAlreadyExecuted = errors.New("access already executed")
	ErrRolledBack      = errors.New("batch rolled back")
	ErrReservoirTooBig = errors.New("reservoir sample exceeds its maximum size")
	ErrClosed          = errors.New("database closed")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// ChainError describes why a sequence of elements is not a valid chain.
type ChainError struct {
	Elems []Element
	Pos   int
	Msg   string
}

func chainErrf(elems []Element, pos int, format string, args ...any) error {
	return &ChainError{elems, pos, fmt.Sprintf(format, args...)}
}

func (e *ChainError) Unwrap() error {
	return ErrInvalidChain
}

func (e *ChainError) Error() string {
	var buf strings.Builder
	buf.WriteString("invalid chain ")
	for i, el := range e.Elems {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.WriteString(el.String())
	}
	fmt.Fprintf(&buf, " at %d: %s", e.Pos, e.Msg)
	return buf.String()
}

// StorageError wraps an opaque backend failure.
type StorageError struct {
	Op        string
	Namespace Namespace
	Key       []byte
	Err       error
}

func storageErr(op string, ns Namespace, key []byte, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{op, ns, key, err}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Namespace, hexstr(e.Key), e.Err)
}

type SerializationError struct {
	TypeName string
	Err      error
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serializing %s: %v", e.TypeName, e.Err)
}

type DeserializationError struct {
	TypeName string
	Err      error
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserializing %s: %v", e.TypeName, e.Err)
}

// VersionTooBigError is returned when stored data is newer than any version
// known to the chain.
type VersionTooBigError struct {
	Version uint64
	Max     uint64
}

func (e *VersionTooBigError) Error() string {
	return fmt.Sprintf("stored version %d is newer than the latest known version %d", e.Version, e.Max)
}

// NoMigrationError is returned when the route between the stored version and
// the requested one crosses a step with no upgrade or downgrade declared.
// To and ToName always describe the version the caller asked for.
type NoMigrationError struct {
	From   uint64
	To     uint64
	ToName string
}

func (e *NoMigrationError) Error() string {
	return fmt.Sprintf("no migration from version %d to version %d (%s)", e.From, e.To, e.ToName)
}

// MigrationError is returned when an upgrade or downgrade function fails.
type MigrationError struct {
	From uint64
	To   uint64
	Err  error
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrating version %d to %d: %v", e.From, e.To, e.Err)
}
