package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type ErrorCategory string

const (
	CategoryParse     ErrorCategory = "PARSE"     // Malformed bencode or torrent structure
	CategoryNetwork   ErrorCategory = "NETWORK"   // Connection refused, reset, timeout
	CategoryProtocol  ErrorCategory = "PROTOCOL"  // Unexpected message or malformed handshake
	CategoryIntegrity ErrorCategory = "INTEGRITY" // Piece hash mismatch
	CategoryIO        ErrorCategory = "IO"        // File system issues
	CategoryContext   ErrorCategory = "CONTEXT"   // Context cancellation
	CategoryUnknown   ErrorCategory = "UNKNOWN"   // Unclassified errors
)

// TorrentError is a categorized failure surfaced to the command that
// started the operation. None of them are retried.
type TorrentError struct {
	Err       error         // Original error
	Category  ErrorCategory // General category
	Timestamp time.Time     // When the error occurred
	Resource  string        // What was being accessed: a file, a tracker URL, a peer address
	Details   map[string]any
}

// Error implements the error interface
func (e *TorrentError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("[%s] %v", e.Category, e.Err)
	}

	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *TorrentError) Unwrap() error {
	return e.Err
}

func newError(err error, category ErrorCategory, resource string) *TorrentError {
	return &TorrentError{
		Err:       err,
		Category:  category,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewParseError creates an error for malformed bencode or torrent data.
func NewParseError(err error, resource string) *TorrentError {
	return newError(err, CategoryParse, resource)
}

// NewNetworkError creates a network-related error. An explicit
// cancellation is reported under CategoryContext; deadline errors stay
// network errors since client timeouts surface as context.DeadlineExceeded
// too. Callers holding a context should use FromContext first.
func NewNetworkError(err error, resource string) *TorrentError {
	if errors.Is(err, context.Canceled) {
		return NewContextError(err, resource)
	}

	return newError(err, CategoryNetwork, resource)
}

// FromContext returns a context error when ctx has ended, otherwise a
// network error wrapping err.
func FromContext(ctx context.Context, err error, resource string) *TorrentError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewContextError(fmt.Errorf("%w: %w", ctxErr, err), resource)
	}

	return NewNetworkError(err, resource)
}

// NewProtocolError creates an error for a peer or tracker violating the protocol.
func NewProtocolError(err error, resource string) *TorrentError {
	return newError(err, CategoryProtocol, resource)
}

// NewIntegrityError creates an error for data failing hash verification.
func NewIntegrityError(err error, resource string) *TorrentError {
	return newError(err, CategoryIntegrity, resource)
}

// NewIOError creates an I/O related error
func NewIOError(err error, resource string) *TorrentError {
	return newError(err, CategoryIO, resource)
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *TorrentError {
	return newError(err, CategoryContext, resource)
}

// CategoryOf returns the category of the outermost TorrentError in err's
// chain, or CategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var te *TorrentError
	if As(err, &te) {
		return te.Category
	}

	return CategoryUnknown
}

// IsParseError determines if the error is a parse failure
func IsParseError(err error) bool {
	return CategoryOf(err) == CategoryParse
}

// IsNetworkError determines if the error is network-related
func IsNetworkError(err error) bool {
	return CategoryOf(err) == CategoryNetwork
}

// IsProtocolError determines if the error is a protocol violation
func IsProtocolError(err error) bool {
	return CategoryOf(err) == CategoryProtocol
}

// IsIntegrityError determines if the error is a verification failure
func IsIntegrityError(err error) bool {
	return CategoryOf(err) == CategoryIntegrity
}

// IsIOError determines if the error is I/O related
func IsIOError(err error) bool {
	return CategoryOf(err) == CategoryIO
}

// WithDetails adds additional context to a TorrentError
func WithDetails(err error, details map[string]any) error {
	var te *TorrentError
	if !As(err, &te) {
		return err
	}

	if te.Details == nil {
		te.Details = make(map[string]any)
	}

	for k, v := range details {
		te.Details[k] = v
	}

	return te
}
