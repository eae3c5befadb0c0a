package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeModelUnavailable = "MODEL_UNAVAILABLE"
	ErrCodeStoreUnreachable = "STORE_UNREACHABLE"
	ErrCodeSchemaMismatch   = "SCHEMA_MISMATCH"
	ErrCodeRegistryDrift    = "REGISTRY_DRIFT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyContent      = NewDomainError(ErrCodeValidation, "document content is empty")
	ErrMissingSource     = NewDomainError(ErrCodeValidation, "document source identifier is required")
	ErrInvalidSourceType = NewDomainError(ErrCodeValidation, "invalid source type")
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query text is empty")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Store and model errors
var (
	// ErrModelUnavailable means the embedding model failed to initialize
	// after retries. Fatal for the current call; the next call retries
	// initialization from scratch.
	ErrModelUnavailable = NewDomainError(ErrCodeModelUnavailable, "embedding model unavailable")

	// ErrSchemaMismatch means a vector's dimensionality disagrees with the
	// collection's configured size. A configuration bug, never coerced.
	ErrSchemaMismatch = NewDomainError(ErrCodeSchemaMismatch, "embedding dimensionality does not match collection schema")
)

// StoreUnreachable wraps a transport-level failure against the vector store
// or the registry. Callers should retry with backoff.
func StoreUnreachable(store string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStoreUnreachable, fmt.Sprintf("%s unreachable", store), err)
}

// PartialDeletionError reports a delete-by-source pass that removed some but
// not all matched points. Deleted is authoritative; the caller decides
// whether to retry the remainder.
type PartialDeletionError struct {
	Deleted   int
	Requested int
	Err       error
}

func (e *PartialDeletionError) Error() string {
	return fmt.Sprintf("[%s] deleted %d of %d points: %v", ErrCodeStoreUnreachable, e.Deleted, e.Requested, e.Err)
}

func (e *PartialDeletionError) Unwrap() error {
	return e.Err
}

// DriftError reports a registry chunk count that disagrees with the live
// vector-store count for a source. Recoverable via reconciliation; never
// auto-corrected silently.
type DriftError struct {
	Source        string
	RegistryCount int
	StoreCount    int
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("[%s] source %q: registry has %d chunks, vector store has %d", ErrCodeRegistryDrift, e.Source, e.RegistryCount, e.StoreCount)
}
