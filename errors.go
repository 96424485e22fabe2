package dinnerlock

import "errors"

// Sentinel errors for the failure modes callers are expected to branch on.
// Cross-tenant access is deliberately absent from this list: a read addressed
// at another household's row returns ErrNotFound exactly as a genuinely
// absent row would, and a write is a silent no-op. Confirming or denying the
// existence of another household's data is itself a leak.
var (
	// ErrContractViolation wraps a pkg/sqlcheck rule failure. It indicates a
	// programming error in a statement, not a transient condition: it is
	// always fatal, never retried, and intended to be caught by the statement
	// corpus tests rather than observed in production.
	ErrContractViolation = errors.New("dinnerlock: statement violates tenant-isolation contract")

	// ErrReadonly is returned when a write is attempted while the storage
	// adapter is in readonly mode. Distinct from ErrContractViolation so
	// callers can surface a maintenance-mode message instead of a bug report.
	ErrReadonly = errors.New("dinnerlock: storage adapter is readonly")

	// ErrNotFound is returned when a row does not exist for the requesting
	// household. It is also the answer for rows that exist under a different
	// household key.
	ErrNotFound = errors.New("dinnerlock: not found")

	// ErrNoActiveSession is returned when a household has no session with a
	// pending outcome and no end time.
	ErrNoActiveSession = errors.New("dinnerlock: no active session")

	// ErrSessionActive is returned by Start when the household already has an
	// active session. Callers must accept, rescue, or abandon it first.
	ErrSessionActive = errors.New("dinnerlock: active session already exists")

	// ErrSessionClosed is returned when a decision-bearing write is addressed
	// at a session whose outcome is terminal.
	ErrSessionClosed = errors.New("dinnerlock: session already closed")

	// ErrFallbackExhausted is returned by the rescue engine when a
	// household's hierarchy is empty. This signals a configuration defect;
	// callers must treat it as fatal and alert rather than retry, since
	// retrying cannot produce a different result.
	ErrFallbackExhausted = errors.New("dinnerlock: no fallback available")
)

// IsContractViolationErr returns true if err is or wraps ErrContractViolation.
func IsContractViolationErr(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

// IsReadonlyErr returns true if err is or wraps ErrReadonly.
func IsReadonlyErr(err error) bool {
	return errors.Is(err, ErrReadonly)
}

// IsNotFoundErr returns true if err is or wraps ErrNotFound.
func IsNotFoundErr(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoActiveSessionErr returns true if err is or wraps ErrNoActiveSession.
func IsNoActiveSessionErr(err error) bool {
	return errors.Is(err, ErrNoActiveSession)
}

// IsFallbackExhaustedErr returns true if err is or wraps ErrFallbackExhausted.
func IsFallbackExhaustedErr(err error) bool {
	return errors.Is(err, ErrFallbackExhausted)
}
