package domain

import "fmt"

// ErrorKind is a comparable error class. Kinds are used directly as
// sentinels and as the Unwrap target of EntityError, so errors.Is works
// against either.
type ErrorKind string

func (k ErrorKind) Error() string { return string(k) }

const (
	// ErrInsufficientData means fewer entities, cohorts or history days
	// than a computation needs. The affected result is degraded, not aborted.
	ErrInsufficientData ErrorKind = "insufficient_data"
	// ErrStaleData means synced data is older than the staleness window.
	ErrStaleData ErrorKind = "stale_data"
	// ErrComputation means a numeric input cannot be interpreted, such as
	// negative spend. The entity is excluded and the cycle continues.
	ErrComputation ErrorKind = "computation"
	// ErrPersistence means the snapshot write failed and the cycle failed.
	ErrPersistence ErrorKind = "persistence"

	ErrNotFound        ErrorKind = "not_found"
	ErrCycleInProgress ErrorKind = "cycle_in_progress"
	ErrCycleTimeout    ErrorKind = "cycle_timeout"
	// ErrDuplicate means a store already holds a snapshot with the same
	// version or computation time.
	ErrDuplicate ErrorKind = "duplicate"
)

// EntityError is a per-entity failure recovered inside a stage. It is
// recorded on the stage output so a snapshot explains what was left out.
type EntityError struct {
	Kind     ErrorKind `json:"kind"`
	Stage    string    `json:"stage"`
	EntityID string    `json:"entity_id"`
	Detail   string    `json:"detail"`
}

func NewEntityError(kind ErrorKind, stage, entityID, format string, args ...interface{}) EntityError {
	return EntityError{Kind: kind, Stage: stage, EntityID: entityID, Detail: fmt.Sprintf(format, args...)}
}

func (e EntityError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", e.Stage, e.Kind, e.EntityID, e.Detail)
}

func (e EntityError) Unwrap() error { return e.Kind }
