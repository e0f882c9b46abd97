package iamgraph

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by [SnapshotStore] implementations when no
// snapshot exists under the requested name.
var ErrNotFound = errors.New("not found")

// MalformedEntityError indicates a snapshot record is missing required
// fields or carries values outside the schema. Fatal during [Build].
type MalformedEntityError struct {
	ID     string
	Reason string
}

func (e *MalformedEntityError) Error() string {
	return fmt.Sprintf("malformed entity %q: %s", e.ID, e.Reason)
}

// InconsistentSnapshotError indicates a dangling reference between snapshot
// records. Fatal during [Build]: a silently dropped edge would under-report
// permissions.
type InconsistentSnapshotError struct {
	Source string
	Ref    string
}

func (e *InconsistentSnapshotError) Error() string {
	return fmt.Sprintf("inconsistent snapshot: %q references unknown %q", e.Source, e.Ref)
}

// UnknownIdentityError is returned by queries naming an identity that does
// not exist in the graph. Scoped to the single query.
type UnknownIdentityError struct {
	ID string
}

func (e *UnknownIdentityError) Error() string {
	return fmt.Sprintf("unknown identity %q", e.ID)
}

// InvalidPatternError is returned by queries whose action or resource
// pattern is empty or contains characters outside the action/ARN alphabet.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}
