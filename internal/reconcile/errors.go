package reconcile

import "fmt"

// Write scopes reported by WriteError.
const (
	ScopeCore     = "core"
	ScopeLogs     = "logs"
	ScopeMetadata = "metadata"
)

// WriteError reports a storage failure after validation passed.
// Scope names what was being written: ScopeCore and ScopeLogs for the
// replace transactions, otherwise a collection or section name.
// Partial is true when earlier writes of the same import were kept.
type WriteError struct {
	Scope   string
	Partial bool
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Scope, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
