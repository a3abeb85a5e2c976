package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidationFailed is the sentinel every ImportError unwraps to.
var ErrValidationFailed = errors.New("validation failed")

// Import rejection codes.
const (
	CodeArrayTooLarge      = "IMPORT_ARRAY_TOO_LARGE"
	CodeValidationFailed   = "IMPORT_VALIDATION_FAILED"
	CodeUnsupportedVersion = "IMPORT_UNSUPPORTED_VERSION"
	CodeInvalidMode        = "IMPORT_INVALID_MODE"
)

// ImportError rejects an import before any mutation.
// Violations is set for CodeArrayTooLarge (collection -> submitted count),
// Messages for every other code. Total is the number of problems found,
// which may exceed len(Messages).
type ImportError struct {
	Code       string
	Violations map[string]int
	Messages   []string
	Total      int
}

func (e *ImportError) Error() string {
	switch {
	case len(e.Violations) > 0:
		names := make([]string, 0, len(e.Violations))
		for name := range e.Violations {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%d", name, e.Violations[name])
		}
		return fmt.Sprintf("%s: %s", e.Code, strings.Join(parts, ", "))
	case len(e.Messages) > 0:
		return fmt.Sprintf("%s: %s", e.Code, strings.Join(e.Messages, "; "))
	default:
		return e.Code
	}
}

func (e *ImportError) Unwrap() error {
	return ErrValidationFailed
}

// AsImportError extracts an ImportError from err's chain.
func AsImportError(err error) (*ImportError, bool) {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
