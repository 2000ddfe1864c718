package upsert

import (
	"errors"
	"fmt"
)

const maxRawLength = 512

var (
	// ErrStructural is matched by every error caused by the shape of an input document.
	ErrStructural = errors.New("invalid document")
	// ErrReservedField if a document sets the identity field itself.
	ErrReservedField = fmt.Errorf("setting %q is not supported", IdentityField)
	// ErrNotObject if a document root is valid JSON but not an object.
	ErrNotObject = errors.New("expected a JSON object")
	// ErrNonScalarKey if a deduplication key holds an object, an array or null.
	ErrNonScalarKey = errors.New("upsert key must hold a string, number or boolean")
)

// StructuralError reports a document that can never be loaded. It is not retryable.
type StructuralError struct {
	// Index is the zero-based line number of the document in the input.
	Index int
	// Raw is the document text, truncated for display.
	Raw string
	Err error
}

func newStructuralError(index int, raw string, err error) *StructuralError {
	if len(raw) > maxRawLength {
		raw = raw[:maxRawLength] + "..."
	}
	return &StructuralError{Index: index, Raw: raw, Err: err}
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("document %d: %v: %s", e.Index, e.Err, e.Raw)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}
