package types

import "strings"

// ValidationError reports one or more field-level validation failures.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// LookupError reports that an identified resource does not exist.
type LookupError struct {
	Resource string
	ID       string
}

func (e *LookupError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// NewLookupError builds a LookupError for the given resource kind and id.
func NewLookupError(resource, id string) *LookupError {
	return &LookupError{Resource: resource, ID: id}
}
