package services

import "fmt"

// ClassificationError covers every failure of the external classifier:
// network errors, non-2xx responses, malformed model output, missing
// required fields. Proposals built on classifier output abort on it; nothing
// partial is persisted.
type ClassificationError struct {
	Message string
	Cause   error
}

func (e *ClassificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("classification failed: %s", e.Message)
}

func (e *ClassificationError) Unwrap() error {
	return e.Cause
}

// GroupingError is the same failure shape for the grouping collaborator.
type GroupingError struct {
	Message string
	Cause   error
}

func (e *GroupingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("grouping failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("grouping failed: %s", e.Message)
}

func (e *GroupingError) Unwrap() error {
	return e.Cause
}
