package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input validation failure in this package.
var ErrValidation = errors.New("validation failed")

var (
	ErrInvalidID            = fmt.Errorf("%w: invalid id", ErrValidation)
	ErrInvalidProjectID     = fmt.Errorf("%w: project id is required", ErrValidation)
	ErrInvalidTitle         = fmt.Errorf("%w: title is required", ErrValidation)
	ErrInvalidPriority      = fmt.Errorf("%w: invalid priority", ErrValidation)
	ErrInvalidStatus        = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidEstimate      = fmt.Errorf("%w: estimated hours must be zero or positive", ErrValidation)
	ErrInvalidAssignees     = fmt.Errorf("%w: assignedTo must be an array of user ids", ErrValidation)
	ErrInvalidChecklistItem = fmt.Errorf("%w: checklist item text is required", ErrValidation)
	ErrEmptyText            = fmt.Errorf("%w: text is required", ErrValidation)
	ErrInvalidRole          = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrInvalidDate          = fmt.Errorf("%w: invalid date", ErrValidation)
)

// ErrTimeLogStopped reports a stop attempt against a closed time log.
var ErrTimeLogStopped = errors.New("timer already stopped")
