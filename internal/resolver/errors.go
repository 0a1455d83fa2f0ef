package resolver

import (
	"errors"
	"fmt"
)

// Failure categories. Every error returned by Resolve and Analyze is a
// *StageError wrapping exactly one of these.
var (
	ErrValidation  = errors.New("invalid request")
	ErrNotFound    = errors.New("log record not found")
	ErrEmbedding   = errors.New("embedding failed")
	ErrRetrieval   = errors.New("retrieval failed")
	ErrGeneration  = errors.New("generation failed")
	ErrPersistence = errors.New("saving resolution failed")
)

// Pipeline steps named in StageError, logs, spans, and metrics.
const (
	StageValidate  = "validate"
	StageLookup    = "lookup"
	StageNormalize = "normalize"
	StageEmbed     = "embed"
	StageRetrieve  = "retrieve"
	StageContext   = "build_context"
	StageGenerate  = "generate"
	StagePersist   = "persist"
)

// StageError reports which step failed and the last state the request
// reached before it did.
type StageError struct {
	Stage string
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (state %s): %v", e.Stage, e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
