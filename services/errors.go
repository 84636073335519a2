package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunkerOptions is returned for a chunk size below 1 or an
	// overlap outside [0, size).
	ErrInvalidChunkerOptions = errors.New("invalid chunker options")
	// ErrMissingSource is returned for a document without a source id.
	ErrMissingSource = errors.New("document has no source metadata")
	// ErrInvalidK is returned when fewer than one result is requested.
	ErrInvalidK = errors.New("k must be at least 1")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNothingIndexed is returned when every chunk of a batch failed.
	ErrNothingIndexed = errors.New("no chunk could be indexed")
	// ErrEmbeddingModelMismatch marks an index built with another embedding model.
	ErrEmbeddingModelMismatch = errors.New("embedding model does not match the index")
)

// EmbeddingFailure reports a failed call to the embedding model.
type EmbeddingFailure struct {
	Op  string
	Err error
}

func (e *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embedding failure (%s): %v", e.Op, e.Err)
}

func (e *EmbeddingFailure) Unwrap() error { return e.Err }

// GenerationFailure reports a failed or malformed language model call.
type GenerationFailure struct {
	Op  string
	Err error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failure (%s): %v", e.Op, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// Stage is a step of a pipeline call.
type Stage string

const (
	StageContextualize Stage = "CONTEXTUALIZE"
	StageRetrieve      Stage = "RETRIEVE"
	StageSynthesize    Stage = "SYNTHESIZE"
	StageComplete      Stage = "COMPLETE"
	StageFailed        Stage = "FAILED"
)

// PipelineError is the tagged failure of a query: the stage that failed and
// the cause.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("query failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
