package models

import (
	"errors"
	"fmt"
)

// Stable machine-readable error kinds surfaced to callers.
const (
	KindExtraction       = "extraction_error"
	KindChunking         = "chunking_error"
	KindEmbedding        = "embedding_error"
	KindBudgetExceeded   = "budget_exceeded"
	KindVectorStorage    = "vector_storage_error"
	KindPrivacyViolation = "privacy_violation"
	KindInvalidQuery     = "invalid_query"
	KindGeneration       = "generation_error"
	KindCancelled        = "cancelled"
	KindInternal         = "internal_error"
)

// ErrPrivacyViolation is wrapped by the RAGError raised when a strict-mode
// answer fails validation.
var ErrPrivacyViolation = errors.New("response failed privacy validation")

type ExtractionError struct {
	ContentKind string
	Reason      string
	Err         error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %s: %v", e.ContentKind, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s): %s", e.ContentKind, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
func (e *ExtractionError) Kind() string  { return KindExtraction }

type ChunkingError struct {
	Reason string
	Err    error
}

func (e *ChunkingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunking failed: %s: %v", e.Reason, e.Err)
	}
	return "chunking failed: " + e.Reason
}

func (e *ChunkingError) Unwrap() error { return e.Err }
func (e *ChunkingError) Kind() string  { return KindChunking }

type EmbeddingError struct {
	Reason string
	Err    error
	Budget bool
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding failed: %s: %v", e.Reason, e.Err)
	}
	return "embedding failed: " + e.Reason
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Kind() string {
	if e.Budget {
		return KindBudgetExceeded
	}
	return KindEmbedding
}

type VectorStorageError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *VectorStorageError) Error() string {
	return fmt.Sprintf("vector storage %s on %s failed: %v", e.Op, e.Namespace, e.Err)
}

func (e *VectorStorageError) Unwrap() error { return e.Err }
func (e *VectorStorageError) Kind() string  { return KindVectorStorage }

// RAGError is returned by the orchestrator for any failing stage.
type RAGError struct {
	Stage   Stage
	ErrKind string
	Message string
	Err     error
}

func (e *RAGError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rag pipeline failed at %s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("rag pipeline failed at %s: %s", e.Stage, e.Message)
}

func (e *RAGError) Unwrap() error { return e.Err }

func (e *RAGError) Kind() string {
	if e.ErrKind != "" {
		return e.ErrKind
	}
	return KindInternal
}

type kinded interface {
	Kind() string
}

// ErrorKind returns the stable kind of the outermost typed error in the chain.
func ErrorKind(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// PublicMessage is the short human message safe to show to a caller.
func PublicMessage(err error) string {
	var ragErr *RAGError
	if errors.As(err, &ragErr) && ragErr.Message != "" {
		return ragErr.Message
	}
	switch ErrorKind(err) {
	case KindExtraction:
		return "The document could not be read"
	case KindChunking:
		return "The document could not be split into fragments"
	case KindBudgetExceeded:
		return "The daily embedding budget has been exhausted"
	case KindEmbedding:
		return "The text could not be embedded"
	case KindVectorStorage:
		return "The knowledge store is unavailable"
	}
	return "Internal error"
}
