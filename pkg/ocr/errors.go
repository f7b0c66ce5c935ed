package ocr

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when receipt bytes cannot be decoded as an
// image (or rendered as a PDF). Terminal: retrying the same bytes cannot help.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// EngineError wraps a recognition-engine failure (crash, timeout). Retryable.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("ocr engine: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
