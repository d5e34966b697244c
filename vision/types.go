package vision

import (
	"context"
	"fmt"
)

// Image is an opaque image blob as handed over by an image source
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Clone returns a deep copy of the image
func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	data := make([]byte, len(img.Data))
	copy(data, img.Data)
	return &Image{Data: data, MIMEType: img.MIMEType}
}

// Analyzer converts an image into a short textual description.
// Implementations return an *AnalysisError on failure.
type Analyzer interface {
	Analyze(ctx context.Context, img *Image) (string, error)
}

// AnalyzerFunc adapts a plain function to the Analyzer interface
type AnalyzerFunc func(ctx context.Context, img *Image) (string, error)

// Analyze calls f(ctx, img)
func (f AnalyzerFunc) Analyze(ctx context.Context, img *Image) (string, error) {
	return f(ctx, img)
}

// ErrorKind classifies analysis failures
type ErrorKind string

const (
	ErrorKindEncoding ErrorKind = "encoding"
	ErrorKindBackend  ErrorKind = "backend"
)

// AnalysisError reports that an image could not be turned into a description
type AnalysisError struct {
	Kind ErrorKind
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("image analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewEncodingError wraps err as an encoding failure
func NewEncodingError(err error) *AnalysisError {
	return &AnalysisError{Kind: ErrorKindEncoding, Err: err}
}

// NewBackendError wraps err as a failure of the analysis backend
func NewBackendError(err error) *AnalysisError {
	return &AnalysisError{Kind: ErrorKindBackend, Err: err}
}
