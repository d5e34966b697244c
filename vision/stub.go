package vision

import (
	"context"
)

// DefaultStubDescription is what the stub analyzer reports for every image
const DefaultStubDescription = "This image contains a sunset over the ocean."

// StubAnalyzer stands in for a vision backend. It checks that the image
// can be compressed and then returns a fixed description.
type StubAnalyzer struct {
	Description string
}

// NewStubAnalyzer creates a stub analyzer with the default description
func NewStubAnalyzer() *StubAnalyzer {
	return &StubAnalyzer{Description: DefaultStubDescription}
}

// Analyze implements Analyzer
func (s *StubAnalyzer) Analyze(ctx context.Context, img *Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewBackendError(err)
	}

	if _, err := EncodeJPEG(img); err != nil {
		return "", err
	}

	if s.Description == "" {
		return DefaultStubDescription, nil
	}
	return s.Description, nil
}
