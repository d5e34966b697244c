package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"google.golang.org/genai"
)

func pngImage(t *testing.T) *Image {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			src.Set(x, y, color.RGBA{R: 255, G: uint8(x * 40), B: uint8(y * 40), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return &Image{Data: buf.Bytes(), MIMEType: "image/png"}
}

func TestStubAnalyzer_ReturnsConstantDescription(t *testing.T) {
	got, err := NewStubAnalyzer().Analyze(context.Background(), pngImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DefaultStubDescription {
		t.Fatalf("expected %q, got %q", DefaultStubDescription, got)
	}
}

func TestStubAnalyzer_RejectsUndecodableData(t *testing.T) {
	_, err := NewStubAnalyzer().Analyze(context.Background(), &Image{Data: []byte("not an image")})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	var ae *AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AnalysisError, got %T (%v)", err, err)
	}
	if ae.Kind != ErrorKindEncoding {
		t.Fatalf("expected encoding kind, got %q", ae.Kind)
	}
}

func TestStubAnalyzer_RejectsNilImage(t *testing.T) {
	_, err := NewStubAnalyzer().Analyze(context.Background(), nil)
	var ae *AnalysisError
	if !errors.As(err, &ae) || ae.Kind != ErrorKindEncoding {
		t.Fatalf("expected encoding AnalysisError, got %v", err)
	}
}

func TestEncodeJPEG_ProducesJPEG(t *testing.T) {
	data, err := EncodeJPEG(pngImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("expected JPEG SOI marker, got % x", data[:2])
	}
}

type fakeGenerator struct {
	text     string
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(f.text, genai.RoleModel)},
		},
	}, nil
}

func TestGeminiAnalyzer_SendsJPEGAndTrimsCaption(t *testing.T) {
	gen := &fakeGenerator{text: "  A tram crossing a bridge at dusk.\n"}
	a := NewGeminiAnalyzer(gen, "")

	got, err := a.Analyze(context.Background(), pngImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A tram crossing a bridge at dusk" {
		t.Fatalf("unexpected description: %q", got)
	}
	if gen.model != defaultVisionModel {
		t.Fatalf("expected default model, got %q", gen.model)
	}
	if len(gen.contents) != 1 || len(gen.contents[0].Parts) != 2 {
		t.Fatalf("expected one content with image and prompt parts")
	}
	if blob := gen.contents[0].Parts[0].InlineData; blob == nil || blob.MIMEType != "image/jpeg" {
		t.Fatalf("expected inline JPEG part, got %+v", gen.contents[0].Parts[0])
	}
}

func TestGeminiAnalyzer_BackendFailure(t *testing.T) {
	a := NewGeminiAnalyzer(&fakeGenerator{err: errors.New("quota exceeded")}, "gemini-test")

	_, err := a.Analyze(context.Background(), pngImage(t))
	var ae *AnalysisError
	if !errors.As(err, &ae) || ae.Kind != ErrorKindBackend {
		t.Fatalf("expected backend AnalysisError, got %v", err)
	}
}

func TestGeminiAnalyzer_EmptyCaptionIsAnError(t *testing.T) {
	a := NewGeminiAnalyzer(&fakeGenerator{text: "   "}, "")

	if _, err := a.Analyze(context.Background(), pngImage(t)); err == nil {
		t.Fatalf("expected error for empty caption")
	}
}

func TestGeminiAnalyzer_DoesNotCallBackendForBadImage(t *testing.T) {
	gen := &fakeGenerator{text: "never"}
	a := NewGeminiAnalyzer(gen, "")

	if _, err := a.Analyze(context.Background(), &Image{Data: []byte{1, 2, 3}}); err == nil {
		t.Fatalf("expected error")
	}
	if gen.contents != nil {
		t.Fatalf("backend should not be called when encoding fails")
	}
}
