// Package capture provides image sources for the presentation layer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/nachoal/urban-quest/vision"
)

// MaxImageSize caps how much data a single capture may return
const MaxImageSize = 20 << 20

var (
	// ErrPermissionDenied is returned when the source may not be read
	ErrPermissionDenied = errors.New("image access denied")

	// ErrNoImage is returned when nothing was selected
	ErrNoImage = errors.New("no image selected")

	// ErrNotAnImage is returned when the selected data is not an image
	ErrNotAnImage = errors.New("selected file is not an image")

	// ErrTooLarge is returned when the image exceeds MaxImageSize
	ErrTooLarge = errors.New("image is too large")
)

// Source supplies a single image per call
type Source interface {
	Capture(ctx context.Context) (*vision.Image, error)
}

// FileSource reads an image from the local filesystem
type FileSource struct {
	Path string
}

// NewFileSource creates a file source, expanding a leading ~
func NewFileSource(path string) *FileSource {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return &FileSource{Path: path}
}

// Capture implements Source
func (s *FileSource) Capture(ctx context.Context) (*vision.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, ErrNoImage
	}

	f, err := os.Open(s.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, s.Path)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoImage, s.Path)
		default:
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotAnImage, s.Path)
	}
	if info.Size() > MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	return FromBytes(data)
}

// FromBytes wraps raw data as an image after sniffing its MIME type
func FromBytes(data []byte) (*vision.Image, error) {
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w (detected %s)", ErrNotAnImage, mimeType)
	}

	return &vision.Image{Data: data, MIMEType: mimeType}, nil
}
