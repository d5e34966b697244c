package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))

	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestFileSource_CapturesImage(t *testing.T) {
	path := writePNG(t, t.TempDir())

	img, err := NewFileSource(path).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.NotEmpty(t, img.Data)
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.jpg")).Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestFileSource_EmptyPath(t *testing.T) {
	_, err := NewFileSource("  ").Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestFileSource_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o644))

	_, err := NewFileSource(path).Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestFileSource_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for this user")
	}
	path := writePNG(t, t.TempDir())
	require.NoError(t, os.Chmod(path, 0o000))

	_, err := NewFileSource(path).Capture(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFileSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSource("whatever.png").Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromBytes_Empty(t *testing.T) {
	_, err := FromBytes(nil)
	assert.ErrorIs(t, err, ErrNoImage)
}
