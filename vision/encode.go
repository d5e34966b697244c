package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

// JPEGQuality is the compression quality used before an image leaves the device
const JPEGQuality = 80

// EncodeJPEG decodes the blob and re-encodes it as a JPEG.
// It fails with an encoding AnalysisError when the data is not a decodable image.
func EncodeJPEG(img *Image) ([]byte, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, NewEncodingError(errors.New("failed to convert image to JPEG data: empty image"))
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, NewEncodingError(fmt.Errorf("failed to convert image to JPEG data: %w", err))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, NewEncodingError(fmt.Errorf("failed to convert image to JPEG data: %w", err))
	}

	return buf.Bytes(), nil
}
