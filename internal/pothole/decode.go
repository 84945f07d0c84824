package pothole

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels bounds the decoded size of an uploaded image.
const MaxImagePixels = 50_000_000

// DecodeImage decodes an encoded image (JPEG, PNG, GIF, BMP, TIFF or WebP)
// and applies its EXIF orientation. It returns the image, its format name
// and a *PreprocessingError for anything that is not a decodable image.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &PreprocessingError{Reason: "empty image data"}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// The registered WebP decoder does not cover every encoder variant.
		return decodeWebP(data, err)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", &PreprocessingError{Reason: "failed to decode " + format, Err: err}
	}
	return img, format, nil
}

func decodeWebP(data []byte, cause error) (image.Image, string, error) {
	width, height, _, err := webp.GetInfo(data)
	if err != nil {
		return nil, "", &PreprocessingError{Reason: "not a decodable image", Err: cause}
	}
	if err := checkSize(width, height); err != nil {
		return nil, "", err
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &PreprocessingError{Reason: "failed to decode webp", Err: err}
	}
	return img, "webp", nil
}

// checkSize rejects empty images and images above MaxImagePixels. It never
// multiplies the dimensions, so it cannot overflow.
func checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return &PreprocessingError{Reason: fmt.Sprintf("zero-size image (%dx%d)", width, height)}
	}
	if width > MaxImagePixels/height {
		return &PreprocessingError{Reason: fmt.Sprintf("image too large (%dx%d)", width, height)}
	}
	return nil
}
