//go:build !gocv

package pothole

import (
	"image"

	"github.com/nfnt/resize"
)

func resizeRGB(img image.Image, size int) (image.Image, error) {
	return resize.Resize(uint(size), uint(size), img, resize.Bilinear), nil
}
