//go:build gocv

package pothole

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// resizeRGB resizes with OpenCV bilinear interpolation. The mat is BGR;
// ToImage converts it back to RGBA.
func resizeRGB(img image.Image, size int) (image.Image, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return resized.ToImage()
}
