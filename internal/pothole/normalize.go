package pothole

import (
	"fmt"
	"image"

	"github.com/roadguard/pothole-api/internal/model"
)

// Normalize stretches img to size x size (aspect ratio is not kept), scales
// every channel from 0-255 to [0,1] and lays it out as an NHWC batch of one.
func Normalize(img image.Image, size int) (model.Tensor, error) {
	if img == nil {
		return model.Tensor{}, &PreprocessingError{Reason: "no image"}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return model.Tensor{}, &PreprocessingError{Reason: fmt.Sprintf("zero-size image (%dx%d)", b.Dx(), b.Dy())}
	}
	if size <= 0 {
		return model.Tensor{}, &PreprocessingError{Reason: fmt.Sprintf("invalid input size %d", size)}
	}

	resized, err := resizeRGB(img, size)
	if err != nil {
		return model.Tensor{}, &PreprocessingError{Reason: "resize failed", Err: err}
	}
	rb := resized.Bounds()
	if rb.Dx() != size || rb.Dy() != size {
		return model.Tensor{}, &PreprocessingError{Reason: fmt.Sprintf("resize produced %dx%d", rb.Dx(), rb.Dy())}
	}

	t := model.Tensor{Height: size, Width: size, Channels: 3, Data: make([]float32, size*size*3)}
	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				o := rgba.PixOffset(rb.Min.X+x, rb.Min.Y+y)
				i := (y*size + x) * 3
				t.Data[i] = float32(rgba.Pix[o]) / 255
				t.Data[i+1] = float32(rgba.Pix[o+1]) / 255
				t.Data[i+2] = float32(rgba.Pix[o+2]) / 255
			}
		}
		return t, nil
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			i := (y*size + x) * 3
			t.Data[i] = float32(r>>8) / 255
			t.Data[i+1] = float32(g>>8) / 255
			t.Data[i+2] = float32(bl>>8) / 255
		}
	}
	return t, nil
}

// FromPixels wraps a raw, row-major RGB pixel array as an image.
func FromPixels(width, height, channels int, pix []uint8) (image.Image, error) {
	if channels != 3 {
		return nil, &PreprocessingError{Reason: fmt.Sprintf("expected 3 channels, got %d", channels)}
	}
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	if len(pix) != width*height*3 {
		return nil, &PreprocessingError{Reason: fmt.Sprintf("expected %d values, got %d", width*height*3, len(pix))}
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4] = pix[i*3]
		img.Pix[i*4+1] = pix[i*3+1]
		img.Pix[i*4+2] = pix[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}
