package pothole

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeBytes(t *testing.T) {
	d := newTestDetector(t, Options{})
	data := encodePNG(t, solidImage(64, 48, gray))

	report, err := d.AnalyzeBytes("road.png", data)
	require.NoError(t, err)
	_, err = uuid.Parse(report.ID)
	require.NoError(t, err)
	assert.Equal(t, "road.png", report.Filename)
	assert.Equal(t, len(data), report.FileSize)
	assert.Equal(t, "png", report.Format)
	assert.Equal(t, ImageDimensions{Width: 64, Height: 48}, report.ImageDimensions)
	requireBounded(t, report.AnalysisResult)

	var perr *PreprocessingError
	_, err = d.AnalyzeBytes("notes.txt", []byte("definitely not an image"))
	require.ErrorAs(t, err, &perr)
}

func TestAnalyzeBatch(t *testing.T) {
	d := newTestDetector(t, Options{})
	data := encodePNG(t, solidImage(20, 20, gray))

	items := make([]BatchItem, MaxBatchSize)
	for i := range items {
		items[i] = BatchItem{Filename: fmt.Sprintf("img%d.png", i), ContentType: "image/png", Data: data}
	}
	res, err := d.AnalyzeBatch(items)
	require.NoError(t, err)
	assert.Len(t, res.Results, MaxBatchSize)
	assert.Empty(t, res.Errors)
	for i, r := range res.Results {
		assert.Equal(t, items[i].Filename, r.Filename)
	}

	_, err = d.AnalyzeBatch(append(items, items[0]))
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestAnalyzeBatchIsolatesFailures(t *testing.T) {
	d := newTestDetector(t, Options{})
	res, err := d.AnalyzeBatch([]BatchItem{
		{Filename: "good.png", ContentType: "image/png", Data: encodePNG(t, solidImage(20, 20, gray))},
		{Filename: "corrupt.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G', 0, 1}},
		{Filename: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "good.png", res.Results[0].Filename)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "corrupt.png", res.Errors[0].Filename)
	assert.Equal(t, "doc.pdf", res.Errors[1].Filename)
}

func TestIsImageContentType(t *testing.T) {
	assert.True(t, IsImageContentType(""))
	assert.True(t, IsImageContentType("image/jpeg"))
	assert.True(t, IsImageContentType("image/png; charset=binary"))
	assert.False(t, IsImageContentType("text/plain"))
	assert.False(t, IsImageContentType(";;"))
}

func TestDecodeImage(t *testing.T) {
	img, format, err := DecodeImage(encodePNG(t, solidImage(10, 7, gray)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(12, 9, color.RGBA{R: 200, A: 255}), nil))
	img, format, err = DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 12, img.Bounds().Dx())

	var perr *PreprocessingError
	_, _, err = DecodeImage(nil)
	require.ErrorAs(t, err, &perr)
	_, _, err = DecodeImage([]byte("not an image at all"))
	require.ErrorAs(t, err, &perr)
}

// hugeWebP is a lossless WebP header declaring 16384x16384 pixels with no image data.
func hugeWebP() []byte {
	data := []byte("RIFF\x11\x00\x00\x00WEBPVP8L\x05\x00\x00\x00")
	return append(data, 0x2f, 0xff, 0xff, 0xff, 0x0f)
}

func TestDecodeImageRejectsHugeWebP(t *testing.T) {
	var perr *PreprocessingError
	_, _, err := DecodeImage(hugeWebP())
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "too large")

	_, _, err = decodeWebP(hugeWebP(), errors.New("unknown format"))
	require.ErrorAs(t, err, &perr)
}
