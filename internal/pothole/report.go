package pothole

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest number of images AnalyzeBatch accepts.
const MaxBatchSize = 10

// ImageDimensions are the pixel dimensions of the uploaded image.
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Report is an analysis plus the request metadata it was produced for.
type Report struct {
	ID string `json:"id"`
	AnalysisResult
	Filename        string          `json:"filename"`
	FileSize        int             `json:"file_size"`
	Format          string          `json:"format,omitempty"`
	ImageDimensions ImageDimensions `json:"image_dimensions"`
}

// BatchItem is one uploaded file.
type BatchItem struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BatchError records a file that could not be analyzed.
type BatchError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchResult holds the reports and failures of one batch, each in input order.
type BatchResult struct {
	Results []Report     `json:"results"`
	Errors  []BatchError `json:"errors"`
}

// IsImageContentType reports whether a declared MIME type is an image type.
// An empty type is accepted and left to the decoder.
func IsImageContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// AnalyzeBytes decodes and analyzes one encoded image.
func (d *Detector) AnalyzeBytes(filename string, data []byte) (Report, error) {
	img, format, err := DecodeImage(data)
	if err != nil {
		return Report{}, err
	}
	result, err := d.Analyze(img)
	if err != nil {
		return Report{}, err
	}
	b := img.Bounds()
	return Report{
		ID:              uuid.NewString(),
		AnalysisResult:  result,
		Filename:        filename,
		FileSize:        len(data),
		Format:          format,
		ImageDimensions: ImageDimensions{Width: b.Dx(), Height: b.Dy()},
	}, nil
}

// AnalyzeBatch analyzes items in order. A failing item is recorded in Errors
// and does not stop the rest. More than MaxBatchSize items is rejected
// before anything is analyzed.
func (d *Detector) AnalyzeBatch(items []BatchItem) (BatchResult, error) {
	if len(items) > MaxBatchSize {
		return BatchResult{}, fmt.Errorf("%w: %d images, maximum is %d", ErrBatchTooLarge, len(items), MaxBatchSize)
	}

	res := BatchResult{Results: []Report{}, Errors: []BatchError{}}
	for _, item := range items {
		if !IsImageContentType(item.ContentType) {
			res.Errors = append(res.Errors, BatchError{Filename: item.Filename, Error: "File must be an image"})
			continue
		}
		report, err := d.AnalyzeBytes(item.Filename, item.Data)
		if err != nil {
			var perr *PreprocessingError
			if !errors.As(err, &perr) {
				d.log.Warnf("Batch item %v failed: %v", item.Filename, err)
			}
			res.Errors = append(res.Errors, BatchError{Filename: item.Filename, Error: err.Error()})
			continue
		}
		res.Results = append(res.Results, report)
	}
	return res, nil
}
