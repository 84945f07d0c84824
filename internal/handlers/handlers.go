package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/roadguard/pothole-api/internal/model"
	"github.com/roadguard/pothole-api/internal/pothole"
)

const Version = "1.0.0"

// Descriptions of the model's output heads, reported by /model-info.
var outputHeads = map[string]string{
	model.HeadSeverity:   "4-class classification (low, medium, high, critical)",
	model.HeadConfidence: "Detection confidence (0-1)",
	model.HeadDimensions: "Width, length, depth (normalized)",
	model.HeadRisk:       "Risk assessment score (0-1)",
	model.HeadPriority:   "Repair priority (0-1)",
}

type Handler struct {
	log       logs.Log
	detector  *pothole.Detector
	maxUpload int64
	modelDir  string
}

type Options struct {
	MaxUploadBytes int64

	// ModelDir confines the paths accepted by /model/load and /model/save.
	ModelDir string
}

func NewHandler(log logs.Log, detector *pothole.Detector, opts Options) *Handler {
	return &Handler{
		log:       log,
		detector:  detector,
		maxUpload: opts.MaxUploadBytes,
		modelDir:  opts.ModelDir,
	}
}

type analyzeResponse struct {
	Success  bool            `json:"success"`
	Analysis *pothole.Report `json:"analysis"`
	Message  string          `json:"message"`
}

type batchResponse struct {
	Success        bool                 `json:"success"`
	Results        []pothole.Report     `json:"results"`
	Errors         []pothole.BatchError `json:"errors"`
	TotalProcessed int                  `json:"total_processed"`
	TotalErrors    int                  `json:"total_errors"`
}

type pixelsRequest struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Pixels   []byte `json:"pixels"`
}

type modelInfoResponse struct {
	ModelAvailable bool `json:"model_available"`
	*model.Info
	OutputHeads map[string]string `json:"output_heads,omitempty"`
	Message     string            `json:"message,omitempty"`
}

type modelRequest struct {
	Path string `json:"path"`
}

type modelResponse struct {
	Success bool        `json:"success"`
	Model   *model.Info `json:"model,omitempty"`
	Message string      `json:"message"`
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"message":      "Pothole Detection API",
		"version":      Version,
		"status":       "running",
		"model_loaded": h.detector.ModelAvailable(),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"status":          "healthy",
		"model_available": h.detector.ModelAvailable(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			www.Panic(http.StatusRequestEntityTooLarge, "Upload is too large")
		}
		www.PanicBadRequestf("Failed to parse form: %v", err)
	}
}

func readPart(fh *multipart.FileHeader) []byte {
	f, err := fh.Open()
	www.Check(err)
	defer f.Close()
	data, err := io.ReadAll(f)
	www.Check(err)
	return data
}

// AnalyzePothole analyzes a single uploaded image, sent as multipart field
// "file" (or "image").
func (h *Handler) AnalyzePothole(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.parseUpload(w, r)

	var fh *multipart.FileHeader
	for _, field := range []string{"file", "image"} {
		if files := r.MultipartForm.File[field]; len(files) != 0 {
			fh = files[0]
			break
		}
	}
	if fh == nil {
		www.PanicBadRequestf("No image file provided. Use 'file' as the form field name")
	}
	if !pothole.IsImageContentType(fh.Header.Get("Content-Type")) {
		www.PanicBadRequestf("File must be an image")
	}

	data := readPart(fh)
	h.log.Debugf("Received %v (%v bytes)", fh.Filename, len(data))

	report, err := h.detector.AnalyzeBytes(fh.Filename, data)
	var perr *pothole.PreprocessingError
	if errors.As(err, &perr) {
		www.PanicBadRequestf("Invalid image: %v", perr.Reason)
	}
	www.Check(err)

	www.SendJSON(w, analyzeResponse{
		Success:  true,
		Analysis: &report,
		Message:  "Pothole analysis completed successfully",
	})
}

// AnalyzeBatch analyzes up to pothole.MaxBatchSize images sent as multipart field "files".
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.parseUpload(w, r)

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		www.PanicBadRequestf("No files provided. Use 'files' as the form field name")
	}
	if len(files) > pothole.MaxBatchSize {
		www.PanicBadRequestf("Maximum %v files allowed per batch", pothole.MaxBatchSize)
	}

	items := make([]pothole.BatchItem, 0, len(files))
	for _, fh := range files {
		items = append(items, pothole.BatchItem{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        readPart(fh),
		})
	}
	res, err := h.detector.AnalyzeBatch(items)
	if errors.Is(err, pothole.ErrBatchTooLarge) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)

	www.SendJSON(w, batchResponse{
		Success:        len(res.Results) > 0,
		Results:        res.Results,
		Errors:         res.Errors,
		TotalProcessed: len(res.Results),
		TotalErrors:    len(res.Errors),
	})
}

// AnalyzePixels analyzes a raw RGB pixel array. Pixels are base64 in JSON.
func (h *Handler) AnalyzePixels(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req pixelsRequest
	www.ReadJSON(w, r, &req, h.maxUpload)

	img, err := pothole.FromPixels(req.Width, req.Height, req.Channels, req.Pixels)
	var perr *pothole.PreprocessingError
	if errors.As(err, &perr) {
		www.PanicBadRequestf("Invalid pixels: %v", perr.Reason)
	}
	www.Check(err)

	result, err := h.detector.Analyze(img)
	www.Check(err)

	www.SendJSON(w, analyzeResponse{
		Success: true,
		Analysis: &pothole.Report{
			ID:              uuid.NewString(),
			AnalysisResult:  result,
			FileSize:        len(req.Pixels),
			ImageDimensions: pothole.ImageDimensions{Width: req.Width, Height: req.Height},
		},
		Message: "Pothole analysis completed successfully",
	})
}

func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	info, ok := h.detector.ModelInfo()
	if !ok {
		www.SendJSON(w, modelInfoResponse{Message: "Model not loaded"})
		return
	}
	www.SendJSON(w, modelInfoResponse{
		ModelAvailable: true,
		Info:           &info,
		OutputHeads:    outputHeads,
	})
}

func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	info, err := h.detector.CreateModel()
	www.Check(err)
	www.SendJSON(w, modelResponse{Success: true, Model: &info, Message: "Model created"})
}

// readModelPath returns the model file named in the request body, resolved
// inside the model directory. An empty result means the configured model path.
func (h *Handler) readModelPath(w http.ResponseWriter, r *http.Request) string {
	var req modelRequest
	if r.ContentLength != 0 {
		www.ReadJSON(w, r, &req, 64*1024)
	}
	if req.Path == "" {
		return ""
	}
	path, err := resolveModelPath(h.modelDir, req.Path)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	return path
}

// resolveModelPath joins a client supplied relative path onto dir. Absolute
// paths, paths leaving dir and extensions other than .json or .onnx are rejected.
func resolveModelPath(dir, path string) (string, error) {
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("model path %q must be relative to the model directory", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".onnx":
	default:
		return "", fmt.Errorf("model path %q must end in .json or .onnx", path)
	}
	return filepath.Join(dir, path), nil
}

func (h *Handler) LoadModel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	info, err := h.detector.LoadModel(h.readModelPath(w, r))
	switch {
	case errors.Is(err, os.ErrNotExist):
		www.Panic(http.StatusNotFound, "Model file not found")
	case errors.Is(err, model.ErrUnknownFormat):
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
	www.SendJSON(w, modelResponse{Success: true, Model: &info, Message: "Model loaded"})
}

func (h *Handler) SaveModel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	err := h.detector.SaveModel(h.readModelPath(w, r))
	if errors.Is(err, pothole.ErrNoModel) {
		www.Panic(http.StatusServiceUnavailable, "Model not loaded")
	}
	www.Check(err)
	www.SendJSON(w, modelResponse{Success: true, Message: "Model saved"})
}

// SampleAnalysis returns a fixed analysis for front-end development.
func (h *Handler) SampleAnalysis(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	www.SendJSON(w, analyzeResponse{
		Success:  true,
		Analysis: &sampleReport,
		Message:  "Sample analysis data",
	})
}

var sampleReport = pothole.Report{
	ID: "00000000-0000-0000-0000-000000000000",
	AnalysisResult: pothole.AnalysisResult{
		Confidence:         0.87,
		Severity:           pothole.SeverityHigh,
		SeverityConfidence: 0.89,
		Dimensions:         pothole.Dimensions{Width: 45.2, Length: 62.8, Depth: 8.5},
		RiskLevel:          pothole.RiskHigh,
		RiskScore:          0.75,
		Priority:           8,
		Area:               2838.56,
		Volume:             24127.76,
		Source:             pothole.SourceModel,
	},
	Filename:        "sample_pothole.jpg",
	FileSize:        245760,
	ImageDimensions: pothole.ImageDimensions{Width: 800, Height: 600},
}
