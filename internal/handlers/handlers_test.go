package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/roadguard/pothole-api/internal/pothole"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func newTestServer(t *testing.T, opts RouterOptions) (http.Handler, *pothole.Detector) {
	h, d, _ := newTestServerInDir(t, opts)
	return h, d
}

func newTestServerInDir(t *testing.T, opts RouterOptions) (http.Handler, *pothole.Detector, string) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	d := pothole.New(log, pothole.Options{
		ModelPath: filepath.Join(dir, "pothole.json"),
		InputSize: 32,
		Fallback:  pothole.NewSeededFallback(11),
	})
	t.Cleanup(func() { d.Close() })
	return NewHandler(log, d, Options{MaxUploadBytes: 1 << 20, ModelDir: dir}).Router(opts), d, dir
}

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 70, 70, 75, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path string, uploads ...upload) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, u.field, u.filename))
		h.Set("Content-Type", u.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestRootAndHealth(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{})

	rec := serve(h, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var root map[string]any
	decode(t, rec, &root)
	assert.Equal(t, "running", root["status"])
	assert.Equal(t, false, root["model_loaded"])

	rec = serve(h, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, false, health["model_available"])
	assert.NotEmpty(t, health["timestamp"])
}

func TestAnalyzePothole(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{})
	data := pngBytes(t, 40, 30)

	rec := serve(h, multipartRequest(t, "/analyze-pothole", upload{"file", "road.png", "image/png", data}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success  bool           `json:"success"`
		Analysis pothole.Report `json:"analysis"`
		Message  string         `json:"message"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Analysis.ID)
	assert.Equal(t, "road.png", resp.Analysis.Filename)
	assert.Equal(t, len(data), resp.Analysis.FileSize)
	assert.Equal(t, pothole.ImageDimensions{Width: 40, Height: 30}, resp.Analysis.ImageDimensions)
	assert.Equal(t, pothole.SourceFallback, resp.Analysis.Source)
	assert.Contains(t, pothole.Severities, resp.Analysis.Severity)

	// the legacy field name is accepted too
	rec = serve(h, multipartRequest(t, "/analyze-pothole", upload{"image", "road.png", "image/png", data}))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyzePotholeRejects(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{})

	rec := serve(h, multipartRequest(t, "/analyze-pothole", upload{"file", "notes.txt", "text/plain", []byte("hello")}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, multipartRequest(t, "/analyze-pothole", upload{"file", "broken.jpg", "image/jpeg", []byte("not a jpeg")}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, multipartRequest(t, "/analyze-pothole", upload{"other", "road.png", "image/png", pngBytes(t, 4, 4)}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, httptest.NewRequest("POST", "/analyze-pothole", strings.NewReader("{}")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeBatch(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{})
	good := pngBytes(t, 16, 16)

	rec := serve(h, multipartRequest(t, "/analyze-pothole-batch",
		upload{"files", "a.png", "image/png", good},
		upload{"files", "b.png", "image/png", []byte("corrupt")},
		upload{"files", "c.png", "image/png", good},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp batchResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.TotalProcessed)
	assert.Equal(t, 1, resp.TotalErrors)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "b.png", resp.Errors[0].Filename)

	var uploads []upload
	for i := 0; i <= pothole.MaxBatchSize; i++ {
		uploads = append(uploads, upload{"files", fmt.Sprintf("%d.png", i), "image/png", good})
	}
	rec = serve(h, multipartRequest(t, "/analyze-pothole-batch", uploads...))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, multipartRequest(t, "/analyze-pothole-batch",
		upload{"files", "x.png", "image/png", []byte("corrupt")},
		upload{"files", "y.txt", "text/plain", []byte("text")},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = batchResponse{}
	decode(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, resp.TotalProcessed)
	assert.Equal(t, 2, resp.TotalErrors)
}

func TestAnalyzePixels(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{})

	body, err := json.Marshal(pixelsRequest{Width: 2, Height: 2, Channels: 3, Pixels: bytes.Repeat([]byte{80}, 12)})
	require.NoError(t, err)
	rec := serve(h, httptest.NewRequest("POST", "/analyze-pixels", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp analyzeResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, pothole.ImageDimensions{Width: 2, Height: 2}, resp.Analysis.ImageDimensions)

	body, err = json.Marshal(pixelsRequest{Width: 2, Height: 2, Channels: 4, Pixels: bytes.Repeat([]byte{80}, 16)})
	require.NoError(t, err)
	rec = serve(h, httptest.NewRequest("POST", "/analyze-pixels", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// width*height*3 overflows to 0 and would match the empty pixel array
	rec = serve(h, httptest.NewRequest("POST", "/analyze-pixels",
		strings.NewReader(`{"width":4611686018427387904,"height":4,"channels":3,"pixels":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelEndpoints(t *testing.T) {
	h, d, dir := newTestServerInDir(t, RouterOptions{})

	rec := serve(h, httptest.NewRequest("GET", "/model-info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	decode(t, rec, &info)
	assert.Equal(t, false, info["model_available"])

	rec = serve(h, httptest.NewRequest("POST", "/model/save", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(h, httptest.NewRequest("POST", "/model/create", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, d.ModelAvailable())

	rec = serve(h, httptest.NewRequest("GET", "/model-info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	info = nil
	decode(t, rec, &info)
	assert.Equal(t, true, info["model_available"])
	assert.Equal(t, "native", info["backend"])
	assert.EqualValues(t, 197845, info["total_parameters"])
	assert.Contains(t, info, "output_heads")

	rec = serve(h, httptest.NewRequest("POST", "/model/save", strings.NewReader(`{"path":"v2/saved.json"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.FileExists(t, filepath.Join(dir, "v2", "saved.json"))

	rec = serve(h, httptest.NewRequest("POST", "/model/load", strings.NewReader(`{"path":"v2/saved.json"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info = nil
	decode(t, rec, &info)
	assert.Equal(t, filepath.Join(dir, "v2", "saved.json"), info["model"].(map[string]any)["model_path"])

	rec = serve(h, httptest.NewRequest("POST", "/model/save", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(h, httptest.NewRequest("POST", "/model/load", strings.NewReader(`{"path":"nowhere/missing.json"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, httptest.NewRequest("POST", "/model/load", strings.NewReader(`{"path":"model.h5"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelPathsStayInModelDir(t *testing.T) {
	h, _, dir := newTestServerInDir(t, RouterOptions{})
	rec := serve(h, httptest.NewRequest("POST", "/model/create", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	outside := filepath.Join(filepath.Dir(dir), "escaped.json")
	for _, path := range []string{"../../x.json", "../escaped.json", outside, "a/../../x.json", "model.txt", "cron"} {
		for _, route := range []string{"/model/save", "/model/load"} {
			body := fmt.Sprintf(`{"path":%q}`, path)
			rec := serve(h, httptest.NewRequest("POST", route, strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code, "%v %v", route, path)
		}
	}
	assert.NoFileExists(t, outside)
}

func TestResolveModelPath(t *testing.T) {
	got, err := resolveModelPath("/srv/models", "v3/detector.ONNX")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/models", "v3", "detector.ONNX"), got)

	for _, path := range []string{"/etc/cron.d/x.json", "../x.json", "..", "x.bin", "."} {
		_, err := resolveModelPath("/srv/models", path)
		assert.Error(t, err, path)
	}
}

func TestSampleAnalysis(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{})
	rec := serve(h, httptest.NewRequest("GET", "/sample-analysis", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp analyzeResponse
	decode(t, rec, &resp)
	a := resp.Analysis
	assert.Equal(t, "sample_pothole.jpg", a.Filename)
	assert.Equal(t, pothole.SeverityHigh, a.Severity)
	assert.Equal(t, 8, a.Priority)
	assert.InDelta(t, a.Dimensions.Width*a.Dimensions.Length, a.Area, 1e-6)
	assert.InDelta(t, a.Area*a.Dimensions.Depth, a.Volume, 1e-6)
}

func TestCORS(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest("OPTIONS", "/analyze-pothole", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestServer(t, RouterOptions{RateLimitPerMinute: 2})
	body, err := json.Marshal(pixelsRequest{Width: 1, Height: 1, Channels: 3, Pixels: []byte{1, 2, 3}})
	require.NoError(t, err)

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, httptest.NewRequest("POST", "/analyze-pixels", bytes.NewReader(body))).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// unlimited routes are unaffected
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest("GET", "/health", nil)).Code)
}
