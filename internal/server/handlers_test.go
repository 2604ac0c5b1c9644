package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroscan/tumor-detection-service/internal/config"
	"github.com/neuroscan/tumor-detection-service/internal/detect"
	"github.com/neuroscan/tumor-detection-service/internal/pipeline"
	"github.com/neuroscan/tumor-detection-service/internal/preprocess"
	"github.com/neuroscan/tumor-detection-service/internal/server"
)

type stubEngine struct {
	result detect.Result
}

func (s *stubEngine) Infer(context.Context, *preprocess.Tensor) (detect.Result, float64) {
	return s.result, 12.34
}

func (s *stubEngine) Name() string { return "stub" }

func testConfig() *config.Config {
	return &config.Config{
		Host:                "127.0.0.1",
		Port:                "0",
		ModelPath:           "model/yolov9.onnx",
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.45,
		InputSize:           32,
		MaxImageSize:        1 << 20,
	}
}

func newTestServer(t *testing.T, result detect.Result) *server.Server {
	t.Helper()
	pre := preprocess.New(preprocess.Config{
		TargetWidth:  32,
		TargetHeight: 32,
		Mean:         preprocess.DefaultMean,
		Std:          preprocess.DefaultStd,
	})
	p := pipeline.New(pre, &stubEngine{result: result}, nil)
	return server.New(testConfig(), p, nil, nil)
}

func foundResult() detect.Result {
	return detect.Result{
		Found:      true,
		Confidence: 87.65,
		Box:        []int{220, 230, 100, 90},
		Count:      1,
		All:        []detect.Detection{{Box: [4]int{220, 230, 100, 90}, Confidence: 0.8765}},
		Simulated:  true,
	}
}

func emptyResult() detect.Result {
	return detect.Result{Box: []int{}, All: []detect.Detection{}}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func doRequest(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestPredictMultipartSuccess(t *testing.T) {
	srv := newTestServer(t, foundResult())
	body, contentType := multipartBody(t, "scan.png", testPNG(t))

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.True(t, resp.Found)
	assert.Equal(t, 87.65, resp.Confidence)
	assert.Equal(t, []int{220, 230, 100, 90}, resp.Box)
	assert.Equal(t, 1, resp.Count)
	assert.True(t, resp.Simulated)
	assert.Equal(t, 12.34, resp.ProcessingTimeMS)
	assert.Contains(t, resp.AnnotatedImage, "data:image/png;base64,")
	assert.NotEmpty(t, resp.Timestamp)
}

func TestPredictNoFinding(t *testing.T) {
	srv := newTestServer(t, emptyResult())
	body, contentType := multipartBody(t, "scan.png", testPNG(t))

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Box)
	assert.Empty(t, resp.AnnotatedImage)
}

func TestPredictRawBody(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(testPNG(t)))
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictJSONBase64(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	payload, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(testPNG(t)),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictValidation(t *testing.T) {
	testCases := []struct {
		name         string
		filename     string
		data         []byte
		expectedCode int
		expectedErr  string
	}{
		{"bad extension", "notes.txt", []byte("hello"), http.StatusBadRequest, "invalid_file_type"},
		{"empty file", "scan.png", nil, http.StatusBadRequest, "empty_image"},
		{"undecodable image", "scan.png", []byte("not an image at all"), http.StatusBadRequest, "invalid_image"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, foundResult())
			body, contentType := multipartBody(t, tc.filename, tc.data)

			req := httptest.NewRequest(http.MethodPost, "/predict", body)
			req.Header.Set("Content-Type", contentType)
			rec := doRequest(srv, req)

			require.Equal(t, tc.expectedCode, rec.Code)

			var errResp server.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.Equal(t, tc.expectedErr, errResp.Code)
		})
	}
}

func TestPredictPayloadTooLarge(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(make([]byte, 2<<20)))
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPredictInferenceFault(t *testing.T) {
	srv := newTestServer(t, detect.Result{Box: []int{}, Error: "model inference: boom"})
	body, contentType := multipartBody(t, "scan.png", testPNG(t))

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(srv, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var errResp server.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "inference_error", errResp.Code)
	// Internal fault detail never reaches the client.
	assert.NotContains(t, errResp.Message, "boom")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "stub", resp["engine"])
	assert.Equal(t, false, resp["model_loaded"])
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, server.SystemName, resp["system"])
	assert.Equal(t, server.Version, resp["version"])
	assert.InDelta(t, 0.5, resp["confidence_threshold"], 1e-6)
}

func TestMetricsEndpointWithoutPool(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stub", resp["engine"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, emptyResult())

	rec := doRequest(srv, httptest.NewRequest(http.MethodOptions, "/predict", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
