package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awb-agent/internal/awb"
	"awb-agent/internal/config"
	"awb-agent/internal/model"
	"awb-agent/internal/service"
	"awb-agent/internal/storage"
	"awb-agent/internal/ws"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	p := awb.DefaultParams()
	cfg := config.Config{
		SampleGridWidth:           4,
		SampleGridHeight:          4,
		SimulateMaxSteps:          32,
		MaxUploadSizeBytes:        1 << 20,
		WBIdentity:                p.Identity,
		WBMax:                     p.Max,
		BreakDiff:                 p.BreakDiff,
		NearGrayMinBrightness:     p.NearGrayMinBrightness,
		NearGrayMaxBrightness:     p.NearGrayMaxBrightness,
		NearGrayMaxColorDeviation: p.NearGrayMaxColorDeviation,
		NearGrayRequiredAmount:    p.NearGrayRequiredAmount,
	}
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub()
	go hub.Run(ctx)
	cameraHub := ws.NewCameraHub()

	svc, err := service.NewWhiteBalanceService(cfg, store, hub, cameraHub)
	require.NoError(t, err)
	return NewRouter(cfg, store, hub, cameraHub, svc)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func grayFrame(t *testing.T, field, filename string, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	require.NoError(t, png.Encode(fw, img))
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestRouter(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStepJSON(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/awb/step", map[string]interface{}{
		"stream_id": "cam0",
		"camera_id": "dev-1",
		"samples":   []model.RGB{{R: 200, G: 100, B: 50}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report model.StepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "needs_more", report.Outcome)
	assert.False(t, report.Settled)
	assert.Equal(t, model.RGB{R: 64, G: 68, B: 80}, report.GainAfter)

	pull := doJSON(t, h, http.MethodGet, "/v1/camera/pull?camera_id=dev-1", nil)
	require.Equal(t, http.StatusOK, pull.Code)
	var env model.HardwareEnvelope
	require.NoError(t, json.Unmarshal(pull.Body.Bytes(), &env))
	assert.Equal(t, report.GainAfter, env.Gain)

	stream := doJSON(t, h, http.MethodGet, "/v1/awb/stream?stream_id=cam0", nil)
	require.Equal(t, http.StatusOK, stream.Code)
	var st model.GainState
	require.NoError(t, json.Unmarshal(stream.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Steps)
}

func TestStepJSONEmptySamples(t *testing.T) {
	rec := doJSON(t, newTestRouter(t), http.MethodPost, "/v1/awb/step", map[string]interface{}{"stream_id": "cam0"})
	require.Equal(t, http.StatusOK, rec.Code)
	var report model.StepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "no_samples", report.Outcome)
}

func TestStepJSONRejectsBadInput(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/awb/step", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/awb/step", map[string]interface{}{
		"samples": []model.RGB{{R: -1, G: 0, B: 0}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/awb/step", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStepImage(t *testing.T) {
	h := newTestRouter(t)
	body, contentType := grayFrame(t, "frame", "frame.png", map[string]string{"stream_id": "cam0"})
	req := httptest.NewRequest(http.MethodPost, "/v1/awb/step/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report model.StepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "converged", report.Outcome)
	assert.Equal(t, 16, report.SampleCount)
	assert.True(t, report.UsedNearGray)
}

func TestStepImageRejectsExtension(t *testing.T) {
	h := newTestRouter(t)
	body, contentType := grayFrame(t, "frame", "frame.exe", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/awb/step/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStepBayer(t *testing.T) {
	h := newTestRouter(t)

	// 4x4 RGGB frame, 8-bit values in 16-bit little-endian containers.
	raw := make([]byte, 0, 32)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := byte(100)
			if y%2 == 1 && x%2 == 1 {
				v = 40
			}
			raw = append(raw, v, 0)
		}
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{"stream_id": "raw0", "width": "4", "height": "4", "bit_depth": "8", "pattern": "rggb"} {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("raw", "frame.raw")
	require.NoError(t, err)
	_, err = fw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/awb/step/bayer", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report model.StepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 4, report.SampleCount)
	assert.Equal(t, model.RGB{R: 100, G: 100, B: 40}, report.Representative)
	assert.Equal(t, "needs_more", report.Outcome)
}

func TestStreamNotFoundAndReset(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/v1/awb/stream?stream_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/awb/stream/reset", map[string]string{"stream_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/awb/stream/reset", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	doJSON(t, h, http.MethodPost, "/v1/awb/step", map[string]interface{}{
		"stream_id": "cam0",
		"samples":   []model.RGB{{R: 100, G: 100, B: 100}},
	})
	rec = doJSON(t, h, http.MethodGet, "/v1/awb/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cam0")

	rec = doJSON(t, h, http.MethodPost, "/v1/awb/stream/reset", map[string]string{"stream_id": "cam0"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetColorMatrix(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/awb/stream/matrix", map[string]interface{}{
		"stream_id": "cam0",
		"matrix":    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st model.GainState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.ColorMatrix)
	assert.Equal(t, 1.0, st.ColorMatrix[8])
}

func TestSimulateJSON(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/awb/simulate", map[string]interface{}{
		"samples":   []model.RGB{{R: 100, G: 100, B: 100}},
		"max_steps": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run model.SimulationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.True(t, run.Settled)
	assert.Len(t, run.Steps, 1)
}

func TestSimulateFrame(t *testing.T) {
	h := newTestRouter(t)
	body, contentType := grayFrame(t, "frame", "frame.png", map[string]string{"max_steps": "3"})
	req := httptest.NewRequest(http.MethodPost, "/v1/awb/simulate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run model.SimulationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.True(t, run.Settled)
}

func TestParamsAndCameraPull(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/v1/awb/params", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p awb.Params
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, awb.DefaultParams(), p)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, h, http.MethodGet, "/v1/camera/pull", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, "/v1/camera/pull?camera_id=nope", nil).Code)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	h := newTestRouter(t)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, h, http.MethodGet, "/v1/ws", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, doJSON(t, h, http.MethodPost, "/v1/camera/ws", nil).Code)
}
