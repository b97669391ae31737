package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"awb-agent/internal/awb"
	"awb-agent/internal/config"
	"awb-agent/internal/model"
	"awb-agent/internal/service"
	"awb-agent/internal/storage"
	"awb-agent/internal/ws"
)

type Handler struct {
	cfg       config.Config
	store     *storage.Store
	hub       *ws.Hub
	cameraHub *ws.CameraHub
	wbSvc     *service.WhiteBalanceService
	upgrader  websocket.Upgrader
}

type apiError struct {
	Error string `json:"error"`
}

type stepRequest struct {
	StreamID string      `json:"stream_id"`
	CameraID string      `json:"camera_id"`
	Samples  []model.RGB `json:"samples"`
	Gain     *model.RGB  `json:"gain,omitempty"`
}

type simulateRequest struct {
	Samples  []model.RGB `json:"samples"`
	Gain     *model.RGB  `json:"gain,omitempty"`
	MaxSteps int         `json:"max_steps"`
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("websocket requires GET"))
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		writeErr(w, http.StatusBadRequest, errors.New("websocket upgrade required"))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: remote=%s uri=%s err=%v", r.RemoteAddr, r.RequestURI, err)
		return
	}
	client := ws.NewClient(h.hub, conn)
	h.hub.BroadcastEvent(model.Event{Type: "ws.client_connected", Payload: map[string]string{"id": uuid.NewString()}, CreatedAt: time.Now().UnixMilli()})
	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) CameraWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("websocket requires GET"))
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		writeErr(w, http.StatusBadRequest, errors.New("websocket upgrade required"))
		return
	}
	cameraID := strings.TrimSpace(r.URL.Query().Get("camera_id"))
	if cameraID == "" {
		writeErr(w, http.StatusBadRequest, errors.New("camera_id required"))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("camera ws upgrade failed: remote=%s camera=%s err=%v", r.RemoteAddr, cameraID, err)
		return
	}
	client := h.cameraHub.Register(cameraID, conn)
	if env := h.store.GetHardwareEnvelope(cameraID); env != nil {
		h.cameraHub.PushEnvelope(*env)
	}
	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) CameraPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	cameraID := strings.TrimSpace(r.URL.Query().Get("camera_id"))
	if cameraID == "" {
		writeErr(w, http.StatusBadRequest, errors.New("camera_id required"))
		return
	}
	env := h.store.GetHardwareEnvelope(cameraID)
	if env == nil {
		writeErr(w, http.StatusNotFound, errors.New("no gain envelope"))
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) Params(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, h.wbSvc.Params())
}

func (h *Handler) Step(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := validateSamples(req.Samples); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	h.runStep(w, service.StepRequest{
		StreamID: req.StreamID,
		CameraID: req.CameraID,
		Samples:  model.ColorsFromRGB(req.Samples),
		Gain:     gainPtr(req.Gain),
	})
}

func (h *Handler) StepImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSizeBytes); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	samples, err := h.samplesFromForm(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	h.runStep(w, service.StepRequest{
		StreamID: r.FormValue("stream_id"),
		CameraID: r.FormValue("camera_id"),
		Samples:  samples,
	})
}

func (h *Handler) StepBayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSizeBytes); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	width := atoiDefault(r.FormValue("width"), 0)
	height := atoiDefault(r.FormValue("height"), 0)
	bitDepth := atoiDefault(r.FormValue("bit_depth"), 16)
	stride := atoiDefault(r.FormValue("stride"), 1)
	pattern, err := service.ParseBayerPattern(r.FormValue("pattern"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	b, err := readFormFile(r, "raw")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	raw, err := service.DecodeRaw16LE(b, width, height)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	samples, err := service.SamplesFromBayer(raw, width, height, pattern, bitDepth, stride)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	h.runStep(w, service.StepRequest{
		StreamID: r.FormValue("stream_id"),
		CameraID: r.FormValue("camera_id"),
		Samples:  samples,
	})
}

func (h *Handler) runStep(w http.ResponseWriter, req service.StepRequest) {
	report, err := h.wbSvc.Step(req)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	streamID := strings.TrimSpace(r.URL.Query().Get("stream_id"))
	if streamID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"streams": h.wbSvc.Streams()})
		return
	}
	st, err := h.wbSvc.Stream(streamID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ResetStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		StreamID string `json:"stream_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.StreamID) == "" {
		writeErr(w, http.StatusBadRequest, errors.New("stream_id required"))
		return
	}
	if err := h.wbSvc.Reset(req.StreamID); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "stream_id": req.StreamID})
}

func (h *Handler) SetColorMatrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		StreamID string     `json:"stream_id"`
		Matrix   [9]float64 `json:"matrix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	st, err := h.wbSvc.SetColorMatrix(req.StreamID, req.Matrix)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Simulate accepts either a multipart frame upload or a JSON sample list.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	identity := h.wbSvc.Params().Identity
	start := awb.UniformGain(identity)

	var samples []awb.Color
	maxSteps := h.cfg.SimulateMaxSteps
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(h.cfg.MaxUploadSizeBytes); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		var err error
		samples, err = h.samplesFromForm(r)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		maxSteps = atoiDefault(r.FormValue("max_steps"), maxSteps)
	} else {
		var req simulateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := validateSamples(req.Samples); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		samples = model.ColorsFromRGB(req.Samples)
		if g := gainPtr(req.Gain); g != nil {
			start = *g
		}
		if req.MaxSteps > 0 {
			maxSteps = req.MaxSteps
		}
	}

	run := h.wbSvc.Simulate(samples, start, maxSteps)
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) samplesFromForm(r *http.Request) ([]awb.Color, error) {
	gridW := atoiDefault(r.FormValue("grid_width"), h.cfg.SampleGridWidth)
	gridH := atoiDefault(r.FormValue("grid_height"), h.cfg.SampleGridHeight)

	file, header, err := r.FormFile("frame")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := validateFrameUpload(header); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	img, _, err := service.DecodeFrame(b)
	if err != nil {
		return nil, err
	}
	return service.SamplesFromImage(img, gridW, gridH)
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func validateSamples(samples []model.RGB) error {
	for i, s := range samples {
		if s.R < 0 || s.G < 0 || s.B < 0 {
			return fmt.Errorf("sample %d has a negative channel", i)
		}
	}
	return nil
}

func validateFrameUpload(header *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return nil
	default:
		return errors.New("unsupported frame format")
	}
}

func gainPtr(rgb *model.RGB) *awb.Gain {
	if rgb == nil {
		return nil
	}
	g := rgb.Gain()
	return &g
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, apiError{Error: err.Error()})
}

func writeServiceErr(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrUnknownStream) {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeErr(w, http.StatusInternalServerError, err)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func atoiDefault(v string, d int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return d
	}
	return n
}
