package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"awb-agent/internal/config"
	"awb-agent/internal/service"
	"awb-agent/internal/storage"
	"awb-agent/internal/ws"
)

func NewRouter(
	cfg config.Config,
	store *storage.Store,
	hub *ws.Hub,
	cameraHub *ws.CameraHub,
	wbSvc *service.WhiteBalanceService,
) http.Handler {
	h := &Handler{
		cfg:       cfg,
		store:     store,
		hub:       hub,
		cameraHub: cameraHub,
		wbSvc:     wbSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/ws", h.WebSocket)
	mux.HandleFunc("/v1/camera/ws", h.CameraWebSocket)
	mux.HandleFunc("/v1/camera/pull", h.CameraPull)
	mux.HandleFunc("/v1/awb/params", h.Params)
	mux.HandleFunc("/v1/awb/step", h.Step)
	mux.HandleFunc("/v1/awb/step/image", h.StepImage)
	mux.HandleFunc("/v1/awb/step/bayer", h.StepBayer)
	mux.HandleFunc("/v1/awb/stream", h.Stream)
	mux.HandleFunc("/v1/awb/stream/reset", h.ResetStream)
	mux.HandleFunc("/v1/awb/stream/matrix", h.SetColorMatrix)
	mux.HandleFunc("/v1/awb/simulate", h.Simulate)

	return limitBody(cfg.MaxUploadSizeBytes, mux)
}

func limitBody(maxSize int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		next.ServeHTTP(w, r)
	})
}
