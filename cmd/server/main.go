package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"awb-agent/internal/api"
	"awb-agent/internal/config"
	"awb-agent/internal/service"
	"awb-agent/internal/storage"
	"awb-agent/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := storage.NewStore(cfg.DataPath)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	ctx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	hub := ws.NewHub()
	go hub.Run(ctx)
	cameraHub := ws.NewCameraHub()

	wbSvc, err := service.NewWhiteBalanceService(cfg, store, hub, cameraHub)
	if err != nil {
		log.Fatalf("init white balance service: %v", err)
	}
	p := wbSvc.Params()
	log.Printf("awb params: identity=%d max=%d break_diff=%d neargray=[%d,%d] deviation=%.3f required=%.3f",
		p.Identity, p.Max, p.BreakDiff, p.NearGrayMinBrightness, p.NearGrayMaxBrightness,
		p.NearGrayMaxColorDeviation, p.NearGrayRequiredAmount)

	router := api.NewRouter(cfg, store, hub, cameraHub, wbSvc)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := store.Save(); err != nil {
		log.Printf("final save: %v", err)
	}
}
