// platewatch watches live video for vehicle license plates: it locates and
// reads plates, suppresses repeat sightings, stores accepted records and
// streams annotated video plus events to dashboard clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"platewatch/internal/config"
	"platewatch/internal/log"
	"platewatch/internal/store"
	"platewatch/pkg/camera"
	"platewatch/pkg/capture"
	"platewatch/pkg/dedup"
	"platewatch/pkg/detect"
	"platewatch/pkg/hub"
	"platewatch/pkg/ocr"
	"platewatch/pkg/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level)
	logger := log.With("main")

	db, err := store.Open(cfg.DB.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("cannot open database")
	}
	defer db.Close()

	cache := dedup.New(db, log.With("dedup"))
	manager := camera.NewManager(cfg.Cameras, log.With("camera"))

	// A missing model is not fatal: the loop streams with an error banner
	// and produces no detections until the model is supplied.
	var locator detect.Locator
	ycfg := detect.DefaultYOLOConfig(cfg.Detector.ModelPath)
	ycfg.ConfidenceThresh = cfg.Detector.ConfidenceThresh
	ycfg.NMSThresh = cfg.Detector.NMSThresh
	if yolo, err := detect.NewYOLO(ycfg); err != nil {
		logger.Warn().Err(err).Msg("plate detector not loaded, streaming without detections")
	} else {
		locator = yolo
		defer yolo.Close()
	}

	reader := detect.NewLadderReader(ocr.NewClient(cfg.OCR.Endpoint), log.With("ocr"))

	videoHub := hub.New("video", log.L())
	eventHub := hub.New("events", log.L())
	sink := web.NewSink(videoHub, eventHub, log.With("sink"))

	loop := capture.New(manager, locator, reader, cache, sink, capture.Config{
		SaveDir:     cfg.Capture.SaveDir,
		JPEGQuality: cfg.Capture.JPEGQuality,
		DedupWindow: time.Duration(cfg.Capture.DedupWindowSeconds) * time.Second,
	}, log.With("capture"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go loop.Run(ctx)

	server := web.NewServer(cfg.HTTP.Port, loop, cache, db, cfg.SourceNames(), videoHub, eventHub, log.With("web"))
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	logger.Info().Str("port", cfg.HTTP.Port).Int("sources", len(cfg.Cameras)).Msg("platewatch up")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
