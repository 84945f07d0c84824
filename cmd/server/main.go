package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/roadguard/pothole-api/internal/config"
	"github.com/roadguard/pothole-api/internal/handlers"
	"github.com/roadguard/pothole-api/internal/model"
	"github.com/roadguard/pothole-api/internal/pothole"
)

func main() {
	parser := argparse.NewParser("pothole-api", "Pothole severity, dimension and repair priority estimation service")
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP port (overrides PORT)"})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "Model file, .json or .onnx (overrides POTHOLE_MODEL_PATH)"})
	createModel := parser.Flag("", "create-model", &argparse.Options{Help: "Create and save a fresh model if none exists"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Criticalf("Invalid configuration: %v", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *createModel {
		cfg.CreateModel = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Criticalf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	if err := model.InitRuntime(cfg.ORTLibraryPath); err != nil {
		logger.Warnf("ONNX Runtime unavailable, .onnx models cannot be loaded: %v", err)
	}
	defer model.DestroyRuntime()

	var fallback *pothole.Fallback
	if cfg.FallbackSeed != 0 {
		fallback = pothole.NewSeededFallback(cfg.FallbackSeed)
	}
	detector := pothole.New(logger, pothole.Options{
		ModelPath:       cfg.ModelPath,
		InitSeed:        cfg.ModelInitSeed,
		Fallback:        fallback,
		CreateIfMissing: cfg.CreateModel,
	})
	defer detector.Close()

	handler := handlers.NewHandler(logger, detector, handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		ModelDir:       filepath.Dir(cfg.ModelPath),
	})
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.Router(handlers.RouterOptions{
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			CORSOrigins:        cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Infof("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Shutdown failed: %v", err)
		}
	}()

	logger.Infof("Server starting on port %v (model loaded: %v)", cfg.Port, detector.ModelAvailable())
	logger.Infof("Upload test: curl -X POST -F \"file=@pothole.jpg\" http://localhost:%v/analyze-pothole", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Criticalf("Server failed: %v", err)
		os.Exit(1)
	}
}
