package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/suPer8Hu/neuronote/internal/ai"
	"github.com/suPer8Hu/neuronote/internal/config"
	"github.com/suPer8Hu/neuronote/internal/events"
	"github.com/suPer8Hu/neuronote/internal/gateway"
	"github.com/suPer8Hu/neuronote/internal/httpapi"
	"github.com/suPer8Hu/neuronote/internal/httpapi/handlers"
	"github.com/suPer8Hu/neuronote/internal/logger"
	"github.com/suPer8Hu/neuronote/internal/metrics"
	"github.com/suPer8Hu/neuronote/internal/store/rabbitmq"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func newRegistry(cfg config.Config, log *slog.Logger) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(context.Context) (ai.Source, error) {
		return ai.NewOllamaSource(cfg.OllamaBaseURL, cfg.OllamaModel, log), nil
	})

	remote := func(context.Context) (ai.Source, error) {
		if cfg.RemoteAPIKey == "" {
			log.Warn("GOOGLE_API_KEY is not set; every remote summary will fail")
		}
		return ai.NewRemoteSource(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteModel, log), nil
	}
	for _, name := range []string{"remote", "gemini", "openai"} {
		reg.Register(name, remote)
	}
	return reg
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	src, err := newRegistry(cfg, log).Get(ctx, cfg.AIProvider)
	if err != nil {
		return err
	}
	src = ai.WithTimeout(src, cfg.SummaryTimeout)

	m := metrics.New()
	recorders := []events.Recorder{events.NewLogRecorder(log), m}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.Dial(cfg.RabbitURL, cfg.RabbitQueue, log)
		if err != nil {
			return fmt.Errorf("rabbit dial: %w", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("Failed to close event publisher", "error", err)
			}
		}()
		recorders = append(recorders, pub)
		log.Info("Publishing lifecycle events", "queue", cfg.RabbitQueue)
	}

	gw := gateway.New(src,
		gateway.WithLogger(log),
		gateway.WithRecorder(events.Multi(recorders...)),
		gateway.WithMaxTextBytes(cfg.MaxTextBytes),
	)

	gin.SetMode(cfg.GinMode)
	router := httpapi.NewRouter(log, gw, m, handlers.SessionConfig{
		WriteWait:       cfg.WSWriteWait,
		PongWait:        cfg.WSPongWait,
		MaxMessageBytes: cfg.SessionFrameLimit(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("NeuroNote listening",
			"addr", cfg.HTTPAddr,
			"provider", cfg.AIProvider,
			"summaryTimeout", cfg.SummaryTimeout)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
