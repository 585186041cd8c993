// Package app assembles the captioning service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	grpcapi "speech-caption-service/internal/api/grpc"
	"speech-caption-service/internal/config"
	"speech-caption-service/internal/events"
	httpapi "speech-caption-service/internal/http"
	"speech-caption-service/internal/notify"
	"speech-caption-service/internal/observability"
	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/render"
	"speech-caption-service/internal/schema"
	"speech-caption-service/internal/service/caption"
	"speech-caption-service/internal/service/capture"
	"speech-caption-service/internal/service/display"
	"speech-caption-service/internal/service/loudness"
	"speech-caption-service/internal/service/onboarding"
	"speech-caption-service/internal/service/pipeline"
	"speech-caption-service/internal/service/speaker"
	"speech-caption-service/internal/service/transcription"
	"speech-caption-service/internal/service/transcription/azure"
	"speech-caption-service/internal/service/transcription/google"
	"speech-caption-service/internal/service/transcription/mock"
	"speech-caption-service/internal/settings"
)

const shutdownTimeout = 10 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Settings    *settings.Store
	Source      capture.Source
	Client      *transcription.Guarded
	Registry    *speaker.Registry
	Hub         *render.Hub
	Display     *display.Controller
	Onboarding  *onboarding.Coordinator
	Publisher   *events.Publisher
	Pipeline    *pipeline.Pipeline
	Loudness    *loudness.Monitor
	GRPC        *grpcapi.Server
	HTTPHandler http.Handler

	closers []io.Closer
}

// New constructs the Application from the provided configuration. Nothing
// is started until Run.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{Cfg: cfg}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	store, err := settings.Load(cfg.Settings.Path)
	if err != nil {
		return nil, err
	}
	a.Settings = store

	a.Source, err = newSource(cfg.Capture)
	if err != nil {
		return nil, err
	}

	client, err := NewTranscriptionClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := client.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.Client = transcription.NewGuarded(client, cfg.STT.Provider, cfg.STT.Timeout)

	// Render targets: overlay websocket plus the log
	a.Hub = render.NewHub()
	renderer := render.Multi{a.Hub, render.NewLogRenderer()}
	notifier := notify.New(cfg.Notify.Enabled)

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicCaptions:   cfg.Kafka.TopicCaptions,
		TopicOnboarding: cfg.Kafka.TopicOnboarding,
		Principal:       cfg.Kafka.Principal,
	}, schema.New())
	a.closers = append(a.closers, a.Publisher)

	a.Registry = speaker.NewRegistry(store)
	a.Display = display.NewController(renderer, store)
	a.Onboarding = onboarding.NewCoordinator(a.Registry, a.Hub, notifier, a.Publisher)

	router := caption.NewRouter(store, a.Registry, a.Onboarding, a.Display, store)
	a.Pipeline = pipeline.New(a.Source, a.Client, router, a.Display, store, renderer, a.Publisher, pipeline.Options{
		WindowDuration: cfg.Capture.WindowDuration,
		WarmUp:         cfg.Capture.WarmUp,
	})

	if cfg.Loudness.Enabled {
		a.Loudness = loudness.NewMonitor(a.Source, loudness.Indicators{renderer, notifier}, cfg.Loudness.Threshold, cfg.Loudness.Interval)
	}

	a.GRPC = grpcapi.New()
	a.HTTPHandler = httpapi.NewRouter(httpapi.Deps{
		Speakers:   a.Registry,
		Onboarding: a.Onboarding,
		Settings:   store,
		Pipeline:   a.Pipeline,
		Display:    a.Display,
		Overlay:    a.Hub.ServeWS,
	})

	appLogger.Info().
		Str("captureSource", cfg.Capture.Source).
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Speech caption service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	format := a.Cfg.Observability.LogFormat
	if a.Cfg.Service.Env == "dev" {
		format = "console"
	}
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", a.Cfg.Service.Principal).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

func newSource(cfg config.CaptureConfig) (capture.Source, error) {
	opts := capture.Options{
		SampleRateHz:   cfg.SampleRateHz,
		BufferDuration: cfg.BufferDuration,
		SpeakerID:      cfg.SpeakerID,
	}
	switch cfg.Source {
	case "portaudio":
		return capture.NewDeviceSource(opts, cfg.DeviceHint), nil
	case "wav":
		if cfg.WAVPath == "" {
			return nil, errors.New("CAPTURE_WAV_PATH is required for the wav source")
		}
		return capture.NewWAVSource(opts, cfg.WAVPath), nil
	case "synthetic":
		return capture.NewSyntheticSource(opts, 0.2, 440), nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}

// NewTranscriptionClient builds the configured provider. Clients holding a
// connection implement io.Closer.
func NewTranscriptionClient(ctx context.Context, c *config.Configuration) (transcription.Client, error) {
	cfg := c.STT
	switch cfg.Provider {
	case "mock":
		return mock.New(cfg.MockLatency), nil
	case "google":
		return google.New(ctx, google.Config{
			LanguageCode:  cfg.LanguageCode,
			SampleRateHz:  int32(c.Capture.SampleRateHz),
			AudioEncoding: cfg.AudioEncoding,
		})
	case "azure":
		return azure.New(azure.Config{
			Key:          cfg.AzureKey,
			Region:       cfg.AzureRegion,
			Endpoint:     cfg.AzureEndpoint,
			LanguageCode: cfg.LanguageCode,
		})
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// Run starts the pipeline and every listener, and blocks until ctx is done
// or a component fails. Shutdown stops the pipeline before the listeners.
func (a *Application) Run(ctx context.Context) error {
	runLogger := a.Logger.With().
		Str("method", "Run").
		Logger()

	a.StartupTime = time.Now().UTC()
	runLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Speech caption service starting")

	grpcLis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Hub.Run(gctx) })
	g.Go(func() error { return a.GRPC.Serve(gctx, grpcLis) })

	obs := observability.NewServer(a.Cfg.Observability.MetricsAddr, a.Pipeline.Running)
	g.Go(obs.ListenAndServe)

	api := &http.Server{
		Addr:              a.Cfg.Service.HTTPAddr,
		Handler:           a.HTTPHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		runLogger.Info().Str("addr", api.Addr).Msg("Starting control API")
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control api: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown(obs, api)
		return nil
	})

	if err := a.Pipeline.Start(gctx); err != nil {
		runLogger.Error().Err(err).Msg("Pipeline failed to start")
		cancel()
		_ = g.Wait()
		return err
	}
	a.GRPC.SetServing(true)

	if a.Loudness != nil {
		g.Go(func() error { return a.Loudness.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (a *Application) shutdown(obs *observability.Server, api *http.Server) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()
	shutdownLogger.Info().Msg("Speech caption service shutting down")

	a.GRPC.SetServing(false)
	if err := a.Pipeline.Stop(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Pipeline stop failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Control API shutdown failed")
	}
	if err := obs.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Observability server shutdown failed")
	}
}

// Close releases the display subscription, waits for outstanding onboarding
// prompts and closes the publisher and transcription client.
func (a *Application) Close() error {
	a.Display.Close()
	a.Onboarding.Wait()

	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
