// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Capture       CaptureConfig
	STT           STTConfig
	Settings      SettingsConfig
	Kafka         KafkaConfig
	Notify        NotifyConfig
	Loudness      LoudnessConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the process and its listeners.
type ServiceConfig struct {
	Principal string
	Env       string
	HTTPAddr  string
	GRPCPort  string
}

// CaptureConfig selects and sizes the audio source.
type CaptureConfig struct {
	Source         string // portaudio, wav, synthetic
	DeviceHint     string
	WAVPath        string
	SampleRateHz   int
	BufferDuration time.Duration
	WindowDuration time.Duration
	WarmUp         time.Duration
	SpeakerID      int
}

// STTConfig configures the transcription provider.
type STTConfig struct {
	Provider      string // mock, google, azure
	LanguageCode  string
	AudioEncoding string
	Timeout       time.Duration
	AzureKey      string
	AzureRegion   string
	AzureEndpoint string
	MockLatency   time.Duration
}

// SettingsConfig points at the persisted user settings.
type SettingsConfig struct {
	Path string
}

// KafkaConfig configures the caption event stream.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicCaptions   string
	TopicOnboarding string
	Principal       string
}

// NotifyConfig toggles desktop notifications for onboarding prompts.
type NotifyConfig struct {
	Enabled bool
}

// LoudnessConfig configures the noise warning monitor.
type LoudnessConfig struct {
	Enabled   bool
	Threshold float64
	Interval  time.Duration
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Configuration {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file, using process environment")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-caption")

	cfg := &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			Env:       envOrDefault("ENV", "prod"),
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
		},
		Capture: CaptureConfig{
			Source:         envOrDefault("CAPTURE_SOURCE", "portaudio"),
			DeviceHint:     envOrDefault("CAPTURE_DEVICE", ""),
			WAVPath:        envOrDefault("CAPTURE_WAV_PATH", ""),
			SampleRateHz:   envOrDefaultInt("CAPTURE_SAMPLE_RATE_HZ", 16000),
			BufferDuration: envOrDefaultDuration("CAPTURE_BUFFER_DURATION", 10*time.Second),
			WindowDuration: envOrDefaultDuration("CAPTURE_WINDOW_DURATION", 3*time.Second),
			WarmUp:         envOrDefaultDuration("CAPTURE_WARM_UP", time.Second),
			SpeakerID:      envOrDefaultInt("CAPTURE_SPEAKER_ID", 0),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Timeout:       envOrDefaultDuration("STT_TIMEOUT", 6*time.Second),
			AzureKey:      envOrDefault("AZURE_SPEECH_KEY", ""),
			AzureRegion:   envOrDefault("AZURE_SPEECH_REGION", ""),
			AzureEndpoint: envOrDefault("AZURE_SPEECH_ENDPOINT", ""),
			MockLatency:   envOrDefaultDuration("STT_MOCK_LATENCY", 200*time.Millisecond),
		},
		Settings: SettingsConfig{
			Path: envOrDefault("SETTINGS_PATH", "settings.yaml"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicCaptions:   envOrDefault("KAFKA_TOPIC_CAPTIONS", "caption.displayed"),
			TopicOnboarding: envOrDefault("KAFKA_TOPIC_ONBOARDING", "speaker.onboarding"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Notify: NotifyConfig{
			Enabled: envOrDefaultBool("NOTIFY_ENABLED", true),
		},
		Loudness: LoudnessConfig{
			Enabled:   envOrDefaultBool("LOUDNESS_ENABLED", true),
			Threshold: envOrDefaultFloat("LOUDNESS_THRESHOLD", 0.5),
			Interval:  envOrDefaultDuration("LOUDNESS_INTERVAL", 100*time.Millisecond),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}

	cfg.Validate()
	return cfg
}

// Validate corrects values that would break the pipeline's timing model.
// The transcription timeout never exceeds two cadence periods, otherwise
// in-flight calls pile up faster than they complete.
func (c *Configuration) Validate() {
	if c.Capture.WindowDuration <= 0 {
		c.Capture.WindowDuration = 3 * time.Second
	}
	if c.Capture.BufferDuration < c.Capture.WindowDuration {
		c.Capture.BufferDuration = c.Capture.WindowDuration
	}
	if c.Capture.SampleRateHz <= 0 {
		c.Capture.SampleRateHz = 16000
	}
	if c.Capture.WarmUp < 0 {
		c.Capture.WarmUp = 0
	}

	maxTimeout := 2 * c.Capture.WindowDuration
	if c.STT.Timeout <= 0 || c.STT.Timeout > maxTimeout {
		log.Warn().
			Dur("configured", c.STT.Timeout).
			Dur("clamped", maxTimeout).
			Msg("STT timeout outside (0, 2x window], clamping")
		c.STT.Timeout = maxTimeout
	}

	if c.Loudness.Threshold <= 0 || c.Loudness.Threshold > 1 {
		c.Loudness.Threshold = 0.5
	}
	if c.Loudness.Interval <= 0 {
		c.Loudness.Interval = 100 * time.Millisecond
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
