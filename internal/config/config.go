package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR"        envDefault:":8000"`
	GinMode         string        `env:"GIN_MODE"         envDefault:"release"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  slog.Level `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text"`

	// AI provider
	AIProvider     string        `env:"AI_PROVIDER"     envDefault:"ollama"`
	OllamaBaseURL  string        `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel    string        `env:"OLLAMA_MODEL"    envDefault:"granite3.2:8b"`
	RemoteBaseURL  string        `env:"REMOTE_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	RemoteAPIKey   string        `env:"GOOGLE_API_KEY"`
	RemoteModel    string        `env:"REMOTE_MODEL"    envDefault:"gemini-2.5-flash"`
	SummaryTimeout time.Duration `env:"SUMMARY_TIMEOUT" envDefault:"0s"`
	MaxTextBytes   int           `env:"MAX_TEXT_BYTES"  envDefault:"1048576"`

	// websocket sessions
	WSWriteWait       time.Duration `env:"WS_WRITE_WAIT"        envDefault:"10s"`
	WSPongWait        time.Duration `env:"WS_PONG_WAIT"         envDefault:"60s"`
	WSMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES" envDefault:"2097152"`

	// rabbitMQ lifecycle events; disabled when RABBIT_URL is empty
	RabbitURL   string `env:"RABBIT_URL"`
	RabbitQueue string `env:"RABBIT_QUEUE" envDefault:"summary_events"`
}

// frameOverhead leaves room for the JSON envelope around a session record.
const frameOverhead = 64 << 10

// SessionFrameLimit is the inbound WebSocket frame limit. When MaxTextBytes
// is set it stays above it, so an oversized record is answered with an error
// frame instead of a 1009 close.
func (c Config) SessionFrameLimit() int64 {
	floor := int64(c.MaxTextBytes) + frameOverhead
	if c.MaxTextBytes > 0 && c.WSMaxMessageBytes < floor {
		return floor
	}
	return c.WSMaxMessageBytes
}

var ErrUnsupportedProvider = errors.New("unsupported AI_PROVIDER")

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "ollama", "remote", "gemini", "openai":
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.AIProvider)
	}
	return cfg, nil
}
