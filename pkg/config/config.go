package config

import "time"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readability
var (
	DB                string // connection string for the database (optional)
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	SQLLogLevel       string // sets the log level for sql subsystem
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "*:info session:debug"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry (OTLP gRPC), empty means stdout
	ProfilingPort     int    // port for profiling
	ServerAddr        string // listen addr for the HTTP server
)

// Config holds the configuration values which are used by the serve command.
//
//nolint:tagliatelle // config file keys
type Config struct {
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiModel       string        `yaml:"gemini_model"`
	StrategyCount     int           `yaml:"strategy_count"`
	Temperature       float64       `yaml:"temperature"`
	GenerateTimeout   time.Duration `yaml:"generate_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	DemoMode          bool          `yaml:"demo_mode"`
	DemoCacheTTL      time.Duration `yaml:"demo_cache_ttl"`
	EnrichmentURL     string        `yaml:"enrichment_service_url"`
	FetchLimit        int           `yaml:"fetch_limit"`
	CallbackURL       string        `yaml:"callback_url"`
	NatsURL           string        `yaml:"nats_url"`
	NatsPrefix        string        `yaml:"nats_prefix"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
	Window            int           `yaml:"window"`
	Threshold         int           `yaml:"threshold"`
	LapDeadline       time.Duration `yaml:"lap_deadline"`
	SessionQueueSize  int           `yaml:"session_queue_size"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedWSOrigins  []string      `yaml:"allowed_ws_origins"`
}

// Redacted returns a copy without secrets, suitable for logging
func (c Config) Redacted() Config {
	if c.GeminiAPIKey != "" {
		c.GeminiAPIKey = "***"
	}
	return c
}
