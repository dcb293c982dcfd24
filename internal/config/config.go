package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultHeartbeat       = 30 * time.Second
	DefaultObserverBuffer  = 16
	DefaultRequestTimeout  = 10 * time.Second
	DefaultRateLimit       = 300
	DefaultRateWindow      = time.Minute
	DefaultHighValue       = 100_000.0
	DefaultDerivedValue    = 50_000.0
	DefaultSentimentFloor  = -0.7
	DefaultMinSessionSpan  = 5 * time.Minute
	DefaultSignalWindow    = 20
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultNotifyTimeout   = 3 * time.Second
	DefaultNotifyBackoff   = 500 * time.Millisecond
	DefaultSMSURLEnv       = "PULSEBOARD_SMS_URL"
)

// defaultNegativeKeywords flag conversations that need a human regardless of
// sentiment score.
var defaultNegativeKeywords = []string{
	"cancel", "refund", "lawsuit", "attorney", "chargeback",
	"angry", "frustrated", "complaint", "unacceptable", "scam",
}

// Config is the root of the YAML configuration file.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig holds HTTP and broadcast settings.
type ServerConfig struct {
	// HTTPPort is the port the webhook gateway, REST API, WebSocket hub and
	// Prometheus endpoint listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Heartbeat is the interval between HEARTBEAT broadcast messages sent to
	// every connected observer, independent of event arrival (default 30s).
	Heartbeat time.Duration `yaml:"heartbeat"`

	// ObserverBuffer is the per-observer outbound message buffer depth.
	// When full, the oldest buffered message is dropped (default 16).
	ObserverBuffer int `yaml:"observer_buffer"`

	// RequestTimeout bounds the total time a gateway request may take before
	// the sender gets a 5xx (default 10s). Applied metrics are not rolled back.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RateLimit throttles the webhook endpoints per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a fixed-window request budget per client IP.
type RateLimitConfig struct {
	// Requests per Window; <= 0 disables rate limiting.
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`

	// RedisAddr switches the limiter to a shared Redis counter when set
	// (host:port). Empty keeps the in-process limiter.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// EscalationConfig tunes the escalation detector. All fields are
// hot-reloadable via Watch.
type EscalationConfig struct {
	// HighValueThreshold: deal value above which an escalation is critical
	// rather than high (default 100000).
	HighValueThreshold float64 `yaml:"high_value_threshold"`

	// DerivedValueThreshold: deal value that, combined with a long session,
	// auto-escalates (default 50000).
	DerivedValueThreshold float64 `yaml:"derived_value_threshold"`

	// SentimentThreshold: rolling mean sentiment below which a session
	// auto-escalates (default -0.7).
	SentimentThreshold float64 `yaml:"sentiment_threshold"`

	// MinSessionDuration: session span required for the value+duration
	// trigger (default 5m).
	MinSessionDuration time.Duration `yaml:"min_session_duration"`

	// SignalWindow: how many recent signals a session context retains
	// (default 20).
	SignalWindow int `yaml:"signal_window"`

	// IdleTimeout: sessions with no event for this long are evicted
	// (default 30m).
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// NegativeKeywords override the built-in keyword set when non-empty.
	NegativeKeywords []string `yaml:"negative_keywords"`
}

// NotificationsConfig controls the secondary (SMS-equivalent) channel.
type NotificationsConfig struct {
	// SMSURLEnv names the environment variable holding the SMS gateway URL.
	// An empty resolved URL disables the secondary channel.
	SMSURLEnv string `yaml:"sms_url_env"`

	// Timeout bounds each delivery attempt on the secondary channel
	// (default 3s).
	Timeout time.Duration `yaml:"timeout"`

	// RetryBackoff is the wait before the single retry (default 500ms).
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// SMSURL returns the secondary channel URL resolved from the environment.
func (n NotificationsConfig) SMSURL() string {
	if n.SMSURLEnv == "" {
		return ""
	}
	return os.Getenv(n.SMSURLEnv)
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			Heartbeat:      DefaultHeartbeat,
			ObserverBuffer: DefaultObserverBuffer,
			RequestTimeout: DefaultRequestTimeout,
			RateLimit: RateLimitConfig{
				Requests: DefaultRateLimit,
				Window:   DefaultRateWindow,
			},
		},
		Escalation: EscalationConfig{
			HighValueThreshold:    DefaultHighValue,
			DerivedValueThreshold: DefaultDerivedValue,
			SentimentThreshold:    DefaultSentimentFloor,
			MinSessionDuration:    DefaultMinSessionSpan,
			SignalWindow:          DefaultSignalWindow,
			IdleTimeout:           DefaultIdleTimeout,
			NegativeKeywords:      append([]string(nil), defaultNegativeKeywords...),
		},
		Notifications: NotificationsConfig{
			SMSURLEnv:    DefaultSMSURLEnv,
			Timeout:      DefaultNotifyTimeout,
			RetryBackoff: DefaultNotifyBackoff,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.Heartbeat <= 0 {
		return fmt.Errorf("server.heartbeat must be positive")
	}
	if cfg.Server.ObserverBuffer <= 0 {
		return fmt.Errorf("server.observer_buffer must be positive")
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if cfg.Escalation.SentimentThreshold < -1 || cfg.Escalation.SentimentThreshold > 0 {
		return fmt.Errorf("escalation.sentiment_threshold %v is out of range [-1, 0]", cfg.Escalation.SentimentThreshold)
	}
	if cfg.Escalation.SignalWindow <= 0 {
		return fmt.Errorf("escalation.signal_window must be positive")
	}
	if cfg.Escalation.IdleTimeout <= 0 {
		return fmt.Errorf("escalation.idle_timeout must be positive")
	}
	if cfg.Escalation.HighValueThreshold < cfg.Escalation.DerivedValueThreshold {
		return fmt.Errorf("escalation.high_value_threshold must not be below derived_value_threshold")
	}
	if cfg.Notifications.Timeout <= 0 {
		return fmt.Errorf("notifications.timeout must be positive")
	}
	return nil
}
