package chat

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config selects and tunes the chat backend.
//
// When GeminiAPIKey is set the Gemini backend is used; otherwise AgentAddr
// selects the remote agent; with neither the offline backend answers.
type Config struct {
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	Model            string        `env:"NERO_CHAT_MODEL"            envDefault:"gemini-3-flash-preview"`
	Temperature      float32       `env:"NERO_CHAT_TEMPERATURE"      envDefault:"0.7"`
	AgentAddr        string        `env:"NERO_AGENT_ADDR"`
	ConnectTimeout   time.Duration `env:"NERO_AGENT_CONNECT_TIMEOUT" envDefault:"5s"`
	RequestTimeout   time.Duration `env:"NERO_CHAT_TIMEOUT"          envDefault:"30s"`
	KeepaliveTime    time.Duration `env:"NERO_AGENT_KEEPALIVE"       envDefault:"2m"`
	KeepaliveTimeout time.Duration `env:"NERO_AGENT_KEEPALIVE_TIMEOUT" envDefault:"10s"`
	RatePerMinute    float64       `env:"NERO_CHAT_RATE_PER_MINUTE"  envDefault:"20"`
	Burst            int           `env:"NERO_CHAT_BURST"            envDefault:"5"`
}

// LoadConfigFromEnv parses chat configuration and fills zero values with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gemini-3-flash-preview"
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.KeepaliveTime <= 0 {
		c.KeepaliveTime = 2 * time.Minute
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 10 * time.Second
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 20
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	return c
}
