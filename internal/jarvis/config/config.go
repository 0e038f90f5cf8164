// Package config loads Jarvis settings.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables. The result is validated once at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/jarvis/common/environment"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
)

// PathEnv names the variable consulted when no --config flag is given.
const PathEnv = "JARVIS_CONFIG"

// Config is the full application configuration.
type Config struct {
	HTTPAddr     string    `yaml:"http_addr"`
	DatabasePath string    `yaml:"database_path"`
	Log          Log       `yaml:"log"`
	Inference    Inference `yaml:"inference"`
	Dialogue     Dialogue  `yaml:"dialogue"`
	Chat         Chat      `yaml:"chat"`
	Matrix       Matrix    `yaml:"matrix"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Inference configures the remote completion and translation service. An
// empty APIKey disables both.
type Inference struct {
	APIKey           string            `yaml:"api_key"`
	GenerateBaseURL  string            `yaml:"generate_base_url"`
	GenerateModel    string            `yaml:"generate_model"`
	TranslateBaseURL string            `yaml:"translate_base_url"`
	TranslateModels  map[string]string `yaml:"translate_models"`
	Timeout          time.Duration     `yaml:"timeout"`
	MaxTokens        int               `yaml:"max_tokens"`
}

type Dialogue struct {
	// SlotTTL expires an unanswered "what task?" follow-up. Zero never expires.
	SlotTTL time.Duration `yaml:"slot_ttl"`
}

type Chat struct {
	// RateLimit caps completion calls per user per minute.
	RateLimit int `yaml:"rate_limit"`
}

// Matrix configures the optional Matrix chat surface. Either all of
// Homeserver, UserID and AccessToken are set, or none.
type Matrix struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// Enabled reports whether the Matrix surface should start.
func (m Matrix) Enabled() bool {
	return m.Homeserver != "" && m.UserID != "" && m.AccessToken != ""
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	models := make(map[string]string, len(gateway.DefaultTranslateModels))
	for k, v := range gateway.DefaultTranslateModels {
		models[k] = v
	}
	return Config{
		HTTPAddr:     ":5000",
		DatabasePath: "./jarvis.db",
		Log:          Log{Level: "info", Format: "text"},
		Inference: Inference{
			GenerateBaseURL:  gateway.DefaultGenerateBaseURL,
			GenerateModel:    gateway.DefaultGenerateModel,
			TranslateBaseURL: gateway.DefaultTranslateBaseURL,
			TranslateModels:  models,
			Timeout:          gateway.DefaultTimeout,
			MaxTokens:        gateway.DefaultMaxTokens,
		},
		Chat: Chat{RateLimit: gateway.DefaultRateLimit},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables. For each setting the first
// variable listed that is set wins.
func (c *Config) ApplyEnv() {
	if port, ok := environment.Lookup("PORT"); ok {
		c.HTTPAddr = ":" + strings.TrimPrefix(port, ":")
	}
	environment.String(&c.HTTPAddr, "JARVIS_HTTP_ADDR")
	environment.String(&c.DatabasePath, "JARVIS_DATABASE_PATH")
	environment.String(&c.Log.Level, "JARVIS_LOG_LEVEL", "LOG_LEVEL")
	environment.String(&c.Log.Format, "JARVIS_LOG_FORMAT", "LOG_FORMAT")

	environment.String(&c.Inference.APIKey, "JARVIS_INFERENCE_API_KEY", "HF_API_KEY")
	environment.String(&c.Inference.GenerateBaseURL, "JARVIS_GENERATE_BASE_URL")
	environment.String(&c.Inference.GenerateModel, "JARVIS_GENERATE_MODEL")
	environment.String(&c.Inference.TranslateBaseURL, "JARVIS_TRANSLATE_BASE_URL")
	environment.Duration(&c.Inference.Timeout, "JARVIS_INFERENCE_TIMEOUT")
	environment.Int(&c.Inference.MaxTokens, "JARVIS_INFERENCE_MAX_TOKENS")

	environment.Duration(&c.Dialogue.SlotTTL, "JARVIS_SLOT_TTL")
	environment.Int(&c.Chat.RateLimit, "JARVIS_CHAT_RATE_LIMIT")

	environment.String(&c.Matrix.Homeserver, "MATRIX_HOMESERVER")
	environment.String(&c.Matrix.UserID, "MATRIX_USER_ID")
	environment.String(&c.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	environment.StringSlice(&c.Matrix.Rooms, "MATRIX_ROOMS")
}

var languageCode = regexp.MustCompile(`^[a-z]{2}$`)

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if c.Inference.Timeout < 0 {
		errs = append(errs, errors.New("inference.timeout must not be negative"))
	}
	if c.Inference.MaxTokens < 0 {
		errs = append(errs, errors.New("inference.max_tokens must not be negative"))
	}
	for code, model := range c.Inference.TranslateModels {
		if !languageCode.MatchString(code) {
			errs = append(errs, fmt.Errorf("inference.translate_models: %q is not a two-letter language code", code))
		}
		if strings.TrimSpace(model) == "" {
			errs = append(errs, fmt.Errorf("inference.translate_models.%s: model is empty", code))
		}
	}

	if c.Dialogue.SlotTTL < 0 {
		errs = append(errs, errors.New("dialogue.slot_ttl must not be negative"))
	}
	if c.Chat.RateLimit < 0 {
		errs = append(errs, errors.New("chat.rate_limit must not be negative"))
	}

	m := c.Matrix
	set := 0
	for _, v := range []string{m.Homeserver, m.UserID, m.AccessToken} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, errors.New("matrix: homeserver, user_id and access_token must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Gateway maps the inference settings onto a gateway configuration.
func (c *Config) Gateway() gateway.Config {
	return gateway.Config{
		APIKey:           c.Inference.APIKey,
		GenerateBaseURL:  c.Inference.GenerateBaseURL,
		GenerateModel:    c.Inference.GenerateModel,
		TranslateBaseURL: c.Inference.TranslateBaseURL,
		TranslateModels:  c.Inference.TranslateModels,
		Timeout:          c.Inference.Timeout,
		MaxTokens:        c.Inference.MaxTokens,
	}
}
