// Package gateway talks to the remote inference service used for free-form
// chat replies and translations.
//
// Every call returns a Result instead of an error. Failures are logged here
// and surfaced as a Status, and callers decide what to show the user through
// Result.Reply. Without an API key the gateway is disabled and never touches
// the network.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bdobrica/jarvis/common/retry"
)

const (
	DefaultGenerateBaseURL  = "https://router.huggingface.co/v1"
	DefaultGenerateModel    = "HuggingFaceH4/zephyr-7b-beta"
	DefaultTranslateBaseURL = "https://api-inference.huggingface.co/models"
	DefaultTimeout          = 15 * time.Second
	DefaultMaxTokens        = 256
)

// DefaultTranslateModels maps target language codes to translation models.
var DefaultTranslateModels = map[string]string{
	"fr": "Helsinki-NLP/opus-mt-en-fr",
	"de": "Helsinki-NLP/opus-mt-en-de",
	"es": "Helsinki-NLP/opus-mt-en-es",
}

// DefaultLanguage is used when a translation request names no known language.
const DefaultLanguage = "fr"

var (
	ErrNotConfigured     = errors.New("gateway: inference not configured")
	ErrMalformedResponse = errors.New("gateway: malformed response")
	ErrUpstream          = errors.New("gateway: upstream error")
)

// UpstreamError is a non-2xx answer from the inference service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: upstream returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Status classifies the outcome of a gateway call.
type Status string

const (
	StatusOK          Status = "ok"
	StatusDisabled    Status = "disabled"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
)

const (
	notConfiguredText = `🤖 AI chat isn't configured on this server, but I can still manage your todos. Type "help" to see what I can do.`
	failedText        = `🤖 I'm having trouble reaching my brain right now. You can still manage your todos, type "help" to see how.`
	busyText          = "🤖 The AI assistant is busy right now. Please try again in a minute."

	translateNotConfiguredText = "⚠️ Translation isn't configured on this server."
	translateFailedText        = "⚠️ Translation is unavailable right now. Please try again later."
)

// Result is the outcome of a gateway call.
type Result struct {
	Text   string
	Status Status
	Err    error

	fallback string
}

// OK reports whether the call produced text from the service.
func (r Result) OK() bool { return r.Status == StatusOK }

// Reply returns the text to show the user: the service's answer on success,
// otherwise a fallback matching the status.
func (r Result) Reply() string {
	if r.OK() {
		return r.Text
	}
	if r.fallback != "" {
		return r.fallback
	}
	switch r.Status {
	case StatusDisabled:
		return notConfiguredText
	case StatusRateLimited:
		return busyText
	default:
		return failedText
	}
}

// Config configures the gateway. Zero values take the package defaults.
type Config struct {
	// APIKey is the inference credential. Empty disables the gateway.
	APIKey string

	// GenerateBaseURL is an OpenAI-compatible API root.
	GenerateBaseURL string
	GenerateModel   string

	// TranslateBaseURL is the root under which translation models are
	// addressed as <base>/<model>.
	TranslateBaseURL string
	TranslateModels  map[string]string

	// Timeout bounds a whole call, retries included.
	Timeout   time.Duration
	MaxTokens int
	Retry     retry.Config
}

func (c Config) withDefaults() Config {
	if c.GenerateBaseURL == "" {
		c.GenerateBaseURL = DefaultGenerateBaseURL
	}
	if c.GenerateModel == "" {
		c.GenerateModel = DefaultGenerateModel
	}
	if c.TranslateBaseURL == "" {
		c.TranslateBaseURL = DefaultTranslateBaseURL
	}
	if len(c.TranslateModels) == 0 {
		c.TranslateModels = DefaultTranslateModels
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig
	}
	c.Retry.ShouldRetry = transient
	return c
}

// Gateway is safe for concurrent use.
type Gateway struct {
	cfg  Config
	http *http.Client
	chat *openai.Client
}

// New returns a gateway. It never fails; a missing API key yields a
// disabled gateway.
func New(cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = strings.TrimRight(cfg.GenerateBaseURL, "/")
		oc.HTTPClient = g.http
		g.chat = openai.NewClientWithConfig(oc)
	}
	return g
}

// Enabled reports whether a credential is configured.
func (g *Gateway) Enabled() bool { return g.cfg.APIKey != "" }

// Languages returns the configured translation language codes.
func (g *Gateway) Languages() []string {
	out := make([]string, 0, len(g.cfg.TranslateModels))
	for code := range g.cfg.TranslateModels {
		out = append(out, code)
	}
	return out
}

// statusCode extracts an HTTP status from errors produced by either client.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}

// transient reports whether err is worth another attempt: throttling,
// server errors (including a model still loading) and transport failures.
func transient(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	code := statusCode(err)
	if code == 0 {
		return true
	}
	return code == http.StatusTooManyRequests || code >= 500
}

func failureStatus(err error) Status {
	if statusCode(err) == http.StatusTooManyRequests {
		return StatusRateLimited
	}
	return StatusFailed
}
