package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bdobrica/jarvis/common/redact"
	"github.com/bdobrica/jarvis/common/retry"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
)

// maxResponseBytes caps how much of an inference response is read.
const maxResponseBytes = 1 << 20

// ResolveLanguage maps lang to a configured language code, falling back to
// DefaultLanguage (or any configured language if that is missing).
func (g *Gateway) ResolveLanguage(lang string) (code, model string) {
	code = strings.ToLower(strings.TrimSpace(lang))
	if m, ok := g.cfg.TranslateModels[code]; ok {
		return code, m
	}
	if m, ok := g.cfg.TranslateModels[DefaultLanguage]; ok {
		return DefaultLanguage, m
	}
	for c, m := range g.cfg.TranslateModels {
		return c, m
	}
	return "", ""
}

// Translate renders English text in lang. Unknown or empty languages use
// DefaultLanguage.
func (g *Gateway) Translate(ctx context.Context, text, lang string) Result {
	if !g.Enabled() {
		return Result{Status: StatusDisabled, Err: ErrNotConfigured, fallback: translateNotConfiguredText}
	}

	code, model := g.ResolveLanguage(lang)
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	payload, err := sjson.SetBytes([]byte(`{}`), "inputs", text)
	if err != nil {
		return Result{Status: StatusFailed, Err: err, fallback: translateFailedText}
	}
	url := strings.TrimRight(g.cfg.TranslateBaseURL, "/") + "/" + model

	var translated string
	err = retry.Do(ctx, g.cfg.Retry, func() error {
		out, err := g.postInference(ctx, url, payload)
		if err != nil {
			return err
		}
		res := gjson.GetBytes(out, "0.translation_text")
		if !res.Exists() || strings.TrimSpace(res.String()) == "" {
			return fmt.Errorf("%w: missing translation_text", ErrMalformedResponse)
		}
		translated = strings.TrimSpace(res.String())
		return nil
	})
	if err != nil {
		status := failureStatus(err)
		observability.WithTrace(ctx).Warn("gateway: translate failed",
			"status", status,
			"lang", code,
			"model", model,
			"err", redact.Error(err, g.cfg.APIKey),
		)
		return Result{Status: status, Err: err, fallback: translateFailedText}
	}
	return Result{Text: translated, Status: StatusOK}
}

// postInference sends one JSON request and returns the body of a 2xx answer.
func (g *Gateway) postInference(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(body, "error").String(),
		}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	return body, nil
}
