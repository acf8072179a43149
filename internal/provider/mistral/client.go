// Package mistral is the fast text-only backend. It speaks the same
// chat/completions wire shape as OpenAI, so the client stays thin.
package mistral

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/provider"
)

const providerName = "mistral"

type Config struct {
	APIKey      string        // if empty, falls back to env MISTRAL_API_KEY
	BaseURL     string        // default https://api.mistral.ai/v1
	Model       string        // e.g. "mistral-small-latest"
	Temperature float32
	Timeout     time.Duration
	MaxTextLen  int
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

var _ provider.Extractor = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("MISTRAL_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-small-latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = 12000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Modalities() []provider.Modality {
	return []provider.Modality{provider.ModalityText}
}

func (c *Client) Extract(ctx context.Context, req provider.ExtractRequest) (provider.RawModelOutput, error) {
	rid := uuid.New().String()
	start := time.Now()

	if req.DocumentText == "" {
		if req.HasImage() {
			return provider.RawModelOutput{}, common.ProviderError("mistral backend is text-only, image input not supported", nil)
		}
		return provider.RawModelOutput{}, common.ProviderError("no document text supplied", nil)
	}

	c.log.Info("mistral.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(req.DocumentText),
		"has_template", req.Template != nil,
	)

	schema := provider.BuildExtractionJSONSchema(req.Template)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": provider.BuildSystemPrompt(req)},
			{"role": "user", "content": provider.BuildUserPrompt(req, c.cfg.MaxTextLen) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + provider.MustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := provider.SendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		c.log.Error("mistral.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return provider.RawModelOutput{}, common.ProviderError("mistral call failed", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return provider.RawModelOutput{}, common.ProviderError("decode mistral response", err)
	}
	if len(cc.Choices) == 0 {
		return provider.RawModelOutput{}, common.ProviderError("no choices in mistral response", nil)
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := provider.ValidateAgainstSchema(schema, content); err != nil {
		cleaned, dropped, sErr := provider.SanitizeModelJSON(content)
		if sErr != nil {
			return provider.RawModelOutput{}, common.ProviderError("response outside expected shape", err)
		}
		if vErr := provider.ValidateAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("mistral.extract.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return provider.RawModelOutput{}, common.ProviderError("response outside expected shape", vErr)
		}
		c.log.Warn("mistral.extract.lenient_sanitize_applied", "req_id", rid, "dropped", dropped)
		content = cleaned
	}

	elapsed := time.Since(start).Milliseconds()
	c.log.Info("mistral.extract.ok", "req_id", rid, "content_bytes", len(content), "elapsed_ms", elapsed)
	return provider.RawModelOutput{
		Content:   content,
		Provider:  providerName,
		Model:     c.cfg.Model,
		ElapsedMs: elapsed,
	}, nil
}
