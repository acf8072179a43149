package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docstreamhq/docstream/internal/common"
	"github.com/docstreamhq/docstream/internal/provider"
)

const providerName = "openai"

var _ provider.Extractor = (*Client)(nil)

func (c *Client) Name() string { return providerName }

// Modalities: OpenAI vision models take text and images.
func (c *Client) Modalities() []provider.Modality {
	return []provider.Modality{provider.ModalityText, provider.ModalityVision}
}

// Extract implements provider.Extractor over chat/completions. The response is
// validated against the extraction schema before it leaves this package; a
// schema failure surfaces as a provider error, optionally after one lenient
// sanitize pass.
func (c *Client) Extract(ctx context.Context, req provider.ExtractRequest) (provider.RawModelOutput, error) {
	rid := uuid.New().String()
	start := time.Now()

	if req.DocumentText == "" && !req.HasImage() {
		return provider.RawModelOutput{}, common.ProviderError("neither document text nor image supplied", nil)
	}

	c.log.Info("openai.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.DocumentText),
		"has_image", req.HasImage(),
		"has_template", req.Template != nil,
	)

	schema := provider.BuildExtractionJSONSchema(req.Template)
	sys := provider.BuildSystemPrompt(req)
	user := provider.BuildUserPrompt(req, c.cfg.MaxTextLen)

	var userContent any = user + "\n\nReturn ONLY JSON that matches the provided schema."
	if req.HasImage() {
		mt := req.ImageMIME
		if mt == "" {
			mt = "image/png"
		}
		dataURL := "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(req.DocumentImage)
		userContent = []map[string]any{
			{"type": "text", "text": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": userContent},
			{"role": "system", "content": "JSON Schema:\n" + provider.MustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := provider.SendJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.log)
	if err != nil {
		c.log.Error("openai.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return provider.RawModelOutput{}, common.ProviderError("openai call failed", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("openai.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return provider.RawModelOutput{}, common.ProviderError("decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("openai.extract.no_choices", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return provider.RawModelOutput{}, common.ProviderError("no choices in openai response", nil)
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := provider.ValidateAgainstSchema(schema, content); err != nil {
		if c.cfg.StrictSanitize {
			c.log.Error("openai.extract.schema_validation_failed",
				"req_id", rid, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return provider.RawModelOutput{}, common.ProviderError("response outside expected shape", err)
		}
		cleaned, dropped, sErr := provider.SanitizeModelJSON(content)
		if sErr != nil {
			c.log.Error("openai.extract.sanitize_failed",
				"req_id", rid, "error", sErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return provider.RawModelOutput{}, common.ProviderError("response outside expected shape", err)
		}
		if vErr := provider.ValidateAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("openai.extract.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return provider.RawModelOutput{}, common.ProviderError("response outside expected shape", vErr)
		}
		c.log.Warn("openai.extract.lenient_sanitize_applied",
			"req_id", rid, "dropped", dropped,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		content = cleaned
	}

	elapsed := time.Since(start).Milliseconds()
	c.log.Info("openai.extract.ok",
		"req_id", rid,
		"model", c.cfg.Model,
		"content_bytes", len(content),
		"elapsed_ms", elapsed,
	)
	return provider.RawModelOutput{
		Content:   content,
		Provider:  providerName,
		Model:     c.cfg.Model,
		ElapsedMs: elapsed,
	}, nil
}
