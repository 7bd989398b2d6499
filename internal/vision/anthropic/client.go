package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/vision"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 8192
)

// Client implements vision.Client on the Anthropic Messages API.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewClient constructs a Client. Retries are left to the caller's executor.
func NewClient(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("AI_MODEL is required for Anthropic")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &Client{
		client:    sdk.NewClient(append(base, opts...)...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Classify asks the model which document type the upload is.
func (c *Client) Classify(ctx context.Context, in vision.ClassifyInput) (vision.ClassifyOutput, error) {
	raw, err := c.complete(ctx, "classify", in.Prompt, in.Data, in.MimeType)
	if err != nil {
		return vision.ClassifyOutput{}, err
	}
	out, err := vision.ParseClassifyResponse(raw)
	if err != nil {
		return vision.ClassifyOutput{}, err
	}
	out.Model = c.model
	return out, nil
}

// Extract asks the model to transcribe the fields of a known document type.
func (c *Client) Extract(ctx context.Context, in vision.ExtractInput) (vision.ExtractOutput, error) {
	raw, err := c.complete(ctx, "extract", in.Prompt, in.Data, in.MimeType)
	if err != nil {
		return vision.ExtractOutput{}, err
	}
	out, err := vision.ParseExtractResponse(raw)
	if err != nil {
		return vision.ExtractOutput{}, err
	}
	out.Model = c.model
	return out, nil
}

func attachment(data []byte, mimeType string) (sdk.ContentBlockParamUnion, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	switch mimeType {
	case "application/pdf":
		return sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{Data: encoded}), nil
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return sdk.NewImageBlockBase64(mimeType, encoded), nil
	}
	return sdk.ContentBlockParamUnion{}, fmt.Errorf("%w: %s", vision.ErrUnsupportedMedia, mimeType)
}

func (c *Client) complete(ctx context.Context, op, prompt string, data []byte, mimeType string) ([]byte, error) {
	block, err := attachment(data, mimeType)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      []sdk.TextBlockParam{{Text: prompt}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(block, sdk.NewTextBlock("Respond with the JSON object only."))},
		Temperature: sdk.Float(0),
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return nil, fmt.Errorf("%w: anthropic response empty content", vision.ErrInvalidResponse)
	}

	telemetry.Info("vision.response", map[string]any{
		"provider":      providerName,
		"model":         c.model,
		"operation":     op,
		"duration_ms":   float64(time.Since(start).Microseconds()) / 1000.0,
		"input_tokens":  msg.Usage.InputTokens,
		"output_tokens": msg.Usage.OutputTokens,
		"stop_reason":   string(msg.StopReason),
	})
	return []byte(content), nil
}

func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		out := &vision.APIError{Provider: providerName, StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		if apiErr.StatusCode == http.StatusNotFound {
			out.Type = "not_found_error"
		}
		return out
	}
	return fmt.Errorf("anthropic: create message: %w", err)
}

var _ vision.Client = (*Client)(nil)
