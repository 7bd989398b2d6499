package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/vision"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

// Client implements vision.Client using OpenAI Chat Completions with image and
// file content parts.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model string, timeout time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("AI_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Classify asks the model which document type the upload is.
func (c *Client) Classify(ctx context.Context, in vision.ClassifyInput) (vision.ClassifyOutput, error) {
	raw, err := c.complete(ctx, "classify", in.Prompt, in.Data, in.MimeType, in.FileName)
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
	raw, err := c.complete(ctx, "extract", in.Prompt, in.Data, in.MimeType, in.FileName)
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

func attachment(data []byte, mimeType, fileName string) (contentPart, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	switch {
	case mimeType == "application/pdf":
		if fileName == "" {
			fileName = "document.pdf"
		}
		return contentPart{Type: "file", File: &filePart{
			Filename: fileName,
			FileData: "data:application/pdf;base64," + encoded,
		}}, nil
	case mimeType == "image/jpeg" || mimeType == "image/png" || mimeType == "image/gif" || mimeType == "image/webp":
		return contentPart{Type: "image_url", ImageURL: &imageURL{
			URL:    "data:" + mimeType + ";base64," + encoded,
			Detail: "high",
		}}, nil
	}
	return contentPart{}, fmt.Errorf("%w: %s", vision.ErrUnsupportedMedia, mimeType)
}

func (c *Client) complete(ctx context.Context, op, prompt string, data []byte, mimeType, fileName string) ([]byte, error) {
	part, err := attachment(data, mimeType, fileName)
	if err != nil {
		return nil, err
	}
	temp := float32(0)
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: []contentPart{part}},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	if !isReasoningModel(c.model) {
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &vision.APIError{Provider: providerName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("%w: openai response parse: %v", vision.ErrInvalidResponse, err)
	}
	if resp.StatusCode >= 300 || parsed.Error != nil {
		apiErr := &vision.APIError{Provider: providerName, StatusCode: resp.StatusCode}
		if parsed.Error != nil {
			apiErr.Message = parsed.Error.Message
			apiErr.Type = parsed.Error.Type
			if parsed.Error.Code == "model_not_found" {
				apiErr.StatusCode = http.StatusNotFound
			}
		}
		return nil, apiErr
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai response missing choices", vision.ErrInvalidResponse)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: openai response empty content", vision.ErrInvalidResponse)
	}

	fields := map[string]any{
		"provider":    providerName,
		"model":       c.model,
		"operation":   op,
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if parsed.Usage != nil {
		fields["prompt_tokens"] = parsed.Usage.PromptTokens
		fields["completion_tokens"] = parsed.Usage.CompletionTokens
		fields["total_tokens"] = parsed.Usage.TotalTokens
	}
	telemetry.Info("vision.response", fields)
	return []byte(content), nil
}

// isReasoningModel reports whether model rejects a temperature setting.
func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-5") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

var _ vision.Client = (*Client)(nil)
