package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-go-golems/mangiafuoco/pkg/security"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTimeout = 30 * time.Second
)

// Part is one piece of a Gemini content turn. Exactly one field is set.
type Part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// FunctionCall is a structured tool invocation in a model response.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Content is a single conversation turn. Roles are "user" and "model".
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// GenerationConfig carries sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// GenerateRequest is the generateContent request payload.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Candidate is one generated completion.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// PromptFeedback reports why a prompt produced no candidates.
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// UsageMetadata is the token accounting block.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResponse is the generateContent response payload.
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
}

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// APIError is a non-200 answer from the Gemini endpoint, preserving
// the HTTP status so callers can tell rate limits apart.
type APIError struct {
	StatusCode int
	Detail     ErrorDetail
}

func (e *APIError) Error() string {
	if e.Detail.Message != "" {
		return e.Detail.Message
	}
	return fmt.Sprintf("gemini API returned status %d", e.StatusCode)
}

// Client talks to the Gemini generateContent endpoint. API keys are
// passed per call because they rotate between requests.
type Client struct {
	httpClient *http.Client
	BaseURL    string
	// AllowLocalNetworks permits plain-HTTP loopback endpoints, for
	// local generateContent-compatible proxies.
	AllowLocalNetworks bool
}

func NewClient(baseURL ...string) *Client {
	u := DefaultBaseURL
	if len(baseURL) > 0 && baseURL[0] != "" {
		u = baseURL[0]
	}
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		BaseURL:    u,
	}
}

// Generate sends one generateContent request for the given model.
func (c *Client) Generate(ctx context.Context, apiKey, model string, req *GenerateRequest) (*GenerateResponse, error) {
	if err := security.ValidateOutboundURL(c.BaseURL, security.OutboundURLOptions{
		AllowHTTP:          c.AllowLocalNetworks,
		AllowLocalNetworks: c.AllowLocalNetworks,
	}); err != nil {
		return nil, fmt.Errorf("invalid gemini base URL: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	// the key goes in a header, never the URL: transport errors quote
	// the full URL and those strings end up in logs and transcripts
	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		c.BaseURL, url.PathEscape(model))
	req_, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req_.Header.Set("Content-Type", "application/json")
	req_.Header.Set("x-goog-api-key", apiKey)

	// #nosec G704 -- URL is validated above with ValidateOutboundURL.
	resp, err := c.httpClient.Do(req_)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil {
			apiErr.Detail = errorResp.Error
		}
		return nil, apiErr
	}

	var successResp GenerateResponse
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return nil, err
	}

	return &successResp, nil
}
