package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration // Per attempt.
	Retrier *Retrier
	Models  Models
}

// Models selects the upstream model per task.
type Models struct {
	Image    string
	Analyze  string
	Validate string
}

// DefaultModels returns the models used when none are configured.
func DefaultModels() Models {
	return Models{
		Image:    "gemini-2.5-flash-image",
		Analyze:  "gemini-3-flash-preview",
		Validate: "gemini-2.0-flash",
	}
}

// Client calls the generateContent endpoint with retries.
type Client struct {
	http    *resty.Client
	apiKey  string
	retrier *Retrier
	models  Models
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	retrier := opts.Retrier
	if retrier == nil {
		retrier = NewRetrier(DefaultMaxAttempts, DefaultBaseDelay)
	}
	models := opts.Models
	defaults := DefaultModels()
	if models.Image == "" {
		models.Image = defaults.Image
	}
	if models.Analyze == "" {
		models.Analyze = defaults.Analyze
	}
	if models.Validate == "" {
		models.Validate = defaults.Validate
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		apiKey:  strings.TrimSpace(opts.APIKey),
		retrier: retrier,
		models:  models,
	}
}

// Model returns the upstream model for task.
func (c *Client) Model(task Task) string {
	switch task {
	case TaskImage:
		return c.models.Image
	case TaskValidate:
		return c.models.Validate
	default:
		return c.models.Analyze
	}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string       `json:"responseModalities,omitempty"`
	ResponseMimeType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// generate performs a single generateContent call.
func (c *Client) generate(ctx context.Context, model string, body generateRequest) (*generateResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.apiKey).
		SetBody(body).
		SetResult(&generateResponse{}).
		SetError(&errorEnvelope{}).
		Post("/models/" + model + ":generateContent")
	if err != nil {
		return nil, fmt.Errorf("gemini: request %s: %w", model, err)
	}
	if resp.IsError() {
		providerErr := &ProviderError{StatusCode: resp.StatusCode()}
		if envelope, ok := resp.Error().(*errorEnvelope); ok && envelope != nil {
			providerErr.Status = envelope.Error.Status
			providerErr.Message = envelope.Error.Message
		}
		if providerErr.Message == "" {
			providerErr.Message = strings.TrimSpace(resp.String())
		}
		return nil, providerErr
	}
	out, ok := resp.Result().(*generateResponse)
	if !ok || out == nil {
		return nil, ErrEmptyResponse
	}
	return out, nil
}
