package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/studyspark/internal/completion"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "google/gemini-2.0-flash-exp:free"
)

var errNotDownloadable = errors.New("openrouter models are hosted and cannot be downloaded")

// OpenRouter serves completions from the OpenRouter chat API. It is available
// whenever an API key is configured.
type OpenRouter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenRouter(apiKey, baseURL, model string, timeout time.Duration) *OpenRouter {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(timeout),
	}
}

func (s *OpenRouter) Name() string {
	return NameOpenRouter
}

func (s *OpenRouter) Model() string {
	return s.model
}

func (s *OpenRouter) Availability(context.Context) (completion.Availability, error) {
	if s.apiKey == "" {
		return completion.Unavailable, fmt.Errorf("OpenRouter API key not configured")
	}
	return completion.Available, nil
}

func (s *OpenRouter) Download(context.Context) error {
	return errNotDownloadable
}

func (s *OpenRouter) NewSession(_ context.Context, opts completion.SessionOptions) (completion.Session, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key required")
	}
	model := opts.Model
	if model == "" {
		model = s.model
	}
	return &openRouterSession{svc: s, model: model, system: opts.System}, nil
}

type openRouterSession struct {
	svc    *OpenRouter
	model  string
	system string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt returns the decoded response body as a map; the caller extracts the
// message text from it.
func (s *openRouterSession) Prompt(ctx context.Context, prompt string) (any, error) {
	messages := make([]chatMessage, 0, 2)
	if s.system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s.system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body := map[string]any{
		"model":      s.model,
		"messages":   messages,
		"max_tokens": 4096,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + s.svc.apiKey,
		"HTTP-Referer":  "https://studyspark.local",
		"X-Title":       "StudySpark",
	}

	var resp map[string]any
	if err := postJSON(ctx, s.svc.client, s.svc.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return nil, err
	}
	if apiErr, ok := resp["error"]; ok {
		return nil, fmt.Errorf("API error: %v", apiErr)
	}
	return resp, nil
}

func (s *openRouterSession) Close() error { return nil }
