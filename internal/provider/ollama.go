package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/studyspark/internal/completion"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// Ollama serves completions from a local Ollama server. A model the server
// does not have yet is reported as downloadable and can be pulled.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(timeout),
	}
}

func (o *Ollama) Name() string {
	return NameOllama
}

func (o *Ollama) Model() string {
	return o.model
}

func (o *Ollama) Availability(ctx context.Context) (completion.Availability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return completion.Unavailable, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return completion.Unavailable, fmt.Errorf("Ollama not available: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return completion.Unavailable, fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return completion.Unavailable, err
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, o.model) || sameModel(m.Model, o.model) {
			return completion.Available, nil
		}
	}
	return completion.Downloadable, nil
}

func (o *Ollama) Download(ctx context.Context) error {
	body := map[string]any{"model": o.model, "stream": false}
	var status struct {
		Status string `json:"status"`
	}
	if err := postJSON(ctx, o.client, o.baseURL+"/api/pull", nil, body, &status); err != nil {
		return fmt.Errorf("pull %s: %w", o.model, err)
	}
	if status.Status != "" && status.Status != "success" {
		return fmt.Errorf("pull %s: %s", o.model, status.Status)
	}
	return nil
}

func (o *Ollama) NewSession(_ context.Context, opts completion.SessionOptions) (completion.Session, error) {
	model := opts.Model
	if model == "" {
		model = o.model
	}
	return &ollamaSession{ollama: o, model: model, system: opts.System}, nil
}

type ollamaSession struct {
	ollama *Ollama
	model  string
	system string
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Prompt returns the generated text as a string.
func (s *ollamaSession) Prompt(ctx context.Context, prompt string) (any, error) {
	req := ollamaRequest{Model: s.model, Prompt: prompt, System: s.system}
	var resp ollamaResponse
	if err := postJSON(ctx, s.ollama.client, s.ollama.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Response, nil
}

func (s *ollamaSession) Close() error { return nil }

// sameModel treats "llama3.2" and "llama3.2:latest" as the same model.
func sameModel(have, want string) bool {
	if have == "" {
		return false
	}
	return strings.TrimSuffix(have, ":latest") == strings.TrimSuffix(want, ":latest")
}
