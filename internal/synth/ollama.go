// Package synth provides the answer synthesizer implementations: an
// Ollama LLM client and an offline extractive fallback.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"ragstack/internal/domain"
)

// Ollama defaults.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:8b"
	DefaultTimeout = 120 * time.Second
)

const answerPrompt = `You are a helpful assistant answering questions using only the provided context.

Context:
%s

Question: %s

Answer concisely using the context above. If the context does not contain the answer, say so.`

const noContextPrompt = `You are a helpful assistant. No relevant context was found in the document store for the question below. Tell the user that no relevant information was found, then answer from general knowledge if you can.

Question: %s`

// OllamaConfig holds configuration for the Ollama synthesizer.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Ollama synthesizes answers via the Ollama /api/generate endpoint.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

var _ domain.Synthesizer = (*Ollama)(nil)

// NewOllama creates an Ollama synthesizer with defaults applied.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Ollama{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

func (o *Ollama) Name() string { return "ollama" }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Synthesize produces the final answer. An empty contextText means
// retrieval found nothing; the model is still invoked with an
// explicit no-context prompt so the caller always gets a response.
func (o *Ollama) Synthesize(ctx context.Context, question, contextText string) (string, error) {
	prompt := fmt.Sprintf(answerPrompt, contextText, question)
	if strings.TrimSpace(contextText) == "" {
		prompt = fmt.Sprintf(noContextPrompt, question)
	}
	body, err := json.Marshal(generateRequest{Model: o.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: ollama generate status %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, msg)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}
	return strings.TrimSpace(out.Response), nil
}
