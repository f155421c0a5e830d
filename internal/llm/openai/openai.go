package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HerbHall/llmrelay/pkg/llm"
	"go.uber.org/zap"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"

	// maxBodyBytes bounds how much of any upstream body is read.
	maxBodyBytes = 8 << 20
)

// Compile-time interface guards.
var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider implements llm.Provider against the OpenAI chat completions API.
// It is safe for concurrent use; the credential is fixed at construction.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an OpenAI provider. apiKey is the bearer credential resolved
// by the caller; it is never logged.
func New(cfg Config, apiKey string, logger *zap.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Generate sends prompt as a single user message.
func (p *Provider) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

// Chat creates a completion from the given messages.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}

	req := chatRequest{
		Model:     p.cfg.Model,
		Messages:  make([]chatMessage, len(messages)),
		MaxTokens: p.cfg.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	raw, err := p.doPost(ctx, chatCompletionsPath, body)
	if err != nil {
		return nil, mapError(err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidResponse, "decode chat response", err)
	}
	// A 2xx body without a choices array (e.g. an error object) is not a completion.
	if resp.Choices == nil {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidResponse, "chat response has no choices field", nil)
	}

	out := &llm.Response{
		Model:   resp.Model,
		Choices: len(resp.Choices),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		// Null or absent content (refusals, tool calls) is not a completion.
		msg := resp.Choices[0].Message
		if msg == nil || msg.Content == nil {
			return nil, llm.NewProviderError(llm.ErrCodeInvalidResponse, "first choice has no message content", nil)
		}
		out.Content = *msg.Content
	}

	p.logger.Debug("chat completion received",
		zap.String("model", out.Model),
		zap.Int("choices", out.Choices),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

// Heartbeat checks whether the OpenAI API is reachable with the configured key.
func (p *Provider) Heartbeat(ctx context.Context) error {
	_, err := p.doGet(ctx, modelsPath)
	return mapError(err)
}

// ListModels returns the model IDs visible to the configured key.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	raw, err := p.doGet(ctx, modelsPath)
	if err != nil {
		return nil, mapError(err)
	}

	var result listResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidResponse, "decode list response", err)
	}

	names := make([]string, len(result.Data))
	for i := range result.Data {
		names[i] = result.Data[i].ID
	}
	return names, nil
}

func (p *Provider) doPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req)
}

func (p *Provider) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

// do sends an authenticated request and returns the body of a 2xx response.
// Any other status is returned as a *statusError.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if p.cfg.DebugBodies {
		p.logger.Debug("openai response body",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", p.redact(string(raw))),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := parseStatusError(resp, raw)
		se.Message = p.redact(se.Message)
		return nil, se
	}
	return raw, nil
}

// redact masks the credential in upstream text that may echo it back.
func (p *Provider) redact(s string) string {
	return strings.ReplaceAll(s, p.apiKey, "[REDACTED]")
}

// parseStatusError extracts the OpenAI error object from a failed response.
func parseStatusError(resp *http.Response, raw []byte) *statusError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(raw, &errResp); err != nil {
		return &statusError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	msg := errResp.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	typ := errResp.Error.Type
	if errResp.Error.Code == "context_length_exceeded" {
		typ = errResp.Error.Code
	}
	return &statusError{
		StatusCode: resp.StatusCode,
		Type:       typ,
		Message:    msg,
	}
}

// --- OpenAI REST API types (internal) ---

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type listResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
