package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/FLAMiNGPHYtON1/outlet-locator/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

// OpenAIAdapter talks to the OpenAI chat completions and embeddings endpoints
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     map[string]*providers.ModelInfo
}

var _ providers.Provider = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	defaults := providers.DefaultProviderConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	adapter := &OpenAIAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
	adapter.initModels()

	return adapter
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return providerName
}

// ChatCompletion performs a chat completion request
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if err := a.validateKind(req.Model, providers.ModelKindChat); err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", err.Error(), http.StatusBadRequest, false, err)
	}
	if len(req.Messages) == 0 {
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", "at least one message is required", http.StatusBadRequest, false, nil)
	}

	respBody, err := a.post(ctx, "/chat/completions", a.buildChatRequest(req))
	if err != nil {
		return nil, err
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", http.StatusOK, false, err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "completion returned no choices", http.StatusOK, false, nil)
	}

	return a.convertChatResponse(&openaiResp, time.Since(startTime)), nil
}

// Embed returns one vector per input, reordered by the index OpenAI reports
func (a *OpenAIAdapter) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	startTime := time.Now()

	if err := a.validateEmbedding(req); err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_MODEL", err.Error(), http.StatusBadRequest, false, err)
	}
	if len(req.Inputs) == 0 {
		return &providers.EmbeddingResponse{Model: req.Model, Vectors: [][]float32{}}, nil
	}

	respBody, err := a.post(ctx, "/embeddings", &OpenAIEmbeddingRequest{
		Model:      req.Model,
		Input:      req.Inputs,
		Dimensions: req.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	var openaiResp OpenAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", http.StatusOK, false, err)
	}

	vectors, err := orderEmbeddings(openaiResp.Data, len(req.Inputs), req.Dimensions)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_RESPONSE", "embedding response does not match request", http.StatusOK, false, err)
	}

	return &providers.EmbeddingResponse{
		Model:   openaiResp.Model,
		Vectors: vectors,
		Usage: providers.Usage{
			PromptTokens: openaiResp.Usage.PromptTokens,
			TotalTokens:  openaiResp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
	}, nil
}

// IsAvailable checks if the provider is currently available
func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// ValidateModel checks if a model is supported
func (a *OpenAIAdapter) ValidateModel(model string) error {
	if _, exists := a.models[model]; !exists {
		return fmt.Errorf("model %s is not supported by OpenAI provider", model)
	}
	return nil
}

// GetModelInfo returns information about a specific model
func (a *OpenAIAdapter) GetModelInfo(model string) (*providers.ModelInfo, error) {
	info, exists := a.models[model]
	if !exists {
		return nil, fmt.Errorf("model %s not found", model)
	}
	return info, nil
}

// ListModels returns all available models, sorted
func (a *OpenAIAdapter) ListModels() []string {
	models := make([]string, 0, len(a.models))
	for model := range a.models {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func (a *OpenAIAdapter) validateKind(model string, kind providers.ModelKind) error {
	info, err := a.GetModelInfo(model)
	if err != nil {
		return fmt.Errorf("model %s is not supported by OpenAI provider", model)
	}
	if info.Kind != kind {
		return fmt.Errorf("model %s is a %s model, not %s", model, info.Kind, kind)
	}
	return nil
}

func (a *OpenAIAdapter) validateEmbedding(req *providers.EmbeddingRequest) error {
	if err := a.validateKind(req.Model, providers.ModelKindEmbedding); err != nil {
		return err
	}
	info := a.models[req.Model]
	switch {
	case req.Dimensions < 0:
		return fmt.Errorf("dimensions must not be negative")
	case req.Dimensions > info.Dimensions:
		return fmt.Errorf("model %s produces at most %d dimensions", req.Model, info.Dimensions)
	case req.Dimensions > 0 && req.Dimensions != info.Dimensions && !info.Shortenable:
		return fmt.Errorf("model %s does not support custom dimensions", req.Model)
	}
	return nil
}

// post sends payload and returns the body of a 200 response. 429 and 5xx
// responses and transport failures are retried with capped exponential
// backoff; a Retry-After header replaces the computed delay.
func (a *OpenAIAdapter) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
		}
		a.setHeaders(httpReq)

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, providers.NewProviderError(a.Name(), "CANCELLED", "request cancelled", 0, false, ctx.Err())
			}
			lastErr = providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
			if attempt < a.config.MaxRetries {
				if waitErr := a.wait(ctx, attempt, ""); waitErr != nil {
					return nil, lastErr
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		if readErr != nil {
			lastErr = providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, true, readErr)
			if attempt < a.config.MaxRetries {
				if waitErr := a.wait(ctx, attempt, ""); waitErr != nil {
					return nil, lastErr
				}
			}
			continue
		}

		if httpResp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = a.handleErrorResponse(httpResp.StatusCode, respBody)
		if !providers.RetryableStatus(httpResp.StatusCode) {
			return nil, lastErr
		}
		if attempt < a.config.MaxRetries {
			if waitErr := a.wait(ctx, attempt, httpResp.Header.Get("Retry-After")); waitErr != nil {
				return nil, lastErr
			}
		}
	}

	return nil, lastErr
}

func (a *OpenAIAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.OrgID != "" {
		req.Header.Set("OpenAI-Organization", a.config.OrgID)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
}

// wait sleeps before the next attempt, returning early with ctx's error
func (a *OpenAIAdapter) wait(ctx context.Context, attempt int, retryAfter string) error {
	timer := time.NewTimer(a.retryDelay(attempt, retryAfter))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *OpenAIAdapter) retryDelay(attempt int, retryAfter string) time.Duration {
	var delay time.Duration
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(retryAfter); err == nil {
			delay = time.Until(at)
		}
	}
	if delay <= 0 {
		delay = a.config.RetryDelay << attempt
	}
	if a.config.MaxRetryDelay > 0 && delay > a.config.MaxRetryDelay {
		delay = a.config.MaxRetryDelay
	}
	return delay
}

// initModels initializes the model information map
func (a *OpenAIAdapter) initModels() {
	a.models = map[string]*providers.ModelInfo{
		"gpt-4o": {
			ID:            "gpt-4o",
			Name:          "GPT-4o",
			Provider:      providerName,
			Kind:          providers.ModelKindChat,
			MaxTokens:     16384,
			ContextWindow: 128000,
		},
		"gpt-4o-mini": {
			ID:            "gpt-4o-mini",
			Name:          "GPT-4o Mini",
			Provider:      providerName,
			Kind:          providers.ModelKindChat,
			MaxTokens:     16384,
			ContextWindow: 128000,
		},
		"gpt-4.1-mini": {
			ID:            "gpt-4.1-mini",
			Name:          "GPT-4.1 Mini",
			Provider:      providerName,
			Kind:          providers.ModelKindChat,
			MaxTokens:     32768,
			ContextWindow: 1047576,
		},
		"gpt-3.5-turbo": {
			ID:            "gpt-3.5-turbo",
			Name:          "GPT-3.5 Turbo",
			Provider:      providerName,
			Kind:          providers.ModelKindChat,
			MaxTokens:     4096,
			ContextWindow: 16385,
		},
		"text-embedding-3-small": {
			ID:          "text-embedding-3-small",
			Name:        "Text Embedding 3 Small",
			Provider:    providerName,
			Kind:        providers.ModelKindEmbedding,
			Dimensions:  1536,
			Shortenable: true,
		},
		"text-embedding-3-large": {
			ID:          "text-embedding-3-large",
			Name:        "Text Embedding 3 Large",
			Provider:    providerName,
			Kind:        providers.ModelKindEmbedding,
			Dimensions:  3072,
			Shortenable: true,
		},
		"text-embedding-ada-002": {
			ID:         "text-embedding-ada-002",
			Name:       "Text Embedding Ada 002",
			Provider:   providerName,
			Kind:       providers.ModelKindEmbedding,
			Dimensions: 1536,
		},
	}
}

func (a *OpenAIAdapter) buildChatRequest(req *providers.ChatRequest) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model:    req.Model,
		Messages: make([]OpenAIMessage, len(req.Messages)),
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		openaiReq.Temperature = &req.Temperature
	}
	if req.User != "" {
		openaiReq.User = &req.User
	}

	return openaiReq
}

func (a *OpenAIAdapter) convertChatResponse(openaiResp *OpenAIChatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(openaiResp.Created, 0),
	}

	for i, choice := range openaiResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// orderEmbeddings places each vector at its reported index and checks that
// every input got exactly one vector of the requested length
func orderEmbeddings(data []OpenAIEmbedding, want, dimensions int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(data), want)
	}

	vectors := make([][]float32, want)
	for _, item := range data {
		if item.Index < 0 || item.Index >= want {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if vectors[item.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", item.Index)
		}
		if dimensions > 0 && len(item.Embedding) != dimensions {
			return nil, fmt.Errorf("embedding at index %d has %d dimensions, want %d", item.Index, len(item.Embedding), dimensions)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.RetryableStatus(statusCode)

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("unexpected status %d", statusCode), statusCode, retryable, err)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	User        *string         `json:"user,omitempty"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type OpenAIEmbeddingResponse struct {
	Object string            `json:"object"`
	Data   []OpenAIEmbedding `json:"data"`
	Model  string            `json:"model"`
	Usage  OpenAIUsage       `json:"usage"`
}

type OpenAIEmbedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
