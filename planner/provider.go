package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fleetguard/governor/core"
)

// ReasoningClient is a minimal LLM text-completion client. It is
// implemented directly on net/http + encoding/json rather than a vendor
// SDK, mirroring the teacher's ai/providers/{openai,anthropic,gemini}
// clients — each provider is a thin, hand-rolled HTTP wrapper so that
// swapping or adding a provider never pulls in a new SDK dependency.
type ReasoningClient interface {
	// Complete sends systemPrompt+userPrompt to the named model and
	// returns the raw text response.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// Cascade tries a list of models, each potentially served by a different
// provider, in order — grounded on the teacher's ai.ChainClient failover
// behavior (ai/chain_client.go): continue to the next model on any
// failure, give up only once every model in the cascade has failed.
type Cascade struct {
	models  []string
	clients map[string]ReasoningClient // model -> client that can serve it
	logger  core.Logger
	temp    float64
	maxTok  int
}

// NewCascade builds a Cascade from cfg. Models are resolved to a client by
// the provider prefix before the first '/' (e.g. "openai/gpt-4o-mini",
// "anthropic/claude-3-haiku", "gemini/gemini-1.5-flash"); models with no
// recognized prefix, or whose provider has no configured API key, are
// skipped rather than causing a configuration error — a cascade that
// can serve at least one model is enough to run (ai/chain_client.go's
// partial-chain tolerance).
func NewCascade(cfg core.AIConfig, logger core.Logger) *Cascade {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	c := &Cascade{logger: logger, temp: cfg.Temperature, maxTok: cfg.MaxTokens}
	for _, model := range cfg.ProviderCascade {
		provider, _ := splitModel(model)
		apiKeyEnv := cfg.APIKeyEnv[provider]
		apiKey := ""
		if apiKeyEnv != "" {
			apiKey = os.Getenv(apiKeyEnv)
		}
		if apiKey == "" {
			logger.Warn("reasoning provider not configured, skipping in cascade", map[string]interface{}{"provider": provider, "model": model})
			continue
		}
		baseURL := ""
		if env := cfg.BaseURLEnv[provider]; env != "" {
			baseURL = os.Getenv(env)
		}
		client := newHTTPClient(provider, apiKey, baseURL, cfg.Timeout)
		if client == nil {
			continue
		}
		if c.clients == nil {
			c.clients = map[string]ReasoningClient{}
		}
		c.clients[model] = client
		c.models = append(c.models, model)
	}
	return c
}

// NewCascadeWithClients builds a Cascade directly from an ordered list of
// models and a pre-built client per model, bypassing env/API-key
// resolution entirely. Grounded on the teacher's ai/providers/mock
// pattern (mock.Client/mock.Factory): tests inject a scripted client in
// place of a real provider rather than exercising newHTTPClient.
func NewCascadeWithClients(models []string, clients map[string]ReasoningClient, cfg core.AIConfig, logger core.Logger) *Cascade {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Cascade{
		models:  models,
		clients: clients,
		logger:  logger,
		temp:    cfg.Temperature,
		maxTok:  cfg.MaxTokens,
	}
}

// Available reports whether the cascade can serve at least one model.
func (c *Cascade) Available() bool {
	return len(c.models) > 0
}

// Complete tries each model in order, returning the first successful
// response along with the model that produced it.
func (c *Cascade) Complete(ctx context.Context, systemPrompt, userPrompt string) (text, modelUsed string, err error) {
	var lastErr error
	for _, model := range c.models {
		client := c.clients[model]
		_, rawModel := splitModel(model)
		out, cerr := client.Complete(ctx, rawModel, systemPrompt, userPrompt, c.temp, c.maxTok)
		if cerr != nil {
			lastErr = cerr
			c.logger.Warn("reasoning model failed, trying next in cascade", map[string]interface{}{"model": model, "error": cerr.Error()})
			continue
		}
		if out == "" {
			continue
		}
		return out, model, nil
	}
	if lastErr == nil {
		lastErr = core.ErrReasoningUnavailable
	}
	return "", "", fmt.Errorf("%w: %v", core.ErrReasoningUnavailable, lastErr)
}

func splitModel(model string) (provider, name string) {
	for i := 0; i < len(model); i++ {
		if model[i] == '/' {
			return model[:i], model[i+1:]
		}
	}
	return model, model
}

func newHTTPClient(provider, apiKey, baseURL string, timeout time.Duration) ReasoningClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	switch provider {
	case "openai":
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return &openAICompatClient{httpClient: hc, apiKey: apiKey, baseURL: baseURL}
	case "anthropic":
		if baseURL == "" {
			baseURL = "https://api.anthropic.com/v1"
		}
		return &anthropicClient{httpClient: hc, apiKey: apiKey, baseURL: baseURL}
	case "gemini":
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		return &geminiClient{httpClient: hc, apiKey: apiKey, baseURL: baseURL}
	default:
		return nil
	}
}

// --- OpenAI-compatible chat completions (also serves openai.* aliases) ---

type openAICompatClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAICompatClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	reqBody := openAIChatRequest{
		Model: model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	var out openAIChatResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return out.Choices[0].Message.Content, nil
}

// --- Anthropic messages API ---

type anthropicClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 800
	}
	reqBody := anthropicRequest{
		Model:     model,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
		MaxTokens: maxTokens,
	}
	var out anthropicResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("no content returned")
	}
	return out.Content[0].Text, nil
}

// --- Gemini generateContent API ---

type geminiClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type geminiRequest struct {
	Contents          []geminiContent    `json:"contents"`
	SystemInstruction *geminiContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig    `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
		GenerationConfig: geminiGenConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	var out geminiResponse
	if err := postJSON(ctx, c.httpClient, url, nil, reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrReasoningUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", core.ErrReasoningUnavailable, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
