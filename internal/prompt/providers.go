package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Default API endpoints per provider.
const (
	openAIBase    = "https://api.openai.com/v1"
	anthropicBase = "https://api.anthropic.com"
	ollamaBase    = "http://localhost:11434"
	geminiBase    = "https://generativelanguage.googleapis.com"
)

const (
	llmTimeout     = 120 * time.Second
	maxTokens      = 4096
	maxErrorBody   = 200
	negativePrefix = "Do NOT do the following: "
)

// MockResponse is returned by Generate when UMLVIEW_MOCK_LLM=1,
// keeping CI runs offline.
const MockResponse = "graph LR\n  A[Kroki] --> B[Diagrams]"

// MockEnabled reports whether the mock LLM is active.
func MockEnabled() bool {
	return strings.TrimSpace(os.Getenv("UMLVIEW_MOCK_LLM")) == "1"
}

var providerModels = map[Provider][]string{
	ProviderOllama: {
		"llama3.2",
		"llama3.1",
		"mistral",
		"codellama",
		"qwen2.5-coder",
		"phi3",
		"gemma2",
	},
	ProviderOpenAI: {
		"gpt-4o-mini",
		"gpt-4o",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	},
	ProviderAnthropic: {
		"claude-3-5-haiku-20241022",
		"claude-3-5-sonnet-20241022",
		"claude-3-opus-20240229",
	},
	ProviderGemini: {
		"gemini-2.0-flash",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
		"gemini-1.0-pro",
	},
}

// Providers lists the supported providers in display order.
func Providers() []Provider {
	return []Provider{ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// ParseProvider normalizes a provider name.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	_, ok := providerModels[p]
	return p, ok
}

// Models returns the known model identifiers for a provider. The list
// is advisory: any model string is passed through to the API.
func Models(p Provider) []string {
	models := providerModels[p]
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// DefaultModel returns the provider's first-choice model.
func DefaultModel(p Provider) string {
	models := providerModels[p]
	if len(models) == 0 {
		return ""
	}
	return models[0]
}

// GenerateRequest describes one LLM call.
type GenerateRequest struct {
	Provider Provider
	Model    string
	// Prompt is the user message, typically BuiltPrompt.UserPrompt().
	Prompt string
	// Negative becomes the system message, prefixed so the model
	// treats it as a prohibition.
	Negative string
	// APIKey overrides the provider's environment variable.
	APIKey string
	// BaseURL overrides the Ollama endpoint. Ignored by the hosted
	// providers.
	BaseURL string
}

// Client calls LLM provider APIs.
type Client struct {
	httpc  *retryablehttp.Client
	logger *slog.Logger
	bases  map[Provider]string
}

// ClientOptions configures NewClient. The zero value is usable.
type ClientOptions struct {
	HTTPClient *retryablehttp.Client
	Logger     *slog.Logger
	// BaseURLs overrides provider endpoints, e.g. to point at an API
	// gateway.
	BaseURLs map[Provider]string
}

// NewClient creates an LLM client.
func NewClient(opts ClientOptions) *Client {
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = retryablehttp.NewClient()
		httpc.RetryMax = 1
		httpc.Logger = nil
		httpc.HTTPClient.Timeout = llmTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bases := map[Provider]string{
		ProviderOpenAI:    openAIBase,
		ProviderAnthropic: anthropicBase,
		ProviderGemini:    geminiBase,
		ProviderOllama:    ollamaBase,
	}
	for p, base := range opts.BaseURLs {
		if base != "" {
			bases[p] = strings.TrimRight(base, "/")
		}
	}
	return &Client{httpc: httpc, logger: logger, bases: bases}
}

// Generate calls the requested provider and returns the raw response
// text. Callers that feed diagram renderers usually pass the result
// through StripCodeFence.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if MockEnabled() {
		return MockResponse, nil
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultModel(req.Provider)
	}
	prompt := strings.TrimSpace(req.Prompt)
	negative := strings.TrimSpace(req.Negative)

	start := time.Now()
	var (
		text string
		err  error
	)
	switch req.Provider {
	case ProviderOllama:
		text, err = c.callOllama(ctx, prompt, negative, model, c.resolveOllamaBase(req.BaseURL))
	case ProviderOpenAI:
		text, err = c.callOpenAI(ctx, prompt, negative, model, req.APIKey)
	case ProviderAnthropic:
		text, err = c.callAnthropic(ctx, prompt, negative, model, req.APIKey)
	case ProviderGemini:
		text, err = c.callGemini(ctx, prompt, negative, model, req.APIKey)
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation,
			"unknown LLM provider %q. Supported: ollama, openai, anthropic, gemini", req.Provider)
	}
	if err != nil {
		return "", err
	}

	c.logger.Debug("llm call completed",
		"provider", req.Provider,
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_bytes", len(text))
	return strings.TrimSpace(text), nil
}

func (c *Client) resolveOllamaBase(override string) string {
	base := strings.TrimSpace(override)
	if base == "" {
		base = strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL"))
	}
	if base == "" {
		base = c.bases[ProviderOllama]
	}
	return strings.TrimRight(base, "/")
}

func resolveAPIKey(p Provider, override string) (string, error) {
	if key := strings.TrimSpace(override); key != "" {
		return key, nil
	}
	envKeys := map[Provider]string{
		ProviderOpenAI:    "OPENAI_API_KEY",
		ProviderAnthropic: "ANTHROPIC_API_KEY",
		ProviderGemini:    "GEMINI_API_KEY",
	}
	envKey := envKeys[p]
	if key := strings.TrimSpace(os.Getenv(envKey)); key != "" {
		return key, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation,
		"no API key for %s: set %s in the environment or pass api_key", p, envKey)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(prompt, negative string) []chatMessage {
	var messages []chatMessage
	if negative != "" {
		messages = append(messages, chatMessage{Role: "system", Content: negativePrefix + negative})
	}
	return append(messages, chatMessage{Role: "user", Content: prompt})
}

func (c *Client) callOpenAI(ctx context.Context, prompt, negative, model, apiKey string) (string, error) {
	key, err := resolveAPIKey(ProviderOpenAI, apiKey)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"model":      model,
		"messages":   chatMessages(prompt, negative),
		"max_tokens": maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + key}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "OpenAI", c.bases[ProviderOpenAI]+"/chat/completions", headers, payload, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeUpstream, "OpenAI returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) callAnthropic(ctx context.Context, prompt, negative, model, apiKey string) (string, error) {
	key, err := resolveAPIKey(ProviderAnthropic, apiKey)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   []chatMessage{{Role: "user", Content: prompt}},
	}
	if negative != "" {
		payload["system"] = negativePrefix + negative
	}
	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": "2023-06-01",
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.postJSON(ctx, "Anthropic", c.bases[ProviderAnthropic]+"/v1/messages", headers, payload, &parsed); err != nil {
		return "", err
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", schema.NewError(schema.ErrCodeUpstream, "Anthropic returned no text content")
}

func (c *Client) callGemini(ctx context.Context, prompt, negative, model, apiKey string) (string, error) {
	key, err := resolveAPIKey(ProviderGemini, apiKey)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{"maxOutputTokens": maxTokens},
	}
	if negative != "" {
		payload["systemInstruction"] = map[string]any{
			"role":  "system",
			"parts": []map[string]string{{"text": negativePrefix + negative}},
		}
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.bases[ProviderGemini], model, url.QueryEscape(key))

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := c.postJSON(ctx, "Gemini", endpoint, nil, payload, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 {
		return "", schema.NewError(schema.ErrCodeUpstream, "Gemini returned no candidates")
	}
	parts := parsed.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", schema.NewError(schema.ErrCodeUpstream, "Gemini returned no text in content")
	}
	return parts[0].Text, nil
}

func (c *Client) callOllama(ctx context.Context, prompt, negative, model, baseURL string) (string, error) {
	payload := map[string]any{
		"model":    model,
		"messages": chatMessages(prompt, negative),
		"stream":   false,
	}

	var parsed struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.postJSON(ctx, "Ollama", baseURL+"/api/chat", nil, payload, &parsed); err != nil {
		return "", err
	}
	if parsed.Message == nil {
		return "", schema.NewError(schema.ErrCodeUpstream, "Ollama returned no message")
	}
	return parsed.Message.Content, nil
}

// postJSON sends the payload and decodes the response into out.
// Non-2xx responses become UPSTREAM_ERROR with a truncated body.
func (c *Client) postJSON(ctx context.Context, label, endpoint string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "marshal %s request: %s", label, err.Error()).WithCause(err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", endpoint, body)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "build %s request: %s", label, err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeUpstream, "%s request failed: %v", label, err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return schema.NewErrorf(schema.ErrCodeUpstream,
			"%s HTTP %d: %s", label, resp.StatusCode, strings.TrimSpace(string(raw))).
			WithDetails(map[string]any{"status": resp.StatusCode, "provider": strings.ToLower(label)})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeUpstream, "read %s response: %v", label, err).WithCause(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeUpstream, "%s returned invalid JSON: %v", label, err).WithCause(err)
	}
	return nil
}

// ListOllamaModels returns the model tags an Ollama instance reports.
// An empty baseURL falls back to OLLAMA_BASE_URL, then the default
// local endpoint. Names come from either the "model" or "name" field,
// matching both old and new Ollama releases.
func (c *Client) ListOllamaModels(ctx context.Context, baseURL string) ([]string, error) {
	base := c.resolveOllamaBase(baseURL)

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", base+"/api/tags", nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "build Ollama request: %s", err.Error()).WithCause(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "Ollama request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "Ollama returned %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var parsed struct {
		Models []struct {
			Model string `json:"model"`
			Name  string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "Ollama returned invalid JSON: %v", err).WithCause(err)
	}

	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		switch {
		case m.Model != "":
			models = append(models, m.Model)
		case m.Name != "":
			models = append(models, m.Name)
		}
	}
	return models, nil
}
