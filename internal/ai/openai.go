package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

// openAIProvider talks to any OpenAI compatible endpoint, openrouter included.
type openAIProvider struct {
	name    string
	apiKey  string
	baseURL string
	headers map[string]string
	client  *http.Client
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float32        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	if p.apiKey == "" {
		return ErrUnavailable
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error) {
	reqBody := openAIChatRequest{
		Model:     model,
		Messages:  []openAIChatMsg{{Role: "user", Content: prompt}},
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		reqBody.Temperature = &t
	}
	var out openAIChatResponse
	if err := p.post(ctx, "/chat/completions", reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, texts []string, taskType string, dim int) ([][]float32, error) {
	_ = taskType
	var out openAIEmbedResponse
	if err := p.post(ctx, "/embeddings", openAIEmbedRequest{Model: model, Input: texts, Dimensions: dim}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", p.name, len(out.Data), len(texts))
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, item := range out.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func createOpenAIProvider(name, defaultBaseURL string, args interface{}) (*openAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	headers := map[string]string{}
	if cfg.HTTPReferer != "" {
		headers["HTTP-Referer"] = cfg.HTTPReferer
	}
	if cfg.XTitle != "" {
		headers["X-Title"] = cfg.XTitle
	}
	return &openAIProvider{
		name:    name,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		headers: headers,
		client:  http.DefaultClient,
	}, nil
}

func init() {
	Register("openai", func(args interface{}) (IProvider, error) {
		return createOpenAIProvider("openai", defaultOpenAIBaseURL, args)
	})
	RegisterEmbed("openai", func(args interface{}) (IEmbedProvider, error) {
		return createOpenAIProvider("openai", defaultOpenAIBaseURL, args)
	})
	Register("openrouter", func(args interface{}) (IProvider, error) {
		return createOpenAIProvider("openrouter", defaultOpenRouterBaseURL, args)
	})
}
