package azureopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/internal/tlsutil"
	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/providers"
)

const (
	providerName      = "azure-openai"
	defaultAPIVersion = "2024-06-01"
	cognitiveScope    = "https://cognitiveservices.azure.com/.default"
)

// Config holds the configuration for an Azure OpenAI resource.
type Config struct {
	// Endpoint is the resource URL, e.g. https://my-resource.openai.azure.com.
	Endpoint string

	// APIKey enables key authentication. When empty, Credential (or
	// DefaultAzureCredential) is used instead.
	APIKey string

	// APIVersion defaults to 2024-06-01.
	APIVersion string

	ChatDeployment      string
	EmbeddingDeployment string
	ImageDeployment     string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// Credential overrides DefaultAzureCredential for token authentication.
	Credential azcore.TokenCredential
}

// Provider talks to one Azure OpenAI resource.
type Provider struct {
	cfg        Config
	client     *http.Client
	credential azcore.TokenCredential
	logger     *zap.Logger
}

// New creates a provider. Without an API key it resolves an Azure AD credential.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "azure_openai")),
	}

	if cfg.APIKey == "" {
		cred := cfg.Credential
		if cred == nil {
			c, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("create azure credential: %w", err)
			}
			cred = c
		}
		p.credential = cred
		p.logger.Info("using Azure AD token authentication")
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

func (p *Provider) deploymentURL(deployment, operation string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		strings.TrimRight(p.cfg.Endpoint, "/"),
		url.PathEscape(deployment),
		operation,
		url.QueryEscape(p.cfg.APIVersion))
}

// authorize sets either the api-key header or a bearer token.
func (p *Provider) authorize(ctx context.Context, req *http.Request) error {
	if p.credential == nil {
		req.Header.Set("api-key", p.cfg.APIKey)
		return nil
	}
	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{cognitiveScope},
	})
	if err != nil {
		return &llm.Error{
			Code:       llm.ErrProviderUnavailable,
			Message:    fmt.Sprintf("get azure token: %v", err),
			HTTPStatus: http.StatusUnauthorized,
			Provider:   providerName,
		}
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}

// post sends a JSON body and returns the response when the status is below 400.
func (p *Provider) post(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := p.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &llm.Error{
				Code: llm.ErrUpstreamTimeout, Message: err.Error(),
				HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: providerName,
			}
		}
		return nil, providers.NetworkError(err, providerName)
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providerName)
	}
	return resp, nil
}

func (p *Provider) buildChatBody(req *llm.ChatRequest, stream bool) chatRequest {
	return chatRequest{
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		ToolChoice:  toolChoice(req.ToolChoice),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

// chatDeployment: 请求中的 Model 视为部署名覆盖。
func (p *Provider) chatDeployment(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.cfg.ChatDeployment
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "messages are required",
			HTTPStatus: http.StatusBadRequest, Provider: providerName,
		}
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	deployment := p.chatDeployment(req)
	start := time.Now()
	resp, err := p.post(ctx, p.deploymentURL(deployment, "chat/completions"), p.buildChatBody(req, false))
	if err != nil {
		p.logger.Warn("chat completion failed",
			zap.String("deployment", deployment),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, providers.MalformedError(fmt.Sprintf("decode response: %v", err), providerName)
	}
	if len(wire.Choices) == 0 {
		return nil, providers.MalformedError("response contained no choices", providerName)
	}
	// 输出被内容安全策略截断时没有可用内容
	if c := wire.Choices[0]; c.FinishReason == "content_filter" && c.Message.Content == "" && len(c.Message.ToolCalls) == 0 {
		cats := c.filteredCategories()
		sort.Strings(cats)
		return nil, &llm.Error{
			Code:       llm.ErrContentFiltered,
			Message:    fmt.Sprintf("completion blocked by content filter %v", cats),
			HTTPStatus: http.StatusBadRequest,
			Provider:   providerName,
		}
	}

	result := wire.toLLM()
	p.logger.Debug("chat completion",
		zap.String("deployment", deployment),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", result.Usage.TotalTokens))
	return result, nil
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "messages are required",
			HTTPStatus: http.StatusBadRequest, Provider: providerName,
		}
	}
	resp, err := p.post(ctx, p.deploymentURL(p.chatDeployment(req), "chat/completions"), p.buildChatBody(req, true))
	if err != nil {
		return nil, err
	}
	return StreamSSE(ctx, resp.Body, providerName), nil
}

// HealthCheck verifies the resource is reachable and the credentials are accepted.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/openai/models?api-version=%s",
		strings.TrimRight(p.cfg.Endpoint, "/"), url.QueryEscape(p.cfg.APIVersion))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := p.authorize(ctx, httpReq); err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: time.Since(start)}, err
	}

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", providerName, resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

var (
	_ llm.Provider          = (*Provider)(nil)
	_ llm.EmbeddingProvider = (*Provider)(nil)
	_ llm.ImageProvider     = (*Provider)(nil)
)
