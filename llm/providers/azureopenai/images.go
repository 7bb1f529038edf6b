package azureopenai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/providers"
)

type imageRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage calls the DALL-E deployment and returns image URLs.
func (p *Provider) GenerateImage(ctx context.Context, req *llm.ImageRequest) (*llm.ImageResponse, error) {
	if req == nil || req.Prompt == "" {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "prompt is required",
			HTTPStatus: http.StatusBadRequest, Provider: providerName,
		}
	}
	deployment := req.Model
	if deployment == "" {
		deployment = p.cfg.ImageDeployment
	}
	if deployment == "" {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "image deployment is not configured",
			HTTPStatus: http.StatusBadRequest, Provider: providerName,
		}
	}
	body := imageRequest{Prompt: req.Prompt, N: req.N, Size: req.Size}
	if body.N <= 0 {
		body.N = 1
	}
	if body.Size == "" {
		body.Size = "1024x1024"
	}

	resp, err := p.post(ctx, p.deploymentURL(deployment, "images/generations"), body)
	if err != nil {
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	var ir imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, providers.MalformedError(fmt.Sprintf("decode image response: %v", err), providerName)
	}
	if len(ir.Data) == 0 || ir.Data[0].URL == "" {
		return nil, providers.MalformedError("image response contained no url", providerName)
	}

	out := &llm.ImageResponse{RevisedPrompt: ir.Data[0].RevisedPrompt}
	for _, d := range ir.Data {
		if d.URL != "" {
			out.URLs = append(out.URLs, d.URL)
		}
	}
	return out, nil
}
