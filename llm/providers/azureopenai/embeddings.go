package azureopenai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/providers"
)

type embedRequest struct {
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates embeddings with the embedding deployment (or req.Model).
func (p *Provider) Embed(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	if req == nil || len(req.Input) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "input is required",
			HTTPStatus: http.StatusBadRequest, Provider: providerName,
		}
	}
	deployment := req.Model
	if deployment == "" {
		deployment = p.cfg.EmbeddingDeployment
	}
	if deployment == "" {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "embedding deployment is not configured",
			HTTPStatus: http.StatusBadRequest, Provider: providerName,
		}
	}

	resp, err := p.post(ctx, p.deploymentURL(deployment, "embeddings"), embedRequest{Input: req.Input})
	if err != nil {
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, providers.MalformedError(fmt.Sprintf("decode embeddings: %v", err), providerName)
	}
	if len(er.Data) != len(req.Input) {
		return nil, providers.MalformedError(
			fmt.Sprintf("expected %d embeddings, got %d", len(req.Input), len(er.Data)), providerName)
	}

	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })
	out := &llm.EmbeddingResponse{
		Model:      er.Model,
		Embeddings: make([][]float64, 0, len(er.Data)),
		Usage: llm.ChatUsage{
			PromptTokens: er.Usage.PromptTokens,
			TotalTokens:  er.Usage.TotalTokens,
		},
	}
	for _, d := range er.Data {
		out.Embeddings = append(out.Embeddings, d.Embedding)
	}
	return out, nil
}
