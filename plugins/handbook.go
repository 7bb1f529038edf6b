package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/tools"
)

// HandbookPlugin runs hybrid (keyword + vector) queries against the employee
// handbook index in Azure AI Search.
type HandbookPlugin struct {
	cfg        config.SearchConfig
	embedder   llm.EmbeddingProvider
	deployment string
	fetch      *fetcher
	logger     *zap.Logger
}

// NewHandbookPlugin creates the handbook search plugin.
func NewHandbookPlugin(cfg config.SearchConfig, embedder llm.EmbeddingProvider, deployment string, f *fetcher, logger *zap.Logger) *HandbookPlugin {
	if cfg.Index == "" {
		cfg.Index = "employeehandbook"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-11-01"
	}
	if cfg.Top <= 0 {
		cfg.Top = 3
	}
	return &HandbookPlugin{
		cfg:        cfg,
		embedder:   embedder,
		deployment: deployment,
		fetch:      f,
		logger:     logger.With(zap.String("plugin", "handbook")),
	}
}

func (p *HandbookPlugin) Name() string { return "handbook" }

type handbookArgs struct {
	Query string `json:"query"`
	Top   int    `json:"top,omitempty"`
}

func (p *HandbookPlugin) Register(r tools.ToolRegistry) error {
	return register(r, function{
		name:        "query_handbook",
		description: "Searches the Contoso employee handbook for policies, benefits and procedures.",
		params: tools.ObjectSchema(map[string]tools.Property{
			"query": {Type: "string", Description: "The question or keywords to look up"},
			"top":   {Type: "integer", Description: "Number of passages to return", Default: p.cfg.Top},
		}, "query"),
		fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var a handbookArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			if strings.TrimSpace(a.Query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			return text(p.QueryText(ctx, a.Query, a.Top))
		},
	})
}

// Passage is one search hit.
type Passage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	PageNum int    `json:"page_num"`
	ChunkID string `json:"chunk_id"`
}

type searchRequest struct {
	Search        string        `json:"search"`
	VectorQueries []vectorQuery `json:"vectorQueries,omitempty"`
	Select        string        `json:"select"`
	Top           int           `json:"top"`
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float64 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type searchResponse struct {
	Value []Passage `json:"value"`
}

// Query embeds the query and runs a hybrid search returning up to top passages.
func (p *HandbookPlugin) Query(ctx context.Context, query string, top int) ([]Passage, error) {
	if top <= 0 {
		top = p.cfg.Top
	}

	emb, err := p.embedder.Embed(ctx, &llm.EmbeddingRequest{Input: []string{query}, Model: p.deployment})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(emb.Embeddings) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding")
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimRight(p.cfg.Endpoint, "/"), url.PathEscape(p.cfg.Index), url.QueryEscape(p.cfg.APIVersion))
	req := searchRequest{
		Search: query,
		VectorQueries: []vectorQuery{{
			Kind:   "vector",
			Vector: emb.Embeddings[0],
			K:      top,
			Fields: "contentVector",
		}},
		Select: "id,content,page_num,chunk_id",
		Top:    top,
	}

	var resp searchResponse
	if err := p.fetch.postJSON(ctx, endpoint, map[string]string{"api-key": p.cfg.APIKey}, req, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// QueryText formats search results for the model.
func (p *HandbookPlugin) QueryText(ctx context.Context, query string, top int) string {
	passages, err := p.Query(ctx, query, top)
	if err != nil {
		p.logger.Warn("handbook query failed", zap.String("query", query), zap.Error(err))
		return fmt.Sprintf("Error querying the Contoso Handbook: %s", err)
	}
	if len(passages) == 0 {
		return "No relevant information found in the Contoso Handbook."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found in the Contoso Handbook about '%s':\n\n", query)
	for i, ps := range passages {
		fmt.Fprintf(&b, "Result %d (Page %d):\n%s\n\n", i+1, ps.PageNum, ps.Content)
	}
	return b.String()
}
