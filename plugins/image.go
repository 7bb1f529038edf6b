package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/tools"
)

const (
	defaultImageSize = "1024x1024"
	imageFileName    = "generated_image.png"
)

var sizePattern = regexp.MustCompile(`^(\d+)x(\d+)$`)

// ImagePlugin generates an image, downloads it and saves it locally.
type ImagePlugin struct {
	cfg    config.ImageConfig
	images llm.ImageProvider
	fetch  *fetcher
	logger *zap.Logger
}

// NewImagePlugin creates the image generation plugin.
func NewImagePlugin(cfg config.ImageConfig, images llm.ImageProvider, f *fetcher, logger *zap.Logger) *ImagePlugin {
	if cfg.Dir == "" {
		cfg.Dir = "images"
	}
	if cfg.Size == "" {
		cfg.Size = defaultImageSize
	}
	return &ImagePlugin{
		cfg:    cfg,
		images: images,
		fetch:  f,
		logger: logger.With(zap.String("plugin", "image")),
	}
}

func (p *ImagePlugin) Name() string { return "image" }

type imageArgs struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

func (p *ImagePlugin) Register(r tools.ToolRegistry) error {
	return register(r, function{
		name:        "generate_image",
		description: "Generates an image based on the text prompt",
		params: tools.ObjectSchema(map[string]tools.Property{
			"prompt": {Type: "string", Description: "Text description of the image to generate"},
			"size":   {Type: "string", Description: "Size of the image (default: 1024x1024)", Default: defaultImageSize},
		}, "prompt"),
		timeout: 2 * time.Minute,
		fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var a imageArgs
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			if strings.TrimSpace(a.Prompt) == "" {
				return nil, fmt.Errorf("prompt is required")
			}
			return text(p.GenerateText(ctx, a.Prompt, a.Size))
		},
	})
}

// NormalizeSize returns size when it is WxH with positive sides, else 1024x1024.
func NormalizeSize(size string) string {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(size))
	if m == nil || strings.TrimLeft(m[1], "0") == "" || strings.TrimLeft(m[2], "0") == "" {
		return defaultImageSize
	}
	return m[0]
}

// Path is where the latest generated image is written.
func (p *ImagePlugin) Path() string {
	return filepath.Join(p.cfg.Dir, imageFileName)
}

// Generate creates the image and saves it, returning the remote URL.
func (p *ImagePlugin) Generate(ctx context.Context, prompt, size string) (string, error) {
	if size == "" {
		size = p.cfg.Size
	}
	resp, err := p.images.GenerateImage(ctx, &llm.ImageRequest{
		Prompt: prompt,
		N:      1,
		Size:   NormalizeSize(size),
	})
	if err != nil {
		return "", err
	}
	if len(resp.URLs) == 0 || resp.URLs[0] == "" {
		return "", fmt.Errorf("image service returned no URL")
	}
	imageURL := resp.URLs[0]

	data, err := p.fetch.do(ctx, http.MethodGet, imageURL, nil, nil)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(p.Path(), data, 0o644); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	p.logger.Info("image generated", zap.String("path", p.Path()), zap.Int("bytes", len(data)))
	return imageURL, nil
}

// GenerateText wraps Generate with the chat-facing messages.
func (p *ImagePlugin) GenerateText(ctx context.Context, prompt, size string) string {
	u, err := p.Generate(ctx, prompt, size)
	if err != nil {
		p.logger.Warn("image generation failed", zap.Error(err))
		return fmt.Sprintf("Error generating image: %s", err)
	}
	return fmt.Sprintf("Image generated successfully! URL: %s", u)
}
