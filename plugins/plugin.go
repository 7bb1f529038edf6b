package plugins

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/internal/cache"
	"github.com/BaSui01/agentcrew/internal/tlsutil"
	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/llm/retry"
	"github.com/BaSui01/agentcrew/llm/tools"
)

// Plugin groups related functions and registers them as tools.
type Plugin interface {
	Name() string
	Register(r tools.ToolRegistry) error
}

// Options carries the collaborators shared by the built-in plugins.
type Options struct {
	Config config.PluginsConfig

	// Cache stores geocoding results; nil disables caching
	Cache *cache.Manager

	// Embedder and EmbeddingDeployment back handbook search
	Embedder            llm.EmbeddingProvider
	EmbeddingDeployment string

	// Images backs generate_image; nil skips the image plugin
	Images llm.ImageProvider

	HTTPClient *http.Client
	// Retry overrides DefaultRetryPolicy for upstream HTTP calls
	Retry      *retry.RetryPolicy
	Clock      func() time.Time
	Logger     *zap.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.HTTPClient == nil {
		timeout := o.Config.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		o.HTTPClient = tlsutil.SecureHTTPClient(timeout)
	}
}

// Default builds the plugin set the chat session exposes. Handbook search is
// included only when an AI Search endpoint and an embedder are configured.
func Default(opts Options) []Plugin {
	opts.defaults()
	fetch := newFetcher(opts.HTTPClient, opts.Retry, opts.Logger)

	timePlugin := NewTimePlugin(opts.Clock)
	geo := NewGeocodingPlugin(opts.Config.Geocoding, fetch, opts.Cache, opts.Logger)
	weather := NewWeatherPlugin(opts.Config.Weather, fetch, opts.Logger)

	out := []Plugin{
		timePlugin,
		geo,
		weather,
		NewForecastPlugin(timePlugin, geo, weather),
	}
	if opts.Config.Search.Endpoint != "" && opts.Embedder != nil {
		out = append(out, NewHandbookPlugin(opts.Config.Search, opts.Embedder, opts.EmbeddingDeployment, fetch, opts.Logger))
	}
	if opts.Images != nil {
		out = append(out, NewImagePlugin(opts.Config.Image, opts.Images, fetch, opts.Logger))
	}
	return out
}

// RegisterAll registers every plugin's functions in r.
func RegisterAll(r tools.ToolRegistry, plugins ...Plugin) error {
	for _, p := range plugins {
		if err := p.Register(r); err != nil {
			return fmt.Errorf("register plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// function is one tool exposed by a plugin.
type function struct {
	name        string
	description string
	params      json.RawMessage
	timeout     time.Duration
	fn          tools.ToolFunc
}

func register(r tools.ToolRegistry, fns ...function) error {
	for _, f := range fns {
		meta := tools.ToolMetadata{
			Schema: llm.ToolSchema{
				Name:        f.name,
				Description: f.description,
				Parameters:  f.params,
			},
			Timeout: f.timeout,
		}
		if err := r.Register(f.name, f.fn, meta); err != nil {
			return err
		}
	}
	return nil
}

// decodeArgs unmarshals tool arguments, treating an empty payload as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func text(s string) (json.RawMessage, error) {
	return tools.TextResult(s), nil
}
