package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcrew/config"
	"github.com/BaSui01/agentcrew/internal/cache"
	"github.com/BaSui01/agentcrew/llm/tools"
)

// Location is a geocoded place.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

// ErrLocationNotFound is returned when the geocoder has no match.
var ErrLocationNotFound = errors.New("location not found")

// GeocodingPlugin resolves place names to coordinates via geocode.maps.co.
type GeocodingPlugin struct {
	cfg    config.GeocodingConfig
	fetch  *fetcher
	cache  *cache.Manager
	logger *zap.Logger
}

// NewGeocodingPlugin creates the geocoding plugin; c may be nil.
func NewGeocodingPlugin(cfg config.GeocodingConfig, f *fetcher, c *cache.Manager, logger *zap.Logger) *GeocodingPlugin {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://geocode.maps.co"
	}
	return &GeocodingPlugin{
		cfg:    cfg,
		fetch:  f,
		cache:  c,
		logger: logger.With(zap.String("plugin", "geocoding")),
	}
}

func (p *GeocodingPlugin) Name() string { return "geocoding" }

type locationArgs struct {
	Location string `json:"location"`
}

func (p *GeocodingPlugin) Register(r tools.ToolRegistry) error {
	return register(r, function{
		name:        "get_location",
		description: "Get the latitude and longitude of a location (city, address, landmark).",
		params: tools.ObjectSchema(map[string]tools.Property{
			"location": {Type: "string", Description: "The location name"},
		}, "location"),
		fn: p.getLocation,
	})
}

func (p *GeocodingPlugin) getLocation(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var a locationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Location) == "" {
		return nil, fmt.Errorf("location is required")
	}

	loc, err := p.Lookup(ctx, a.Location)
	if errors.Is(err, ErrLocationNotFound) {
		return text(fmt.Sprintf("Could not find location: %s", a.Location))
	}
	if err != nil {
		p.logger.Warn("geocoding failed", zap.String("location", a.Location), zap.Error(err))
		return text(fmt.Sprintf("Error getting location: %s", err))
	}
	return json.Marshal(loc)
}

type geocodeHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Lookup returns the best match for location, consulting the cache first.
func (p *GeocodingPlugin) Lookup(ctx context.Context, location string) (*Location, error) {
	key := "geo:" + strings.ToLower(strings.TrimSpace(location))

	if p.cache != nil {
		var cached Location
		err := p.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !cache.IsCacheMiss(err) {
			p.logger.Debug("geocoding cache unavailable", zap.Error(err))
		}
	}

	q := url.Values{}
	q.Set("q", location)
	if p.cfg.APIKey != "" {
		q.Set("api_key", p.cfg.APIKey)
	}
	var hits []geocodeHit
	if err := p.fetch.getJSON(ctx, strings.TrimRight(p.cfg.BaseURL, "/")+"/search?"+q.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrLocationNotFound
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude %q: %w", hits[0].Lon, err)
	}
	loc := &Location{Latitude: lat, Longitude: lon, Name: hits[0].DisplayName}

	if p.cache != nil {
		ttl := p.cfg.CacheTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if err := p.cache.SetJSON(ctx, key, loc, ttl); err != nil {
			p.logger.Debug("geocoding cache write failed", zap.Error(err))
		}
	}
	return loc, nil
}
