// Package cache manages Gemini cached-content handles: explicit context
// caching with a TTL, used to pin large shared prompts across chat turns.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/blockmind/fastgemini/pkg/models"
)

// DefaultTTL applies when a cache config does not set one.
const DefaultTTL = time.Hour

// ErrCacheNotFound reports a lookup for a display name with no live cache.
var ErrCacheNotFound = errors.New("cache not found")

// Config names a cached-content entry and how long it should live.
type Config struct {
	// CacheName is the display name used to locate the cache.
	CacheName string `json:"cache_name" yaml:"cache_name"`

	// TTL is the cache lifetime. Zero means DefaultTTL.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

func (c Config) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

// Manager drives the cached-content lifecycle over the Gemini caches API.
// Operations are single-shot; the gateway's retry policy does not apply here.
type Manager struct {
	client *genai.Client
	logger *slog.Logger
}

// NewManager builds a manager over an existing SDK client. A nil logger
// disables logging.
func NewManager(client *genai.Client, logger *slog.Logger) *Manager {
	return &Manager{client: client, logger: logger}
}

// CreateCache creates a cached-content entry holding the given messages under
// cfg.CacheName and returns its resource name (the handle requests reference).
func (m *Manager) CreateCache(ctx context.Context, model string, cfg Config, contents []models.Message, systemInstruction string) (string, error) {
	converted, err := models.ToContents(contents)
	if err != nil {
		return "", fmt.Errorf("cache: convert contents: %w", err)
	}
	create := &genai.CreateCachedContentConfig{
		DisplayName: cfg.CacheName,
		TTL:         cfg.ttl(),
		Contents:    converted,
	}
	if systemInstruction != "" {
		create.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	cached, err := m.client.Caches.Create(ctx, model, create)
	if err != nil {
		return "", fmt.Errorf("cache: create %q: %w", cfg.CacheName, err)
	}
	if m.logger != nil {
		m.logger.Info("cache created", "name", cached.Name, "display_name", cfg.CacheName, "ttl", cfg.ttl())
	}
	return cached.Name, nil
}

// GetCache finds a live cache by display name. Returns ErrCacheNotFound when
// no cache carries the name.
func (m *Manager) GetCache(ctx context.Context, displayName string) (*genai.CachedContent, error) {
	for cached, err := range m.client.Caches.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("cache: list: %w", err)
		}
		if cached.DisplayName == displayName {
			return cached, nil
		}
	}
	return nil, fmt.Errorf("cache: %q: %w", displayName, ErrCacheNotFound)
}

// ListCaches returns all live cached-content entries.
func (m *Manager) ListCaches(ctx context.Context) ([]*genai.CachedContent, error) {
	var out []*genai.CachedContent
	for cached, err := range m.client.Caches.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("cache: list: %w", err)
		}
		out = append(out, cached)
	}
	return out, nil
}

// DeleteCache removes the cache with the given display name. Deleting a
// missing cache returns ErrCacheNotFound.
func (m *Manager) DeleteCache(ctx context.Context, displayName string) error {
	cached, err := m.GetCache(ctx, displayName)
	if err != nil {
		return err
	}
	if _, err := m.client.Caches.Delete(ctx, cached.Name, nil); err != nil {
		return fmt.Errorf("cache: delete %q: %w", displayName, err)
	}
	if m.logger != nil {
		m.logger.Info("cache deleted", "name", cached.Name, "display_name", displayName)
	}
	return nil
}

// UpdateTTL refreshes the lifetime of an existing cache.
func (m *Manager) UpdateTTL(ctx context.Context, name string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	_, err := m.client.Caches.Update(ctx, name, &genai.UpdateCachedContentConfig{TTL: ttl})
	if err != nil {
		return fmt.Errorf("cache: update ttl of %q: %w", name, err)
	}
	return nil
}

// CreateOrUpdate returns the handle of the cache named by cfg, refreshing its
// TTL when it exists and creating it from the given contents when it does not.
func (m *Manager) CreateOrUpdate(ctx context.Context, model string, cfg Config, contents []models.Message, systemInstruction string) (string, error) {
	cached, err := m.GetCache(ctx, cfg.CacheName)
	if err == nil {
		if err := m.UpdateTTL(ctx, cached.Name, cfg.ttl()); err != nil {
			return "", err
		}
		return cached.Name, nil
	}
	if !errors.Is(err, ErrCacheNotFound) {
		return "", err
	}
	return m.CreateCache(ctx, model, cfg, contents, systemInstruction)
}

// ResolveHandle locates the cache named by cfg and refreshes its TTL,
// returning the resource handle a generate request can reference. This is the
// seam the turn builder uses; a missing cache surfaces as ErrCacheNotFound so
// the builder can fail the request as a configuration error.
func (m *Manager) ResolveHandle(ctx context.Context, cfg Config) (string, error) {
	cached, err := m.GetCache(ctx, cfg.CacheName)
	if err != nil {
		return "", err
	}
	if err := m.UpdateTTL(ctx, cached.Name, cfg.ttl()); err != nil {
		return "", err
	}
	return cached.Name, nil
}
