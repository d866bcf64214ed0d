package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMapperName is the registry entry used when a profile omits its
// mapper name, and the fallback when a stored name is unknown.
const DefaultMapperName = "default"

// MapperRegistry resolves refresh mappers by name. Profiles persist only
// the name; the executable mapper never leaves the registry.
type MapperRegistry struct {
	mu      sync.RWMutex
	mappers map[string]RefreshMapper
}

// NewMapperRegistry returns a registry seeded with the built-in mappers:
// "default", "oauth2", and "bearer".
func NewMapperRegistry() *MapperRegistry {
	registry := &MapperRegistry{mappers: make(map[string]RefreshMapper)}
	registry.mappers[DefaultMapperName] = DefaultRefreshMapper
	registry.mappers["oauth2"] = OAuth2RefreshMapper
	registry.mappers["bearer"] = BearerRefreshMapper
	return registry
}

func (r *MapperRegistry) Register(name string, mapper RefreshMapper) error {
	if mapper == nil {
		return fmt.Errorf("core: refresh mapper is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("core: refresh mapper name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappers[name]; exists {
		return fmt.Errorf("core: refresh mapper already registered: %s", name)
	}
	r.mappers[name] = mapper
	return nil
}

func (r *MapperRegistry) Get(name string) (RefreshMapper, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	mapper, ok := r.mappers[name]
	r.mu.RUnlock()
	return mapper, ok
}

// Resolve returns the mapper for name, falling back to the default
// mapper when the name is unknown. The second return reports whether the
// requested name matched.
func (r *MapperRegistry) Resolve(name string) (RefreshMapper, bool) {
	if mapper, ok := r.Get(name); ok {
		return mapper, true
	}
	r.mu.RLock()
	fallback := r.mappers[DefaultMapperName]
	r.mu.RUnlock()
	return fallback, false
}

func (r *MapperRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.mappers))
	for name := range r.mappers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// DefaultRefreshMapper understands the common response shapes: a token
// under "token" or "access_token", expiry as RFC3339 ("expiry",
// "expires_at"), epoch seconds, or a relative "expires_in", and an
// optional replacement payload under "refresh_payload".
func DefaultRefreshMapper(body map[string]any) (MappedCredentials, error) {
	token := stringField(body, "token", "access_token")
	if token == "" {
		return MappedCredentials{}, fmt.Errorf("core: refresh response has no token")
	}
	expiry, err := expiryField(body)
	if err != nil {
		return MappedCredentials{}, err
	}
	return MappedCredentials{
		Token:       token,
		Expiry:      expiry,
		NextPayload: mapField(body, "refresh_payload"),
	}, nil
}

// OAuth2RefreshMapper reads the RFC 6749 token response shape and rolls
// the rotated refresh_token into the next payload.
func OAuth2RefreshMapper(body map[string]any) (MappedCredentials, error) {
	token := stringField(body, "access_token")
	if token == "" {
		return MappedCredentials{}, fmt.Errorf("core: oauth2 response has no access_token")
	}
	expiry, err := expiryField(body)
	if err != nil {
		return MappedCredentials{}, err
	}
	mapped := MappedCredentials{Token: token, Expiry: expiry}
	if rotated := stringField(body, "refresh_token"); rotated != "" {
		mapped.NextPayload = map[string]any{
			"grant_type":    "refresh_token",
			"refresh_token": rotated,
		}
	}
	return mapped, nil
}

// BearerRefreshMapper handles endpoints that return only a bearer token
// and an absolute expiry.
func BearerRefreshMapper(body map[string]any) (MappedCredentials, error) {
	token := stringField(body, "bearer", "token")
	if token == "" {
		return MappedCredentials{}, fmt.Errorf("core: bearer response has no token")
	}
	expiry, err := expiryField(body)
	if err != nil {
		return MappedCredentials{}, err
	}
	return MappedCredentials{Token: token, Expiry: expiry}, nil
}

func stringField(body map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := body[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func mapField(body map[string]any, key string) map[string]any {
	value, ok := body[key].(map[string]any)
	if !ok || len(value) == 0 {
		return nil
	}
	return copyAnyMap(value)
}

func expiryField(body map[string]any) (time.Time, error) {
	for _, key := range []string{"expiry", "expires_at"} {
		switch value := body[key].(type) {
		case string:
			parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
			if err != nil {
				return time.Time{}, fmt.Errorf("core: parse %s: %w", key, err)
			}
			return parsed.UTC(), nil
		case float64:
			return epochToTime(value), nil
		case int64:
			return time.Unix(value, 0).UTC(), nil
		}
	}
	if value, ok := numberField(body, "expires_in"); ok {
		return time.Now().UTC().Add(time.Duration(value) * time.Second), nil
	}
	return time.Time{}, fmt.Errorf("core: refresh response has no expiry")
}

func numberField(body map[string]any, key string) (int64, bool) {
	switch value := body[key].(type) {
	case float64:
		return int64(value), true
	case int64:
		return value, true
	case int:
		return int64(value), true
	}
	return 0, false
}

func epochToTime(value float64) time.Time {
	seconds := math.Trunc(value)
	return time.Unix(int64(seconds), 0).UTC()
}
