package core

import (
	"fmt"
	"strings"
	"time"
)

type ResolutionCacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName         string                `koanf:"service_name" mapstructure:"service_name"`
	Namespace           string                `koanf:"namespace" mapstructure:"namespace"`
	OwnerID             string                `koanf:"owner_id" mapstructure:"owner_id"`
	RefreshBuffer       time.Duration         `koanf:"refresh_buffer" mapstructure:"refresh_buffer"`
	RefreshTimeout      time.Duration         `koanf:"refresh_timeout" mapstructure:"refresh_timeout"`
	ProbeTimeout        time.Duration         `koanf:"probe_timeout" mapstructure:"probe_timeout"`
	AccessTrackInterval time.Duration         `koanf:"access_track_interval" mapstructure:"access_track_interval"`
	ResolutionCache     ResolutionCacheConfig `koanf:"resolution_cache" mapstructure:"resolution_cache"`
}

const (
	// DefaultRefreshBuffer is the lead time before token expiry at which
	// a proactive refresh fires.
	DefaultRefreshBuffer = 5 * time.Minute

	DefaultRefreshTimeout      = 30 * time.Second
	DefaultProbeTimeout        = 15 * time.Second
	DefaultAccessTrackInterval = 30 * time.Second
	DefaultResolutionCacheTTL  = 5 * time.Minute
)

func DefaultConfig() Config {
	return Config{
		ServiceName:         "profiles",
		Namespace:           "profiles",
		OwnerID:             "default",
		RefreshBuffer:       DefaultRefreshBuffer,
		RefreshTimeout:      DefaultRefreshTimeout,
		ProbeTimeout:        DefaultProbeTimeout,
		AccessTrackInterval: DefaultAccessTrackInterval,
		ResolutionCache: ResolutionCacheConfig{
			TTL: DefaultResolutionCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return fmt.Errorf("core: namespace is required")
	}
	if c.RefreshBuffer < 0 {
		return fmt.Errorf("core: refresh_buffer must not be negative")
	}
	return nil
}
