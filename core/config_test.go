package core

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.RefreshBuffer != DefaultRefreshBuffer {
		t.Fatalf("refresh buffer = %v", cfg.RefreshBuffer)
	}
	if cfg.ResolutionCache.TTL != DefaultResolutionCacheTTL {
		t.Fatalf("resolution cache ttl = %v", cfg.ResolutionCache.TTL)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults pass",
			mutate: func(*Config) {},
		},
		{
			name:    "blank service name",
			mutate:  func(c *Config) { c.ServiceName = " " },
			wantErr: true,
		},
		{
			name:    "blank namespace",
			mutate:  func(c *Config) { c.Namespace = "" },
			wantErr: true,
		},
		{
			name:    "negative refresh buffer",
			mutate:  func(c *Config) { c.RefreshBuffer = -time.Second },
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGoOptionsResolver_LayerPrecedence(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{RefreshBuffer: 2 * time.Minute, Namespace: "from-config"}
	runtime := Config{RefreshBuffer: 90 * time.Second}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.RefreshBuffer != 90*time.Second {
		t.Fatalf("runtime layer should win: %v", resolved.RefreshBuffer)
	}
	if resolved.Namespace != "from-config" {
		t.Fatalf("config layer should beat defaults: %q", resolved.Namespace)
	}
	if resolved.ProbeTimeout != DefaultProbeTimeout {
		t.Fatalf("unset fields should fall back to defaults: %v", resolved.ProbeTimeout)
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"namespace":      "tenant-a",
		"refresh_buffer": 3 * time.Minute,
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "tenant-a" {
		t.Fatalf("namespace = %q", cfg.Namespace)
	}
	if cfg.RefreshBuffer != 3*time.Minute {
		t.Fatalf("refresh buffer = %v", cfg.RefreshBuffer)
	}
	if cfg.ServiceName != "profiles" {
		t.Fatalf("defaults lost: %q", cfg.ServiceName)
	}
}
