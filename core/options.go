package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type factoryBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	storage           Storage
	refreshEndpoint   RefreshEndpoint
	mapperRegistry    *MapperRegistry
	directory         AddressDirectory
	clientConstructor ClientConstructor
	resolutionCache   repositorycache.CacheService
	clock             func() time.Time
}

type Option func(*factoryBuilder)

func WithLogger(logger Logger) Option {
	return func(b *factoryBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *factoryBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *factoryBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *factoryBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *factoryBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *factoryBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *factoryBuilder) {
		b.optionsResolver = resolver
	}
}

// WithStorage sets the default storage bound during Init when the caller
// passes none.
func WithStorage(storage Storage) Option {
	return func(b *factoryBuilder) {
		b.storage = storage
	}
}

func WithRefreshEndpoint(endpoint RefreshEndpoint) Option {
	return func(b *factoryBuilder) {
		b.refreshEndpoint = endpoint
	}
}

func WithMapperRegistry(registry *MapperRegistry) Option {
	return func(b *factoryBuilder) {
		b.mapperRegistry = registry
	}
}

func WithAddressDirectory(directory AddressDirectory) Option {
	return func(b *factoryBuilder) {
		b.directory = directory
	}
}

func WithClientConstructor(constructor ClientConstructor) Option {
	return func(b *factoryBuilder) {
		b.clientConstructor = constructor
	}
}

func WithResolutionCache(cache repositorycache.CacheService) Option {
	return func(b *factoryBuilder) {
		b.resolutionCache = cache
	}
}

// WithClock overrides the time source; tests use it to pin expiry math.
func WithClock(clock func() time.Time) Option {
	return func(b *factoryBuilder) {
		b.clock = clock
	}
}

func defaultFactoryBuilder(runtime Config) factoryBuilder {
	loggerProvider, logger := glog.Resolve("profiles", nil, nil)
	return factoryBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return profileErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.Namespace) != "" {
		layer["namespace"] = cfg.Namespace
	}
	if includeZero || strings.TrimSpace(cfg.OwnerID) != "" {
		layer["owner_id"] = cfg.OwnerID
	}
	if includeZero || cfg.RefreshBuffer > 0 {
		layer["refresh_buffer"] = cfg.RefreshBuffer
	}
	if includeZero || cfg.RefreshTimeout > 0 {
		layer["refresh_timeout"] = cfg.RefreshTimeout
	}
	if includeZero || cfg.ProbeTimeout > 0 {
		layer["probe_timeout"] = cfg.ProbeTimeout
	}
	if includeZero || cfg.AccessTrackInterval > 0 {
		layer["access_track_interval"] = cfg.AccessTrackInterval
	}
	if includeZero || cfg.ResolutionCache.TTL > 0 {
		layer["resolution_cache"] = map[string]any{
			"ttl": cfg.ResolutionCache.TTL,
		}
	}
	return layer
}
