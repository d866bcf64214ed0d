package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// Factory composes the profile and instance managers behind a single
// initialization boundary and exposes the public client-lifecycle
// operations. Factories are plain values owned by the caller; multiple
// independent factories can coexist in one process.
type Factory struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	defaultStorage    Storage
	refreshEndpoint   RefreshEndpoint
	mapperRegistry    *MapperRegistry
	directory         AddressDirectory
	clientConstructor ClientConstructor
	resolutionCache   repositorycache.CacheService
	clock             func() time.Time

	profiles  *ProfileManager
	instances *InstanceManager

	stateMu     sync.Mutex
	storage     Storage
	initialized bool
}

// FactoryDependencies exposes the resolved collaborators, mostly for
// composition and tests.
type FactoryDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Storage           Storage
	RefreshEndpoint   RefreshEndpoint
	MapperRegistry    *MapperRegistry
	AddressDirectory  AddressDirectory
	ClientConstructor ClientConstructor
	ResolutionCache   repositorycache.CacheService
}

func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	builder := defaultFactoryBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("profiles", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("profiles"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.mapperRegistry == nil {
		builder.mapperRegistry = NewMapperRegistry()
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.refreshEndpoint == nil {
		builder.refreshEndpoint = NewHTTPRefreshEndpoint(WithRequestTimeout(finalConfig.RefreshTimeout))
	}
	if builder.resolutionCache == nil {
		cacheConfig := repositorycache.DefaultConfig()
		if finalConfig.ResolutionCache.TTL > 0 {
			cacheConfig.TTL = finalConfig.ResolutionCache.TTL
		}
		cacheService, cacheErr := repositorycache.NewCacheService(cacheConfig)
		if cacheErr != nil {
			return nil, mapBuildError(builder.errorMapper, cacheErr)
		}
		builder.resolutionCache = cacheService
	}

	factory := &Factory{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		defaultStorage:    builder.storage,
		refreshEndpoint:   builder.refreshEndpoint,
		mapperRegistry:    builder.mapperRegistry,
		directory:         builder.directory,
		clientConstructor: builder.clientConstructor,
		resolutionCache:   builder.resolutionCache,
		clock:             builder.clock,
	}
	factory.profiles = newProfileManager(factory)
	factory.instances = newInstanceManager(factory)
	return factory, nil
}

func Setup(cfg Config, opts ...Option) (*Factory, error) {
	return NewFactory(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (f *Factory) Config() Config {
	if f == nil {
		return Config{}
	}
	return f.config
}

func (f *Factory) Dependencies() FactoryDependencies {
	if f == nil {
		return FactoryDependencies{}
	}
	return FactoryDependencies{
		Logger:            f.logger,
		LoggerProvider:    f.loggerProvider,
		MetricsRecorder:   f.metricsRecorder,
		ErrorFactory:      f.errorFactory,
		ErrorMapper:       f.errorMapper,
		ConfigProvider:    f.configProvider,
		OptionsResolver:   f.optionsResolver,
		Storage:           f.Storage(),
		RefreshEndpoint:   f.refreshEndpoint,
		MapperRegistry:    f.mapperRegistry,
		AddressDirectory:  f.directory,
		ClientConstructor: f.clientConstructor,
		ResolutionCache:   f.resolutionCache,
	}
}

func (f *Factory) now() time.Time {
	if f == nil || f.clock == nil {
		return time.Now().UTC()
	}
	return f.clock()
}

func (f *Factory) mapError(err error) error {
	if err == nil {
		return nil
	}
	if f == nil || f.errorMapper == nil {
		return err
	}
	mapped := f.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// Storage returns the storage bound during Init, or nil before it.
func (f *Factory) Storage() Storage {
	if f == nil {
		return nil
	}
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.storage
}

// MapperRegistry exposes the refresh-mapper registry so callers can add
// their own named mappers before profiles reference them.
func (f *Factory) MapperRegistry() *MapperRegistry {
	if f == nil {
		return nil
	}
	return f.mapperRegistry
}

// Init binds storage and initializes the profile manager. A second call
// while already initialized is a no-op. When storage is nil, the
// default configured via WithStorage is used.
func (f *Factory) Init(ctx context.Context, storage Storage) (err error) {
	startedAt := f.now()
	defer func() {
		f.observeOperation(ctx, startedAt, "init", err, nil)
	}()

	f.stateMu.Lock()
	if f.initialized {
		f.stateMu.Unlock()
		return nil
	}
	if storage == nil {
		storage = f.defaultStorage
	}
	if storage == nil {
		f.stateMu.Unlock()
		err = ensureProfileErrorEnvelope(f.errorFactory(
			"no storage provided and no default configured",
			goerrors.CategoryConflict,
		).WithTextCode(ProfilesErrorStorageUnavailable))
		return err
	}
	f.stateMu.Unlock()

	if err = f.profiles.Init(ctx, storage); err != nil {
		return err
	}

	f.stateMu.Lock()
	f.storage = storage
	f.initialized = true
	f.stateMu.Unlock()
	return nil
}

func (f *Factory) requireInitialized() error {
	f.stateMu.Lock()
	ready := f.initialized
	f.stateMu.Unlock()
	if ready {
		return nil
	}
	wrapped := f.errorFactory("client factory is not initialized", goerrors.CategoryConflict).
		WithTextCode(ProfilesErrorNotInitialized)
	return ensureProfileErrorEnvelope(wrapped)
}

// AddProfiles creates every structurally valid input. Invalid items are
// skipped with a logged reason and counted in Skipped; the batch never
// aborts on a single bad item.
func (f *Factory) AddProfiles(ctx context.Context, req AddProfilesRequest) (result AddProfilesResult, err error) {
	startedAt := f.now()
	fields := map[string]any{"requested": len(req.Profiles)}
	defer func() {
		fields["created"] = len(result.Profiles)
		fields["skipped"] = result.Skipped
		f.observeOperation(ctx, startedAt, "add_profiles", err, fields)
	}()

	if err = f.requireInitialized(); err != nil {
		return AddProfilesResult{}, err
	}

	for index, input := range req.Profiles {
		profile, addErr := f.profiles.AddProfile(ctx, input)
		if addErr != nil {
			result.Skipped++
			f.logWarn(ctx, "profile input rejected", map[string]any{
				"index":          index,
				"credentials_id": input.CredentialsID,
				"address_id":     input.AddressID,
				"error":          addErr.Error(),
			})
			continue
		}
		result.Profiles = append(result.Profiles, profile)
	}
	return result, nil
}

// RemoveProfiles removes each profile, first attempting a non-forced
// disposal of any live instance bound to it. Disposal failure is
// tolerated; profile removal proceeds regardless.
func (f *Factory) RemoveProfiles(ctx context.Context, req RemoveProfilesRequest) (result RemoveProfilesResult, err error) {
	startedAt := f.now()
	fields := map[string]any{"requested": len(req.ProfileIDs)}
	defer func() {
		fields["removed"] = len(result.RemovedIDs)
		f.observeOperation(ctx, startedAt, "remove_profiles", err, fields)
	}()

	if err = f.requireInitialized(); err != nil {
		return RemoveProfilesResult{}, err
	}

	for _, profileID := range req.ProfileIDs {
		if instance, ok := f.instances.GetInstanceByProfile(ctx, profileID); ok {
			if _, disposeErr := f.instances.DisposeInstance(ctx, instance.ID, false); disposeErr != nil {
				f.logWarn(ctx, "instance disposal before profile removal failed", map[string]any{
					"profile_id":  profileID,
					"instance_id": instance.ID,
					"error":       disposeErr.Error(),
				})
			}
		}
		removed, removeErr := f.profiles.RemoveProfile(ctx, profileID)
		if removeErr != nil {
			f.logWarn(ctx, "profile removal failed", map[string]any{
				"profile_id": profileID,
				"error":      removeErr.Error(),
			})
			continue
		}
		if removed {
			result.RemovedIDs = append(result.RemovedIDs, profileID)
		}
	}
	return result, nil
}

// GetClient resolves a profile (by id, or by address through the
// resolution algorithm), validates its credentials with a single
// refresh attempt on failure, and returns the pooled instance.
func (f *Factory) GetClient(ctx context.Context, req GetClientRequest) (result GetClientResult, err error) {
	startedAt := f.now()
	fields := map[string]any{
		"profile_id": req.ProfileID,
		"address_id": req.AddressID,
	}
	defer func() {
		f.observeOperation(ctx, startedAt, "get_client", err, fields)
	}()

	if err = f.requireInitialized(); err != nil {
		return GetClientResult{}, err
	}

	profile, err := f.resolveTargetProfile(ctx, req)
	if err != nil {
		return GetClientResult{}, err
	}
	fields["profile_id"] = profile.ID

	valid, err := f.profiles.ValidateCredentials(ctx, profile.ID)
	if err != nil {
		return GetClientResult{}, err
	}
	if !valid {
		refreshed, refreshErr := f.profiles.RefreshCredentials(ctx, profile.ID)
		if refreshErr != nil {
			wrapped := goerrors.Wrap(refreshErr, goerrors.CategoryAuth,
				fmt.Sprintf("credentials for profile %q are invalid and could not be refreshed", profile.ID)).
				WithTextCode(ProfilesErrorCredentialExpired).
				WithMetadata(map[string]any{"profile_id": profile.ID})
			err = ensureProfileErrorEnvelope(wrapped)
			return GetClientResult{}, err
		}
		profile = refreshed
	} else if current, found, getErr := f.profiles.GetProfile(ctx, profile.ID); getErr == nil && found {
		// Pick up any proactive refresh the validation triggered.
		profile = current
	}

	instance, isNew, err := f.instances.CreateInstance(ctx, profile)
	if err != nil {
		return GetClientResult{}, err
	}
	fields["instance_id"] = instance.ID

	now := f.now()
	if _, updateErr := f.profiles.UpdateProfile(ctx, profile.ID, UpdateProfileInput{LastUsed: &now}); updateErr != nil {
		f.logWarn(ctx, "last-used update failed", map[string]any{
			"profile_id": profile.ID,
			"error":      updateErr.Error(),
		})
	}
	return GetClientResult{Instance: instance, IsNew: isNew}, nil
}

func (f *Factory) resolveTargetProfile(ctx context.Context, req GetClientRequest) (Profile, error) {
	profileID := strings.TrimSpace(req.ProfileID)
	addressID := strings.TrimSpace(req.AddressID)

	switch {
	case profileID != "":
		profile, found, err := f.profiles.GetProfile(ctx, profileID)
		if err != nil {
			return Profile{}, err
		}
		if !found {
			wrapped := f.errorFactory(
				fmt.Sprintf("profile %q not found", profileID),
				goerrors.CategoryNotFound,
			).WithTextCode(ProfilesErrorProfileNotFound)
			return Profile{}, ensureProfileErrorEnvelope(wrapped.WithMetadata(map[string]any{"profile_id": profileID}))
		}
		return profile, nil
	case addressID != "":
		resolution, err := f.profiles.FindProfileForAddress(ctx, addressID)
		if err != nil {
			return Profile{}, err
		}
		if resolution.Outcome == ProfileResolutionNotFound {
			wrapped := f.errorFactory(
				fmt.Sprintf("no profile grants access to address %q", addressID),
				goerrors.CategoryNotFound,
			).WithTextCode(ProfilesErrorAddressUnresolved)
			return Profile{}, ensureProfileErrorEnvelope(wrapped.WithMetadata(map[string]any{"address_id": addressID}))
		}
		return resolution.Profile, nil
	default:
		wrapped := f.errorFactory(
			"either profile id or address id is required",
			goerrors.CategoryBadInput,
		).WithTextCode(ProfilesErrorMissingIdentifier)
		return Profile{}, ensureProfileErrorEnvelope(wrapped)
	}
}

// DisposeClient tears down an instance by id. Typed errors pass through
// unchanged; anything else is wrapped with the request context.
func (f *Factory) DisposeClient(ctx context.Context, req DisposeClientRequest) (removed bool, err error) {
	startedAt := f.now()
	fields := map[string]any{
		"instance_id": req.InstanceID,
		"force":       req.Force,
	}
	defer func() {
		fields["removed"] = removed
		f.observeOperation(ctx, startedAt, "dispose_client", err, fields)
	}()

	if err = f.requireInitialized(); err != nil {
		return false, err
	}

	removed, err = f.instances.DisposeInstance(ctx, req.InstanceID, req.Force)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return false, err
		}
		wrapped := goerrors.Wrap(err, goerrors.CategoryOperation,
			fmt.Sprintf("instance disposal failed for %q", req.InstanceID)).
			WithTextCode(ProfilesErrorInternal).
			WithMetadata(map[string]any{"instance_id": req.InstanceID, "force": req.Force})
		err = ensureProfileErrorEnvelope(wrapped)
		return false, err
	}
	if !removed {
		wrapped := f.errorFactory(
			fmt.Sprintf("instance %q not found", req.InstanceID),
			goerrors.CategoryNotFound,
		).WithTextCode(ProfilesErrorInstanceNotFound)
		err = ensureProfileErrorEnvelope(wrapped.WithMetadata(map[string]any{"instance_id": req.InstanceID}))
		return false, err
	}
	return true, nil
}

func (f *Factory) ListProfiles(ctx context.Context, typeFilter *ProfileType) ([]Profile, error) {
	if err := f.requireInitialized(); err != nil {
		return nil, err
	}
	return f.profiles.ListProfiles(ctx, typeFilter)
}

func (f *Factory) GetProfile(ctx context.Context, id string) (Profile, bool, error) {
	if err := f.requireInitialized(); err != nil {
		return Profile{}, false, err
	}
	return f.profiles.GetProfile(ctx, id)
}

func (f *Factory) GetProfilesByCredentialID(ctx context.Context, credentialsID string) ([]Profile, error) {
	if err := f.requireInitialized(); err != nil {
		return nil, err
	}
	return f.profiles.GetProfilesByCredentialID(ctx, credentialsID)
}

func (f *Factory) ListActiveClients(ctx context.Context) ([]ManagedInstance, error) {
	if err := f.requireInitialized(); err != nil {
		return nil, err
	}
	return f.instances.ListInstances(ctx), nil
}

// RefreshCredentials triggers an on-demand refresh for a profile.
// Failures propagate, unlike the scheduled background path.
func (f *Factory) RefreshCredentials(ctx context.Context, profileID string) (profile Profile, err error) {
	startedAt := f.now()
	fields := map[string]any{"profile_id": profileID}
	defer func() {
		f.observeOperation(ctx, startedAt, "refresh_credentials", err, fields)
	}()

	if err = f.requireInitialized(); err != nil {
		return Profile{}, err
	}
	profile, err = f.profiles.RefreshCredentials(ctx, profileID)
	return profile, err
}

// AddStaticProfile creates a durable profile and re-fetches it by id as
// a defensive check against a persistence race.
func (f *Factory) AddStaticProfile(ctx context.Context, credentialsID string, credentials Credentials, addressID string, details *AddressDetails) (Profile, error) {
	return f.addTypedProfile(ctx, ProfileTypeStatic, credentialsID, credentials, addressID, details)
}

// AddDynamicProfile creates a memory-only profile with the same
// re-fetch check.
func (f *Factory) AddDynamicProfile(ctx context.Context, credentialsID string, credentials Credentials, addressID string, details *AddressDetails) (Profile, error) {
	return f.addTypedProfile(ctx, ProfileTypeDynamic, credentialsID, credentials, addressID, details)
}

func (f *Factory) addTypedProfile(ctx context.Context, profileType ProfileType, credentialsID string, credentials Credentials, addressID string, details *AddressDetails) (profile Profile, err error) {
	startedAt := f.now()
	fields := map[string]any{
		"profile_type":   string(profileType),
		"credentials_id": credentialsID,
		"address_id":     addressID,
	}
	defer func() {
		f.observeOperation(ctx, startedAt, "add_"+string(profileType)+"_profile", err, fields)
	}()

	if err = f.requireInitialized(); err != nil {
		return Profile{}, err
	}

	created, err := f.profiles.AddProfile(ctx, AddProfileInput{
		Type:           profileType,
		CredentialsID:  credentialsID,
		Credentials:    credentials,
		AddressID:      addressID,
		AddressDetails: details,
	})
	if err != nil {
		return Profile{}, err
	}
	fields["profile_id"] = created.ID

	fetched, found, err := f.profiles.GetProfile(ctx, created.ID)
	if err != nil {
		return Profile{}, err
	}
	if !found {
		wrapped := f.errorFactory(
			fmt.Sprintf("profile %q vanished immediately after creation", created.ID),
			goerrors.CategoryInternal,
		).WithTextCode(ProfilesErrorInternal)
		err = ensureProfileErrorEnvelope(wrapped.WithMetadata(map[string]any{"profile_id": created.ID}))
		return Profile{}, err
	}
	return fetched, nil
}

// GetStorageInfo reports the bound storage's capabilities, or an
// unavailable descriptor before Init.
func (f *Factory) GetStorageInfo(ctx context.Context) (StorageInfo, error) {
	storage := f.Storage()
	if storage == nil {
		return StorageInfo{Type: "none", IsAvailable: false}, nil
	}
	info, err := storage.Info(ctx)
	if err != nil {
		return StorageInfo{}, f.mapError(err)
	}
	return info, nil
}

// Dispose force-disposes every instance, cleans the profile manager up,
// and unbinds storage. Static profiles stay in storage and reappear on
// the next Init cycle.
func (f *Factory) Dispose(ctx context.Context) (err error) {
	startedAt := f.now()
	defer func() {
		f.observeOperation(ctx, startedAt, "dispose", err, nil)
	}()

	f.stateMu.Lock()
	if !f.initialized {
		f.stateMu.Unlock()
		return nil
	}
	f.initialized = false
	f.storage = nil
	f.stateMu.Unlock()

	if disposeErr := f.instances.Dispose(ctx); disposeErr != nil {
		f.logWarn(ctx, "instance disposal during factory teardown failed", map[string]any{
			"error": disposeErr.Error(),
		})
	}
	return f.profiles.Cleanup(ctx)
}
