package profiles

import "github.com/goliatone/go-profiles/core"

type Config = core.Config

type Option = core.Option

type Factory = core.Factory

type FactoryDependencies = core.FactoryDependencies
type Storage = core.Storage
type StorageInfo = core.StorageInfo
type RefreshEndpoint = core.RefreshEndpoint
type RefreshMapper = core.RefreshMapper
type MapperRegistry = core.MapperRegistry
type AddressDirectory = core.AddressDirectory
type Client = core.Client
type ClientParams = core.ClientParams
type ClientConstructor = core.ClientConstructor

type Profile = core.Profile
type ProfileType = core.ProfileType
type Credentials = core.Credentials
type AddressDetails = core.AddressDetails
type ManagedInstance = core.ManagedInstance

type AddProfileInput = core.AddProfileInput
type AddProfilesRequest = core.AddProfilesRequest
type AddProfilesResult = core.AddProfilesResult
type RemoveProfilesRequest = core.RemoveProfilesRequest
type RemoveProfilesResult = core.RemoveProfilesResult
type GetClientRequest = core.GetClientRequest
type GetClientResult = core.GetClientResult
type DisposeClientRequest = core.DisposeClientRequest

const (
	ProfileTypeStatic  = core.ProfileTypeStatic
	ProfileTypeDynamic = core.ProfileTypeDynamic
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithStorage           = core.WithStorage
	WithRefreshEndpoint   = core.WithRefreshEndpoint
	WithMapperRegistry    = core.WithMapperRegistry
	WithAddressDirectory  = core.WithAddressDirectory
	WithClientConstructor = core.WithClientConstructor
	WithResolutionCache   = core.WithResolutionCache
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	return core.NewFactory(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Factory, error) {
	return core.Setup(cfg, opts...)
}
