package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Storage is the key/value contract the profile layer persists through.
// Implementations expose a durable namespace and a session-scoped
// namespace that does not survive a reopen.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, entries map[string][]byte) error
	DeleteMany(ctx context.Context, keys []string) (int, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context, prefix string) error

	SessionGet(ctx context.Context, key string) ([]byte, bool, error)
	SessionSet(ctx context.Context, key string, value []byte) error
	SessionDelete(ctx context.Context, key string) (bool, error)
	SessionHas(ctx context.Context, key string) (bool, error)
	SessionGetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SessionSetMany(ctx context.Context, entries map[string][]byte) error
	SessionDeleteMany(ctx context.Context, keys []string) (int, error)
	SessionList(ctx context.Context, prefix string) ([]string, error)
	SessionClear(ctx context.Context, prefix string) error

	Info(ctx context.Context) (StorageInfo, error)
}

type StorageInfo struct {
	Type         string
	IsAvailable  bool
	IsPersistent bool
	QuotaUsed    *int64
	QuotaTotal   *int64
}

// RefreshEndpoint exchanges a refresh payload for a raw response body.
// The body is handed to the profile's named mapper for interpretation.
type RefreshEndpoint interface {
	Call(ctx context.Context, refreshURL string, payload map[string]any) (map[string]any, error)
}

// MappedCredentials is the mapper-normalized result of a refresh call.
type MappedCredentials struct {
	Token       string
	Expiry      time.Time
	NextPayload map[string]any
}

// RefreshMapper translates a refresh-endpoint response body into
// normalized credentials. Mappers must be pure: no I/O, no state.
type RefreshMapper func(body map[string]any) (MappedCredentials, error)

// AccessibleAddress is one entry of a subscriber's reachable-address list.
type AccessibleAddress struct {
	ID   string
	Type string
	Name string
}

type SubscriberInfo struct {
	AccessibleAddresses []AccessibleAddress
}

type AddressInfo struct {
	ID          string
	Type        string
	Name        string
	DisplayName string
	Channels    int
}

// AddressDirectory answers access questions on behalf of a credential
// set: which addresses it can reach and what a given address looks like.
// Implementations typically spin up a short-lived API client per call.
type AddressDirectory interface {
	SubscriberInfo(ctx context.Context, cred Credentials) (SubscriberInfo, error)
	Address(ctx context.Context, cred Credentials, addressID string) (AddressInfo, error)
}

// Client is the minimal handle the instance pool needs from a
// constructed network client.
type Client interface {
	Disconnect(ctx context.Context) error
}

type ClientParams struct {
	Token    string
	Project  string
	Host     string
	Metadata map[string]any
}

// ClientConstructor builds the expensive network client an instance
// wraps. Construction may suspend on network I/O.
type ClientConstructor interface {
	Create(ctx context.Context, params ClientParams) (Client, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// AddProfileInput is the creation payload for both profile types.
type AddProfileInput struct {
	Type           ProfileType
	CredentialsID  string
	Credentials    Credentials
	AddressID      string
	AddressDetails *AddressDetails
}

// UpdateProfileInput carries partial updates; nil fields are left as-is.
type UpdateProfileInput struct {
	Credentials    *Credentials
	AddressID      *string
	AddressDetails *AddressDetails
	LastUsed       *time.Time
}

type ProfileResolutionKind string

const (
	ProfileResolutionDirect    ProfileResolutionKind = "direct"
	ProfileResolutionInherited ProfileResolutionKind = "inherited"
	ProfileResolutionNotFound  ProfileResolutionKind = "not_found"
)

type ProfileResolution struct {
	Outcome ProfileResolutionKind
	Profile Profile
	Parent  *Profile
	Reason  string
}

type AddProfilesRequest struct {
	Profiles []AddProfileInput
}

// AddProfilesResult reports the created profiles; Skipped counts inputs
// rejected by validation (each is logged individually, not itemized).
type AddProfilesResult struct {
	Profiles []Profile
	Skipped  int
}

type RemoveProfilesRequest struct {
	ProfileIDs []string
}

type RemoveProfilesResult struct {
	RemovedIDs []string
}

type GetClientRequest struct {
	ProfileID string
	AddressID string
}

type GetClientResult struct {
	Instance ManagedInstance
	IsNew    bool
}

type DisposeClientRequest struct {
	InstanceID string
	Force      bool
}
