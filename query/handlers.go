package query

import (
	"context"
	"fmt"

	"github.com/goliatone/go-profiles/core"
)

type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (core.Profile, bool, error)
	ListProfiles(ctx context.Context, typeFilter *core.ProfileType) ([]core.Profile, error)
	GetProfilesByCredentialID(ctx context.Context, credentialsID string) ([]core.Profile, error)
}

type InstanceReader interface {
	ListActiveClients(ctx context.Context) ([]core.ManagedInstance, error)
}

type StorageInfoReader interface {
	GetStorageInfo(ctx context.Context) (core.StorageInfo, error)
}

type GetProfileQuery struct {
	reader ProfileReader
}

func NewGetProfileQuery(reader ProfileReader) *GetProfileQuery {
	return &GetProfileQuery{reader: reader}
}

func (q *GetProfileQuery) Query(ctx context.Context, msg GetProfileMessage) (core.Profile, error) {
	if q == nil || q.reader == nil {
		return core.Profile{}, queryDependencyError("query: profile reader is required")
	}
	profile, found, err := q.reader.GetProfile(ctx, msg.ProfileID)
	if err != nil {
		return core.Profile{}, err
	}
	if !found {
		return core.Profile{}, queryNotFoundError(fmt.Sprintf("query: profile %q not found", msg.ProfileID))
	}
	return profile, nil
}

type ListProfilesQuery struct {
	reader ProfileReader
}

func NewListProfilesQuery(reader ProfileReader) *ListProfilesQuery {
	return &ListProfilesQuery{reader: reader}
}

func (q *ListProfilesQuery) Query(ctx context.Context, msg ListProfilesMessage) ([]core.Profile, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: profile reader is required")
	}
	return q.reader.ListProfiles(ctx, msg.TypeFilter)
}

type ListProfilesByCredentialQuery struct {
	reader ProfileReader
}

func NewListProfilesByCredentialQuery(reader ProfileReader) *ListProfilesByCredentialQuery {
	return &ListProfilesByCredentialQuery{reader: reader}
}

func (q *ListProfilesByCredentialQuery) Query(
	ctx context.Context,
	msg ListProfilesByCredentialMessage,
) ([]core.Profile, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: profile reader is required")
	}
	return q.reader.GetProfilesByCredentialID(ctx, msg.CredentialsID)
}

type ListActiveClientsQuery struct {
	reader InstanceReader
}

func NewListActiveClientsQuery(reader InstanceReader) *ListActiveClientsQuery {
	return &ListActiveClientsQuery{reader: reader}
}

func (q *ListActiveClientsQuery) Query(
	ctx context.Context,
	msg ListActiveClientsMessage,
) ([]core.ManagedInstance, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: instance reader is required")
	}
	return q.reader.ListActiveClients(ctx)
}

type GetStorageInfoQuery struct {
	reader StorageInfoReader
}

func NewGetStorageInfoQuery(reader StorageInfoReader) *GetStorageInfoQuery {
	return &GetStorageInfoQuery{reader: reader}
}

func (q *GetStorageInfoQuery) Query(ctx context.Context, msg GetStorageInfoMessage) (core.StorageInfo, error) {
	if q == nil || q.reader == nil {
		return core.StorageInfo{}, queryDependencyError("query: storage info reader is required")
	}
	return q.reader.GetStorageInfo(ctx)
}
