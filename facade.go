package profiles

import (
	"fmt"

	profilescommand "github.com/goliatone/go-profiles/command"
	profilesquery "github.com/goliatone/go-profiles/query"
)

type CommandQueryService interface {
	profilescommand.MutatingService
	profilesquery.ProfileReader
	profilesquery.InstanceReader
	profilesquery.StorageInfoReader
}

type Commands struct {
	AddProfiles        *profilescommand.AddProfilesCommand
	RemoveProfiles     *profilescommand.RemoveProfilesCommand
	AddStaticProfile   *profilescommand.AddStaticProfileCommand
	AddDynamicProfile  *profilescommand.AddDynamicProfileCommand
	AcquireClient      *profilescommand.AcquireClientCommand
	ReleaseClient      *profilescommand.ReleaseClientCommand
	RefreshCredentials *profilescommand.RefreshCredentialsCommand
}

type Queries struct {
	GetProfile               *profilesquery.GetProfileQuery
	ListProfiles             *profilesquery.ListProfilesQuery
	ListProfilesByCredential *profilesquery.ListProfilesByCredentialQuery
	ListActiveClients        *profilesquery.ListActiveClientsQuery
	GetStorageInfo           *profilesquery.GetStorageInfoQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("profiles: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		AddProfiles:        profilescommand.NewAddProfilesCommand(service),
		RemoveProfiles:     profilescommand.NewRemoveProfilesCommand(service),
		AddStaticProfile:   profilescommand.NewAddStaticProfileCommand(service),
		AddDynamicProfile:  profilescommand.NewAddDynamicProfileCommand(service),
		AcquireClient:      profilescommand.NewAcquireClientCommand(service),
		ReleaseClient:      profilescommand.NewReleaseClientCommand(service),
		RefreshCredentials: profilescommand.NewRefreshCredentialsCommand(service),
	}
	facade.queries = Queries{
		GetProfile:               profilesquery.NewGetProfileQuery(service),
		ListProfiles:             profilesquery.NewListProfilesQuery(service),
		ListProfilesByCredential: profilesquery.NewListProfilesByCredentialQuery(service),
		ListActiveClients:        profilesquery.NewListActiveClientsQuery(service),
		GetStorageInfo:           profilesquery.NewGetStorageInfoQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
