package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-profiles/core"
)

type MutatingService interface {
	AddProfiles(ctx context.Context, req core.AddProfilesRequest) (core.AddProfilesResult, error)
	RemoveProfiles(ctx context.Context, req core.RemoveProfilesRequest) (core.RemoveProfilesResult, error)
	AddStaticProfile(ctx context.Context, credentialsID string, credentials core.Credentials, addressID string, details *core.AddressDetails) (core.Profile, error)
	AddDynamicProfile(ctx context.Context, credentialsID string, credentials core.Credentials, addressID string, details *core.AddressDetails) (core.Profile, error)
	GetClient(ctx context.Context, req core.GetClientRequest) (core.GetClientResult, error)
	DisposeClient(ctx context.Context, req core.DisposeClientRequest) (bool, error)
	RefreshCredentials(ctx context.Context, profileID string) (core.Profile, error)
}

type AddProfilesCommand struct {
	service MutatingService
}

func NewAddProfilesCommand(service MutatingService) *AddProfilesCommand {
	return &AddProfilesCommand{service: service}
}

func (c *AddProfilesCommand) Execute(ctx context.Context, msg AddProfilesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.AddProfiles(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveProfilesCommand struct {
	service MutatingService
}

func NewRemoveProfilesCommand(service MutatingService) *RemoveProfilesCommand {
	return &RemoveProfilesCommand{service: service}
}

func (c *RemoveProfilesCommand) Execute(ctx context.Context, msg RemoveProfilesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.RemoveProfiles(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AddStaticProfileCommand struct {
	service MutatingService
}

func NewAddStaticProfileCommand(service MutatingService) *AddStaticProfileCommand {
	return &AddStaticProfileCommand{service: service}
}

func (c *AddStaticProfileCommand) Execute(ctx context.Context, msg AddStaticProfileMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.AddStaticProfile(ctx, msg.CredentialsID, msg.Credentials, msg.AddressID, msg.AddressDetails)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AddDynamicProfileCommand struct {
	service MutatingService
}

func NewAddDynamicProfileCommand(service MutatingService) *AddDynamicProfileCommand {
	return &AddDynamicProfileCommand{service: service}
}

func (c *AddDynamicProfileCommand) Execute(ctx context.Context, msg AddDynamicProfileMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.AddDynamicProfile(ctx, msg.CredentialsID, msg.Credentials, msg.AddressID, msg.AddressDetails)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AcquireClientCommand struct {
	service MutatingService
}

func NewAcquireClientCommand(service MutatingService) *AcquireClientCommand {
	return &AcquireClientCommand{service: service}
}

func (c *AcquireClientCommand) Execute(ctx context.Context, msg AcquireClientMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: client service is required")
	}
	out, err := c.service.GetClient(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReleaseClientCommand struct {
	service MutatingService
}

func NewReleaseClientCommand(service MutatingService) *ReleaseClientCommand {
	return &ReleaseClientCommand{service: service}
}

func (c *ReleaseClientCommand) Execute(ctx context.Context, msg ReleaseClientMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: client service is required")
	}
	out, err := c.service.DisposeClient(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCredentialsCommand struct {
	service MutatingService
}

func NewRefreshCredentialsCommand(service MutatingService) *RefreshCredentialsCommand {
	return &RefreshCredentialsCommand{service: service}
}

func (c *RefreshCredentialsCommand) Execute(ctx context.Context, msg RefreshCredentialsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	out, err := c.service.RefreshCredentials(ctx, msg.ProfileID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
