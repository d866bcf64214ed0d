package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-profiles/core"
)

const (
	TypeAddProfiles        = "profiles.command.profiles.add"
	TypeRemoveProfiles     = "profiles.command.profiles.remove"
	TypeAddStaticProfile   = "profiles.command.profile.add_static"
	TypeAddDynamicProfile  = "profiles.command.profile.add_dynamic"
	TypeAcquireClient      = "profiles.command.client.acquire"
	TypeReleaseClient      = "profiles.command.client.release"
	TypeRefreshCredentials = "profiles.command.credentials.refresh"
)

type AddProfilesMessage struct {
	Request core.AddProfilesRequest
}

func (AddProfilesMessage) Type() string { return TypeAddProfiles }

func (m AddProfilesMessage) Validate() error {
	if len(m.Request.Profiles) == 0 {
		return fmt.Errorf("command: at least one profile input is required")
	}
	return nil
}

type RemoveProfilesMessage struct {
	Request core.RemoveProfilesRequest
}

func (RemoveProfilesMessage) Type() string { return TypeRemoveProfiles }

func (m RemoveProfilesMessage) Validate() error {
	if len(m.Request.ProfileIDs) == 0 {
		return fmt.Errorf("command: at least one profile id is required")
	}
	return nil
}

type AddStaticProfileMessage struct {
	CredentialsID  string
	Credentials    core.Credentials
	AddressID      string
	AddressDetails *core.AddressDetails
}

func (AddStaticProfileMessage) Type() string { return TypeAddStaticProfile }

func (m AddStaticProfileMessage) Validate() error {
	return validateProfileInput(m.CredentialsID, m.Credentials, m.AddressID)
}

type AddDynamicProfileMessage struct {
	CredentialsID  string
	Credentials    core.Credentials
	AddressID      string
	AddressDetails *core.AddressDetails
}

func (AddDynamicProfileMessage) Type() string { return TypeAddDynamicProfile }

func (m AddDynamicProfileMessage) Validate() error {
	return validateProfileInput(m.CredentialsID, m.Credentials, m.AddressID)
}

type AcquireClientMessage struct {
	Request core.GetClientRequest
}

func (AcquireClientMessage) Type() string { return TypeAcquireClient }

func (m AcquireClientMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProfileID) == "" && strings.TrimSpace(m.Request.AddressID) == "" {
		return commandInvalidInputError("command: either profile id or address id is required")
	}
	return nil
}

type ReleaseClientMessage struct {
	Request core.DisposeClientRequest
}

func (ReleaseClientMessage) Type() string { return TypeReleaseClient }

func (m ReleaseClientMessage) Validate() error {
	if strings.TrimSpace(m.Request.InstanceID) == "" {
		return fmt.Errorf("command: instance id is required")
	}
	return nil
}

type RefreshCredentialsMessage struct {
	ProfileID string
}

func (RefreshCredentialsMessage) Type() string { return TypeRefreshCredentials }

func (m RefreshCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return fmt.Errorf("command: profile id is required")
	}
	return nil
}

func validateProfileInput(credentialsID string, credentials core.Credentials, addressID string) error {
	if strings.TrimSpace(credentialsID) == "" {
		return commandValidationError("credentials_id", "credentials id is required")
	}
	if err := credentials.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid credentials")
	}
	if strings.TrimSpace(addressID) == "" {
		return commandValidationError("address_id", "address id is required")
	}
	return nil
}
