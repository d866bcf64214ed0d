package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-profiles/core"
)

const (
	TypeGetProfile               = "profiles.query.profile.get"
	TypeListProfiles             = "profiles.query.profiles.list"
	TypeListProfilesByCredential = "profiles.query.profiles.by_credential"
	TypeListActiveClients        = "profiles.query.clients.active"
	TypeGetStorageInfo           = "profiles.query.storage.info"
)

type GetProfileMessage struct {
	ProfileID string
}

func (GetProfileMessage) Type() string { return TypeGetProfile }

func (m GetProfileMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return fmt.Errorf("query: profile id is required")
	}
	return nil
}

type ListProfilesMessage struct {
	TypeFilter *core.ProfileType
}

func (ListProfilesMessage) Type() string { return TypeListProfiles }

func (m ListProfilesMessage) Validate() error {
	if m.TypeFilter != nil && !m.TypeFilter.Valid() {
		return queryInvalidInputError(fmt.Sprintf("query: unknown profile type %q", string(*m.TypeFilter)))
	}
	return nil
}

type ListProfilesByCredentialMessage struct {
	CredentialsID string
}

func (ListProfilesByCredentialMessage) Type() string { return TypeListProfilesByCredential }

func (m ListProfilesByCredentialMessage) Validate() error {
	if strings.TrimSpace(m.CredentialsID) == "" {
		return fmt.Errorf("query: credentials id is required")
	}
	return nil
}

type ListActiveClientsMessage struct{}

func (ListActiveClientsMessage) Type() string { return TypeListActiveClients }

func (ListActiveClientsMessage) Validate() error { return nil }

type GetStorageInfoMessage struct{}

func (GetStorageInfoMessage) Type() string { return TypeGetStorageInfo }

func (GetStorageInfoMessage) Validate() error { return nil }
