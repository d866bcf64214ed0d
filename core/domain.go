package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidProfileType   = errors.New("core: invalid profile type")
	ErrMissingCredentialsID = errors.New("core: credentials id is required")
	ErrMissingAuthToken     = errors.New("core: auth token is required")
	ErrMissingRefreshConfig = errors.New("core: refresh url, payload, and mapper are required")
	ErrMissingAddressID     = errors.New("core: address id is required")
)

type ProfileType string

const (
	ProfileTypeStatic  ProfileType = "static"
	ProfileTypeDynamic ProfileType = "dynamic"
)

func (t ProfileType) Valid() bool {
	return t == ProfileTypeStatic || t == ProfileTypeDynamic
}

// Credentials holds the token material and the refresh contract for a
// profile. RefreshMapper names an entry in the mapper registry; it is
// persisted as a plain string, never as executable code.
type Credentials struct {
	Token          string         `json:"token"`
	TokenExpiry    time.Time      `json:"token_expiry"`
	RefreshPayload map[string]any `json:"refresh_payload"`
	RefreshURL     string         `json:"refresh_url"`
	RefreshMapper  string         `json:"refresh_mapper"`
	Host           string         `json:"host,omitempty"`
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingAuthToken
	}
	if strings.TrimSpace(c.RefreshURL) == "" ||
		c.RefreshPayload == nil ||
		strings.TrimSpace(c.RefreshMapper) == "" {
		return ErrMissingRefreshConfig
	}
	return nil
}

type AddressDetails struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name,omitempty"`
	ChannelCount int    `json:"channel_count,omitempty"`
}

// Profile is an authentication identity bound to one remote address.
// Static profiles are persisted through the storage contract; dynamic
// profiles live only in memory and represent inherited access.
type Profile struct {
	ID             string          `json:"id"`
	Type           ProfileType     `json:"type"`
	CredentialsID  string          `json:"credentials_id"`
	Credentials    Credentials     `json:"credentials"`
	AddressID      string          `json:"address_id"`
	AddressDetails *AddressDetails `json:"address_details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastUsed       *time.Time      `json:"last_used,omitempty"`
}

// Validate checks structural completeness. It is used both on input and
// when loading persisted entries: stored profiles that fail validation
// are skipped by list operations rather than surfaced.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.CredentialsID) == "" {
		return ErrMissingCredentialsID
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProfileType, p.Type)
	}
	if err := p.Credentials.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.AddressID) == "" {
		return ErrMissingAddressID
	}
	return nil
}

func (p Profile) Clone() Profile {
	cloned := p
	cloned.Credentials.RefreshPayload = copyAnyMap(p.Credentials.RefreshPayload)
	if p.AddressDetails != nil {
		details := *p.AddressDetails
		cloned.AddressDetails = &details
	}
	if p.LastUsed != nil {
		used := p.LastUsed.UTC()
		cloned.LastUsed = &used
	}
	return cloned
}

// ManagedInstance is a live network client bound to exactly one profile.
// At most one live instance exists per profile id.
type ManagedInstance struct {
	ID             string
	ProfileID      string
	Client         Client
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	IsConnected    bool
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
