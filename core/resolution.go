package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/google/uuid"
)

const (
	resolutionCacheKeyPrefix = "go-profiles::resolution::v1"
	dynamicProfileIDPrefix   = "dyn-"
)

// resolutionCacheEntry is the cached shape of a resolution outcome. Only
// ids are cached; profiles are re-read on every hit so cached entries
// never serve stale credentials.
type resolutionCacheEntry struct {
	Outcome   ProfileResolutionKind `json:"outcome"`
	ProfileID string                `json:"profile_id,omitempty"`
	ParentID  string                `json:"parent_id,omitempty"`
	Reason    string                `json:"reason,omitempty"`
}

// ResolutionCacheKey returns the deterministic cache key contract for
// address resolution reads: go-profiles::resolution::v1::<address_id>
// with the address segment URL-path escaped.
func ResolutionCacheKey(addressID string) string {
	return resolutionCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(addressID))
}

// FindProfileForAddress resolves which profile grants access to
// addressID. Direct ownership wins; otherwise each profile's
// accessible-address list is probed in creation order and inherited
// access mints (or reuses) a dynamic profile. Probe failures are logged
// and the search continues with the next candidate.
func (m *ProfileManager) FindProfileForAddress(ctx context.Context, addressID string) (ProfileResolution, error) {
	if err := m.requireInitialized(); err != nil {
		return ProfileResolution{}, err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return ProfileResolution{}, m.f.mapError(ErrMissingAddressID)
	}

	cache := m.f.resolutionCache
	if cache == nil {
		return m.resolveAddress(ctx, addressID)
	}

	cacheKey := ResolutionCacheKey(addressID)
	entry, err := repositorycache.GetOrFetch(ctx, cache, cacheKey, func(ctx context.Context) (resolutionCacheEntry, error) {
		resolution, resolveErr := m.resolveAddress(ctx, addressID)
		if resolveErr != nil {
			return resolutionCacheEntry{}, resolveErr
		}
		cached := resolutionCacheEntry{
			Outcome:   resolution.Outcome,
			ProfileID: resolution.Profile.ID,
			Reason:    resolution.Reason,
		}
		if resolution.Parent != nil {
			cached.ParentID = resolution.Parent.ID
		}
		return cached, nil
	})
	if err != nil {
		return ProfileResolution{}, err
	}

	resolution, valid := m.rehydrateResolution(entry)
	if valid {
		return resolution, nil
	}
	// Cached profile has since been removed; drop the entry and resolve
	// against current state.
	if deleteErr := cache.Delete(ctx, cacheKey); deleteErr != nil {
		m.f.logWarn(ctx, "resolution cache invalidation failed", map[string]any{
			"address_id": addressID,
			"error":      deleteErr.Error(),
		})
	}
	return m.resolveAddress(ctx, addressID)
}

func (m *ProfileManager) rehydrateResolution(entry resolutionCacheEntry) (ProfileResolution, bool) {
	if entry.Outcome == ProfileResolutionNotFound {
		return ProfileResolution{Outcome: ProfileResolutionNotFound, Reason: entry.Reason}, true
	}
	m.mu.RLock()
	profile, found := m.lookupLocked(entry.ProfileID)
	parent, parentFound := m.lookupLocked(entry.ParentID)
	m.mu.RUnlock()
	if !found {
		return ProfileResolution{}, false
	}
	resolution := ProfileResolution{
		Outcome: entry.Outcome,
		Profile: profile.Clone(),
		Reason:  entry.Reason,
	}
	if entry.ParentID != "" {
		if !parentFound {
			return ProfileResolution{}, false
		}
		cloned := parent.Clone()
		resolution.Parent = &cloned
	}
	return resolution, true
}

func (m *ProfileManager) resolveAddress(ctx context.Context, addressID string) (ProfileResolution, error) {
	profiles, err := m.ListProfiles(ctx, nil)
	if err != nil {
		return ProfileResolution{}, err
	}

	for _, profile := range profiles {
		if profile.AddressID == addressID {
			return ProfileResolution{
				Outcome: ProfileResolutionDirect,
				Profile: profile,
			}, nil
		}
	}

	if m.f.directory == nil {
		return ProfileResolution{
			Outcome: ProfileResolutionNotFound,
			Reason:  "no profile owns the address and no directory is configured",
		}, nil
	}

	for _, profile := range profiles {
		accessible, probeErr := m.probeAccessibleAddresses(ctx, profile)
		if probeErr != nil {
			m.f.logWarn(ctx, "address access probe failed", map[string]any{
				"profile_id": profile.ID,
				"address_id": addressID,
				"error":      probeErr.Error(),
			})
			continue
		}
		if !containsAddress(accessible, addressID) {
			continue
		}

		if existing, ok := m.findDynamicProfile(profile.CredentialsID, addressID); ok {
			parent := profile
			return ProfileResolution{
				Outcome: ProfileResolutionInherited,
				Profile: existing,
				Parent:  &parent,
				Reason:  "reused existing dynamic profile",
			}, nil
		}

		minted, mintErr := m.CreateDynamicProfile(ctx, profile, addressID)
		if mintErr != nil {
			return ProfileResolution{}, mintErr
		}
		parent := profile
		return ProfileResolution{
			Outcome: ProfileResolutionInherited,
			Profile: minted,
			Parent:  &parent,
			Reason:  "minted dynamic profile from inherited access",
		}, nil
	}

	return ProfileResolution{
		Outcome: ProfileResolutionNotFound,
		Reason:  fmt.Sprintf("no profile grants access to address %q", addressID),
	}, nil
}

func (m *ProfileManager) probeAccessibleAddresses(ctx context.Context, profile Profile) ([]AccessibleAddress, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout())
	defer cancel()
	info, err := m.f.directory.SubscriberInfo(probeCtx, profile.Credentials)
	if err != nil {
		return nil, err
	}
	return info.AccessibleAddresses, nil
}

// CreateDynamicProfile mints a memory-only profile inheriting the
// parent's credential set, scoped to addressID. Address details are
// fetched best-effort; a lookup failure leaves them unset.
func (m *ProfileManager) CreateDynamicProfile(ctx context.Context, parent Profile, addressID string) (Profile, error) {
	if err := m.requireInitialized(); err != nil {
		return Profile{}, err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return Profile{}, m.f.mapError(ErrMissingAddressID)
	}

	now := m.f.now()
	profile := Profile{
		ID:            dynamicProfileIDPrefix + uuid.NewString(),
		Type:          ProfileTypeDynamic,
		CredentialsID: parent.CredentialsID,
		Credentials:   parent.Clone().Credentials,
		AddressID:     addressID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, m.f.mapError(err)
	}

	if m.f.directory != nil {
		detailCtx, cancel := context.WithTimeout(ctx, m.probeTimeout())
		info, detailErr := m.f.directory.Address(detailCtx, profile.Credentials, addressID)
		cancel()
		if detailErr != nil {
			m.f.logWarn(ctx, "address detail lookup failed", map[string]any{
				"profile_id": profile.ID,
				"address_id": addressID,
				"error":      detailErr.Error(),
			})
		} else {
			profile.AddressDetails = &AddressDetails{
				Type:         info.Type,
				Name:         info.Name,
				DisplayName:  info.DisplayName,
				ChannelCount: info.Channels,
			}
		}
	}

	m.mu.Lock()
	// Dedup under the lock: a concurrent resolver may have minted the
	// same derived access while the detail lookup was in flight.
	for _, existing := range m.dynamic {
		if existing.CredentialsID == profile.CredentialsID && existing.AddressID == addressID {
			m.mu.Unlock()
			return existing.Clone(), nil
		}
	}
	m.dynamic[profile.ID] = profile
	m.mu.Unlock()

	m.scheduleRefresh(ctx, profile)
	m.f.logInfo(ctx, "dynamic profile created", map[string]any{
		"profile_id":     profile.ID,
		"credentials_id": profile.CredentialsID,
		"address_id":     addressID,
	})
	return profile.Clone(), nil
}

func (m *ProfileManager) findDynamicProfile(credentialsID, addressID string) (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, profile := range m.dynamic {
		if profile.CredentialsID == credentialsID && profile.AddressID == addressID {
			return profile.Clone(), true
		}
	}
	return Profile{}, false
}

// invalidateResolution drops any cached outcome for addressID. Called
// whenever the profile population changes in a way that could alter
// resolution.
func (m *ProfileManager) invalidateResolution(ctx context.Context, addressID string) {
	cache := m.f.resolutionCache
	addressID = strings.TrimSpace(addressID)
	if cache == nil || addressID == "" {
		return
	}
	if err := cache.Delete(ctx, ResolutionCacheKey(addressID)); err != nil {
		m.f.logWarn(ctx, "resolution cache invalidation failed", map[string]any{
			"address_id": addressID,
			"error":      err.Error(),
		})
	}
}

func (m *ProfileManager) probeTimeout() time.Duration {
	timeout := m.f.config.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return timeout
}

func containsAddress(addresses []AccessibleAddress, addressID string) bool {
	for _, address := range addresses {
		if address.ID == addressID {
			return true
		}
	}
	return false
}
