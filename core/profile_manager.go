package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	profileIndexKey  = "profiles"
	profileKeyPrefix = "profile:"
)

// ProfileManager owns the Profile lifecycle: creation, validation,
// persistence routing (static profiles go through storage, dynamic ones
// live in memory), refresh scheduling, and address resolution.
//
// The in-memory maps are the read authority: every write lands in the
// map before (static) or instead of (dynamic) storage, so a successful
// AddProfile is immediately visible to GetProfile.
type ProfileManager struct {
	f *Factory

	mu          sync.RWMutex
	storage     Storage
	static      map[string]Profile
	dynamic     map[string]Profile
	retries     map[string]int
	scheduler   *RefreshScheduler
	locker      ProfileLocker
	backoff     RefreshBackoffScheduler
	initialized bool
}

func newProfileManager(f *Factory) *ProfileManager {
	return &ProfileManager{
		f:       f,
		locker:  NewMemoryProfileLocker(),
		backoff: ExponentialBackoffScheduler{Initial: defaultRefreshInitialBackoff, Max: defaultRefreshMaxBackoff},
	}
}

// Init binds storage, loads the persisted profile index, and re-arms a
// refresh for every stored profile. Corrupt entries are skipped with a
// warning, never surfaced.
func (m *ProfileManager) Init(ctx context.Context, storage Storage) error {
	if m == nil {
		return fmt.Errorf("core: profile manager is nil")
	}
	if storage == nil {
		return m.f.mapError(fmt.Errorf("core: storage is required"))
	}

	m.mu.Lock()
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	m.storage = storage
	m.static = make(map[string]Profile)
	m.dynamic = make(map[string]Profile)
	m.retries = make(map[string]int)
	m.scheduler = NewRefreshScheduler(m.handleScheduledRefresh, m.f.now)
	m.initialized = true
	m.mu.Unlock()

	ids, err := m.loadIndex(ctx)
	if err != nil {
		return m.f.mapError(err)
	}

	loaded := make([]Profile, 0, len(ids))
	for _, id := range ids {
		raw, found, getErr := storage.Get(ctx, profileKey(id))
		if getErr != nil {
			return m.f.mapError(getErr)
		}
		if !found {
			m.f.logWarn(ctx, "indexed profile missing from storage", map[string]any{"profile_id": id})
			continue
		}
		var profile Profile
		if unmarshalErr := json.Unmarshal(raw, &profile); unmarshalErr != nil {
			m.f.logWarn(ctx, "skipping corrupt stored profile", map[string]any{
				"profile_id": id,
				"error":      unmarshalErr.Error(),
			})
			continue
		}
		if validateErr := profile.Validate(); validateErr != nil {
			m.f.logWarn(ctx, "skipping invalid stored profile", map[string]any{
				"profile_id": id,
				"error":      validateErr.Error(),
			})
			continue
		}
		loaded = append(loaded, profile)
	}

	m.mu.Lock()
	for _, profile := range loaded {
		m.static[profile.ID] = profile
	}
	m.mu.Unlock()

	for _, profile := range loaded {
		m.scheduleRefresh(ctx, profile)
	}
	m.f.logInfo(ctx, "profile manager initialized", map[string]any{"profiles": len(loaded)})
	return nil
}

func (m *ProfileManager) requireInitialized() error {
	m.mu.RLock()
	ready := m.initialized
	m.mu.RUnlock()
	if ready {
		return nil
	}
	wrapped := m.f.errorFactory("profile manager is not initialized", goerrors.CategoryConflict).
		WithTextCode(ProfilesErrorNotInitialized)
	return ensureProfileErrorEnvelope(wrapped)
}

// AddProfile builds, validates, and stores a new profile, then arms its
// refresh. The returned profile carries the generated id.
func (m *ProfileManager) AddProfile(ctx context.Context, input AddProfileInput) (Profile, error) {
	if err := m.requireInitialized(); err != nil {
		return Profile{}, err
	}

	now := m.f.now()
	profile := Profile{
		ID:             uuid.NewString(),
		Type:           input.Type,
		CredentialsID:  strings.TrimSpace(input.CredentialsID),
		Credentials:    input.Credentials,
		AddressID:      strings.TrimSpace(input.AddressID),
		AddressDetails: input.AddressDetails,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if strings.TrimSpace(profile.Credentials.RefreshMapper) == "" {
		profile.Credentials.RefreshMapper = DefaultMapperName
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, m.f.mapError(err)
	}

	m.mu.Lock()
	if _, exists := m.static[profile.ID]; exists {
		m.mu.Unlock()
		return Profile{}, m.profileExistsError(profile.ID)
	}
	if _, exists := m.dynamic[profile.ID]; exists {
		m.mu.Unlock()
		return Profile{}, m.profileExistsError(profile.ID)
	}
	m.indexProfileLocked(profile)
	m.mu.Unlock()

	if err := m.persistProfile(ctx, profile); err != nil {
		m.mu.Lock()
		m.dropProfileLocked(profile)
		m.mu.Unlock()
		return Profile{}, m.f.mapError(err)
	}

	m.scheduleRefresh(ctx, profile)
	m.invalidateResolution(ctx, profile.AddressID)
	return profile.Clone(), nil
}

// UpdateProfile merges non-nil fields into the stored profile. It
// returns false when the profile does not exist; id and createdAt are
// never overwritten.
func (m *ProfileManager) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (bool, error) {
	if err := m.requireInitialized(); err != nil {
		return false, err
	}

	m.mu.Lock()
	profile, found := m.lookupLocked(id)
	if !found {
		m.mu.Unlock()
		return false, nil
	}
	prior := profile
	if input.Credentials != nil {
		profile.Credentials = *input.Credentials
		if strings.TrimSpace(profile.Credentials.RefreshMapper) == "" {
			profile.Credentials.RefreshMapper = DefaultMapperName
		}
	}
	if input.AddressID != nil {
		profile.AddressID = strings.TrimSpace(*input.AddressID)
	}
	if input.AddressDetails != nil {
		details := *input.AddressDetails
		profile.AddressDetails = &details
	}
	if input.LastUsed != nil {
		used := input.LastUsed.UTC()
		profile.LastUsed = &used
	}
	profile.UpdatedAt = m.f.now()
	if err := profile.Validate(); err != nil {
		m.mu.Unlock()
		return false, m.f.mapError(err)
	}
	m.indexProfileLocked(profile)
	m.mu.Unlock()

	if err := m.persistProfile(ctx, profile); err != nil {
		m.mu.Lock()
		m.indexProfileLocked(prior)
		m.mu.Unlock()
		return false, m.f.mapError(err)
	}
	if input.Credentials != nil {
		m.scheduleRefresh(ctx, profile)
	}
	if input.AddressID != nil {
		m.invalidateResolution(ctx, profile.AddressID)
	}
	return true, nil
}

// RemoveProfile cancels the pending refresh first, regardless of
// outcome, then deletes the profile from its store.
func (m *ProfileManager) RemoveProfile(ctx context.Context, id string) (bool, error) {
	if err := m.requireInitialized(); err != nil {
		return false, err
	}

	m.mu.Lock()
	scheduler := m.scheduler
	m.mu.Unlock()
	if scheduler != nil {
		scheduler.Cancel(id)
	}

	m.mu.Lock()
	profile, found := m.lookupLocked(id)
	if !found {
		m.mu.Unlock()
		return false, nil
	}
	m.dropProfileLocked(profile)
	delete(m.retries, id)
	m.mu.Unlock()

	if profile.Type == ProfileTypeStatic {
		if _, err := m.storage.Delete(ctx, profileKey(id)); err != nil {
			return false, m.f.mapError(err)
		}
		if err := m.saveIndex(ctx); err != nil {
			return false, m.f.mapError(err)
		}
	}
	m.invalidateResolution(ctx, profile.AddressID)
	return true, nil
}

func (m *ProfileManager) GetProfile(ctx context.Context, id string) (Profile, bool, error) {
	if err := m.requireInitialized(); err != nil {
		return Profile{}, false, err
	}
	m.mu.RLock()
	profile, found := m.lookupLocked(id)
	m.mu.RUnlock()
	if !found {
		return Profile{}, false, nil
	}
	return profile.Clone(), true, nil
}

func (m *ProfileManager) HasProfile(ctx context.Context, id string) (bool, error) {
	_, found, err := m.GetProfile(ctx, id)
	return found, err
}

// ListProfiles returns profiles ordered by creation time ascending.
// Entries failing structural validation are dropped silently.
func (m *ProfileManager) ListProfiles(ctx context.Context, typeFilter *ProfileType) ([]Profile, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	profiles := make([]Profile, 0, len(m.static)+len(m.dynamic))
	for _, profile := range m.static {
		profiles = append(profiles, profile)
	}
	for _, profile := range m.dynamic {
		profiles = append(profiles, profile)
	}
	m.mu.RUnlock()

	filtered := profiles[:0]
	for _, profile := range profiles {
		if typeFilter != nil && profile.Type != *typeFilter {
			continue
		}
		if profile.Validate() != nil {
			continue
		}
		filtered = append(filtered, profile.Clone())
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})
	return filtered, nil
}

func (m *ProfileManager) GetProfilesByCredentialID(ctx context.Context, credentialsID string) ([]Profile, error) {
	profiles, err := m.ListProfiles(ctx, nil)
	if err != nil {
		return nil, err
	}
	matched := profiles[:0]
	for _, profile := range profiles {
		if profile.CredentialsID == credentialsID {
			matched = append(matched, profile)
		}
	}
	return matched, nil
}

// ValidateCredentials reports whether the profile's token is still
// usable. A token inside the refresh buffer triggers a proactive
// refresh whose failure is logged, not propagated: the token is stale
// but not yet expired.
func (m *ProfileManager) ValidateCredentials(ctx context.Context, id string) (bool, error) {
	if err := m.requireInitialized(); err != nil {
		return false, err
	}

	m.mu.RLock()
	profile, found := m.lookupLocked(id)
	m.mu.RUnlock()
	if !found {
		return false, nil
	}

	until := profile.Credentials.TokenExpiry.Sub(m.f.now())
	if until <= 0 {
		return false, nil
	}
	if until <= m.refreshBuffer() {
		if _, err := m.RefreshCredentials(ctx, id); err != nil {
			m.f.logWarn(ctx, "proactive credential refresh failed", map[string]any{
				"profile_id": id,
				"error":      err.Error(),
			})
		}
	}
	return true, nil
}

// RefreshCredentials exchanges the profile's refresh payload for a new
// token via the refresh endpoint and the profile's named mapper,
// persists the result, and re-arms the refresh schedule. Failures wrap
// the cause; there is no internal retry on this path.
func (m *ProfileManager) RefreshCredentials(ctx context.Context, id string) (Profile, error) {
	if err := m.requireInitialized(); err != nil {
		return Profile{}, err
	}

	m.mu.RLock()
	profile, found := m.lookupLocked(id)
	m.mu.RUnlock()
	if !found {
		return Profile{}, m.refreshError(id, fmt.Errorf("core: profile %q not found for refresh", id))
	}

	handle, err := m.locker.Acquire(ctx, id, defaultRefreshLockTTL)
	if err != nil {
		return Profile{}, m.refreshError(id, err)
	}
	defer handle.Unlock(ctx)

	if m.f.refreshEndpoint == nil {
		return Profile{}, m.refreshError(id, fmt.Errorf("core: refresh endpoint is not configured"))
	}

	body, err := m.f.refreshEndpoint.Call(ctx, profile.Credentials.RefreshURL, copyAnyMap(profile.Credentials.RefreshPayload))
	if err != nil {
		return Profile{}, m.refreshError(id, err)
	}

	mapper, known := m.f.mapperRegistry.Resolve(profile.Credentials.RefreshMapper)
	if !known {
		m.f.logWarn(ctx, "unknown refresh mapper, using default", map[string]any{
			"profile_id": id,
			"mapper":     profile.Credentials.RefreshMapper,
		})
	}
	if mapper == nil {
		return Profile{}, m.refreshError(id, fmt.Errorf("core: no refresh mapper available"))
	}
	mapped, err := mapper(body)
	if err != nil {
		return Profile{}, m.refreshError(id, err)
	}

	m.mu.Lock()
	current, still := m.lookupLocked(id)
	if !still {
		m.mu.Unlock()
		return Profile{}, m.refreshError(id, fmt.Errorf("core: profile %q removed during refresh", id))
	}
	current.Credentials.Token = mapped.Token
	current.Credentials.TokenExpiry = mapped.Expiry.UTC()
	if mapped.NextPayload != nil {
		current.Credentials.RefreshPayload = copyAnyMap(mapped.NextPayload)
	}
	current.UpdatedAt = m.f.now()
	m.indexProfileLocked(current)
	delete(m.retries, id)
	m.mu.Unlock()

	if err := m.persistProfile(ctx, current); err != nil {
		return Profile{}, m.refreshError(id, err)
	}
	m.scheduleRefresh(ctx, current)

	m.f.logInfo(ctx, "credentials refreshed", map[string]any{
		"profile_id":     id,
		"credentials_id": current.CredentialsID,
		"token_expiry":   current.Credentials.TokenExpiry,
	})
	return current.Clone(), nil
}

// Cleanup cancels all pending refreshes, drops every in-memory profile,
// and marks the manager uninitialized. Stored static profiles are left
// untouched.
func (m *ProfileManager) Cleanup(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	scheduler := m.scheduler
	m.scheduler = nil
	m.static = nil
	m.dynamic = nil
	m.retries = nil
	m.storage = nil
	m.initialized = false
	m.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
	m.f.logInfo(ctx, "profile manager cleaned up", nil)
	return nil
}

// scheduleRefresh arms a one-shot refresh at expiry minus the buffer,
// clamped to now. Scheduling replaces any pending entry for the same
// profile. Already-expired tokens are logged and left unscheduled.
func (m *ProfileManager) scheduleRefresh(ctx context.Context, profile Profile) {
	m.mu.RLock()
	scheduler := m.scheduler
	m.mu.RUnlock()
	if scheduler == nil {
		return
	}

	now := m.f.now()
	until := profile.Credentials.TokenExpiry.Sub(now)
	if until <= 0 {
		m.f.logWarn(ctx, "token already expired, refresh not scheduled", map[string]any{
			"profile_id":   profile.ID,
			"token_expiry": profile.Credentials.TokenExpiry,
		})
		return
	}
	delay := until - m.refreshBuffer()
	if delay < 0 {
		delay = 0
	}
	scheduler.Schedule(profile.ID, now.Add(delay))
}

// handleScheduledRefresh runs on the scheduler goroutine. Failures are
// logged and retried with exponential backoff up to a fixed number of
// attempts; they never propagate.
func (m *ProfileManager) handleScheduledRefresh(profileID string) {
	ctx := context.Background()
	_, err := m.RefreshCredentials(ctx, profileID)
	if err == nil {
		return
	}

	m.mu.Lock()
	if m.retries == nil {
		m.mu.Unlock()
		return
	}
	m.retries[profileID]++
	attempt := m.retries[profileID]
	scheduler := m.scheduler
	m.mu.Unlock()

	fields := map[string]any{"profile_id": profileID, "attempt": attempt, "error": err.Error()}
	if attempt > defaultScheduledRefreshAttempts || scheduler == nil {
		m.f.logError(ctx, "scheduled credential refresh abandoned", fields)
		return
	}
	delay := m.backoff.NextDelay(attempt)
	fields["retry_in"] = delay.String()
	m.f.logWarn(ctx, "scheduled credential refresh failed, will retry", fields)
	scheduler.Schedule(profileID, m.f.now().Add(delay))
}

func (m *ProfileManager) refreshBuffer() time.Duration {
	buffer := m.f.config.RefreshBuffer
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return buffer
}

// lookupLocked requires m.mu held (read or write).
func (m *ProfileManager) lookupLocked(id string) (Profile, bool) {
	if profile, ok := m.static[id]; ok {
		return profile, true
	}
	if profile, ok := m.dynamic[id]; ok {
		return profile, true
	}
	return Profile{}, false
}

// indexProfileLocked requires m.mu held for writing.
func (m *ProfileManager) indexProfileLocked(profile Profile) {
	if profile.Type == ProfileTypeDynamic {
		m.dynamic[profile.ID] = profile
		return
	}
	m.static[profile.ID] = profile
}

// dropProfileLocked requires m.mu held for writing.
func (m *ProfileManager) dropProfileLocked(profile Profile) {
	delete(m.static, profile.ID)
	delete(m.dynamic, profile.ID)
}

// persistProfile routes a profile to storage when static. Dynamic
// profiles are memory-only and never reach the store.
func (m *ProfileManager) persistProfile(ctx context.Context, profile Profile) error {
	if profile.Type != ProfileTypeStatic {
		return nil
	}
	m.mu.RLock()
	storage := m.storage
	m.mu.RUnlock()
	if storage == nil {
		return fmt.Errorf("core: storage is not bound")
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("core: encode profile %q: %w", profile.ID, err)
	}
	if err := storage.Set(ctx, profileKey(profile.ID), raw); err != nil {
		return err
	}
	return m.saveIndex(ctx)
}

func (m *ProfileManager) loadIndex(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	storage := m.storage
	m.mu.RUnlock()
	if storage == nil {
		return nil, fmt.Errorf("core: storage is not bound")
	}
	raw, found, err := storage.Get(ctx, profileIndexKey)
	if err != nil {
		return nil, err
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		m.f.logWarn(ctx, "profile index unreadable, starting empty", map[string]any{"error": err.Error()})
		return nil, nil
	}
	return ids, nil
}

// saveIndex rewrites the id index from the static map.
func (m *ProfileManager) saveIndex(ctx context.Context) error {
	m.mu.RLock()
	storage := m.storage
	ids := make([]string, 0, len(m.static))
	for id := range m.static {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	if storage == nil {
		return fmt.Errorf("core: storage is not bound")
	}
	sort.Strings(ids)
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("core: encode profile index: %w", err)
	}
	return storage.Set(ctx, profileIndexKey, raw)
}

func (m *ProfileManager) profileExistsError(id string) error {
	wrapped := m.f.errorFactory(
		fmt.Sprintf("profile %q already exists", id),
		goerrors.CategoryConflict,
	).WithTextCode(ProfilesErrorProfileExists)
	return ensureProfileErrorEnvelope(wrapped.WithMetadata(map[string]any{"profile_id": id}))
}

func (m *ProfileManager) refreshError(id string, cause error) error {
	wrapped := goerrors.Wrap(cause, goerrors.CategoryExternal,
		fmt.Sprintf("credential refresh failed for profile %q", id)).
		WithTextCode(ProfilesErrorRefreshFailed).
		WithMetadata(map[string]any{"profile_id": id})
	return ensureProfileErrorEnvelope(wrapped)
}

func profileKey(id string) string {
	return profileKeyPrefix + id
}
