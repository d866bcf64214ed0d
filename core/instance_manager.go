package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// InstanceManager pools live network clients keyed by profile. At most
// one instance exists per profile id; the check-then-create sequence is
// serialized per profile so concurrent callers never construct two
// clients for the same profile.
type InstanceManager struct {
	f *Factory

	mu        sync.RWMutex
	instances map[string]ManagedInstance
	byProfile map[string]string
	trackers  map[string]chan struct{}

	createMu    sync.Mutex
	createLocks map[string]*sync.Mutex
}

func newInstanceManager(f *Factory) *InstanceManager {
	return &InstanceManager{
		f:           f,
		instances:   make(map[string]ManagedInstance),
		byProfile:   make(map[string]string),
		trackers:    make(map[string]chan struct{}),
		createLocks: make(map[string]*sync.Mutex),
	}
}

// CreateInstance returns the live instance for the profile, constructing
// one if none exists. The second return reports whether a new client was
// built. An existing instance gets an access bump instead of a second
// construction.
func (m *InstanceManager) CreateInstance(ctx context.Context, profile Profile) (ManagedInstance, bool, error) {
	if m == nil {
		return ManagedInstance{}, false, fmt.Errorf("core: instance manager is nil")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return ManagedInstance{}, false, m.f.mapError(fmt.Errorf("core: profile id is required"))
	}

	lock := m.profileCreateLock(profile.ID)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok := m.bumpByProfile(profile.ID); ok {
		return existing, false, nil
	}

	if m.f.clientConstructor == nil {
		return ManagedInstance{}, false, m.clientCreateError(profile.ID, fmt.Errorf("core: client constructor is not configured"))
	}

	instanceID := uuid.NewString()

	// Reserve the profile slot before the (suspending) construction so a
	// racing lookup observes the claim; rolled back on failure.
	m.mu.Lock()
	m.byProfile[profile.ID] = instanceID
	m.mu.Unlock()

	client, err := m.f.clientConstructor.Create(ctx, clientParamsFromProfile(profile))
	if err != nil {
		m.mu.Lock()
		if m.byProfile[profile.ID] == instanceID {
			delete(m.byProfile, profile.ID)
		}
		m.mu.Unlock()
		return ManagedInstance{}, false, m.clientCreateError(profile.ID, err)
	}

	now := m.f.now()
	instance := ManagedInstance{
		ID:             instanceID,
		ProfileID:      profile.ID,
		Client:         client,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		IsConnected:    true,
	}

	stop := make(chan struct{})
	m.mu.Lock()
	m.instances[instanceID] = instance
	m.trackers[instanceID] = stop
	m.mu.Unlock()

	go m.trackAccess(instanceID, stop)

	m.f.logInfo(ctx, "client instance created", map[string]any{
		"instance_id": instanceID,
		"profile_id":  profile.ID,
	})
	return instance, true, nil
}

// DisposeInstance tears an instance down. A connected instance without
// force is refused with an in-use error; with force, disposal always
// completes even when the client's own disconnect fails.
func (m *InstanceManager) DisposeInstance(ctx context.Context, id string, force bool) (bool, error) {
	m.mu.Lock()
	instance, found := m.instances[id]
	if !found {
		m.mu.Unlock()
		return false, nil
	}
	if instance.IsConnected && !force {
		m.mu.Unlock()
		return false, m.instanceInUseError(instance)
	}
	stop := m.trackers[id]
	delete(m.trackers, id)
	delete(m.instances, id)
	if m.byProfile[instance.ProfileID] == id {
		delete(m.byProfile, instance.ProfileID)
	}
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if instance.Client != nil {
		if err := instance.Client.Disconnect(ctx); err != nil {
			m.f.logWarn(ctx, "client disconnect failed during disposal", map[string]any{
				"instance_id": id,
				"profile_id":  instance.ProfileID,
				"error":       err.Error(),
			})
		}
	}
	m.f.logInfo(ctx, "client instance disposed", map[string]any{
		"instance_id": id,
		"profile_id":  instance.ProfileID,
		"force":       force,
	})
	return true, nil
}

func (m *InstanceManager) GetInstance(ctx context.Context, id string) (ManagedInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, found := m.instances[id]
	if !found {
		return ManagedInstance{}, false
	}
	instance = m.bumpLocked(instance)
	return instance, true
}

func (m *InstanceManager) GetInstanceByProfile(ctx context.Context, profileID string) (ManagedInstance, bool) {
	instance, ok := m.bumpByProfile(profileID)
	return instance, ok
}

// ListInstances returns live instances ordered most recently used first.
func (m *InstanceManager) ListInstances(ctx context.Context) []ManagedInstance {
	m.mu.RLock()
	instances := make([]ManagedInstance, 0, len(m.instances))
	for _, instance := range m.instances {
		instances = append(instances, instance)
	}
	m.mu.RUnlock()
	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].LastAccessedAt.Equal(instances[j].LastAccessedAt) {
			return instances[i].ID < instances[j].ID
		}
		return instances[i].LastAccessedAt.After(instances[j].LastAccessedAt)
	})
	return instances
}

// UpdateInstanceAccess bumps the access counter and timestamp. Returns
// false when the instance is gone.
func (m *InstanceManager) UpdateInstanceAccess(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance, found := m.instances[id]
	if !found {
		return false
	}
	m.bumpLocked(instance)
	return true
}

// Dispose force-disposes every instance concurrently, best-effort, then
// clears all indices.
func (m *InstanceManager) Dispose(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(instanceID string) {
			defer wg.Done()
			if _, err := m.DisposeInstance(ctx, instanceID, true); err != nil {
				m.f.logWarn(ctx, "forced instance disposal failed", map[string]any{
					"instance_id": instanceID,
					"error":       err.Error(),
				})
			}
		}(id)
	}
	wg.Wait()

	m.mu.Lock()
	for _, stop := range m.trackers {
		close(stop)
	}
	m.instances = make(map[string]ManagedInstance)
	m.byProfile = make(map[string]string)
	m.trackers = make(map[string]chan struct{})
	m.mu.Unlock()

	m.f.logInfo(ctx, "instance manager disposed", map[string]any{"instances": len(ids)})
	return nil
}

// trackAccess refreshes the instance's last-accessed timestamp on a
// fixed period as a lightweight liveness signal. It exits when the
// instance is removed.
func (m *InstanceManager) trackAccess(instanceID string, stop <-chan struct{}) {
	interval := m.f.config.AccessTrackInterval
	if interval <= 0 {
		interval = DefaultAccessTrackInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			instance, found := m.instances[instanceID]
			if !found {
				m.mu.Unlock()
				return
			}
			instance.LastAccessedAt = m.f.now()
			m.instances[instanceID] = instance
			m.mu.Unlock()
		}
	}
}

// bumpLocked requires m.mu held for writing. Returns the updated copy.
func (m *InstanceManager) bumpLocked(instance ManagedInstance) ManagedInstance {
	instance.AccessCount++
	instance.LastAccessedAt = m.f.now()
	m.instances[instance.ID] = instance
	return instance
}

func (m *InstanceManager) bumpByProfile(profileID string) (ManagedInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	instanceID, ok := m.byProfile[profileID]
	if !ok {
		return ManagedInstance{}, false
	}
	instance, found := m.instances[instanceID]
	if !found {
		return ManagedInstance{}, false
	}
	return m.bumpLocked(instance), true
}

func (m *InstanceManager) profileCreateLock(profileID string) *sync.Mutex {
	m.createMu.Lock()
	defer m.createMu.Unlock()
	lock, ok := m.createLocks[profileID]
	if !ok {
		lock = &sync.Mutex{}
		m.createLocks[profileID] = lock
	}
	return lock
}

func (m *InstanceManager) instanceInUseError(instance ManagedInstance) error {
	wrapped := m.f.errorFactory(
		fmt.Sprintf("instance %q is in use and cannot be disposed without force", instance.ID),
		goerrors.CategoryConflict,
	).WithTextCode(ProfilesErrorInstanceInUse)
	return ensureProfileErrorEnvelope(wrapped.WithMetadata(map[string]any{
		"instance_id": instance.ID,
		"profile_id":  instance.ProfileID,
	}))
}

func (m *InstanceManager) clientCreateError(profileID string, cause error) error {
	wrapped := goerrors.Wrap(cause, goerrors.CategoryExternal,
		fmt.Sprintf("client construction failed for profile %q", profileID)).
		WithTextCode(ProfilesErrorClientCreateFailed).
		WithMetadata(map[string]any{"profile_id": profileID})
	return ensureProfileErrorEnvelope(wrapped)
}

// clientParamsFromProfile derives construction parameters from the
// profile's credentials. The project identifier comes from the refresh
// payload when present.
func clientParamsFromProfile(profile Profile) ClientParams {
	params := ClientParams{
		Token: profile.Credentials.Token,
		Host:  profile.Credentials.Host,
	}
	for _, key := range []string{"project", "project_id", "tenant", "tenant_id"} {
		if value, ok := profile.Credentials.RefreshPayload[key].(string); ok && strings.TrimSpace(value) != "" {
			params.Project = strings.TrimSpace(value)
			break
		}
	}
	if params.Project == "" {
		params.Project = "default"
	}
	return params
}
