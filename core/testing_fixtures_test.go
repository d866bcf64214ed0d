package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// memoryTestStorage is an in-package Storage fake for tests that cannot
// import the store package.
type memoryTestStorage struct {
	mu         sync.Mutex
	persistent map[string][]byte
	session    map[string][]byte
	setErr     error
}

func newMemoryTestStorage() *memoryTestStorage {
	return &memoryTestStorage{
		persistent: make(map[string][]byte),
		session:    make(map[string][]byte),
	}
}

func (s *memoryTestStorage) snapshot() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.persistent))
	for key, value := range s.persistent {
		out[key] = append([]byte(nil), value...)
	}
	return out
}

func (s *memoryTestStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.persistent[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *memoryTestStorage) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

func (s *memoryTestStorage) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.persistent[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryTestStorage) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.persistent[key]
	delete(s.persistent, key)
	return ok, nil
}

func (s *memoryTestStorage) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.persistent[key]
	return ok, nil
}

func (s *memoryTestStorage) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = value
		}
	}
	return out, nil
}

func (s *memoryTestStorage) SetMany(ctx context.Context, entries map[string][]byte) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *memoryTestStorage) DeleteMany(ctx context.Context, keys []string) (int, error) {
	removed := 0
	for _, key := range keys {
		ok, err := s.Delete(ctx, key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *memoryTestStorage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.persistent {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryTestStorage) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.persistent {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.persistent, key)
		}
	}
	return nil
}

func (s *memoryTestStorage) SessionGet(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.session[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *memoryTestStorage) SessionSet(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session[key] = append([]byte(nil), value...)
	return nil
}

func (s *memoryTestStorage) SessionDelete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.session[key]
	delete(s.session, key)
	return ok, nil
}

func (s *memoryTestStorage) SessionHas(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.session[key]
	return ok, nil
}

func (s *memoryTestStorage) SessionGetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := s.session[key]; ok {
			out[key] = append([]byte(nil), value...)
		}
	}
	return out, nil
}

func (s *memoryTestStorage) SessionSetMany(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range entries {
		s.session[key] = append([]byte(nil), value...)
	}
	return nil
}

func (s *memoryTestStorage) SessionDeleteMany(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, key := range keys {
		if _, ok := s.session[key]; ok {
			delete(s.session, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryTestStorage) SessionList(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.session {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryTestStorage) SessionClear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.session {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.session, key)
		}
	}
	return nil
}

func (s *memoryTestStorage) Info(context.Context) (StorageInfo, error) {
	return StorageInfo{Type: "memory", IsAvailable: true}, nil
}

// scriptedEndpoint replays canned refresh responses and records every
// call it receives.
type scriptedEndpoint struct {
	mu        sync.Mutex
	responses []map[string]any
	errs      []error
	calls     int
	notify    chan struct{}
}

func (e *scriptedEndpoint) Call(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
	e.mu.Lock()
	index := e.calls
	e.calls++
	notify := e.notify
	e.mu.Unlock()

	if notify != nil {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	if index < len(e.errs) && e.errs[index] != nil {
		return nil, e.errs[index]
	}
	if len(e.responses) == 0 {
		return nil, fmt.Errorf("scripted endpoint: no responses configured")
	}
	if index >= len(e.responses) {
		index = len(e.responses) - 1
	}
	return e.responses[index], nil
}

func (e *scriptedEndpoint) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// staticDirectory answers subscriber probes from a fixed token-keyed
// address table.
type staticDirectory struct {
	mu        sync.Mutex
	byToken   map[string][]AccessibleAddress
	addresses map[string]AddressInfo
	probeErr  error
	probes    int
}

func (d *staticDirectory) SubscriberInfo(_ context.Context, cred Credentials) (SubscriberInfo, error) {
	d.mu.Lock()
	d.probes++
	err := d.probeErr
	addresses := d.byToken[cred.Token]
	d.mu.Unlock()
	if err != nil {
		return SubscriberInfo{}, err
	}
	return SubscriberInfo{AccessibleAddresses: addresses}, nil
}

func (d *staticDirectory) Address(_ context.Context, _ Credentials, addressID string) (AddressInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.addresses[addressID]
	if !ok {
		return AddressInfo{}, fmt.Errorf("directory: unknown address %q", addressID)
	}
	return info, nil
}

func (d *staticDirectory) probeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes
}

type testClient struct {
	mu            sync.Mutex
	disconnected  bool
	disconnectErr error
}

func (c *testClient) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return c.disconnectErr
}

func (c *testClient) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// recordingConstructor counts constructions and can be scripted to fail.
type recordingConstructor struct {
	mu      sync.Mutex
	created int
	err     error
	params  []ClientParams
	clients []*testClient
}

func (c *recordingConstructor) Create(_ context.Context, params ClientParams) (Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.created++
	c.params = append(c.params, params)
	client := &testClient{}
	c.clients = append(c.clients, client)
	return client, nil
}

func (c *recordingConstructor) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

func testCredentials(expiry time.Time) Credentials {
	return Credentials{
		Token:          "token-1",
		TokenExpiry:    expiry,
		RefreshPayload: map[string]any{"refresh_token": "rt-1"},
		RefreshURL:     "https://auth.example.com/refresh",
		RefreshMapper:  DefaultMapperName,
	}
}

func newInitializedFactory(t *testing.T, opts ...Option) (*Factory, *memoryTestStorage) {
	t.Helper()
	storage := newMemoryTestStorage()
	factory, err := NewFactory(Config{}, opts...)
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	if err := factory.Init(context.Background(), storage); err != nil {
		t.Fatalf("init factory: %v", err)
	}
	t.Cleanup(func() {
		_ = factory.Dispose(context.Background())
	})
	return factory, storage
}

func asRichError(t *testing.T, err error) *goerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected a typed error, got %T: %v", err, err)
	}
	return richErr
}

func textCodeOf(t *testing.T, err error) string {
	t.Helper()
	return asRichError(t, err).TextCode
}
