package profiles_test

import (
	"context"
	"sync"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	profiles "github.com/goliatone/go-profiles"
	profilescommand "github.com/goliatone/go-profiles/command"
	profilesquery "github.com/goliatone/go-profiles/query"
	"github.com/goliatone/go-profiles/store"
)

func TestDownstreamComposition_FacadeDrivesFullClientLifecycle(t *testing.T) {
	ctx := context.Background()

	constructor := &compositionConstructor{}
	factory, err := profiles.Setup(profiles.DefaultConfig(),
		profiles.WithStorage(store.NewMemoryStorage()),
		profiles.WithClientConstructor(constructor),
	)
	if err != nil {
		t.Fatalf("setup factory: %v", err)
	}
	if err := factory.Init(ctx, nil); err != nil {
		t.Fatalf("init factory: %v", err)
	}
	defer func() { _ = factory.Dispose(ctx) }()

	facade, err := profiles.NewFacade(factory)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	addCollector := gocmd.NewResult[profiles.AddProfilesResult]()
	addCtx := gocmd.ContextWithResult(ctx, addCollector)
	err = facade.Commands().AddProfiles.Execute(addCtx, profilescommand.AddProfilesMessage{
		Request: profiles.AddProfilesRequest{
			Profiles: []profiles.AddProfileInput{{
				CredentialsID: "cred_1",
				Credentials: profiles.Credentials{
					Token:          "token-1",
					TokenExpiry:    time.Now().Add(3 * time.Hour),
					RefreshPayload: map[string]any{"refresh_token": "rt-1"},
					RefreshURL:     "https://auth.example.com/refresh",
				},
				AddressID: "addr_1",
			}},
		},
	})
	if err != nil {
		t.Fatalf("execute add profiles: %v", err)
	}
	added, ok := addCollector.Load()
	if !ok || len(added.Profiles) != 1 {
		t.Fatalf("unexpected add profiles result: ok=%v %#v", ok, added)
	}
	profileID := added.Profiles[0].ID

	profile, err := facade.Queries().GetProfile.Query(ctx, profilesquery.GetProfileMessage{ProfileID: profileID})
	if err != nil {
		t.Fatalf("query profile: %v", err)
	}
	if profile.AddressID != "addr_1" || profile.Type != profiles.ProfileTypeStatic {
		t.Fatalf("unexpected profile: %#v", profile)
	}

	acquireCollector := gocmd.NewResult[profiles.GetClientResult]()
	acquireCtx := gocmd.ContextWithResult(ctx, acquireCollector)
	err = facade.Commands().AcquireClient.Execute(acquireCtx, profilescommand.AcquireClientMessage{
		Request: profiles.GetClientRequest{ProfileID: profileID},
	})
	if err != nil {
		t.Fatalf("execute acquire client: %v", err)
	}
	acquired, ok := acquireCollector.Load()
	if !ok || !acquired.IsNew {
		t.Fatalf("unexpected acquire result: ok=%v %#v", ok, acquired)
	}
	if constructor.createdCount() != 1 {
		t.Fatalf("expected one constructed client, got %d", constructor.createdCount())
	}

	instances, err := facade.Queries().ListActiveClients.Query(ctx, profilesquery.ListActiveClientsMessage{})
	if err != nil {
		t.Fatalf("query active clients: %v", err)
	}
	if len(instances) != 1 || instances[0].ProfileID != profileID {
		t.Fatalf("unexpected active clients: %#v", instances)
	}

	info, err := facade.Queries().GetStorageInfo.Query(ctx, profilesquery.GetStorageInfoMessage{})
	if err != nil {
		t.Fatalf("query storage info: %v", err)
	}
	if info.Type != "memory" || !info.IsAvailable {
		t.Fatalf("unexpected storage info: %#v", info)
	}

	releaseCollector := gocmd.NewResult[bool]()
	releaseCtx := gocmd.ContextWithResult(ctx, releaseCollector)
	err = facade.Commands().ReleaseClient.Execute(releaseCtx, profilescommand.ReleaseClientMessage{
		Request: profiles.DisposeClientRequest{InstanceID: acquired.Instance.ID, Force: true},
	})
	if err != nil {
		t.Fatalf("execute release client: %v", err)
	}
	if released, ok := releaseCollector.Load(); !ok || !released {
		t.Fatalf("unexpected release result: ok=%v released=%v", ok, released)
	}

	instances, err = facade.Queries().ListActiveClients.Query(ctx, profilesquery.ListActiveClientsMessage{})
	if err != nil {
		t.Fatalf("query active clients after release: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("expected no active clients, got %#v", instances)
	}

	removeCollector := gocmd.NewResult[profiles.RemoveProfilesResult]()
	removeCtx := gocmd.ContextWithResult(ctx, removeCollector)
	err = facade.Commands().RemoveProfiles.Execute(removeCtx, profilescommand.RemoveProfilesMessage{
		Request: profiles.RemoveProfilesRequest{ProfileIDs: []string{profileID}},
	})
	if err != nil {
		t.Fatalf("execute remove profiles: %v", err)
	}
	removed, ok := removeCollector.Load()
	if !ok || len(removed.RemovedIDs) != 1 {
		t.Fatalf("unexpected remove result: ok=%v %#v", ok, removed)
	}
}

type compositionClient struct{}

func (compositionClient) Disconnect(context.Context) error { return nil }

type compositionConstructor struct {
	mu      sync.Mutex
	created int
}

func (c *compositionConstructor) Create(_ context.Context, _ profiles.ClientParams) (profiles.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	return compositionClient{}, nil
}

func (c *compositionConstructor) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}
