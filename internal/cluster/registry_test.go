package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// memStore is an in-memory Store that can be told to fail writes.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	puts    int
	failPut bool
	failGet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("disk on fire")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("disk full")
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func newTestRegistry(t *testing.T, store *memStore) *Registry {
	t.Helper()
	r, err := NewRegistry(context.Background(), store)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return r
}

func names(clusters []Cluster) []string {
	out := make([]string, len(clusters))
	for i, c := range clusters {
		out[i] = c.Name
	}
	return out
}

func assertNames(t *testing.T, got []Cluster, want ...string) {
	t.Helper()
	g := names(got)
	if fmt.Sprint(g) != fmt.Sprint(want) {
		t.Fatalf("cluster names = %v, want %v", g, want)
	}
}

func assertExactlyOneActive(t *testing.T, r *Registry) {
	t.Helper()
	count := 0
	for _, c := range r.List() {
		if c.Active {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("active cluster count = %d, want 1", count)
	}
}

func TestNewRegistrySeedsDefaults(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)

	assertNames(t, r.List(), "Devnet", "Testnet", "Mainnet")
	assertExactlyOneActive(t, r)

	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active() failed: %v", err)
	}
	if active.Name != "Devnet" || active.Network != NetworkDevnet {
		t.Errorf("Active() = %+v, want Devnet", active)
	}

	if store.puts != 1 {
		t.Errorf("defaults persisted %d times, want 1", store.puts)
	}
	if _, ok := store.data[DefaultStateKey]; !ok {
		t.Errorf("expected state under key %q", DefaultStateKey)
	}
}

func TestNewRegistryWithOptions(t *testing.T) {
	store := newMemStore()
	seeds := []Cluster{
		{Name: "local", Endpoint: "http://localhost:8899"},
		{Name: "devnet", Network: NetworkDevnet, Endpoint: "https://api.devnet.solana.com"},
	}

	r, err := NewRegistry(context.Background(), store, WithStateKey("custom-key"), WithDefaults(seeds))
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	assertNames(t, r.List(), "local", "devnet")
	active, _ := r.Active()
	if active.Name != "local" {
		t.Errorf("active = %q, want local", active.Name)
	}
	if active.Network != NetworkCustom {
		t.Errorf("network = %q, want custom", active.Network)
	}
	if _, ok := store.data["custom-key"]; !ok {
		t.Errorf("expected state under custom-key")
	}
}

func TestNewRegistryRejectsInvalidDefaults(t *testing.T) {
	_, err := NewRegistry(context.Background(), newMemStore(), WithDefaults([]Cluster{{Name: "bad", Endpoint: "ftp://x"}}))
	if !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("NewRegistry() error = %v, want ErrInvalidEndpoint", err)
	}
}

func TestNewRegistryStoreErrors(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		if _, err := NewRegistry(context.Background(), nil); err == nil {
			t.Fatal("expected error for nil store")
		}
	})

	t.Run("read failure", func(t *testing.T) {
		store := newMemStore()
		store.failGet = true
		if _, err := NewRegistry(context.Background(), store); err == nil {
			t.Fatal("expected error when storage cannot be read")
		}
	})

	t.Run("seed write failure", func(t *testing.T) {
		store := newMemStore()
		store.failPut = true
		if _, err := NewRegistry(context.Background(), store); err == nil {
			t.Fatal("expected error when defaults cannot be persisted")
		}
	})
}

func TestNewRegistryFallsBackOnCorruptState(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{{{"},
		{name: "empty object", data: "{}"},
		{name: "no clusters", data: `{"clusters":[],"activeName":"x"}`},
		{name: "active not registered", data: `{"clusters":[{"name":"a","endpoint":"http://a"}],"activeName":"b"}`},
		{name: "duplicate names", data: `{"clusters":[{"name":"a","endpoint":"http://a"},{"name":"a","endpoint":"http://b"}],"activeName":"a"}`},
		{name: "invalid endpoint", data: `{"clusters":[{"name":"a","endpoint":"nope"}],"activeName":"a"}`},
		{name: "unknown network", data: `{"clusters":[{"name":"a","network":"moonnet","endpoint":"http://a"}],"activeName":"a"}`},
		{name: "wrong types", data: `{"clusters":"a","activeName":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.data[DefaultStateKey] = []byte(tt.data)

			r := newTestRegistry(t, store)
			assertNames(t, r.List(), "Devnet", "Testnet", "Mainnet")
			assertExactlyOneActive(t, r)

			if _, err := DecodeState(store.data[DefaultStateKey]); err != nil {
				t.Errorf("reseeded state does not decode: %v", err)
			}
		})
	}
}

func TestNewRegistryLoadsPersistedState(t *testing.T) {
	store := newMemStore()
	store.data[DefaultStateKey] = []byte(`{"version":1,"clusters":[` +
		`{"name":"local","endpoint":"http://localhost:8899"},` +
		`{"name":"main","network":"mainnet-beta","endpoint":"https://api.mainnet-beta.solana.com"}],` +
		`"activeName":"main"}`)

	r := newTestRegistry(t, store)

	assertNames(t, r.List(), "local", "main")
	active, _ := r.Active()
	if active.Name != "main" {
		t.Errorf("active = %q, want main", active.Name)
	}
	local, err := r.Get("local")
	if err != nil {
		t.Fatalf("Get(local) failed: %v", err)
	}
	if local.Network != NetworkCustom {
		t.Errorf("network without value = %q, want custom", local.Network)
	}
	if store.puts != 0 {
		t.Errorf("loading valid state should not write, got %d puts", store.puts)
	}
}

func TestRegistryDefaultScenario(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newMemStore())

	if err := r.SetActive(ctx, "Mainnet"); err != nil {
		t.Fatalf("SetActive(Mainnet) failed: %v", err)
	}
	active, _ := r.Active()
	if active.Name != "Mainnet" {
		t.Fatalf("active = %q, want Mainnet", active.Name)
	}

	if err := r.Delete(ctx, "Devnet"); err != nil {
		t.Fatalf("Delete(Devnet) failed: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	err := r.Delete(ctx, "Mainnet")
	if !errors.Is(err, ErrCannotDeleteActive) {
		t.Fatalf("Delete(Mainnet) error = %v, want ErrCannotDeleteActive", err)
	}
	assertNames(t, r.List(), "Testnet", "Mainnet")
	assertExactlyOneActive(t, r)
}

func TestRegistryAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		cluster Cluster
		wantErr error
	}{
		{name: "empty name", cluster: Cluster{Name: "", Endpoint: "http://x"}, wantErr: ErrInvalidName},
		{name: "blank name", cluster: Cluster{Name: "   ", Endpoint: "http://x"}, wantErr: ErrInvalidName},
		{name: "empty endpoint", cluster: Cluster{Name: "x"}, wantErr: ErrInvalidEndpoint},
		{name: "no scheme", cluster: Cluster{Name: "x", Endpoint: "localhost:8899"}, wantErr: ErrInvalidEndpoint},
		{name: "websocket scheme", cluster: Cluster{Name: "x", Endpoint: "ws://localhost:8900"}, wantErr: ErrInvalidEndpoint},
		{name: "no host", cluster: Cluster{Name: "x", Endpoint: "http://"}, wantErr: ErrInvalidEndpoint},
		{name: "unparseable", cluster: Cluster{Name: "x", Endpoint: "http://[::1"}, wantErr: ErrInvalidEndpoint},
		{name: "unknown network", cluster: Cluster{Name: "x", Network: "moonnet", Endpoint: "http://x"}, wantErr: ErrInvalidNetwork},
		{name: "duplicate", cluster: Cluster{Name: "Testnet", Endpoint: "http://x"}, wantErr: ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			r := newTestRegistry(t, store)
			before := r.Snapshot()
			puts := store.puts

			err := r.Add(context.Background(), tt.cluster)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Add() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != ErrDuplicateName && !IsValidationError(err) {
				t.Errorf("IsValidationError(%v) = false", err)
			}
			if !r.Snapshot().Equal(before) {
				t.Errorf("registry changed after rejected Add")
			}
			if store.puts != puts {
				t.Errorf("rejected Add wrote to storage")
			}
		})
	}
}

func TestRegistryAddThenDeleteRestoresList(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newMemStore())
	before := r.Snapshot()

	if err := r.Add(ctx, Cluster{Name: "local", Endpoint: "http://localhost:8899"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	assertNames(t, r.List(), "Devnet", "Testnet", "Mainnet", "local")

	added, _ := r.Get("local")
	if added.Active {
		t.Errorf("added cluster should not be activated")
	}
	if added.Network != NetworkCustom {
		t.Errorf("network = %q, want custom", added.Network)
	}

	if err := r.Delete(ctx, "local"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if !r.Snapshot().Equal(before) {
		t.Errorf("add+delete did not restore the list: %v", names(r.List()))
	}
}

func TestRegistryDeleteKeepsOrder(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newMemStore())

	if err := r.Delete(ctx, "Testnet"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	assertNames(t, r.List(), "Devnet", "Mainnet")
}

func TestRegistryNotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newMemStore())

	if err := r.SetActive(ctx, "nope"); !IsNotFound(err) {
		t.Errorf("SetActive() error = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, "nope"); !IsNotFound(err) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := r.Get("nope"); !IsNotFound(err) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRegistrySetActive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRegistry(t, store)

	for _, name := range []string{"Testnet", "Mainnet", "Devnet", "Mainnet"} {
		if err := r.SetActive(ctx, name); err != nil {
			t.Fatalf("SetActive(%s) failed: %v", name, err)
		}
		active, err := r.Active()
		if err != nil {
			t.Fatalf("Active() failed: %v", err)
		}
		if active.Name != name {
			t.Fatalf("Active() = %q, want %q", active.Name, name)
		}
		assertExactlyOneActive(t, r)
	}

	puts := store.puts
	if err := r.SetActive(ctx, "Mainnet"); err != nil {
		t.Fatalf("SetActive on active cluster failed: %v", err)
	}
	if store.puts != puts {
		t.Errorf("re-selecting the active cluster should not write")
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRegistry(t, store)

	if err := r.Add(ctx, Cluster{Name: "local", Endpoint: "http://localhost:8899"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := r.Add(ctx, Cluster{Name: "rpcpool", Network: NetworkMainnet, Endpoint: "https://rpc.example.com/?token=abc"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := r.SetActive(ctx, "local"); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}
	if err := r.Delete(ctx, "Testnet"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	reloaded := newTestRegistry(t, store)
	if !reloaded.Snapshot().Equal(r.Snapshot()) {
		t.Fatalf("reloaded state %+v != %+v", reloaded.Snapshot(), r.Snapshot())
	}
	active, _ := reloaded.Active()
	if active.Name != "local" {
		t.Errorf("reloaded active = %q, want local", active.Name)
	}
}

func TestRegistryPersistFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRegistry(t, store)
	before := r.Snapshot()

	notified := 0
	r.Subscribe(func(Change) { notified++ })

	store.failPut = true
	if err := r.Add(ctx, Cluster{Name: "local", Endpoint: "http://localhost:8899"}); err == nil {
		t.Fatal("expected Add to fail when storage fails")
	}
	if err := r.SetActive(ctx, "Mainnet"); err == nil {
		t.Fatal("expected SetActive to fail when storage fails")
	}
	if err := r.Delete(ctx, "Testnet"); err == nil {
		t.Fatal("expected Delete to fail when storage fails")
	}

	if !r.Snapshot().Equal(before) {
		t.Errorf("state changed despite persistence failure")
	}
	if notified != 0 {
		t.Errorf("listeners notified %d times for failed mutations", notified)
	}
}

func TestRegistryValidatesAgainstLatestPersistedState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first := newTestRegistry(t, store)
	second := newTestRegistry(t, store)

	if err := first.Add(ctx, Cluster{Name: "local", Endpoint: "http://localhost:8899"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	err := second.Add(ctx, Cluster{Name: "local", Endpoint: "http://127.0.0.1:8899"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second Add() error = %v, want ErrDuplicateName", err)
	}

	// A successful write from the second registry keeps the first writer's record.
	if err := second.Add(ctx, Cluster{Name: "other", Endpoint: "http://other:8899"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	assertNames(t, second.List(), "Devnet", "Testnet", "Mainnet", "local", "other")

	if err := first.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	assertNames(t, first.List(), "Devnet", "Testnet", "Mainnet", "local", "other")
}

func TestRegistryMutationFallsBackToMemoryOnCorruptStorage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := newTestRegistry(t, store)

	store.data[DefaultStateKey] = []byte("garbage")
	if err := r.SetActive(ctx, "Testnet"); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}

	s, err := DecodeState(store.data[DefaultStateKey])
	if err != nil {
		t.Fatalf("storage not repaired: %v", err)
	}
	if s.ActiveName != "Testnet" || len(s.Clusters) != 3 {
		t.Errorf("repaired state = %+v", s)
	}
}

func TestRegistryStorageReadFailure(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)

	store.failGet = true
	if err := r.SetActive(context.Background(), "Testnet"); err == nil {
		t.Fatal("expected error when storage cannot be read")
	}
	active, _ := r.Active()
	if active.Name != "Devnet" {
		t.Errorf("active changed to %q after failed read", active.Name)
	}
}

func TestRegistrySubscribe(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newMemStore())

	var changes []Change
	var activeSeen string
	unsubscribe := r.Subscribe(func(c Change) {
		changes = append(changes, c)
		// Reads inside a listener already observe the new state.
		active, err := r.Active()
		if err != nil {
			t.Errorf("Active() inside listener failed: %v", err)
			return
		}
		activeSeen = active.Name
	})

	if err := r.SetActive(ctx, "Testnet"); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.Kind != ChangeSelected || c.Name != "Testnet" || c.State.ActiveName != "Testnet" {
		t.Errorf("change = %+v", c)
	}
	if c.ID == "" || c.At.IsZero() {
		t.Errorf("change missing id or timestamp: %+v", c)
	}
	if activeSeen != "Testnet" {
		t.Errorf("listener saw active %q, want Testnet", activeSeen)
	}

	if err := r.Add(ctx, Cluster{Name: "local", Endpoint: "http://localhost:8899"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := r.Delete(ctx, "local"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if len(changes) != 3 || changes[1].Kind != ChangeAdded || changes[2].Kind != ChangeDeleted {
		t.Fatalf("unexpected changes: %+v", changes)
	}

	// Rejected mutations do not notify.
	_ = r.Delete(ctx, "Testnet")
	_ = r.Add(ctx, Cluster{Name: ""})
	if len(changes) != 3 {
		t.Errorf("rejected mutations notified listeners")
	}

	unsubscribe()
	if err := r.SetActive(ctx, "Devnet"); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}
	if len(changes) != 3 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestRegistryListReturnsCopies(t *testing.T) {
	r := newTestRegistry(t, newMemStore())

	list := r.List()
	list[0].Name = "mutated"
	list[1].Active = true

	assertNames(t, r.List(), "Devnet", "Testnet", "Mainnet")
	assertExactlyOneActive(t, r)
}

func TestRegistrySyncNoChange(t *testing.T) {
	r := newTestRegistry(t, newMemStore())

	notified := 0
	r.Subscribe(func(Change) { notified++ })

	if err := r.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if notified != 0 {
		t.Errorf("Sync without external change notified %d times", notified)
	}
}

func TestRegistryConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newMemStore())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every other goroutine races on the same name.
			name := fmt.Sprintf("node-%d", i/2)
			errs <- r.Add(ctx, Cluster{Name: name, Endpoint: "http://localhost:8899"})
		}(i)
	}
	wg.Wait()
	close(errs)

	dups := 0
	for err := range errs {
		if errors.Is(err, ErrDuplicateName) {
			dups++
		} else if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if dups != 10 {
		t.Errorf("duplicate rejections = %d, want 10", dups)
	}
	if r.Len() != 13 {
		t.Errorf("Len() = %d, want 13", r.Len())
	}
}
