package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStateKey is the storage key the registry document is kept under.
const DefaultStateKey = "solana-clusters"

// Store is the durable key-value storage the registry persists into.
// Get returns nil, nil when the key has never been written.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// ChangeKind describes what a registry mutation did.
type ChangeKind string

const (
	// ChangeSelected is emitted when a different cluster becomes active.
	ChangeSelected ChangeKind = "selected"

	// ChangeAdded is emitted when a cluster is appended.
	ChangeAdded ChangeKind = "added"

	// ChangeDeleted is emitted when a cluster is removed.
	ChangeDeleted ChangeKind = "deleted"

	// ChangeReloaded is emitted when Sync adopts state written by another process.
	ChangeReloaded ChangeKind = "reloaded"
)

// Change is delivered to subscribers after every successful mutation.
type Change struct {
	ID    string     `json:"id"`
	Kind  ChangeKind `json:"kind"`
	Name  string     `json:"name,omitempty"`
	At    time.Time  `json:"at"`
	State State      `json:"state"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithStateKey overrides the storage key.
func WithStateKey(key string) Option {
	return func(r *Registry) {
		if key != "" {
			r.key = key
		}
	}
}

// WithDefaults overrides the clusters seeded when storage is empty or corrupt.
// The first cluster becomes active.
func WithDefaults(clusters []Cluster) Option {
	return func(r *Registry) {
		if len(clusters) > 0 {
			r.defaults = append([]Cluster(nil), clusters...)
		}
	}
}

type listener struct {
	id int
	fn func(Change)
}

// Registry owns the ordered cluster list and the active cluster pointer.
//
// Mutations are serialized within the process: each one re-reads the
// persisted document, validates against it, persists the result and only then
// updates memory and notifies listeners. Store.Put has no compare-and-swap, so
// two processes writing the same store at the same moment can still lose one
// write; the re-read only narrows that window to the read-to-put gap.
// Listeners run synchronously on the mutating goroutine and must not call
// mutating methods themselves.
type Registry struct {
	store    Store
	key      string
	defaults []Cluster

	// writeMu serializes mutations and their notifications.
	writeMu sync.Mutex

	// mu protects state.
	mu    sync.RWMutex
	state State

	listenMu  sync.Mutex
	listeners []listener
	nextID    int
}

// errNoop aborts a mutation that would not change anything.
var errNoop = errors.New("no change")

// NewRegistry loads the registry from store. When nothing is stored, or the
// stored document is unusable, the defaults are seeded and persisted.
func NewRegistry(ctx context.Context, store Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("cluster store is required")
	}

	r := &Registry{
		store:    store,
		key:      DefaultStateKey,
		defaults: Defaults(),
	}
	for _, opt := range opts {
		opt(r)
	}

	data, err := store.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster state: %w", err)
	}

	if data != nil {
		state, err := DecodeState(data)
		if err == nil {
			r.state = state
			slog.Debug("cluster registry loaded",
				"key", r.key,
				"cluster_count", len(state.Clusters),
				"active", state.ActiveName)
			return r, nil
		}
		slog.Warn("persisted cluster state is unusable, reseeding defaults",
			"key", r.key,
			"error", err)
	}

	seed := State{
		Clusters:   append([]Cluster(nil), r.defaults...),
		ActiveName: r.defaults[0].Name,
	}
	for i := range seed.Clusters {
		if err := seed.Clusters[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid default cluster: %w", err)
		}
	}
	if err := seed.Check(); err != nil {
		return nil, fmt.Errorf("invalid default clusters: %w", err)
	}
	if err := r.persist(ctx, seed); err != nil {
		return nil, err
	}
	r.state = seed.Clone()

	slog.Info("cluster registry seeded with defaults",
		"key", r.key,
		"cluster_count", len(seed.Clusters),
		"active", seed.ActiveName)
	return r, nil
}

// List returns all clusters in insertion order.
func (r *Registry) List() []Cluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone().Clusters
}

// Snapshot returns a copy of the full registry state.
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Len returns the number of registered clusters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.state.Clusters)
}

// Get retrieves a cluster by name.
func (r *Registry) Get(name string) (Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.state.index(name)
	if i < 0 {
		return Cluster{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	c := r.state.Clusters[i]
	c.Active = c.Name == r.state.ActiveName
	return c, nil
}

// Active returns the active cluster.
func (r *Registry) Active() (Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.state.index(r.state.ActiveName)
	if i < 0 {
		return Cluster{}, fmt.Errorf("%w: active cluster %q is not registered", ErrInvariantViolation, r.state.ActiveName)
	}
	c := r.state.Clusters[i]
	c.Active = true
	return c, nil
}

// SetActive makes the named cluster the active one. Selecting the cluster
// that is already active succeeds without persisting or notifying.
func (r *Registry) SetActive(ctx context.Context, name string) error {
	return r.mutate(ctx, ChangeSelected, name, func(s *State) error {
		if s.index(name) < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if s.ActiveName == name {
			return errNoop
		}
		s.ActiveName = name
		return nil
	})
}

// Add appends a cluster without activating it.
func (r *Registry) Add(ctx context.Context, c Cluster) error {
	c.Active = false
	if err := c.Validate(); err != nil {
		return err
	}

	return r.mutate(ctx, ChangeAdded, c.Name, func(s *State) error {
		if s.index(c.Name) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateName, c.Name)
		}
		s.Clusters = append(s.Clusters, c)
		return nil
	})
}

// Delete removes a cluster. The active cluster cannot be deleted.
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.mutate(ctx, ChangeDeleted, name, func(s *State) error {
		i := s.index(name)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if s.ActiveName == name {
			return fmt.Errorf("%w: %s", ErrCannotDeleteActive, name)
		}
		s.Clusters = append(s.Clusters[:i], s.Clusters[i+1:]...)
		return nil
	})
}

// Sync re-reads the persisted document and adopts it when another writer has
// changed it. A missing or corrupt document leaves the registry untouched.
func (r *Registry) Sync(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	latest, err := r.latest(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if latest.Equal(r.state) {
		r.mu.Unlock()
		return nil
	}
	r.state = latest.Clone()
	r.mu.Unlock()

	slog.Info("cluster registry reloaded from storage",
		"key", r.key,
		"cluster_count", len(latest.Clusters),
		"active", latest.ActiveName)

	r.notify(ChangeReloaded, "", latest)
	return nil
}

// Subscribe registers fn to be called after every successful mutation.
// The returned function removes the subscription.
func (r *Registry) Subscribe(fn func(Change)) (unsubscribe func()) {
	r.listenMu.Lock()
	defer r.listenMu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listener{id: id, fn: fn})

	return func() {
		r.listenMu.Lock()
		defer r.listenMu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// mutate applies fn to the latest persisted state, persists the result and
// publishes it. Validation failures never reach storage.
func (r *Registry) mutate(ctx context.Context, kind ChangeKind, name string, fn func(*State) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	base, err := r.latest(ctx)
	if err != nil {
		return err
	}

	next := base.Clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errNoop) {
			return nil
		}
		return err
	}
	if err := next.Check(); err != nil {
		return err
	}

	if err := r.persist(ctx, next); err != nil {
		return err
	}

	r.mu.Lock()
	r.state = next.Clone()
	r.mu.Unlock()

	slog.Info("cluster registry updated",
		"change", kind,
		"cluster", name,
		"active", next.ActiveName)

	r.notify(kind, name, next)
	return nil
}

// latest returns the persisted state, falling back to memory when the
// document is missing or corrupt. Storage errors are returned.
func (r *Registry) latest(ctx context.Context) (State, error) {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		return State{}, fmt.Errorf("failed to read cluster state: %w", err)
	}

	r.mu.RLock()
	current := r.state.Clone()
	r.mu.RUnlock()

	if data == nil {
		slog.Warn("persisted cluster state missing, using in-memory state", "key", r.key)
		return current, nil
	}

	state, err := DecodeState(data)
	if err != nil {
		slog.Warn("persisted cluster state is unusable, using in-memory state",
			"key", r.key,
			"error", err)
		return current, nil
	}
	return state, nil
}

func (r *Registry) persist(ctx context.Context, s State) error {
	data, err := EncodeState(s)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to persist cluster state: %w", err)
	}
	return nil
}

func (r *Registry) notify(kind ChangeKind, name string, s State) {
	r.listenMu.Lock()
	listeners := make([]listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenMu.Unlock()

	change := Change{
		ID:    uuid.New().String(),
		Kind:  kind,
		Name:  name,
		At:    time.Now().UTC(),
		State: s.Clone(),
	}
	for _, l := range listeners {
		// Each listener gets its own copy so it cannot affect the others.
		c := change
		c.State = change.State.Clone()
		l.fn(c)
	}
}
