// Package probe checks whether a cluster's RPC endpoint is reachable by asking
// it for its version, and tracks the result for the active cluster.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/sync/singleflight"

	"github.com/rbias/solboard/internal/cluster"
)

const (
	// DefaultTimeout bounds a single getVersion attempt.
	DefaultTimeout = 5 * time.Second

	// DefaultRetries is the number of retries after a failed attempt.
	DefaultRetries = 1
)

// VersionInfo is what a healthy endpoint reports about itself.
type VersionInfo struct {
	Endpoint   string          `json:"endpoint"`
	SolanaCore string          `json:"solanaCore"`
	FeatureSet int64           `json:"featureSet"`
	Version    *semver.Version `json:"version,omitempty"`
	CheckedAt  time.Time       `json:"checkedAt"`
}

// ConnectionError reports that an endpoint could not be reached. Timeouts,
// transport failures, non-2xx responses and JSON-RPC errors all end up here.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error connecting to cluster at %s after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError returns true if err is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Config holds probe settings.
type Config struct {
	// Timeout bounds each attempt. Default: 5 seconds
	Timeout time.Duration

	// Retries is the number of retries after the first failure.
	// Zero selects DefaultRetries; a negative value disables retrying.
	Retries int

	// CacheTTL expires cached results. Zero keeps them until refreshed.
	CacheTTL time.Duration

	// HTTPClient is used for all RPC calls. Default: NewHTTPClient with defaults.
	HTTPClient *http.Client
}

// versionGetter is the part of the RPC client the probe needs.
type versionGetter interface {
	GetVersion(ctx context.Context) (*rpc.GetVersionResult, error)
}

type cacheKey struct {
	network  cluster.Network
	endpoint string
}

func (k cacheKey) String() string {
	return k.network.String() + "|" + k.endpoint
}

type cacheEntry struct {
	info     *VersionInfo
	err      error
	storedAt time.Time
}

// Prober issues getVersion requests and caches the outcome per
// (network, endpoint) until it is refreshed.
type Prober struct {
	timeout  time.Duration
	retries  int
	cacheTTL time.Duration
	dial     func(endpoint string) versionGetter
	now      func() time.Time

	mu      sync.Mutex
	cache   map[cacheKey]cacheEntry
	epochs  map[cacheKey]uint64
	flights map[cacheKey]*flight
	group   singleflight.Group
}

// flight is the context a shared probe runs on. It is canceled once every
// caller waiting on the probe has gone away.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewProber creates a Prober with the given configuration.
func NewProber(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(TransportConfig{})
	}

	return &Prober{
		timeout:  cfg.Timeout,
		retries:  cfg.Retries,
		cacheTTL: cfg.CacheTTL,
		dial: func(endpoint string) versionGetter {
			return rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
				HTTPClient: httpClient,
			}))
		},
		now:     time.Now,
		cache:   make(map[cacheKey]cacheEntry),
		epochs:  make(map[cacheKey]uint64),
		flights: make(map[cacheKey]*flight),
	}
}

// Check returns the cached result for the cluster's endpoint, probing it if
// there is none. Concurrent checks of the same endpoint share one request,
// which keeps running as long as any of them is still waiting. A caller whose
// ctx ends first gets ctx.Err().
func (p *Prober) Check(ctx context.Context, c cluster.Cluster) (*VersionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := cacheKey{network: c.Network, endpoint: c.Endpoint}

	if entry, ok := p.cached(key); ok {
		return entry.info, entry.err
	}

	f := p.join(ctx, key)
	defer p.leave(key, f)

	for {
		ch := p.group.DoChan(key.String(), func() (interface{}, error) {
			epoch := p.epoch(key)
			info, err := p.probe(f.ctx, c.Endpoint)
			// An abandoned probe says nothing about the endpoint.
			if f.ctx.Err() == nil {
				p.store(key, epoch, info, err)
			}
			return info, err
		})

		select {
		case res := <-ch:
			// Joined a flight whose own callers all left before we arrived.
			if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil && f.ctx.Err() == nil {
				continue
			}
			info, _ := res.Val.(*VersionInfo)
			return info, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Refresh drops any cached result for the cluster and probes it again.
func (p *Prober) Refresh(ctx context.Context, c cluster.Cluster) (*VersionInfo, error) {
	p.Invalidate(c)
	return p.Check(ctx, c)
}

// Invalidate drops the cached result for the cluster. A probe already in
// flight for it will not store its result.
func (p *Prober) Invalidate(c cluster.Cluster) {
	key := cacheKey{network: c.Network, endpoint: c.Endpoint}

	p.mu.Lock()
	delete(p.cache, key)
	p.epochs[key]++
	p.mu.Unlock()
	p.group.Forget(key.String())
}

func (p *Prober) join(ctx context.Context, key cacheKey) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		p.flights[key] = f
	}
	f.waiters++
	return f
}

func (p *Prober) leave(key cacheKey, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if p.flights[key] == f {
		delete(p.flights, key)
	}
}

func (p *Prober) epoch(key cacheKey) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epochs[key]
}

func (p *Prober) cached(key cacheKey) (cacheEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.cache[key]
	if !ok {
		return cacheEntry{}, false
	}
	if p.cacheTTL > 0 && p.now().Sub(entry.storedAt) > p.cacheTTL {
		delete(p.cache, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (p *Prober) store(key cacheKey, epoch uint64, info *VersionInfo, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epochs[key] != epoch {
		return
	}
	p.cache[key] = cacheEntry{info: info, err: err, storedAt: p.now()}
}

// probe calls getVersion with one bounded attempt plus the configured retries.
func (p *Prober) probe(ctx context.Context, endpoint string) (*VersionInfo, error) {
	client := p.dial(endpoint)

	attempts := 0
	var result *rpc.GetVersionResult
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		res, err := client.GetVersion(attemptCtx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if attemptCtx.Err() != nil {
				err = fmt.Errorf("no response within %s: %w", p.timeout, err)
			}
			slog.Debug("cluster probe attempt failed",
				"endpoint", endpoint,
				"attempt", attempts,
				"error", err)
			return err
		}
		if res == nil {
			return fmt.Errorf("empty getVersion result")
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(p.retries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, &ConnectionError{Endpoint: endpoint, Attempts: attempts, Err: err}
	}

	info := &VersionInfo{
		Endpoint:   endpoint,
		SolanaCore: result.SolanaCore,
		FeatureSet: result.FeatureSet,
		CheckedAt:  p.now().UTC(),
	}
	if v, err := semver.NewVersion(result.SolanaCore); err == nil {
		info.Version = v
	}
	return info, nil
}
