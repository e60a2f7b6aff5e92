package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/probe"
)

func newTestBroker(t *testing.T) (*Broker, string) {
	t.Helper()
	broker := NewBroker(8)
	srv := httptest.NewServer(broker)
	t.Cleanup(func() {
		broker.Close()
		srv.Close()
	})
	return broker, srv.URL
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestClientReceivesChanges(t *testing.T) {
	broker, url := newTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewClient(url, 4).Subscribe(ctx, StreamClusters)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	change := cluster.Change{
		ID:   "9b2c4f7e-0000-4000-8000-000000000001",
		Kind: cluster.ChangeSelected,
		Name: "Testnet",
		At:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		State: cluster.State{
			Clusters: []cluster.Cluster{
				{Name: "Devnet", Network: cluster.NetworkDevnet, Endpoint: "https://api.devnet.solana.com"},
				{Name: "Testnet", Network: cluster.NetworkTestnet, Endpoint: "https://api.testnet.solana.com", Active: true},
			},
			ActiveName: "Testnet",
		},
	}
	broker.PublishChange(change)

	ev := receive(t, ch)
	if ev.Stream != StreamClusters {
		t.Errorf("Stream = %q, want %q", ev.Stream, StreamClusters)
	}
	if ev.Type != string(cluster.ChangeSelected) {
		t.Errorf("Type = %q, want %q", ev.Type, cluster.ChangeSelected)
	}
	if ev.ID != change.ID {
		t.Errorf("ID = %q, want %q", ev.ID, change.ID)
	}
	if ev.Change == nil {
		t.Fatal("Change is nil")
	}
	if ev.Change.Name != "Testnet" || ev.Change.State.ActiveName != "Testnet" {
		t.Errorf("Change = %+v", ev.Change)
	}
	if len(ev.Change.State.Clusters) != 2 {
		t.Errorf("State.Clusters len = %d, want 2", len(ev.Change.State.Clusters))
	}
	if ev.Health != nil {
		t.Errorf("Health = %+v, want nil", ev.Health)
	}
}

func TestClientReceivesHealth(t *testing.T) {
	broker, url := newTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewClient(url, 4).Subscribe(ctx, StreamHealth)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	broker.PublishHealth(probe.Report{
		Cluster: cluster.Cluster{Name: "Local", Network: cluster.NetworkCustom, Endpoint: "http://localhost:8899"},
		Status:  probe.StatusUnreachable,
		Error:   "error connecting to cluster at http://localhost:8899 after 2 attempt(s): connection refused",
	})

	ev := receive(t, ch)
	if ev.Type != string(probe.StatusUnreachable) {
		t.Errorf("Type = %q, want %q", ev.Type, probe.StatusUnreachable)
	}
	if ev.Health == nil || ev.Health.Cluster.Name != "Local" {
		t.Fatalf("Health = %+v", ev.Health)
	}
	if ev.Health.Error == "" {
		t.Error("Health.Error is empty")
	}
	if ev.ID != "1" {
		t.Errorf("ID = %q, want %q", ev.ID, "1")
	}
}

func TestClientStreamsAreSeparate(t *testing.T) {
	broker, url := newTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewClient(url, 4).Subscribe(ctx, StreamHealth)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	broker.PublishChange(cluster.Change{ID: "c1", Kind: cluster.ChangeAdded, Name: "X"})
	broker.PublishHealth(probe.Report{Status: probe.StatusHealthy})

	ev := receive(t, ch)
	if ev.Health == nil || ev.Change != nil {
		t.Errorf("health subscriber received %+v", ev)
	}
}

func TestClientUnknownStream(t *testing.T) {
	_, url := newTestBroker(t)

	if _, err := NewClient(url, 4).Subscribe(context.Background(), "incidents"); err == nil {
		t.Fatal("Subscribe() with unknown stream expected error")
	}
}

func TestClientClosesOnCancel(t *testing.T) {
	_, url := newTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewClient(url, 4).Subscribe(ctx, StreamClusters)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after cancel, want closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBrokerRequiresStream(t *testing.T) {
	broker := NewBroker(1)
	defer broker.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	broker.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Errorf("status = %d, want an error for a missing stream parameter", rec.Code)
	}
}

func TestNewClientBufferSize(t *testing.T) {
	tests := []struct {
		name       string
		bufferSize int
		want       int
	}{
		{name: "configured", bufferSize: 64, want: 64},
		{name: "minimal", bufferSize: 1, want: 1},
		{name: "zero clamps to one", bufferSize: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient("http://localhost:8080/api/events", tt.bufferSize)
			if client.bufferSize != tt.want {
				t.Errorf("bufferSize = %d, want %d", client.bufferSize, tt.want)
			}
			if client.endpoint != "http://localhost:8080/api/events" {
				t.Errorf("endpoint = %q", client.endpoint)
			}
		})
	}
}
