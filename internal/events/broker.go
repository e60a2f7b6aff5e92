// Package events streams registry changes and health reports over
// server-sent events, and provides a client for consuming them.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/r3labs/sse/v2"

	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/probe"
)

// Broker publishes registry changes and health reports to SSE subscribers.
// Subscribers select a stream with ?stream=clusters or ?stream=health.
type Broker struct {
	server *sse.Server
	seq    atomic.Uint64
}

// NewBroker creates a Broker whose per-subscriber buffers hold bufferSize events.
func NewBroker(bufferSize int) *Broker {
	server := sse.New()
	server.AutoReplay = false
	if bufferSize > 0 {
		server.BufferSize = bufferSize
	}
	for _, name := range Streams {
		server.CreateStream(name)
	}
	return &Broker{server: server}
}

// PublishChange sends a registry change on the clusters stream.
func (b *Broker) PublishChange(change cluster.Change) {
	b.publish(StreamClusters, change.ID, string(change.Kind), Event{Change: &change})
}

// PublishHealth sends a health report on the health stream.
func (b *Broker) PublishHealth(report probe.Report) {
	id := strconv.FormatUint(b.seq.Add(1), 10)
	b.publish(StreamHealth, id, string(report.Status), Event{Health: &report})
}

func (b *Broker) publish(stream, id, eventType string, payload Event) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode event", "stream", stream, "error", err)
		return
	}
	b.server.Publish(stream, &sse.Event{
		ID:    []byte(id),
		Event: []byte(eventType),
		Data:  data,
	})
}

// ServeHTTP serves the event stream.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.server.ServeHTTP(w, r)
}

// Close disconnects all subscribers.
func (b *Broker) Close() {
	b.server.Close()
}
