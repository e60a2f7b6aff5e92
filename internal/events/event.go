package events

import (
	"github.com/rbias/solboard/internal/cluster"
	"github.com/rbias/solboard/internal/probe"
)

// Stream names served by the broker.
const (
	StreamClusters = "clusters"
	StreamHealth   = "health"
)

// Streams lists every stream the broker creates.
var Streams = []string{StreamClusters, StreamHealth}

// Event is one message received from the change stream. Exactly one of
// Change and Health is set, depending on the stream.
type Event struct {
	ID     string          `json:"-"`
	Stream string          `json:"-"`
	Type   string          `json:"-"`
	Change *cluster.Change `json:"change,omitempty"`
	Health *probe.Report   `json:"health,omitempty"`
}
