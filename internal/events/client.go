package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
)

// Client consumes the solboard change stream.
type Client struct {
	endpoint   string
	bufferSize int
	client     *sse.Client
}

// NewClient creates a client for the events endpoint of a solboard server,
// e.g. http://localhost:8080/api/events.
func NewClient(endpoint string, bufferSize int) *Client {
	if bufferSize < 1 {
		bufferSize = 1
	}
	sseClient := sse.NewClient(endpoint)
	sseClient.ReconnectNotify = func(err error, next time.Duration) {
		slog.Warn("event stream disconnected, reconnecting",
			"endpoint", endpoint,
			"retry_in", next,
			"error", err)
	}
	return &Client{
		endpoint:   endpoint,
		bufferSize: bufferSize,
		client:     sseClient,
	}
}

// Subscribe connects to stream and returns a channel of decoded events. The
// channel is closed when ctx is canceled. Connection failures are retried with
// exponential backoff until ctx is done.
func (c *Client) Subscribe(ctx context.Context, stream string) (<-chan *Event, error) {
	if !slices.Contains(Streams, stream) {
		return nil, fmt.Errorf("unknown stream %q (want one of %s)", stream, strings.Join(Streams, ", "))
	}

	raw := make(chan *sse.Event)
	if err := c.client.SubscribeChanWithContext(ctx, stream, raw); err != nil {
		slog.Error("failed to subscribe to event stream",
			"endpoint", c.endpoint,
			"stream", stream,
			"error", err)
		return nil, fmt.Errorf("failed to subscribe to event stream: %w", err)
	}

	eventChan := make(chan *Event, c.bufferSize)
	go func() {
		defer close(eventChan)

		for {
			select {
			case <-ctx.Done():
				slog.Debug("event subscription context cancelled", "stream", stream)
				return
			case msg, ok := <-raw:
				if !ok {
					slog.Debug("event channel closed", "stream", stream)
					return
				}

				var event Event
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					slog.Error("failed to parse event",
						"stream", stream,
						"error", err,
						"data", string(msg.Data))
					continue
				}
				event.ID = string(msg.ID)
				event.Stream = stream
				event.Type = string(msg.Event)

				select {
				case eventChan <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}
