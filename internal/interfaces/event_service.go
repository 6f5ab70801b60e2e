package interfaces

import (
	"context"

	"github.com/ternarybob/quaero/internal/models"
)

// EventBus fans a job's events out to its subscribers. Each subscriber gets
// its own buffered channel (capacity >= 1); a subscriber whose buffer stays
// full past the slow threshold is dropped: it is handed an EventError
// (best-effort) and its channel is closed. Other subscribers are unaffected.
type EventBus interface {
	// Subscribe registers a new listener for jobID and returns a channel of
	// events plus an unsubscribe func. The channel is closed when the job
	// reaches a terminal state or the caller unsubscribes, whichever first.
	Subscribe(ctx context.Context, jobID string) (<-chan models.Event, func(), error)

	// Publish fans ev out to every current subscriber of jobID. A subscriber
	// with a full buffer is waited on for at most the slow threshold and
	// then dropped.
	Publish(jobID string, ev models.Event)

	// Close tears down jobID's bus, closing all subscriber channels.
	Close(jobID string)
}
