package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
)

// subscriberBufferDepth is fixed at one slot per Design Note (c): deeper
// buffering only delays the slow-subscriber drop, it never prevents it.
const subscriberBufferDepth = 1

type subscriber struct {
	ch     chan models.Event
	cancel context.CancelFunc
}

type jobBus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool
}

// EventBus is the in-process, per-job fan-out implementation of
// interfaces.EventBus (spec §4.6, §5, §9 design note (c)). Publish waits at
// most slowThreshold on a subscriber whose buffer is full; after that the
// subscriber is dropped and its channel closed after being handed a
// terminal EventError.
type EventBus struct {
	mu            sync.Mutex
	buses         map[string]*jobBus
	slowThreshold time.Duration
	logger        arbor.ILogger
}

var _ interfaces.EventBus = (*EventBus)(nil)

// NewEventBus builds an EventBus. slowThreshold is
// config.Discovery.SubscriberSlowThreshold.
func NewEventBus(slowThreshold time.Duration, logger arbor.ILogger) *EventBus {
	return &EventBus{
		buses:         make(map[string]*jobBus),
		slowThreshold: slowThreshold,
		logger:        logger,
	}
}

func (b *EventBus) busFor(jobID string) *jobBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	jb, ok := b.buses[jobID]
	if !ok {
		jb = &jobBus{subscribers: make(map[int]*subscriber)}
		b.buses[jobID] = jb
	}
	return jb
}

// Subscribe registers a new listener for jobID.
func (b *EventBus) Subscribe(ctx context.Context, jobID string) (<-chan models.Event, func(), error) {
	jb := b.busFor(jobID)

	jb.mu.Lock()
	if jb.closed {
		jb.mu.Unlock()
		ch := make(chan models.Event)
		close(ch)
		return ch, func() {}, nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{ch: make(chan models.Event, subscriberBufferDepth), cancel: cancel}
	id := jb.nextID
	jb.nextID++
	jb.subscribers[id] = sub
	jb.mu.Unlock()

	unsubscribe := func() {
		jb.mu.Lock()
		defer jb.mu.Unlock()
		if s, ok := jb.subscribers[id]; ok {
			delete(jb.subscribers, id)
			close(s.ch)
		}
	}

	common.SafeGo(b.logger, "eventbus.subscriber.cancel", func() {
		<-subCtx.Done()
		unsubscribe()
	})

	return sub.ch, unsubscribe, nil
}

// Publish fans ev out to every current subscriber of jobID. A send that
// would block past slowThreshold drops that subscriber: it receives a
// terminal EventError (best-effort) and its channel is closed.
func (b *EventBus) Publish(jobID string, ev models.Event) {
	jb := b.busFor(jobID)

	jb.mu.Lock()
	ids := make([]int, 0, len(jb.subscribers))
	for id := range jb.subscribers {
		ids = append(ids, id)
	}
	jb.mu.Unlock()

	for _, id := range ids {
		jb.mu.Lock()
		sub, ok := jb.subscribers[id]
		jb.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case sub.ch <- ev:
		default:
			b.deliverSlow(jb, id, sub, ev)
		}
	}
}

// deliverSlow is reached once the subscriber's single buffer slot is full.
// It waits up to slowThreshold for the slot to drain so ev can still be
// delivered; past that it drops the subscriber instead of blocking Publish.
func (b *EventBus) deliverSlow(jb *jobBus, id int, sub *subscriber, ev models.Event) {
	timer := time.NewTimer(b.slowThreshold)
	defer timer.Stop()

	select {
	case sub.ch <- ev:
		return
	case <-timer.C:
	}

	jb.mu.Lock()
	defer jb.mu.Unlock()
	if s, ok := jb.subscribers[id]; ok && s == sub {
		delete(jb.subscribers, id)
		select {
		case s.ch <- models.Event{Type: models.EventError, Payload: models.ErrorPayload{Message: "subscriber too slow, dropped"}}:
		default:
		}
		close(s.ch)
		s.cancel()
		if b.logger != nil {
			b.logger.Warn().Int("subscriber_id", id).Msg("dropped slow event subscriber")
		}
	}
}

// Close tears down jobID's bus, closing all subscriber channels.
func (b *EventBus) Close(jobID string) {
	b.mu.Lock()
	jb, ok := b.buses[jobID]
	if ok {
		delete(b.buses, jobID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.closed = true
	for id, sub := range jb.subscribers {
		close(sub.ch)
		sub.cancel()
		delete(jb.subscribers, id)
	}
}
