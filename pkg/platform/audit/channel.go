package audit

import (
	"context"
	"errors"
)

// ErrBufferFull reports a dropped event; emission never blocks a transition.
var ErrBufferFull = errors.New("audit buffer full, event dropped")

// ChannelPublisher buffers events for an in-process worker. It is the
// fallback sink when no broker is configured; a full buffer drops the event
// rather than block a transition.
type ChannelPublisher struct {
	events chan Event
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{events: make(chan Event, buffer)}
}

// Events exposes the channel for the consuming worker.
func (p *ChannelPublisher) Events() <-chan Event {
	return p.events
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	select {
	case p.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and lets the draining worker finish.
func (p *ChannelPublisher) Close() {
	close(p.events)
}
