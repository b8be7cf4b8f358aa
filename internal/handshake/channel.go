package handshake

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Target is a window that accepts posted messages. Posting is one-way: a
// nil error only means the message left, not that anyone received it.
type Target interface {
	ID() string
	Post(ctx context.Context, msg Message) error
}

// Handler receives raw payloads delivered to a window.
type Handler func(payload []byte)

// Channel is a window that can also be listened on.
type Channel interface {
	Target
	// Subscribe registers handler until the returned func is called or ctx
	// ends. Every subscription receives its own copy of each message.
	Subscribe(ctx context.Context, handler Handler) (func(), error)
}

// Bus addresses windows by id.
type Bus interface {
	Window(id string) Channel
	Close() error
}

// Frame is the set of windows reachable from an embedded frame. Parent and
// Top are nil when the frame is not embedded.
type Frame struct {
	Self   Target
	Parent Target
	Top    Target
}

// FrameOnBus addresses self, parent and top windows on bus. Blank ids are
// left nil.
func FrameOnBus(bus Bus, self, parent, top string) Frame {
	var f Frame
	if self != "" {
		f.Self = bus.Window(self)
	}
	if parent != "" {
		f.Parent = bus.Window(parent)
	}
	if top != "" {
		f.Top = bus.Window(top)
	}
	return f
}

// Targets returns the distinct windows of the frame in self, parent, top order.
func (f Frame) Targets() []Target {
	seen := make(map[string]struct{}, 3)
	targets := make([]Target, 0, 3)
	for _, t := range []Target{f.Self, f.Parent, f.Top} {
		if t == nil {
			continue
		}
		if _, dup := seen[t.ID()]; dup {
			continue
		}
		seen[t.ID()] = struct{}{}
		targets = append(targets, t)
	}
	return targets
}

// Broadcast posts msg once to every distinct target. Failures are logged and
// dropped; the number of successful posts is returned.
func (f Frame) Broadcast(ctx context.Context, msg Message) int {
	sent := 0
	for _, t := range f.Targets() {
		if err := t.Post(ctx, msg); err != nil {
			log.Warn().Err(err).Str("window", t.ID()).Str("type", msg.Type()).Msg("post message failed")
			continue
		}
		sent++
	}
	return sent
}

// Listen subscribes onMessage to ch. Payloads that do not decode are dropped.
// The returned func is safe to call more than once.
func Listen(ctx context.Context, ch Channel, onMessage func(Message)) (func(), error) {
	if ch == nil {
		return nil, errors.New("listen: nil channel")
	}
	unsubscribe, err := ch.Subscribe(ctx, func(payload []byte) {
		msg, err := Decode(payload)
		if err != nil {
			if !errors.Is(err, ErrIgnored) {
				log.Debug().Err(err).Str("window", ch.ID()).Msg("decode message")
			}
			return
		}
		onMessage(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", ch.ID(), err)
	}
	return unsubscribe, nil
}
