package handshake

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus delivers messages between windows of one process. Delivery is
// synchronous on the posting goroutine.
type MemoryBus struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{windows: map[string]*memoryWindow{}}
}

func (b *MemoryBus) Window(id string) Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		w = &memoryWindow{id: id, subs: map[uint64]Handler{}}
		b.windows[id] = w
	}
	return w
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.windows {
		w.mu.Lock()
		w.subs = map[uint64]Handler{}
		w.mu.Unlock()
	}
	return nil
}

type memoryWindow struct {
	id   string
	mu   sync.Mutex
	next uint64
	subs map[uint64]Handler
}

func (w *memoryWindow) ID() string { return w.id }

func (w *memoryWindow) Post(_ context.Context, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("post to %s: %w", w.id, err)
	}
	w.deliver(payload)
	return nil
}

func (w *memoryWindow) deliver(payload []byte) {
	w.mu.Lock()
	handlers := make([]Handler, 0, len(w.subs))
	for i := uint64(0); i < w.next; i++ {
		if h, ok := w.subs[i]; ok {
			handlers = append(handlers, h)
		}
	}
	w.mu.Unlock()

	for _, h := range handlers {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		h(cp)
	}
}

func (w *memoryWindow) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	key := w.next
	w.next++
	w.subs[key] = handler
	w.mu.Unlock()

	var once sync.Once
	stopped := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, key)
			w.mu.Unlock()
			close(stopped)
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				unsubscribe()
			case <-stopped:
			}
		}()
	}
	return unsubscribe, nil
}

func (w *memoryWindow) subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}
