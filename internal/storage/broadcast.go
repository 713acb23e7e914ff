package storage

import (
	"context"
	"sync"

	"github.com/julianstephens/horizon/internal/logger"
)

// Broadcaster fans change signals out to subscribers. Signals coalesce: a
// subscriber that has not consumed the previous signal receives only one.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan struct{})}
}

// Subscribe registers for change signals until ctx is done, at which point
// the returned channel is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// Broadcast signals every subscriber without blocking.
func (b *Broadcaster) Broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Observe runs query once immediately and again after every signal from b,
// sending each result on the returned channel. Only the newest unread result
// is kept. Query errors are logged and skipped. The channel closes when ctx
// is done.
func Observe[T any](ctx context.Context, b *Broadcaster, name string, query func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	signals := b.Subscribe(ctx)

	go func() {
		defer close(out)
		for {
			v, err := query(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				logger.Warn("Observation query failed", "stream", name, "error", err)
			default:
				select {
				case <-out:
				default:
				}
				out <- v
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}
