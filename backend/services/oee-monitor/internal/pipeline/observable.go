package pipeline

import (
	"sort"
	"sync"
)

// Observable holds the latest published value and fans it out to subscribers.
// Subscribers run synchronously on the publisher's goroutine and must not publish
// to the same Observable.
type Observable[T any] struct {
	deliver sync.Mutex

	mu     sync.RWMutex
	latest T
	nextID int
	subs   map[int]func(T)
}

// NewObservable returns an Observable whose Latest is initial.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{latest: initial, subs: make(map[int]func(T))}
}

// Subscribe registers fn for future values. The returned func removes it and may be
// called more than once.
func (o *Observable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// Watch is Subscribe that first delivers the current value. Publishing waits until
// fn has the current value, so no later value is missed or delivered before it.
func (o *Observable[T]) Watch(fn func(T)) (unsubscribe func()) {
	o.deliver.Lock()
	defer o.deliver.Unlock()
	unsubscribe = o.Subscribe(fn)
	fn(o.Latest())
	return unsubscribe
}

// Publish stores v and delivers it to subscribers in subscription order.
func (o *Observable[T]) Publish(v T) {
	o.deliver.Lock()
	defer o.deliver.Unlock()

	o.mu.Lock()
	o.latest = v
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Latest returns the most recent value.
func (o *Observable[T]) Latest() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// Subscribers returns the number of registered subscribers.
func (o *Observable[T]) Subscribers() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

// Close drops every subscriber.
func (o *Observable[T]) Close() {
	o.mu.Lock()
	o.subs = make(map[int]func(T))
	o.mu.Unlock()
}
