package buffer

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
)

const DefaultCapacity = 100

// Buffer is a bounded FIFO. When full, the oldest entry is dropped on Add.
// Entries are not deduplicated.
type Buffer[T any] struct {
	mu      sync.RWMutex
	items   []T
	start   int // index of the oldest entry
	size    int
	added   int64
	evicted int64
	name    string
}

type Option[T any] func(*Buffer[T])

// WithMetrics registers observable gauges for this buffer under name.
func WithMetrics[T any](name string) Option[T] {
	return func(b *Buffer[T]) {
		b.name = name
	}
}

// New creates a buffer for capacity entries. capacity <= 0 selects DefaultCapacity.
func New[T any](capacity int, opts ...Option[T]) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer[T]{items: make([]T, capacity)}
	for _, opt := range opts {
		opt(b)
	}
	if b.name != "" {
		b.setupMetrics()
	}
	return b
}

func (b *Buffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := len(b.items)
	if b.size == c {
		b.items[b.start] = item
		b.start = (b.start + 1) % c
		b.evicted++
	} else {
		b.items[(b.start+b.size)%c] = item
		b.size++
	}
	b.added++
}

// Latest returns up to n entries, newest first.
func (b *Buffer[T]) Latest(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n = min(max(n, 0), b.size)
	ret := make([]T, 0, n)
	for i := range n {
		ret = append(ret, b.items[(b.start+b.size-1-i)%len(b.items)])
	}
	return ret
}

// All returns all entries, oldest first.
func (b *Buffer[T]) All() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ret := make([]T, 0, b.size)
	for i := range b.size {
		ret = append(ret, b.items[(b.start+i)%len(b.items)])
	}
	return ret
}

func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start, b.size = 0, 0
}

func (b *Buffer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("iss.buffer.%s", b.name))
	read := func(f func() int64) func() int64 {
		return func() int64 {
			b.mu.RLock()
			defer b.mu.RUnlock()
			return f()
		}
	}
	for _, d := range []struct {
		name, desc string
		value      func() int64
	}{
		{"iss.buffer.size", "Number of buffered entries", read(func() int64 { return int64(b.size) })},
		{"iss.buffer.added", "Number of added entries", read(func() int64 { return b.added })},
		{"iss.buffer.evicted", "Number of evicted entries", read(func() int64 { return b.evicted })},
	} {
		if _, err := meter.Int64ObservableGauge(
			d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(d.value(), metric.WithAttributes(attribute.String("name", b.name)))
				return nil
			})); err != nil {
			log.Error("failed to register metric",
				log.String("metric", d.name),
				log.ErrorField(err))
		}
	}
}
