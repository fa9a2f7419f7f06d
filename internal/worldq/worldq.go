// Package worldq is the thread-confinement gateway: every mutation that
// touches live world or entity state is marshalled onto a single consumer
// goroutine per world, mirroring the host's authoritative world-processing
// context. Everything else in the module may run on arbitrary goroutines.
package worldq

import (
	"log"
	"sync"
)

const queueDepth = 1024

type queue struct {
	ch chan func()
	wg sync.WaitGroup
}

// Gateway implements host.Executor over lazily created per-world queues.
// Submit never blocks the caller on execution of the unit; units run to
// completion in submission order and cannot be cancelled mid-flight.
type Gateway struct {
	mu     sync.Mutex
	worlds map[string]*queue
	closed bool
}

func New() *Gateway {
	return &Gateway{worlds: map[string]*queue{}}
}

// Submit enqueues fn on the world's context. After Close, or when the
// queue is saturated, the unit is dropped with a warning rather than
// blocking game-logic callers.
func (g *Gateway) Submit(world string, fn func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		log.Printf("worldq: gateway closed, dropping work for %s", world)
		return
	}
	q, ok := g.worlds[world]
	if !ok {
		q = &queue{ch: make(chan func(), queueDepth)}
		g.worlds[world] = q
		q.wg.Add(1)
		go q.run()
	}
	g.mu.Unlock()

	select {
	case q.ch <- fn:
	default:
		log.Printf("worldq: queue for %s full, dropping work", world)
	}
}

func (q *queue) run() {
	defer q.wg.Done()
	for fn := range q.ch {
		invoke(fn)
	}
}

// invoke isolates panics so one bad unit cannot take the world loop down.
func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worldq: submitted work panicked: %v", r)
		}
	}()
	fn()
}

// Close stops intake, then drains and waits for every world loop.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	worlds := g.worlds
	g.mu.Unlock()

	for _, q := range worlds {
		close(q.ch)
		q.wg.Wait()
	}
}
