package flatfile

import (
	"log"
	"sync"
	"time"
)

// Store is anything with dirty-tracked flush semantics.
type Store interface {
	Flush(force bool) error
}

// DefaultAutosaveInterval matches the original storage layer's cadence.
const DefaultAutosaveInterval = 15 * time.Minute

const closeWait = 5 * time.Second

// Flusher runs the single recurring background task of this module: a
// fixed-period tick that flushes dirty stores. Close stops new ticks,
// briefly waits out an in-flight flush, then forces one final synchronous
// flush so intentional shutdown never loses data.
type Flusher struct {
	interval time.Duration
	stores   []Store

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewFlusher(interval time.Duration, stores ...Store) *Flusher {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Flusher{
		interval: interval,
		stores:   stores,
		stop:     make(chan struct{}),
	}
}

// Start launches the autosave loop.
func (fl *Flusher) Start() {
	fl.wg.Add(1)
	go func() {
		defer fl.wg.Done()
		ticker := time.NewTicker(fl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-fl.stop:
				return
			case <-ticker.C:
				fl.flushAll(false)
			}
		}
	}()
}

func (fl *Flusher) flushAll(force bool) {
	for _, s := range fl.stores {
		if err := s.Flush(force); err != nil {
			// Dirty flag was re-armed by the store; the next tick retries.
			log.Printf("flatfile: flush failed: %v", err)
		}
	}
}

// Close shuts the loop down and force-flushes everything.
func (fl *Flusher) Close() {
	fl.once.Do(func() {
		close(fl.stop)
		done := make(chan struct{})
		go func() {
			fl.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeWait):
			log.Printf("flatfile: autosave loop still busy after %v, forcing final flush anyway", closeWait)
		}
		fl.flushAll(true)
	})
}
