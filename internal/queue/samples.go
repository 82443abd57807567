// Package queue implements the bounded sample channel between the capture
// callback and the analyzer.
package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/spectra/internal/config"
)

// Policy decides what happens when the queue is full
type Policy int

const (
	// DropNewest discards the incoming sample
	DropNewest Policy = iota
	// DropOldest evicts the oldest queued sample to admit the incoming one
	DropOldest
	// Block waits up to the block timeout, then drops the incoming sample
	Block
)

func (p Policy) String() string {
	switch p {
	case DropNewest:
		return config.PolicyDropNewest
	case DropOldest:
		return config.PolicyDropOldest
	case Block:
		return config.PolicyBlock
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a config name to a Policy
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", config.PolicyDropNewest:
		return DropNewest, nil
	case config.PolicyDropOldest:
		return DropOldest, nil
	case config.PolicyBlock:
		return Block, nil
	default:
		return 0, fmt.Errorf("unknown queue policy %q", name)
	}
}

// Samples is a single-producer single-consumer FIFO of audio samples.
// Push never blocks longer than the block timeout, so it is safe to call
// from an audio callback.
type Samples struct {
	ch      chan float32
	policy  Policy
	timeout time.Duration

	// producer-owned timer for the block policy
	timer *time.Timer

	dropped   atomic.Uint64
	pushed    atomic.Uint64
	closeOnce sync.Once
}

// New creates a queue holding up to capacity samples
func New(capacity int, policy Policy, blockTimeout time.Duration) *Samples {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Samples{
		ch:      make(chan float32, capacity),
		policy:  policy,
		timeout: blockTimeout,
	}
	if policy == Block {
		q.timer = time.NewTimer(time.Hour)
		q.timer.Stop()
	}
	return q
}

// FromConfig builds a queue from the queue config section
func FromConfig(cfg config.QueueConfig) (*Samples, error) {
	policy, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	return New(cfg.Capacity, policy, cfg.BlockTimeout()), nil
}

// Push enqueues s and reports whether it was accepted. Must not be called
// after Close.
func (q *Samples) Push(s float32) bool {
	select {
	case q.ch <- s:
		q.pushed.Add(1)
		return true
	default:
	}

	switch q.policy {
	case DropOldest:
		// The consumer may empty the head between the two selects; either way
		// there is room for s afterwards unless another producer exists.
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
		select {
		case q.ch <- s:
			q.pushed.Add(1)
			return true
		default:
			q.dropped.Add(1)
			return false
		}
	case Block:
		if q.timeout <= 0 {
			q.dropped.Add(1)
			return false
		}
		q.timer.Reset(q.timeout)
		select {
		case q.ch <- s:
			q.timer.Stop()
			q.pushed.Add(1)
			return true
		case <-q.timer.C:
			q.dropped.Add(1)
			return false
		}
	default:
		q.dropped.Add(1)
		return false
	}
}

// PushBatch enqueues samples in order and reports how many were accepted
// and dropped. Under the block policy the whole batch shares one wait bound;
// once it expires the rest of the batch is dropped without waiting. Must not
// be called after Close.
func (q *Samples) PushBatch(samples []float32) (accepted, dropped int) {
	if q.policy != Block {
		// Evictions under drop-oldest count as drops of this batch.
		before := q.dropped.Load()
		for _, s := range samples {
			if q.Push(s) {
				accepted++
			}
		}
		return accepted, int(q.dropped.Load() - before)
	}

	armed := false
	expired := q.timeout <= 0
	for _, s := range samples {
		select {
		case q.ch <- s:
			accepted++
			continue
		default:
		}
		if expired {
			dropped++
			continue
		}
		if !armed {
			q.timer.Reset(q.timeout)
			armed = true
		}
		select {
		case q.ch <- s:
			accepted++
		case <-q.timer.C:
			expired = true
			dropped++
		}
	}
	if armed && !expired {
		q.timer.Stop()
	}

	q.pushed.Add(uint64(accepted))
	q.dropped.Add(uint64(dropped))
	return accepted, dropped
}

// C returns the consumer end
func (q *Samples) C() <-chan float32 {
	return q.ch
}

// Close marks the end of the stream. Queued samples remain readable.
func (q *Samples) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Dropped returns the number of samples lost to the overflow policy
func (q *Samples) Dropped() uint64 {
	return q.dropped.Load()
}

// Pushed returns the number of samples accepted
func (q *Samples) Pushed() uint64 {
	return q.pushed.Load()
}

// Len returns the number of queued samples
func (q *Samples) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *Samples) Cap() int {
	return cap(q.ch)
}

// Policy returns the overflow policy
func (q *Samples) Policy() Policy {
	return q.policy
}
