// Copyright 2026 The JLS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jls

import (
	"sync"
	"sync/atomic"
)

// msgKind tags the variable-length messages the threaded writer's
// producer deposits into the ring for its consumer goroutine, per
// spec.md §4.10.
type msgKind uint8

const (
	msgClose msgKind = iota
	msgFlush
	msgUserData
	msgFSR
	msgFSROmit
	msgAnnotation
	msgUTC
)

// message is one ring entry: a fixed-size tagged-union header plus an
// owned payload, the "variable-length message" spec.md describes. Only
// the fields relevant to msgKind are populated by the producer.
type message struct {
	kind msgKind

	flushID uint64

	signalID uint16
	sampleID int64
	data     []byte
	length   uint32

	storageType StorageType
	omit        bool
	annotation  Annotation
	utc         int64
}

// mrb is the single-producer/single-consumer message ring spec.md §4.10
// describes: a bounded circular queue of message values guarded by one
// mutex, with a condition variable the consumer blocks on between drains.
// Producer and consumer never hold the mutex across I/O -- the consumer
// copies the whole ready batch out under lock, then releases it before
// dispatching each message to the inner writer.
type mrb struct {
	mu   sync.Mutex
	cond *sync.Cond
	ring []message
	head int
	n    int

	stopped atomic.Bool
}

func newMRB(capacity int) *mrb {
	r := &mrb{ring: make([]message, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *mrb) capacity() int { return len(r.ring) }

// tryPush enqueues msg if space is available, waking the consumer.
// Returns false if the ring is full -- the producer's BUSY case.
func (r *mrb) tryPush(msg message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == len(r.ring) {
		return false
	}
	idx := (r.head + r.n) % len(r.ring)
	r.ring[idx] = msg
	r.n++
	r.cond.Signal()
	return true
}

// occupancy reports the current number of queued messages, for the ring
// occupancy gauge.
func (r *mrb) occupancy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// drain blocks until at least one message is queued or the ring has been
// told to stop, then pops every currently-queued message at once --
// spec.md's "waits on the event; drains all ready messages". Returns nil
// once stopped with nothing left to drain.
func (r *mrb) drain() []message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.n == 0 && !r.stopped.Load() {
		r.cond.Wait()
	}
	if r.n == 0 {
		return nil
	}
	out := make([]message, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.ring[(r.head+i)%len(r.ring)]
	}
	r.head = (r.head + r.n) % len(r.ring)
	r.n = 0
	return out
}

// stop marks the ring as shutting down and wakes a consumer blocked in
// drain so it can observe the flag even with nothing queued.
func (r *mrb) stop() {
	r.stopped.Store(true)
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}
