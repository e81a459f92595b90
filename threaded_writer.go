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
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultRingCapacity = 4096
	msgSendPollInterval = 5 * time.Millisecond
	msgSendTimeout      = 30 * time.Second
	flushPollInterval   = 10 * time.Millisecond
	flushTimeout        = 30 * time.Second
)

// Flags is the threaded writer's runtime-toggleable behavior set, per
// spec.md §6's flags_get/flags_set.
type Flags struct {
	// DropOnOverflow makes high-rate sample pushes (FSR/Annotation/UTC/
	// UserData) fail fast with Busy on a full ring instead of blocking;
	// it never applies to Flush or Close, which always wait for space.
	DropOnOverflow bool
}

// ThreadedWriter wraps a W with a dedicated consumer goroutine and a
// single-producer/single-consumer message ring (mrb), so the caller's
// (producer) goroutine never blocks on file I/O for sample pushes,
// per spec.md §4.10.
type ThreadedWriter struct {
	w         *W
	sessionID string
	logger    log.Logger

	ring *mrb

	// processMu serializes every call into the inner W, whether reached
	// via the ring (sample pushes) or bypassing it (SourceDef/SignalDef),
	// matching spec.md's "process mutex".
	processMu sync.Mutex

	flagsMu sync.RWMutex
	flags   Flags

	flushMu          sync.Mutex
	flushSendID      uint64
	flushProcessedID uint64
	flushWake        *sync.Cond

	donec chan struct{}

	metrics *twMetrics
}

// ThreadedWriterOption configures NewThreadedWriter.
type ThreadedWriterOption func(*twConfig)

type twConfig struct {
	ringCapacity int
	registerer   prometheus.Registerer
	logger       log.Logger
}

// WithRingCapacity overrides the ring's fixed message capacity (default
// 4096).
func WithRingCapacity(n int) ThreadedWriterOption {
	return func(c *twConfig) { c.ringCapacity = n }
}

// WithMetricsRegisterer registers the threaded writer's counters/gauges
// (messages enqueued/dropped, ring occupancy, flush latency) with reg.
// Left unset, metrics are tracked in-process but never exposed.
func WithMetricsRegisterer(reg prometheus.Registerer) ThreadedWriterOption {
	return func(c *twConfig) { c.registerer = reg }
}

// WithThreadedLogger overrides the process-wide logger for this writer's
// consumer-goroutine log lines.
func WithThreadedLogger(l log.Logger) ThreadedWriterOption {
	return func(c *twConfig) { c.logger = l }
}

// NewThreadedWriter wraps w and starts its consumer goroutine.
func NewThreadedWriter(w *W, opts ...ThreadedWriterOption) *ThreadedWriter {
	cfg := twConfig{ringCapacity: defaultRingCapacity, logger: currentLogger()}
	for _, o := range opts {
		o(&cfg)
	}

	sessionID := uuid.NewString()
	tw := &ThreadedWriter{
		w:         w,
		sessionID: sessionID,
		logger:    log.With(cfg.logger, "session", sessionID),
		ring:      newMRB(cfg.ringCapacity),
		donec:     make(chan struct{}),
		metrics:   newTWMetrics(cfg.registerer, sessionID),
	}
	tw.flushWake = sync.NewCond(&tw.flushMu)

	var g run.Group
	g.Add(func() error {
		tw.consumerLoop()
		return nil
	}, func(error) {
		tw.ring.stop()
	})
	go func() {
		_ = g.Run()
		close(tw.donec)
	}()

	return tw
}

// FlagsGet returns the writer's current runtime flags.
func (tw *ThreadedWriter) FlagsGet() Flags {
	tw.flagsMu.RLock()
	defer tw.flagsMu.RUnlock()
	return tw.flags
}

// FlagsSet installs new runtime flags.
func (tw *ThreadedWriter) FlagsSet(f Flags) {
	tw.flagsMu.Lock()
	tw.flags = f
	tw.flagsMu.Unlock()
}

// consumerLoop is the dedicated I/O goroutine: it waits for queued
// messages, drains the whole ready batch, and dispatches each into the
// inner W under processMu, per spec.md §4.10/§5.
func (tw *ThreadedWriter) consumerLoop() {
	for {
		msgs := tw.ring.drain()
		if msgs == nil {
			return
		}
		for _, m := range msgs {
			tw.metrics.ringOccupancy.Set(float64(tw.ring.occupancy()))
			if tw.dispatch(m) {
				return
			}
		}
	}
}

// dispatch applies one message to the inner writer under the process
// mutex, logging (never surfacing) any error, per spec.md §4.10/§7. It
// returns true once CLOSE has been processed.
func (tw *ThreadedWriter) dispatch(m message) (closed bool) {
	tw.processMu.Lock()
	defer tw.processMu.Unlock()

	switch m.kind {
	case msgClose:
		if err := tw.w.Close(); err != nil {
			tw.logWarn("close failed", err)
		}
		return true
	case msgFlush:
		start := time.Now()
		if err := tw.w.Flush(); err != nil {
			tw.logWarn("flush failed", err)
		}
		tw.metrics.flushLatency.Observe(time.Since(start).Seconds())
		tw.publishFlushProcessed(m.flushID)
	case msgUserData:
		if err := tw.w.UserData(m.storageType, m.data); err != nil {
			tw.logWarn("user_data failed", err)
		}
	case msgFSR:
		if err := tw.w.FSR(m.signalID, m.sampleID, m.data, m.length); err != nil {
			tw.logWarn("fsr failed", err)
		}
	case msgFSROmit:
		if err := tw.w.FSROmitData(m.signalID, m.omit); err != nil {
			tw.logWarn("fsr_omit_data failed", err)
		}
	case msgAnnotation:
		if err := tw.w.Annotation(m.signalID, m.annotation); err != nil {
			tw.logWarn("annotation failed", err)
		}
	case msgUTC:
		if err := tw.w.UTC(m.signalID, m.sampleID, m.utc); err != nil {
			tw.logWarn("utc failed", err)
		}
	}
	return false
}

func (tw *ThreadedWriter) logWarn(msg string, err error) {
	_ = level.Warn(tw.logger).Log("msg", msg, "err", err)
}

// msgSend enqueues msg, honoring DROP_ON_OVERFLOW for the high-rate kinds;
// FLUSH and CLOSE always block (a barrier or termination that silently
// vanished would be far worse than a slow producer).
func (tw *ThreadedWriter) msgSend(msg message) error {
	alwaysBlock := msg.kind == msgFlush || msg.kind == msgClose
	if !alwaysBlock && tw.FlagsGet().DropOnOverflow {
		if !tw.ring.tryPush(msg) {
			tw.metrics.dropped.Inc()
			return newErr(Busy, "threaded_writer: ring full, message dropped")
		}
		tw.metrics.enqueued.Inc()
		return nil
	}

	deadline := time.Now().Add(msgSendTimeout)
	for {
		if tw.ring.tryPush(msg) {
			tw.metrics.enqueued.Inc()
			return nil
		}
		if time.Now().After(deadline) {
			return newErr(TimedOut, "threaded_writer: msg_send timed out waiting for ring space")
		}
		time.Sleep(msgSendPollInterval)
	}
}

func (tw *ThreadedWriter) publishFlushProcessed(id uint64) {
	tw.flushMu.Lock()
	if id > tw.flushProcessedID {
		tw.flushProcessedID = id
	}
	tw.flushWake.Broadcast()
	tw.flushMu.Unlock()
}

// SourceDef bypasses the ring: definition calls are synchronous from the
// producer's point of view, per spec.md §4.10.
func (tw *ThreadedWriter) SourceDef(def SourceDef) error {
	tw.processMu.Lock()
	defer tw.processMu.Unlock()
	return tw.w.SourceDef(def)
}

// SignalDef bypasses the ring, same as SourceDef.
func (tw *ThreadedWriter) SignalDef(def SignalDef) error {
	tw.processMu.Lock()
	defer tw.processMu.Unlock()
	return tw.w.SignalDef(def)
}

// UserData enqueues a USER_DATA message.
func (tw *ThreadedWriter) UserData(st StorageType, data []byte) error {
	cp := append([]byte(nil), data...)
	return tw.msgSend(message{kind: msgUserData, storageType: st, data: cp})
}

// FSR enqueues an FSR sample push.
func (tw *ThreadedWriter) FSR(signalID uint16, sampleID int64, data []byte, length uint32) error {
	cp := append([]byte(nil), data...)
	return tw.msgSend(message{kind: msgFSR, signalID: signalID, sampleID: sampleID, data: cp, length: length})
}

// FSROmitData enqueues an omit-data toggle.
func (tw *ThreadedWriter) FSROmitData(signalID uint16, omit bool) error {
	return tw.msgSend(message{kind: msgFSROmit, signalID: signalID, omit: omit})
}

// Annotation enqueues an annotation write.
func (tw *ThreadedWriter) Annotation(signalID uint16, a Annotation) error {
	return tw.msgSend(message{kind: msgAnnotation, signalID: signalID, annotation: a})
}

// UTC enqueues a sample_id-to-wall-clock mapping.
func (tw *ThreadedWriter) UTC(signalID uint16, sampleID, utc int64) error {
	return tw.msgSend(message{kind: msgUTC, signalID: signalID, sampleID: sampleID, utc: utc})
}

// Flush enqueues a FLUSH barrier carrying the next monotonically
// increasing barrier id, then waits for the consumer to publish that id
// as processed, per spec.md §4.10's twr.flush().
func (tw *ThreadedWriter) Flush() error {
	tw.flushMu.Lock()
	tw.flushSendID++
	id := tw.flushSendID
	tw.flushMu.Unlock()

	if err := tw.msgSend(message{kind: msgFlush, flushID: id}); err != nil {
		return err
	}

	tw.flushMu.Lock()
	defer tw.flushMu.Unlock()
	deadline := time.Now().Add(flushTimeout)
	for tw.flushProcessedID < id {
		if time.Now().After(deadline) {
			return newErr(TimedOut, "threaded_writer: flush timed out waiting for barrier %d", id)
		}
		waitUntil(tw.flushWake, flushPollInterval)
	}
	return nil
}

// waitUntil blocks on cond for at most d, re-acquiring cond.L before
// returning (sync.Cond has no built-in timed wait).
func waitUntil(cond *sync.Cond, d time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
		close(done)
	})
	cond.Wait()
	timer.Stop()
	select {
	case <-done:
	default:
	}
}

// Close enqueues CLOSE and blocks until the consumer goroutine has
// processed it (closing the inner W) and exited, per spec.md §4.10: "the
// producer enqueues CLOSE, joins the consumer, then frees resources."
// Any messages enqueued after CLOSE are discarded, since the consumer
// returns as soon as it dispatches CLOSE rather than continuing to drain.
func (tw *ThreadedWriter) Close() error {
	if err := tw.msgSend(message{kind: msgClose}); err != nil {
		return err
	}
	<-tw.donec
	return nil
}

// twMetrics are the threaded writer's prometheus instruments: message
// throughput, overflow drops, ring occupancy, and flush-barrier latency.
type twMetrics struct {
	enqueued      prometheus.Counter
	dropped       prometheus.Counter
	ringOccupancy prometheus.Gauge
	flushLatency  prometheus.Histogram
}

func newTWMetrics(reg prometheus.Registerer, sessionID string) *twMetrics {
	labels := prometheus.Labels{"session": sessionID}
	m := &twMetrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "jls",
			Subsystem:   "threaded_writer",
			Name:        "messages_enqueued_total",
			Help:        "Messages successfully pushed onto the writer's message ring.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "jls",
			Subsystem:   "threaded_writer",
			Name:        "messages_dropped_total",
			Help:        "Messages dropped because DROP_ON_OVERFLOW was set and the ring was full.",
			ConstLabels: labels,
		}),
		ringOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "jls",
			Subsystem:   "threaded_writer",
			Name:        "ring_occupancy",
			Help:        "Messages currently queued in the writer's message ring.",
			ConstLabels: labels,
		}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "jls",
			Subsystem:   "threaded_writer",
			Name:        "flush_latency_seconds",
			Help:        "Time the consumer goroutine spent inside W.Flush() per FLUSH message.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.enqueued, m.dropped, m.ringOccupancy, m.flushLatency)
	}
	return m
}
