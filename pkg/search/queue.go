package search

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
	"pawtalk/pkg/telemetry"
)

// opType is the kind of refresh operation.
type opType uint8

const (
	opIndex opType = iota
	opRemove
)

// item carries one refresh request. Payload may be backed by a pooled
// ByteBuffer; the worker calls done() exactly once after processing.
type item struct {
	typ    opType
	convID string
	msgID  string
	// payload holds the message JSON for opIndex (may be pooled).
	payload []byte

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

func (it *item) done() {
	it.once.Do(func() {
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		it.payload = nil
	})
}

// maxPooledBuffer is the largest buffer returned to the pool; larger ones
// are dropped so resident memory stays bounded.
const maxPooledBuffer = 256 * 1024

// Refresher is a bounded, fire-and-forget refresh pipeline between the
// store's write path and the Index. Producers never block: when the queue
// is full the refresh is dropped and counted, leaving the index stale
// until the next write to that message ("eventually queryable").
type Refresher struct {
	idx     *Index
	ch      chan *item
	stop    chan struct{}
	stopped sync.WaitGroup
	dropped uint64
}

// NewRefresher creates a refresher over idx with the given queue capacity.
func NewRefresher(idx *Index, capacity int) *Refresher {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Refresher{
		idx:  idx,
		ch:   make(chan *item, capacity),
		stop: make(chan struct{}),
	}
}

// EnqueueIndex queues a projection rebuild for a message. payload is the
// message JSON; it is copied into a pooled buffer so the caller may reuse
// its slice.
func (r *Refresher) EnqueueIndex(convID, msgID string, payload []byte) {
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], payload...)
	it := &item{typ: opIndex, convID: convID, msgID: msgID, payload: bb.B, buf: bb}
	select {
	case r.ch <- it:
	default:
		it.done()
		atomic.AddUint64(&r.dropped, 1)
		telemetry.IndexQueueDropped.Inc()
		logger.Warn("index_queue_full", "conv", convID, "msg", msgID)
	}
}

// EnqueueRemove queues projection removal for a tombstoned message.
func (r *Refresher) EnqueueRemove(msgID string) {
	it := &item{typ: opRemove, msgID: msgID}
	select {
	case r.ch <- it:
	default:
		atomic.AddUint64(&r.dropped, 1)
		telemetry.IndexQueueDropped.Inc()
	}
}

// Start launches the worker goroutine.
func (r *Refresher) Start() {
	r.stopped.Add(1)
	go func() {
		defer r.stopped.Done()
		for {
			select {
			case it := <-r.ch:
				r.apply(it)
			case <-r.stop:
				// drain what is already queued before exiting
				for {
					select {
					case it := <-r.ch:
						r.apply(it)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the worker and waits for the queue to drain.
func (r *Refresher) Stop() {
	close(r.stop)
	r.stopped.Wait()
}

// Dropped returns the number of refresh requests dropped under pressure.
func (r *Refresher) Dropped() uint64 { return atomic.LoadUint64(&r.dropped) }

func (r *Refresher) apply(it *item) {
	defer it.done()
	switch it.typ {
	case opIndex:
		var m models.Message
		if err := json.Unmarshal(it.payload, &m); err != nil {
			logger.Error("index_refresh_bad_payload", "msg", it.msgID, "error", err)
			return
		}
		r.idx.IndexMessage(m)
	case opRemove:
		r.idx.Remove(it.msgID)
	}
}
